package signer

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
	"github.com/hollowsky/courier-relay/internal/relay"
)

// maxDateSkew bounds how old an incoming request's Date header may be
// before its signature is rejected outright, closing the replay window on
// a captured signed request. Mastodon enforces the same ±30s window.
const maxDateSkew = 30 * time.Second

// Signer signs outgoing requests with the relay's one RSA key and verifies
// incoming ones against whatever key the caller resolves from the
// Signature header's keyId. Every local persona (the completion actor, and
// one trends actor per source host) shares this same key pair but signs
// under its own keyId, so Sign takes the keyId per call rather than
// binding one at construction time.
type Signer struct {
	PrivateKey *rsa.PrivateKey
	// PublicKey and PublicKeyPEM are only populated when the Signer was
	// built via LoadOrGenerateSigner; Sign and VerifySignature never
	// need them, only the actor-document builder does.
	PublicKey    *rsa.PublicKey
	PublicKeyPEM string
}

// New builds a Signer around an already-loaded private key, for callers
// that sign or verify without needing to advertise a public key of their
// own (tests, mostly). Production startup goes through
// LoadOrGenerateSigner instead.
func New(key *rsa.PrivateKey) *Signer {
	return &Signer{PrivateKey: key}
}

// Sign adds Date, Host, Digest and Signature headers to req so that it
// satisfies RSA-SHA256 HTTP Signatures, signed as keyID (the signing
// actor's "<actor-uri>#key"). body may be nil for GETs.
func (s *Signer) Sign(req *http.Request, keyID string, body []byte) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	req.Header.Set("Host", req.URL.Host)

	sig, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		[]string{httpsig.RequestTarget, "host", "date", "digest"},
		httpsig.Signature,
		0,
	)
	if err != nil {
		return relay.Wrap(relay.ErrSignatureCompute, "create signer", err)
	}
	if err := sig.SignRequest(s.PrivateKey, keyID, req, body); err != nil {
		return relay.Wrap(relay.ErrSignatureCompute, "sign request", err)
	}
	return nil
}

// VerifyDigest checks the Digest request header (if present) against the
// SHA-256 hash of body. A missing header, or one naming an algorithm other
// than SHA-256, is accepted without comparison for forward-compatibility.
func VerifyDigest(body []byte, digestHeader string) error {
	if digestHeader == "" {
		return nil
	}
	const prefix = "SHA-256="
	if !strings.HasPrefix(digestHeader, prefix) {
		return nil
	}
	sum := sha256.Sum256(body)
	got := base64.StdEncoding.EncodeToString(sum[:])
	want := digestHeader[len(prefix):]
	if got != want {
		return relay.Wrap(relay.ErrDigestCompute, fmt.Sprintf("digest mismatch: got %s want %s", got, want), nil)
	}
	return nil
}

// KeyResolver resolves the RSA public key for a keyId (an actor uri with a
// "#fragment"), used by VerifySignature to check the signature on an
// inbound request.
type KeyResolver func(keyID string) (*rsa.PublicKey, error)

// VerifySignature checks an inbound request's Date header freshness and
// HTTP Signature, resolving the signing key via resolve. Returns the
// keyId on success.
func VerifySignature(req *http.Request, resolve KeyResolver) (string, error) {
	dateStr := req.Header.Get("Date")
	if dateStr == "" {
		return "", relay.Wrap(relay.ErrSignatureVerify, "missing Date header", nil)
	}
	reqTime, err := http.ParseTime(dateStr)
	if err != nil {
		return "", relay.Wrap(relay.ErrSignatureVerify, fmt.Sprintf("invalid Date header %q", dateStr), err)
	}
	if skew := time.Since(reqTime); skew > maxDateSkew || skew < -maxDateSkew {
		return "", relay.Wrap(relay.ErrSignatureVerify, fmt.Sprintf("Date header too skewed (%v)", skew.Round(time.Second)), nil)
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", relay.Wrap(relay.ErrSignatureVerify, "create verifier", err)
	}
	keyID := verifier.KeyId()

	pubKey, err := resolve(keyID)
	if err != nil {
		return keyID, err
	}
	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
		return keyID, relay.Wrap(relay.ErrSignatureVerify, "signature mismatch", err)
	}
	return keyID, nil
}

// ActorURIFromKeyID strips the "#fragment" a keyId carries, returning the
// actor id the key belongs to.
func ActorURIFromKeyID(keyID string) string {
	return strings.Split(keyID, "#")[0]
}

// DigestHeader computes the Digest request header value for body.
func DigestHeader(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}
