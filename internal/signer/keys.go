package signer

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"log/slog"
	"os"

	"github.com/hollowsky/courier-relay/internal/relay"
)

// KeyPair is the RSA key pair the relay signs outgoing activities with and
// advertises in its actor documents.
type KeyPair struct {
	Private   *rsa.PrivateKey
	Public    *rsa.PublicKey
	PublicPEM string
}

// LoadOrGenerateKeyPair loads the relay's RSA key pair from the configured
// PEM paths, generating and persisting a new 2048-bit pair if they don't
// exist yet. This keeps a fresh install zero-setup: the relay's identity is
// whatever key it finds or creates on its first run.
func LoadOrGenerateKeyPair(privatePath, publicPath string) (*KeyPair, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, relay.Wrap(relay.ErrStore, "read private key", err)
		}
		slog.Info("RSA key pair not found, generating new one", "private", privatePath, "public", publicPath)
		return generateAndSaveKeyPair(privatePath, publicPath)
	}

	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, relay.Wrap(relay.ErrStore, "read public key", err)
	}
	return parseKeyPair(privPEM, pubPEM)
}

// LoadOrGenerateSigner is the entry point cmd/relay uses at startup: it
// loads or creates the relay's key pair and hands back a Signer already
// carrying the public key material every actor document needs to
// advertise, so callers never touch a bare KeyPair directly.
func LoadOrGenerateSigner(privatePath, publicPath string) (*Signer, error) {
	kp, err := LoadOrGenerateKeyPair(privatePath, publicPath)
	if err != nil {
		return nil, err
	}
	return &Signer{PrivateKey: kp.Private, PublicKey: kp.Public, PublicKeyPEM: kp.PublicPEM}, nil
}

func generateAndSaveKeyPair(privatePath, publicPath string) (*KeyPair, error) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, relay.Wrap(relay.ErrSignatureCompute, "generate RSA key", err)
	}

	privBytes := x509.MarshalPKCS1PrivateKey(privKey)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	if err != nil {
		return nil, relay.Wrap(relay.ErrSignatureCompute, "marshal public key", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	if err := os.WriteFile(privatePath, privPEM, 0o600); err != nil {
		return nil, relay.Wrap(relay.ErrStore, "write private key", err)
	}
	if err := os.WriteFile(publicPath, pubPEM, 0o644); err != nil {
		return nil, relay.Wrap(relay.ErrStore, "write public key", err)
	}

	slog.Info("generated RSA key pair", "private", privatePath, "public", publicPath)
	return parseKeyPair(privPEM, pubPEM)
}

func parseKeyPair(privPEM, pubPEM []byte) (*KeyPair, error) {
	privBlock, err := decodePEMBlock(privPEM, "private key")
	if err != nil {
		return nil, err
	}
	privKey, err := x509.ParsePKCS1PrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, relay.Wrap(relay.ErrSignatureCompute, "parse private key", err)
	}

	pubBlock, err := decodePEMBlock(pubPEM, "public key")
	if err != nil {
		return nil, err
	}
	pubKey, err := parsePublicKeyDER(pubBlock.Bytes)
	if err != nil {
		return nil, err
	}

	return &KeyPair{Private: privKey, Public: pubKey, PublicPEM: string(pubPEM)}, nil
}

func decodePEMBlock(data []byte, what string) (*pem.Block, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, relay.Wrap(relay.ErrSignatureCompute, "decode "+what+" PEM", nil)
	}
	return block, nil
}

func parsePublicKeyDER(b []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(b)
	if err != nil {
		return nil, relay.Wrap(relay.ErrSignatureCompute, "parse PKIX public key", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, relay.Wrap(relay.ErrSignatureCompute, "not an RSA public key", nil)
	}
	return rsaPub, nil
}

// ParsePublicKeyPEM parses a PEM-encoded RSA public key, as embedded in a
// remote actor document's publicKeyPem field.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, err := decodePEMBlock([]byte(pemStr), "public key")
	if err != nil {
		return nil, err
	}
	return parsePublicKeyDER(block.Bytes)
}
