package signer

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key := testKeyPair(t)
	sg := New(key)

	body := []byte(`{"type":"Follow"}`)
	req, err := http.NewRequest(http.MethodPost, "https://relay.example/completion", bytes.NewReader(body))
	require.NoError(t, err)

	keyID := "https://relay.example/completion#key"
	require.NoError(t, sg.Sign(req, keyID, body))

	assert.NotEmpty(t, req.Header.Get("Signature"))
	assert.NotEmpty(t, req.Header.Get("Digest"))
	assert.NotEmpty(t, req.Header.Get("Date"))

	got, err := VerifySignature(req, func(resolvedKeyID string) (*rsa.PublicKey, error) {
		assert.Equal(t, keyID, resolvedKeyID)
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	assert.Equal(t, keyID, got)
}

func TestVerifySignature_MissingDate(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://relay.example/completion", nil)
	require.NoError(t, err)

	_, err = VerifySignature(req, func(string) (*rsa.PublicKey, error) { return nil, nil })
	assert.Error(t, err)
}

func TestVerifySignature_StaleDate(t *testing.T) {
	key := testKeyPair(t)
	sg := New(key)

	req, err := http.NewRequest(http.MethodGet, "https://relay.example/completion", nil)
	require.NoError(t, err)
	require.NoError(t, sg.Sign(req, "https://relay.example/completion#key", nil))
	req.Header.Set("Date", "Mon, 01 Jan 2001 00:00:00 GMT")

	_, err = VerifySignature(req, func(string) (*rsa.PublicKey, error) { return &key.PublicKey, nil })
	assert.Error(t, err)
}

func TestVerifyDigest(t *testing.T) {
	body := []byte(`{"a":1}`)
	header := DigestHeader(body)

	assert.NoError(t, VerifyDigest(body, header))
	assert.NoError(t, VerifyDigest(body, ""))
	assert.Error(t, VerifyDigest(body, "SHA-256=not-the-right-hash"))
	assert.NoError(t, VerifyDigest(body, "SHA-512=irrelevant"))
}

func TestActorURIFromKeyID(t *testing.T) {
	assert.Equal(t, "https://relay.example/completion", ActorURIFromKeyID("https://relay.example/completion#key"))
}

func TestLoadOrGenerateKeyPair_GeneratesAndReloads(t *testing.T) {
	dir := t.TempDir()
	privPath := dir + "/private.pem"
	pubPath := dir + "/public.pem"

	generated, err := LoadOrGenerateKeyPair(privPath, pubPath)
	require.NoError(t, err)
	assert.NotEmpty(t, generated.PublicPEM)

	reloaded, err := LoadOrGenerateKeyPair(privPath, pubPath)
	require.NoError(t, err)
	assert.Equal(t, generated.Private.D, reloaded.Private.D)
	assert.Equal(t, generated.PublicPEM, reloaded.PublicPEM)

	parsed, err := ParsePublicKeyPEM(generated.PublicPEM)
	require.NoError(t, err)
	assert.Equal(t, generated.Public.N, parsed.N)
}
