package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// KeyPair is an RSA key used to mint access tokens in tests.
type KeyPair struct {
	Private *rsa.PrivateKey
}

// NewKeyPair generates a 2048-bit RSA key.
func NewKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate RSA key")
	return &KeyPair{Private: key}
}

// Public returns the verification key.
func (k *KeyPair) Public() *rsa.PublicKey {
	return &k.Private.PublicKey
}

// PublicDERBase64 encodes the public key the way identity providers publish it.
func (k *KeyPair) PublicDERBase64(t *testing.T) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(k.Public())
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

// PublicPEM encodes the public key as a PEM block.
func (k *KeyPair) PublicPEM(t *testing.T) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(k.Public())
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// SignToken mints an RS256 token carrying email and realm_access.roles.
func (k *KeyPair) SignToken(t *testing.T, email string, roles ...string) string {
	t.Helper()
	return k.SignClaims(t, jwt.MapClaims{
		"sub":          "user-" + email,
		"email":        email,
		"realm_access": map[string]any{"roles": roles},
		"iat":          time.Now().Unix(),
		"exp":          time.Now().Add(time.Hour).Unix(),
	})
}

// SignClaims mints an RS256 token with arbitrary claims.
func (k *KeyPair) SignClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(k.Private)
	require.NoError(t, err, "failed to sign token")
	return signed
}

// BearerHeader formats a token for the Authorization header.
func BearerHeader(token string) string {
	return "Bearer " + token
}
