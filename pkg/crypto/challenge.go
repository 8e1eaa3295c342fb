package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// NonceSize is the length in bytes of a login-challenge nonce (spec.md §3:
// "256-bit random nonce").
const NonceSize = 32

// NewNonce generates a fresh random challenge nonce.
func NewNonce() ([]byte, error) {
	buf := make([]byte, NonceSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return buf, nil
}

// EncryptChallenge encrypts nonce to the holder of publicKeyJWK using
// RSA-OAEP-SHA256, returning base64url (no padding) for wire transport. The
// server never possesses or derives a shared secret; only the owner of the
// matching private key can recover nonce.
func EncryptChallenge(publicKeyJWK string, nonce []byte) (string, error) {
	key, err := ParsePublicKey(publicKeyJWK)
	if err != nil {
		return "", err
	}
	var pub rsa.PublicKey
	if err := jwk.Export(key, &pub); err != nil {
		return "", fmt.Errorf("export rsa public key: %w", err)
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &pub, nonce, nil)
	if err != nil {
		return "", fmt.Errorf("oaep encrypt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// ConstantTimeEqual compares a client-submitted challenge response against
// the stored plaintext nonce without leaking timing information about where
// the two diverge.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
