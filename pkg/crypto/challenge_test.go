package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNonceIsFreshAndSized(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)

	assert.Len(t, a, NonceSize)
	assert.NotEqual(t, a, b, "two nonces must not collide")
}

func TestEncryptChallengeRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := jwk.PublicKeyOf(priv)
	require.NoError(t, err)
	raw, err := json.Marshal(key)
	require.NoError(t, err)
	nonce, err := NewNonce()
	require.NoError(t, err)

	ciphertext, err := EncryptChallenge(string(raw), nonce)
	require.NoError(t, err)
	assert.NotEmpty(t, ciphertext)

	sealed, err := base64.RawURLEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	opened, err := rsa.DecryptOAEP(sha256.New(), nil, priv, sealed, nil)
	require.NoError(t, err)
	assert.Equal(t, nonce, opened, "decrypting the envelope must yield the original nonce")
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("ab")))
}
