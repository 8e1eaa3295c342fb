package crypto

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMintTURNCredentialDeterministic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := MintTURNCredential("shared-secret", time.Hour, now)
	b := MintTURNCredential("shared-secret", time.Hour, now)
	assert.Equal(t, a, b, "same secret/ttl/now must mint an identical credential")

	wantUsername := "1700003600"
	assert.Equal(t, wantUsername, a.Username)

	_, err := base64.StdEncoding.DecodeString(a.Password)
	assert.NoError(t, err, "password must be valid base64")
}

func TestMintTURNCredentialVariesWithSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := MintTURNCredential("secret-one", time.Hour, now)
	b := MintTURNCredential("secret-two", time.Hour, now)
	assert.Equal(t, a.Username, b.Username, "username is time-derived, independent of secret")
	assert.NotEqual(t, a.Password, b.Password)
}
