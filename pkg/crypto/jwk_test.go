package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

func mustRSAJWKString(t *testing.T) string {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := jwk.PublicKeyOf(priv)
	require.NoError(t, err)
	b, err := json.Marshal(key)
	require.NoError(t, err)
	return string(b)
}

func TestCanonicalJWKIsFieldOrderInvariant(t *testing.T) {
	raw := mustRSAJWKString(t)

	canonA, err := CanonicalJWK(raw)
	require.NoError(t, err)

	key, err := jwk.ParseKey([]byte(raw))
	require.NoError(t, err)
	n, e, err := rsaComponents(key)
	require.NoError(t, err)

	reordered := `{"e":"` + e + `","kty":"RSA","n":"` + n + `"}`
	canonB, err := CanonicalJWK(reordered)
	require.NoError(t, err)

	require.Equal(t, canonA, canonB, "two field orderings of an equivalent JWK must canonicalize identically")
}

func TestCanonicalJWKRejectsNonRSA(t *testing.T) {
	_, err := CanonicalJWK(`{"kty":"oct","k":"c2VjcmV0"}`)
	require.Error(t, err)
}

func TestParsePublicKeyRejectsEmpty(t *testing.T) {
	_, err := ParsePublicKey("   ")
	require.Error(t, err)
}
