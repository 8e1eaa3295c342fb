// Package crypto implements the client-public-key handling the Identity &
// Session Registry needs: canonicalizing a minimal RSA JWK into a
// byte-stable form, and encrypting login-challenge nonces to it with
// RSA-OAEP-SHA256.
package crypto

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// CanonicalJWK is the normalized, byte-stable on-disk form of a client's
// public key: fixed field order, ext:true, key_ops:["encrypt"]. Two
// semantically-equal JWKs with differently-ordered fields canonicalize to
// the identical string, which is what makes username+publicKey lookups in
// login-init exact-match comparisons.
func CanonicalJWK(raw string) (string, error) {
	key, err := ParsePublicKey(raw)
	if err != nil {
		return "", err
	}
	n, e, err := rsaComponents(key)
	if err != nil {
		return "", err
	}
	// encoding/json preserves struct field order, which is what makes this
	// canonicalization byte-stable across equivalent inputs.
	canon := struct {
		Kty    string   `json:"kty"`
		N      string   `json:"n"`
		E      string   `json:"e"`
		Ext    bool     `json:"ext"`
		KeyOps []string `json:"key_ops"`
	}{
		Kty:    "RSA",
		N:      n,
		E:      e,
		Ext:    true,
		KeyOps: []string{"encrypt"},
	}
	b, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParsePublicKey parses a minimal {kty:"RSA", n, e} JWK string (any field
// order, extra fields ignored) into a jwk.Key suitable for OAEP encryption.
func ParsePublicKey(raw string) (jwk.Key, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty public key")
	}
	key, err := jwk.ParseKey([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parse jwk: %w", err)
	}
	if key.KeyType() != jwk.RSA {
		return nil, fmt.Errorf("unsupported key type %q, want RSA", key.KeyType())
	}
	return key, nil
}

func rsaComponents(key jwk.Key) (n string, e string, err error) {
	var raw struct {
		N string `json:"n"`
		E string `json:"e"`
	}
	b, err := json.Marshal(key)
	if err != nil {
		return "", "", err
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return "", "", err
	}
	if raw.N == "" || raw.E == "" {
		return "", "", fmt.Errorf("jwk missing n or e")
	}
	return raw.N, raw.E, nil
}
