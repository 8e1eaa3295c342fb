package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"
)

// TURNCredential is the short-lived username/credential pair minted for a
// client's ICE configuration, per the coturn long-term-credential scheme:
// username is "<unix-expiry>" and credential is base64(HMAC-SHA1(secret, username)).
type TURNCredential struct {
	Username string
	Password string
}

// MintTURNCredential derives a time-limited TURN credential from secret,
// valid until now+ttl.
func MintTURNCredential(secret string, ttl time.Duration, now time.Time) TURNCredential {
	username := fmt.Sprintf("%d", now.Add(ttl).Unix())
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	password := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return TURNCredential{Username: username, Password: password}
}
