package models

import "time"

// User is the account entity. The server never sees plaintext message
// content or password material: PublicKeyJWK is the client's canonicalized
// RSA-OAEP public key, and Vault is an opaque, client-encrypted settings
// blob (<=100KB).
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PublicKeyJWK string    `json:"publicKey" db:"public_key_jwk"`
	Vault        string    `json:"vault" db:"vault"`
	RemoveDate   time.Time `json:"-" db:"remove_date"`
	Hidden       bool      `json:"hiddenMode" db:"hidden"`
	Introvert    bool      `json:"introvertMode" db:"introvert"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// RegisterRequest is the payload for POST /api/auth/register.
type RegisterRequest struct {
	Username   string `json:"username"`
	PublicKey  string `json:"publicKey"`
	RemoveDate string `json:"removeDate"`
	Vault      string `json:"vault"`
}

// AuthResponse is returned by register and login-final: it carries a fresh
// bearer session plus the account's public flags.
type AuthResponse struct {
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expiresAt"`
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	HiddenMode    bool      `json:"hiddenMode"`
	IntrovertMode bool      `json:"introvertMode"`
	Vault         string    `json:"vault,omitempty"`
}

// LoginInitRequest is POST /api/auth/login-init's payload.
type LoginInitRequest struct {
	Username  string `json:"username"`
	PublicKey string `json:"publicKey"`
}

// LoginInitResponse carries the RSA-OAEP-encrypted nonce; the client never
// transmits its private key, only proves possession by decrypting this.
type LoginInitResponse struct {
	ChallengeID           string `json:"challengeId"`
	EncryptedChallengeB64 string `json:"encryptedChallengeB64"`
}

// LoginFinalRequest completes the challenge-response handshake.
type LoginFinalRequest struct {
	ChallengeID string `json:"challengeId"`
	Response    string `json:"response"`
}

// CheckUsernameRequest/Response back POST /api/auth/check-username.
type CheckUsernameRequest struct {
	Username string `json:"username"`
}

type CheckUsernameResponse struct {
	Exists bool `json:"exists"`
}

// AccountUpdateRequest covers the account profile mutation endpoint; each
// field is optional, nil meaning "leave unchanged".
type AccountUpdateRequest struct {
	Vault      *string `json:"vault,omitempty"`
	RemoveDate *string `json:"removeDate,omitempty"`
}

// SetModeRequest toggles a boolean account flag: hidden mode or introvert
// mode, depending on which endpoint decodes it.
type SetModeRequest struct {
	Enabled bool `json:"enabled"`
}

type PresenceRequest struct {
	UserIDs []string `json:"userIds"`
}

type PresenceResponse struct {
	OnlineUserIDs []string `json:"onlineUserIds"`
	BusyUserIDs   []string `json:"busyUserIds"`
	ServerVersion string   `json:"serverVersion"`
}
