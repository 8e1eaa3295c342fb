package models

import "time"

// Session is the volatile bearer-token record backing the Identity &
// Session Registry. It never touches the relational store.
type Session struct {
	Token     string
	SessionID string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Challenge is the one-shot, RAM-only login nonce. Consumed on finalize or
// swept after ChallengeTTL.
type Challenge struct {
	ID        string
	UserID    string
	Nonce     []byte
	ExpiresAt time.Time
}

// RefreshResponse is returned by POST /api/signed/session/refresh.
type RefreshResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LogoutOtherDevicesRequest lets the caller choose whether the evicted
// sessions' clients should wipe their local vault as well as disconnecting.
type LogoutOtherDevicesRequest struct {
	WipeLocalKeys bool `json:"wipeLocalKeys"`
}
