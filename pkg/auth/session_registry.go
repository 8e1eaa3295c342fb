// Package auth is the Identity & Session Registry: challenge-response login,
// opaque bearer sessions, and the HTTP middleware that resolves a token to
// (userId, sessionId). None of this state is persisted — a server restart
// forces every client to re-authenticate.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lrcom/signal-core/pkg/models"
)

// SessionRegistry backs two operations: O(1) token lookup, and eviction of
// the oldest session past a per-user cap. Both maps are guarded by one
// mutex, per the "ad hoc per-user maps" redesign note — there is exactly
// one lock to reason about here, not one per map.
type SessionRegistry struct {
	mu         sync.Mutex
	byToken    map[string]*models.Session
	byUser     map[string][]*models.Session // ordered ascending by IssuedAt
	tokenTTL   time.Duration
	maxPerUser int
}

func NewSessionRegistry(tokenTTL time.Duration, maxPerUser int) *SessionRegistry {
	return &SessionRegistry{
		byToken:    make(map[string]*models.Session),
		byUser:     make(map[string][]*models.Session),
		tokenTTL:   tokenTTL,
		maxPerUser: maxPerUser,
	}
}

func newToken() (string, error) {
	buf := make([]byte, 32) // 256 bits
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newSessionID() (string, error) {
	buf := make([]byte, 18) // 144 bits
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue mints a fresh session for userID, evicting the oldest session(s) by
// ascending IssuedAt if the user is now over the concurrent-session cap.
// Evicted sessions are returned so the caller can fan out
// signedForceLogout.
func (r *SessionRegistry) Issue(userID string) (*models.Session, []*models.Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, nil, err
	}
	sessionID, err := newSessionID()
	if err != nil {
		return nil, nil, err
	}
	now := time.Now()
	sess := &models.Session{
		Token:     token,
		SessionID: sessionID,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(r.tokenTTL),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byToken[token] = sess
	r.byUser[userID] = append(r.byUser[userID], sess)

	var evicted []*models.Session
	sessions := r.byUser[userID]
	for len(sessions) > r.maxPerUser {
		oldest := sessions[0]
		sessions = sessions[1:]
		delete(r.byToken, oldest.Token)
		evicted = append(evicted, oldest)
	}
	r.byUser[userID] = sessions

	return sess, evicted, nil
}

// Lookup resolves a bearer token to its session, rejecting expired ones.
func (r *SessionRegistry) Lookup(token string) (*models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.byToken[token]
	if !ok {
		return nil, false
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, false
	}
	return sess, true
}

// Rotate mints a new token for the same sessionId/issuedAt with a fresh
// expiry, backing POST /api/signed/session/refresh.
func (r *SessionRegistry) Rotate(oldToken string) (*models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.byToken[oldToken]
	if !ok {
		return nil, false
	}
	newTok, err := newToken()
	if err != nil {
		return nil, false
	}
	delete(r.byToken, oldToken)
	rotated := &models.Session{
		Token:     newTok,
		SessionID: old.SessionID,
		UserID:    old.UserID,
		IssuedAt:  old.IssuedAt,
		ExpiresAt: time.Now().Add(r.tokenTTL),
	}
	r.byToken[newTok] = rotated
	sessions := r.byUser[old.UserID]
	for i, s := range sessions {
		if s.SessionID == old.SessionID {
			sessions[i] = rotated
			break
		}
	}
	return rotated, true
}

// RevokeAllExcept evicts every session for userID except keepSessionID,
// returning the evicted sessions for force-logout fan-out.
func (r *SessionRegistry) RevokeAllExcept(userID, keepSessionID string) []*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []*models.Session
	var evicted []*models.Session
	for _, s := range r.byUser[userID] {
		if s.SessionID == keepSessionID {
			kept = append(kept, s)
			continue
		}
		delete(r.byToken, s.Token)
		evicted = append(evicted, s)
	}
	r.byUser[userID] = kept
	return evicted
}

// Sessions returns a snapshot of a user's sessions ordered by IssuedAt.
func (r *SessionRegistry) Sessions(userID string) []*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Session, len(r.byUser[userID]))
	copy(out, r.byUser[userID])
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}
