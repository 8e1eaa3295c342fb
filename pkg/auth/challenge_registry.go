package auth

import (
	"sync"
	"time"

	scrypto "github.com/lrcom/signal-core/pkg/crypto"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

// ChallengeRegistry holds one-shot, RAM-only login challenges. Entries are
// consumed atomically on finalize and swept on a timer once expired.
type ChallengeRegistry struct {
	mu  sync.Mutex
	m   map[string]*models.Challenge
	ttl time.Duration
}

func NewChallengeRegistry(ttl time.Duration) *ChallengeRegistry {
	return &ChallengeRegistry{m: make(map[string]*models.Challenge), ttl: ttl}
}

// New generates a nonce for userID and stores the challenge, returning its
// id and the nonce so the caller can encrypt it to the user's public key.
func (r *ChallengeRegistry) New(userID string) (challengeID string, nonce []byte, err error) {
	nonce, err = scrypto.NewNonce()
	if err != nil {
		return "", nil, err
	}
	challengeID = store.NewID()
	r.mu.Lock()
	r.m[challengeID] = &models.Challenge{
		ID:        challengeID,
		UserID:    userID,
		Nonce:     nonce,
		ExpiresAt: time.Now().Add(r.ttl),
	}
	r.mu.Unlock()
	return challengeID, nonce, nil
}

// Consume fetches and atomically deletes the challenge; ok is false if
// missing or expired.
func (r *ChallengeRegistry) Consume(challengeID string) (*models.Challenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, found := r.m[challengeID]
	if !found {
		return nil, false
	}
	delete(r.m, challengeID)
	if time.Now().After(c.ExpiresAt) {
		return nil, false
	}
	return c, true
}

// Sweep runs forever, deleting expired-but-never-consumed challenges every
// interval until stop is closed. Callers launch it with
// `go registry.Sweep(ctx.Done(), interval)`.
func (r *ChallengeRegistry) Sweep(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.mu.Lock()
			for id, c := range r.m {
				if now.After(c.ExpiresAt) {
					delete(r.m, id)
				}
			}
			r.mu.Unlock()
		}
	}
}
