package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeNewAndConsume(t *testing.T) {
	r := NewChallengeRegistry(time.Minute)
	id, nonce, err := r.New("u1")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, nonce, 32)

	c, ok := r.Consume(id)
	require.True(t, ok)
	assert.Equal(t, "u1", c.UserID)
	assert.Equal(t, nonce, c.Nonce)
}

// TestChallengeConsumeIsOneShot verifies testable property 1's "replaying
// the same challengeId fails" clause.
func TestChallengeConsumeIsOneShot(t *testing.T) {
	r := NewChallengeRegistry(time.Minute)
	id, _, err := r.New("u1")
	require.NoError(t, err)

	_, ok := r.Consume(id)
	require.True(t, ok)

	_, ok = r.Consume(id)
	assert.False(t, ok, "a consumed challenge must not be replayable")
}

func TestChallengeConsumeRejectsExpired(t *testing.T) {
	r := NewChallengeRegistry(-time.Second)
	id, _, err := r.New("u1")
	require.NoError(t, err)

	_, ok := r.Consume(id)
	assert.False(t, ok)
}

func TestChallengeConsumeRejectsUnknown(t *testing.T) {
	r := NewChallengeRegistry(time.Minute)
	_, ok := r.Consume("does-not-exist")
	assert.False(t, ok)
}

func TestChallengeSweepRemovesExpiredOnly(t *testing.T) {
	r := NewChallengeRegistry(10 * time.Millisecond)
	id, _, err := r.New("u1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	stop := make(chan struct{})
	go r.Sweep(stop, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(stop)

	r.mu.Lock()
	_, stillPresent := r.m[id]
	r.mu.Unlock()
	assert.False(t, stillPresent, "expired challenge must be swept")
}
