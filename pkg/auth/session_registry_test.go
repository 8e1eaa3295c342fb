package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndLookup(t *testing.T) {
	r := NewSessionRegistry(time.Hour, 3)
	sess, evicted, err := r.Issue("u1")
	require.NoError(t, err)
	assert.Empty(t, evicted)

	got, ok := r.Lookup(sess.Token)
	require.True(t, ok)
	assert.Equal(t, sess.SessionID, got.SessionID)
}

func TestLookupRejectsExpiredToken(t *testing.T) {
	r := NewSessionRegistry(-time.Second, 3)
	sess, _, err := r.Issue("u1")
	require.NoError(t, err)

	_, ok := r.Lookup(sess.Token)
	assert.False(t, ok, "a token already past its expiry must be rejected")
}

// TestIssueEvictsOldestBeyondCap verifies testable property 5: creating
// (cap+1) sessions for the same user evicts exactly the oldest one.
func TestIssueEvictsOldestBeyondCap(t *testing.T) {
	r := NewSessionRegistry(time.Hour, 2)

	first, _, err := r.Issue("u1")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, evicted, err := r.Issue("u1")
	require.NoError(t, err)
	assert.Empty(t, evicted, "still at cap, nothing to evict yet")
	time.Sleep(time.Millisecond)

	_, evicted, err = r.Issue("u1")
	require.NoError(t, err)
	require.Len(t, evicted, 1)
	assert.Equal(t, first.SessionID, evicted[0].SessionID)

	_, ok := r.Lookup(first.Token)
	assert.False(t, ok)
	_, ok = r.Lookup(second.Token)
	assert.True(t, ok)
}

func TestRotateKeepsSessionIdentity(t *testing.T) {
	r := NewSessionRegistry(time.Hour, 3)
	sess, _, err := r.Issue("u1")
	require.NoError(t, err)

	rotated, ok := r.Rotate(sess.Token)
	require.True(t, ok)
	assert.Equal(t, sess.SessionID, rotated.SessionID)
	assert.NotEqual(t, sess.Token, rotated.Token)

	_, ok = r.Lookup(sess.Token)
	assert.False(t, ok, "old token must no longer resolve after rotation")
	_, ok = r.Lookup(rotated.Token)
	assert.True(t, ok)
}

func TestRevokeAllExceptKeepsOnlyNamedSession(t *testing.T) {
	r := NewSessionRegistry(time.Hour, 5)
	s1, _, _ := r.Issue("u1")
	s2, _, _ := r.Issue("u1")
	s3, _, _ := r.Issue("u1")

	evicted := r.RevokeAllExcept("u1", s2.SessionID)
	require.Len(t, evicted, 2)

	_, ok := r.Lookup(s1.Token)
	assert.False(t, ok)
	_, ok = r.Lookup(s3.Token)
	assert.False(t, ok)
	_, ok = r.Lookup(s2.Token)
	assert.True(t, ok)
}

func TestSessionsOrderedByIssuedAt(t *testing.T) {
	r := NewSessionRegistry(time.Hour, 5)
	s1, _, _ := r.Issue("u1")
	time.Sleep(time.Millisecond)
	s2, _, _ := r.Issue("u1")

	got := r.Sessions("u1")
	require.Len(t, got, 2)
	assert.Equal(t, s1.SessionID, got[0].SessionID)
	assert.Equal(t, s2.SessionID, got[1].SessionID)
}
