package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestNewMessageIDIsLexicographicallyOrdered verifies the property message
// history pagination and the visibility-border check depend on: successive
// ids sort the same way chronologically and lexicographically.
func TestNewMessageIDIsLexicographicallyOrdered(t *testing.T) {
	first, err := NewMessageID()
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := NewMessageID()
	require.NoError(t, err)

	require.Less(t, first, second, "a later message id must sort after an earlier one")

	parsed, err := uuid.Parse(first)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewIDIsRandomAndUnordered(t *testing.T) {
	a := NewID()
	b := NewID()
	require.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(4), parsed.Version())
}
