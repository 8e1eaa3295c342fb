package cleanup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitteredRemoveDateStaysWithinWindow(t *testing.T) {
	base := time.Now()
	for i := 0; i < 50; i++ {
		got := JitteredRemoveDate(base)
		assert.True(t, !got.Before(base), "jittered date must not precede base")
		assert.True(t, got.Before(base.Add(24*time.Hour+time.Second)), "jittered date must stay within 0-86400s of base")
	}
}

func TestJitteredRemoveDateVaries(t *testing.T) {
	base := time.Now()
	seen := make(map[int64]bool)
	for i := 0; i < 20; i++ {
		seen[JitteredRemoveDate(base).Unix()] = true
	}
	assert.Greater(t, len(seen), 1, "jitter should not always produce the same offset")
}
