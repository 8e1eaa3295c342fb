package hub

import (
	"testing"

	"github.com/lrcom/signal-core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptLRUGetPut(t *testing.T) {
	c := newReceiptLRU(2)

	_, ok := c.Get("c1")
	assert.False(t, ok)

	c.Put("c1", models.Receipt{CMsgID: "c1", OK: true})
	got, ok := c.Get("c1")
	require.True(t, ok)
	assert.True(t, got.OK)
}

func TestReceiptLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := newReceiptLRU(2)
	c.Put("c1", models.Receipt{CMsgID: "c1"})
	c.Put("c2", models.Receipt{CMsgID: "c2"})

	// touch c1 so c2 becomes the least-recently-used entry
	_, _ = c.Get("c1")

	c.Put("c3", models.Receipt{CMsgID: "c3"})

	_, ok := c.Get("c2")
	assert.False(t, ok, "c2 should have been evicted")

	_, ok = c.Get("c1")
	assert.True(t, ok, "c1 was touched after c2 and should survive")

	_, ok = c.Get("c3")
	assert.True(t, ok)
}

func TestReceiptLRUPutOverwritesExisting(t *testing.T) {
	c := newReceiptLRU(2)
	c.Put("c1", models.Receipt{CMsgID: "c1", OK: false, Code: "first"})
	c.Put("c1", models.Receipt{CMsgID: "c1", OK: true, Code: "second"})

	got, ok := c.Get("c1")
	require.True(t, ok)
	assert.True(t, got.OK)
	assert.Equal(t, "second", got.Code)
}
