package hub

import (
	"container/list"

	"github.com/lrcom/signal-core/pkg/models"
)

// receiptLRU caches synthesized receipts keyed by cMsgId, capped at a fixed
// size, so a client's duplicate request replays the same receipt instead of
// re-executing the side effect (spec.md §4.5 "client idempotency").
type receiptLRU struct {
	cap   int
	items map[string]*list.Element
	order *list.List // front = most recently used
}

type receiptEntry struct {
	key     string
	receipt models.Receipt
}

func newReceiptLRU(capacity int) *receiptLRU {
	return &receiptLRU{cap: capacity, items: make(map[string]*list.Element), order: list.New()}
}

func (c *receiptLRU) Get(cMsgID string) (models.Receipt, bool) {
	el, ok := c.items[cMsgID]
	if !ok {
		return models.Receipt{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*receiptEntry).receipt, true
}

func (c *receiptLRU) Put(cMsgID string, r models.Receipt) {
	if el, ok := c.items[cMsgID]; ok {
		el.Value.(*receiptEntry).receipt = r
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&receiptEntry{key: cMsgID, receipt: r})
	c.items[cMsgID] = el
	for c.order.Len() > c.cap {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.items, back.Value.(*receiptEntry).key)
	}
}
