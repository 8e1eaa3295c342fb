package hub

import (
	"context"
	"encoding/json"

	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

// fabricEvent is the cross-instance envelope published on store.FabricChannel.
// Origin lets a subscriber skip events it produced itself, since the
// producing instance has already delivered locally. FrameJSON carries the
// already-marshaled wire bytes rather than models.OutboundFrame itself,
// since OutboundFrame's MarshalJSON flattens Payload and has no matching
// Unmarshal side to reverse that on the receiving instance.
type fabricEvent struct {
	Origin    string          `json:"origin"`
	UserID    string          `json:"userId"`
	MsgID     string          `json:"msgId,omitempty"`
	FrameJSON json.RawMessage `json:"frame"`
	Reliable  bool            `json:"reliable"`
}

// PublishBestEffort delivers to userID's local sockets and publishes to
// other instances so their local sockets for the same user get it too.
func (f *Fabric) PublishBestEffort(ctx context.Context, userID string, frame models.OutboundFrame) {
	payload := mustMarshal(frame)
	f.sendRawBestEffort(userID, payload)
	f.publish(ctx, userID, frame.MsgID, payload, false)
}

// PublishReliable is PublishBestEffort's ack-based counterpart.
func (f *Fabric) PublishReliable(ctx context.Context, userID string, frame models.OutboundFrame) {
	if frame.MsgID == "" {
		frame.MsgID = store.NewID()
	}
	payload := mustMarshal(frame)
	f.sendRawReliable(userID, frame.MsgID, payload)
	f.publish(ctx, userID, frame.MsgID, payload, true)
}

func (f *Fabric) publish(ctx context.Context, userID, msgID string, payload []byte, reliable bool) {
	ev := fabricEvent{Origin: f.instanceID, UserID: userID, MsgID: msgID, FrameJSON: payload, Reliable: reliable}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := f.store.PublishFabricEvent(ctx, b); err != nil {
		f.logger.Warn("publish fabric event failed", "error", err)
	}
}

// ListenFabric runs for the process lifetime, forwarding other instances'
// events to this instance's locally-connected sockets. Callers launch it
// with `go fabric.ListenFabric(ctx)`.
func (f *Fabric) ListenFabric(ctx context.Context) {
	sub := f.store.SubscribeFabricEvents(ctx)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev fabricEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.Warn("malformed fabric event", "error", err)
				continue
			}
			if ev.Origin == f.instanceID {
				continue
			}
			if ev.Reliable {
				f.sendRawReliable(ev.UserID, ev.MsgID, ev.FrameJSON)
			} else {
				f.sendRawBestEffort(ev.UserID, ev.FrameJSON)
			}
		}
	}
}
