package hub

import (
	"encoding/json"

	"github.com/lrcom/signal-core/pkg/models"
)

// dispatch handles the frame types the fabric itself owns (ack, ping) and
// hands everything else to the Call Room Engine. Unknown types get a
// not-ok receipt instead of being silently swallowed, per spec.md §9's note
// that protocol errors should be visible to the client.
func (f *Fabric) dispatch(s *Socket, frame models.InboundFrame) {
	switch frame.Type {
	case models.WSInAck:
		f.handleAck(s, frame)
	case models.WSInPing:
		s.enqueue(mustMarshal(models.OutboundFrame{Type: models.WSOutPong}))
	case models.WSInCallStart, models.WSInCallAccept, models.WSInCallReject, models.WSInCallHangup,
		models.WSInCallJoinRequest, models.WSInCallJoinCancel, models.WSInCallJoinAccept, models.WSInCallJoinReject,
		models.WSInSignal:
		f.routeToCallEngine(s, frame)
	default:
		f.replyUnknownType(s, frame)
	}
}

func (f *Fabric) handleAck(s *Socket, frame models.InboundFrame) {
	var p models.AckPayload
	if err := json.Unmarshal(frame.Raw, &p); err != nil || p.MsgID == "" {
		return
	}
	s.ack(p.MsgID)
}

func (f *Fabric) routeToCallEngine(s *Socket, frame models.InboundFrame) {
	if f.router == nil {
		f.replyUnknownType(s, frame)
		return
	}
	if cached, ok := f.CachedReceipt(s.UserID, frame.CMsgID); ok {
		s.enqueue(mustMarshal(models.OutboundFrame{Type: models.WSOutReceipt, Payload: cached}))
		return
	}
	f.router.HandleFrame(s.UserID, s.SessionID, frame)
}

func (f *Fabric) replyUnknownType(s *Socket, frame models.InboundFrame) {
	r := models.Receipt{Type: models.WSOutReceipt, CMsgID: frame.CMsgID, OK: false, Code: "UNKNOWN_TYPE"}
	f.CacheReceipt(s.UserID, r)
	s.enqueue(mustMarshal(models.OutboundFrame{Type: models.WSOutReceipt, Payload: r}))
}
