package callroom

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/lrcom/signal-core/pkg/hub"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

// Engine is the Call Room Engine: one registry of rooms and per-user call
// state, guarded by a single mutex. spec.md §5 allows either fine-grained
// per-room/per-user locks taken in ascending user-id order, or a
// single-writer discipline; at this scale a single lock is simpler, so
// that is the choice made here (see DESIGN.md). This is only deadlock-free
// because fabric sends (SendBestEffort/SendToSession, reachable from under
// e.mu) never call back into the engine synchronously on the sending
// goroutine — see hub.Socket.enqueue's overflow path.
type Engine struct {
	mu     sync.Mutex
	rooms  map[string]*room
	users  map[string]*userCallState
	fabric *hub.Fabric
	store  *store.Store
	logger *slog.Logger
}

func NewEngine(fabric *hub.Fabric, st *store.Store, logger *slog.Logger) *Engine {
	return &Engine{
		rooms:  make(map[string]*room),
		users:  make(map[string]*userCallState),
		fabric: fabric,
		store:  st,
		logger: logger,
	}
}

// HandleFrame implements hub.CallRouter. It decodes the type-specific
// payload and dispatches to the matching handler under the engine lock.
func (e *Engine) HandleFrame(userID, sessionID string, frame models.InboundFrame) {
	ctx := context.Background()
	e.mu.Lock()
	defer e.mu.Unlock()

	switch frame.Type {
	case models.WSInCallStart:
		var p models.CallStartPayload
		if json.Unmarshal(frame.Raw, &p) == nil {
			e.handleStart(ctx, userID, sessionID, p.To, frame.CMsgID)
		}
	case models.WSInCallAccept:
		e.handleAccept(userID, sessionID, frame.CMsgID)
	case models.WSInCallReject:
		e.handleReject(userID, sessionID, frame.CMsgID)
	case models.WSInCallHangup:
		e.handleHangup(userID, sessionID, frame.CMsgID)
	case models.WSInCallJoinRequest:
		var p models.CallJoinRequestPayload
		if json.Unmarshal(frame.Raw, &p) == nil {
			e.handleJoinRequest(userID, sessionID, p.Target, frame.CMsgID)
		}
	case models.WSInCallJoinCancel:
		e.handleJoinCancel(userID, sessionID, frame.CMsgID)
	case models.WSInCallJoinAccept:
		e.handleJoinAccept(userID, sessionID, frame.CMsgID)
	case models.WSInCallJoinReject:
		e.handleJoinReject(userID, sessionID, frame.CMsgID)
	case models.WSInSignal:
		var p models.SignalPayload
		if json.Unmarshal(frame.Raw, &p) == nil {
			e.handleSignal(userID, sessionID, p)
		}
	}
}

// UserDisconnected implements hub.CallRouter: a dropped socket folds any
// call/join state it was holding, per spec.md §4.5's connection-lifecycle
// paragraph.
func (e *Engine) UserDisconnected(userID, sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ucs, ok := e.users[userID]
	if !ok {
		return
	}
	stillOnline := e.fabric.IsOnline(userID)
	wasControlling := ucs.controllingSession == sessionID

	switch {
	case ucs.state == StatePendingJoin && !stillOnline:
		e.cancelJoinLocked(userID)
	case (ucs.state == StateInCall || ucs.state == StateRingingOut || ucs.state == StateRingingIn) && (!stillOnline || wasControlling):
		e.hangupLocked(userID)
	}
}

// IsBusy reports whether userID currently holds any room-occupying call
// state, for the presence endpoint's busyUserIds (spec.md §6). Pending-join
// is not busy: the user isn't in a room yet.
func (e *Engine) IsBusy(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ucs, ok := e.users[userID]
	if !ok {
		return false
	}
	return ucs.state == StateRingingOut || ucs.state == StateRingingIn || ucs.state == StateInCall
}

// emitReceipt sends (and caches, for idempotent replay) the generic receipt
// for a cMsgId-bearing action, per spec.md §4.5.
func (e *Engine) emitReceipt(userID, sessionID, cMsgID string, ok bool, code string) {
	if cMsgID == "" {
		return
	}
	r := models.Receipt{Type: models.WSOutReceipt, CMsgID: cMsgID, OK: ok, Code: code}
	e.fabric.CacheReceipt(userID, r)
	e.fabric.SendToSession(userID, sessionID, models.OutboundFrame{Type: models.WSOutReceipt, Payload: r})
}

// sendToRoomMember delivers to a room member's controlling session if one
// is set, else falls back to all of that user's sessions (spec.md §4.6).
func (e *Engine) sendToRoomMember(r *room, userID string, frame models.OutboundFrame) {
	if sess, ok := r.members[userID]; ok && sess != "" {
		e.fabric.SendToSession(userID, sess, frame)
		return
	}
	e.fabric.SendBestEffort(userID, frame)
}

// pickOwner chooses who answers the next join request: the room's previous
// owner if still a connected member, otherwise the first connected member
// in a deterministic (sorted) order. Returns "" if nobody is reachable.
func (e *Engine) pickOwner(r *room) string {
	if r.lastOwner != "" {
		if _, isMember := r.members[r.lastOwner]; isMember && e.fabric.IsOnline(r.lastOwner) {
			return r.lastOwner
		}
	}
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if e.fabric.IsOnline(id) {
			return id
		}
	}
	return ""
}
