// Package hub implements the Realtime Fabric: the registry of live socket
// connections, best-effort and ack-based reliable delivery, and the inbound
// frame dispatcher. It is the server-side counterpart of the teacher's
// pkg/hub package, generalized from a single ChatRooms broadcast table to a
// per-user runtime that also carries call/signal traffic.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lrcom/signal-core/config"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

// CallRouter receives call/signal frames dispatched off a socket. It is
// implemented by pkg/callroom; the dependency is inverted through this
// interface so callroom can depend on hub for delivery without an import
// cycle.
type CallRouter interface {
	HandleFrame(userID, sessionID string, frame models.InboundFrame)
	// UserDisconnected lets the engine fold a hung-up call/queue entry when
	// any one of a user's sockets drops.
	UserDisconnected(userID, sessionID string)
}

// UserRuntime is the live state the fabric keeps for one user: every
// connected session's socket, plus the idempotency receipt cache shared
// across that user's sessions.
type UserRuntime struct {
	sessions map[string]*Socket // sessionId -> socket
	receipts *receiptLRU
}

// Fabric is the single registry backing every live connection. One mutex
// guards all of it, matching the session registry's "no per-entity locks to
// order" redesign rather than the teacher's separate Clients/ChatRooms maps.
type Fabric struct {
	mu       sync.RWMutex
	users    map[string]*UserRuntime
	store    *store.Store
	logger   *slog.Logger
	cfg      config.WebSocketConfig
	router   CallRouter
	upgrader websocket.Upgrader
	instanceID string
}

func NewFabric(st *store.Store, cfg config.WebSocketConfig, logger *slog.Logger) *Fabric {
	return &Fabric{
		users:      make(map[string]*UserRuntime),
		store:      st,
		logger:     logger,
		cfg:        cfg,
		instanceID: store.NewID(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetRouter wires the Call Room Engine in after construction, avoiding an
// import cycle between pkg/hub and pkg/callroom.
func (f *Fabric) SetRouter(r CallRouter) {
	f.router = r
}

// Serve upgrades the connection and starts its read/write pumps. userID and
// sessionID have already been authenticated by the caller (WSHandler resolves
// the upgrade request's token query parameter against the session registry).
func (f *Fabric) Serve(w http.ResponseWriter, r *http.Request, userID, sessionID string) error {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	sock := newSocket(f, conn, userID, sessionID)

	f.mu.Lock()
	ur, ok := f.users[userID]
	if !ok {
		ur = &UserRuntime{sessions: make(map[string]*Socket), receipts: newReceiptLRU(f.cfg.ReceiptLRUCap)}
		f.users[userID] = ur
	}
	if old, exists := ur.sessions[sessionID]; exists {
		// Same session reconnecting on a new socket: the data-model invariant
		// is one live socket per session, so the stale one is retired first.
		old.closeSend()
	}
	ur.sessions[sessionID] = sock
	f.mu.Unlock()

	f.logger.Info("socket registered", "userId", userID, "sessionId", sessionID)

	hello := models.OutboundFrame{Type: models.WSOutHello, Payload: models.HelloPayload{UserID: userID}}
	sock.enqueue(mustMarshal(hello))

	go sock.writePump()
	go sock.readPump()
	return nil
}

func (f *Fabric) unregister(s *Socket) {
	f.mu.Lock()
	ur, ok := f.users[s.UserID]
	var lastSession bool
	if ok {
		if cur, exists := ur.sessions[s.SessionID]; exists && cur == s {
			delete(ur.sessions, s.SessionID)
		}
		lastSession = len(ur.sessions) == 0
		if lastSession {
			delete(f.users, s.UserID)
		}
	}
	f.mu.Unlock()

	if f.router != nil {
		f.router.UserDisconnected(s.UserID, s.SessionID)
	}
	if lastSession {
		f.logger.Info("user went offline", "userId", s.UserID)
	}
}

// IsOnline reports whether the user has at least one live socket.
func (f *Fabric) IsOnline(userID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ur, ok := f.users[userID]
	return ok && len(ur.sessions) > 0
}

// SendBestEffort fans frame out to every live socket of userID, dropping
// silently for anyone offline (spec.md §4.5 best-effort delivery mode).
func (f *Fabric) SendBestEffort(userID string, frame models.OutboundFrame) {
	f.sendRawBestEffort(userID, mustMarshal(frame))
}

func (f *Fabric) localSockets(userID string) []*Socket {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ur, ok := f.users[userID]
	if !ok {
		return nil
	}
	socks := make([]*Socket, 0, len(ur.sessions))
	for _, s := range ur.sessions {
		socks = append(socks, s)
	}
	return socks
}

func (f *Fabric) sendRawBestEffort(userID string, payload []byte) {
	for _, s := range f.localSockets(userID) {
		s.enqueue(payload)
	}
}

func (f *Fabric) sendRawReliable(userID, msgID string, payload []byte) {
	for _, s := range f.localSockets(userID) {
		s.addPendingReliable(msgID, payload)
		s.enqueue(payload)
	}
}

// SendToSession delivers to exactly one session, e.g. a receipt or a call
// signaling relay frame restricted to the controlling session.
func (f *Fabric) SendToSession(userID, sessionID string, frame models.OutboundFrame) {
	f.mu.RLock()
	ur, ok := f.users[userID]
	var sock *Socket
	if ok {
		sock = ur.sessions[sessionID]
	}
	f.mu.RUnlock()
	if sock != nil {
		sock.enqueue(mustMarshal(frame))
	}
}

// SendReliableToSession delivers frame to exactly one session with
// resend-until-ack semantics, for events scoped to a single evicted session
// (e.g. force-logout) rather than the whole user.
func (f *Fabric) SendReliableToSession(userID, sessionID string, frame models.OutboundFrame) {
	if frame.MsgID == "" {
		frame.MsgID = store.NewID()
	}
	payload := mustMarshal(frame)

	f.mu.RLock()
	ur, ok := f.users[userID]
	var sock *Socket
	if ok {
		sock = ur.sessions[sessionID]
	}
	f.mu.RUnlock()

	if sock != nil {
		sock.addPendingReliable(frame.MsgID, payload)
		sock.enqueue(payload)
	}
}

// SendForceLogout is SendReliableToSession plus the 200ms delayed close
// spec.md §4.5 calls for: enough time for the client to read the frame
// before the socket goes away under it.
func (f *Fabric) SendForceLogout(userID, sessionID string, payload models.ForceLogoutPayload) {
	frame := models.OutboundFrame{Type: models.WSOutForceLogout, Payload: payload}
	if frame.MsgID == "" {
		frame.MsgID = store.NewID()
	}
	f.SendReliableToSession(userID, sessionID, frame)

	f.mu.RLock()
	ur, ok := f.users[userID]
	var sock *Socket
	if ok {
		sock = ur.sessions[sessionID]
	}
	f.mu.RUnlock()
	if sock == nil {
		return
	}
	time.AfterFunc(200*time.Millisecond, func() {
		sock.conn.Close()
	})
}

// SendAllExceptSession fans out to every other session of userID; used for
// cross-device notifications like accountUpdated and incomingCallCancelled.
func (f *Fabric) SendAllExceptSession(userID, exceptSessionID string, frame models.OutboundFrame) {
	payload := mustMarshal(frame)
	f.mu.RLock()
	ur, ok := f.users[userID]
	var socks []*Socket
	if ok {
		for id, s := range ur.sessions {
			if id == exceptSessionID {
				continue
			}
			socks = append(socks, s)
		}
	}
	f.mu.RUnlock()
	for _, s := range socks {
		s.enqueue(payload)
	}
}

// CachedReceipt returns a previously-synthesized receipt for cMsgId, if any.
func (f *Fabric) CachedReceipt(userID, cMsgID string) (models.Receipt, bool) {
	if cMsgID == "" {
		return models.Receipt{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ur, ok := f.users[userID]
	if !ok {
		return models.Receipt{}, false
	}
	return ur.receipts.Get(cMsgID)
}

// CacheReceipt records r under its own CMsgID for future idempotent replay.
func (f *Fabric) CacheReceipt(userID string, r models.Receipt) {
	if r.CMsgID == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ur, ok := f.users[userID]
	if !ok {
		return
	}
	ur.receipts.Put(r.CMsgID, r)
}

// RunResendWheel is the single central timer driving reliable-delivery
// resends for every socket (spec.md §9: replace per-socket timers with one
// wheel). It is a no-op tick for any socket with nothing pending. Callers
// launch it once with `go fabric.RunResendWheel(ctx)`.
func (f *Fabric) RunResendWheel(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.ReliableResend)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.resendDue()
		}
	}
}

func (f *Fabric) resendDue() {
	f.mu.RLock()
	socks := make([]*Socket, 0)
	for _, ur := range f.users {
		for _, s := range ur.sessions {
			socks = append(socks, s)
		}
	}
	f.mu.RUnlock()

	for _, s := range socks {
		for _, payload := range s.pendingPayloads() {
			s.enqueue(payload)
		}
	}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only hand-built payload structs ever reach here; a marshal error
		// means a programming mistake, not a runtime condition to recover from.
		panic(err)
	}
	return b
}
