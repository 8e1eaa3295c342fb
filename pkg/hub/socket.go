package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lrcom/signal-core/pkg/models"
)

// pendingDelivery is one in-flight reliable message awaiting an ack.
type pendingDelivery struct {
	msgID   string
	payload []byte
}

// Socket is one physical connection: exactly one (user, session) pair per
// the data-model invariant. ReadPump/WritePump mirror the teacher's
// client.go. Reliable-delivery resends are NOT driven by a per-socket
// timer (spec.md §9 flags that pattern for replacement); pending is instead
// scanned by Fabric's single central resend wheel.
type Socket struct {
	fabric    *Fabric
	UserID    string
	SessionID string
	conn      *websocket.Conn
	send      chan []byte

	mu      sync.Mutex
	pending map[string]*pendingDelivery // msgId -> payload, resent until acked

	closeOnce sync.Once
}

func newSocket(fabric *Fabric, conn *websocket.Conn, userID, sessionID string) *Socket {
	return &Socket{
		fabric:    fabric,
		conn:      conn,
		UserID:    userID,
		SessionID: sessionID,
		send:      make(chan []byte, 32),
		pending:   make(map[string]*pendingDelivery),
	}
}

func (s *Socket) readPump() {
	cfg := s.fabric.cfg
	defer func() {
		s.fabric.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(cfg.StaleSocketAfter))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(cfg.StaleSocketAfter))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		frame, err := models.DecodeInboundFrame(data)
		if err != nil {
			// malformed frame: ignored per spec.md §7
			continue
		}
		s.fabric.dispatch(s, frame)
	}
}

func (s *Socket) writePump() {
	cfg := s.fabric.cfg
	ticker := time.NewTicker(cfg.HeartbeatPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue is the best-effort send path: serialize and push once, dropping
// silently and closing the send channel if the socket's buffer is full
// (the teacher hub's non-blocking select{default: close} idiom). It must
// never unregister synchronously here: enqueue runs on whatever goroutine
// is fanning a frame out (often the call engine, holding its own lock), and
// unregister calls back into the router. Closing send instead just wakes
// writePump, which tears the connection down; readPump's own defer is what
// actually unregisters the socket, off of its own goroutine.
func (s *Socket) enqueue(payload []byte) {
	select {
	case s.send <- payload:
	default:
		s.closeSend()
	}
}

// closeSend closes the send channel exactly once, however many call sites
// (buffer overflow, a reconnecting session) race to retire this socket.
func (s *Socket) closeSend() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

// addPendingReliable registers payload under msgID for resend-until-ack by
// Fabric's central resend wheel.
func (s *Socket) addPendingReliable(msgID string, payload []byte) {
	s.mu.Lock()
	s.pending[msgID] = &pendingDelivery{msgID: msgID, payload: payload}
	s.mu.Unlock()
}

// ack clears a pending reliable delivery.
func (s *Socket) ack(msgID string) {
	s.mu.Lock()
	delete(s.pending, msgID)
	s.mu.Unlock()
}

// pendingPayloads snapshots the current pending reliable deliveries, for the
// resend wheel to redeliver without holding the socket lock during I/O.
func (s *Socket) pendingPayloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.payload)
	}
	return out
}
