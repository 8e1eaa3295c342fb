package callroom

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lrcom/signal-core/config"
	"github.com/lrcom/signal-core/pkg/hub"
	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		WriteWait:        time.Second,
		HeartbeatPeriod:  time.Minute,
		StaleSocketAfter: time.Minute,
		ReliableResend:   time.Second,
		MaxMessageSize:   1 << 16,
		ReceiptLRUCap:    32,
	}
}

func newTestEngine() *Engine {
	fabric := hub.NewFabric(nil, testWSConfig(), testLogger())
	e := NewEngine(fabric, nil, testLogger())
	fabric.SetRouter(e)
	return e
}

// TestIsBusyReflectsOccupyingStatesOnly verifies testable property 9's
// "never auto-adds the caller" corollary: pending-join isn't busy, but every
// room-occupying state is.
func TestIsBusyReflectsOccupyingStatesOnly(t *testing.T) {
	e := newTestEngine()

	assert.False(t, e.IsBusy("ghost"), "an unknown user is never busy")

	e.mu.Lock()
	e.users["idle-join"] = &userCallState{state: StatePendingJoin}
	e.users["ringing-out"] = &userCallState{state: StateRingingOut}
	e.users["ringing-in"] = &userCallState{state: StateRingingIn}
	e.users["in-call"] = &userCallState{state: StateInCall}
	e.mu.Unlock()

	assert.False(t, e.IsBusy("idle-join"), "pending-join isn't in a room yet")
	assert.True(t, e.IsBusy("ringing-out"))
	assert.True(t, e.IsBusy("ringing-in"))
	assert.True(t, e.IsBusy("in-call"))
}

// TestHangupBeforeAcceptDissolvesRoomSilently covers concrete scenario S4: a
// caller hangs up before the callee accepts.
func TestHangupBeforeAcceptDissolvesRoomSilently(t *testing.T) {
	e := newTestEngine()

	e.mu.Lock()
	r := newRoom("room-1", "caller", "caller-sess", "callee")
	e.rooms["room-1"] = r
	e.users["caller"] = &userCallState{state: StateRingingOut, roomID: "room-1", controllingSession: "caller-sess"}
	e.users["callee"] = &userCallState{state: StateRingingIn, roomID: "room-1"}
	e.mu.Unlock()

	e.mu.Lock()
	e.handleHangup("caller", "caller-sess", "")
	e.mu.Unlock()

	e.mu.Lock()
	_, callerStillPresent := e.users["caller"]
	_, calleeStillPresent := e.users["callee"]
	_, roomStillPresent := e.rooms["room-1"]
	e.mu.Unlock()

	assert.False(t, callerStillPresent, "caller's call state must be cleared")
	assert.False(t, calleeStillPresent, "callee's call state must be cleared, no callEnded semantics apply")
	assert.False(t, roomStillPresent, "room must be dissolved")
}

// TestUserDisconnectedFoldsPendingJoin mirrors the connection-lifecycle rule:
// a dropped socket while pending-join cancels the queued request.
func TestUserDisconnectedFoldsPendingJoin(t *testing.T) {
	e := newTestEngine()

	e.mu.Lock()
	r := newRoom("room-1", "owner", "owner-sess", "peer")
	e.rooms["room-1"] = r
	e.users["owner"] = &userCallState{state: StateInCall, roomID: "room-1", controllingSession: "owner-sess"}
	e.users["requester"] = &userCallState{state: StatePendingJoin, roomID: "room-1"}
	r.queue.PushBack(&joinRequest{requesterID: "requester", requesterSession: "req-sess"})
	r.pendingReq = r.queue.Front()
	e.mu.Unlock()

	e.UserDisconnected("requester", "req-sess")

	e.mu.Lock()
	_, stillPresent := e.users["requester"]
	pendingCleared := r.pendingReq == nil
	e.mu.Unlock()

	assert.False(t, stillPresent)
	assert.True(t, pendingCleared)
}
