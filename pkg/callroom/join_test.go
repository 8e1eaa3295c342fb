package callroom

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/stretchr/testify/require"
)

// dialOwnerSocket registers a real socket for (userID, sessionID) against
// fabric over a loopback httptest server, so Fabric.IsOnline and
// SendToSession actually have something to deliver to. Returns the client
// connection with the initial hello frame already drained.
func dialOwnerSocket(t *testing.T, e *Engine, userID, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, e.fabric.Serve(w, r, userID, sessionID))
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage() // signedHello
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func joinRequestFrame(target string) models.InboundFrame {
	raw, _ := json.Marshal(map[string]string{"type": models.WSInCallJoinRequest, "target": target})
	return models.InboundFrame{Type: models.WSInCallJoinRequest, Raw: raw}
}

func joinAcceptFrame() models.InboundFrame {
	return models.InboundFrame{Type: models.WSInCallJoinAccept, CMsgID: "accept-r1"}
}

// TestJoinQueueFIFO covers testable property 8 and concrete scenario S3: the
// owner receives exactly one joinRequest at a time, in arrival order, and
// accepting advances the queue to the next requester.
func TestJoinQueueFIFO(t *testing.T) {
	e := newTestEngine()
	conn := dialOwnerSocket(t, e, "owner", "owner-sess")

	e.mu.Lock()
	r := newRoom("room-1", "owner", "owner-sess", "peer")
	e.rooms["room-1"] = r
	e.users["owner"] = &userCallState{state: StateInCall, roomID: "room-1", controllingSession: "owner-sess"}
	e.users["peer"] = &userCallState{state: StateInCall, roomID: "room-1", controllingSession: "peer-sess"}
	r.members["peer"] = "peer-sess"
	e.mu.Unlock()

	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		e.HandleFrame(id, id+"-sess", joinRequestFrame("owner"))
	}

	frame := readFrame(t, conn)
	require.Equal(t, "joinRequest", frame["type"])
	require.Equal(t, "r1", frame["userId"], "R1 must be presented first, in arrival order")

	e.mu.Lock()
	require.NotNil(t, r.pendingReq)
	require.Equal(t, "r1", r.pendingReq.Value.(*joinRequest).requesterID)
	require.Equal(t, 4, r.queue.Len(), "all four requesters are queued, only one presented")
	e.mu.Unlock()

	e.HandleFrame("owner", "owner-sess", joinAcceptFrame())

	e.mu.Lock()
	require.NotNil(t, r.pendingReq)
	require.Equal(t, "r2", r.pendingReq.Value.(*joinRequest).requesterID, "accepting R1 must advance the queue to R2")
	require.Equal(t, 3, r.queue.Len())
	_, r1StillPending := e.users["r1"]
	e.mu.Unlock()
	require.True(t, r1StillPending, "r1 is now a member, not removed from engine state")

	// Accepting R1 also fans out a roomPeerJoined notice (owner is itself a
	// room member) and the acceptance receipt before the queue advances; the
	// next joinRequest for R2 is the third frame on this socket.
	_ = readFrame(t, conn) // roomPeerJoined
	_ = readFrame(t, conn) // receipt
	next := readFrame(t, conn)
	require.Equal(t, "joinRequest", next["type"])
	require.Equal(t, "r2", next["userId"], "owner must see exactly one joinRequest at a time, in order")
}
