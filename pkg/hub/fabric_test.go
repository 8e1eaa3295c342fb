package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/lrcom/signal-core/config"
	"github.com/lrcom/signal-core/pkg/models"
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
		ReliableResend:   20 * time.Millisecond,
		MaxMessageSize:   1 << 16,
		ReceiptLRUCap:    32,
	}
}

// countingRouter records every HandleFrame call so tests can assert a
// dispatch was (or wasn't) forwarded to the call engine.
type countingRouter struct {
	calls int32
}

func (c *countingRouter) HandleFrame(userID, sessionID string, frame models.InboundFrame) {
	atomic.AddInt32(&c.calls, 1)
}
func (c *countingRouter) UserDisconnected(userID, sessionID string) {}

func dialFabricSocket(t *testing.T, f *Fabric, userID, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, f.Serve(w, r, userID, sessionID))
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

func readFabricFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestIsOnlineReflectsLiveSockets(t *testing.T) {
	f := NewFabric(nil, testWSConfig(), testLogger())
	require.False(t, f.IsOnline("alice"))

	dialFabricSocket(t, f, "alice", "sess-1")
	require.Eventually(t, func() bool { return f.IsOnline("alice") }, time.Second, 5*time.Millisecond)
}

// TestSendBestEffortFansOutToEverySession covers a multi-device arm of
// testable property 7: a user connected on two sessions gets the same
// best-effort frame delivered to both.
func TestSendBestEffortFansOutToEverySession(t *testing.T) {
	f := NewFabric(nil, testWSConfig(), testLogger())
	connA := dialFabricSocket(t, f, "alice", "sess-a")
	connB := dialFabricSocket(t, f, "alice", "sess-b")

	f.SendBestEffort("alice", models.OutboundFrame{Type: models.WSOutChatsChanged})

	frameA := readFabricFrame(t, connA)
	frameB := readFabricFrame(t, connB)
	require.Equal(t, models.WSOutChatsChanged, frameA["type"])
	require.Equal(t, models.WSOutChatsChanged, frameB["type"])
}

// TestSendAllExceptSessionExcludesNamedSession is the arbitration mechanism
// testable property 7's "accepted_elsewhere" note relies on.
func TestSendAllExceptSessionExcludesNamedSession(t *testing.T) {
	f := NewFabric(nil, testWSConfig(), testLogger())
	kept := dialFabricSocket(t, f, "alice", "sess-keep")
	excluded := dialFabricSocket(t, f, "alice", "sess-exclude")

	f.SendAllExceptSession("alice", "sess-exclude", models.OutboundFrame{Type: models.WSOutCallRejected})

	frame := readFabricFrame(t, kept)
	require.Equal(t, models.WSOutCallRejected, frame["type"])

	excluded.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := excluded.ReadMessage()
	require.Error(t, err, "the excluded session must not receive the frame")
}

// TestRunResendWheelRetransmitsUntilAck covers testable property 6: a
// reliably-sent frame keeps being redelivered until the client acks it.
func TestRunResendWheelRetransmitsUntilAck(t *testing.T) {
	f := NewFabric(nil, testWSConfig(), testLogger())
	conn := dialFabricSocket(t, f, "alice", "sess-1")

	f.SendReliableToSession("alice", "sess-1", models.OutboundFrame{Type: models.WSOutMessage})
	first := readFabricFrame(t, conn)
	require.Equal(t, models.WSOutMessage, first["type"])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.RunResendWheel(ctx)

	// No ack sent: the same message must be redelivered by the resend wheel.
	second := readFabricFrame(t, conn)
	require.Equal(t, models.WSOutMessage, second["type"])
	require.Equal(t, first["msgId"], second["msgId"])
}

// TestRunResendWheelStopsAfterAck ensures an acked reliable message is not
// redelivered.
func TestRunResendWheelStopsAfterAck(t *testing.T) {
	f := NewFabric(nil, testWSConfig(), testLogger())
	conn := dialFabricSocket(t, f, "alice", "sess-1")

	f.SendReliableToSession("alice", "sess-1", models.OutboundFrame{Type: models.WSOutMessage})
	first := readFabricFrame(t, conn)
	msgID, _ := first["msgId"].(string)
	require.NotEmpty(t, msgID)

	ack, err := json.Marshal(map[string]string{"type": models.WSInAck, "msgId": msgID})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, ack))

	require.Eventually(t, func() bool {
		f.mu.RLock()
		defer f.mu.RUnlock()
		ur := f.users["alice"]
		sock := ur.sessions["sess-1"]
		return len(sock.pendingPayloads()) == 0
	}, time.Second, 5*time.Millisecond, "ack must clear the pending reliable delivery")

	conn.SetReadDeadline(time.Now().Add(f.cfg.ReliableResend * 3))
	_, _, err = conn.ReadMessage()
	require.Error(t, err, "an acked message must not be redelivered")
}

// TestDispatchReplaysCachedReceiptForDuplicateCMsgID covers concrete
// scenario S6: resending the same cMsgId does not reach the call engine a
// second time, and gets back the exact cached receipt instead.
func TestDispatchReplaysCachedReceiptForDuplicateCMsgID(t *testing.T) {
	f := NewFabric(nil, testWSConfig(), testLogger())
	router := &countingRouter{}
	f.SetRouter(router)

	conn := dialFabricSocket(t, f, "alice", "sess-1")

	f.mu.RLock()
	ur := f.users["alice"]
	f.mu.RUnlock()
	sock := ur.sessions["sess-1"]

	frame := models.InboundFrame{Type: models.WSInCallStart, CMsgID: "dup-1", Raw: json.RawMessage(`{"type":"callStart","cMsgId":"dup-1","to":"bob"}`)}
	f.routeToCallEngine(sock, frame)
	require.EqualValues(t, 1, atomic.LoadInt32(&router.calls))

	f.CacheReceipt("alice", models.Receipt{Type: models.WSOutReceipt, CMsgID: "dup-1", OK: true})

	f.routeToCallEngine(sock, frame)
	require.EqualValues(t, 1, atomic.LoadInt32(&router.calls), "a cached cMsgId must not be forwarded to the call engine again")

	replay := readFabricFrame(t, conn)
	require.Equal(t, models.WSOutReceipt, replay["type"])
	require.Equal(t, "dup-1", replay["cMsgId"])
	require.Equal(t, true, replay["ok"])
}

// TestSendForceLogoutClosesSocketAfterDelay checks the 200ms grace window
// before a force-logout target's socket is closed.
func TestSendForceLogoutClosesSocketAfterDelay(t *testing.T) {
	f := NewFabric(nil, testWSConfig(), testLogger())
	conn := dialFabricSocket(t, f, "alice", "sess-1")

	f.SendForceLogout("alice", "sess-1", models.ForceLogoutPayload{WipeLocalKeys: true})

	frame := readFabricFrame(t, conn)
	require.Equal(t, models.WSOutForceLogout, frame["type"])

	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "the socket must stay open through the 200ms grace window")

	require.Eventually(t, func() bool {
		return !f.IsOnline("alice")
	}, 500*time.Millisecond, 10*time.Millisecond, "the socket must close once the grace window elapses")
}
