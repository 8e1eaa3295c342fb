package callroom

import (
	"testing"

	"github.com/lrcom/signal-core/pkg/models"
	"github.com/stretchr/testify/require"
)

// TestAcceptNotifiesOtherSessionsAcceptedElsewhere covers testable property
// 7: accepting a call on one session tells the callee's other sessions
// "accepted_elsewhere" and notifies the room of the new member.
func TestAcceptNotifiesOtherSessionsAcceptedElsewhere(t *testing.T) {
	e := newTestEngine()
	callerConn := dialOwnerSocket(t, e, "caller", "caller-sess")
	bobSess1 := dialOwnerSocket(t, e, "bob", "bob-sess-1")
	bobSess2 := dialOwnerSocket(t, e, "bob", "bob-sess-2")

	e.mu.Lock()
	r := newRoom("room-1", "caller", "caller-sess", "bob")
	e.rooms["room-1"] = r
	e.users["caller"] = &userCallState{state: StateRingingOut, roomID: "room-1", controllingSession: "caller-sess"}
	e.users["bob"] = &userCallState{state: StateRingingIn, roomID: "room-1"}
	e.mu.Unlock()

	e.HandleFrame("bob", "bob-sess-1", models.InboundFrame{Type: models.WSInCallAccept})

	cancelled := readFrame(t, bobSess2)
	require.Equal(t, "incomingCallCancelled", cancelled["type"])
	require.Equal(t, "accepted_elsewhere", cancelled["reason"])

	peerJoined := readFrame(t, callerConn)
	require.Equal(t, "roomPeerJoined", peerJoined["type"])
	require.Equal(t, "bob", peerJoined["userId"])

	peers := readFrame(t, bobSess1)
	require.Equal(t, "roomPeers", peers["type"])

	e.mu.Lock()
	callerState := e.users["caller"].state
	bobState := e.users["bob"].state
	bobControlling := e.users["bob"].controllingSession
	e.mu.Unlock()
	require.Equal(t, StateInCall, callerState)
	require.Equal(t, StateInCall, bobState)
	require.Equal(t, "bob-sess-1", bobControlling, "the accepting session becomes the controlling session")
}
