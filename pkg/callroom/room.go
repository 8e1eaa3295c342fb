// Package callroom implements the Call Room Engine: the ephemeral,
// in-memory state machine behind voice-call signaling (spec.md §4.6).
// Rooms and per-user call state live only in process memory — a server
// restart drops all live calls, which is an explicit Open Question
// decision recorded in DESIGN.md.
package callroom

import "container/list"

// Per-user call state.
const (
	StateIdle       = "idle"
	StateRingingOut = "ringing-out"
	StateRingingIn  = "ringing-in"
	StateInCall     = "in-call"
	StatePendingJoin = "pending-join"
)

// Per-room state.
const (
	RoomTwoPartyProposed = "two-party-proposed"
	RoomEstablished      = "established"
	RoomJoinPending      = "join-pending"
)

// userCallState is the per-user call-engine runtime entry, analogous to the
// fabric's UserRuntime but scoped to call state rather than sockets.
type userCallState struct {
	state              string
	roomID             string
	controllingSession string // empty until this user's session "controls" the call
}

// joinRequest is one queued callJoinRequest, FIFO-ordered via room.queue.
type joinRequest struct {
	requesterID      string
	requesterSession string
}

// room is the ephemeral container for one call: its members (userId ->
// controlling session, empty string if not yet controlling), the FIFO join
// queue, and the request currently in flight to the owner.
type room struct {
	id         string
	members    map[string]string // userId -> controlling sessionId
	lastOwner  string            // preferred owner: the previous accepted owner, if still a member
	state      string
	queue      *list.List    // of *joinRequest, FIFO
	pendingReq *list.Element // element of queue currently awaiting the owner's answer
}

func newRoom(id, caller, callerSession, callee string) *room {
	return &room{
		id:        id,
		members:   map[string]string{caller: callerSession, callee: ""},
		lastOwner: caller,
		state:     RoomTwoPartyProposed,
		queue:     list.New(),
	}
}

// otherMembers returns every member id except exclude.
func (r *room) otherMembers(exclude string) []string {
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
