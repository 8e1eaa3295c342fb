package callroom

import (
	"context"

	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

// handleStart implements Start(callerSession -> calleeUser), spec.md §4.6.
func (e *Engine) handleStart(ctx context.Context, callerID, callerSession, calleeID, cMsgID string) {
	if ucs, ok := e.users[callerID]; ok && ucs.state != StateIdle {
		e.emitReceipt(callerID, callerSession, cMsgID, false, "not_idle")
		return
	}
	if !e.fabric.IsOnline(calleeID) {
		e.replyCallStart(callerID, callerSession, false, "offline", "")
		e.emitReceipt(callerID, callerSession, cMsgID, false, "offline")
		return
	}

	authorized, err := e.authorizeCall(ctx, callerID, calleeID)
	if err != nil || !authorized {
		e.replyCallStart(callerID, callerSession, false, "forbidden", "")
		e.emitReceipt(callerID, callerSession, cMsgID, false, "forbidden")
		return
	}

	if ucs, ok := e.users[calleeID]; ok && ucs.state != StateIdle {
		e.replyCallStart(callerID, callerSession, false, "busy", "")
		e.emitReceipt(callerID, callerSession, cMsgID, false, "busy")
		return
	}

	roomID := store.NewID()
	r := newRoom(roomID, callerID, callerSession, calleeID)
	e.rooms[roomID] = r
	e.users[callerID] = &userCallState{state: StateRingingOut, roomID: roomID, controllingSession: callerSession}
	e.users[calleeID] = &userCallState{state: StateRingingIn, roomID: roomID}

	e.fabric.SendBestEffort(calleeID, models.OutboundFrame{
		Type:    models.WSOutIncomingCall,
		Payload: models.IncomingCallPayload{RoomID: roomID, From: callerID},
	})
	e.replyCallStart(callerID, callerSession, true, "", roomID)
	e.emitReceipt(callerID, callerSession, cMsgID, true, "")
}

func (e *Engine) replyCallStart(userID, sessionID string, ok bool, reason, roomID string) {
	e.fabric.SendToSession(userID, sessionID, models.OutboundFrame{
		Type:    models.WSOutCallStartResult,
		Payload: models.CallStartResult{OK: ok, RoomID: roomID, Reason: reason},
	})
}

// authorizeCall implements the has_any / has_personal gate.
func (e *Engine) authorizeCall(ctx context.Context, callerID, calleeID string) (bool, error) {
	shared, err := e.store.SharesAnyChat(ctx, callerID, calleeID)
	if err != nil {
		return false, err
	}
	if !shared {
		return false, nil
	}
	callee, err := e.store.GetUserByID(ctx, calleeID)
	if err != nil {
		return false, err
	}
	if !callee.Introvert {
		return true, nil
	}
	_, err = e.store.GetDirectChat(ctx, callerID, calleeID)
	if err != nil {
		if ae, ok := apperr.As(err); ok && ae.Kind == apperr.KindNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// handleAccept implements Accept(calleeSession), spec.md §4.6.
func (e *Engine) handleAccept(calleeID, calleeSession, cMsgID string) {
	ucs, ok := e.users[calleeID]
	if !ok || ucs.state != StateRingingIn || ucs.controllingSession != "" {
		e.emitReceipt(calleeID, calleeSession, cMsgID, false, "not_ringing")
		return
	}
	r, ok := e.rooms[ucs.roomID]
	if !ok {
		e.emitReceipt(calleeID, calleeSession, cMsgID, false, "no_room")
		return
	}

	r.members[calleeID] = calleeSession
	ucs.state = StateInCall
	ucs.controllingSession = calleeSession
	if owner, ok := e.users[r.lastOwner]; ok {
		owner.state = StateInCall
	}
	r.state = RoomEstablished

	e.fabric.SendAllExceptSession(calleeID, calleeSession, models.OutboundFrame{
		Type:    models.WSOutIncomingCallCancelled,
		Payload: models.IncomingCallCancelledPayload{Reason: "accepted_elsewhere"},
	})
	for _, otherID := range r.otherMembers(calleeID) {
		e.sendToRoomMember(r, otherID, models.OutboundFrame{
			Type:    models.WSOutRoomPeerJoined,
			Payload: models.RoomPeerJoinedPayload{RoomID: r.id, UserID: calleeID},
		})
	}
	e.fabric.SendToSession(calleeID, calleeSession, models.OutboundFrame{
		Type:    models.WSOutRoomPeers,
		Payload: models.RoomPeersPayload{RoomID: r.id, Peers: r.otherMembers(calleeID)},
	})
	e.emitReceipt(calleeID, calleeSession, cMsgID, true, "")
}

// handleReject implements Reject, spec.md §4.6.
func (e *Engine) handleReject(calleeID, calleeSession, cMsgID string) {
	ucs, ok := e.users[calleeID]
	if !ok || ucs.state != StateRingingIn {
		e.emitReceipt(calleeID, calleeSession, cMsgID, false, "not_ringing")
		return
	}
	r, ok := e.rooms[ucs.roomID]
	if !ok {
		delete(e.users, calleeID)
		e.emitReceipt(calleeID, calleeSession, cMsgID, false, "no_room")
		return
	}

	delete(e.users, calleeID)
	if r.state == RoomTwoPartyProposed {
		ownerID := r.lastOwner
		e.sendToRoomMember(r, ownerID, models.OutboundFrame{
			Type:    models.WSOutIncomingCallCancelled,
			Payload: models.IncomingCallCancelledPayload{Reason: "rejected"},
		})
		delete(e.users, ownerID)
		delete(e.rooms, r.id)
	} else {
		delete(r.members, calleeID)
	}
	e.fabric.SendAllExceptSession(calleeID, calleeSession, models.OutboundFrame{
		Type:    models.WSOutIncomingCallCancelled,
		Payload: models.IncomingCallCancelledPayload{Reason: "rejected_elsewhere"},
	})
	e.emitReceipt(calleeID, calleeSession, cMsgID, true, "")
}

// handleHangup implements Hangup, spec.md §4.6.
func (e *Engine) handleHangup(userID, sessionID, cMsgID string) {
	if _, ok := e.users[userID]; !ok {
		e.emitReceipt(userID, sessionID, cMsgID, false, "not_in_call")
		return
	}
	e.hangupLocked(userID)
	e.emitReceipt(userID, sessionID, cMsgID, true, "")
}

// hangupLocked assumes e.mu is already held.
func (e *Engine) hangupLocked(userID string) {
	ucs, ok := e.users[userID]
	if !ok {
		return
	}
	r, ok := e.rooms[ucs.roomID]
	if !ok {
		delete(e.users, userID)
		return
	}

	if ucs.state == StateRingingOut {
		// Caller hanging up before the callee accepted: dissolve silently.
		for _, calleeID := range r.otherMembers(userID) {
			e.fabric.SendBestEffort(calleeID, models.OutboundFrame{
				Type:    models.WSOutIncomingCallCancelled,
				Payload: models.IncomingCallCancelledPayload{Reason: "hangup"},
			})
			delete(e.users, calleeID)
		}
		delete(e.users, userID)
		delete(e.rooms, r.id)
		return
	}

	delete(r.members, userID)
	delete(e.users, userID)

	if len(r.members) <= 1 {
		for remainingID := range r.members {
			e.fabric.SendBestEffort(remainingID, models.OutboundFrame{
				Type:    models.WSOutCallEnded,
				Payload: models.CallEndedPayload{Reason: "alone"},
			})
			delete(e.users, remainingID)
		}
		e.rejectAllQueued(r, "ended")
		delete(e.rooms, r.id)
		return
	}

	for remainingID := range r.members {
		e.sendToRoomMember(r, remainingID, models.OutboundFrame{
			Type:    models.WSOutRoomPeerLeft,
			Payload: models.RoomPeerLeftPayload{RoomID: r.id, UserID: userID},
		})
	}
	e.pumpJoinQueue(r)
}
