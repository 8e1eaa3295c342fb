package callroom

import "github.com/lrcom/signal-core/pkg/models"

// pumpJoinQueue sends the front-of-queue request to the current owner if no
// request is already in flight, per the FIFO "one joinRequest at a time"
// rule (spec.md §4.6, scenario S3).
func (e *Engine) pumpJoinQueue(r *room) {
	if r.pendingReq != nil || r.queue.Len() == 0 {
		if r.queue.Len() == 0 && r.pendingReq == nil {
			r.state = RoomEstablished
		}
		return
	}
	owner := e.pickOwner(r)
	if owner == "" {
		e.rejectAllQueued(r, "no_approver")
		return
	}
	req := r.queue.Front().Value.(*joinRequest)
	r.pendingReq = r.queue.Front()
	r.state = RoomJoinPending
	e.sendToRoomMember(r, owner, models.OutboundFrame{
		Type:    models.WSOutJoinRequest,
		Payload: models.JoinRequestPayload{RoomID: r.id, UserID: req.requesterID},
	})
}

func (e *Engine) rejectAllQueued(r *room, reason string) {
	for el := r.queue.Front(); el != nil; {
		req := el.Value.(*joinRequest)
		e.fabric.SendBestEffort(req.requesterID, models.OutboundFrame{
			Type:    models.WSOutCallJoinResult,
			Payload: models.CallJoinResult{OK: false, Reason: reason},
		})
		delete(e.users, req.requesterID)
		next := el.Next()
		r.queue.Remove(el)
		el = next
	}
	r.pendingReq = nil
}

// handleJoinRequest implements the join-flow entry point: a user not in a
// room asks to join whatever room target currently occupies.
func (e *Engine) handleJoinRequest(requesterID, requesterSession, targetID, cMsgID string) {
	if _, already := e.users[requesterID]; already {
		e.emitReceipt(requesterID, requesterSession, cMsgID, false, "already_in_call")
		return
	}
	target, ok := e.users[targetID]
	if !ok || target.roomID == "" {
		e.fabric.SendToSession(requesterID, requesterSession, models.OutboundFrame{
			Type:    models.WSOutCallJoinResult,
			Payload: models.CallJoinResult{OK: false, Reason: "not_in_call"},
		})
		e.emitReceipt(requesterID, requesterSession, cMsgID, false, "not_in_call")
		return
	}
	r := e.rooms[target.roomID]
	e.users[requesterID] = &userCallState{state: StatePendingJoin, roomID: r.id}
	r.queue.PushBack(&joinRequest{requesterID: requesterID, requesterSession: requesterSession})
	e.fabric.SendToSession(requesterID, requesterSession, models.OutboundFrame{
		Type:    models.WSOutCallJoinPending,
		Payload: models.CallJoinPendingPayload{RoomID: r.id},
	})
	e.emitReceipt(requesterID, requesterSession, cMsgID, true, "")
	e.pumpJoinQueue(r)
}

func (e *Engine) handleJoinCancel(requesterID, requesterSession, cMsgID string) {
	e.cancelJoinLocked(requesterID)
	e.emitReceipt(requesterID, requesterSession, cMsgID, true, "")
}

// cancelJoinLocked assumes e.mu is already held.
func (e *Engine) cancelJoinLocked(requesterID string) {
	ucs, ok := e.users[requesterID]
	if !ok || ucs.state != StatePendingJoin {
		return
	}
	r, ok := e.rooms[ucs.roomID]
	if !ok {
		delete(e.users, requesterID)
		return
	}

	if r.pendingReq != nil && r.pendingReq.Value.(*joinRequest).requesterID == requesterID {
		r.queue.Remove(r.pendingReq)
		r.pendingReq = nil
		delete(e.users, requesterID)
		e.pumpJoinQueue(r)
		return
	}
	for el := r.queue.Front(); el != nil; el = el.Next() {
		if el.Value.(*joinRequest).requesterID == requesterID {
			r.queue.Remove(el)
			break
		}
	}
	delete(e.users, requesterID)
}

// handleJoinAccept implements the owner's acceptance of the front-of-queue
// requester.
func (e *Engine) handleJoinAccept(ownerID, ownerSession, cMsgID string) {
	ucs, ok := e.users[ownerID]
	if !ok {
		e.emitReceipt(ownerID, ownerSession, cMsgID, false, "not_in_call")
		return
	}
	r, ok := e.rooms[ucs.roomID]
	if !ok || r.pendingReq == nil {
		e.emitReceipt(ownerID, ownerSession, cMsgID, false, "no_pending_request")
		return
	}

	req := r.pendingReq.Value.(*joinRequest)
	r.queue.Remove(r.pendingReq)
	r.pendingReq = nil

	r.members[req.requesterID] = req.requesterSession
	e.users[req.requesterID] = &userCallState{state: StateInCall, roomID: r.id, controllingSession: req.requesterSession}
	r.lastOwner = ownerID
	r.state = RoomEstablished

	for _, memberID := range r.otherMembers(req.requesterID) {
		e.sendToRoomMember(r, memberID, models.OutboundFrame{
			Type:    models.WSOutRoomPeerJoined,
			Payload: models.RoomPeerJoinedPayload{RoomID: r.id, UserID: req.requesterID},
		})
	}
	e.fabric.SendBestEffort(req.requesterID, models.OutboundFrame{
		Type:    models.WSOutRoomPeers,
		Payload: models.RoomPeersPayload{RoomID: r.id, Peers: r.otherMembers(req.requesterID)},
	})
	e.fabric.SendBestEffort(req.requesterID, models.OutboundFrame{
		Type:    models.WSOutCallJoinResult,
		Payload: models.CallJoinResult{OK: true},
	})
	e.emitReceipt(ownerID, ownerSession, cMsgID, true, "")
	e.pumpJoinQueue(r)
}

func (e *Engine) handleJoinReject(ownerID, ownerSession, cMsgID string) {
	ucs, ok := e.users[ownerID]
	if !ok {
		e.emitReceipt(ownerID, ownerSession, cMsgID, false, "not_in_call")
		return
	}
	r, ok := e.rooms[ucs.roomID]
	if !ok || r.pendingReq == nil {
		e.emitReceipt(ownerID, ownerSession, cMsgID, false, "no_pending_request")
		return
	}

	req := r.pendingReq.Value.(*joinRequest)
	r.queue.Remove(r.pendingReq)
	r.pendingReq = nil
	delete(e.users, req.requesterID)

	e.fabric.SendBestEffort(req.requesterID, models.OutboundFrame{
		Type:    models.WSOutCallJoinResult,
		Payload: models.CallJoinResult{OK: false, Reason: "rejected"},
	})
	e.emitReceipt(ownerID, ownerSession, cMsgID, true, "")
	e.pumpJoinQueue(r)
}

// handleSignal relays a WebRTC signaling payload verbatim between two
// members of the same room, only from the sender's controlling session
// (spec.md §4.6 "Signaling relay").
func (e *Engine) handleSignal(fromID, fromSession string, p models.SignalPayload) {
	ucs, ok := e.users[fromID]
	if !ok || ucs.controllingSession != fromSession {
		return
	}
	r, ok := e.rooms[ucs.roomID]
	if !ok {
		return
	}
	if _, isMember := r.members[p.To]; !isMember {
		return
	}
	e.sendToRoomMember(r, p.To, models.OutboundFrame{
		Type:    models.WSOutSignal,
		Payload: models.SignalPayload{RoomID: r.id, To: p.To, From: fromID, Payload: p.Payload},
	})
}
