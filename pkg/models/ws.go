package models

import "encoding/json"

// Inbound WS frame types (spec.md §6).
const (
	WSInAck             = "ack"
	WSInPing            = "ping"
	WSInCallStart       = "callStart"
	WSInCallAccept      = "callAccept"
	WSInCallReject      = "callReject"
	WSInCallHangup      = "callHangup"
	WSInCallJoinRequest = "callJoinRequest"
	WSInCallJoinCancel  = "callJoinCancel"
	WSInCallJoinAccept  = "callJoinAccept"
	WSInCallJoinReject  = "callJoinReject"
	WSInSignal          = "signal"
)

// Outbound WS frame types.
const (
	WSOutHello                 = "signedHello"
	WSOutPong                  = "pong"
	WSOutReceipt               = "receipt"
	WSOutMessage               = "signedMessage"
	WSOutMessageUpdated        = "signedMessageUpdated"
	WSOutMessageDeleted        = "signedMessageDeleted"
	WSOutMessagesDeleted       = "signedMessagesDeleted"
	WSOutChatsChanged          = "signedChatsChanged"
	WSOutChatDeleted           = "signedChatDeleted"
	WSOutAccountUpdated        = "signedAccountUpdated"
	WSOutForceLogout           = "signedForceLogout"
	WSOutIncomingCall          = "incomingCall"
	WSOutIncomingCallCancelled = "incomingCallCancelled"
	WSOutCallRejected          = "callRejected"
	WSOutCallEnded             = "callEnded"
	WSOutCallStartResult       = "callStartResult"
	WSOutCallJoinPending       = "callJoinPending"
	WSOutCallJoinResult        = "callJoinResult"
	WSOutJoinRequest           = "joinRequest"
	WSOutRoomPeers             = "roomPeers"
	WSOutRoomPeerJoined        = "roomPeerJoined"
	WSOutRoomPeerLeft          = "roomPeerLeft"
	WSOutSignal                = "signal"
)

// InboundFrame is the tagged-union envelope every inbound WS message is
// decoded into. Unknown Type values yield a receipt with ok:false rather
// than propagating a decode error (see pkg/hub/dispatch.go).
type InboundFrame struct {
	Type   string          `json:"type"`
	CMsgID string          `json:"cMsgId,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// rawFrame mirrors InboundFrame's wire shape for json.Unmarshal; InboundFrame
// itself keeps the original bytes in Raw so handlers can re-decode
// type-specific fields.
type rawFrame struct {
	Type   string `json:"type"`
	CMsgID string `json:"cMsgId,omitempty"`
}

func DecodeInboundFrame(data []byte) (InboundFrame, error) {
	var rf rawFrame
	if err := json.Unmarshal(data, &rf); err != nil {
		return InboundFrame{}, err
	}
	return InboundFrame{Type: rf.Type, CMsgID: rf.CMsgID, Raw: data}, nil
}

// OutboundFrame is the generic shape sent to clients; Payload is marshalled
// inline via MarshalJSON so the wire object is flat, e.g.
// {"type":"signedMessage","chatId":"...","senderId":"...","encryptedData":"..."}.
type OutboundFrame struct {
	Type    string
	MsgID   string
	Payload any
}

func (f OutboundFrame) MarshalJSON() ([]byte, error) {
	base := map[string]any{"type": f.Type}
	if f.MsgID != "" {
		base["msgId"] = f.MsgID
	}
	if f.Payload != nil {
		pb, err := json.Marshal(f.Payload)
		if err != nil {
			return nil, err
		}
		var extra map[string]any
		if err := json.Unmarshal(pb, &extra); err != nil {
			return nil, err
		}
		for k, v := range extra {
			base[k] = v
		}
	}
	return json.Marshal(base)
}

// AckPayload references the server-assigned msgId of a reliable outbound
// frame the client has now received, per spec.md §4.5.
type AckPayload struct {
	MsgID string `json:"msgId"`
}

// Receipt is the synthesized idempotency acknowledgement cached per cMsgId.
type Receipt struct {
	Type   string `json:"type"`
	CMsgID string `json:"cMsgId"`
	MsgID  string `json:"msgId"`
	OK     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`
}

// Call/room signaling payload shapes.

type CallStartPayload struct {
	To string `json:"to"`
}

type CallStartResult struct {
	OK     bool   `json:"ok"`
	RoomID string `json:"roomId,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type IncomingCallPayload struct {
	RoomID string `json:"roomId"`
	From   string `json:"from"`
}

type IncomingCallCancelledPayload struct {
	Reason string `json:"reason"`
}

type CallEndedPayload struct {
	Reason string `json:"reason"`
}

type CallJoinRequestPayload struct {
	Target string `json:"target"`
}

type CallJoinPendingPayload struct {
	RoomID string `json:"roomId"`
}

type CallJoinResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type JoinRequestPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
}

type RoomPeersPayload struct {
	RoomID string   `json:"roomId"`
	Peers  []string `json:"peers"`
}

type RoomPeerJoinedPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type RoomPeerLeftPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type SignalPayload struct {
	RoomID  string          `json:"roomId,omitempty"`
	To      string          `json:"to"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type HelloPayload struct {
	UserID string `json:"userId"`
}

type ForceLogoutPayload struct {
	WipeLocalKeys bool `json:"wipeLocalKeys"`
}

type ChatsChangedPayload struct {
	Reason string `json:"reason,omitempty"`
}

type ChatDeletedPayload struct {
	ChatID string `json:"chatId"`
}

type MessagesDeletedPayload struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
}

// MessageDeletedPayload carries a single deleted message id; distinct from
// the plural MessagesDeletedPayload, which carries several ids of one chat
// and is not sent by any handler.
type MessageDeletedPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}
