package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/lrcom/signal-core/config"
	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/hub"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

// MessageHandler backs history, unread bookkeeping, and the send/update/
// delete mutations. Data-plane events fan out best-effort (spec.md §4.5);
// offline recipients are additionally queued for push delivery.
type MessageHandler struct {
	store  *store.Store
	fabric *hub.Fabric
	push   config.PushConfig
	logger *slog.Logger
}

func NewMessageHandler(st *store.Store, fabric *hub.Fabric, push config.PushConfig, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{store: st, fabric: fabric, push: push, logger: logger}
}

func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		writeError(w, h.logger, apperr.New(apperr.KindValidation, "chatId is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	before := r.URL.Query().Get("before")

	messages, err := h.store.GetHistory(r.Context(), userID, chatID, limit, before)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessagesResponse{Messages: messages})
}

func (h *MessageHandler) Unread(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		writeError(w, h.logger, apperr.New(apperr.KindValidation, "chatId is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ids, err := h.store.ListUnread(r.Context(), userID, chatID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.UnreadListResponse{MessageIDs: ids})
}

// Send implements send-message: persist, publish signedMessage best-effort
// to every recipient, and, when VAPID keys are configured, queue a push for
// each recipient with no socket on this instance.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	member, err := h.store.IsMember(r.Context(), req.ChatID, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !member {
		writeError(w, h.logger, apperr.New(apperr.KindForbidden, "not a member of this chat"))
		return
	}

	result, err := h.store.SendMessage(r.Context(), userID, req.ChatID, req.EncryptedData)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	msg := models.Message{ID: result.MessageID, ChatID: req.ChatID, SenderID: userID, EncryptedData: req.EncryptedData}
	for _, recipient := range result.Recipients {
		h.fabric.PublishBestEffort(r.Context(), recipient, models.OutboundFrame{Type: models.WSOutMessage, Payload: msg})
		if h.fabric.IsOnline(recipient) || h.push.VAPIDPublicKey == "" || h.push.VAPIDPrivateKey == "" {
			continue
		}
		if err := h.store.EnqueuePush(r.Context(), recipient, result.MessageID, req.ChatID, h.push.QueueMinRetention, h.push.QueueMaxRetention); err != nil {
			h.logger.Error("enqueue push failed", "error", err, "user_id", recipient)
		}
	}

	writeJSON(w, http.StatusOK, models.SendMessageResponse{MessageID: result.MessageID})
}

func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.UpdateMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.store.UpdateMessage(r.Context(), userID, req.MessageID, req.EncryptedData); err != nil {
		writeError(w, h.logger, err)
		return
	}
	members, err := h.store.GetChatMemberIDs(r.Context(), req.ChatID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	msg := models.Message{ID: req.MessageID, ChatID: req.ChatID, SenderID: userID, EncryptedData: req.EncryptedData}
	for _, uid := range members {
		h.fabric.PublishBestEffort(r.Context(), uid, models.OutboundFrame{Type: models.WSOutMessageUpdated, Payload: msg})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.DeleteMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.store.DeleteMessage(r.Context(), userID, req.MessageID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	members, err := h.store.GetChatMemberIDs(r.Context(), req.ChatID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	payload := models.MessageDeletedPayload{ChatID: req.ChatID, MessageID: req.MessageID}
	for _, uid := range members {
		h.fabric.PublishBestEffort(r.Context(), uid, models.OutboundFrame{Type: models.WSOutMessageDeleted, Payload: payload})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.MarkReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.MessageIDs) == 0 {
		if err := h.store.MarkChatRead(r.Context(), userID, req.ChatID); err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, models.MarkReadResponse{RemainingUnread: 0})
		return
	}
	remaining, err := h.store.MarkMessagesRead(r.Context(), userID, req.ChatID, req.MessageIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MarkReadResponse{RemainingUnread: remaining})
}
