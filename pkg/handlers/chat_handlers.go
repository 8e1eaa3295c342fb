package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/hub"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

// ChatHandler backs the chat-membership surface: listing, creating personal
// and group chats, adding members, renaming, leaving/deleting, and listing
// members. Every mutation fans signedChatsChanged or signedChatDeleted to
// affected members over the Realtime Fabric.
type ChatHandler struct {
	store  *store.Store
	fabric *hub.Fabric
	logger *slog.Logger
}

func NewChatHandler(st *store.Store, fabric *hub.Fabric, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{store: st, fabric: fabric, logger: logger}
}

// notifyChatsChanged tells userIDs to refetch their chat list; the wire
// payload carries no identifier, so the client just re-reads
// GET /api/signed/chats. Published rather than sent purely locally, so a
// member connected to a different server instance still gets it.
func (h *ChatHandler) notifyChatsChanged(ctx context.Context, userIDs []string) {
	for _, uid := range userIDs {
		h.fabric.PublishReliable(ctx, uid, models.OutboundFrame{
			Type:    models.WSOutChatsChanged,
			Payload: models.ChatsChangedPayload{},
		})
	}
}

func (h *ChatHandler) notifyChatDeleted(ctx context.Context, userIDs []string, chatID string) {
	for _, uid := range userIDs {
		h.fabric.PublishReliable(ctx, uid, models.OutboundFrame{
			Type:    models.WSOutChatDeleted,
			Payload: models.ChatDeletedPayload{ChatID: chatID},
		})
	}
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	summaries, err := h.store.GetUserChatSummaries(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *ChatHandler) CreatePersonal(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.CreatePersonalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chat, otherUserID, created, err := h.store.CreatePersonalChat(r.Context(), userID, req.OtherUsername)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if created {
		h.notifyChatsChanged(r.Context(), []string{userID, otherUserID})
	}
	writeJSON(w, http.StatusOK, models.ChatResponse{Chat: *chat})
}

func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.CreateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	chat, err := h.store.CreateGroup(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.notifyChatsChanged(r.Context(), []string{userID})
	writeJSON(w, http.StatusOK, models.ChatResponse{Chat: *chat})
}

func (h *ChatHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.AddMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.mustBeMember(w, r, userID, req.ChatID) {
		return
	}
	addedUserID, err := h.store.AddMember(r.Context(), req.ChatID, req.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	members, err := h.store.GetChatMemberIDs(r.Context(), req.ChatID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.notifyChatsChanged(r.Context(), members)
	writeJSON(w, http.StatusOK, map[string]string{"userId": addedUserID})
}

func (h *ChatHandler) RenameGroup(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.RenameGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.mustBeMember(w, r, userID, req.ChatID) {
		return
	}
	if err := h.store.RenameGroup(r.Context(), req.ChatID, req.Name); err != nil {
		writeError(w, h.logger, err)
		return
	}
	members, err := h.store.GetChatMemberIDs(r.Context(), req.ChatID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.notifyChatsChanged(r.Context(), members)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.DeleteChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.mustBeMember(w, r, userID, req.ChatID) {
		return
	}
	result, err := h.store.LeaveOrDeleteChat(r.Context(), userID, req.ChatID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if result.ChatDeleted {
		h.notifyChatDeleted(r.Context(), result.RemainingMembers, req.ChatID)
		h.notifyChatDeleted(r.Context(), []string{userID}, req.ChatID)
	} else {
		h.notifyChatsChanged(r.Context(), result.RemainingMembers)
		h.notifyChatDeleted(r.Context(), []string{userID}, req.ChatID)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *ChatHandler) Members(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	chatID := r.URL.Query().Get("chatId")
	if !h.mustBeMember(w, r, userID, chatID) {
		return
	}
	members, err := h.store.GetChatMembers(r.Context(), chatID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ChatMembersResponse{Members: members})
}

// mustBeMember enforces the membership guard uniformly: "not a member" and
// "no such chat" both come back as a bare forbidden, never distinguished.
func (h *ChatHandler) mustBeMember(w http.ResponseWriter, r *http.Request, userID, chatID string) bool {
	if chatID == "" {
		writeError(w, h.logger, apperr.New(apperr.KindValidation, "chatId is required"))
		return false
	}
	member, err := h.store.IsMember(r.Context(), chatID, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return false
	}
	if !member {
		writeError(w, h.logger, apperr.New(apperr.KindForbidden, "not a member of this chat"))
		return false
	}
	return true
}
