package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lrcom/signal-core/config"
	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

// PushHandler backs Web Push subscription management: register an endpoint
// and disable one on unsubscribe.
type PushHandler struct {
	store  *store.Store
	push   config.PushConfig
	logger *slog.Logger
}

func NewPushHandler(st *store.Store, push config.PushConfig, logger *slog.Logger) *PushHandler {
	return &PushHandler{store: st, push: push, logger: logger}
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.PushSubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Endpoint == "" {
		writeError(w, h.logger, apperr.New(apperr.KindValidation, "endpoint is required"))
		return
	}
	if err := h.store.UpsertPushSubscription(r.Context(), userID, req, h.push.SubscriptionMinRetention, h.push.SubscriptionMaxRetention); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *PushHandler) Disable(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.PushDisableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.store.DisablePushSubscription(r.Context(), userID, req.Endpoint); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
