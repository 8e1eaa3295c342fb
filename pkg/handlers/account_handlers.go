package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/cleanup"
	"github.com/lrcom/signal-core/pkg/hub"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

// AccountHandler backs the four account-mutation endpoints. Every mutation
// except Delete fans signedAccountUpdated to the caller's other sessions so
// they can re-fetch the profile without a poll.
type AccountHandler struct {
	store  *store.Store
	fabric *hub.Fabric
	logger *slog.Logger
}

func NewAccountHandler(st *store.Store, fabric *hub.Fabric, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{store: st, fabric: fabric, logger: logger}
}

func (h *AccountHandler) notifyUpdated(userID, sessionID string) {
	h.fabric.SendAllExceptSession(userID, sessionID, models.OutboundFrame{
		Type: models.WSOutAccountUpdated,
	})
}

// Update handles vault and/or removeDate changes; either field may be
// omitted. A vault change always refreshes removeDate per spec.md §3, but
// the jitter is privacy noise added on top of the caller-supplied (or, if
// the caller didn't also send one, the account's existing) removeDate, not
// a replacement for it.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.AccountUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Vault == nil && req.RemoveDate == nil {
		writeError(w, h.logger, apperr.New(apperr.KindValidation, "nothing to update"))
		return
	}

	var removeDate time.Time
	haveRemoveDate := false
	if req.RemoveDate != nil {
		parsed, err := time.Parse(time.RFC3339, *req.RemoveDate)
		if err != nil {
			writeError(w, h.logger, apperr.New(apperr.KindValidation, "invalid removeDate"))
			return
		}
		removeDate = parsed
		haveRemoveDate = true
	}

	if req.Vault != nil {
		if !haveRemoveDate {
			u, err := h.store.GetUserByID(r.Context(), userID)
			if err != nil {
				writeError(w, h.logger, err)
				return
			}
			removeDate = u.RemoveDate
		}
		if err := h.store.UpdateVault(r.Context(), userID, *req.Vault, cleanup.JitteredRemoveDate(removeDate)); err != nil {
			writeError(w, h.logger, err)
			return
		}
	} else {
		if err := h.store.TouchRemoveDate(r.Context(), userID, removeDate); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	h.notifyUpdated(userID, sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteUser(r.Context(), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AccountHandler) SetHiddenMode(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.SetModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.store.SetHiddenMode(r.Context(), userID, req.Enabled); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.notifyUpdated(userID, sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *AccountHandler) SetIntrovertMode(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.SetModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.store.SetIntrovertMode(r.Context(), userID, req.Enabled); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.notifyUpdated(userID, sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
