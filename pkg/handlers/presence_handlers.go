package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/callroom"
	"github.com/lrcom/signal-core/pkg/hub"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

const maxPresenceQuery = 25

// serverVersion is returned alongside every presence response so clients can
// detect a protocol mismatch after a server upgrade.
const serverVersion = "1.0.0"

// PresenceHandler backs POST /api/signed/presence: online/busy status for a
// caller-supplied set of user ids, gated per id on sharing a personal chat
// and filtered for hidden-mode accounts.
type PresenceHandler struct {
	store  *store.Store
	fabric *hub.Fabric
	engine *callroom.Engine
	logger *slog.Logger
}

func NewPresenceHandler(st *store.Store, fabric *hub.Fabric, engine *callroom.Engine, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{store: st, fabric: fabric, engine: engine, logger: logger}
}

func (h *PresenceHandler) Query(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req models.PresenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.UserIDs) > maxPresenceQuery {
		writeError(w, h.logger, apperr.New(apperr.KindValidation, "presence query exceeds 25 ids"))
		return
	}

	var online, busy []string
	for _, target := range req.UserIDs {
		if target == userID {
			continue
		}
		if _, err := h.store.GetDirectChat(r.Context(), userID, target); err != nil {
			continue // no shared personal chat: silently dropped, per spec.md §6
		}
		other, err := h.store.GetUserByID(r.Context(), target)
		if err != nil || other.Hidden {
			continue
		}

		isOnline, isBusy := h.resolvePresence(r.Context(), target)
		if isOnline {
			online = append(online, target)
		}
		if isBusy {
			busy = append(busy, target)
		}
	}

	writeJSON(w, http.StatusOK, models.PresenceResponse{
		OnlineUserIDs: online,
		BusyUserIDs:   busy,
		ServerVersion: serverVersion,
	})
}

// resolvePresence answers from this instance's own Realtime Fabric and Call
// Room Engine state when it holds a socket for target, and in that case
// refreshes the shared cache with what it knows. When this instance holds no socket
// for target, it falls back to the cache another instance last wrote, so a
// multi-instance deployment still reports a user online elsewhere.
func (h *PresenceHandler) resolvePresence(ctx context.Context, target string) (online, busy bool) {
	localOnline := h.fabric.IsOnline(target)
	localBusy := h.engine.IsBusy(target)

	if localOnline {
		if err := h.store.CachePresence(ctx, target, localOnline, localBusy); err != nil {
			h.logger.Warn("cache presence failed", "error", err, "user_id", target)
		}
		return localOnline, localBusy
	}

	cachedOnline, cachedBusy, ok := h.store.GetCachedPresence(ctx, target)
	if !ok {
		return false, localBusy
	}
	return cachedOnline, localBusy || cachedBusy
}
