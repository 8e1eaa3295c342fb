package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lrcom/signal-core/pkg/auth"
	"github.com/lrcom/signal-core/pkg/hub"
)

// WSHandler upgrades an authenticated client to a realtime socket. The
// bearer token travels as a query parameter since browsers cannot set
// arbitrary headers on the WebSocket handshake.
type WSHandler struct {
	sessions *auth.SessionRegistry
	fabric   *hub.Fabric
	logger   *slog.Logger
}

func NewWSHandler(sessions *auth.SessionRegistry, fabric *hub.Fabric, logger *slog.Logger) *WSHandler {
	return &WSHandler{sessions: sessions, fabric: fabric, logger: logger}
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	sess, ok := h.sessions.Lookup(token)
	if !ok {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}
	if err := h.fabric.Serve(w, r, sess.UserID, sess.SessionID); err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "user_id", sess.UserID)
	}
}
