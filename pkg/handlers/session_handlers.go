package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/auth"
	"github.com/lrcom/signal-core/pkg/hub"
	"github.com/lrcom/signal-core/pkg/models"
)

// SessionHandler backs the three authenticated /api/signed/session
// endpoints: token rotation and the two flavors of "log out other devices".
type SessionHandler struct {
	sessions *auth.SessionRegistry
	fabric   *hub.Fabric
	logger   *slog.Logger
}

func NewSessionHandler(sessions *auth.SessionRegistry, fabric *hub.Fabric, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, fabric: fabric, logger: logger}
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	rotated, ok := h.sessions.Rotate(token)
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.KindUnauthorized, "session not found"))
		return
	}
	writeJSON(w, http.StatusOK, models.RefreshResponse{Token: rotated.Token, ExpiresAt: rotated.ExpiresAt})
}

func (h *SessionHandler) LogoutOtherDevices(w http.ResponseWriter, r *http.Request) {
	h.logoutOthers(w, r, false)
}

func (h *SessionHandler) LogoutAndRemoveKeyOtherDevices(w http.ResponseWriter, r *http.Request) {
	h.logoutOthers(w, r, true)
}

func (h *SessionHandler) logoutOthers(w http.ResponseWriter, r *http.Request, wipeLocalKeys bool) {
	userID, sessionID, ok := requireAuth(w, r)
	if !ok {
		return
	}
	evicted := h.sessions.RevokeAllExcept(userID, sessionID)
	for _, s := range evicted {
		h.fabric.SendForceLogout(userID, s.SessionID, models.ForceLogoutPayload{WipeLocalKeys: wipeLocalKeys})
	}
	writeJSON(w, http.StatusOK, map[string]int{"loggedOutSessions": len(evicted)})
}

// bearerToken duplicates the parsing the SessionRegistry middleware already
// did to authenticate this request; refresh needs the raw token itself
// (not just the resolved userId/sessionId) to look up and replace it.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return r.Header.Get("X-Auth-Token")
}
