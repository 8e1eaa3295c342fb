package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lrcom/signal-core/pkg/auth"
	"github.com/lrcom/signal-core/pkg/hub"
	"github.com/lrcom/signal-core/pkg/models"
)

// AuthHandler backs the three public /api/auth endpoints: register, the
// two-step challenge-response login, and username availability.
type AuthHandler struct {
	svc    *auth.Service
	fabric *hub.Fabric
	logger *slog.Logger
}

func NewAuthHandler(svc *auth.Service, fabric *hub.Fabric, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, fabric: fabric, logger: logger}
}

// fanForceLogout delivers signedForceLogout to sessions evicted by issuing a
// new one past the concurrent-session cap.
func (h *AuthHandler) fanForceLogout(userID string, evicted []*models.Session) {
	for _, s := range evicted {
		h.fabric.SendForceLogout(userID, s.SessionID, models.ForceLogoutPayload{WipeLocalKeys: false})
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, evicted, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.fanForceLogout(resp.UserID, evicted)
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) LoginInit(w http.ResponseWriter, r *http.Request) {
	var req models.LoginInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.svc.LoginInit(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) LoginFinal(w http.ResponseWriter, r *http.Request) {
	var req models.LoginFinalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, evicted, err := h.svc.LoginFinal(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.fanForceLogout(resp.UserID, evicted)
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	var req models.CheckUsernameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exists, err := h.svc.CheckUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CheckUsernameResponse{Exists: exists})
}
