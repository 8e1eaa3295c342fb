package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lrcom/signal-core/config"
	"github.com/lrcom/signal-core/pkg/crypto"
)

// TurnHandler backs GET /turn: mints a short-lived TURN credential and
// returns it alongside the configured STUN/TURN urls as a WebRTC-ready
// iceServers list.
type TurnHandler struct {
	cfg    config.TURNConfig
	logger *slog.Logger
}

func NewTurnHandler(cfg config.TURNConfig, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{cfg: cfg, logger: logger}
}

type iceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

func (h *TurnHandler) Get(w http.ResponseWriter, r *http.Request) {
	cred := crypto.MintTURNCredential(h.cfg.Secret, h.cfg.TTL, time.Now())

	servers := []iceServer{}
	if len(h.cfg.STUNURLs) > 0 {
		servers = append(servers, iceServer{URLs: h.cfg.STUNURLs})
	}
	if len(h.cfg.URLs) > 0 {
		servers = append(servers, iceServer{
			URLs:       h.cfg.URLs,
			Username:   cred.Username,
			Credential: cred.Password,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"iceServers": servers})
}
