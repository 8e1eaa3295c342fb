// Package handlers wires HTTP endpoints to the domain services: auth,
// chats, messages, presence, account, push subscriptions, and TURN
// credential minting.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/auth"
)

const maxBodyBytes = 1 << 20 // 1 MB per spec.md §6

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to its HTTP status via apperr.Status; it
// never leaks the underlying message for transient_db-class failures.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		logger.Error("unclassified error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	status := apperr.Status(ae.Kind)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "kind", ae.Kind, "error", err)
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, ae.Message, status)
}

// requireAuth pulls (userId, sessionId) from context, writing 401 if absent
// — belt-and-suspenders alongside the SessionRegistry middleware, which
// should never let an unauthenticated request reach a handler that calls
// this.
func requireAuth(w http.ResponseWriter, r *http.Request) (userID, sessionID string, ok bool) {
	userID, uok := auth.UserID(r.Context())
	sessionID, sok := auth.SessionID(r.Context())
	if !uok || !sok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", "", false
	}
	return userID, sessionID, true
}
