package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxSessionID
)

// Middleware parses Authorization: Bearer <token> or X-Auth-Token, resolves
// it against the session registry, and attaches (userId, sessionId) to the
// request context. Unknown/expired tokens get 401 without leaking which.
func (r *SessionRegistry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token := bearerToken(req)
		if token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		sess, ok := r.Lookup(token)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(req.Context(), ctxUserID, sess.UserID)
		ctx = context.WithValue(ctx, ctxSessionID, sess.SessionID)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-Auth-Token")
}

// UserID extracts the authenticated user id attached by Middleware.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxUserID).(string)
	return v, ok
}

// SessionID extracts the authenticated session id attached by Middleware.
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxSessionID).(string)
	return v, ok
}
