package routes

import (
	"log/slog"
	"net/http"

	"github.com/lrcom/signal-core/config"
	"github.com/lrcom/signal-core/pkg/auth"
	"github.com/lrcom/signal-core/pkg/callroom"
	"github.com/lrcom/signal-core/pkg/handlers"
	"github.com/lrcom/signal-core/pkg/httpmw"
	"github.com/lrcom/signal-core/pkg/hub"
	"github.com/lrcom/signal-core/pkg/store"

	_ "github.com/swaggo/files"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/lrcom/signal-core/docs"
)

// Deps bundles every component the router wires handlers against.
type Deps struct {
	Store     *store.Store
	AuthSvc   *auth.Service
	Sessions  *auth.SessionRegistry
	Fabric    *hub.Fabric
	Engine    *callroom.Engine
	Push      config.PushConfig
	TURN      config.TURNConfig
	RateLimit config.RateLimitConfig
	Logger    *slog.Logger
}

// NewRouter wires every endpoint in the signed surface plus the four public
// auth endpoints, the bare WebSocket upgrade, and the TURN/health utility
// routes. Signed routes run behind the session registry's bearer middleware.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := handlers.NewAuthHandler(d.AuthSvc, d.Fabric, d.Logger)
	sessionHandler := handlers.NewSessionHandler(d.Sessions, d.Fabric, d.Logger)
	chatHandler := handlers.NewChatHandler(d.Store, d.Fabric, d.Logger)
	messageHandler := handlers.NewMessageHandler(d.Store, d.Fabric, d.Push, d.Logger)
	presenceHandler := handlers.NewPresenceHandler(d.Store, d.Fabric, d.Engine, d.Logger)
	accountHandler := handlers.NewAccountHandler(d.Store, d.Fabric, d.Logger)
	pushHandler := handlers.NewPushHandler(d.Store, d.Push, d.Logger)
	turnHandler := handlers.NewTurnHandler(d.TURN, d.Logger)
	wsHandler := handlers.NewWSHandler(d.Sessions, d.Fabric, d.Logger)

	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	mux.HandleFunc("GET /healthz", handlers.Health)
	mux.HandleFunc("GET /turn", turnHandler.Get)
	mux.HandleFunc("/ws", wsHandler.Serve)

	limiter := httpmw.NewRateLimiter(d.RateLimit)
	publicAuth := http.NewServeMux()
	publicAuth.HandleFunc("POST /api/auth/register", authHandler.Register)
	publicAuth.HandleFunc("POST /api/auth/login-init", authHandler.LoginInit)
	publicAuth.HandleFunc("POST /api/auth/login-final", authHandler.LoginFinal)
	publicAuth.HandleFunc("POST /api/auth/check-username", authHandler.CheckUsername)
	mux.Handle("/api/auth/", limiter.Limit(publicAuth))

	signed := http.NewServeMux()
	signed.HandleFunc("POST /api/signed/session/refresh", sessionHandler.Refresh)
	signed.HandleFunc("POST /api/signed/session/logout-other-devices", sessionHandler.LogoutOtherDevices)
	signed.HandleFunc("POST /api/signed/session/logout-and-remove-key-other-devices", sessionHandler.LogoutAndRemoveKeyOtherDevices)

	signed.HandleFunc("GET /api/signed/chats", chatHandler.List)
	signed.HandleFunc("POST /api/signed/chats/create-personal", chatHandler.CreatePersonal)
	signed.HandleFunc("POST /api/signed/chats/create-group", chatHandler.CreateGroup)
	signed.HandleFunc("POST /api/signed/chats/add-member", chatHandler.AddMember)
	signed.HandleFunc("POST /api/signed/chats/rename-group", chatHandler.RenameGroup)
	signed.HandleFunc("POST /api/signed/chats/delete", chatHandler.Delete)
	signed.HandleFunc("GET /api/signed/chats/members", chatHandler.Members)

	signed.HandleFunc("GET /api/signed/messages", messageHandler.History)
	signed.HandleFunc("GET /api/signed/messages/unread", messageHandler.Unread)
	signed.HandleFunc("POST /api/signed/messages/send", messageHandler.Send)
	signed.HandleFunc("POST /api/signed/messages/update", messageHandler.Update)
	signed.HandleFunc("POST /api/signed/messages/delete", messageHandler.Delete)
	signed.HandleFunc("POST /api/signed/messages/mark-read", messageHandler.MarkRead)

	signed.HandleFunc("POST /api/signed/presence", presenceHandler.Query)

	signed.HandleFunc("POST /api/signed/account/update", accountHandler.Update)
	signed.HandleFunc("POST /api/signed/account/delete", accountHandler.Delete)
	signed.HandleFunc("POST /api/signed/account/hidden-mode", accountHandler.SetHiddenMode)
	signed.HandleFunc("POST /api/signed/account/introvert-mode", accountHandler.SetIntrovertMode)

	signed.HandleFunc("POST /api/signed/push/subscribe", pushHandler.Subscribe)
	signed.HandleFunc("POST /api/signed/push/disable", pushHandler.Disable)

	mux.Handle("/api/signed/", d.Sessions.Middleware(signed))

	return mux
}
