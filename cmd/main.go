package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lrcom/signal-core/config"
	"github.com/lrcom/signal-core/pkg/auth"
	"github.com/lrcom/signal-core/pkg/callroom"
	"github.com/lrcom/signal-core/pkg/cleanup"
	"github.com/lrcom/signal-core/pkg/hub"
	"github.com/lrcom/signal-core/pkg/push"
	"github.com/lrcom/signal-core/pkg/routes"
	"github.com/lrcom/signal-core/pkg/store"
)

func main() {
	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting server", "app", cfg.AppName, "env", cfg.Server.Env, "port", cfg.Server.Port)

	storage, err := store.NewStore(ctx, cfg.Database.URL, cfg.Redis.URL, logger)
	if err != nil {
		logger.Error("failed to connect to storage", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	if err := storage.Migrate(); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	sessions := auth.NewSessionRegistry(cfg.Session.TokenTTL, cfg.Session.MaxPerUser)
	challenges := auth.NewChallengeRegistry(cfg.Session.ChallengeTTL)
	authSvc := auth.NewService(storage, sessions, challenges, logger)
	go challenges.Sweep(ctx.Done(), cfg.Session.ChallengeTTL)

	fabric := hub.NewFabric(storage, cfg.WebSocket, logger)
	engine := callroom.NewEngine(fabric, storage, logger)
	fabric.SetRouter(engine)
	go fabric.ListenFabric(ctx)
	go fabric.RunResendWheel(ctx)

	pushWorker := push.NewWorker(storage, cfg.Push, logger)
	go pushWorker.Run(ctx)

	sweeper := cleanup.NewSweeper(storage, cfg.Cleanup, logger)
	go sweeper.Run(ctx)

	router := routes.NewRouter(routes.Deps{
		Store:     storage,
		AuthSvc:   authSvc,
		Sessions:  sessions,
		Fabric:    fabric,
		Engine:    engine,
		Push:      cfg.Push,
		TURN:      cfg.TURN,
		RateLimit: cfg.RateLimit,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		var err error
		if cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != "" {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
