// Package cleanup implements the Expiry & Cleanup sweep: a single periodic
// tick that deletes expired users (and, transitively via FK cascade, their
// chat memberships and subscriptions) followed by any chat left with no
// members as a result.
package cleanup

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/lrcom/signal-core/config"
	"github.com/lrcom/signal-core/pkg/store"
)

// Sweeper runs the periodic deletion pass and also exposes JitteredRemoveDate
// for handlers to call whenever a user's activity should refresh their
// removal timestamp, per spec.md §3.
type Sweeper struct {
	store  *store.Store
	cfg    config.CleanupConfig
	logger *slog.Logger
}

func NewSweeper(st *store.Store, cfg config.CleanupConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: st, cfg: cfg, logger: logger}
}

// Run waits InitialWait before the first pass, then ticks every Interval
// until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.InitialWait):
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now()
	users, err := s.store.DeleteExpiredUsers(ctx, now)
	if err != nil {
		s.logger.Error("delete expired users failed", "error", err)
	} else if users > 0 {
		s.logger.Info("deleted expired users", "count", users)
	}

	chats, err := s.store.DeleteOrphanedChats(ctx)
	if err != nil {
		s.logger.Error("delete orphaned chats failed", "error", err)
	} else if chats > 0 {
		s.logger.Info("deleted orphaned chats", "count", chats)
	}
}

// JitteredRemoveDate returns a new remove_date 0-86400 seconds beyond base,
// so that mass-refreshed accounts don't all expire at the same instant.
func JitteredRemoveDate(base time.Time) time.Time {
	return base.Add(time.Duration(rand.IntN(86400)) * time.Second)
}
