// Package push implements the Push Outbox: a background worker that drains
// push_send_queue rows for recipients who are currently offline, delivering
// a fixed, non-revealing notification shape through Web Push.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/lrcom/signal-core/config"
	"github.com/lrcom/signal-core/pkg/models"
	"github.com/lrcom/signal-core/pkg/store"
)

// Worker drains the push send queue on a fixed tick and separately prunes
// expired rows on a slower tick, per the Push Outbox's two-tick design.
type Worker struct {
	store  *store.Store
	cfg    config.PushConfig
	logger *slog.Logger
}

func NewWorker(st *store.Store, cfg config.PushConfig, logger *slog.Logger) *Worker {
	return &Worker{store: st, cfg: cfg, logger: logger}
}

// Enabled reports whether VAPID credentials are configured; the outbox is a
// no-op entirely when they are absent rather than failing loudly on boot.
func (w *Worker) Enabled() bool {
	return w.cfg.VAPIDPublicKey != "" && w.cfg.VAPIDPrivateKey != ""
}

// Run starts both ticking loops and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if !w.Enabled() {
		w.logger.Info("push outbox disabled: no VAPID credentials configured")
		return
	}

	sendTicker := time.NewTicker(w.cfg.WorkerTick)
	defer sendTicker.Stop()
	cleanupTicker := time.NewTicker(w.cfg.CleanupTick)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sendTicker.C:
			w.drainBatch(ctx)
		case <-cleanupTicker.C:
			if err := w.store.CleanupPush(ctx, time.Now()); err != nil {
				w.logger.Error("push cleanup failed", "error", err)
			}
		}
	}
}

func (w *Worker) drainBatch(ctx context.Context) {
	entries, err := w.store.ClaimUnsentPushes(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("claim unsent pushes failed", "error", err)
		return
	}
	for _, e := range entries {
		w.deliver(ctx, e)
	}
}

func (w *Worker) deliver(ctx context.Context, e models.PushQueueEntry) {
	if e.Attempts >= w.cfg.MaxAttempts {
		if err := w.store.MarkPushSent(ctx, e.UserID, e.MessageID); err != nil {
			w.logger.Error("mark abandoned push sent failed", "error", err, "user_id", e.UserID)
		}
		return
	}

	subs, err := w.store.GetPushSubscriptions(ctx, e.UserID)
	if err != nil {
		w.logger.Error("get push subscriptions failed", "error", err, "user_id", e.UserID)
		return
	}

	payload := models.PushPayload{
		Title: "New message",
		Body:  "New message",
		Tag:   fmt.Sprintf("lrcom-chat-%s", e.ChatID),
		URL:   fmt.Sprintf("%s/chats/%s", w.cfg.AppBaseURL, e.ChatID),
		Data:  models.PushPayloadData{ChatID: e.ChatID},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.Error("marshal push payload failed", "error", err)
		return
	}

	delivered := false
	for _, sub := range subs {
		if w.send(ctx, sub, body) {
			delivered = true
		}
	}

	if delivered {
		if err := w.store.MarkPushSent(ctx, e.UserID, e.MessageID); err != nil {
			w.logger.Error("mark push sent failed", "error", err, "user_id", e.UserID)
		}
		return
	}
	if err := w.store.IncrementPushAttempts(ctx, e.UserID, e.MessageID); err != nil {
		w.logger.Error("increment push attempts failed", "error", err, "user_id", e.UserID)
	}
}

// send delivers to a single subscription, pruning it on a permanent failure
// (404/410 from the push service) rather than retrying it forever.
func (w *Worker) send(ctx context.Context, sub models.PushSubscription, body []byte) bool {
	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
		Subscriber:      w.cfg.VAPIDSubject,
		TTL:             int((24 * time.Hour).Seconds()),
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		w.logger.Warn("push send failed", "error", err, "endpoint", sub.Endpoint)
		return false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true
	case resp.StatusCode == 404 || resp.StatusCode == 410:
		if err := w.store.PruneSubscription(ctx, sub.Endpoint); err != nil {
			w.logger.Error("prune gone subscription failed", "error", err, "endpoint", sub.Endpoint)
		}
		return false
	default:
		w.logger.Warn("push send rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		return false
	}
}
