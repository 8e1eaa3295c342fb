package store

import (
	"context"
	"database/sql"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/models"
)

// UpsertPushSubscription implements POST /api/signed/push/subscribe. The
// retention window is randomized per spec.md §3 (21-90 days), capped one
// minute below the user's own remove_date.
func (s *Store) UpsertPushSubscription(ctx context.Context, userID string, req models.PushSubscribeRequest, minRetention, maxRetention time.Duration) error {
	var userRemoveDate time.Time
	if err := s.DB.QueryRowContext(ctx, `SELECT remove_date FROM users WHERE id = $1`, userID).Scan(&userRemoveDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "user not found")
		}
		return apperr.Wrap(apperr.KindTransientDB, "get user remove date", err)
	}

	retention := minRetention + time.Duration(rand.Int64N(int64(maxRetention-minRetention)))
	removeDate := time.Now().Add(retention)
	if cap := userRemoveDate.Add(-time.Minute); removeDate.After(cap) {
		removeDate = cap
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, user_id, p256dh, auth, remove_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE SET p256dh = $3, auth = $4, remove_date = $5
	`, req.Endpoint, userID, req.P256dh, req.Auth, removeDate)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "upsert push subscription", err)
	}
	return nil
}

func (s *Store) DisablePushSubscription(ctx context.Context, userID, endpoint string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1 AND user_id = $2`, endpoint, userID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "disable push subscription", err)
	}
	return nil
}

func (s *Store) GetPushSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT endpoint, user_id, p256dh, auth, remove_date FROM push_subscriptions WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDB, "get push subscriptions", err)
	}
	defer rows.Close()
	var out []models.PushSubscription
	for rows.Next() {
		var p models.PushSubscription
		if err := rows.Scan(&p.Endpoint, &p.UserID, &p.P256dh, &p.Auth, &p.RemoveDate); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientDB, "scan push subscription", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) HasPushSubscription(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM push_subscriptions WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.KindTransientDB, "check push subscription", err)
	}
	return exists, nil
}

func (s *Store) PruneSubscription(ctx context.Context, endpoint string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "prune push subscription", err)
	}
	return nil
}

// EnqueuePush implements the Push Outbox's insert-on-offline-send step:
// created only if the user has at least one subscription.
func (s *Store) EnqueuePush(ctx context.Context, userID, messageID, chatID string, minRetention, maxRetention time.Duration) error {
	has, err := s.HasPushSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if !has {
		return nil
	}
	retention := minRetention + time.Duration(rand.Int64N(int64(maxRetention-minRetention)))
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO push_send_queue (user_id, message_id, chat_id, attempts, sent, remove_date)
		VALUES ($1, $2, $3, 0, FALSE, $4)
		ON CONFLICT (user_id, message_id) DO NOTHING
	`, userID, messageID, chatID, time.Now().Add(retention))
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "enqueue push", err)
	}
	return nil
}

// ClaimUnsentPushes claims up to batchSize rows that are still unread and
// not sent: the worker tick's "claims... rows that are still unread" step,
// grounded by a join against unread_messages.
func (s *Store) ClaimUnsentPushes(ctx context.Context, batchSize int) ([]models.PushQueueEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT q.user_id, q.message_id, q.chat_id, q.attempts, q.sent, q.remove_date
		FROM push_send_queue q
		JOIN unread_messages um ON um.user_id = q.user_id AND um.message_id = q.message_id
		WHERE NOT q.sent
		ORDER BY q.remove_date ASC
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDB, "claim unsent pushes", err)
	}
	defer rows.Close()
	var out []models.PushQueueEntry
	for rows.Next() {
		var e models.PushQueueEntry
		if err := rows.Scan(&e.UserID, &e.MessageID, &e.ChatID, &e.Attempts, &e.Sent, &e.RemoveDate); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientDB, "scan push queue entry", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) MarkPushSent(ctx context.Context, userID, messageID string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE push_send_queue SET sent = TRUE WHERE user_id = $1 AND message_id = $2`, userID, messageID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "mark push sent", err)
	}
	return nil
}

func (s *Store) IncrementPushAttempts(ctx context.Context, userID, messageID string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE push_send_queue SET attempts = attempts + 1 WHERE user_id = $1 AND message_id = $2`, userID, messageID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "increment push attempts", err)
	}
	return nil
}

// CleanupPush is the Push Outbox's separate 5-minute cleanup tick: expired
// subscriptions, expired queue rows, and queue rows whose unread
// counterpart no longer exists.
func (s *Store) CleanupPush(ctx context.Context, now time.Time) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE remove_date < $1`, now); err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "cleanup expired subscriptions", err)
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM push_send_queue WHERE remove_date < $1`, now); err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "cleanup expired queue rows", err)
	}
	if _, err := s.DB.ExecContext(ctx, `
		DELETE FROM push_send_queue q WHERE NOT EXISTS (
			SELECT 1 FROM unread_messages um WHERE um.user_id = q.user_id AND um.message_id = q.message_id
		)
	`); err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "cleanup orphaned queue rows", err)
	}
	return nil
}
