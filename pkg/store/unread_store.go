package store

import (
	"context"

	"github.com/lib/pq"

	"github.com/lrcom/signal-core/pkg/apperr"
)

// ListUnread implements unread-list(user, chat, limit).
func (s *Store) ListUnread(ctx context.Context, userID, chatID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT message_id FROM unread_messages WHERE user_id = $1 AND chat_id = $2
		ORDER BY message_id ASC LIMIT $3
	`, userID, chatID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDB, "list unread", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientDB, "scan unread id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkChatRead implements mark-chat-read: delete all unread rows for
// (user, chat).
func (s *Store) MarkChatRead(ctx context.Context, userID, chatID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM unread_messages WHERE user_id = $1 AND chat_id = $2`, userID, chatID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "mark chat read", err)
	}
	return nil
}

// MarkMessagesRead implements mark-messages-read: delete the named ids and
// return the remaining unread count for that chat.
func (s *Store) MarkMessagesRead(ctx context.Context, userID, chatID string, messageIDs []string) (int, error) {
	if len(messageIDs) == 0 {
		return s.unreadCount(ctx, userID, chatID)
	}
	if _, err := s.DB.ExecContext(ctx, `
		DELETE FROM unread_messages WHERE user_id = $1 AND chat_id = $2 AND message_id = ANY($3)
	`, userID, chatID, pq.Array(messageIDs)); err != nil {
		return 0, apperr.Wrap(apperr.KindTransientDB, "mark messages read", err)
	}
	return s.unreadCount(ctx, userID, chatID)
}

func (s *Store) unreadCount(ctx context.Context, userID, chatID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM unread_messages WHERE user_id = $1 AND chat_id = $2
	`, userID, chatID).Scan(&count)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindTransientDB, "count unread", err)
	}
	return count, nil
}
