package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/models"
)

// SendResult carries what the caller needs to fan out and, if applicable,
// enqueue pushes: the new message id and who besides the sender should see
// it.
type SendResult struct {
	MessageID  string
	Recipients []string
}

// SendMessage implements send-message(sender, chat, ciphertext) per
// spec.md §4.3: mint a time-ordered id, enforce the size cap, insert the
// message, and insert an unread row for every member except the sender, all
// in one transaction.
func (s *Store) SendMessage(ctx context.Context, senderID, chatID, encryptedData string) (*SendResult, error) {
	if len(encryptedData) > models.MaxCiphertextBytes {
		return nil, apperr.New(apperr.KindPayloadTooLarge, "ciphertext exceeds 50KB")
	}
	msgID, err := NewMessageID()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDB, "mint message id", err)
	}

	result := &SendResult{MessageID: msgID}
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, sender_id, encrypted_data) VALUES ($1, $2, $3, $4)
		`, msgID, chatID, senderID, encryptedData); err != nil {
			return classifyPQError(err, apperr.KindConflict, "message already exists")
		}

		rows, err := tx.QueryContext(ctx, `SELECT user_id FROM chat_members WHERE chat_id = $1 AND user_id != $2`, chatID, senderID)
		if err != nil {
			return apperr.Wrap(apperr.KindTransientDB, "list recipients", err)
		}
		defer rows.Close()
		var recipients []string
		for rows.Next() {
			var uid string
			if err := rows.Scan(&uid); err != nil {
				return apperr.Wrap(apperr.KindTransientDB, "scan recipient", err)
			}
			recipients = append(recipients, uid)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, uid := range recipients {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO unread_messages (user_id, message_id, chat_id) VALUES ($1, $2, $3)
			`, uid, msgID, chatID); err != nil {
				return apperr.Wrap(apperr.KindTransientDB, "insert unread row", err)
			}
		}
		result.Recipients = recipients
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	var m models.Message
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, chat_id, sender_id, encrypted_data FROM messages WHERE id = $1
	`, messageID).Scan(&m.ID, &m.ChatID, &m.SenderID, &m.EncryptedData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "message not found")
		}
		return nil, apperr.Wrap(apperr.KindTransientDB, "get message", err)
	}
	return &m, nil
}

// UpdateMessage implements update-message: forbidden unless senderID equals
// the stored sender_id.
func (s *Store) UpdateMessage(ctx context.Context, senderID, messageID, encryptedData string) error {
	if len(encryptedData) > models.MaxCiphertextBytes {
		return apperr.New(apperr.KindPayloadTooLarge, "ciphertext exceeds 50KB")
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE messages SET encrypted_data = $3 WHERE id = $1 AND sender_id = $2
	`, messageID, senderID, encryptedData)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "update message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "rows affected", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindForbidden, "only the sender may update this message")
	}
	return nil
}

// DeleteMessage implements delete-message: same sender-only rule; cascade
// removes unread rows via the FK.
func (s *Store) DeleteMessage(ctx context.Context, senderID, messageID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM messages WHERE id = $1 AND sender_id = $2`, messageID, senderID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "delete message", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "rows affected", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindForbidden, "only the sender may delete this message")
	}
	return nil
}

// GetHistory implements history-read(user, chat, limit, before): newest
// first, filtered by the member's visibility border, optionally before a
// cursor id.
func (s *Store) GetHistory(ctx context.Context, userID, chatID string, limit int, before string) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var border sql.NullString
	if err := s.DB.QueryRowContext(ctx, `
		SELECT visible_after_message_id FROM chat_members WHERE chat_id = $1 AND user_id = $2
	`, chatID, userID).Scan(&border); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindForbidden, "not a member of this chat")
		}
		return nil, apperr.Wrap(apperr.KindTransientDB, "get visibility border", err)
	}

	query := `SELECT id, chat_id, sender_id, encrypted_data FROM messages WHERE chat_id = $1`
	args := []any{chatID}
	n := 2
	if border.Valid {
		query += fmt.Sprintf(" AND id > $%d", n)
		args = append(args, border.String)
		n++
	}
	if before != "" {
		query += fmt.Sprintf(" AND id < $%d", n)
		args = append(args, before)
		n++
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", n)
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDB, "get history", err)
	}
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.EncryptedData); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientDB, "scan message", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
