package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/models"
)

// CreatePersonalChat implements create-personal-chat(actor, otherUsername)
// per spec.md §4.3: reject self, idempotent on an existing shared personal
// chat, introvert-gated, otherwise insert chat+members transactionally.
func (s *Store) CreatePersonalChat(ctx context.Context, actorID, otherUsername string) (chat *models.Chat, otherUserID string, created bool, err error) {
	other, err := s.GetUserByUsername(ctx, otherUsername)
	if err != nil {
		return nil, "", false, err
	}
	if other.ID == actorID {
		return nil, "", false, apperr.New(apperr.KindValidation, "cannot create a personal chat with yourself")
	}

	existing, err := s.GetDirectChat(ctx, actorID, other.ID)
	if err != nil && !isNotFound(err) {
		return nil, "", false, err
	}
	if existing != nil {
		return existing, other.ID, false, nil
	}

	if other.Introvert {
		return nil, "", false, apperr.New(apperr.KindIntrovertBlock, "user is not accepting new chats")
	}

	chatID := NewID()
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chats (id, type, name) VALUES ($1, 'personal', NULL)`, chatID); err != nil {
			return classifyPQError(err, apperr.KindConflict, "chat already exists")
		}
		for _, uid := range []string{actorID, other.ID} {
			if _, err := tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chatID, uid); err != nil {
				return classifyPQError(err, apperr.KindConflict, "member already in chat")
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", false, err
	}
	return &models.Chat{ID: chatID, Type: models.ChatTypePersonal}, other.ID, true, nil
}

// GetDirectChat finds the (at most one, by invariant) personal chat shared
// by userA and userB.
func (s *Store) GetDirectChat(ctx context.Context, userA, userB string) (*models.Chat, error) {
	var chatID string
	var name sql.NullString
	err := s.DB.QueryRowContext(ctx, `
		SELECT c.id, c.name
		FROM chats c
		JOIN chat_members m1 ON m1.chat_id = c.id AND m1.user_id = $1
		JOIN chat_members m2 ON m2.chat_id = c.id AND m2.user_id = $2
		WHERE c.type = 'personal'
		LIMIT 1
	`, userA, userB).Scan(&chatID, &name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "no shared personal chat")
		}
		return nil, apperr.Wrap(apperr.KindTransientDB, "get direct chat", err)
	}
	c := &models.Chat{ID: chatID, Type: models.ChatTypePersonal}
	if name.Valid {
		c.Name = &name.String
	}
	return c, nil
}

// CreateGroup implements create-group(actor, name).
func (s *Store) CreateGroup(ctx context.Context, actorID, name string) (*models.Chat, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < 3 || len([]rune(name)) > 64 {
		return nil, apperr.New(apperr.KindValidation, "group name must be 3-64 characters")
	}
	chatID := NewID()
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chats (id, type, name) VALUES ($1, 'group', $2)`, chatID, name); err != nil {
			return classifyPQError(err, apperr.KindConflict, "chat already exists")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chatID, actorID); err != nil {
			return classifyPQError(err, apperr.KindConflict, "member already in chat")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.Chat{ID: chatID, Type: models.ChatTypeGroup, Name: &name}, nil
}

// AddMember implements add-group-member(actor, chat, username). Must be a
// group; the introvert rule applies exactly as create-personal's.
func (s *Store) AddMember(ctx context.Context, chatID, username string) (userID string, err error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if chat.Type != models.ChatTypeGroup {
		return "", apperr.New(apperr.KindValidation, "not a group chat")
	}
	other, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if other.Introvert {
		var has bool
		if err := s.DB.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM chat_members m1
				JOIN chat_members m2 ON m1.chat_id = m2.chat_id
				WHERE m1.user_id = $1 AND m2.user_id = $2
			)
		`, other.ID, chatID).Scan(&has); err != nil {
			return "", apperr.Wrap(apperr.KindTransientDB, "check shared chat", err)
		}
		if !has {
			return "", apperr.New(apperr.KindIntrovertBlock, "user is not accepting new chats")
		}
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)
		ON CONFLICT (chat_id, user_id) DO NOTHING
	`, chatID, other.ID)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransientDB, "add member", err)
	}
	return other.ID, nil
}

func (s *Store) RenameGroup(ctx context.Context, chatID, name string) error {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < 3 || len([]rune(name)) > 64 {
		return apperr.New(apperr.KindValidation, "group name must be 3-64 characters")
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE chats SET name = $2 WHERE id = $1 AND type = 'group'`, chatID, name)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "rename group", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var c models.Chat
	var name sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT id, type, name FROM chats WHERE id = $1`, chatID).Scan(&c.ID, &c.Type, &name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "chat not found")
		}
		return nil, apperr.Wrap(apperr.KindTransientDB, "get chat", err)
	}
	if name.Valid {
		c.Name = &name.String
	}
	return &c, nil
}

// IsMember is the membership guard every chat operation runs first
// (spec.md §4.3): callers map a false result to a "forbidden" error without
// distinguishing "no such chat" from "not a member", to avoid leaking
// membership.
func (s *Store) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2)`, chatID, userID).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.KindTransientDB, "check membership", err)
	}
	return exists, nil
}

func (s *Store) GetChatMemberIDs(ctx context.Context, chatID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT user_id FROM chat_members WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDB, "get chat members", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientDB, "scan member", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetChatMembers(ctx context.Context, chatID string) ([]models.ChatMemberView, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT u.id, u.username, u.public_key_jwk
		FROM chat_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.chat_id = $1
	`, chatID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDB, "get chat members", err)
	}
	defer rows.Close()
	var out []models.ChatMemberView
	for rows.Next() {
		var v models.ChatMemberView
		if err := rows.Scan(&v.UserID, &v.Username, &v.PublicKey); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientDB, "scan member view", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LeaveResult carries what the Realtime Fabric needs to fan out after a
// leave/delete.
type LeaveResult struct {
	ChatDeleted      bool
	RemainingMembers []string
}

// LeaveOrDeleteChat implements delete-personal-chat / leave-group(actor, chat)
// per spec.md §4.3.
func (s *Store) LeaveOrDeleteChat(ctx context.Context, actorID, chatID string) (*LeaveResult, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if chat.Type == models.ChatTypePersonal {
		members, err := s.GetChatMemberIDs(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if _, err := s.DB.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, chatID); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientDB, "delete personal chat", err)
		}
		return &LeaveResult{ChatDeleted: true, RemainingMembers: members}, nil
	}

	result := &LeaveResult{}
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		var highestID sql.NullString
		if err := tx.QueryRowContext(ctx, `SELECT id FROM messages WHERE chat_id = $1 ORDER BY id DESC LIMIT 1`, chatID).Scan(&highestID); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return apperr.Wrap(apperr.KindTransientDB, "get highest message id", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2`, chatID, actorID); err != nil {
			return apperr.Wrap(apperr.KindTransientDB, "remove member", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM unread_messages WHERE chat_id = $1 AND user_id = $2`, chatID, actorID); err != nil {
			return apperr.Wrap(apperr.KindTransientDB, "remove leaver unread rows", err)
		}

		if highestID.Valid {
			if _, err := tx.ExecContext(ctx, `
				UPDATE chat_members SET visible_after_message_id = $2
				WHERE chat_id = $1 AND (visible_after_message_id IS NULL OR visible_after_message_id < $2)
			`, chatID, highestID.String); err != nil {
				return apperr.Wrap(apperr.KindTransientDB, "advance visibility border", err)
			}
		}

		rows, err := tx.QueryContext(ctx, `SELECT user_id FROM chat_members WHERE chat_id = $1`, chatID)
		if err != nil {
			return apperr.Wrap(apperr.KindTransientDB, "list remaining members", err)
		}
		defer rows.Close()
		var remaining []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return apperr.Wrap(apperr.KindTransientDB, "scan remaining member", err)
			}
			remaining = append(remaining, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if len(remaining) == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, chatID); err != nil {
				return apperr.Wrap(apperr.KindTransientDB, "delete empty group", err)
			}
			result.ChatDeleted = true
		}
		result.RemainingMembers = remaining
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetUserChatSummaries backs GET /api/signed/chats: every chat the user
// belongs to, with the border-filtered last message and unread count.
func (s *Store) GetUserChatSummaries(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT
			c.id, c.type, c.name,
			(SELECT u2.id FROM chat_members cm2 JOIN users u2 ON u2.id = cm2.user_id
				WHERE cm2.chat_id = c.id AND cm2.user_id != $1 AND c.type = 'personal' LIMIT 1),
			(SELECT u2.username FROM chat_members cm2 JOIN users u2 ON u2.id = cm2.user_id
				WHERE cm2.chat_id = c.id AND cm2.user_id != $1 AND c.type = 'personal' LIMIT 1),
			(SELECT u2.public_key_jwk FROM chat_members cm2 JOIN users u2 ON u2.id = cm2.user_id
				WHERE cm2.chat_id = c.id AND cm2.user_id != $1 AND c.type = 'personal' LIMIT 1),
			(SELECT m.id FROM messages m
				WHERE m.chat_id = c.id AND (cm.visible_after_message_id IS NULL OR m.id > cm.visible_after_message_id)
				ORDER BY m.id DESC LIMIT 1),
			(SELECT m.sender_id FROM messages m
				WHERE m.chat_id = c.id AND (cm.visible_after_message_id IS NULL OR m.id > cm.visible_after_message_id)
				ORDER BY m.id DESC LIMIT 1),
			(SELECT m.encrypted_data FROM messages m
				WHERE m.chat_id = c.id AND (cm.visible_after_message_id IS NULL OR m.id > cm.visible_after_message_id)
				ORDER BY m.id DESC LIMIT 1),
			(SELECT count(*) FROM unread_messages um WHERE um.user_id = $1 AND um.chat_id = c.id)
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id AND cm.user_id = $1
	`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientDB, "list user chats", err)
	}
	defer rows.Close()

	var out []models.ChatSummary
	for rows.Next() {
		var cs models.ChatSummary
		var name, otherID, otherUsername, otherKey, lastID, lastSender, lastData sql.NullString
		var unread int
		if err := rows.Scan(&cs.ID, &cs.Type, &name, &otherID, &otherUsername, &otherKey, &lastID, &lastSender, &lastData, &unread); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientDB, "scan chat summary", err)
		}
		if name.Valid {
			cs.Name = &name.String
		}
		if otherID.Valid {
			cs.OtherUserID = &otherID.String
		}
		if otherUsername.Valid {
			cs.OtherUsername = &otherUsername.String
		}
		if otherKey.Valid {
			cs.OtherPublicKey = &otherKey.String
		}
		if lastID.Valid {
			cs.LastMessage = &models.Message{ID: lastID.String, ChatID: cs.ID, SenderID: lastSender.String, EncryptedData: lastData.String}
		}
		cs.UnreadCount = unread
		out = append(out, cs)
	}
	return out, rows.Err()
}

// DeleteOrphanedChats is the Expiry & Cleanup sweep's second step: personal
// chats with <2 members and empty group chats.
func (s *Store) DeleteOrphanedChats(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM chats c WHERE
			(SELECT count(*) FROM chat_members cm WHERE cm.chat_id = c.id) = 0
			OR (c.type = 'personal' AND (SELECT count(*) FROM chat_members cm WHERE cm.chat_id = c.id) < 2)
	`)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindTransientDB, "delete orphaned chats", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SharesAnyChat backs the Call Room Engine's Start authorization check
// (spec.md §4.6 `has_any`): true if userA and userB are members of at least
// one common chat, personal or group.
func (s *Store) SharesAnyChat(ctx context.Context, userA, userB string) (bool, error) {
	var has bool
	err := s.DB.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM chat_members m1
			JOIN chat_members m2 ON m1.chat_id = m2.chat_id
			WHERE m1.user_id = $1 AND m2.user_id = $2
		)
	`, userA, userB).Scan(&has)
	if err != nil {
		return false, apperr.Wrap(apperr.KindTransientDB, "check shared chat", err)
	}
	return has, nil
}

func isNotFound(err error) bool {
	ae, ok := apperr.As(err)
	return ok && ae.Kind == apperr.KindNotFound
}
