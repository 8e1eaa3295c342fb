package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lrcom/signal-core/pkg/apperr"
	"github.com/lrcom/signal-core/pkg/models"
)

// CreateUser inserts a new account. Returns a conflict *apperr.Error if the
// username is already taken.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO users (id, username, public_key_jwk, vault, remove_date, hidden, introvert, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Username, u.PublicKeyJWK, u.Vault, u.RemoveDate, u.Hidden, u.Introvert, u.CreatedAt)
	if err != nil {
		s.logger.Error("create user failed", "username", u.Username, "error", err)
		return classifyPQError(err, apperr.KindConflict, "username already exists")
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx, `
		SELECT id, username, public_key_jwk, vault, remove_date, hidden, introvert, created_at
		FROM users WHERE id = $1
	`, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx, `
		SELECT id, username, public_key_jwk, vault, remove_date, hidden, introvert, created_at
		FROM users WHERE username = $1
	`, username))
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PublicKeyJWK, &u.Vault, &u.RemoveDate, &u.Hidden, &u.Introvert, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		s.logger.Error("get user failed", "error", err)
		return nil, apperr.Wrap(apperr.KindTransientDB, "get user", err)
	}
	return &u, nil
}

// CheckUsernameExists backs POST /api/auth/check-username.
func (s *Store) CheckUsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		s.logger.Error("check username failed", "error", err)
		return false, apperr.Wrap(apperr.KindTransientDB, "check username", err)
	}
	return exists, nil
}

// TouchRemoveDate refreshes a user's removal timestamp on activity, with the
// jitter the caller already applied (see pkg/cleanup).
func (s *Store) TouchRemoveDate(ctx context.Context, userID string, removeDate time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE users SET remove_date = $2 WHERE id = $1`, userID, removeDate)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "touch remove date", err)
	}
	return nil
}

// UpdateVault updates the encrypted settings vault and, in the same
// statement, refreshes remove_date per spec.md §3 ("refreshed ... on
// settings change").
func (s *Store) UpdateVault(ctx context.Context, userID, vault string, removeDate time.Time) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET vault = $2, remove_date = $3 WHERE id = $1`, userID, vault, removeDate)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "update vault", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) SetHiddenMode(ctx context.Context, userID string, hidden bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET hidden = $2 WHERE id = $1`, userID, hidden)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "set hidden mode", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) SetIntrovertMode(ctx context.Context, userID string, introvert bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET introvert = $2 WHERE id = $1`, userID, introvert)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "set introvert mode", err)
	}
	return checkRowsAffected(res)
}

// DeleteUser removes the account; FK cascades take chat_members, unread
// rows, subscriptions, and queue rows with it.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "delete user", err)
	}
	return nil
}

// DeleteExpiredUsers is the Expiry & Cleanup sweep's first step.
func (s *Store) DeleteExpiredUsers(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE remove_date < $1`, now)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindTransientDB, "delete expired users", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "rows affected", err)
	}
	if n == 0 {
		return apperr.New(apperr.KindNotFound, "not found")
	}
	return nil
}
