// Package store is the Storage Gateway: typed query and transaction
// primitives over Postgres (lib/pq), plus a Redis-backed presence cache and
// the fabric's pub/sub channel. Multi-statement mutations run through WithTx
// under READ COMMITTED, the isolation level database/sql defaults lib/pq to.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"

	"github.com/lrcom/signal-core/pkg/apperr"
)

type Store struct {
	DB     *sql.DB
	RDB    *redis.Client
	logger *slog.Logger
}

func NewStore(ctx context.Context, pgConnStr, redisURL string, logger *slog.Logger) (*Store, error) {
	var db *sql.DB
	var err error

	for i := 0; i < 5; i++ {
		db, err = sql.Open("postgres", pgConnStr)
		if err == nil {
			err = db.PingContext(ctx)
			if err == nil {
				break
			}
		}
		logger.Warn("waiting for postgres", "attempt", i+1, "max", 5)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	rdb, err := newRedisClient(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	logger.Info("connected to postgres and redis")

	return &Store{DB: db, RDB: rdb, logger: logger}, nil
}

func (s *Store) Close() error {
	var errs []error
	if err := s.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("postgres close: %w", err))
	}
	if err := s.RDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise. create-personal-chat, create-group, send and
// leave-group go through this helper; delete-message, rename-group,
// delete-account and the expiry sweep are single statements (relying on FK
// cascades) and run without it.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindTransientDB, "commit transaction", err)
	}
	return nil
}

// classifyPQError maps a raw driver error to the Storage Gateway's two
// failure categories: integrity-violation (duplicate name, FK miss) and
// transient (connection, timeout). Callers further refine integrity errors
// (e.g. conflict vs not_found) based on which constraint fired.
func classifyPQError(err error, duplicateKind apperr.Kind, duplicateMsg string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return apperr.Wrap(duplicateKind, duplicateMsg, err)
		case "foreign_key_violation":
			return apperr.Wrap(apperr.KindNotFound, "referenced row does not exist", err)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, "not found", err)
	}
	return apperr.Wrap(apperr.KindTransientDB, "database operation failed", err)
}
