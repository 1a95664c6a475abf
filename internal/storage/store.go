package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"marzban-tg-admin/internal/constants"
	apperrors "marzban-tg-admin/internal/errors"
)

// Store is the local SQLite store for user links, roles and admin requests.
//
// The underlying pool is pinned to a single connection, so every statement and
// every transaction runs on that connection one at a time. Code running inside
// Transaction must use the *sqlx.Tx it is given and never the store's own methods,
// which would wait for the connection the transaction holds.
type Store struct {
	path       string
	db         *sqlx.DB
	closed     bool
	mu         sync.Mutex
	retryDelay time.Duration
	attempts   int
	logger     *logrus.Logger
}

// Option configures a Store
type Option func(*Store)

// WithRetryDelay sets the pause before a failed query is retried
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) {
		s.retryDelay = d
	}
}

// New creates a store for the database at path. No I/O happens until Connect.
func New(path string, logger *logrus.Logger, opts ...Option) *Store {
	if path == "" {
		path = constants.DefaultDBPath
	}

	s := &Store{
		path:       path,
		retryDelay: constants.QueryRetryDelay * time.Millisecond,
		attempts:   constants.QueryAttempts,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens the database and ensures the schema exists. It is idempotent and
// safe for concurrent use; only the first caller opens the connection. A closed
// store cannot be reopened.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.closedError()
	}
	if s.db != nil {
		return nil
	}

	db, err := sqlx.Open("sqlite3", s.path)
	if err != nil {
		return &apperrors.ConnectivityError{Target: "database " + s.path, Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return &apperrors.ConnectivityError{Target: "database " + s.path, Err: err}
	}

	// in-memory databases report "memory" instead of switching to WAL
	var journalMode string
	if err := db.GetContext(ctx, &journalMode, `PRAGMA journal_mode=WAL`); err != nil {
		s.logger.Warnf("Failed to enable WAL journal mode: %v", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA busy_timeout=%d`, constants.BusyTimeout)); err != nil {
		_ = db.Close()
		return &apperrors.ConnectivityError{Target: "database " + s.path, Err: err}
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return &apperrors.ConnectivityError{Target: "database " + s.path, Err: err}
	}

	applied, err := applyMigrations(ctx, db)
	if err != nil {
		_ = db.Close()
		s.logger.Errorf("Table creation failed: %v", err)
		return fmt.Errorf("ensure schema: %w", err)
	}
	if len(applied) > 0 {
		s.logger.Infof("Applied database migrations %v", applied)
	}

	s.db = db
	s.logger.Infof("Database connected to %s (journal mode %s)", s.path, journalMode)
	return nil
}

// Close closes the connection. Errors are logged and otherwise ignored; calling
// Close on a closed or never opened store is a no-op. Every later call fails.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Errorf("Error closing database connection: %v", err)
	} else {
		s.logger.Info("Database connection closed gracefully")
	}
	s.db = nil
}

// handle returns the open database
func (s *Store) handle() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, s.closedError()
	}
	if s.db == nil {
		return nil, &apperrors.ConnectivityError{Target: "database " + s.path, Err: errors.New("store is not connected")}
	}
	return s.db, nil
}

func (s *Store) closedError() error {
	return &apperrors.ConnectivityError{Target: "database " + s.path, Err: errors.New("store is closed")}
}

// Transaction runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back when fn returns an error or panics.
func (s *Store) Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Errorf("Rollback failed: %v", rbErr)
		}
		s.logger.Debugf("Transaction rolled back: %v", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Execute runs a single statement on q, retrying once after a short delay.
// Statements that are not idempotent (plain inserts) may be applied twice if
// the first attempt failed after reaching the database.
func (s *Store) Execute(ctx context.Context, q sqlx.ExtContext, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := s.withRetry(ctx, query, func() error {
		var err error
		res, err = q.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// get scans a single row into dest. It reports false without error when no row matched.
func (s *Store) get(ctx context.Context, q sqlx.QueryerContext, dest interface{}, query string, args ...interface{}) (bool, error) {
	err := s.withRetry(ctx, query, func() error {
		return sqlx.GetContext(ctx, q, dest, query, args...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// selectRows scans all rows into dest
func (s *Store) selectRows(ctx context.Context, q sqlx.QueryerContext, dest interface{}, query string, args ...interface{}) error {
	return s.withRetry(ctx, query, func() error {
		return sqlx.SelectContext(ctx, q, dest, query, args...)
	})
}

// withRetry runs op up to s.attempts times with s.retryDelay between attempts.
// Missing rows and context cancellation are returned immediately.
func (s *Store) withRetry(ctx context.Context, query string, op func() error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = op()
		if err == nil || errors.Is(err, sql.ErrNoRows) || ctx.Err() != nil {
			return err
		}
		if attempt == s.attempts {
			break
		}

		s.logger.Warnf("Retrying query: %s", shortQuery(query))
		select {
		case <-time.After(s.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Errorf("Query failed: %s Error: %v", shortQuery(query), err)
	return err
}

func shortQuery(query string) string {
	if len(query) > constants.MaxLoggedQueryLength {
		return query[:constants.MaxLoggedQueryLength] + "..."
	}
	return query
}
