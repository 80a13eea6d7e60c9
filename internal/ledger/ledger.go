// Package ledger persists failed upstream calls so operators can find
// records that were republished with a partial income list and reconcile
// them later. It is optional; without a database the Discard recorder is used.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/navikt/aap-inntekt/pkg/config"
)

// Failure describes one upstream call that degraded to an empty contribution.
type Failure struct {
	CallID      string
	Personident string
	Upstream    string
	Reason      string
	Detail      string
	OccurredAt  time.Time
}

// Recorder stores failures.
type Recorder interface {
	RecordFailure(ctx context.Context, f Failure) error
}

type discard struct{}

func (discard) RecordFailure(context.Context, Failure) error { return nil }

// Discard drops every failure.
var Discard Recorder = discard{}

const schema = `
CREATE TABLE IF NOT EXISTS enrichment_failures (
    id           BIGSERIAL PRIMARY KEY,
    call_id      TEXT        NOT NULL,
    personident  TEXT        NOT NULL,
    upstream     TEXT        NOT NULL,
    reason       TEXT        NOT NULL,
    detail       TEXT        NOT NULL DEFAULT '',
    occurred_at  TIMESTAMPTZ NOT NULL
)`

const personidentIndex = `
CREATE INDEX IF NOT EXISTS enrichment_failures_personident_idx
    ON enrichment_failures (personident, occurred_at)`

// Store writes failures to PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to PostgreSQL, verifies the connection and creates the
// schema if needed.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := NewStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing pool.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "ledger"),
	}
}

// EnsureSchema creates the failure table and its index in one transaction.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("creating enrichment_failures: %w", err)
		}
		if _, err := tx.ExecContext(ctx, personidentIndex); err != nil {
			return fmt.Errorf("creating personident index: %w", err)
		}
		return nil
	})
}

// RecordFailure inserts one row.
func (s *Store) RecordFailure(ctx context.Context, f Failure) error {
	if f.OccurredAt.IsZero() {
		f.OccurredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_failures (call_id, personident, upstream, reason, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.CallID, f.Personident, f.Upstream, f.Reason, f.Detail, f.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting failure for call %s: %w", f.CallID, err)
	}
	s.logger.Debug("failure recorded", "call_id", f.CallID, "upstream", f.Upstream, "reason", f.Reason)
	return nil
}

// CountByPersonident returns how many failures are recorded for a subject.
func (s *Store) CountByPersonident(ctx context.Context, personident string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrichment_failures WHERE personident = $1`, personident,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting failures: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
