package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/dep-queue-worker/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

const schema = `
	CREATE TABLE IF NOT EXISTS dep_run_failures (
		scenario    TEXT NOT NULL,
		huc12       CHAR(12) NOT NULL,
		fpath       TEXT NOT NULL,
		hostname    TEXT NOT NULL,
		error_path  TEXT NOT NULL,
		timed_out   BOOLEAN NOT NULL DEFAULT FALSE,
		exit_code   INTEGER NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (scenario, huc12, fpath)
	)
`

// Storage records failed runs in PostgreSQL
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the ledger table if it does not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}
	return nil
}

// RecordFailure upserts the ledger row for a failed run.
// A rerun of the same flowpath replaces the previous row, mirroring the
// artifact file which is overwritten in place.
func (s *Storage) RecordFailure(ctx context.Context, rec *domain.FailureRecord) error {
	query := `
		INSERT INTO dep_run_failures
			(scenario, huc12, fpath, hostname, error_path, timed_out, exit_code, recorded_at)
		VALUES
			(:scenario, :huc12, :fpath, :hostname, :error_path, :timed_out, :exit_code, :recorded_at)
		ON CONFLICT (scenario, huc12, fpath) DO UPDATE
		SET hostname = EXCLUDED.hostname,
		    error_path = EXCLUDED.error_path,
		    timed_out = EXCLUDED.timed_out,
		    exit_code = EXCLUDED.exit_code,
		    recorded_at = EXCLUDED.recorded_at
	`

	if _, err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}

	s.logger.Debug("Failure recorded",
		slog.String("scenario", rec.Scenario),
		slog.String("huc12", rec.HUC12),
		slog.String("fpath", rec.FlowpathID),
	)

	return nil
}

// CountFailures returns the number of ledger rows for a scenario
func (s *Storage) CountFailures(ctx context.Context, scenario string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM dep_run_failures WHERE scenario = $1`, scenario)
	if err != nil {
		return 0, fmt.Errorf("failed to count failures: %w", err)
	}
	return n, nil
}
