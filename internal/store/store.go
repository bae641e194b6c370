// internal/store/store.go

// Package store persists journey run records to PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Store writes and reads journey runs.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

var runColumns = []string{
	"journey_id", "scenario", "role", "email", "final_url",
	"outcome", "detail", "started_at", "duration_ms",
}

// SaveRuns bulk inserts run records in one transaction using the pgx
// CopyFrom protocol.
func (s *Store) SaveRuns(ctx context.Context, records []schemas.RunRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a commit reports ErrTxClosed, which is fine.
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rerr))
		}
	}()

	rows := make([][]interface{}, len(records))
	for i, r := range records {
		rows[i] = []interface{}{
			r.JourneyID, r.Scenario, r.Role, r.Email, r.FinalURL,
			r.Outcome, r.Detail, r.StartedAt.UTC(), r.Duration.Milliseconds(),
		}
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"journey_runs"}, runColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy journey runs: %w", err)
	}
	if int(copied) != len(records) {
		return fmt.Errorf("mismatch in copied run count: expected %d, got %d", len(records), copied)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RunsByScenario returns all recorded runs for a scenario, oldest first.
func (s *Store) RunsByScenario(ctx context.Context, scenario string) ([]schemas.RunRecord, error) {
	query := `
        SELECT journey_id, scenario, role, email, final_url, outcome, detail, started_at, duration_ms
        FROM journey_runs
        WHERE scenario = $1
        ORDER BY started_at ASC;
    `
	rows, err := s.pool.Query(ctx, query, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to query journey runs: %w", err)
	}
	defer rows.Close()

	var records []schemas.RunRecord
	for rows.Next() {
		var r schemas.RunRecord
		var durationMS int64
		err := rows.Scan(
			&r.JourneyID, &r.Scenario, &r.Role, &r.Email, &r.FinalURL,
			&r.Outcome, &r.Detail, &r.StartedAt, &durationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}
