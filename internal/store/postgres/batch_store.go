package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blendtrade/auctiond/internal/domain"
)

// BatchStore implements domain.BatchStore using PostgreSQL.
type BatchStore struct {
	pool *pgxpool.Pool
}

// NewBatchStore creates a BatchStore backed by the given connection pool.
func NewBatchStore(pool *pgxpool.Pool) *BatchStore {
	return &BatchStore{pool: pool}
}

// Open inserts the lifecycle row for a newly opened batch. Re-opening the
// same batch ID (after a restart replays the open event) is a no-op.
func (s *BatchStore) Open(ctx context.Context, rec domain.BatchRecord) error {
	const query = `
		INSERT INTO batches (id, market, opened_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, rec.ID, rec.Market, rec.OpenedAt); err != nil {
		return fmt.Errorf("postgres: open batch %d: %w", rec.ID, err)
	}
	return nil
}

// Close records a batch's terminal outcome and counters.
func (s *BatchStore) Close(ctx context.Context, id int64, outcome domain.BatchOutcome, commitments, revealed int, closedAt time.Time) error {
	const query = `
		UPDATE batches
		SET outcome = $2, commitments = $3, revealed = $4, closed_at = $5
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(outcome), commitments, revealed, closedAt)
	if err != nil {
		return fmt.Errorf("postgres: close batch %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one batch lifecycle row.
func (s *BatchStore) GetByID(ctx context.Context, id int64) (domain.BatchRecord, error) {
	const query = `
		SELECT id, market, opened_at, closed_at, COALESCE(outcome, ''), commitments, revealed
		FROM batches WHERE id = $1`

	var rec domain.BatchRecord
	var outcome string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Market, &rec.OpenedAt, &rec.ClosedAt, &outcome, &rec.Commitments, &rec.Revealed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BatchRecord{}, domain.ErrNotFound
		}
		return domain.BatchRecord{}, fmt.Errorf("postgres: get batch %d: %w", id, err)
	}
	rec.Outcome = domain.BatchOutcome(outcome)
	return rec, nil
}

// ListRecent returns the most recently opened batches for a market.
func (s *BatchStore) ListRecent(ctx context.Context, market string, opts domain.ListOpts) ([]domain.BatchRecord, error) {
	const query = `
		SELECT id, market, opened_at, closed_at, COALESCE(outcome, ''), commitments, revealed
		FROM batches
		WHERE market = $1
		ORDER BY opened_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, market, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list batches: %w", err)
	}
	defer rows.Close()

	var out []domain.BatchRecord
	for rows.Next() {
		var rec domain.BatchRecord
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.Market, &rec.OpenedAt, &rec.ClosedAt, &outcome, &rec.Commitments, &rec.Revealed); err != nil {
			return nil, fmt.Errorf("postgres: scan batch: %w", err)
		}
		rec.Outcome = domain.BatchOutcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.BatchStore = (*BatchStore)(nil)
