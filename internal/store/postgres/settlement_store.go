package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blendtrade/auctiond/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL. The
// settlement header and its fills are written in one transaction so readers
// never observe a settlement without its fills.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Insert persists a settlement and all of its fills atomically.
func (s *SettlementStore) Insert(ctx context.Context, stl domain.Settlement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin settlement insert: %w", err)
	}
	defer tx.Rollback(ctx)

	const header = `
		INSERT INTO settlements (batch_id, clearing_price_ticks, total_volume, settled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (batch_id) DO NOTHING`

	tag, err := tx.Exec(ctx, header, stl.BatchID, stl.ClearingPriceTicks, stl.TotalVolume, stl.SettledAt)
	if err != nil {
		return fmt.Errorf("postgres: insert settlement %d: %w", stl.BatchID, err)
	}
	if tag.RowsAffected() == 0 {
		// Already persisted; a replayed event after restart.
		return nil
	}

	const fill = `
		INSERT INTO fills (batch_id, submitter, side, filled, amount_in, amount_received, execution_position, total_orders)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, f := range stl.Fills {
		if _, err := tx.Exec(ctx, fill, stl.BatchID, f.Submitter, string(f.Side), f.Filled, f.AmountIn, f.AmountReceived, f.ExecutionPosition, f.TotalOrders); err != nil {
			return fmt.Errorf("postgres: insert fill %d/%s: %w", stl.BatchID, f.Submitter, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit settlement %d: %w", stl.BatchID, err)
	}
	return nil
}

// GetByBatch returns one settlement with its fills.
func (s *SettlementStore) GetByBatch(ctx context.Context, batchID int64) (domain.Settlement, error) {
	const header = `
		SELECT batch_id, clearing_price_ticks, total_volume, settled_at
		FROM settlements WHERE batch_id = $1`

	var stl domain.Settlement
	err := s.pool.QueryRow(ctx, header, batchID).Scan(
		&stl.BatchID, &stl.ClearingPriceTicks, &stl.TotalVolume, &stl.SettledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settlement{}, domain.ErrNotFound
		}
		return domain.Settlement{}, fmt.Errorf("postgres: get settlement %d: %w", batchID, err)
	}

	fills, err := s.fillsFor(ctx, batchID)
	if err != nil {
		return domain.Settlement{}, err
	}
	stl.Fills = fills
	return stl, nil
}

// ListRecent returns the latest settlements, fills included.
func (s *SettlementStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	const query = `
		SELECT batch_id, clearing_price_ticks, total_volume, settled_at
		FROM settlements
		ORDER BY settled_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		var stl domain.Settlement
		if err := rows.Scan(&stl.BatchID, &stl.ClearingPriceTicks, &stl.TotalVolume, &stl.SettledAt); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		out = append(out, stl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		fills, err := s.fillsFor(ctx, out[i].BatchID)
		if err != nil {
			return nil, err
		}
		out[i].Fills = fills
	}
	return out, nil
}

func (s *SettlementStore) fillsFor(ctx context.Context, batchID int64) ([]domain.Fill, error) {
	const query = `
		SELECT submitter, side, filled, amount_in, amount_received, execution_position, total_orders
		FROM fills
		WHERE batch_id = $1
		ORDER BY execution_position ASC, submitter ASC`

	rows, err := s.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills for batch %d: %w", batchID, err)
	}
	defer rows.Close()

	var out []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side string
		if err := rows.Scan(&f.Submitter, &side, &f.Filled, &f.AmountIn, &f.AmountReceived, &f.ExecutionPosition, &f.TotalOrders); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Side = domain.OrderSide(side)
		out = append(out, f)
	}
	return out, rows.Err()
}

var _ domain.SettlementStore = (*SettlementStore)(nil)
