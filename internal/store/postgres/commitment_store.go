package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blendtrade/auctiond/internal/domain"
)

// CommitmentStore implements domain.CommitmentStore using PostgreSQL.
// Escrow amounts are stored as NUMERIC(78,0) so the full wei range survives
// the round trip; they cross the wire as decimal strings.
type CommitmentStore struct {
	pool *pgxpool.Pool
}

// NewCommitmentStore creates a CommitmentStore backed by the given pool.
func NewCommitmentStore(pool *pgxpool.Pool) *CommitmentStore {
	return &CommitmentStore{pool: pool}
}

// Insert persists one accepted commitment. Duplicate (batch, submitter)
// pairs are rejected by the engine before it ever emits the event, so a
// conflict here is a real error, not something to swallow.
func (s *CommitmentStore) Insert(ctx context.Context, rec domain.CommitmentRecord) error {
	const query = `
		INSERT INTO commitments (batch_id, submitter, commit_hash, escrow_wei, submitted_at)
		VALUES ($1, $2, $3, $4, $5)`

	escrow := "0"
	if rec.EscrowWei != nil {
		escrow = rec.EscrowWei.String()
	}
	if _, err := s.pool.Exec(ctx, query, rec.BatchID, rec.Submitter, rec.CommitHash, escrow, rec.SubmittedAt); err != nil {
		return fmt.Errorf("postgres: insert commitment %d/%s: %w", rec.BatchID, rec.Submitter, err)
	}
	return nil
}

// Resolve marks a commitment's terminal escrow outcome.
func (s *CommitmentStore) Resolve(ctx context.Context, batchID int64, submitter string, revealed bool, outcome domain.ResolutionOutcome) error {
	const query = `
		UPDATE commitments
		SET revealed = $3, outcome = $4, resolved_at = $5
		WHERE batch_id = $1 AND submitter = $2`

	tag, err := s.pool.Exec(ctx, query, batchID, submitter, revealed, string(outcome), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: resolve commitment %d/%s: %w", batchID, submitter, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByBatch returns every commitment row for one batch.
func (s *CommitmentStore) ListByBatch(ctx context.Context, batchID int64) ([]domain.CommitmentRecord, error) {
	const query = `
		SELECT batch_id, submitter, commit_hash, escrow_wei::text, submitted_at, revealed, COALESCE(outcome, '')
		FROM commitments
		WHERE batch_id = $1
		ORDER BY submitted_at ASC`

	rows, err := s.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list commitments for batch %d: %w", batchID, err)
	}
	defer rows.Close()

	var out []domain.CommitmentRecord
	for rows.Next() {
		var rec domain.CommitmentRecord
		var escrow, outcome string
		if err := rows.Scan(&rec.BatchID, &rec.Submitter, &rec.CommitHash, &escrow, &rec.SubmittedAt, &rec.Revealed, &outcome); err != nil {
			return nil, fmt.Errorf("postgres: scan commitment: %w", err)
		}
		wei, ok := new(big.Int).SetString(escrow, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: commitment %d/%s has malformed escrow %q", rec.BatchID, rec.Submitter, escrow)
		}
		rec.EscrowWei = wei
		rec.Outcome = domain.ResolutionOutcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ domain.CommitmentStore = (*CommitmentStore)(nil)
