package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blendtrade/auctiond/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL. Rows are
// append-only; nothing ever updates or deletes them.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore backed by the given pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one audit row.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	const query = `INSERT INTO audit_log (event, detail) VALUES ($1, $2)`
	if _, err := s.pool.Exec(ctx, query, event, payload); err != nil {
		return fmt.Errorf("postgres: insert audit row: %w", err)
	}
	return nil
}

// List returns the newest audit rows first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	const query = `
		SELECT id, event, detail, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit rows: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Event, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit row: %w", err)
		}
		if err := json.Unmarshal(payload, &entry.Detail); err != nil {
			return nil, fmt.Errorf("postgres: decode audit detail: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

var _ domain.AuditStore = (*AuditStore)(nil)
