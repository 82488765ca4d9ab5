// Package escrow provides implementations of the funds-custody collaborator
// boundary. Real deployments point this at a vault or chain adapter; the
// engine only ever sees the EscrowCustodian interface.
package escrow

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/blendtrade/auctiond/internal/domain"
)

// LogCustodian is a custody stand-in that records reservations and releases
// without moving funds. It tracks outstanding holds so tests and operators
// can assert that every reserve is matched by exactly one release.
type LogCustodian struct {
	mu       sync.Mutex
	held     map[string]*big.Int // submitter -> outstanding hold
	logger   *slog.Logger
	reserves int
	releases int
}

// NewLogCustodian returns a LogCustodian.
func NewLogCustodian(logger *slog.Logger) *LogCustodian {
	return &LogCustodian{
		held:   make(map[string]*big.Int),
		logger: logger.With(slog.String("component", "escrow")),
	}
}

// Reserve records a hold on amount for submitter against batchID.
func (c *LogCustodian) Reserve(ctx context.Context, submitter string, amount *big.Int, batchID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.held[submitter]
	if !ok {
		cur = new(big.Int)
		c.held[submitter] = cur
	}
	cur.Add(cur, amount)
	c.reserves++

	c.logger.InfoContext(ctx, "escrow reserved",
		slog.String("submitter", submitter),
		slog.String("amount_wei", amount.String()),
		slog.Int64("batch_id", batchID),
	)
	return nil
}

// Release resolves a hold with the given outcome. Releasing more than is
// held indicates a double release upstream and is reported as an error.
func (c *LogCustodian) Release(ctx context.Context, submitter string, amount *big.Int, outcome domain.ResolutionOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.held[submitter]
	if !ok || cur.Cmp(amount) < 0 {
		return domain.ErrAlreadyResolved
	}
	cur.Sub(cur, amount)
	if cur.Sign() == 0 {
		delete(c.held, submitter)
	}
	c.releases++

	c.logger.InfoContext(ctx, "escrow released",
		slog.String("submitter", submitter),
		slog.String("amount_wei", amount.String()),
		slog.String("outcome", string(outcome)),
	)
	return nil
}

// Outstanding returns the hold currently recorded for submitter, or zero.
func (c *LogCustodian) Outstanding(submitter string) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.held[submitter]; ok {
		return new(big.Int).Set(cur)
	}
	return new(big.Int)
}

// Counts returns the total number of reserve and release calls observed.
func (c *LogCustodian) Counts() (reserves, releases int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reserves, c.releases
}
