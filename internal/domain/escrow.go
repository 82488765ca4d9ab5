package domain

import (
	"context"
	"math/big"
)

// EscrowCustodian is the out-of-scope funds-custody collaborator. The engine
// invokes it at most once per commit (Reserve) and at most once per
// resolution (Release); the idempotency guard lives engine-side so a retried
// external call never double-releases funds.
type EscrowCustodian interface {
	// Reserve places a hold on amount wei for submitter against batchID.
	Reserve(ctx context.Context, submitter string, amount *big.Int, batchID int64) error

	// Release resolves a previously reserved hold with the given outcome.
	Release(ctx context.Context, submitter string, amount *big.Int, outcome ResolutionOutcome) error
}
