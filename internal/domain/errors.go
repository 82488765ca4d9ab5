package domain

import "errors"

var (
	// Auction protocol errors. All are recoverable at the calling layer and
	// surface as rejected calls, never crashes.
	ErrWrongPhase          = errors.New("operation not valid in current phase")
	ErrDuplicateCommitment = errors.New("submitter already committed this batch")
	ErrNoCommitmentFound   = errors.New("no commitment found for submitter")
	ErrHashMismatch        = errors.New("revealed order does not match commitment")
	ErrInvalidEscrow       = errors.New("escrow amount must be positive")
	ErrDeadlineMissed      = errors.New("phase deadline missed")
	ErrAlreadyResolved     = errors.New("escrow already resolved")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrResetRequired       = errors.New("failed order must be reset before committing")

	// Infrastructure errors.
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")
)
