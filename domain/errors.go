package domain

import "errors"

// Error taxonomy for the write/read paths. Handlers match these with
// errors.Is and map them to HTTP statuses.
var (
	// ErrValidation marks bad input, rejected before any external call.
	ErrValidation = errors.New("invalid input")

	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks an ownership or signature mismatch.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUpstream marks an unreachable content store or ledger gateway.
	// Callers may retry with backoff; nothing is retried internally.
	ErrUpstream = errors.New("upstream unavailable")

	// ErrLedgerRejected marks a reverted ledger operation. Terminal.
	ErrLedgerRejected = errors.New("ledger rejected operation")

	// ErrPartialCommit marks a cache write failure after the ledger step
	// already succeeded. The ledger is authoritative and irreversible, so
	// this is a reconciliation condition, not a user-facing failure.
	ErrPartialCommit = errors.New("partial commit, cache sync pending")
)
