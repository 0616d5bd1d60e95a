package engine

import "errors"

// The engine's failure taxonomy. Callers branch with errors.Is.
var (
	// ErrValidation marks submissions rejected before any state
	// mutation: bad price, non-positive quantity, unknown side or
	// outcome, missing submitter.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence marks submissions whose ledger commit failed. The
	// whole submission was unwound; the caller may retry.
	ErrPersistence = errors.New("ledger commit failed")

	// ErrInternal marks an internal consistency violation. The
	// submission was aborted before commit; the state it found is
	// suspect and the error indicates a bug.
	ErrInternal = errors.New("internal invariant violation")
)
