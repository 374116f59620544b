package ledger

import "errors"

var (
	ErrInvalidSchedule        = errors.New("invalid schedule")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrCreditNotActive        = errors.New("credit not active")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrAllocationInvariant marks a defect in the distribution engine, never a user error.
	ErrAllocationInvariant = errors.New("allocation invariant violated")
)
