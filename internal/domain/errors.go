package domain

import (
	"errors"
	"fmt"
)

// Rule violations are expected user-input outcomes of admission and claim
// operations. They are reported to the caller, never retried automatically,
// and never logged as system errors.
var (
	// ErrTierNotActive is returned when a purchase targets a tier that is not
	// the currently active tier (stale, exhausted, future, or unknown).
	ErrTierNotActive = errors.New("tier not active")

	// ErrInvalidAmount is returned when a purchase amount is zero or negative.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrBelowMinimum is returned when a purchase amount is below the tier's
	// minimum purchase.
	ErrBelowMinimum = errors.New("amount below tier minimum")

	// ErrExceedsPerBuyerLimit is returned when a purchase would push the
	// buyer's running total within the tier past the tier's maximum.
	ErrExceedsPerBuyerLimit = errors.New("amount exceeds per-buyer limit")

	// ErrTierExhausted is returned when a purchase would push the tier's sold
	// counter past its total allocation.
	ErrTierExhausted = errors.New("tier allocation exhausted")

	// ErrNothingToClaim is the no-op outcome of a claim when no tokens have
	// unlocked since the buyer's last claim. It is informational, not a fault.
	ErrNothingToClaim = errors.New("nothing to claim")

	// ErrInvalidBuyerAddress is returned when a buyer address fails syntactic
	// validation at the external boundary.
	ErrInvalidBuyerAddress = errors.New("invalid buyer address")
)

// IsRuleViolation reports whether err is one of the expected admission or
// claim rule violations, as opposed to a storage or consistency failure.
func IsRuleViolation(err error) bool {
	return errors.Is(err, ErrTierNotActive) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrBelowMinimum) ||
		errors.Is(err, ErrExceedsPerBuyerLimit) ||
		errors.Is(err, ErrTierExhausted) ||
		errors.Is(err, ErrNothingToClaim) ||
		errors.Is(err, ErrInvalidBuyerAddress)
}

// ConsistencyError marks an observed state in which a ledger invariant does
// not hold (e.g. sold > total allocation). It must never occur under correct
// operation and is treated as fatal: surfaced loudly, never silently fixed.
type ConsistencyError struct {
	Invariant string
	Detail    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger consistency violation (%s): %s", e.Invariant, e.Detail)
}

// NewConsistencyError creates a ConsistencyError for a broken invariant.
func NewConsistencyError(invariant, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{
		Invariant: invariant,
		Detail:    fmt.Sprintf(format, args...),
	}
}

// IsConsistencyViolation reports whether err wraps a ConsistencyError.
func IsConsistencyViolation(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
