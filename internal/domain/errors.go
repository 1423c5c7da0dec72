package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleData means a pool refresh failed and the prior snapshot is
	// still in use. Absorbed: the scan cycle retries on the next trigger.
	ErrStaleData = errors.New("stale pool data")
	// ErrNoViableCandidate means no cycle cleared the profit threshold.
	ErrNoViableCandidate = errors.New("no viable candidate")
	// ErrEvaluationTimeout means a candidate's evaluation exceeded its
	// per-evaluation budget and was discarded for this cycle.
	ErrEvaluationTimeout = errors.New("evaluation timed out")
	// ErrFeeCeilingExceeded means the minimum viable gas fee for timely
	// inclusion exceeds the configured ceiling; the request is abandoned
	// rather than underpriced.
	ErrFeeCeilingExceeded = errors.New("fee ceiling exceeded")
	// ErrSubmissionRejected means the broadcast path or relay refused the
	// signed request.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLockHeld means another instance holds the submission lock.
	ErrLockHeld = errors.New("lock already held")
	// ErrEmergencyStopped means the execution contract's circuit breaker is
	// active.
	ErrEmergencyStopped = errors.New("emergency stop active")
)

// ValidationKind identifies which security check failed.
type ValidationKind string

const (
	ValidationInsufficientSources ValidationKind = "insufficient_sources"
	ValidationPriceDeviation      ValidationKind = "price_deviation"
	ValidationSlippage            ValidationKind = "slippage"
)

// ValidationError reports a pre-submission safety check failure. Checks
// short-circuit: the error always names the first check that failed.
type ValidationError struct {
	Kind   ValidationKind
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Kind, e.Detail)
}

// NewValidationError builds a ValidationError with a formatted detail.
func NewValidationError(kind ValidationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// RevertReason identifies why the execution contract rolled back.
type RevertReason string

const (
	RevertUnauthorizedCaller    RevertReason = "unauthorized_caller"
	RevertInitiatorMismatch     RevertReason = "initiator_mismatch"
	RevertInsufficientRepayment RevertReason = "insufficient_repayment"
	RevertUnsupportedVenue      RevertReason = "unsupported_venue"
	RevertSlippageExceeded      RevertReason = "slippage_exceeded"
	RevertReentrancy            RevertReason = "reentrancy"
)

// RevertError is a failed-but-safe execution: the entire unit, including the
// loan, was rolled back. Only gas was spent.
type RevertError struct {
	Reason RevertReason
	Detail string
}

func (e *RevertError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("execution reverted: %s", e.Reason)
	}
	return fmt.Sprintf("execution reverted: %s: %s", e.Reason, e.Detail)
}

// Revert builds a RevertError with an optional formatted detail.
func Revert(reason RevertReason, format string, args ...any) *RevertError {
	return &RevertError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
