/*
errors.go - Centralized error types for the servicing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these to HTTP statuses; callers branch with errors.Is.

ERROR CATEGORIES (mirrors the taxonomy callers must handle):
  1. Validation errors  - malformed/out-of-policy input, nothing applied
  2. State conflicts    - operation illegal for the account's current status
  3. Lock contention    - account busy, safe to retry
  4. Batch item failure - one account's COB replay failed, batch continued

USAGE:
    if errors.Is(err, servicing.ErrAccountLocked) {
        // retry later
    }
    var adj *servicing.AdjustmentNotAllowedError
    if errors.As(err, &adj) {
        fmt.Println(adj.Outstanding) // exact reversible basis
    }
*/
package servicing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDateOrderViolation is returned when a transaction date falls after
	// the account's current business date.
	ErrDateOrderViolation = errors.New("transaction date after business date")

	// ErrAdjustmentNotAllowed is returned when a reversal/replacement is
	// refused (charged-off account, already reversed, basis exceeded).
	ErrAdjustmentNotAllowed = errors.New("adjustment not allowed")

	// ErrAccountLocked is returned when the per-account lock is held.
	// Never queued; callers retry.
	ErrAccountLocked = errors.New("account locked")

	// ErrStateConflict is returned when an operation is illegal for the
	// account's current status (e.g. disburse before approval).
	ErrStateConflict = errors.New("operation not legal for account state")

	// ErrOverlappingPause is returned when a new pause period would overlap
	// an existing one.
	ErrOverlappingPause = errors.New("pause period overlaps an existing pause")

	// ErrNoActivePause is returned when resuming without an open pause.
	ErrNoActivePause = errors.New("no active pause period to resume")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound is returned when a referenced transaction
	// doesn't exist on the account.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrCatchUpRunning is returned when a catch-up batch is already in
	// flight process-wide. The second trigger is a no-op.
	ErrCatchUpRunning = errors.New("catch-up already running")

	// ErrOverpaymentNotAllowed is returned when a repayment exceeds the open
	// obligation and the product forbids overpayment.
	ErrOverpaymentNotAllowed = errors.New("amount exceeds open obligation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationFailure is a structured validation error with a stable code and
// a developer-facing message. Nothing is applied when one is returned.
type ValidationFailure struct {
	Code    string // e.g. "negative_amount", "unknown_transaction_type"
	Message string
}

func (e *ValidationFailure) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// AccountLockedError reports who holds the lock and why.
type AccountLockedError struct {
	AccountID AccountID
	Reason    LockReason
	Message   string
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account %d locked (%s)", e.AccountID, e.Reason)
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// AdjustmentNotAllowedError reports why a reversal was refused, including
// the exact reversible basis when the requested amount exceeded it.
type AdjustmentNotAllowedError struct {
	AccountID     AccountID
	TransactionID TransactionID
	Reason        string
	Outstanding   *Money // set when the basis was exceeded
}

func (e *AdjustmentNotAllowedError) Error() string {
	if e.Outstanding != nil {
		return fmt.Sprintf("adjustment not allowed for tx %s: %s (outstanding %s)",
			e.TransactionID, e.Reason, e.Outstanding)
	}
	return fmt.Sprintf("adjustment not allowed for tx %s: %s", e.TransactionID, e.Reason)
}

func (e *AdjustmentNotAllowedError) Unwrap() error { return ErrAdjustmentNotAllowed }

// StateConflictError reports an operation attempted against the wrong
// account status. The account is left untouched.
type StateConflictError struct {
	AccountID AccountID
	Status    AccountStatus
	Operation string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s account %d in status %s", e.Operation, e.AccountID, e.Status)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// PauseOverlapError reports the existing pause that blocked a new one.
type PauseOverlapError struct {
	AccountID AccountID
	Existing  PausePeriod
}

func (e *PauseOverlapError) Error() string {
	return fmt.Sprintf("pause overlaps existing pause starting %s", e.Existing.Start)
}

func (e *PauseOverlapError) Unwrap() error { return ErrOverlappingPause }

// BatchItemError records one account's failure during catch-up. The batch
// continues; the account's last closed business date is left unchanged so
// the next run retries it.
type BatchItemError struct {
	AccountID AccountID
	Err       error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("catch-up failed for account %d: %v", e.AccountID, e.Err)
}

func (e *BatchItemError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsLockContention returns true if the operation failed only because the
// account was busy; safe to retry.
func IsLockContention(err error) bool { return errors.Is(err, ErrAccountLocked) }

// IsStateConflict returns true if the operation is illegal for the
// account's current status.
func IsStateConflict(err error) bool { return errors.Is(err, ErrStateConflict) }

// IsValidationError returns true for malformed or out-of-policy input.
func IsValidationError(err error) bool {
	var vf *ValidationFailure
	return errors.As(err, &vf) ||
		errors.Is(err, ErrDateOrderViolation) ||
		errors.Is(err, ErrOverpaymentNotAllowed) ||
		errors.Is(err, ErrOverlappingPause) ||
		errors.Is(err, ErrNoActivePause)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrTransactionNotFound)
}
