/*
store.go - Persistence interface for accounts, ledger, schedule, delinquency

PURPOSE:
  Defines the boundary between the engine and the database. Transactions
  are APPEND-ONLY: the single permitted post-write mutation is flipping
  ManuallyReversed to true - amounts, dates and portions never change.
  Corrections are expressed as paired reversing entries.

COPY-ON-COMMIT:
  Implementations return copies and accept copies. Mutating state happens
  only through the Save/Append/Replace calls made while the caller holds the
  account lock, so concurrent readers never see partial account state.

IMPLEMENTATIONS:
  - servicing/store (memory.go): in-memory, tests and dev
  - store/sqlite: production path (WAL mode, schema migration)

SEE ALSO:
  - ledger.go: The only writer of transactions
  - cob.go: The only writer of LastClosedBusinessDate
*/
package servicing

import "context"

// =============================================================================
// DELINQUENCY RECORDS
// =============================================================================

// DelinquencyTag is one append-only history row. At most one row per
// account has LiftedOn == nil (the current range); rows never overlap.
type DelinquencyTag struct {
	Range    string
	AddedOn  Date
	LiftedOn *Date
}

// PausePeriod freezes delinquency aging in [Start, End]. End nil means
// open-ended until resumed. Pause periods for an account never overlap.
type PausePeriod struct {
	ID        string
	AccountID AccountID
	Start     Date
	End       *Date
	Active    bool
}

// Covers reports whether the pause suspends aging on the given day.
func (p PausePeriod) Covers(day Date) bool {
	if !p.Active || day.Before(p.Start) {
		return false
	}
	return p.End == nil || day.BeforeOrEqual(*p.End)
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account and assigns its numeric id.
	CreateAccount(ctx context.Context, account LoanAccount) (LoanAccount, error)
	GetAccount(ctx context.Context, id AccountID) (LoanAccount, error)
	SaveAccount(ctx context.Context, account LoanAccount) error
	ListAccounts(ctx context.Context) ([]LoanAccount, error)

	// --- Transactions (append-only) ---

	// AppendTransaction persists a transaction and assigns its sequence.
	AppendTransaction(ctx context.Context, tx Transaction) (Transaction, error)

	// Transactions returns the account's full history ordered by
	// (date, sequence).
	Transactions(ctx context.Context, id AccountID) ([]Transaction, error)

	GetTransaction(ctx context.Context, id AccountID, txID TransactionID) (Transaction, error)

	// FindByIdempotencyKey returns the original transaction for a retried
	// key, if any.
	FindByIdempotencyKey(ctx context.Context, id AccountID, key string) (Transaction, bool, error)

	// MarkManuallyReversed flips the reversal flag. The only permitted
	// mutation of a stored transaction's facts.
	MarkManuallyReversed(ctx context.Context, id AccountID, txID TransactionID) error

	// SetAllocation stores the derived payment portions computed by replay.
	// Amounts and dates are never touched through this path.
	SetAllocation(ctx context.Context, id AccountID, txID TransactionID, alloc PaymentAllocation) error

	// --- Schedule ---

	// ReplaceSchedule swaps the account's repayment periods wholesale.
	// Called under the account lock only.
	ReplaceSchedule(ctx context.Context, id AccountID, periods []RepaymentPeriod) error
	Schedule(ctx context.Context, id AccountID) ([]RepaymentPeriod, error)

	// --- Delinquency tag history (append-only with close) ---

	TagHistory(ctx context.Context, id AccountID) ([]DelinquencyTag, error)
	AppendTag(ctx context.Context, id AccountID, tag DelinquencyTag) error
	CloseCurrentTag(ctx context.Context, id AccountID, liftedOn Date) error

	// --- Pause periods ---

	PausePeriods(ctx context.Context, id AccountID) ([]PausePeriod, error)
	SavePausePeriod(ctx context.Context, pause PausePeriod) error
}
