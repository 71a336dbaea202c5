/*
adjustment.go - Reversal and replacement of ledger entries

PURPOSE:
  Reverses a posted transaction while preserving the full audit trail.
  The target keeps its amount, date and portions forever; the reversal
  effect is a paired reversing entry, and an optional replacement carries
  a corrected amount/date forward. "Undo" is the same operation with no
  replacement amount.

REFUSALS (AdjustmentNotAllowed):
  - the account is charged off (charge-off freezes adjustments)
  - the transaction is already reversed
  - the requested amount exceeds the reversible basis; the error reports
    the exact outstanding figure
  - the target is a disbursement and no replacement amount is given; a
    corrected disbursement regenerates the schedule, a reversal alone
    would strand an active loan without one

RECOMPUTATION:
  Adjustment never patches balances. It appends entries, then the ledger
  replays the full history, and reactors (delinquency) recompute off the
  LedgerChanged fact - the same pipeline as any other posting.

SEE ALSO:
  - ledger.go: Replay and the reactor pipeline
*/
package servicing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AdjustmentInput parameterizes reverse-and-replace. A zero or absent
// NewAmount means pure reversal with no replacement.
type AdjustmentInput struct {
	NewAmount *Money
	NewDate   *Date
}

// Adjust marks the target manually reversed, appends the paired reversing
// entry, and optionally posts a replacement of the same type. Callers must
// hold the account lock.
func (l *Ledger) Adjust(ctx context.Context, accountID AccountID, txID TransactionID, in AdjustmentInput) (Transaction, *Transaction, error) {
	account, err := l.Store.GetAccount(ctx, accountID)
	if err != nil {
		return Transaction{}, nil, err
	}
	target, err := l.Store.GetTransaction(ctx, accountID, txID)
	if err != nil {
		return Transaction{}, nil, err
	}

	if account.Status == StatusChargedOff {
		return Transaction{}, nil, &AdjustmentNotAllowedError{
			AccountID: accountID, TransactionID: txID,
			Reason: "account is charged off",
		}
	}
	if target.ManuallyReversed {
		return Transaction{}, nil, &AdjustmentNotAllowedError{
			AccountID: accountID, TransactionID: txID,
			Reason: "transaction already reversed",
		}
	}
	if target.IsReversalEntry() {
		return Transaction{}, nil, &AdjustmentNotAllowedError{
			AccountID: accountID, TransactionID: txID,
			Reason: "cannot reverse a reversal entry",
		}
	}

	hasReplacement := in.NewAmount != nil && in.NewAmount.IsPositive()

	// A disbursement anchors the schedule; un-disbursing an active loan is
	// not a correction. The disbursed amount can only be replaced.
	if target.Type == TxDisbursement && !hasReplacement {
		return Transaction{}, nil, &AdjustmentNotAllowedError{
			AccountID: accountID, TransactionID: txID,
			Reason: "disbursement adjustment requires a replacement amount",
		}
	}

	// The replacement cannot exceed the reversible basis. For charge-type
	// entries (accruals) the basis is the charge's outstanding amount.
	if hasReplacement {
		basis, err := l.reversibleBasis(ctx, account, target)
		if err != nil {
			return Transaction{}, nil, err
		}
		if in.NewAmount.GreaterThan(basis) {
			b := basis
			return Transaction{}, nil, &AdjustmentNotAllowedError{
				AccountID: accountID, TransactionID: txID,
				Reason: "amount exceeds reversible basis", Outstanding: &b,
			}
		}
	}

	effectiveDate := target.Date
	if in.NewDate != nil {
		if in.NewDate.After(l.Clock.BusinessDate()) {
			return Transaction{}, nil, ErrDateOrderViolation
		}
		effectiveDate = *in.NewDate
	}

	if err := l.Store.MarkManuallyReversed(ctx, accountID, txID); err != nil {
		return Transaction{}, nil, err
	}

	reversalEntry := Transaction{
		ID:         TransactionID(uuid.NewString()),
		AccountID:  accountID,
		Type:       target.Type,
		Date:       effectiveDate,
		Amount:     target.Amount,
		ReversalOf: target.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := l.Store.AppendTransaction(ctx, reversalEntry); err != nil {
		return Transaction{}, nil, err
	}

	var replacement *Transaction
	if hasReplacement {
		repl := Transaction{
			ID:        TransactionID(uuid.NewString()),
			AccountID: accountID,
			Type:      target.Type,
			Date:      effectiveDate,
			Amount:    *in.NewAmount,
			CreatedAt: time.Now().UTC(),
		}
		if target.Type == TxDisbursement {
			repl.Allocation = PaymentAllocation{Principal: *in.NewAmount}
		}
		repl, err = l.Store.AppendTransaction(ctx, repl)
		if err != nil {
			return Transaction{}, nil, err
		}
		replacement = &repl
	}

	// A corrected disbursement re-anchors the whole schedule: the due
	// amounts must amortize the replacement principal before the history
	// replays onto them.
	if target.Type == TxDisbursement {
		if err := l.rescheduleDisbursement(ctx, &account, *in.NewAmount, effectiveDate); err != nil {
			return Transaction{}, nil, err
		}
	}

	if _, err := l.recompute(ctx, account, target.Type, effectiveDate); err != nil {
		return Transaction{}, nil, err
	}

	reversed, err := l.Store.GetTransaction(ctx, accountID, txID)
	if err != nil {
		return Transaction{}, nil, err
	}
	if replacement != nil {
		repl, err := l.Store.GetTransaction(ctx, accountID, replacement.ID)
		if err != nil {
			return Transaction{}, nil, err
		}
		replacement = &repl
	}
	return reversed, replacement, nil
}

// rescheduleDisbursement regenerates the schedule for a corrected
// disbursement amount and date, the same way the original disbursement
// built it.
func (l *Ledger) rescheduleDisbursement(ctx context.Context, account *LoanAccount, principal Money, disbursedOn Date) error {
	calc, err := l.Products.CalculatorFor(account.ProductCode)
	if err != nil {
		return err
	}
	account.Terms.Principal = principal
	account.Terms.DisbursedOn = disbursedOn

	schedule, err := calc.Generate(ctx, account.Terms)
	if err != nil {
		return err
	}
	if len(schedule) == 0 {
		return &ValidationFailure{Code: "empty_schedule", Message: "calculator produced no periods"}
	}
	account.ExpectedMaturityDate = schedule[len(schedule)-1].DueDate

	if err := l.Store.ReplaceSchedule(ctx, account.ID, schedule); err != nil {
		return err
	}
	return l.Store.SaveAccount(ctx, *account)
}

// reversibleBasis is the ceiling for a replacement amount: for accrual
// charges the charge's outstanding portion, otherwise the original amount.
func (l *Ledger) reversibleBasis(ctx context.Context, account LoanAccount, target Transaction) (Money, error) {
	if target.Type != TxAccrual {
		return target.Amount, nil
	}
	schedule, err := l.Store.Schedule(ctx, account.ID)
	if err != nil {
		return Money{}, err
	}
	outstanding := ZeroMoney()
	for _, p := range schedule {
		outstanding = outstanding.Add(p.PenaltyOutstanding())
	}
	return outstanding.Min(target.Amount), nil
}
