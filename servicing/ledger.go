/*
ledger.go - Transaction posting and balance recomputation

PURPOSE:
  The Ledger owns the ordered list of transactions per loan and their
  effect on balances. Every balance figure in the system is derived by
  replaying the full transaction history onto the schedule's due amounts -
  there is no separately maintained balance that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: transactions are written once, never edited or deleted
  2. IDEMPOTENT: a retried idempotency key returns the original transaction
     unchanged, with no duplicate balance effect
  3. DATE ORDER: a transaction never posts after the business date
  4. REPLAY: paid/waived/penalty aggregates are recomputed wholesale from
     history after every mutation, so out-of-order corrections cannot
     leave stale increments behind

ALLOCATION:
  Repayments drain periods oldest-due-first (unless the product's
  calculator dictates another order) and within a period in the order
  penalty, fee, interest, principal. Any excess over the open obligation
  becomes overpayment when the product allows it, transitioning the
  account to Overpaid.

SEE ALSO:
  - adjustment.go: Reversal/replacement on top of this ledger
  - schedule.go: The period rows allocation writes into
  - store.go: Persistence contract
*/
package servicing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER
// =============================================================================

// LedgerReactor is notified after every committed ledger mutation so
// downstream recomputation (delinquency) never depends on ad-hoc call
// sites remembering to refresh.
type LedgerReactor interface {
	LedgerChanged(ctx context.Context, accountID AccountID, asOf Date) error
}

type Ledger struct {
	Store     Store
	Clock     BusinessClock
	Products  ProductCatalog
	Publisher Publisher
	Reactors  []LedgerReactor
}

func NewLedger(store Store, clock BusinessClock, products ProductCatalog, pub Publisher) *Ledger {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Ledger{Store: store, Clock: clock, Products: products, Publisher: pub}
}

// TransactionInput is the client-facing posting request.
type TransactionInput struct {
	Type           TransactionType
	Date           Date
	Amount         Money
	PaymentType    string // optional channel info, audit only
	IdempotencyKey string
	ExternalID     string
}

// =============================================================================
// POSTING
// =============================================================================

// Post validates and appends a transaction, then recomputes all derived
// aggregates from the full history. Callers must hold the account lock.
func (l *Ledger) Post(ctx context.Context, accountID AccountID, in TransactionInput) (Transaction, error) {
	account, err := l.Store.GetAccount(ctx, accountID)
	if err != nil {
		return Transaction{}, err
	}

	// Idempotent retry: same key returns the original, no duplicate effect.
	if in.IdempotencyKey != "" {
		existing, found, err := l.Store.FindByIdempotencyKey(ctx, accountID, in.IdempotencyKey)
		if err != nil {
			return Transaction{}, err
		}
		if found {
			return existing, nil
		}
	}

	if err := l.validateInput(account, in); err != nil {
		return Transaction{}, err
	}

	switch in.Type {
	case TxDisbursement:
		return l.disburse(ctx, account, in)
	case TxReAge, TxReAmortize:
		return l.rescheduleOp(ctx, account, in)
	}

	rules, err := l.Products.RulesFor(account.ProductCode)
	if err != nil {
		return Transaction{}, err
	}

	schedule, err := l.Store.Schedule(ctx, accountID)
	if err != nil {
		return Transaction{}, err
	}

	// Repayment cap: exceeding the open obligation is only legal when the
	// product permits overpayment.
	if in.Type.IsRepaymentClass() {
		outstanding := totalOutstanding(schedule)
		if in.Amount.GreaterThan(outstanding) && !rules.AllowOverpayment {
			return Transaction{}, fmt.Errorf("%w: outstanding %s, amount %s",
				ErrOverpaymentNotAllowed, outstanding, in.Amount)
		}
	}

	tx := Transaction{
		ID:             TransactionID(uuid.NewString()),
		AccountID:      accountID,
		Type:           in.Type,
		Date:           in.Date,
		Amount:         in.Amount,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err = l.Store.AppendTransaction(ctx, tx)
	if err != nil {
		return Transaction{}, err
	}

	// Charge-off and write-off are status-level events; their balance
	// effect is the freeze/closure, not an allocation.
	switch in.Type {
	case TxChargeOff:
		if err := l.transitionAndPublish(ctx, &account, StatusChargedOff, "charge off", in.Date); err != nil {
			return Transaction{}, err
		}
	case TxWriteOff:
		if err := l.transitionAndPublish(ctx, &account, StatusClosedWrittenOff, "write off", in.Date); err != nil {
			return Transaction{}, err
		}
	}

	if _, err := l.recompute(ctx, account, in.Type, in.Date); err != nil {
		return Transaction{}, err
	}

	// Re-read: recompute fills the allocation portions.
	return l.Store.GetTransaction(ctx, accountID, tx.ID)
}

func (l *Ledger) transitionAndPublish(ctx context.Context, account *LoanAccount, to AccountStatus, op string, date Date) error {
	previous := account.Status
	if err := account.transition(to, op); err != nil {
		return err
	}
	if err := l.Store.SaveAccount(ctx, *account); err != nil {
		return err
	}
	l.Publisher.AccountStatusChanged(AccountStatusChangedEvent{
		AccountID: account.ID, Previous: previous, Current: account.Status, Date: date,
	})
	return nil
}

func (l *Ledger) validateInput(account LoanAccount, in TransactionInput) error {
	if !transactionTypes[in.Type] {
		return &ValidationFailure{Code: "unknown_transaction_type", Message: string(in.Type)}
	}
	if !in.Amount.IsPositive() {
		return &ValidationFailure{Code: "non_positive_amount", Message: fmt.Sprintf("amount %s must be positive", in.Amount)}
	}
	if in.Date.IsZero() {
		return &ValidationFailure{Code: "missing_date", Message: "transaction date is required"}
	}
	if in.Date.After(l.Clock.BusinessDate()) {
		return fmt.Errorf("%w: %s is after %s", ErrDateOrderViolation, in.Date, l.Clock.BusinessDate())
	}

	switch in.Type {
	case TxDisbursement:
		if account.Status != StatusApproved {
			return &StateConflictError{AccountID: account.ID, Status: account.Status, Operation: "disburse"}
		}
	case TxChargeOff:
		if account.Status != StatusActive {
			return &StateConflictError{AccountID: account.ID, Status: account.Status, Operation: "charge off"}
		}
	case TxWriteOff:
		if account.Status != StatusActive && account.Status != StatusChargedOff {
			return &StateConflictError{AccountID: account.ID, Status: account.Status, Operation: "write off"}
		}
	case TxCreditBalanceRefund:
		if account.Status != StatusOverpaid {
			return &StateConflictError{AccountID: account.ID, Status: account.Status, Operation: "refund credit balance"}
		}
	default:
		if !account.Status.AcceptsPostings() {
			return &StateConflictError{AccountID: account.ID, Status: account.Status, Operation: "post " + string(in.Type)}
		}
	}
	return nil
}

// =============================================================================
// ACCOUNT LIFECYCLE OPERATIONS
// =============================================================================

// Approve moves a pending account to Approved.
func (l *Ledger) Approve(ctx context.Context, accountID AccountID) (LoanAccount, error) {
	account, err := l.Store.GetAccount(ctx, accountID)
	if err != nil {
		return LoanAccount{}, err
	}
	previous := account.Status
	if err := account.transition(StatusApproved, "approve"); err != nil {
		return LoanAccount{}, err
	}
	if err := l.Store.SaveAccount(ctx, account); err != nil {
		return LoanAccount{}, err
	}
	l.Publisher.AccountStatusChanged(AccountStatusChangedEvent{
		AccountID: accountID, Previous: previous, Current: account.Status,
		Date: l.Clock.BusinessDate(),
	})
	return account, nil
}

// disburse activates the account, generates the schedule through the
// calculator, and records the disbursement transaction. COB processing
// starts from the disbursement date.
func (l *Ledger) disburse(ctx context.Context, account LoanAccount, in TransactionInput) (Transaction, error) {
	calc, err := l.Products.CalculatorFor(account.ProductCode)
	if err != nil {
		return Transaction{}, err
	}

	previous := account.Status
	if err := account.transition(StatusActive, "disburse"); err != nil {
		return Transaction{}, err
	}

	account.Terms.Principal = in.Amount
	account.Terms.DisbursedOn = in.Date

	schedule, err := calc.Generate(ctx, account.Terms)
	if err != nil {
		return Transaction{}, err
	}
	if len(schedule) == 0 {
		return Transaction{}, &ValidationFailure{Code: "empty_schedule", Message: "calculator produced no periods"}
	}

	account.ExpectedMaturityDate = schedule[len(schedule)-1].DueDate
	closed := in.Date
	account.LastClosedBusinessDate = &closed

	if err := l.Store.ReplaceSchedule(ctx, account.ID, schedule); err != nil {
		return Transaction{}, err
	}

	tx := Transaction{
		ID:             TransactionID(uuid.NewString()),
		AccountID:      account.ID,
		Type:           TxDisbursement,
		Date:           in.Date,
		Amount:         in.Amount,
		Allocation:     PaymentAllocation{Principal: in.Amount},
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	tx, err = l.Store.AppendTransaction(ctx, tx)
	if err != nil {
		return Transaction{}, err
	}

	if err := l.Store.SaveAccount(ctx, account); err != nil {
		return Transaction{}, err
	}

	l.Publisher.AccountStatusChanged(AccountStatusChangedEvent{
		AccountID: account.ID, Previous: previous, Current: account.Status, Date: in.Date,
	})
	if _, err := l.recompute(ctx, account, TxDisbursement, in.Date); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// rescheduleOp handles re-age and re-amortize: future periods are
// regenerated wholesale through the calculator without changing the
// principal owed, and a marker transaction records the operation.
func (l *Ledger) rescheduleOp(ctx context.Context, account LoanAccount, in TransactionInput) (Transaction, error) {
	calc, err := l.Products.CalculatorFor(account.ProductCode)
	if err != nil {
		return Transaction{}, err
	}
	schedule, err := l.Store.Schedule(ctx, account.ID)
	if err != nil {
		return Transaction{}, err
	}

	// Settled periods stay; open principal rolls into the regenerated tail.
	var kept []RepaymentPeriod
	remainingPrincipal := ZeroMoney()
	remainingPeriods := 0
	for _, p := range schedule {
		if p.IsSettled() {
			kept = append(kept, p)
			continue
		}
		remainingPrincipal = remainingPrincipal.Add(p.PrincipalOutstanding())
		remainingPeriods++
	}
	if remainingPeriods == 0 {
		return Transaction{}, &StateConflictError{AccountID: account.ID, Status: account.Status, Operation: string(in.Type)}
	}

	tail, err := calc.Regenerate(ctx, account.Terms, remainingPrincipal, in.Date, remainingPeriods)
	if err != nil {
		return Transaction{}, err
	}
	regenerated := append(kept, tail...)
	sort.Slice(regenerated, func(i, j int) bool {
		return regenerated[i].DueDate.Before(regenerated[j].DueDate)
	})
	for i := range regenerated {
		regenerated[i].Number = i + 1
	}
	account.ExpectedMaturityDate = regenerated[len(regenerated)-1].DueDate

	if err := l.Store.ReplaceSchedule(ctx, account.ID, regenerated); err != nil {
		return Transaction{}, err
	}
	if err := l.Store.SaveAccount(ctx, account); err != nil {
		return Transaction{}, err
	}

	tx := Transaction{
		ID:             TransactionID(uuid.NewString()),
		AccountID:      account.ID,
		Type:           in.Type,
		Date:           in.Date,
		Amount:         remainingPrincipal,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	tx, err = l.Store.AppendTransaction(ctx, tx)
	if err != nil {
		return Transaction{}, err
	}

	if _, err := l.recompute(ctx, account, in.Type, in.Date); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// =============================================================================
// RECOMPUTATION - Full-history replay
// =============================================================================

// recompute replays the account's entire transaction history onto the
// schedule's due amounts, persists the refreshed periods and allocations,
// applies status consequences, publishes BalanceChanged, and notifies
// reactors. Incremental patching is deliberately absent: replay is the
// only way aggregates are produced.
func (l *Ledger) recompute(ctx context.Context, account LoanAccount, trigger TransactionType, asOf Date) (BalanceSummary, error) {
	// Reload: lifecycle ops may have saved a newer copy.
	account, err := l.Store.GetAccount(ctx, account.ID)
	if err != nil {
		return BalanceSummary{}, err
	}
	schedule, err := l.Store.Schedule(ctx, account.ID)
	if err != nil {
		return BalanceSummary{}, err
	}
	txs, err := l.Store.Transactions(ctx, account.ID)
	if err != nil {
		return BalanceSummary{}, err
	}
	calc, err := l.Products.CalculatorFor(account.ProductCode)
	if err != nil {
		return BalanceSummary{}, err
	}

	replayed, allocations, summary := Replay(schedule, txs, calc.AllocationOrder())
	summary.AccountID = account.ID

	if err := l.Store.ReplaceSchedule(ctx, account.ID, replayed); err != nil {
		return BalanceSummary{}, err
	}
	// Allocation portions are derived bookkeeping; persisting them never
	// amends amounts or dates.
	for txID, alloc := range allocations {
		if err := l.Store.SetAllocation(ctx, account.ID, txID, alloc); err != nil {
			return BalanceSummary{}, err
		}
	}

	if err := l.applyStatusConsequences(ctx, &account, summary, asOf); err != nil {
		return BalanceSummary{}, err
	}

	l.Publisher.BalanceChanged(BalanceChangedEvent{
		AccountID: account.ID, Trigger: trigger, Balances: summary, Date: asOf,
	})
	for _, r := range l.Reactors {
		if err := r.LedgerChanged(ctx, account.ID, asOf); err != nil {
			return BalanceSummary{}, err
		}
	}
	return summary, nil
}

// applyStatusConsequences handles the Overpaid transitions derived from
// balances: outstanding zero with excess paid means Overpaid, and a
// chargeback that reopens obligations returns the account to Active.
func (l *Ledger) applyStatusConsequences(ctx context.Context, account *LoanAccount, summary BalanceSummary, asOf Date) error {
	previous := account.Status
	switch {
	case account.Status == StatusActive && summary.TotalOutstanding.IsZero() && summary.Overpaid.IsPositive():
		if err := account.transition(StatusOverpaid, "overpay"); err != nil {
			return err
		}
	case account.Status == StatusOverpaid && summary.TotalOutstanding.IsPositive():
		if err := account.transition(StatusActive, "reopen"); err != nil {
			return err
		}
	case account.Status == StatusOverpaid && summary.Overpaid.IsZero() && summary.TotalOutstanding.IsZero():
		if err := account.transition(StatusClosedObligationsMet, "settle credit balance"); err != nil {
			return err
		}
	default:
		return nil
	}
	if err := l.Store.SaveAccount(ctx, *account); err != nil {
		return err
	}
	l.Publisher.AccountStatusChanged(AccountStatusChangedEvent{
		AccountID: account.ID, Previous: previous, Current: account.Status, Date: asOf,
	})
	return nil
}

// Balances returns the current derived balance summary.
func (l *Ledger) Balances(ctx context.Context, accountID AccountID) (BalanceSummary, error) {
	schedule, err := l.Store.Schedule(ctx, accountID)
	if err != nil {
		return BalanceSummary{}, err
	}
	txs, err := l.Store.Transactions(ctx, accountID)
	if err != nil {
		return BalanceSummary{}, err
	}
	account, err := l.Store.GetAccount(ctx, accountID)
	if err != nil {
		return BalanceSummary{}, err
	}
	calc, err := l.Products.CalculatorFor(account.ProductCode)
	if err != nil {
		return BalanceSummary{}, err
	}
	_, _, summary := Replay(schedule, txs, calc.AllocationOrder())
	summary.AccountID = accountID
	return summary, nil
}

// =============================================================================
// REPLAY - The pure allocation function
// =============================================================================

// Replay recomputes paid/waived/penalty state from scratch: it zeroes the
// derived fields of every period, then applies each effective transaction
// in (date, sequence) order. Reversed originals and their paired reversing
// entries are both skipped; their net effect is zero by construction.
//
// Returns the refreshed periods, the per-transaction allocations, and the
// balance summary.
func Replay(schedule []RepaymentPeriod, txs []Transaction, order AllocationOrder) ([]RepaymentPeriod, map[TransactionID]PaymentAllocation, BalanceSummary) {
	periods := make([]RepaymentPeriod, len(schedule))
	copy(periods, schedule)
	for i := range periods {
		periods[i].PrincipalPaid = ZeroMoney()
		periods[i].InterestPaid = ZeroMoney()
		periods[i].FeePaid = ZeroMoney()
		periods[i].PenaltyPaid = ZeroMoney()
		periods[i].PrincipalWaived = ZeroMoney()
		periods[i].InterestWaived = ZeroMoney()
		periods[i].FeeWaived = ZeroMoney()
		periods[i].PenaltyWaived = ZeroMoney()
		periods[i].PenaltyDue = ZeroMoney()
		periods[i].ObligationsMetOn = nil
	}

	allocations := make(map[TransactionID]PaymentAllocation)
	overpaid := ZeroMoney()
	totalPaid := ZeroMoney()

	for _, tx := range txs {
		if tx.ManuallyReversed || tx.IsReversalEntry() {
			continue
		}
		switch tx.Type {
		case TxRepayment, TxRefund:
			alloc := allocatePayment(periods, tx.Amount, tx.Date, order)
			overpaid = overpaid.Add(alloc.Overpayment)
			totalPaid = totalPaid.Add(tx.Amount)
			allocations[tx.ID] = alloc
		case TxChargeback:
			alloc := unapplyPayment(periods, tx.Amount, &overpaid)
			totalPaid = totalPaid.Sub(tx.Amount)
			allocations[tx.ID] = alloc
		case TxWaiver:
			allocations[tx.ID] = allocateWaiver(periods, tx.Amount, tx.Date)
		case TxAccrual:
			applyAccrual(periods, tx.Amount, tx.Date)
			allocations[tx.ID] = PaymentAllocation{Penalty: tx.Amount}
		case TxCreditBalanceRefund:
			refunded := tx.Amount.Min(overpaid)
			overpaid = overpaid.Sub(refunded)
			allocations[tx.ID] = PaymentAllocation{Overpayment: refunded}
		}
	}

	summary := summarize(periods)
	summary.TotalPaid = totalPaid
	summary.Overpaid = overpaid
	return periods, allocations, summary
}

// allocatePayment drains open obligations oldest-due-first; within a
// period the order is penalty, fee, interest, principal. With
// AllocatePrincipalFirst, principal across all periods drains before any
// charge component. The remainder becomes overpayment.
func allocatePayment(periods []RepaymentPeriod, amount Money, at Date, order AllocationOrder) PaymentAllocation {
	remaining := amount
	var alloc PaymentAllocation

	if order == AllocatePrincipalFirst {
		for i := range periods {
			p := &periods[i]
			alloc.Principal = alloc.Principal.Add(take(&p.PrincipalDue, &p.PrincipalPaid, &p.PrincipalWaived, &remaining))
		}
	}

	for i := range periods {
		p := &periods[i]
		if remaining.IsZero() {
			break
		}
		alloc.Penalty = alloc.Penalty.Add(take(&p.PenaltyDue, &p.PenaltyPaid, &p.PenaltyWaived, &remaining))
		alloc.Fee = alloc.Fee.Add(take(&p.FeeDue, &p.FeePaid, &p.FeeWaived, &remaining))
		alloc.Interest = alloc.Interest.Add(take(&p.InterestDue, &p.InterestPaid, &p.InterestWaived, &remaining))
		if order != AllocatePrincipalFirst {
			alloc.Principal = alloc.Principal.Add(take(&p.PrincipalDue, &p.PrincipalPaid, &p.PrincipalWaived, &remaining))
		}
	}

	alloc.Overpayment = remaining
	markSettled(periods, at)
	return alloc
}

// take pays down one component: min(remaining, due - paid - waived).
func take(due, paid, waived *Money, remaining *Money) Money {
	open := due.Sub(*paid).Sub(*waived).Max(ZeroMoney())
	portion := remaining.Min(open)
	if portion.IsPositive() {
		*paid = paid.Add(portion)
		*remaining = remaining.Sub(portion)
	}
	return portion
}

// unapplyPayment reverses a repayment's effect: the credit balance drains
// first, then paid components newest-first in the reverse of allocation
// order (principal, interest, fee, penalty).
func unapplyPayment(periods []RepaymentPeriod, amount Money, overpaid *Money) PaymentAllocation {
	remaining := amount
	var alloc PaymentAllocation

	fromCredit := remaining.Min(*overpaid)
	if fromCredit.IsPositive() {
		*overpaid = overpaid.Sub(fromCredit)
		remaining = remaining.Sub(fromCredit)
		alloc.Overpayment = fromCredit
	}

	give := func(paid *Money) Money {
		portion := remaining.Min(*paid)
		if portion.IsPositive() {
			*paid = paid.Sub(portion)
			remaining = remaining.Sub(portion)
		}
		return portion
	}

	for i := len(periods) - 1; i >= 0 && remaining.IsPositive(); i-- {
		p := &periods[i]
		alloc.Principal = alloc.Principal.Add(give(&p.PrincipalPaid))
		alloc.Interest = alloc.Interest.Add(give(&p.InterestPaid))
		alloc.Fee = alloc.Fee.Add(give(&p.FeePaid))
		alloc.Penalty = alloc.Penalty.Add(give(&p.PenaltyPaid))
		if !p.IsSettled() {
			p.ObligationsMetOn = nil
		}
	}
	return alloc
}

// allocateWaiver forgives charges oldest-first: penalty, fee, interest.
// Principal is never waived through this path (write-off covers it).
func allocateWaiver(periods []RepaymentPeriod, amount Money, at Date) PaymentAllocation {
	remaining := amount
	var alloc PaymentAllocation

	forgive := func(due, paid, waived *Money) Money {
		open := due.Sub(*paid).Sub(*waived).Max(ZeroMoney())
		portion := remaining.Min(open)
		if portion.IsPositive() {
			*waived = waived.Add(portion)
			remaining = remaining.Sub(portion)
		}
		return portion
	}

	for i := range periods {
		p := &periods[i]
		if remaining.IsZero() {
			break
		}
		alloc.Penalty = alloc.Penalty.Add(forgive(&p.PenaltyDue, &p.PenaltyPaid, &p.PenaltyWaived))
		alloc.Fee = alloc.Fee.Add(forgive(&p.FeeDue, &p.FeePaid, &p.FeeWaived))
		alloc.Interest = alloc.Interest.Add(forgive(&p.InterestDue, &p.InterestPaid, &p.InterestWaived))
	}
	markSettled(periods, at)
	return alloc
}

// applyAccrual adds a penalty accrual to the oldest period overdue at the
// accrual date; generated schedules carry no base penalty, so the penalty
// column derives entirely from accrual transactions.
func applyAccrual(periods []RepaymentPeriod, amount Money, day Date) {
	for i := range periods {
		if periods[i].IsOverdue(day) {
			periods[i].PenaltyDue = periods[i].PenaltyDue.Add(amount)
			return
		}
	}
	if len(periods) > 0 {
		periods[len(periods)-1].PenaltyDue = periods[len(periods)-1].PenaltyDue.Add(amount)
	}
}

func markSettled(periods []RepaymentPeriod, at Date) {
	for i := range periods {
		if periods[i].IsSettled() && periods[i].ObligationsMetOn == nil {
			met := at
			periods[i].ObligationsMetOn = &met
		}
	}
}

func summarize(periods []RepaymentPeriod) BalanceSummary {
	var s BalanceSummary
	s.PrincipalOutstanding = ZeroMoney()
	s.InterestOutstanding = ZeroMoney()
	s.FeeOutstanding = ZeroMoney()
	s.PenaltyOutstanding = ZeroMoney()
	for _, p := range periods {
		s.PrincipalOutstanding = s.PrincipalOutstanding.Add(p.PrincipalOutstanding())
		s.InterestOutstanding = s.InterestOutstanding.Add(p.InterestOutstanding())
		s.FeeOutstanding = s.FeeOutstanding.Add(p.FeeOutstanding())
		s.PenaltyOutstanding = s.PenaltyOutstanding.Add(p.PenaltyOutstanding())
	}
	s.TotalOutstanding = s.PrincipalOutstanding.
		Add(s.InterestOutstanding).
		Add(s.FeeOutstanding).
		Add(s.PenaltyOutstanding)
	return s
}
