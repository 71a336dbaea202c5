/*
schedule.go - Repayment periods and the schedule-calculator boundary

PURPOSE:
  RepaymentPeriod is the ordered projection of the schedule: what is due,
  what has been paid or waived, and when obligations were met. The due
  amounts come from a ScheduleCalculator (an external collaborator - the
  amortization math lives behind the interface); the paid side is always
  recomputed from the transaction ledger, never patched in place.

RECOMPUTATION RULES:
  - Wholesale: re-age, re-amortize, reschedule, disbursement adjustment
    regenerate the future periods through the calculator.
  - Incremental-looking but still replayed: repayments/chargebacks update
    paid fields by replaying the full transaction history (ledger.go).

SEE ALSO:
  - product/: Built-in calculators (annuity, equal principal)
  - ledger.go: Allocation of payments onto periods
*/
package servicing

import "context"

// =============================================================================
// REPAYMENT PERIOD - One installment row
// =============================================================================

type RepaymentPeriod struct {
	Number  int
	DueDate Date

	PrincipalDue Money
	InterestDue  Money
	FeeDue       Money
	PenaltyDue   Money

	PrincipalPaid Money
	InterestPaid  Money
	FeePaid       Money
	PenaltyPaid   Money

	PrincipalWaived Money
	InterestWaived  Money
	FeeWaived       Money
	PenaltyWaived   Money

	// ObligationsMetOn is the date the period became fully settled; nil
	// while anything remains outstanding.
	ObligationsMetOn *Date
}

func (p RepaymentPeriod) TotalDue() Money {
	return p.PrincipalDue.Add(p.InterestDue).Add(p.FeeDue).Add(p.PenaltyDue)
}

func (p RepaymentPeriod) TotalPaid() Money {
	return p.PrincipalPaid.Add(p.InterestPaid).Add(p.FeePaid).Add(p.PenaltyPaid)
}

func (p RepaymentPeriod) TotalWaived() Money {
	return p.PrincipalWaived.Add(p.InterestWaived).Add(p.FeeWaived).Add(p.PenaltyWaived)
}

func (p RepaymentPeriod) PrincipalOutstanding() Money {
	return p.PrincipalDue.Sub(p.PrincipalPaid).Sub(p.PrincipalWaived).Max(ZeroMoney())
}

func (p RepaymentPeriod) InterestOutstanding() Money {
	return p.InterestDue.Sub(p.InterestPaid).Sub(p.InterestWaived).Max(ZeroMoney())
}

func (p RepaymentPeriod) FeeOutstanding() Money {
	return p.FeeDue.Sub(p.FeePaid).Sub(p.FeeWaived).Max(ZeroMoney())
}

func (p RepaymentPeriod) PenaltyOutstanding() Money {
	return p.PenaltyDue.Sub(p.PenaltyPaid).Sub(p.PenaltyWaived).Max(ZeroMoney())
}

func (p RepaymentPeriod) Outstanding() Money {
	return p.PrincipalOutstanding().
		Add(p.InterestOutstanding()).
		Add(p.FeeOutstanding()).
		Add(p.PenaltyOutstanding())
}

func (p RepaymentPeriod) IsSettled() bool { return p.Outstanding().IsZero() }

// IsOverdue reports whether the period has an open obligation past due.
func (p RepaymentPeriod) IsOverdue(asOf Date) bool {
	return p.DueDate.Before(asOf) && !p.IsSettled()
}

// =============================================================================
// ALLOCATION ORDER - How repayments distribute, decided by the calculator
// =============================================================================

// AllocationOrder names the processing strategy for repayment allocation.
// The ledger applies it; the Schedule Calculator decides it.
type AllocationOrder string

const (
	// AllocateOldestDueFirst drains periods in due-date order, and within
	// a period: penalty, fee, interest, principal.
	AllocateOldestDueFirst AllocationOrder = "oldest_due_first"

	// AllocatePrincipalFirst drains principal across periods before
	// charges. Used by products with daily-rest interest.
	AllocatePrincipalFirst AllocationOrder = "principal_first"
)

// =============================================================================
// SCHEDULE CALCULATOR - External collaborator boundary
// =============================================================================

// ScheduleCalculator computes and recomputes ordered repayment periods for
// a loan. The amortization formulas behind Generate are out of scope for
// the engine; the engine only consumes the resulting periods.
type ScheduleCalculator interface {
	// Generate produces the full ordered schedule for the given terms.
	Generate(ctx context.Context, terms LoanTerms) ([]RepaymentPeriod, error)

	// Regenerate recomputes periods from 'from' onwards without changing
	// the principal owed (re-age / re-amortize). Settled periods before
	// 'from' are preserved by the caller.
	Regenerate(ctx context.Context, terms LoanTerms, remainingPrincipal Money, from Date, remainingPeriods int) ([]RepaymentPeriod, error)

	// DailyAccrual returns the accrual amount to post for one business
	// day, or ok=false when no accrual applies that day.
	DailyAccrual(ctx context.Context, terms LoanTerms, schedule []RepaymentPeriod, day Date) (amount Money, ok bool)

	// AllocationOrder is the processing strategy the ledger must apply.
	AllocationOrder() AllocationOrder
}

// ProductRules are the read-only product parameters the engine consumes.
// The product catalog itself (interest method, compounding, reschedule
// strategy) lives outside the engine.
type ProductRules struct {
	AllowOverpayment bool
	Bands            DelinquencyBands
}

// ProductCatalog resolves per-product collaborator configuration.
type ProductCatalog interface {
	CalculatorFor(productCode string) (ScheduleCalculator, error)
	RulesFor(productCode string) (ProductRules, error)
}

// totalOutstanding sums open obligations across periods.
func totalOutstanding(schedule []RepaymentPeriod) Money {
	total := ZeroMoney()
	for _, p := range schedule {
		total = total.Add(p.Outstanding())
	}
	return total
}
