/*
calculators.go - Built-in schedule calculators

PURPOSE:
  Implements servicing.ScheduleCalculator for the two stock repayment
  methods: equal installment (annuity) and equal principal. The engine
  treats these as opaque collaborators; products needing other
  amortization plug in their own implementation.

MATH:
  All arithmetic is decimal. Period amounts round with banker's rounding
  at currency scale; the final period absorbs the rounding remainder so
  the schedule always sums to the disbursed principal exactly.

ACCRUAL:
  Products may carry a penalty rate. The daily accrual is the overdue
  principal times rate/365, posted by COB as an accrual transaction.
*/
package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-servicing/servicing"
)

var (
	one         = decimal.NewFromInt(1)
	twelve      = decimal.NewFromInt(12)
	daysPerYear = decimal.NewFromInt(365)
)

// annuityPayment computes the fixed per-period payment.
func annuityPayment(principal decimal.Decimal, periods int, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(periods)))
	}
	base := rate.Add(one).Pow(decimal.NewFromInt(int64(periods)))
	return principal.Mul(base).Mul(rate).Div(base.Sub(one))
}

// =============================================================================
// EQUAL INSTALLMENT (ANNUITY)
// =============================================================================

type AnnuityCalculator struct {
	def Definition
}

func (c *AnnuityCalculator) AllocationOrder() servicing.AllocationOrder {
	return c.def.AllocationOrder
}

func (c *AnnuityCalculator) Generate(_ context.Context, terms servicing.LoanTerms) ([]servicing.RepaymentPeriod, error) {
	if terms.Periods <= 0 {
		return nil, &servicing.ValidationFailure{Code: "invalid_terms", Message: "periods must be positive"}
	}
	return c.build(terms.Principal.Value, terms.AnnualRate, terms.Periods, terms.DisbursedOn), nil
}

func (c *AnnuityCalculator) Regenerate(_ context.Context, terms servicing.LoanTerms, remainingPrincipal servicing.Money, from servicing.Date, remainingPeriods int) ([]servicing.RepaymentPeriod, error) {
	if remainingPeriods <= 0 {
		return nil, &servicing.ValidationFailure{Code: "invalid_terms", Message: "no periods to regenerate"}
	}
	return c.build(remainingPrincipal.Value, terms.AnnualRate, remainingPeriods, from), nil
}

func (c *AnnuityCalculator) DailyAccrual(_ context.Context, terms servicing.LoanTerms, schedule []servicing.RepaymentPeriod, day servicing.Date) (servicing.Money, bool) {
	return dailyPenalty(c.def.PenaltyAnnualRate, schedule, day)
}

func (c *AnnuityCalculator) build(principal, annualRate decimal.Decimal, periods int, anchor servicing.Date) []servicing.RepaymentPeriod {
	rate := annualRate.Div(twelve)
	payment := annuityPayment(principal, periods, rate)

	out := make([]servicing.RepaymentPeriod, 0, periods)
	remaining := principal
	for i := 1; i <= periods; i++ {
		interest := remaining.Mul(rate).RoundBank(2)
		principalDue := payment.Sub(interest).RoundBank(2)
		if i == periods || principalDue.GreaterThan(remaining) {
			// Final period absorbs the rounding remainder.
			principalDue = remaining
		}
		remaining = remaining.Sub(principalDue)

		out = append(out, servicing.RepaymentPeriod{
			Number:       i,
			DueDate:      anchor.AddMonths(i),
			PrincipalDue: servicing.Money{Value: principalDue},
			InterestDue:  servicing.Money{Value: interest},
			FeeDue:       servicing.ZeroMoney(),
			PenaltyDue:   servicing.ZeroMoney(),
		})
	}
	return out
}

// =============================================================================
// EQUAL PRINCIPAL
// =============================================================================

type EqualPrincipalCalculator struct {
	def Definition
}

func (c *EqualPrincipalCalculator) AllocationOrder() servicing.AllocationOrder {
	return c.def.AllocationOrder
}

func (c *EqualPrincipalCalculator) Generate(_ context.Context, terms servicing.LoanTerms) ([]servicing.RepaymentPeriod, error) {
	if terms.Periods <= 0 {
		return nil, &servicing.ValidationFailure{Code: "invalid_terms", Message: "periods must be positive"}
	}
	return c.build(terms.Principal.Value, terms.AnnualRate, terms.Periods, terms.DisbursedOn), nil
}

func (c *EqualPrincipalCalculator) Regenerate(_ context.Context, terms servicing.LoanTerms, remainingPrincipal servicing.Money, from servicing.Date, remainingPeriods int) ([]servicing.RepaymentPeriod, error) {
	if remainingPeriods <= 0 {
		return nil, &servicing.ValidationFailure{Code: "invalid_terms", Message: "no periods to regenerate"}
	}
	return c.build(remainingPrincipal.Value, terms.AnnualRate, remainingPeriods, from), nil
}

func (c *EqualPrincipalCalculator) DailyAccrual(_ context.Context, terms servicing.LoanTerms, schedule []servicing.RepaymentPeriod, day servicing.Date) (servicing.Money, bool) {
	return dailyPenalty(c.def.PenaltyAnnualRate, schedule, day)
}

func (c *EqualPrincipalCalculator) build(principal, annualRate decimal.Decimal, periods int, anchor servicing.Date) []servicing.RepaymentPeriod {
	rate := annualRate.Div(twelve)
	slice := principal.Div(decimal.NewFromInt(int64(periods))).RoundBank(2)

	out := make([]servicing.RepaymentPeriod, 0, periods)
	remaining := principal
	for i := 1; i <= periods; i++ {
		principalDue := slice
		if i == periods || principalDue.GreaterThan(remaining) {
			principalDue = remaining
		}
		interest := remaining.Mul(rate).RoundBank(2)
		remaining = remaining.Sub(principalDue)

		out = append(out, servicing.RepaymentPeriod{
			Number:       i,
			DueDate:      anchor.AddMonths(i),
			PrincipalDue: servicing.Money{Value: principalDue},
			InterestDue:  servicing.Money{Value: interest},
			FeeDue:       servicing.ZeroMoney(),
			PenaltyDue:   servicing.ZeroMoney(),
		})
	}
	return out
}

// =============================================================================
// SHARED ACCRUAL
// =============================================================================

func dailyPenalty(annualRate decimal.Decimal, schedule []servicing.RepaymentPeriod, day servicing.Date) (servicing.Money, bool) {
	if annualRate.IsZero() {
		return servicing.ZeroMoney(), false
	}
	overdue := decimal.Zero
	for _, p := range schedule {
		if p.IsOverdue(day) {
			overdue = overdue.Add(p.PrincipalOutstanding().Value)
		}
	}
	if overdue.IsZero() {
		return servicing.ZeroMoney(), false
	}
	accrual := overdue.Mul(annualRate).Div(daysPerYear).RoundBank(2)
	if !accrual.IsPositive() {
		return servicing.ZeroMoney(), false
	}
	return servicing.Money{Value: accrual}, true
}
