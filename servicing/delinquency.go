/*
delinquency.go - Delinquency range classification

PURPOSE:
  Computes loan-level and installment-level delinquency ranges from the
  schedule and ledger state. Days overdue exclude days frozen by pause
  periods (pauses freeze aging, they never reduce already-accrued days).
  Range changes append to an immutable tag history and emit exactly one
  DelinquencyRangeChanged event carrying the same figures a direct query
  returns.

TAG HISTORY INVARIANTS:
  - at most one row per loan has LiftedOn == nil (the current range)
  - rows never overlap in time
  - NO_DELINQUENCY is the absence of an open row, not a row itself

PIPELINE:
  The classifier implements LedgerReactor, so every committed ledger
  mutation (posting, adjustment, COB accrual) triggers reclassification
  without ad-hoc call sites.

SEE ALSO:
  - pause.go: The pause/resume sub-protocol
  - cob.go: Daily reclassification during day-advance
*/
package servicing

import (
	"context"
	"fmt"
)

// =============================================================================
// RANGES - Ordered day bands
// =============================================================================

const NoDelinquency = "NO_DELINQUENCY"

// DelinquencyBand classifies a days-overdue interval. MaxDays nil means
// the band is open-ended at the top.
type DelinquencyBand struct {
	Name    string
	MinDays int
	MaxDays *int
}

// DelinquencyBands is ordered by MinDays ascending.
type DelinquencyBands []DelinquencyBand

func intPtr(n int) *int { return &n }

// DefaultBands is the standard 1/30/60/90 classification.
func DefaultBands() DelinquencyBands {
	return DelinquencyBands{
		{Name: "RANGE_1", MinDays: 1, MaxDays: intPtr(29)},
		{Name: "RANGE_30", MinDays: 30, MaxDays: intPtr(59)},
		{Name: "RANGE_60", MinDays: 60, MaxDays: intPtr(89)},
		{Name: "RANGE_90", MinDays: 90},
	}
}

// RangeFor returns the band containing the given days-overdue count.
func (b DelinquencyBands) RangeFor(daysOverdue int) string {
	if daysOverdue <= 0 {
		return NoDelinquency
	}
	for _, band := range b {
		if daysOverdue >= band.MinDays && (band.MaxDays == nil || daysOverdue <= *band.MaxDays) {
			return band.Name
		}
	}
	return NoDelinquency
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

type Classification struct {
	AccountID        AccountID
	AsOf             Date
	LoanRange        string
	PerInstallment   map[int]string // period number -> range
	DelinquentAmount Money
	DelinquentSince  *Date // earliest unpaid due date
	MaxDaysOverdue   int
}

// =============================================================================
// CLASSIFIER
// =============================================================================

type Classifier struct {
	Store     Store
	Clock     BusinessClock
	Products  ProductCatalog
	Publisher Publisher
}

func NewClassifier(store Store, clock BusinessClock, products ProductCatalog, pub Publisher) *Classifier {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Classifier{Store: store, Clock: clock, Products: products, Publisher: pub}
}

// Classify computes the delinquency state as of a date. Read-only: tag
// history is untouched. Use Reclassify to record a change.
func (c *Classifier) Classify(ctx context.Context, accountID AccountID, asOf Date) (Classification, error) {
	account, err := c.Store.GetAccount(ctx, accountID)
	if err != nil {
		return Classification{}, err
	}
	bands, err := c.bandsFor(account)
	if err != nil {
		return Classification{}, err
	}
	schedule, err := c.Store.Schedule(ctx, accountID)
	if err != nil {
		return Classification{}, err
	}
	pauses, err := c.Store.PausePeriods(ctx, accountID)
	if err != nil {
		return Classification{}, err
	}

	result := Classification{
		AccountID:        accountID,
		AsOf:             asOf,
		LoanRange:        NoDelinquency,
		PerInstallment:   make(map[int]string),
		DelinquentAmount: ZeroMoney(),
	}

	for _, p := range schedule {
		if !p.IsOverdue(asOf) {
			continue
		}
		days := overdueDays(p.DueDate, asOf, pauses)
		result.PerInstallment[p.Number] = bands.RangeFor(days)
		result.DelinquentAmount = result.DelinquentAmount.Add(p.Outstanding())
		if days > result.MaxDaysOverdue {
			result.MaxDaysOverdue = days
		}
		if result.DelinquentSince == nil || p.DueDate.Before(*result.DelinquentSince) {
			due := p.DueDate
			result.DelinquentSince = &due
		}
	}

	result.LoanRange = bands.RangeFor(result.MaxDaysOverdue)
	return result, nil
}

// Reclassify computes the state and, on a loan-level range change, closes
// the previous tag row, appends the new one, and emits the event exactly
// once with the same figures Classify returned.
func (c *Classifier) Reclassify(ctx context.Context, accountID AccountID, asOf Date) (Classification, error) {
	result, err := c.Classify(ctx, accountID, asOf)
	if err != nil {
		return Classification{}, err
	}

	current, err := c.currentRange(ctx, accountID)
	if err != nil {
		return Classification{}, err
	}
	if current == result.LoanRange {
		return result, nil
	}

	if current != NoDelinquency {
		if err := c.Store.CloseCurrentTag(ctx, accountID, asOf); err != nil {
			return Classification{}, err
		}
	}
	if result.LoanRange != NoDelinquency {
		if err := c.Store.AppendTag(ctx, accountID, DelinquencyTag{Range: result.LoanRange, AddedOn: asOf}); err != nil {
			return Classification{}, err
		}
	}

	c.Publisher.DelinquencyRangeChanged(DelinquencyRangeChangedEvent{
		AccountID:        accountID,
		Previous:         current,
		Current:          result.LoanRange,
		DelinquentAmount: result.DelinquentAmount,
		DelinquentDate:   result.DelinquentSince,
		PerInstallment:   result.PerInstallment,
		AsOf:             asOf,
	})
	return result, nil
}

// LedgerChanged makes the classifier a LedgerReactor: every committed
// ledger mutation triggers reclassification.
func (c *Classifier) LedgerChanged(ctx context.Context, accountID AccountID, asOf Date) error {
	_, err := c.Reclassify(ctx, accountID, asOf)
	return err
}

func (c *Classifier) currentRange(ctx context.Context, accountID AccountID) (string, error) {
	history, err := c.Store.TagHistory(ctx, accountID)
	if err != nil {
		return "", err
	}
	for _, tag := range history {
		if tag.LiftedOn == nil {
			return tag.Range, nil
		}
	}
	return NoDelinquency, nil
}

func (c *Classifier) bandsFor(account LoanAccount) (DelinquencyBands, error) {
	rules, err := c.Products.RulesFor(account.ProductCode)
	if err != nil {
		return nil, fmt.Errorf("resolve bands for product %q: %w", account.ProductCode, err)
	}
	if len(rules.Bands) == 0 {
		return DefaultBands(), nil
	}
	return rules.Bands, nil
}

// overdueDays counts calendar days in (dueDate, asOf], excluding days
// covered by an active pause. Paused days freeze the count; they never
// subtract days already accrued before the pause began.
func overdueDays(dueDate, asOf Date, pauses []PausePeriod) int {
	days := 0
	for day := dueDate.AddDays(1); day.BeforeOrEqual(asOf); day = day.AddDays(1) {
		if pausedOn(day, pauses) {
			continue
		}
		days++
	}
	return days
}

func pausedOn(day Date, pauses []PausePeriod) bool {
	for _, p := range pauses {
		if p.Covers(day) {
			return true
		}
	}
	return false
}
