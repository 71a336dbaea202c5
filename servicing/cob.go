/*
cob.go - Close-of-business day-advance processor

PURPOSE:
  Replays one business day at a time for a single account until its last
  closed business date reaches the global business date. One day per
  step, never skipping: every day-boundary event (accrual posting,
  delinquency re-evaluation, maturity closure) is generated for every
  day, even across long backlogs. A failure leaves the last closed date
  where it was, so the next catch-up run retries from the same day.

PER-DAY SEQUENCE:
  1. advance exactly one calendar day
  2. post the calculator's accrual for that day, if any
  3. reclassify delinquency as of that day
  4. persist the day as closed

  On the final replayed day: if it is the expected maturity date and all
  obligations are met, the account closes as ClosedObligationsMet.

SEE ALSO:
  - catchup.go: Drives this processor across all accounts under locks
*/
package servicing

import (
	"context"
	"log/slog"
)

// =============================================================================
// PROCESSOR
// =============================================================================

type Processor struct {
	Store      Store
	Clock      BusinessClock
	Ledger     *Ledger
	Classifier *Classifier
	Products   ProductCatalog
	Logger     *slog.Logger
}

func NewProcessor(store Store, clock BusinessClock, ledger *Ledger, classifier *Classifier, products ProductCatalog, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Store: store, Clock: clock, Ledger: ledger,
		Classifier: classifier, Products: products, Logger: logger,
	}
}

// DaysBehind reports how many business days the account trails the global
// date. Zero for accounts that are current or not yet disbursed.
func (p *Processor) DaysBehind(account LoanAccount) int {
	if account.LastClosedBusinessDate == nil || !account.Status.IsOpen() {
		return 0
	}
	behind := DaysBetween(*account.LastClosedBusinessDate, p.Clock.BusinessDate())
	if behind < 0 {
		return 0
	}
	return behind
}

// AdvanceToCurrent replays the account's backlog day by day until its
// last closed business date equals the global business date. Callers must
// hold the account lock; the replay runs to completion once started.
func (p *Processor) AdvanceToCurrent(ctx context.Context, accountID AccountID) (daysProcessed int, err error) {
	account, err := p.Store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if account.LastClosedBusinessDate == nil {
		// Not disbursed yet; nothing to close.
		return 0, nil
	}

	target := p.Clock.BusinessDate()
	for account.LastClosedBusinessDate.Before(target) {
		day := account.LastClosedBusinessDate.AddDays(1)
		if err := p.closeDay(ctx, &account, day); err != nil {
			return daysProcessed, err
		}
		daysProcessed++
		if !account.Status.IsOpen() {
			break
		}
	}
	return daysProcessed, nil
}

// closeDay runs the full day-boundary sequence for exactly one day and
// commits the advanced close date.
func (p *Processor) closeDay(ctx context.Context, account *LoanAccount, day Date) error {
	if err := p.postAccrual(ctx, account, day); err != nil {
		return err
	}

	if _, err := p.Classifier.Reclassify(ctx, account.ID, day); err != nil {
		return err
	}

	// Reload: accrual posting and status consequences may have saved a
	// newer copy.
	refreshed, err := p.Store.GetAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	*account = refreshed

	account.LastClosedBusinessDate = &day
	if err := p.maybeCloseAtMaturity(ctx, account, day); err != nil {
		return err
	}
	return p.Store.SaveAccount(ctx, *account)
}

// postAccrual posts the calculator's accrual transaction for the day when
// one applies (e.g. penalty interest on overdue principal).
func (p *Processor) postAccrual(ctx context.Context, account *LoanAccount, day Date) error {
	if !account.Status.AcceptsPostings() {
		return nil
	}
	calc, err := p.Products.CalculatorFor(account.ProductCode)
	if err != nil {
		return err
	}
	schedule, err := p.Store.Schedule(ctx, account.ID)
	if err != nil {
		return err
	}
	amount, ok := calc.DailyAccrual(ctx, account.Terms, schedule, day)
	if !ok || !amount.IsPositive() {
		return nil
	}

	_, err = p.Ledger.Post(ctx, account.ID, TransactionInput{
		Type:   TxAccrual,
		Date:   day,
		Amount: amount,
	})
	return err
}

// maybeCloseAtMaturity closes the account when the replayed day reached
// the expected maturity date with every obligation met.
func (p *Processor) maybeCloseAtMaturity(ctx context.Context, account *LoanAccount, day Date) error {
	if account.Status != StatusActive || day.Before(account.ExpectedMaturityDate) {
		return nil
	}
	schedule, err := p.Store.Schedule(ctx, account.ID)
	if err != nil {
		return err
	}
	if !totalOutstanding(schedule).IsZero() {
		return nil
	}

	previous := account.Status
	if err := account.transition(StatusClosedObligationsMet, "close at maturity"); err != nil {
		return err
	}
	p.Logger.Info("account closed, obligations met",
		"account_id", account.ID, "date", day.String())
	p.Ledger.Publisher.AccountStatusChanged(AccountStatusChangedEvent{
		AccountID: account.ID, Previous: previous, Current: account.Status, Date: day,
	})
	return nil
}
