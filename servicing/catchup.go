/*
catchup.go - Catch-up coordinator

PURPOSE:
  Drives the COB day-advance processor across every account that trails
  the global business date. Per account: acquire the lock, replay the
  full backlog, release, move on. One account's failure is recorded and
  the batch continues - the failed account's last closed date is
  untouched, so the next run retries it.

CONCURRENCY:
  At most one catch-up batch runs process-wide; a second trigger while
  one is active reports already-running and does nothing. The batch is
  preemptible between accounts via context cancellation, never
  mid-account.

MONITORING:
  OldestProcessed exposes the account with the smallest last closed
  business date. It trailing the global date by more than one day is a
  transient backlog condition, never a steady state.
*/
package servicing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// OBSERVER - Monitoring hook (metrics package implements this)
// =============================================================================

type CatchUpObserver interface {
	CatchUpStarted(accounts int)
	AccountCaughtUp(accountID AccountID, daysProcessed int, took time.Duration)
	AccountFailed(accountID AccountID, err error)
	CatchUpFinished(succeeded, failed int)
}

type nopObserver struct{}

func (nopObserver) CatchUpStarted(int)                                 {}
func (nopObserver) AccountCaughtUp(AccountID, int, time.Duration)      {}
func (nopObserver) AccountFailed(AccountID, error)                     {}
func (nopObserver) CatchUpFinished(int, int)                           {}

// =============================================================================
// COORDINATOR
// =============================================================================

// OldestProcessedEntry is the monitoring view of the most-behind account.
type OldestProcessedEntry struct {
	AccountID        AccountID
	COBBusinessDate  Date // the global business date
	COBProcessedDate Date // the account's last closed business date
}

type Coordinator struct {
	Store     Store
	Clock     BusinessClock
	Processor *Processor
	Locks     *LockManager
	Logger    *slog.Logger
	Observer  CatchUpObserver

	running atomic.Bool
	wg      sync.WaitGroup

	mu       sync.Mutex
	failures map[AccountID]error
}

func NewCoordinator(store Store, clock BusinessClock, processor *Processor, locks *LockManager, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		Store:     store,
		Clock:     clock,
		Processor: processor,
		Locks:     locks,
		Logger:    logger,
		Observer:  nopObserver{},
		failures:  make(map[AccountID]error),
	}
}

// RunCatchUp starts the batch asynchronously. Returns ErrCatchUpRunning
// if one is already in flight; callers poll IsRunning.
func (c *Coordinator) RunCatchUp(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrCatchUpRunning
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)
		c.run(ctx)
	}()
	return nil
}

// IsRunning reflects the single process-wide batch flag.
func (c *Coordinator) IsRunning() bool { return c.running.Load() }

// Wait blocks until the current batch (if any) finishes. Test helper and
// shutdown hook.
func (c *Coordinator) Wait() { c.wg.Wait() }

// RunInline synchronously drives the processor for exactly the given
// accounts, returning success/failure per account. Independent of the
// background batch except for per-account lock contention.
func (c *Coordinator) RunInline(ctx context.Context, accountIDs []AccountID) map[AccountID]error {
	results := make(map[AccountID]error, len(accountIDs))
	for _, id := range accountIDs {
		results[id] = c.catchUpOne(ctx, id)
	}
	return results
}

// Failures returns the per-account errors recorded by the last batch.
func (c *Coordinator) Failures() map[AccountID]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[AccountID]error, len(c.failures))
	for id, err := range c.failures {
		out[id] = err
	}
	return out
}

// OldestProcessed returns the account with the smallest last closed
// business date among open, disbursed accounts.
func (c *Coordinator) OldestProcessed(ctx context.Context) (OldestProcessedEntry, bool, error) {
	accounts, err := c.Store.ListAccounts(ctx)
	if err != nil {
		return OldestProcessedEntry{}, false, err
	}

	var oldest *LoanAccount
	for i := range accounts {
		a := accounts[i]
		if a.LastClosedBusinessDate == nil || !a.Status.IsOpen() {
			continue
		}
		if oldest == nil || a.LastClosedBusinessDate.Before(*oldest.LastClosedBusinessDate) {
			oldest = &accounts[i]
		}
	}
	if oldest == nil {
		return OldestProcessedEntry{}, false, nil
	}
	return OldestProcessedEntry{
		AccountID:        oldest.ID,
		COBBusinessDate:  c.Clock.BusinessDate(),
		COBProcessedDate: *oldest.LastClosedBusinessDate,
	}, true, nil
}

// =============================================================================
// BATCH EXECUTION
// =============================================================================

func (c *Coordinator) run(ctx context.Context) {
	behind, err := c.accountsBehind(ctx)
	if err != nil {
		c.Logger.Error("catch-up enumeration failed", "error", err)
		return
	}

	c.mu.Lock()
	c.failures = make(map[AccountID]error)
	c.mu.Unlock()

	c.Observer.CatchUpStarted(len(behind))
	c.Logger.Info("catch-up started",
		"accounts", len(behind), "business_date", c.Clock.BusinessDate().String())

	succeeded, failed := 0, 0
	for _, id := range behind {
		// Preemption point: between accounts only, never mid-account.
		if ctx.Err() != nil {
			c.Logger.Info("catch-up preempted", "remaining", len(behind)-succeeded-failed)
			break
		}
		if err := c.catchUpOne(ctx, id); err != nil {
			failed++
			c.mu.Lock()
			c.failures[id] = &BatchItemError{AccountID: id, Err: err}
			c.mu.Unlock()
			c.Observer.AccountFailed(id, err)
			c.Logger.Error("catch-up failed for account", "account_id", id, "error", err)
			continue
		}
		succeeded++
	}

	c.Observer.CatchUpFinished(succeeded, failed)
	c.Logger.Info("catch-up finished", "succeeded", succeeded, "failed", failed)
}

// catchUpOne replays one account's full backlog under its lock.
func (c *Coordinator) catchUpOne(ctx context.Context, id AccountID) error {
	if err := c.Locks.TryAcquire(id, LockReasonCOB, "close of business"); err != nil {
		return err
	}
	defer c.Locks.Release(id)

	started := time.Now()
	days, err := c.Processor.AdvanceToCurrent(ctx, id)
	if err != nil {
		return err
	}
	c.Observer.AccountCaughtUp(id, days, time.Since(started))
	return nil
}

func (c *Coordinator) accountsBehind(ctx context.Context) ([]AccountID, error) {
	accounts, err := c.Store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	target := c.Clock.BusinessDate()

	type entry struct {
		id     AccountID
		closed Date
	}
	var behind []entry
	for _, a := range accounts {
		if a.LastClosedBusinessDate == nil || !a.Status.IsOpen() {
			continue
		}
		if a.LastClosedBusinessDate.Before(target) {
			behind = append(behind, entry{id: a.ID, closed: *a.LastClosedBusinessDate})
		}
	}
	// Most-behind accounts first, so the monitoring drift closes soonest.
	sort.Slice(behind, func(i, j int) bool {
		if !behind[i].closed.Equal(behind[j].closed) {
			return behind[i].closed.Before(behind[j].closed)
		}
		return behind[i].id < behind[j].id
	})

	ids := make([]AccountID, len(behind))
	for i, e := range behind {
		ids[i] = e.id
	}
	return ids, nil
}
