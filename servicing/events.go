/*
events.go - Outbound notifications to external collaborators

PURPOSE:
  The engine announces ledger and delinquency changes through a Publisher.
  Events carry the same figures the direct queries return, so external
  consumers never observe drift between a query and the event payload.

DELIVERY CONTRACT:
  - DelinquencyRangeChanged: exactly once per range change
  - BalanceChanged: exactly once per ledger mutation that altered balances
  - Delivery is in-process and synchronous; brokers are out of scope.
*/
package servicing

import (
	"log/slog"
	"sync"
)

// =============================================================================
// EVENTS
// =============================================================================

type BalanceChangedEvent struct {
	AccountID AccountID
	Trigger   TransactionType
	Balances  BalanceSummary
	Date      Date
}

type DelinquencyRangeChangedEvent struct {
	AccountID AccountID
	Previous  string
	Current   string
	// Same figures as Classify returns for the same asOf date.
	DelinquentAmount Money
	DelinquentDate   *Date // earliest unpaid due date
	PerInstallment   map[int]string
	AsOf             Date
}

type AccountStatusChangedEvent struct {
	AccountID AccountID
	Previous  AccountStatus
	Current   AccountStatus
	Date      Date
}

// =============================================================================
// PUBLISHER
// =============================================================================

type Publisher interface {
	BalanceChanged(e BalanceChangedEvent)
	DelinquencyRangeChanged(e DelinquencyRangeChangedEvent)
	AccountStatusChanged(e AccountStatusChangedEvent)
}

// NopPublisher drops everything. Default when no collaborator is wired.
type NopPublisher struct{}

func (NopPublisher) BalanceChanged(BalanceChangedEvent)                   {}
func (NopPublisher) DelinquencyRangeChanged(DelinquencyRangeChangedEvent) {}
func (NopPublisher) AccountStatusChanged(AccountStatusChangedEvent)       {}

// LogPublisher writes events to structured logs.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p *LogPublisher) BalanceChanged(e BalanceChangedEvent) {
	p.Logger.Info("balance changed",
		"account_id", e.AccountID,
		"trigger", e.Trigger,
		"outstanding", e.Balances.TotalOutstanding.String(),
		"date", e.Date.String())
}

func (p *LogPublisher) DelinquencyRangeChanged(e DelinquencyRangeChangedEvent) {
	attrs := []any{
		"account_id", e.AccountID,
		"previous", e.Previous,
		"current", e.Current,
		"delinquent_amount", e.DelinquentAmount.String(),
		"as_of", e.AsOf.String(),
	}
	if e.DelinquentDate != nil {
		attrs = append(attrs, "delinquent_date", e.DelinquentDate.String())
	}
	p.Logger.Info("delinquency range changed", attrs...)
}

func (p *LogPublisher) AccountStatusChanged(e AccountStatusChangedEvent) {
	p.Logger.Info("account status changed",
		"account_id", e.AccountID,
		"previous", e.Previous,
		"current", e.Current,
		"date", e.Date.String())
}

// =============================================================================
// RECORDER - Test double capturing delivered events
// =============================================================================

type EventRecorder struct {
	mu             sync.Mutex
	Balance        []BalanceChangedEvent
	Delinquency    []DelinquencyRangeChangedEvent
	StatusChanges  []AccountStatusChangedEvent
}

func (r *EventRecorder) BalanceChanged(e BalanceChangedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Balance = append(r.Balance, e)
}

func (r *EventRecorder) DelinquencyRangeChanged(e DelinquencyRangeChangedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Delinquency = append(r.Delinquency, e)
}

func (r *EventRecorder) AccountStatusChanged(e AccountStatusChangedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StatusChanges = append(r.StatusChanges, e)
}
