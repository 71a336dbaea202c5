// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/loan-servicing/servicing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps all account state behind a single mutex and exchanges
// copies at the boundary, so readers never observe a half-applied
// mutation (copy-on-commit).
type Memory struct {
	mu           sync.RWMutex
	nextID       servicing.AccountID
	nextSequence int64
	accounts     map[servicing.AccountID]servicing.LoanAccount
	transactions map[servicing.AccountID][]servicing.Transaction
	idempotency  map[idemKey]servicing.TransactionID
	schedules    map[servicing.AccountID][]servicing.RepaymentPeriod
	tags         map[servicing.AccountID][]servicing.DelinquencyTag
	pauses       map[servicing.AccountID][]servicing.PausePeriod
}

type idemKey struct {
	Account servicing.AccountID
	Key     string
}

func NewMemory() *Memory {
	return &Memory{
		nextID:       1,
		accounts:     make(map[servicing.AccountID]servicing.LoanAccount),
		transactions: make(map[servicing.AccountID][]servicing.Transaction),
		idempotency:  make(map[idemKey]servicing.TransactionID),
		schedules:    make(map[servicing.AccountID][]servicing.RepaymentPeriod),
		tags:         make(map[servicing.AccountID][]servicing.DelinquencyTag),
		pauses:       make(map[servicing.AccountID][]servicing.PausePeriod),
	}
}

// --- Accounts ---

func (m *Memory) CreateAccount(_ context.Context, account servicing.LoanAccount) (servicing.LoanAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account.ID = m.nextID
	m.nextID++
	m.accounts[account.ID] = account
	return account, nil
}

func (m *Memory) GetAccount(_ context.Context, id servicing.AccountID) (servicing.LoanAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[id]
	if !ok {
		return servicing.LoanAccount{}, servicing.ErrAccountNotFound
	}
	return account, nil
}

func (m *Memory) SaveAccount(_ context.Context, account servicing.LoanAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[account.ID]; !ok {
		return servicing.ErrAccountNotFound
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]servicing.LoanAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]servicing.LoanAccount, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Transactions (append-only) ---

func (m *Memory) AppendTransaction(_ context.Context, tx servicing.Transaction) (servicing.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSequence++
	tx.Sequence = m.nextSequence

	txs := m.transactions[tx.AccountID]
	// Insert ordered by (date, sequence); binary search keeps the history
	// sorted without a full re-sort per append.
	i := sort.Search(len(txs), func(i int) bool {
		if !txs[i].Date.Equal(tx.Date) {
			return txs[i].Date.After(tx.Date)
		}
		return txs[i].Sequence > tx.Sequence
	})
	txs = append(txs, servicing.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.AccountID] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[idemKey{Account: tx.AccountID, Key: tx.IdempotencyKey}] = tx.ID
	}
	return tx, nil
}

func (m *Memory) Transactions(_ context.Context, id servicing.AccountID) ([]servicing.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]servicing.Transaction, len(m.transactions[id]))
	copy(out, m.transactions[id])
	return out, nil
}

func (m *Memory) GetTransaction(_ context.Context, id servicing.AccountID, txID servicing.TransactionID) (servicing.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.transactions[id] {
		if tx.ID == txID {
			return tx, nil
		}
	}
	return servicing.Transaction{}, servicing.ErrTransactionNotFound
}

func (m *Memory) FindByIdempotencyKey(_ context.Context, id servicing.AccountID, key string) (servicing.Transaction, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txID, ok := m.idempotency[idemKey{Account: id, Key: key}]
	if !ok {
		return servicing.Transaction{}, false, nil
	}
	for _, tx := range m.transactions[id] {
		if tx.ID == txID {
			return tx, true, nil
		}
	}
	return servicing.Transaction{}, false, nil
}

func (m *Memory) MarkManuallyReversed(_ context.Context, id servicing.AccountID, txID servicing.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txs := m.transactions[id]
	for i := range txs {
		if txs[i].ID == txID {
			txs[i].ManuallyReversed = true
			return nil
		}
	}
	return servicing.ErrTransactionNotFound
}

func (m *Memory) SetAllocation(_ context.Context, id servicing.AccountID, txID servicing.TransactionID, alloc servicing.PaymentAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	txs := m.transactions[id]
	for i := range txs {
		if txs[i].ID == txID {
			txs[i].Allocation = alloc
			return nil
		}
	}
	return servicing.ErrTransactionNotFound
}

// --- Schedule ---

func (m *Memory) ReplaceSchedule(_ context.Context, id servicing.AccountID, periods []servicing.RepaymentPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]servicing.RepaymentPeriod, len(periods))
	copy(out, periods)
	m.schedules[id] = out
	return nil
}

func (m *Memory) Schedule(_ context.Context, id servicing.AccountID) ([]servicing.RepaymentPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]servicing.RepaymentPeriod, len(m.schedules[id]))
	copy(out, m.schedules[id])
	return out, nil
}

// --- Delinquency tags ---

func (m *Memory) TagHistory(_ context.Context, id servicing.AccountID) ([]servicing.DelinquencyTag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]servicing.DelinquencyTag, len(m.tags[id]))
	copy(out, m.tags[id])
	return out, nil
}

func (m *Memory) AppendTag(_ context.Context, id servicing.AccountID, tag servicing.DelinquencyTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tags[id] = append(m.tags[id], tag)
	return nil
}

func (m *Memory) CloseCurrentTag(_ context.Context, id servicing.AccountID, liftedOn servicing.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tags := m.tags[id]
	for i := range tags {
		if tags[i].LiftedOn == nil {
			lifted := liftedOn
			tags[i].LiftedOn = &lifted
			return nil
		}
	}
	return nil
}

// --- Pause periods ---

func (m *Memory) PausePeriods(_ context.Context, id servicing.AccountID) ([]servicing.PausePeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]servicing.PausePeriod, len(m.pauses[id]))
	copy(out, m.pauses[id])
	return out, nil
}

func (m *Memory) SavePausePeriod(_ context.Context, pause servicing.PausePeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pauses := m.pauses[pause.AccountID]
	for i := range pauses {
		if pauses[i].ID == pause.ID {
			pauses[i] = pause
			return nil
		}
	}
	m.pauses[pause.AccountID] = append(pauses, pause)
	return nil
}
