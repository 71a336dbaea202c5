package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-servicing/servicing"
	"github.com/warp/loan-servicing/servicing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newAccount(t *testing.T, m *store.Memory) servicing.AccountID {
	t.Helper()
	account, err := m.CreateAccount(context.Background(), servicing.LoanAccount{
		ExternalID:  "LN-1",
		Status:      servicing.StatusActive,
		ProductCode: "STANDARD",
	})
	require.NoError(t, err)
	return account.ID
}

func tx(id string, account servicing.AccountID, on servicing.Date, amount string) servicing.Transaction {
	return servicing.Transaction{
		ID:        servicing.TransactionID(id),
		AccountID: account,
		Type:      servicing.TxRepayment,
		Date:      on,
		Amount:    servicing.MustMoney(amount),
	}
}

func day(d int) servicing.Date { return servicing.NewDate(2025, time.March, d) }

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestMemory_Accounts_RoundTrip(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	created, err := m.CreateAccount(ctx, servicing.LoanAccount{
		ExternalID:  "LN-42",
		Status:      servicing.StatusPendingApproval,
		ProductCode: "STANDARD",
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	got, err := m.GetAccount(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "LN-42", got.ExternalID)

	got.Status = servicing.StatusApproved
	require.NoError(t, m.SaveAccount(ctx, got))
	got, err = m.GetAccount(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, servicing.StatusApproved, got.Status)

	_, err = m.GetAccount(ctx, 9999)
	assert.ErrorIs(t, err, servicing.ErrAccountNotFound)
}

// =============================================================================
// TRANSACTION ORDERING
// =============================================================================

func TestMemory_Transactions_OrderedByDateThenSequence(t *testing.T) {
	// GIVEN: Entries appended out of date order, two sharing a date
	// WHEN: The history is read
	// THEN: It comes back by (date, sequence): value date first, arrival
	//       order breaking ties

	m := store.NewMemory()
	ctx := context.Background()
	id := newAccount(t, m)

	for _, e := range []servicing.Transaction{
		tx("t-mar10", id, day(10), "30.00"),
		tx("t-mar05-a", id, day(5), "10.00"),
		tx("t-mar05-b", id, day(5), "20.00"),
		tx("t-mar01", id, day(1), "5.00"),
	} {
		_, err := m.AppendTransaction(ctx, e)
		require.NoError(t, err)
	}

	txs, err := m.Transactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, txs, 4)

	ids := make([]servicing.TransactionID, len(txs))
	for i, e := range txs {
		ids[i] = e.ID
	}
	assert.Equal(t, []servicing.TransactionID{"t-mar01", "t-mar05-a", "t-mar05-b", "t-mar10"}, ids)
	assert.Less(t, txs[1].Sequence, txs[2].Sequence, "same-date entries keep arrival order")
}

func TestMemory_AppendTransaction_AssignsMonotonicSequence(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	id := newAccount(t, m)

	first, err := m.AppendTransaction(ctx, tx("t-1", id, day(1), "10.00"))
	require.NoError(t, err)
	second, err := m.AppendTransaction(ctx, tx("t-2", id, day(1), "10.00"))
	require.NoError(t, err)
	assert.Greater(t, second.Sequence, first.Sequence)
}

// =============================================================================
// IDEMPOTENCY LOOKUP
// =============================================================================

func TestMemory_FindByIdempotencyKey(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	id := newAccount(t, m)
	other := newAccount(t, m)

	keyed := tx("t-1", id, day(5), "10.00")
	keyed.IdempotencyKey = "pay-1"
	_, err := m.AppendTransaction(ctx, keyed)
	require.NoError(t, err)

	found, ok, err := m.FindByIdempotencyKey(ctx, id, "pay-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, servicing.TransactionID("t-1"), found.ID)

	_, ok, err = m.FindByIdempotencyKey(ctx, id, "pay-2")
	require.NoError(t, err)
	assert.False(t, ok)

	// Keys are scoped per account.
	_, ok, err = m.FindByIdempotencyKey(ctx, other, "pay-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// PERMITTED MUTATIONS
// =============================================================================

func TestMemory_MarkManuallyReversed_Persists(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	id := newAccount(t, m)

	_, err := m.AppendTransaction(ctx, tx("t-1", id, day(5), "10.00"))
	require.NoError(t, err)

	require.NoError(t, m.MarkManuallyReversed(ctx, id, "t-1"))
	got, err := m.GetTransaction(ctx, id, "t-1")
	require.NoError(t, err)
	assert.True(t, got.ManuallyReversed)

	err = m.MarkManuallyReversed(ctx, id, "missing")
	assert.ErrorIs(t, err, servicing.ErrTransactionNotFound)
}

func TestMemory_SetAllocation_Persists(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	id := newAccount(t, m)

	_, err := m.AppendTransaction(ctx, tx("t-1", id, day(5), "10.00"))
	require.NoError(t, err)

	alloc := servicing.PaymentAllocation{
		Principal: servicing.MustMoney("8.00"),
		Interest:  servicing.MustMoney("2.00"),
		Fee:       servicing.ZeroMoney(),
		Penalty:   servicing.ZeroMoney(),
	}
	require.NoError(t, m.SetAllocation(ctx, id, "t-1", alloc))

	got, err := m.GetTransaction(ctx, id, "t-1")
	require.NoError(t, err)
	assert.True(t, got.Allocation.Principal.Equal(servicing.MustMoney("8.00")))
	assert.True(t, got.Allocation.Interest.Equal(servicing.MustMoney("2.00")))
}

// =============================================================================
// COPY ISOLATION
// =============================================================================

func TestMemory_Transactions_CallerCannotMutateStore(t *testing.T) {
	// GIVEN: A stored transaction
	// WHEN: The caller mutates the slice it was handed
	// THEN: A fresh read is unaffected; the store exchanges copies

	m := store.NewMemory()
	ctx := context.Background()
	id := newAccount(t, m)

	_, err := m.AppendTransaction(ctx, tx("t-1", id, day(5), "10.00"))
	require.NoError(t, err)

	leaked, err := m.Transactions(ctx, id)
	require.NoError(t, err)
	leaked[0].ManuallyReversed = true

	fresh, err := m.Transactions(ctx, id)
	require.NoError(t, err)
	assert.False(t, fresh[0].ManuallyReversed)
}

// =============================================================================
// SCHEDULE / TAGS / PAUSES
// =============================================================================

func TestMemory_ReplaceSchedule_SwapsWholesale(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	id := newAccount(t, m)

	require.NoError(t, m.ReplaceSchedule(ctx, id, []servicing.RepaymentPeriod{
		{Number: 1, DueDate: day(1), PrincipalDue: servicing.MustMoney("100.00")},
		{Number: 2, DueDate: day(15), PrincipalDue: servicing.MustMoney("100.00")},
	}))
	require.NoError(t, m.ReplaceSchedule(ctx, id, []servicing.RepaymentPeriod{
		{Number: 1, DueDate: day(1), PrincipalDue: servicing.MustMoney("200.00")},
	}))

	schedule, err := m.Schedule(ctx, id)
	require.NoError(t, err)
	require.Len(t, schedule, 1)
	assert.True(t, schedule[0].PrincipalDue.Equal(servicing.MustMoney("200.00")))
}

func TestMemory_TagHistory_CloseCurrentTag(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	id := newAccount(t, m)

	require.NoError(t, m.AppendTag(ctx, id, servicing.DelinquencyTag{Range: "RANGE_1", AddedOn: day(5)}))
	require.NoError(t, m.CloseCurrentTag(ctx, id, day(10)))
	require.NoError(t, m.AppendTag(ctx, id, servicing.DelinquencyTag{Range: "RANGE_30", AddedOn: day(10)}))

	history, err := m.TagHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)

	open := 0
	for _, tag := range history {
		if tag.LiftedOn == nil {
			open++
		} else {
			assert.True(t, tag.LiftedOn.Equal(day(10)))
		}
	}
	assert.Equal(t, 1, open)
}

func TestMemory_SavePausePeriod_Upserts(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	id := newAccount(t, m)

	pause := servicing.PausePeriod{ID: "p-1", AccountID: id, Start: day(5), Active: true}
	require.NoError(t, m.SavePausePeriod(ctx, pause))

	end := day(10)
	pause.End = &end
	require.NoError(t, m.SavePausePeriod(ctx, pause))

	pauses, err := m.PausePeriods(ctx, id)
	require.NoError(t, err)
	require.Len(t, pauses, 1, "same id updates in place")
	require.NotNil(t, pauses[0].End)
	assert.True(t, pauses[0].End.Equal(end))
}
