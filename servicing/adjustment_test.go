package servicing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-servicing/servicing"
)

// =============================================================================
// PURE REVERSAL
// =============================================================================

func TestAdjust_PureReversal_PreservesHistory(t *testing.T) {
	// GIVEN: A 400.00 repayment settled the first installment
	// WHEN: The payment is reversed without a replacement
	// THEN: The original stays in history flagged reversed, a paired entry
	//       appears, and balances read as if the payment never happened

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	paid, err := e.ledger.Post(ctx, id, repayment("400.00", date(2025, time.February, 15)))
	require.NoError(t, err)

	reversed, replacement, err := e.ledger.Adjust(ctx, id, paid.ID, servicing.AdjustmentInput{})
	require.NoError(t, err)
	assert.Nil(t, replacement)
	assert.True(t, reversed.ManuallyReversed)
	assert.Equal(t, paid.ID, reversed.ID)

	txs, err := e.store.Transactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, txs, 3, "disbursement, original, reversing entry")

	var pair *servicing.Transaction
	for i := range txs {
		if txs[i].ReversalOf == paid.ID {
			pair = &txs[i]
		}
	}
	require.NotNil(t, pair, "paired reversing entry must exist")
	assert.Equal(t, paid.Type, pair.Type)
	assertMoney(t, "400.00", pair.Amount)

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "1200.00", balances.TotalOutstanding)
	assertMoney(t, "0", balances.TotalPaid)
}

// =============================================================================
// REVERSE-AND-REPLACE
// =============================================================================

func TestAdjust_WithReplacement_RepostsCorrectedAmount(t *testing.T) {
	// GIVEN: A 400.00 repayment that should have been 300.00
	// WHEN: The adjustment carries the corrected amount
	// THEN: A replacement posts at 300.00 and balances land at 900.00

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	paid, err := e.ledger.Post(ctx, id, repayment("400.00", date(2025, time.February, 15)))
	require.NoError(t, err)

	corrected := servicing.MustMoney("300.00")
	reversed, replacement, err := e.ledger.Adjust(ctx, id, paid.ID, servicing.AdjustmentInput{
		NewAmount: &corrected,
	})
	require.NoError(t, err)
	assert.True(t, reversed.ManuallyReversed)
	require.NotNil(t, replacement)
	assert.Equal(t, paid.Type, replacement.Type)
	assertMoney(t, "300.00", replacement.Amount)
	assert.True(t, replacement.Date.Equal(paid.Date), "replacement keeps the original date")

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "900.00", balances.TotalOutstanding)
	assertMoney(t, "300.00", balances.TotalPaid)
}

func TestAdjust_WithNewDate_ReplacementMovesEffectiveDate(t *testing.T) {
	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	paid, err := e.ledger.Post(ctx, id, repayment("400.00", date(2025, time.February, 15)))
	require.NoError(t, err)

	corrected := servicing.MustMoney("400.00")
	newDate := date(2025, time.February, 10)
	_, replacement, err := e.ledger.Adjust(ctx, id, paid.ID, servicing.AdjustmentInput{
		NewAmount: &corrected,
		NewDate:   &newDate,
	})
	require.NoError(t, err)
	require.NotNil(t, replacement)
	assert.True(t, replacement.Date.Equal(newDate))
}

func TestAdjust_NewDateAfterBusinessDate_Rejected(t *testing.T) {
	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	paid, err := e.ledger.Post(ctx, id, repayment("400.00", date(2025, time.February, 15)))
	require.NoError(t, err)

	future := date(2025, time.February, 25)
	_, _, err = e.ledger.Adjust(ctx, id, paid.ID, servicing.AdjustmentInput{NewDate: &future})
	assert.ErrorIs(t, err, servicing.ErrDateOrderViolation)
}

// =============================================================================
// REFUSALS
// =============================================================================

func TestAdjust_AlreadyReversed_Refused(t *testing.T) {
	// GIVEN: A repayment that was already reversed
	// WHEN: A second adjustment targets the same entry
	// THEN: The adjustment is refused; immutability is one reversal deep

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	paid, err := e.ledger.Post(ctx, id, repayment("400.00", date(2025, time.February, 15)))
	require.NoError(t, err)
	_, _, err = e.ledger.Adjust(ctx, id, paid.ID, servicing.AdjustmentInput{})
	require.NoError(t, err)

	_, _, err = e.ledger.Adjust(ctx, id, paid.ID, servicing.AdjustmentInput{})
	var refused *servicing.AdjustmentNotAllowedError
	require.ErrorAs(t, err, &refused)
	assert.ErrorIs(t, err, servicing.ErrAdjustmentNotAllowed)
}

func TestAdjust_ReversalEntry_Refused(t *testing.T) {
	// GIVEN: The paired reversing entry from a prior adjustment
	// WHEN: An adjustment targets that entry
	// THEN: It is refused; reversal entries are not themselves reversible

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	paid, err := e.ledger.Post(ctx, id, repayment("400.00", date(2025, time.February, 15)))
	require.NoError(t, err)
	_, _, err = e.ledger.Adjust(ctx, id, paid.ID, servicing.AdjustmentInput{})
	require.NoError(t, err)

	txs, err := e.store.Transactions(ctx, id)
	require.NoError(t, err)
	var pairID servicing.TransactionID
	for _, tx := range txs {
		if tx.ReversalOf == paid.ID {
			pairID = tx.ID
		}
	}
	require.NotEmpty(t, pairID)

	_, _, err = e.ledger.Adjust(ctx, id, pairID, servicing.AdjustmentInput{})
	assert.ErrorIs(t, err, servicing.ErrAdjustmentNotAllowed)
}

func TestAdjust_ChargedOffAccount_Refused(t *testing.T) {
	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	paid, err := e.ledger.Post(ctx, id, repayment("400.00", date(2025, time.February, 15)))
	require.NoError(t, err)
	_, err = e.ledger.Post(ctx, id, servicing.TransactionInput{
		Type:   servicing.TxChargeOff,
		Date:   date(2025, time.February, 16),
		Amount: servicing.MustMoney("800.00"),
	})
	require.NoError(t, err)

	_, _, err = e.ledger.Adjust(ctx, id, paid.ID, servicing.AdjustmentInput{})
	assert.ErrorIs(t, err, servicing.ErrAdjustmentNotAllowed)
}

func TestAdjust_AmountExceedsBasis_RefusedWithFigure(t *testing.T) {
	// GIVEN: A 400.00 repayment
	// WHEN: The replacement asks for 500.00
	// THEN: The refusal reports the 400.00 ceiling exactly

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	paid, err := e.ledger.Post(ctx, id, repayment("400.00", date(2025, time.February, 15)))
	require.NoError(t, err)

	tooMuch := servicing.MustMoney("500.00")
	_, _, err = e.ledger.Adjust(ctx, id, paid.ID, servicing.AdjustmentInput{NewAmount: &tooMuch})

	var refused *servicing.AdjustmentNotAllowedError
	require.ErrorAs(t, err, &refused)
	require.NotNil(t, refused.Outstanding)
	assertMoney(t, "400.00", *refused.Outstanding)

	// Nothing was flagged or appended on the refused path.
	original, err := e.store.GetTransaction(ctx, id, paid.ID)
	require.NoError(t, err)
	assert.False(t, original.ManuallyReversed)
}

func TestAdjust_UnknownTransaction_NotFound(t *testing.T) {
	e := newTestEngine(t, date(2025, time.February, 20))
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, _, err := e.ledger.Adjust(context.Background(), id, "no-such-tx", servicing.AdjustmentInput{})
	assert.True(t, servicing.IsNotFound(err))
}

// =============================================================================
// DISBURSEMENT ADJUSTMENT
// =============================================================================

func TestAdjust_Disbursement_ReamortizesSchedule(t *testing.T) {
	// GIVEN: 1200.00 disbursed over 3 months
	// WHEN: The disbursement is corrected down to 600.00
	// THEN: The schedule re-amortizes the replacement principal and every
	//       derived figure follows

	e := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	txs, err := e.store.Transactions(ctx, id)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	disbursed := txs[0]

	corrected := servicing.MustMoney("600.00")
	reversed, replacement, err := e.ledger.Adjust(ctx, id, disbursed.ID, servicing.AdjustmentInput{
		NewAmount: &corrected,
	})
	require.NoError(t, err)
	assert.True(t, reversed.ManuallyReversed)
	require.NotNil(t, replacement)
	assertMoney(t, "600.00", replacement.Amount)
	assertMoney(t, "600.00", replacement.Allocation.Principal)

	schedule, err := e.store.Schedule(ctx, id)
	require.NoError(t, err)
	require.Len(t, schedule, 3)
	total := servicing.ZeroMoney()
	for _, p := range schedule {
		total = total.Add(p.PrincipalDue)
	}
	assertMoney(t, "600.00", total, "schedule amortizes the corrected principal")
	assertMoney(t, "200.00", schedule[0].PrincipalDue)

	account, err := e.store.GetAccount(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "600.00", account.Terms.Principal)
	assert.True(t, account.ExpectedMaturityDate.Equal(date(2025, time.April, 15)))

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "600.00", balances.TotalOutstanding)
}

func TestAdjust_Disbursement_PureReversal_Refused(t *testing.T) {
	// GIVEN: An active disbursed loan
	// WHEN: The disbursement is reversed without a replacement amount
	// THEN: The adjustment is refused and the loan is untouched

	e := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	txs, err := e.store.Transactions(ctx, id)
	require.NoError(t, err)
	disbursed := txs[0]

	_, _, err = e.ledger.Adjust(ctx, id, disbursed.ID, servicing.AdjustmentInput{})
	var refused *servicing.AdjustmentNotAllowedError
	require.ErrorAs(t, err, &refused)
	assert.ErrorIs(t, err, servicing.ErrAdjustmentNotAllowed)

	original, err := e.store.GetTransaction(ctx, id, disbursed.ID)
	require.NoError(t, err)
	assert.False(t, original.ManuallyReversed)

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "1200.00", balances.TotalOutstanding)
}
