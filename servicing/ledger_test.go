package servicing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-servicing/product"
	"github.com/warp/loan-servicing/servicing"
	"github.com/warp/loan-servicing/servicing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEngine struct {
	store      *store.Memory
	clock      *servicing.FixedClock
	catalog    *product.Catalog
	ledger     *servicing.Ledger
	classifier *servicing.Classifier
	events     *servicing.EventRecorder
}

// newTestEngine wires the full posting pipeline against the in-memory
// store: ledger, classifier reactor, and an event recorder. Three stock
// products cover the interesting rule combinations:
//
//	STANDARD  - overpayment rejected, no penalty accrual
//	FLEXIBLE  - overpayment allowed
//	PENALIZED - 36.5% p.a. penalty on overdue principal (0.1% per day)
func newTestEngine(t *testing.T, businessDate servicing.Date) *testEngine {
	t.Helper()

	mem := store.NewMemory()
	clock := servicing.NewFixedClock(businessDate)

	catalog := product.NewCatalog()
	require.NoError(t, catalog.Register(product.StandardMonthly("STANDARD", false)))
	require.NoError(t, catalog.Register(product.StandardMonthly("FLEXIBLE", true)))
	penalized := product.StandardMonthly("PENALIZED", false)
	penalized.PenaltyAnnualRate = decimal.RequireFromString("0.365")
	require.NoError(t, catalog.Register(penalized))

	events := &servicing.EventRecorder{}
	ledger := servicing.NewLedger(mem, clock, catalog, events)
	classifier := servicing.NewClassifier(mem, clock, catalog, events)
	ledger.Reactors = append(ledger.Reactors, classifier)

	return &testEngine{
		store:      mem,
		clock:      clock,
		catalog:    catalog,
		ledger:     ledger,
		classifier: classifier,
		events:     events,
	}
}

// activeLoan creates, approves, and disburses a loan in one step.
func (e *testEngine) activeLoan(t *testing.T, productCode, annualRate string, periods int, principal string, disbursedOn servicing.Date) servicing.AccountID {
	t.Helper()
	ctx := context.Background()

	account, err := e.store.CreateAccount(ctx, servicing.LoanAccount{
		ExternalID:  "LN-TEST",
		Status:      servicing.StatusPendingApproval,
		ProductCode: productCode,
		Terms: servicing.LoanTerms{
			AnnualRate: decimal.RequireFromString(annualRate),
			Periods:    periods,
		},
	})
	require.NoError(t, err)

	_, err = e.ledger.Approve(ctx, account.ID)
	require.NoError(t, err)

	_, err = e.ledger.Post(ctx, account.ID, servicing.TransactionInput{
		Type:   servicing.TxDisbursement,
		Date:   disbursedOn,
		Amount: servicing.MustMoney(principal),
	})
	require.NoError(t, err)
	return account.ID
}

func date(year int, month time.Month, day int) servicing.Date {
	return servicing.NewDate(year, month, day)
}

func repayment(amount string, on servicing.Date) servicing.TransactionInput {
	return servicing.TransactionInput{
		Type:   servicing.TxRepayment,
		Date:   on,
		Amount: servicing.MustMoney(amount),
	}
}

func assertMoney(t *testing.T, expected string, actual servicing.Money, msgAndArgs ...any) {
	t.Helper()
	if !servicing.MustMoney(expected).Equal(actual) {
		t.Errorf("expected %s, got %s %v", expected, actual, msgAndArgs)
	}
}

// =============================================================================
// DISBURSEMENT
// =============================================================================

func TestLedger_Disbursement_ActivatesAndSchedules(t *testing.T) {
	// GIVEN: An approved zero-rate loan on a 3-month product
	// WHEN: 1200.00 is disbursed on Jan 15
	// THEN: The account is active, the schedule has 3 equal installments,
	//       and COB tracking starts from the disbursement date

	e := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	account, err := e.store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, servicing.StatusActive, account.Status)
	require.NotNil(t, account.LastClosedBusinessDate)
	assert.True(t, account.LastClosedBusinessDate.Equal(date(2025, time.January, 15)))
	assert.True(t, account.ExpectedMaturityDate.Equal(date(2025, time.April, 15)))

	schedule, err := e.store.Schedule(ctx, id)
	require.NoError(t, err)
	require.Len(t, schedule, 3)
	for i, p := range schedule {
		assert.Equal(t, i+1, p.Number)
		assertMoney(t, "400.00", p.PrincipalDue, "period %d principal", p.Number)
		assertMoney(t, "0", p.InterestDue, "period %d interest", p.Number)
	}
	assert.True(t, schedule[0].DueDate.Equal(date(2025, time.February, 15)))

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "1200.00", balances.PrincipalOutstanding)
	assertMoney(t, "1200.00", balances.TotalOutstanding)
}

func TestLedger_Disbursement_RequiresApprovedStatus(t *testing.T) {
	// GIVEN: A loan still pending approval
	// WHEN: Disbursement is posted
	// THEN: The posting is rejected as a state conflict

	e := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	account, err := e.store.CreateAccount(ctx, servicing.LoanAccount{
		Status:      servicing.StatusPendingApproval,
		ProductCode: "STANDARD",
		Terms:       servicing.LoanTerms{AnnualRate: decimal.Zero, Periods: 3},
	})
	require.NoError(t, err)

	_, err = e.ledger.Post(ctx, account.ID, servicing.TransactionInput{
		Type:   servicing.TxDisbursement,
		Date:   date(2025, time.January, 15),
		Amount: servicing.MustMoney("1200.00"),
	})
	assert.True(t, servicing.IsStateConflict(err), "expected state conflict, got %v", err)
}

// =============================================================================
// IDEMPOTENT POSTING
// =============================================================================

func TestLedger_Post_IdempotentRetry_ReturnsOriginal(t *testing.T) {
	// GIVEN: A repayment posted with an idempotency key
	// WHEN: The identical request is retried with the same key
	// THEN: The original transaction comes back and balances move once

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	in := repayment("400.00", date(2025, time.February, 15))
	in.IdempotencyKey = "pay-feb"

	first, err := e.ledger.Post(ctx, id, in)
	require.NoError(t, err)
	second, err := e.ledger.Post(ctx, id, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "retry must return the original entry")

	txs, err := e.store.Transactions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, txs, 2, "disbursement plus exactly one repayment")

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "800.00", balances.TotalOutstanding)
}

func TestLedger_Post_SameKeyDifferentAccounts_Independent(t *testing.T) {
	// GIVEN: Two loans
	// WHEN: Both post a repayment under the same idempotency key
	// THEN: Each account gets its own entry; keys are scoped per account

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	a := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))
	b := e.activeLoan(t, "STANDARD", "0", 3, "900.00", date(2025, time.January, 15))

	in := repayment("100.00", date(2025, time.February, 16))
	in.IdempotencyKey = "shared-key"

	txA, err := e.ledger.Post(ctx, a, in)
	require.NoError(t, err)
	txB, err := e.ledger.Post(ctx, b, in)
	require.NoError(t, err)
	assert.NotEqual(t, txA.ID, txB.ID)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestLedger_Post_DateAfterBusinessDate_Rejected(t *testing.T) {
	// GIVEN: The business date is Feb 20
	// WHEN: A repayment dated Feb 21 is posted
	// THEN: The posting fails the date-order check

	e := newTestEngine(t, date(2025, time.February, 20))
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(context.Background(), id, repayment("100.00", date(2025, time.February, 21)))
	assert.ErrorIs(t, err, servicing.ErrDateOrderViolation)
}

func TestLedger_Post_NonPositiveAmount_Rejected(t *testing.T) {
	e := newTestEngine(t, date(2025, time.February, 20))
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(context.Background(), id, repayment("0", date(2025, time.February, 16)))
	assert.True(t, servicing.IsValidationError(err), "zero amount must be rejected, got %v", err)
}

func TestLedger_Post_UnknownType_Rejected(t *testing.T) {
	e := newTestEngine(t, date(2025, time.February, 20))
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(context.Background(), id, servicing.TransactionInput{
		Type:   servicing.TransactionType("bonus"),
		Date:   date(2025, time.February, 16),
		Amount: servicing.MustMoney("10.00"),
	})
	assert.True(t, servicing.IsValidationError(err))
}

// =============================================================================
// OVERPAYMENT
// =============================================================================

func TestLedger_Post_Overpayment_RejectedByDefault(t *testing.T) {
	// GIVEN: 1200.00 outstanding on a product without overpayment
	// WHEN: A 1500.00 repayment arrives
	// THEN: The posting is rejected and no entry is appended

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(ctx, id, repayment("1500.00", date(2025, time.February, 16)))
	assert.ErrorIs(t, err, servicing.ErrOverpaymentNotAllowed)

	txs, err := e.store.Transactions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "only the disbursement should exist")
}

func TestLedger_Post_Overpayment_AllowedProduct_GoesOverpaid(t *testing.T) {
	// GIVEN: 1200.00 outstanding on a product that permits overpayment
	// WHEN: A 1500.00 repayment arrives
	// THEN: Every period settles, 300.00 sits as credit balance, and the
	//       account moves to Overpaid

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "FLEXIBLE", "0", 3, "1200.00", date(2025, time.January, 15))

	tx, err := e.ledger.Post(ctx, id, repayment("1500.00", date(2025, time.February, 16)))
	require.NoError(t, err)
	assertMoney(t, "1200.00", tx.Allocation.Principal)
	assertMoney(t, "300.00", tx.Allocation.Overpayment)

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "0", balances.TotalOutstanding)
	assertMoney(t, "300.00", balances.Overpaid)

	account, err := e.store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, servicing.StatusOverpaid, account.Status)
}

func TestLedger_CreditBalanceRefund_DrainsCreditAndCloses(t *testing.T) {
	// GIVEN: An overpaid account holding a 300.00 credit balance
	// WHEN: A credit balance refund of 300.00 is posted
	// THEN: The credit drains to zero and the account closes settled

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "FLEXIBLE", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(ctx, id, repayment("1500.00", date(2025, time.February, 16)))
	require.NoError(t, err)

	_, err = e.ledger.Post(ctx, id, servicing.TransactionInput{
		Type:   servicing.TxCreditBalanceRefund,
		Date:   date(2025, time.February, 17),
		Amount: servicing.MustMoney("300.00"),
	})
	require.NoError(t, err)

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "0", balances.Overpaid)

	account, err := e.store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, servicing.StatusClosedObligationsMet, account.Status)
}

func TestLedger_CreditBalanceRefund_RequiresOverpaidStatus(t *testing.T) {
	e := newTestEngine(t, date(2025, time.February, 20))
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(context.Background(), id, servicing.TransactionInput{
		Type:   servicing.TxCreditBalanceRefund,
		Date:   date(2025, time.February, 16),
		Amount: servicing.MustMoney("50.00"),
	})
	assert.True(t, servicing.IsStateConflict(err))
}

// =============================================================================
// CHARGEBACK
// =============================================================================

func TestLedger_Chargeback_ReopensSettledPeriod(t *testing.T) {
	// GIVEN: The first installment was settled by a 400.00 repayment
	// WHEN: The payment is charged back in full
	// THEN: The installment reopens and the outstanding returns to 1200.00

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(ctx, id, repayment("400.00", date(2025, time.February, 15)))
	require.NoError(t, err)

	_, err = e.ledger.Post(ctx, id, servicing.TransactionInput{
		Type:   servicing.TxChargeback,
		Date:   date(2025, time.February, 18),
		Amount: servicing.MustMoney("400.00"),
	})
	require.NoError(t, err)

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "1200.00", balances.TotalOutstanding)
	assertMoney(t, "0", balances.TotalPaid)

	schedule, err := e.store.Schedule(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, schedule[0].ObligationsMetOn, "reopened period must lose its settled date")
}

func TestLedger_Chargeback_DrainsCreditBalanceFirst(t *testing.T) {
	// GIVEN: An overpaid account with a 300.00 credit balance
	// WHEN: A 400.00 chargeback arrives
	// THEN: The credit absorbs 300.00 and only 100.00 un-applies from the
	//       newest paid period, reopening obligations

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "FLEXIBLE", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(ctx, id, repayment("1500.00", date(2025, time.February, 16)))
	require.NoError(t, err)

	tx, err := e.ledger.Post(ctx, id, servicing.TransactionInput{
		Type:   servicing.TxChargeback,
		Date:   date(2025, time.February, 18),
		Amount: servicing.MustMoney("400.00"),
	})
	require.NoError(t, err)
	assertMoney(t, "300.00", tx.Allocation.Overpayment)
	assertMoney(t, "100.00", tx.Allocation.Principal)

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "0", balances.Overpaid)
	assertMoney(t, "100.00", balances.TotalOutstanding)

	// Reopened obligations pull the account back from Overpaid.
	account, err := e.store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, servicing.StatusActive, account.Status)
}

// =============================================================================
// WAIVER
// =============================================================================

func TestLedger_Waiver_ForgivesChargesNeverPrincipal(t *testing.T) {
	// GIVEN: A 12% p.a. loan carrying 10.00 + 5.02 interest across two periods
	// WHEN: A waiver larger than all charges is posted
	// THEN: Interest is fully waived, principal stays untouched

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0.12", 2, "1000.00", date(2025, time.January, 15))

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "15.02", balances.InterestOutstanding)

	tx, err := e.ledger.Post(ctx, id, servicing.TransactionInput{
		Type:   servicing.TxWaiver,
		Date:   date(2025, time.February, 16),
		Amount: servicing.MustMoney("500.00"),
	})
	require.NoError(t, err)
	assertMoney(t, "15.02", tx.Allocation.Interest)
	assertMoney(t, "0", tx.Allocation.Principal)

	balances, err = e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "0", balances.InterestOutstanding)
	assertMoney(t, "1000.00", balances.PrincipalOutstanding)
}

// =============================================================================
// LIFECYCLE POSTINGS
// =============================================================================

func TestLedger_ChargeOff_ThenWriteOff(t *testing.T) {
	// GIVEN: An active loan
	// WHEN: Charge-off and then write-off are posted
	// THEN: The status walks active -> charged_off -> closed_written_off,
	//       and the closed account refuses further postings

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(ctx, id, servicing.TransactionInput{
		Type:   servicing.TxChargeOff,
		Date:   date(2025, time.February, 16),
		Amount: servicing.MustMoney("1200.00"),
	})
	require.NoError(t, err)

	account, err := e.store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, servicing.StatusChargedOff, account.Status)

	_, err = e.ledger.Post(ctx, id, servicing.TransactionInput{
		Type:   servicing.TxWriteOff,
		Date:   date(2025, time.February, 17),
		Amount: servicing.MustMoney("1200.00"),
	})
	require.NoError(t, err)

	account, err = e.store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, servicing.StatusClosedWrittenOff, account.Status)

	_, err = e.ledger.Post(ctx, id, repayment("100.00", date(2025, time.February, 18)))
	assert.True(t, servicing.IsStateConflict(err), "closed account must refuse postings")
}

func TestLedger_ChargedOff_StillAcceptsRecoveries(t *testing.T) {
	// GIVEN: A charged-off loan
	// WHEN: A recovery repayment arrives
	// THEN: The posting is accepted; charge-off freezes status, not the ledger

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(ctx, id, servicing.TransactionInput{
		Type:   servicing.TxChargeOff,
		Date:   date(2025, time.February, 16),
		Amount: servicing.MustMoney("1200.00"),
	})
	require.NoError(t, err)

	_, err = e.ledger.Post(ctx, id, repayment("200.00", date(2025, time.February, 17)))
	require.NoError(t, err)

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "1000.00", balances.TotalOutstanding)
}

// =============================================================================
// RESCHEDULING
// =============================================================================

func TestLedger_ReAge_RegeneratesFutureTail(t *testing.T) {
	// GIVEN: 1200.00 over 3 months disbursed Jan 15, first installment settled
	// WHEN: The loan is re-aged on Mar 20
	// THEN: The settled period stays, the open principal spreads over a fresh
	//       tail anchored at the re-age date, and maturity moves with it

	e := newTestEngine(t, date(2025, time.March, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(ctx, id, repayment("400.00", date(2025, time.February, 10)))
	require.NoError(t, err)

	tx, err := e.ledger.Post(ctx, id, servicing.TransactionInput{
		Type:   servicing.TxReAge,
		Date:   date(2025, time.March, 20),
		Amount: servicing.MustMoney("800.00"),
	})
	require.NoError(t, err)
	assertMoney(t, "800.00", tx.Amount)

	schedule, err := e.store.Schedule(ctx, id)
	require.NoError(t, err)
	require.Len(t, schedule, 3)

	assert.True(t, schedule[0].IsSettled(), "settled period survives re-age")
	assert.True(t, schedule[0].DueDate.Equal(date(2025, time.February, 15)))

	assert.Equal(t, 2, schedule[1].Number)
	assert.True(t, schedule[1].DueDate.Equal(date(2025, time.April, 20)))
	assertMoney(t, "400.00", schedule[1].PrincipalDue)
	assert.Equal(t, 3, schedule[2].Number)
	assert.True(t, schedule[2].DueDate.Equal(date(2025, time.May, 20)))
	assertMoney(t, "400.00", schedule[2].PrincipalDue)

	account, err := e.store.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.ExpectedMaturityDate.Equal(date(2025, time.May, 20)))

	balances, err := e.ledger.Balances(ctx, id)
	require.NoError(t, err)
	assertMoney(t, "800.00", balances.TotalOutstanding)
}

func TestLedger_ReAmortize_RequiresOpenPeriods(t *testing.T) {
	// GIVEN: A loan with every installment paid off
	// WHEN: A re-amortize is posted
	// THEN: The posting is refused; there is nothing left to reschedule

	e := newTestEngine(t, date(2025, time.February, 20))
	ctx := context.Background()
	id := e.activeLoan(t, "STANDARD", "0", 3, "1200.00", date(2025, time.January, 15))

	_, err := e.ledger.Post(ctx, id, repayment("1200.00", date(2025, time.February, 16)))
	require.NoError(t, err)

	_, err = e.ledger.Post(ctx, id, servicing.TransactionInput{
		Type:   servicing.TxReAmortize,
		Date:   date(2025, time.February, 20),
		Amount: servicing.MustMoney("1.00"),
	})
	assert.True(t, servicing.IsStateConflict(err))
}
