package servicing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-servicing/servicing"
)

// =============================================================================
// FIXTURES - Hand-built schedules exercising Replay directly
// =============================================================================

func period(number int, due servicing.Date, principal, interest, fee string) servicing.RepaymentPeriod {
	return servicing.RepaymentPeriod{
		Number:       number,
		DueDate:      due,
		PrincipalDue: servicing.MustMoney(principal),
		InterestDue:  servicing.MustMoney(interest),
		FeeDue:       servicing.MustMoney(fee),
		PenaltyDue:   servicing.ZeroMoney(),
	}
}

func entry(id string, txType servicing.TransactionType, on servicing.Date, amount string) servicing.Transaction {
	return servicing.Transaction{
		ID:     servicing.TransactionID(id),
		Type:   txType,
		Date:   on,
		Amount: servicing.MustMoney(amount),
	}
}

// twoPeriodSchedule: each period owes 100 principal + 10 interest + 5 fee.
func twoPeriodSchedule() []servicing.RepaymentPeriod {
	return []servicing.RepaymentPeriod{
		period(1, date(2025, time.February, 1), "100.00", "10.00", "5.00"),
		period(2, date(2025, time.March, 1), "100.00", "10.00", "5.00"),
	}
}

// =============================================================================
// ALLOCATION ORDER
// =============================================================================

func TestReplay_OldestDueFirst_ComponentOrder(t *testing.T) {
	// GIVEN: Two periods owing principal, interest, fee, and an accrued penalty
	//        on the first
	// WHEN: A partial payment replays oldest-due-first
	// THEN: The first period drains penalty, fee, interest, principal in that
	//       order before the second period sees a cent

	schedule := twoPeriodSchedule()
	txs := []servicing.Transaction{
		entry("acc-1", servicing.TxAccrual, date(2025, time.February, 2), "2.00"),
		// 2 penalty + 5 fee + 10 interest + 100 principal = 117 settles period 1;
		// the remaining 3.00 starts on period 2's penalty-free charges.
		entry("pay-1", servicing.TxRepayment, date(2025, time.February, 10), "120.00"),
	}

	periods, allocations, summary := servicing.Replay(schedule, txs, servicing.AllocateOldestDueFirst)

	alloc := allocations["pay-1"]
	assertMoney(t, "2.00", alloc.Penalty)
	assertMoney(t, "8.00", alloc.Fee)      // 5.00 period 1 + 3.00 into period 2
	assertMoney(t, "10.00", alloc.Interest)
	assertMoney(t, "100.00", alloc.Principal)
	assertMoney(t, "0", alloc.Overpayment)

	require.NotNil(t, periods[0].ObligationsMetOn)
	assert.True(t, periods[0].ObligationsMetOn.Equal(date(2025, time.February, 10)))
	assert.Nil(t, periods[1].ObligationsMetOn)

	assertMoney(t, "112.00", summary.TotalOutstanding) // 100 + 10 + 2 left on period 2
	assertMoney(t, "120.00", summary.TotalPaid)
}

func TestReplay_PrincipalFirst_DrainsPrincipalAcrossPeriods(t *testing.T) {
	// GIVEN: Two periods owing 100 principal each plus charges
	// WHEN: 210.00 replays principal-first
	// THEN: Both principal columns drain before any charge component

	schedule := twoPeriodSchedule()
	txs := []servicing.Transaction{
		entry("pay-1", servicing.TxRepayment, date(2025, time.February, 10), "210.00"),
	}

	_, allocations, summary := servicing.Replay(schedule, txs, servicing.AllocatePrincipalFirst)

	alloc := allocations["pay-1"]
	assertMoney(t, "200.00", alloc.Principal)
	assertMoney(t, "5.00", alloc.Fee) // period 1 charges start after all principal
	assertMoney(t, "5.00", alloc.Interest)
	assertMoney(t, "0", summary.PrincipalOutstanding)
	assertMoney(t, "20.00", summary.TotalOutstanding)
}

func TestReplay_Overpayment_RemainderBecomesCredit(t *testing.T) {
	// GIVEN: 230.00 total owed across two periods
	// WHEN: 250.00 replays
	// THEN: Everything settles and 20.00 lands in the credit balance

	schedule := twoPeriodSchedule()
	txs := []servicing.Transaction{
		entry("pay-1", servicing.TxRepayment, date(2025, time.March, 5), "250.00"),
	}

	periods, allocations, summary := servicing.Replay(schedule, txs, servicing.AllocateOldestDueFirst)

	assertMoney(t, "20.00", allocations["pay-1"].Overpayment)
	assertMoney(t, "20.00", summary.Overpaid)
	assertMoney(t, "0", summary.TotalOutstanding)
	for _, p := range periods {
		assert.NotNil(t, p.ObligationsMetOn, "period %d should be settled", p.Number)
	}
}

// =============================================================================
// REVERSAL SEMANTICS
// =============================================================================

func TestReplay_SkipsReversedOriginalAndReversalEntry(t *testing.T) {
	// GIVEN: A repayment that was manually reversed, with its paired entry
	// WHEN: The history replays
	// THEN: Neither side has any balance effect; history reads as if the
	//       payment never happened

	schedule := twoPeriodSchedule()
	reversed := entry("pay-1", servicing.TxRepayment, date(2025, time.February, 10), "115.00")
	reversed.ManuallyReversed = true
	reversing := entry("rev-1", servicing.TxRepayment, date(2025, time.February, 12), "115.00")
	reversing.ReversalOf = "pay-1"

	_, allocations, summary := servicing.Replay(schedule,
		[]servicing.Transaction{reversed, reversing}, servicing.AllocateOldestDueFirst)

	assert.Empty(t, allocations)
	assertMoney(t, "230.00", summary.TotalOutstanding)
	assertMoney(t, "0", summary.TotalPaid)
}

// =============================================================================
// ACCRUAL PLACEMENT
// =============================================================================

func TestReplay_Accrual_LandsOnOldestOverduePeriod(t *testing.T) {
	// GIVEN: Period 1 overdue at the accrual date, period 2 not yet due
	// WHEN: A penalty accrual replays
	// THEN: The penalty attaches to period 1 only

	schedule := twoPeriodSchedule()
	txs := []servicing.Transaction{
		entry("acc-1", servicing.TxAccrual, date(2025, time.February, 5), "1.50"),
	}

	periods, allocations, summary := servicing.Replay(schedule, txs, servicing.AllocateOldestDueFirst)

	assertMoney(t, "1.50", periods[0].PenaltyDue)
	assertMoney(t, "0", periods[1].PenaltyDue)
	assertMoney(t, "1.50", allocations["acc-1"].Penalty)
	assertMoney(t, "1.50", summary.PenaltyOutstanding)
}

func TestReplay_Accrual_NothingOverdue_FallsToLastPeriod(t *testing.T) {
	// GIVEN: No period overdue at the accrual date
	// WHEN: An accrual replays anyway
	// THEN: It attaches to the final period rather than vanishing

	schedule := twoPeriodSchedule()
	txs := []servicing.Transaction{
		entry("acc-1", servicing.TxAccrual, date(2025, time.January, 20), "1.00"),
	}

	periods, _, _ := servicing.Replay(schedule, txs, servicing.AllocateOldestDueFirst)
	assertMoney(t, "0", periods[0].PenaltyDue)
	assertMoney(t, "1.00", periods[1].PenaltyDue)
}

// =============================================================================
// CHARGEBACK UNAPPLY
// =============================================================================

func TestReplay_Chargeback_UnappliesNewestFirst(t *testing.T) {
	// GIVEN: Both periods fully paid
	// WHEN: 50.00 is charged back
	// THEN: The newest period's principal gives back first

	schedule := twoPeriodSchedule()
	txs := []servicing.Transaction{
		entry("pay-1", servicing.TxRepayment, date(2025, time.March, 5), "230.00"),
		entry("cb-1", servicing.TxChargeback, date(2025, time.March, 10), "50.00"),
	}

	periods, allocations, summary := servicing.Replay(schedule, txs, servicing.AllocateOldestDueFirst)

	assertMoney(t, "50.00", allocations["cb-1"].Principal)
	assertMoney(t, "50.00", periods[1].PrincipalPaid)
	assertMoney(t, "100.00", periods[0].PrincipalPaid, "older period untouched")
	assert.Nil(t, periods[1].ObligationsMetOn, "unapplied period reopens")
	assertMoney(t, "50.00", summary.TotalOutstanding)
	assertMoney(t, "180.00", summary.TotalPaid)
}
