/*
Package servicing provides the core loan-servicing engine.

PURPOSE:
  This package contains the domain types and algorithms for servicing loan
  accounts: an append-only transaction ledger with reversal semantics, a
  repayment schedule projection, a delinquency classifier with pause
  periods, and the close-of-business (COB) day-advance machinery that
  keeps every account current with the organization business date.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A decimal monetary amount (never float)
  - Date: A plain calendar date (no time component crosses the API)
  - Transaction: An immutable ledger entry recording a balance effect
  - PaymentAllocation: How an amount splits across principal/interest/fee/penalty

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Transaction kinds are a closed enum, not free-form strings
  4. Auditability: Every posting carries an idempotency key and full portions

SEE ALSO:
  - ledger.go: Posting and balance recomputation
  - adjustment.go: Reversal/replacement semantics
  - delinquency.go: Range classification
  - cob.go: Day-advance processing
*/
package servicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal monetary amount
// =============================================================================

// Money is a currency-scale decimal amount. All arithmetic stays in decimal
// space; rounding to 2 dp happens only at allocation boundaries.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money    { return Money{Value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int) Money { return Money{Value: decimal.NewFromInt(int64(value))} }
func ZeroMoney() Money                { return Money{Value: decimal.Zero} }

// MustMoney parses a decimal string, returning zero on malformed input.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney()
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money           { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money           { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money                  { return Money{Value: m.Value.Neg()} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s)} }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool    { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool       { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool          { return m.Value.Equal(o.Value) }
func (m Money) String() string              { return m.Value.StringFixed(2) }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// Round applies banker's rounding at currency scale (2 dp).
func (m Money) Round() Money { return Money{Value: m.Value.RoundBank(2)} }

// =============================================================================
// DATE - Plain calendar date (day granularity, UTC)
// =============================================================================

// Date is a calendar date with no time component. All engine operations
// exchange Dates; wall-clock time never enters servicing decisions.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current UTC calendar date. Used only at wiring time;
// engine code takes its date from BusinessClock.
func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Comparison
func (d Date) Before(o Date) bool        { return d.normalize().Before(o.normalize()) }
func (d Date) Equal(o Date) bool         { return d.normalize().Equal(o.normalize()) }
func (d Date) After(o Date) bool         { return d.normalize().After(o.normalize()) }
func (d Date) BeforeOrEqual(o Date) bool { return d.Before(o) || d.Equal(o) }
func (d Date) AfterOrEqual(o Date) bool  { return d.After(o) || d.Equal(o) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{Time: d.Time.AddDate(n, 0, 0)} }

func (d Date) IsZero() bool   { return d.Time.IsZero() }
func (d Date) String() string { return d.normalize().Format("2006-01-02") }

// DaysBetween returns the number of calendar days from 'from' to 'to'.
// Negative if 'to' precedes 'from'.
func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID int64
type TransactionID string

// =============================================================================
// TRANSACTION KINDS - Closed enum, construction-time validation
// =============================================================================

type TransactionType string

const (
	TxDisbursement        TransactionType = "disbursement"
	TxRepayment           TransactionType = "repayment"
	TxWaiver              TransactionType = "waiver"
	TxChargeOff           TransactionType = "charge_off"
	TxWriteOff            TransactionType = "write_off"
	TxChargeback          TransactionType = "chargeback"
	TxRefund              TransactionType = "refund"
	TxCreditBalanceRefund TransactionType = "credit_balance_refund"
	TxAccrual             TransactionType = "accrual"
	TxReAge               TransactionType = "re_age"
	TxReAmortize          TransactionType = "re_amortize"
)

var transactionTypes = map[TransactionType]bool{
	TxDisbursement:        true,
	TxRepayment:           true,
	TxWaiver:              true,
	TxChargeOff:           true,
	TxWriteOff:            true,
	TxChargeback:          true,
	TxRefund:              true,
	TxCreditBalanceRefund: true,
	TxAccrual:             true,
	TxReAge:               true,
	TxReAmortize:          true,
}

// ParseTransactionType rejects unknown kinds at construction time so an
// unsupported type is never discovered deep inside a posting path.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !transactionTypes[t] {
		return "", &ValidationFailure{Code: "unknown_transaction_type", Message: fmt.Sprintf("unsupported transaction type %q", s)}
	}
	return t, nil
}

// IsRepaymentClass reports whether the type settles open obligations
// (and is therefore subject to the overpayment cap). Credit-balance
// refunds pay out the overpayment instead; chargebacks un-apply a
// prior repayment.
func (t TransactionType) IsRepaymentClass() bool {
	return t == TxRepayment || t == TxRefund
}

// =============================================================================
// PAYMENT ALLOCATION - Portions of a transaction amount
// =============================================================================

type PaymentAllocation struct {
	Principal   Money
	Interest    Money
	Fee         Money
	Penalty     Money
	Overpayment Money
}

func (a PaymentAllocation) Total() Money {
	return a.Principal.Add(a.Interest).Add(a.Fee).Add(a.Penalty).Add(a.Overpayment)
}

func (a PaymentAllocation) Add(o PaymentAllocation) PaymentAllocation {
	return PaymentAllocation{
		Principal:   a.Principal.Add(o.Principal),
		Interest:    a.Interest.Add(o.Interest),
		Fee:         a.Fee.Add(o.Fee),
		Penalty:     a.Penalty.Add(o.Penalty),
		Overpayment: a.Overpayment.Add(o.Overpayment),
	}
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

// Transaction is immutable once created. A reversed transaction keeps its
// amount and portions; the reversal effect lives in a paired reversing
// entry, never in an in-place mutation. The only field that ever changes
// after creation is the ManuallyReversed flag.
type Transaction struct {
	ID         TransactionID
	AccountID  AccountID
	Type       TransactionType
	Date       Date
	Amount     Money
	Allocation PaymentAllocation

	// Reversal bookkeeping
	ManuallyReversed   bool
	ReversalOf         TransactionID // set on the paired reversing entry
	ReversalExternalID string

	// Idempotent retry handling
	IdempotencyKey string

	CreatedAt time.Time
	Sequence  int64 // store-assigned, breaks date ties deterministically
}

// IsReversalEntry reports whether this entry exists only to cancel another.
func (t Transaction) IsReversalEntry() bool { return t.ReversalOf != "" }

// =============================================================================
// BALANCE SUMMARY - Derived, always recomputed from history
// =============================================================================

type BalanceSummary struct {
	AccountID            AccountID
	PrincipalOutstanding Money
	InterestOutstanding  Money
	FeeOutstanding       Money
	PenaltyOutstanding   Money
	TotalOutstanding     Money
	TotalPaid            Money
	Overpaid             Money
}
