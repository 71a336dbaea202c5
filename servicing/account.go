/*
account.go - Loan account identity and status machine

PURPOSE:
  LoanAccount is the aggregate root owned by the ledger/COB subsystem.
  Status moves only through the defined operations (approve, disburse,
  close events); anything else is a StateConflict. The struct itself is a
  plain value - copies cross the store boundary so no partial state is
  ever observable outside an account lock.

SEE ALSO:
  - ledger.go: Approve/Disburse/Post operate on accounts
  - cob.go: Day-advance sets LastClosedBusinessDate and maturity closure
*/
package servicing

import "github.com/shopspring/decimal"

// =============================================================================
// ACCOUNT STATUS
// =============================================================================

type AccountStatus string

const (
	StatusPendingApproval     AccountStatus = "pending_approval"
	StatusApproved            AccountStatus = "approved"
	StatusActive              AccountStatus = "active"
	StatusClosedObligationsMet AccountStatus = "closed_obligations_met"
	StatusClosedWrittenOff    AccountStatus = "closed_written_off"
	StatusOverpaid            AccountStatus = "overpaid"
	StatusChargedOff          AccountStatus = "charged_off"
)

// IsOpen reports whether the account still participates in COB processing.
func (s AccountStatus) IsOpen() bool {
	switch s {
	case StatusClosedObligationsMet, StatusClosedWrittenOff:
		return false
	}
	return true
}

// AcceptsPostings reports whether live transactions may post.
func (s AccountStatus) AcceptsPostings() bool {
	return s == StatusActive || s == StatusOverpaid || s == StatusChargedOff
}

// =============================================================================
// LOAN TERMS - Read-only parameters consumed from the product catalog
// =============================================================================

type LoanTerms struct {
	Principal   Money
	AnnualRate  decimal.Decimal // e.g. 0.12 for 12% p.a.
	Periods     int             // number of monthly installments
	DisbursedOn Date            // set at disbursement
}

// =============================================================================
// LOAN ACCOUNT
// =============================================================================

type LoanAccount struct {
	ID         AccountID
	ExternalID string
	Status     AccountStatus

	ProductCode string
	Terms       LoanTerms

	// LastClosedBusinessDate is the last day this account has been fully
	// processed by COB. Nil until the account is disbursed.
	LastClosedBusinessDate *Date

	ExpectedMaturityDate Date
	FraudFlag            bool
}

// transition validates and applies a status change. Every status mutation
// in the engine funnels through here.
func (a *LoanAccount) transition(to AccountStatus, operation string) error {
	if !validTransition(a.Status, to) {
		return &StateConflictError{AccountID: a.ID, Status: a.Status, Operation: operation}
	}
	a.Status = to
	return nil
}

func validTransition(from, to AccountStatus) bool {
	switch from {
	case StatusPendingApproval:
		return to == StatusApproved
	case StatusApproved:
		return to == StatusActive
	case StatusActive:
		return to == StatusOverpaid || to == StatusChargedOff ||
			to == StatusClosedObligationsMet || to == StatusClosedWrittenOff
	case StatusOverpaid:
		// A chargeback can reopen obligations; a credit-balance refund
		// settles the account.
		return to == StatusActive || to == StatusClosedObligationsMet
	case StatusChargedOff:
		return to == StatusClosedWrittenOff
	}
	return false
}
