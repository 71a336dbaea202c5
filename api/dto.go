/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DATES AND AMOUNTS:
  Dates cross the wire as YYYY-MM-DD strings, amounts as decimal strings
  ("1000.00"). Parsing happens in handlers; DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Route definitions
*/
package api

import (
	"github.com/warp/loan-servicing/servicing"
)

// =============================================================================
// ACCOUNT TYPES
// =============================================================================

// CreateAccountRequest opens a new loan account in pending approval.
type CreateAccountRequest struct {
	ExternalID  string `json:"external_id,omitempty"`
	ProductCode string `json:"product_code"`
	Principal   string `json:"principal"`
	AnnualRate  string `json:"annual_rate"`
	Periods     int    `json:"periods"`
}

// AccountDTO represents a loan account in API responses.
type AccountDTO struct {
	ID                     int64  `json:"id"`
	ExternalID             string `json:"external_id,omitempty"`
	Status                 string `json:"status"`
	ProductCode            string `json:"product_code"`
	Principal              string `json:"principal"`
	AnnualRate             string `json:"annual_rate"`
	Periods                int    `json:"periods"`
	DisbursedOn            string `json:"disbursed_on,omitempty"`
	LastClosedBusinessDate string `json:"last_closed_business_date,omitempty"`
	ExpectedMaturityDate   string `json:"expected_maturity_date,omitempty"`
}

// BalanceSummaryDTO is the derived balance view recomputed from history.
type BalanceSummaryDTO struct {
	AccountID            int64  `json:"account_id"`
	PrincipalOutstanding string `json:"principal_outstanding"`
	InterestOutstanding  string `json:"interest_outstanding"`
	FeeOutstanding       string `json:"fee_outstanding"`
	PenaltyOutstanding   string `json:"penalty_outstanding"`
	TotalOutstanding     string `json:"total_outstanding"`
	TotalPaid            string `json:"total_paid"`
	Overpaid             string `json:"overpaid"`
}

// PeriodDTO represents one repayment period of the schedule.
type PeriodDTO struct {
	Number           int    `json:"number"`
	DueDate          string `json:"due_date"`
	PrincipalDue     string `json:"principal_due"`
	InterestDue      string `json:"interest_due"`
	FeeDue           string `json:"fee_due"`
	PenaltyDue       string `json:"penalty_due"`
	TotalPaid        string `json:"total_paid"`
	Outstanding      string `json:"outstanding"`
	ObligationsMetOn string `json:"obligations_met_on,omitempty"`
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

// PostTransactionRequest posts a new ledger transaction. The idempotency
// key may arrive in the body or the Idempotency-Key header; the header
// wins when both are present.
type PostTransactionRequest struct {
	Type           string `json:"type"`
	Date           string `json:"date"`
	Amount         string `json:"amount"`
	PaymentType    string `json:"payment_type,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	ExternalID     string `json:"external_id,omitempty"`
}

// AdjustTransactionRequest corrects a posted transaction. Omitting amount
// makes it a pure reversal; providing amount (and optionally date) also
// posts a replacement.
type AdjustTransactionRequest struct {
	Amount string `json:"amount,omitempty"`
	Date   string `json:"date,omitempty"`
}

// TransactionDTO represents a ledger entry in API responses.
type TransactionDTO struct {
	ID               string         `json:"id"`
	AccountID        int64          `json:"account_id"`
	Type             string         `json:"type"`
	Date             string         `json:"date"`
	Amount           string         `json:"amount"`
	Allocation       *AllocationDTO `json:"allocation,omitempty"`
	ManuallyReversed bool           `json:"manually_reversed,omitempty"`
	ReversalOf       string         `json:"reversal_of,omitempty"`
	IdempotencyKey   string         `json:"idempotency_key,omitempty"`
}

// AllocationDTO is the replay-derived split of a payment.
type AllocationDTO struct {
	Principal   string `json:"principal"`
	Interest    string `json:"interest"`
	Fee         string `json:"fee"`
	Penalty     string `json:"penalty"`
	Overpayment string `json:"overpayment"`
}

// AdjustmentResponse returns the reversed original (flagged, unchanged
// otherwise) and, when an amount was supplied, the replacement.
type AdjustmentResponse struct {
	Reversed    TransactionDTO  `json:"reversed"`
	Replacement *TransactionDTO `json:"replacement,omitempty"`
}

// =============================================================================
// DELINQUENCY TYPES
// =============================================================================

// DelinquencyActionRequest drives pause/resume of delinquency aging.
// Unknown actions are rejected with 400.
type DelinquencyActionRequest struct {
	Action    string `json:"action"` // "pause" or "resume"
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

// PausePeriodDTO represents an aging freeze window.
type PausePeriodDTO struct {
	ID        string `json:"id"`
	AccountID int64  `json:"account_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	Active    bool   `json:"active"`
}

// ClassificationDTO is the read-only delinquency view.
type ClassificationDTO struct {
	AccountID        int64          `json:"account_id"`
	AsOf             string         `json:"as_of"`
	LoanRange        string         `json:"loan_range"`
	PerInstallment   map[int]string `json:"per_installment,omitempty"`
	DelinquentAmount string         `json:"delinquent_amount"`
	DelinquentSince  string         `json:"delinquent_since,omitempty"`
	MaxDaysOverdue   int            `json:"max_days_overdue"`
}

// =============================================================================
// COB / LOCK TYPES
// =============================================================================

// CatchUpStatusDTO reports whether a catch-up batch is in flight.
type CatchUpStatusDTO struct {
	Running bool `json:"running"`
}

// OldestProcessedDTO identifies the account furthest behind.
type OldestProcessedDTO struct {
	AccountID        int64  `json:"account_id"`
	COBBusinessDate  string `json:"cob_business_date"`
	COBProcessedDate string `json:"cob_processed_date"`
}

// InlineCatchUpRequest runs catch-up synchronously for specific accounts.
type InlineCatchUpRequest struct {
	AccountIDs []int64 `json:"account_ids"`
}

// InlineCatchUpResultDTO is the per-account outcome of an inline run.
type InlineCatchUpResultDTO struct {
	AccountID int64  `json:"account_id"`
	Error     string `json:"error,omitempty"`
}

// PlaceLockRequest places a sticky administrative lock.
type PlaceLockRequest struct {
	AccountID int64  `json:"account_id"`
	Message   string `json:"message,omitempty"`
}

// LockDTO represents a held account lock.
type LockDTO struct {
	AccountID  int64  `json:"account_id"`
	Reason     string `json:"reason"`
	Message    string `json:"message,omitempty"`
	AcquiredAt string `json:"acquired_at"`
}

// LockListResponse is a paginated lock listing.
type LockListResponse struct {
	Locks []LockDTO `json:"locks"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toAccountDTO(a servicing.LoanAccount) AccountDTO {
	dto := AccountDTO{
		ID:          int64(a.ID),
		ExternalID:  a.ExternalID,
		Status:      string(a.Status),
		ProductCode: a.ProductCode,
		Principal:   a.Terms.Principal.String(),
		AnnualRate:  a.Terms.AnnualRate.String(),
		Periods:     a.Terms.Periods,
	}
	if !a.Terms.DisbursedOn.IsZero() {
		dto.DisbursedOn = a.Terms.DisbursedOn.String()
	}
	if a.LastClosedBusinessDate != nil {
		dto.LastClosedBusinessDate = a.LastClosedBusinessDate.String()
	}
	if !a.ExpectedMaturityDate.IsZero() {
		dto.ExpectedMaturityDate = a.ExpectedMaturityDate.String()
	}
	return dto
}

func toTransactionDTO(tx servicing.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:               string(tx.ID),
		AccountID:        int64(tx.AccountID),
		Type:             string(tx.Type),
		Date:             tx.Date.String(),
		Amount:           tx.Amount.String(),
		ManuallyReversed: tx.ManuallyReversed,
		ReversalOf:       string(tx.ReversalOf),
		IdempotencyKey:   tx.IdempotencyKey,
	}
	if !tx.Allocation.Total().IsZero() {
		dto.Allocation = &AllocationDTO{
			Principal:   tx.Allocation.Principal.String(),
			Interest:    tx.Allocation.Interest.String(),
			Fee:         tx.Allocation.Fee.String(),
			Penalty:     tx.Allocation.Penalty.String(),
			Overpayment: tx.Allocation.Overpayment.String(),
		}
	}
	return dto
}

func toBalanceDTO(b servicing.BalanceSummary) BalanceSummaryDTO {
	return BalanceSummaryDTO{
		AccountID:            int64(b.AccountID),
		PrincipalOutstanding: b.PrincipalOutstanding.String(),
		InterestOutstanding:  b.InterestOutstanding.String(),
		FeeOutstanding:       b.FeeOutstanding.String(),
		PenaltyOutstanding:   b.PenaltyOutstanding.String(),
		TotalOutstanding:     b.TotalOutstanding.String(),
		TotalPaid:            b.TotalPaid.String(),
		Overpaid:             b.Overpaid.String(),
	}
}

func toPeriodDTO(p servicing.RepaymentPeriod) PeriodDTO {
	dto := PeriodDTO{
		Number:       p.Number,
		DueDate:      p.DueDate.String(),
		PrincipalDue: p.PrincipalDue.String(),
		InterestDue:  p.InterestDue.String(),
		FeeDue:       p.FeeDue.String(),
		PenaltyDue:   p.PenaltyDue.String(),
		TotalPaid:    p.TotalPaid().String(),
		Outstanding:  p.Outstanding().String(),
	}
	if p.ObligationsMetOn != nil {
		dto.ObligationsMetOn = p.ObligationsMetOn.String()
	}
	return dto
}

func toPauseDTO(p servicing.PausePeriod) PausePeriodDTO {
	dto := PausePeriodDTO{
		ID:        p.ID,
		AccountID: int64(p.AccountID),
		StartDate: p.Start.String(),
		Active:    p.Active,
	}
	if p.End != nil {
		dto.EndDate = p.End.String()
	}
	return dto
}

func toClassificationDTO(c servicing.Classification) ClassificationDTO {
	dto := ClassificationDTO{
		AccountID:        int64(c.AccountID),
		AsOf:             c.AsOf.String(),
		LoanRange:        c.LoanRange,
		PerInstallment:   c.PerInstallment,
		DelinquentAmount: c.DelinquentAmount.String(),
		MaxDaysOverdue:   c.MaxDaysOverdue,
	}
	if c.DelinquentSince != nil {
		dto.DelinquentSince = c.DelinquentSince.String()
	}
	return dto
}
