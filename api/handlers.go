/*
handlers.go - HTTP API handlers for the loan servicing engine

PURPOSE:
  Exposes the servicing engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                    List all accounts
    POST   /api/accounts                    Open account (pending approval)
    GET    /api/accounts/{id}               Account details
    POST   /api/accounts/{id}/approve       Approve for disbursement
    GET    /api/accounts/{id}/balances      Derived balance summary
    GET    /api/accounts/{id}/schedule      Repayment schedule
    GET    /api/accounts/{id}/delinquency   Read-only classification

  Transactions:
    GET    /api/accounts/{id}/transactions  Full ledger history
    POST   /api/accounts/{id}/transactions  Post (Idempotency-Key header)
    POST   /api/accounts/{id}/transactions/{txId}/adjust  Reverse/correct

  Delinquency actions:
    POST   /api/accounts/{id}/delinquency-actions  pause | resume

  COB:
    POST   /api/cob/catch-up   Start async catch-up batch (202)
    GET    /api/cob/status     Batch running flag
    GET    /api/cob/oldest     Account furthest behind
    POST   /api/cob/inline     Synchronous catch-up for given accounts

  Locks:
    GET    /api/locks          Paginated lock listing
    POST   /api/locks          Place administrative lock
    DELETE /api/locks/{accountId}  Remove administrative lock

LOCKING:
  Mutating account operations run under the per-account lock with reason
  "loan_transaction". Contention is surfaced immediately as 423 - a live
  request never queues behind a COB catch-up.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, pause overlap
  - 404: Resource not found
  - 409: Conflict (state machine, adjustment refusal)
  - 423: Account locked (retryable)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/loan-servicing/servicing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// PostingMetrics counts ledger postings. Wired to the Prometheus collector
// in production, nil in most tests.
type PostingMetrics interface {
	RecordPosted(servicing.TransactionType)
	RecordRejected()
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       servicing.Store
	Ledger      *servicing.Ledger
	Classifier  *servicing.Classifier
	Coordinator *servicing.Coordinator
	Locks       *servicing.LockManager
	Clock       servicing.BusinessClock
	Metrics     PostingMetrics
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns all accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount opens a new account in pending approval.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	principal, err := parseAmount(req.Principal)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid principal", err)
		return
	}
	rate, err := decimal.NewFromString(req.AnnualRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid annual_rate", err)
		return
	}
	if req.Periods <= 0 {
		writeError(w, http.StatusBadRequest, "periods must be positive", nil)
		return
	}
	if req.ProductCode == "" {
		writeError(w, http.StatusBadRequest, "product_code is required", nil)
		return
	}

	account, err := h.Store.CreateAccount(r.Context(), servicing.LoanAccount{
		ExternalID:  req.ExternalID,
		Status:      servicing.StatusPendingApproval,
		ProductCode: req.ProductCode,
		Terms: servicing.LoanTerms{
			Principal:  principal,
			AnnualRate: rate,
			Periods:    req.Periods,
		},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountParam(w, r)
	if !ok {
		return
	}

	account, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// ApproveAccount moves a pending account to approved.
func (h *Handler) ApproveAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountParam(w, r)
	if !ok {
		return
	}

	var account servicing.LoanAccount
	err := h.Locks.WithLock(id, servicing.LockReasonTransaction, "approve", func() error {
		var err error
		account, err = h.Ledger.Approve(r.Context(), id)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// GetBalances returns the derived balance summary.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id, ok := accountParam(w, r)
	if !ok {
		return
	}

	summary, err := h.Ledger.Balances(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(summary))
}

// GetSchedule returns the repayment schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := accountParam(w, r)
	if !ok {
		return
	}

	if _, err := h.Store.GetAccount(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	periods, err := h.Store.Schedule(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDelinquency returns the read-only classification as of the current
// business date. Pure query: no tags are written, no events published.
func (h *Handler) GetDelinquency(w http.ResponseWriter, r *http.Request) {
	id, ok := accountParam(w, r)
	if !ok {
		return
	}

	classification, err := h.Classifier.Classify(r.Context(), id, h.Clock.BusinessDate())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClassificationDTO(classification))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns the account's full ledger history.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := accountParam(w, r)
	if !ok {
		return
	}

	if _, err := h.Store.GetAccount(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	txs, err := h.Store.Transactions(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PostTransaction posts a ledger transaction under the account lock.
// A retried idempotency key returns the original transaction.
func (h *Handler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := accountParam(w, r)
	if !ok {
		return
	}

	var req PostTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	txType, err := servicing.ParseTransactionType(req.Type)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	date, err := servicing.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	key := req.IdempotencyKey
	if header := r.Header.Get("Idempotency-Key"); header != "" {
		key = header
	}

	in := servicing.TransactionInput{
		Type:           txType,
		Date:           date,
		Amount:         amount,
		PaymentType:    req.PaymentType,
		IdempotencyKey: key,
		ExternalID:     req.ExternalID,
	}

	var tx servicing.Transaction
	err = h.Locks.WithLock(id, servicing.LockReasonTransaction, "post "+string(txType), func() error {
		var err error
		tx, err = h.Ledger.Post(r.Context(), id, in)
		return err
	})
	if err != nil {
		if h.Metrics != nil {
			h.Metrics.RecordRejected()
		}
		writeDomainError(w, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.RecordPosted(tx.Type)
	}

	writeJSON(w, http.StatusCreated, toTransactionDTO(tx))
}

// AdjustTransaction reverses a posted transaction and optionally posts a
// corrected replacement. The original stays in the history.
func (h *Handler) AdjustTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := accountParam(w, r)
	if !ok {
		return
	}
	txID := servicing.TransactionID(chi.URLParam(r, "txId"))

	var req AdjustTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var in servicing.AdjustmentInput
	if req.Amount != "" {
		amount, err := parseAmount(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		in.NewAmount = &amount
	}
	if req.Date != "" {
		date, err := servicing.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		in.NewDate = &date
	}

	var (
		reversed    servicing.Transaction
		replacement *servicing.Transaction
	)
	err := h.Locks.WithLock(id, servicing.LockReasonTransaction, "adjust "+string(txID), func() error {
		var err error
		reversed, replacement, err = h.Ledger.Adjust(r.Context(), id, txID, in)
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := AdjustmentResponse{Reversed: toTransactionDTO(reversed)}
	if replacement != nil {
		dto := toTransactionDTO(*replacement)
		resp.Replacement = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// DELINQUENCY ACTION HANDLERS
// =============================================================================

// DelinquencyAction pauses or resumes delinquency aging. Unknown actions
// are rejected so a typo cannot silently no-op.
func (h *Handler) DelinquencyAction(w http.ResponseWriter, r *http.Request) {
	id, ok := accountParam(w, r)
	if !ok {
		return
	}

	var req DelinquencyActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := servicing.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}

	var pause servicing.PausePeriod
	switch req.Action {
	case "pause":
		var end *servicing.Date
		if req.EndDate != "" {
			d, err := servicing.ParseDate(req.EndDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
				return
			}
			end = &d
		}
		err = h.Locks.WithLock(id, servicing.LockReasonTransaction, "pause delinquency", func() error {
			var err error
			pause, err = h.Classifier.Pause(r.Context(), id, start, end)
			return err
		})

	case "resume":
		if req.EndDate != "" {
			writeError(w, http.StatusBadRequest, "resume does not take an end_date", nil)
			return
		}
		err = h.Locks.WithLock(id, servicing.LockReasonTransaction, "resume delinquency", func() error {
			var err error
			pause, err = h.Classifier.Resume(r.Context(), id, start)
			return err
		})

	default:
		writeError(w, http.StatusBadRequest, "Unknown action (expected pause or resume)", nil)
		return
	}

	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPauseDTO(pause))
}

// =============================================================================
// COB HANDLERS
// =============================================================================

// StartCatchUp launches the async catch-up batch. A second call while a
// batch is running gets 409.
func (h *Handler) StartCatchUp(w http.ResponseWriter, r *http.Request) {
	// The batch outlives the HTTP request; do not tie it to r.Context().
	if err := h.Coordinator.RunCatchUp(context.Background()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CatchUpStatusDTO{Running: true})
}

// CatchUpStatus reports whether a batch is in flight.
func (h *Handler) CatchUpStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CatchUpStatusDTO{Running: h.Coordinator.IsRunning()})
}

// OldestProcessed identifies the open account with the oldest last closed
// business date.
func (h *Handler) OldestProcessed(w http.ResponseWriter, r *http.Request) {
	entry, found, err := h.Coordinator.OldestProcessed(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "No processed accounts", nil)
		return
	}
	writeJSON(w, http.StatusOK, OldestProcessedDTO{
		AccountID:        int64(entry.AccountID),
		COBBusinessDate:  entry.COBBusinessDate.String(),
		COBProcessedDate: entry.COBProcessedDate.String(),
	})
}

// InlineCatchUp runs catch-up synchronously for the listed accounts and
// returns per-account outcomes.
func (h *Handler) InlineCatchUp(w http.ResponseWriter, r *http.Request) {
	var req InlineCatchUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.AccountIDs) == 0 {
		writeError(w, http.StatusBadRequest, "account_ids is required", nil)
		return
	}

	ids := make([]servicing.AccountID, len(req.AccountIDs))
	for i, id := range req.AccountIDs {
		ids[i] = servicing.AccountID(id)
	}

	results := h.Coordinator.RunInline(r.Context(), ids)

	dtos := make([]InlineCatchUpResultDTO, 0, len(ids))
	for _, id := range ids {
		dto := InlineCatchUpResultDTO{AccountID: int64(id)}
		if err := results[id]; err != nil {
			dto.Error = err.Error()
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LOCK HANDLERS
// =============================================================================

// ListLocks returns currently held locks, paginated.
func (h *Handler) ListLocks(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	size := queryInt(r, "size", 50)

	locks, total := h.Locks.List(page-1, size)

	dtos := make([]LockDTO, len(locks))
	for i, l := range locks {
		dtos[i] = LockDTO{
			AccountID:  int64(l.AccountID),
			Reason:     string(l.Reason),
			Message:    l.Message,
			AcquiredAt: l.AcquiredAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, LockListResponse{
		Locks: dtos,
		Total: total,
		Page:  page,
		Size:  size,
	})
}

// PlaceLock places a sticky administrative lock.
func (h *Handler) PlaceLock(w http.ResponseWriter, r *http.Request) {
	var req PlaceLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AccountID <= 0 {
		writeError(w, http.StatusBadRequest, "account_id is required", nil)
		return
	}

	id := servicing.AccountID(req.AccountID)
	if _, err := h.Store.GetAccount(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Locks.Place(id, servicing.LockReasonAdministrative, req.Message); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveLock removes an administrative lock.
func (h *Handler) RemoveLock(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "accountId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account id", err)
		return
	}
	h.Locks.Remove(servicing.AccountID(id))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func accountParam(w http.ResponseWriter, r *http.Request) (servicing.AccountID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid account id", err)
		return 0, false
	}
	return servicing.AccountID(id), true
}

func parseAmount(s string) (servicing.Money, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return servicing.Money{}, err
	}
	return servicing.Money{Value: v}, nil
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case servicing.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case servicing.IsLockContention(err):
		writeError(w, http.StatusLocked, "Account busy, retry", err)
	case servicing.IsValidationError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case servicing.IsStateConflict(err),
		errors.Is(err, servicing.ErrAdjustmentNotAllowed),
		errors.Is(err, servicing.ErrCatchUpRunning):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
