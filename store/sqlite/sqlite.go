/*
Package sqlite provides a SQLite-backed implementation of servicing.Store.

PURPOSE:
  Production persistence for accounts, the transaction ledger, repayment
  schedules, delinquency tag history and pause periods. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The transactions table is append-only:
  - No UPDATE of amounts, dates or types, ever
  - The single permitted mutations are flipping manually_reversed and
    storing the replay-derived allocation portions
  - Corrections are expressed as paired reversing entries

KEY TABLES:
  accounts:      Loan account state, terms, last closed business date
  transactions:  Immutable ledger (sequence = rowid, breaks date ties)
  schedule:      Repayment periods, replaced wholesale on recompute
  delinquency_tags: Append-only range history (lifted_on nil = current)
  pause_periods: Delinquency aging freeze windows

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/servicing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  ledger := servicing.NewLedger(st, clock, catalog, publisher)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - servicing/store.go: Interface definition
  - servicing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/loan-servicing/servicing"
)

// Store implements servicing.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		product_code TEXT NOT NULL,
		principal TEXT NOT NULL,
		annual_rate TEXT NOT NULL,
		periods INTEGER NOT NULL,
		disbursed_on TEXT NOT NULL DEFAULT '',
		last_closed_business_date TEXT,
		expected_maturity_date TEXT NOT NULL DEFAULT '',
		fraud_flag BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Transactions (append-only ledger). seq is the global sequence used
	-- to break same-day ordering ties deterministically.
	CREATE TABLE IF NOT EXISTS transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		account_id INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		tx_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		alloc_principal TEXT NOT NULL DEFAULT '0',
		alloc_interest TEXT NOT NULL DEFAULT '0',
		alloc_fee TEXT NOT NULL DEFAULT '0',
		alloc_penalty TEXT NOT NULL DEFAULT '0',
		alloc_overpayment TEXT NOT NULL DEFAULT '0',
		manually_reversed BOOLEAN NOT NULL DEFAULT FALSE,
		reversal_of TEXT NOT NULL DEFAULT '',
		reversal_external_id TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (account_id) REFERENCES accounts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_date
		ON transactions(account_id, tx_date, seq);

	-- CRITICAL: Enforce idempotent posting. A retried idempotency key must
	-- resolve to the original transaction, never create a second one.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_idempotency
		ON transactions(account_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL AND idempotency_key != '';

	CREATE INDEX IF NOT EXISTS idx_transactions_reversal_of
		ON transactions(reversal_of) WHERE reversal_of != '';

	-- Repayment schedule, replaced wholesale on every recompute
	CREATE TABLE IF NOT EXISTS schedule (
		account_id INTEGER NOT NULL,
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		principal_due TEXT NOT NULL,
		interest_due TEXT NOT NULL,
		fee_due TEXT NOT NULL,
		penalty_due TEXT NOT NULL,
		principal_paid TEXT NOT NULL,
		interest_paid TEXT NOT NULL,
		fee_paid TEXT NOT NULL,
		penalty_paid TEXT NOT NULL,
		principal_waived TEXT NOT NULL,
		interest_waived TEXT NOT NULL,
		fee_waived TEXT NOT NULL,
		penalty_waived TEXT NOT NULL,
		obligations_met_on TEXT,
		PRIMARY KEY (account_id, number)
	);

	-- Delinquency range history (append-only; lifted_on NULL = current)
	CREATE TABLE IF NOT EXISTS delinquency_tags (
		rowid_seq INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		range_name TEXT NOT NULL,
		added_on TEXT NOT NULL,
		lifted_on TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tags_account
		ON delinquency_tags(account_id, rowid_seq);

	-- Pause periods (delinquency aging freeze windows)
	CREATE TABLE IF NOT EXISTS pause_periods (
		id TEXT PRIMARY KEY,
		account_id INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_pauses_account
		ON pause_periods(account_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, account servicing.LoanAccount) (servicing.LoanAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accounts
		(external_id, status, product_code, principal, annual_rate, periods,
		 disbursed_on, last_closed_business_date, expected_maturity_date, fraud_flag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		account.ExternalID,
		string(account.Status),
		account.ProductCode,
		account.Terms.Principal.Value.String(),
		account.Terms.AnnualRate.String(),
		account.Terms.Periods,
		dateString(account.Terms.DisbursedOn),
		nullDate(account.LastClosedBusinessDate),
		dateString(account.ExpectedMaturityDate),
		account.FraudFlag,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return servicing.LoanAccount{}, fmt.Errorf("failed to create account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return servicing.LoanAccount{}, err
	}
	account.ID = servicing.AccountID(id)
	return account, nil
}

func (s *Store) GetAccount(ctx context.Context, id servicing.AccountID) (servicing.LoanAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getAccount(ctx, id)
}

func (s *Store) getAccount(ctx context.Context, id servicing.AccountID) (servicing.LoanAccount, error) {
	query := `
		SELECT id, external_id, status, product_code, principal, annual_rate, periods,
		       disbursed_on, last_closed_business_date, expected_maturity_date, fraud_flag
		FROM accounts WHERE id = ?
	`

	var (
		a          servicing.LoanAccount
		status     string
		principal  string
		annualRate string
		disbursed  string
		lastClosed sql.NullString
		maturity   string
	)

	err := s.db.QueryRowContext(ctx, query, int64(id)).Scan(
		&a.ID, &a.ExternalID, &status, &a.ProductCode,
		&principal, &annualRate, &a.Terms.Periods,
		&disbursed, &lastClosed, &maturity, &a.FraudFlag,
	)
	if err == sql.ErrNoRows {
		return servicing.LoanAccount{}, servicing.ErrAccountNotFound
	}
	if err != nil {
		return servicing.LoanAccount{}, fmt.Errorf("failed to load account: %w", err)
	}

	a.Status = servicing.AccountStatus(status)
	a.Terms.Principal = parseMoney(principal)
	a.Terms.AnnualRate, _ = decimal.NewFromString(annualRate)
	a.Terms.DisbursedOn = parseDate(disbursed)
	a.ExpectedMaturityDate = parseDate(maturity)
	if lastClosed.Valid && lastClosed.String != "" {
		d := parseDate(lastClosed.String)
		a.LastClosedBusinessDate = &d
	}
	return a, nil
}

func (s *Store) SaveAccount(ctx context.Context, account servicing.LoanAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE accounts SET
			external_id = ?, status = ?, product_code = ?,
			principal = ?, annual_rate = ?, periods = ?, disbursed_on = ?,
			last_closed_business_date = ?, expected_maturity_date = ?, fraud_flag = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		account.ExternalID,
		string(account.Status),
		account.ProductCode,
		account.Terms.Principal.Value.String(),
		account.Terms.AnnualRate.String(),
		account.Terms.Periods,
		dateString(account.Terms.DisbursedOn),
		nullDate(account.LastClosedBusinessDate),
		dateString(account.ExpectedMaturityDate),
		account.FraudFlag,
		int64(account.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return servicing.ErrAccountNotFound
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]servicing.LoanAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []servicing.AccountID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, servicing.AccountID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	accounts := make([]servicing.LoanAccount, 0, len(ids))
	for _, id := range ids {
		a, err := s.getAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx servicing.Transaction) (servicing.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO transactions
		(id, account_id, tx_type, tx_date, amount,
		 alloc_principal, alloc_interest, alloc_fee, alloc_penalty, alloc_overpayment,
		 manually_reversed, reversal_of, reversal_external_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, query,
		string(tx.ID),
		int64(tx.AccountID),
		string(tx.Type),
		dateString(tx.Date),
		tx.Amount.Value.String(),
		tx.Allocation.Principal.Value.String(),
		tx.Allocation.Interest.Value.String(),
		tx.Allocation.Fee.Value.String(),
		tx.Allocation.Penalty.Value.String(),
		tx.Allocation.Overpayment.Value.String(),
		tx.ManuallyReversed,
		string(tx.ReversalOf),
		tx.ReversalExternalID,
		nullString(tx.IdempotencyKey),
		tx.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			// The caller resolves retried keys via FindByIdempotencyKey
			// before appending; hitting the index here is a race between
			// two identical retries.
			return servicing.Transaction{}, fmt.Errorf("duplicate transaction: %w", err)
		}
		return servicing.Transaction{}, fmt.Errorf("failed to append transaction: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return servicing.Transaction{}, err
	}
	tx.Sequence = seq
	return tx, nil
}

func (s *Store) Transactions(ctx context.Context, id servicing.AccountID) ([]servicing.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := txSelect + `
		WHERE account_id = ?
		ORDER BY tx_date ASC, seq ASC
	`
	return s.queryTransactions(ctx, query, int64(id))
}

func (s *Store) GetTransaction(ctx context.Context, id servicing.AccountID, txID servicing.TransactionID) (servicing.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := txSelect + ` WHERE account_id = ? AND id = ?`
	txs, err := s.queryTransactions(ctx, query, int64(id), string(txID))
	if err != nil {
		return servicing.Transaction{}, err
	}
	if len(txs) == 0 {
		return servicing.Transaction{}, servicing.ErrTransactionNotFound
	}
	return txs[0], nil
}

func (s *Store) FindByIdempotencyKey(ctx context.Context, id servicing.AccountID, key string) (servicing.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := txSelect + ` WHERE account_id = ? AND idempotency_key = ?`
	txs, err := s.queryTransactions(ctx, query, int64(id), key)
	if err != nil {
		return servicing.Transaction{}, false, err
	}
	if len(txs) == 0 {
		return servicing.Transaction{}, false, nil
	}
	return txs[0], true, nil
}

func (s *Store) MarkManuallyReversed(ctx context.Context, id servicing.AccountID, txID servicing.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET manually_reversed = TRUE WHERE account_id = ? AND id = ?",
		int64(id), string(txID),
	)
	if err != nil {
		return fmt.Errorf("failed to mark transaction reversed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return servicing.ErrTransactionNotFound
	}
	return nil
}

func (s *Store) SetAllocation(ctx context.Context, id servicing.AccountID, txID servicing.TransactionID, alloc servicing.PaymentAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET
			alloc_principal = ?, alloc_interest = ?, alloc_fee = ?,
			alloc_penalty = ?, alloc_overpayment = ?
		WHERE account_id = ? AND id = ?`,
		alloc.Principal.Value.String(),
		alloc.Interest.Value.String(),
		alloc.Fee.Value.String(),
		alloc.Penalty.Value.String(),
		alloc.Overpayment.Value.String(),
		int64(id), string(txID),
	)
	if err != nil {
		return fmt.Errorf("failed to set allocation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return servicing.ErrTransactionNotFound
	}
	return nil
}

const txSelect = `
	SELECT id, account_id, tx_type, tx_date, amount,
	       alloc_principal, alloc_interest, alloc_fee, alloc_penalty, alloc_overpayment,
	       manually_reversed, reversal_of, reversal_external_id, idempotency_key, created_at, seq
	FROM transactions
`

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]servicing.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []servicing.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (servicing.Transaction, error) {
	var (
		tx             servicing.Transaction
		txID           string
		accountID      int64
		txType         string
		txDate         string
		amount         string
		allocPrincipal string
		allocInterest  string
		allocFee       string
		allocPenalty   string
		allocOverpay   string
		reversalOf     string
		idempotencyKey sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&txID, &accountID, &txType, &txDate, &amount,
		&allocPrincipal, &allocInterest, &allocFee, &allocPenalty, &allocOverpay,
		&tx.ManuallyReversed, &reversalOf, &tx.ReversalExternalID,
		&idempotencyKey, &createdAt, &tx.Sequence,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.ID = servicing.TransactionID(txID)
	tx.AccountID = servicing.AccountID(accountID)
	tx.Type = servicing.TransactionType(txType)
	tx.Date = parseDate(txDate)
	tx.Amount = parseMoney(amount)
	tx.Allocation = servicing.PaymentAllocation{
		Principal:   parseMoney(allocPrincipal),
		Interest:    parseMoney(allocInterest),
		Fee:         parseMoney(allocFee),
		Penalty:     parseMoney(allocPenalty),
		Overpayment: parseMoney(allocOverpay),
	}
	tx.ReversalOf = servicing.TransactionID(reversalOf)
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return tx, nil
}

// =============================================================================
// SCHEDULE
// =============================================================================

func (s *Store) ReplaceSchedule(ctx context.Context, id servicing.AccountID, periods []servicing.RepaymentPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM schedule WHERE account_id = ?", int64(id)); err != nil {
		return err
	}

	query := `
		INSERT INTO schedule
		(account_id, number, due_date,
		 principal_due, interest_due, fee_due, penalty_due,
		 principal_paid, interest_paid, fee_paid, penalty_paid,
		 principal_waived, interest_waived, fee_waived, penalty_waived,
		 obligations_met_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, p := range periods {
		_, err := sqlTx.ExecContext(ctx, query,
			int64(id), p.Number, dateString(p.DueDate),
			p.PrincipalDue.Value.String(), p.InterestDue.Value.String(),
			p.FeeDue.Value.String(), p.PenaltyDue.Value.String(),
			p.PrincipalPaid.Value.String(), p.InterestPaid.Value.String(),
			p.FeePaid.Value.String(), p.PenaltyPaid.Value.String(),
			p.PrincipalWaived.Value.String(), p.InterestWaived.Value.String(),
			p.FeeWaived.Value.String(), p.PenaltyWaived.Value.String(),
			nullDate(p.ObligationsMetOn),
		)
		if err != nil {
			return fmt.Errorf("failed to write period %d: %w", p.Number, err)
		}
	}

	return sqlTx.Commit()
}

func (s *Store) Schedule(ctx context.Context, id servicing.AccountID) ([]servicing.RepaymentPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT number, due_date,
		       principal_due, interest_due, fee_due, penalty_due,
		       principal_paid, interest_paid, fee_paid, penalty_paid,
		       principal_waived, interest_waived, fee_waived, penalty_waived,
		       obligations_met_on
		FROM schedule WHERE account_id = ? ORDER BY number ASC
	`

	rows, err := s.db.QueryContext(ctx, query, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []servicing.RepaymentPeriod
	for rows.Next() {
		var (
			p        servicing.RepaymentPeriod
			dueDate  string
			money    [12]string
			metOn    sql.NullString
		)
		if err := rows.Scan(
			&p.Number, &dueDate,
			&money[0], &money[1], &money[2], &money[3],
			&money[4], &money[5], &money[6], &money[7],
			&money[8], &money[9], &money[10], &money[11],
			&metOn,
		); err != nil {
			return nil, err
		}

		p.DueDate = parseDate(dueDate)
		p.PrincipalDue, p.InterestDue, p.FeeDue, p.PenaltyDue = parseMoney(money[0]), parseMoney(money[1]), parseMoney(money[2]), parseMoney(money[3])
		p.PrincipalPaid, p.InterestPaid, p.FeePaid, p.PenaltyPaid = parseMoney(money[4]), parseMoney(money[5]), parseMoney(money[6]), parseMoney(money[7])
		p.PrincipalWaived, p.InterestWaived, p.FeeWaived, p.PenaltyWaived = parseMoney(money[8]), parseMoney(money[9]), parseMoney(money[10]), parseMoney(money[11])
		if metOn.Valid && metOn.String != "" {
			d := parseDate(metOn.String)
			p.ObligationsMetOn = &d
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// =============================================================================
// DELINQUENCY TAG HISTORY
// =============================================================================

func (s *Store) TagHistory(ctx context.Context, id servicing.AccountID) ([]servicing.DelinquencyTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT range_name, added_on, lifted_on FROM delinquency_tags WHERE account_id = ? ORDER BY rowid_seq ASC",
		int64(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []servicing.DelinquencyTag
	for rows.Next() {
		var (
			t        servicing.DelinquencyTag
			addedOn  string
			liftedOn sql.NullString
		)
		if err := rows.Scan(&t.Range, &addedOn, &liftedOn); err != nil {
			return nil, err
		}
		t.AddedOn = parseDate(addedOn)
		if liftedOn.Valid && liftedOn.String != "" {
			d := parseDate(liftedOn.String)
			t.LiftedOn = &d
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *Store) AppendTag(ctx context.Context, id servicing.AccountID, tag servicing.DelinquencyTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO delinquency_tags (account_id, range_name, added_on, lifted_on) VALUES (?, ?, ?, ?)",
		int64(id), tag.Range, dateString(tag.AddedOn), nullDate(tag.LiftedOn),
	)
	return err
}

func (s *Store) CloseCurrentTag(ctx context.Context, id servicing.AccountID, liftedOn servicing.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE delinquency_tags SET lifted_on = ? WHERE account_id = ? AND lifted_on IS NULL",
		dateString(liftedOn), int64(id),
	)
	return err
}

// =============================================================================
// PAUSE PERIODS
// =============================================================================

func (s *Store) PausePeriods(ctx context.Context, id servicing.AccountID) ([]servicing.PausePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, account_id, start_date, end_date, active FROM pause_periods WHERE account_id = ? ORDER BY start_date ASC",
		int64(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pauses []servicing.PausePeriod
	for rows.Next() {
		var (
			p         servicing.PausePeriod
			accountID int64
			start     string
			end       sql.NullString
		)
		if err := rows.Scan(&p.ID, &accountID, &start, &end, &p.Active); err != nil {
			return nil, err
		}
		p.AccountID = servicing.AccountID(accountID)
		p.Start = parseDate(start)
		if end.Valid && end.String != "" {
			d := parseDate(end.String)
			p.End = &d
		}
		pauses = append(pauses, p)
	}
	return pauses, rows.Err()
}

func (s *Store) SavePausePeriod(ctx context.Context, pause servicing.PausePeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO pause_periods (id, account_id, start_date, end_date, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			active = excluded.active
	`

	_, err := s.db.ExecContext(ctx, query,
		pause.ID, int64(pause.AccountID),
		dateString(pause.Start), nullDate(pause.End), pause.Active,
	)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "schedule", "delinquency_tags", "pause_periods", "accounts"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func dateString(d servicing.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func nullDate(d *servicing.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDate(s string) servicing.Date {
	if s == "" {
		return servicing.Date{}
	}
	d, _ := servicing.ParseDate(s)
	return d
}

func parseMoney(s string) servicing.Money {
	v, _ := decimal.NewFromString(s)
	return servicing.Money{Value: v}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
