// Package storage implements the SQLite-backed ledger store. Every logical
// ledger operation runs inside one database transaction; cached balances
// are only ever moved with "balance = balance + ?" so the adjustment and
// the row mutation commit or roll back together.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finledger/internal/core"
	"finledger/internal/ledger"

	_ "modernc.org/sqlite"
)

// Bounded retry for SQLITE_BUSY before surfacing core.ErrConflict.
const (
	maxTxAttempts = 3
	retryBackoff  = 25 * time.Millisecond
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// _txlock=immediate makes every transaction take the write lock at
	// BEGIN, so lock upgrades cannot fail mid-transaction.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunInTx executes fn in one database transaction, retrying serialization
// failures a bounded number of times before reporting core.ErrConflict.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
		slog.WarnContext(ctx, "Retrying ledger transaction after contention",
			"attempt", attempt, "error", err)
		select {
		case <-time.After(time.Duration(attempt) * retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", core.ErrConflict, lastErr)
}

func (s *SQLiteStore) runOnce(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

const accountColumns = "id, owner_id, name, COALESCE(external_id, ''), balance"

func (s *SQLiteStore) GetAccount(ctx context.Context, ownerID, accountID string) (core.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ? AND owner_id = ?", accountID, ownerID)
	return scanAccount(row)
}

func (s *SQLiteStore) ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE owner_id = ? ORDER BY name", ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const categoryColumns = "id, owner_id, name, COALESCE(external_id, '')"

func (s *SQLiteStore) GetCategory(ctx context.Context, ownerID, categoryID string) (core.Category, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE id = ? AND owner_id = ?", categoryID, ownerID)
	return scanCategory(row)
}

func (s *SQLiteStore) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE owner_id = ? ORDER BY name", ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const transactionColumns = "t.id, t.account_id, COALESCE(t.category_id, ''), t.amount, t.payee, COALESCE(t.notes, ''), t.date"

func (s *SQLiteStore) GetTransaction(ctx context.Context, ownerID, transactionID string) (core.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions t
		 JOIN accounts a ON a.id = t.account_id
		 WHERE t.id = ? AND a.owner_id = ?`, transactionID, ownerID)
	return scanTransaction(row)
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, ownerID string, f ledger.TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		 FROM transactions t
		 JOIN accounts a ON a.id = t.account_id
		 WHERE a.owner_id = ?`
	args := []any{ownerID}
	if f.AccountID != "" {
		query += " AND t.account_id = ?"
		args = append(args, f.AccountID)
	}
	if !f.From.IsZero() {
		query += " AND t.date >= ?"
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		query += " AND t.date <= ?"
		args = append(args, f.To)
	}
	query += " ORDER BY t.date DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// sqlTx implements ledger.Tx on top of one *sql.Tx.
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) AccountForOwner(ctx context.Context, ownerID, accountID string) (core.Account, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ? AND owner_id = ?", accountID, ownerID)
	return scanAccount(row)
}

func (t *sqlTx) CreateAccount(ctx context.Context, a core.Account) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO accounts (id, owner_id, name, external_id, balance) VALUES (?, ?, ?, ?, ?)",
		a.ID, a.OwnerID, a.Name, nullable(a.ExternalID), a.Balance)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (t *sqlTx) RenameAccount(ctx context.Context, ownerID, accountID, name string) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE accounts SET name = ? WHERE id = ? AND owner_id = ?", name, accountID, ownerID)
	if err != nil {
		return fmt.Errorf("rename account: %w", err)
	}
	return requireRow(res)
}

func (t *sqlTx) DeleteAccounts(ctx context.Context, ownerID string, accountIDs []string) ([]string, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	query := "DELETE FROM accounts WHERE owner_id = ? AND id IN (" + placeholders(len(accountIDs)) + ") RETURNING id"
	args := append([]any{ownerID}, toAny(accountIDs)...)
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete accounts: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (t *sqlTx) AdjustBalance(ctx context.Context, accountID string, delta int64) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE accounts SET balance = balance + ? WHERE id = ?", delta, accountID)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	return requireRow(res)
}

func (t *sqlTx) CategoryByName(ctx context.Context, ownerID, name string) (core.Category, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE owner_id = ? AND name = ?", ownerID, name)
	return scanCategory(row)
}

func (t *sqlTx) CategoryForOwner(ctx context.Context, ownerID, categoryID string) (core.Category, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE id = ? AND owner_id = ?", categoryID, ownerID)
	return scanCategory(row)
}

func (t *sqlTx) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO categories (id, owner_id, name, external_id) VALUES (?, ?, ?, ?)",
		c.ID, c.OwnerID, c.Name, nullable(c.ExternalID))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: category %q already exists", core.ErrConflict, c.Name)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (t *sqlTx) RenameCategory(ctx context.Context, ownerID, categoryID, name string) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE categories SET name = ? WHERE id = ? AND owner_id = ?", name, categoryID, ownerID)
	if err != nil {
		return fmt.Errorf("rename category: %w", err)
	}
	return requireRow(res)
}

func (t *sqlTx) DeleteCategories(ctx context.Context, ownerID string, categoryIDs []string) ([]string, error) {
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	query := "DELETE FROM categories WHERE owner_id = ? AND id IN (" + placeholders(len(categoryIDs)) + ") RETURNING id"
	args := append([]any{ownerID}, toAny(categoryIDs)...)
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete categories: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (t *sqlTx) TransactionForOwner(ctx context.Context, ownerID, transactionID string) (core.Transaction, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions t
		 JOIN accounts a ON a.id = t.account_id
		 WHERE t.id = ? AND a.owner_id = ?`, transactionID, ownerID)
	return scanTransaction(row)
}

func (t *sqlTx) TransactionsForOwner(ctx context.Context, ownerID string, transactionIDs []string) ([]core.Transaction, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + transactionColumns + `
		 FROM transactions t
		 JOIN accounts a ON a.id = t.account_id
		 WHERE a.owner_id = ? AND t.id IN (` + placeholders(len(transactionIDs)) + `)`
	args := append([]any{ownerID}, toAny(transactionIDs)...)
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select owned transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertTransactions(ctx context.Context, ts []core.Transaction) error {
	stmt, err := t.tx.PrepareContext(ctx,
		"INSERT INTO transactions (id, account_id, category_id, amount, payee, notes, date) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, tr := range ts {
		if _, err := stmt.ExecContext(ctx,
			tr.ID, tr.AccountID, nullable(tr.CategoryID), tr.Amount, tr.Payee, nullable(tr.Notes), tr.Date); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	return nil
}

func (t *sqlTx) UpdateTransaction(ctx context.Context, tr core.Transaction) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE transactions SET account_id = ?, category_id = ?, amount = ?, payee = ?, notes = ?, date = ? WHERE id = ?",
		tr.AccountID, nullable(tr.CategoryID), tr.Amount, tr.Payee, nullable(tr.Notes), tr.Date, tr.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res)
}

func (t *sqlTx) DeleteTransactions(ctx context.Context, transactionIDs []string) error {
	if len(transactionIDs) == 0 {
		return nil
	}
	query := "DELETE FROM transactions WHERE id IN (" + placeholders(len(transactionIDs)) + ")"
	if _, err := t.tx.ExecContext(ctx, query, toAny(transactionIDs)...); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (core.Account, error) {
	var a core.Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.ExternalID, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}

func scanCategory(row rowScanner) (core.Category, error) {
	var c core.Category
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.ExternalID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	return c, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tr core.Transaction
	err := row.Scan(&tr.ID, &tr.AccountID, &tr.CategoryID, &tr.Amount, &tr.Payee, &tr.Notes, &tr.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	return tr, nil
}

// requireRow converts a zero-row UPDATE into NotFound: the target either
// does not exist or belongs to someone else, and the two are reported
// identically.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

var _ ledger.Store = (*SQLiteStore)(nil)
