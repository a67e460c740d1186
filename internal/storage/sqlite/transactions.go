package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

// sqlTx implements storage.Tx on a database transaction. The context
// captured at WithinTx applies to every statement in the unit.
type sqlTx struct {
	ctx context.Context
	tx  *sql.Tx
}

const transactionColumns = `id, owner_id, account_id, transfer_account_id, category_id,
	amount_cents, kind, description, merchant, date, pending, notes, tags, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var (
		t    core.Transaction
		tags string
	)
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.AccountID, &t.TransferAccountID, &t.CategoryID,
		&t.Amount.Cents, &t.Kind, &t.Description, &t.Merchant, &t.Date,
		&t.Pending, &t.Notes, &tags, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if tags != "" && tags != "[]" {
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &t, nil
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func (t *sqlTx) GetAccount(ownerID, id string) (*core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ? AND owner_id = ?`
	return scanAccount(t.tx.QueryRowContext(t.ctx, query, id, ownerID))
}

func (t *sqlTx) ApplyBalanceDelta(ownerID, id string, delta int64, expectVersion int64, now time.Time) error {
	const query = `UPDATE accounts
		SET balance_cents = balance_cents + ?, version = version + 1, last_synced = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND version = ?`
	res, err := t.tx.ExecContext(t.ctx, query, delta, now, now, id, ownerID, expectVersion)
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply balance delta rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Distinguish a lost compare-and-swap from a missing account.
	var one int
	err = t.tx.QueryRowContext(t.ctx,
		`SELECT 1 FROM accounts WHERE id = ? AND owner_id = ?`, id, ownerID).Scan(&one)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	return storage.ErrConflict
}

func (t *sqlTx) GetTransaction(ownerID, id string) (*core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ? AND owner_id = ?`
	return scanTransaction(t.tx.QueryRowContext(t.ctx, query, id, ownerID))
}

func (t *sqlTx) InsertTransaction(tr *core.Transaction) error {
	now := time.Now().UTC()
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	tr.CreatedAt = now
	tr.UpdatedAt = now

	tags, err := encodeTags(tr.Tags)
	if err != nil {
		return err
	}

	const query = `INSERT INTO transactions (id, owner_id, account_id, transfer_account_id,
		category_id, amount_cents, kind, description, merchant, date, pending, notes, tags,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = t.tx.ExecContext(t.ctx, query,
		tr.ID, tr.OwnerID, tr.AccountID, tr.TransferAccountID, tr.CategoryID,
		tr.Amount.Cents, tr.Kind, tr.Description, tr.Merchant, tr.Date,
		tr.Pending, tr.Notes, tags, tr.CreatedAt, tr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateTransaction(tr *core.Transaction) error {
	tr.UpdatedAt = time.Now().UTC()

	tags, err := encodeTags(tr.Tags)
	if err != nil {
		return err
	}

	const query = `UPDATE transactions SET account_id = ?, transfer_account_id = ?,
		category_id = ?, amount_cents = ?, kind = ?, description = ?, merchant = ?,
		date = ?, pending = ?, notes = ?, tags = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`
	res, err := t.tx.ExecContext(t.ctx, query,
		tr.AccountID, tr.TransferAccountID, tr.CategoryID, tr.Amount.Cents,
		tr.Kind, tr.Description, tr.Merchant, tr.Date, tr.Pending, tr.Notes, tags,
		tr.UpdatedAt, tr.ID, tr.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *sqlTx) DeleteTransaction(ownerID, id string) error {
	res, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, ownerID, id string) (*core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ? AND owner_id = ?`
	return scanTransaction(r.db.QueryRowContext(ctx, query, id, ownerID))
}

const transactionRowSelect = `SELECT t.id, t.owner_id, t.account_id, t.transfer_account_id,
	t.category_id, t.amount_cents, t.kind, t.description, t.merchant, t.date, t.pending,
	t.notes, t.tags, t.created_at, t.updated_at,
	COALESCE(a.name, ''), COALESCE(c.name, ''), COALESCE(c.icon, '')
	FROM transactions t
	LEFT JOIN accounts a ON a.id = t.account_id
	LEFT JOIN categories c ON c.id = t.category_id`

func scanTransactionRow(rows *sql.Rows) (storage.TransactionRow, error) {
	var (
		row  storage.TransactionRow
		tags string
	)
	err := rows.Scan(
		&row.ID, &row.OwnerID, &row.AccountID, &row.TransferAccountID, &row.CategoryID,
		&row.Amount.Cents, &row.Kind, &row.Description, &row.Merchant, &row.Date,
		&row.Pending, &row.Notes, &tags, &row.CreatedAt, &row.UpdatedAt,
		&row.AccountName, &row.CategoryName, &row.CategoryIcon,
	)
	if err != nil {
		return row, fmt.Errorf("scan transaction row: %w", err)
	}
	if tags != "" && tags != "[]" {
		if err := json.Unmarshal([]byte(tags), &row.Tags); err != nil {
			return row, fmt.Errorf("decode tags: %w", err)
		}
	}
	return row, nil
}

func (r *Repository) ListTransactions(ctx context.Context, ownerID string, limit, offset int) ([]storage.TransactionRow, error) {
	query := transactionRowSelect + `
		WHERE t.owner_id = ?
		ORDER BY t.date DESC, t.created_at DESC
		LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

func (r *Repository) SearchTransactions(ctx context.Context, ownerID string, f storage.TransactionFilter, limit int) ([]storage.TransactionRow, error) {
	query := transactionRowSelect + ` WHERE t.owner_id = ?`
	args := []any{ownerID}

	if f.Query != "" {
		query += ` AND (t.description LIKE ? COLLATE NOCASE OR t.merchant LIKE ? COLLATE NOCASE)`
		like := "%" + f.Query + "%"
		args = append(args, like, like)
	}
	if f.AccountID != "" {
		query += ` AND t.account_id = ?`
		args = append(args, f.AccountID)
	}
	if f.CategoryID != "" {
		query += ` AND t.category_id = ?`
		args = append(args, f.CategoryID)
	}
	if f.Kind != "" {
		query += ` AND t.kind = ?`
		args = append(args, f.Kind)
	}
	if f.StartDate != nil {
		query += ` AND t.date >= ?`
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		query += ` AND t.date <= ?`
		args = append(args, *f.EndDate)
	}
	if f.MinAmount != nil {
		query += ` AND t.amount_cents >= ?`
		args = append(args, f.MinAmount.Cents)
	}
	if f.MaxAmount != nil {
		query += ` AND t.amount_cents <= ?`
		args = append(args, f.MaxAmount.Cents)
	}

	query += ` ORDER BY t.date DESC, t.created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search transactions: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

func collectRows(rows *sql.Rows) ([]storage.TransactionRow, error) {
	var out []storage.TransactionRow
	for rows.Next() {
		row, err := scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *Repository) SpendingByCategory(ctx context.Context, ownerID string, start, end time.Time) ([]storage.CategorySpend, error) {
	const query = `SELECT t.category_id, COALESCE(c.name, ''), COALESCE(c.icon, ''),
		SUM(t.amount_cents) AS total
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.owner_id = ? AND t.kind = 'expense' AND t.date >= ? AND t.date <= ?
		GROUP BY t.category_id
		ORDER BY total DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("spending by category: %w", err)
	}
	defer rows.Close()

	var out []storage.CategorySpend
	for rows.Next() {
		var s storage.CategorySpend
		if err := rows.Scan(&s.CategoryID, &s.CategoryName, &s.CategoryIcon, &s.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category spend: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) MonthlySpending(ctx context.Context, ownerID string, year, month int) (core.Money, error) {
	start, end := storage.MonthRange(year, month)
	const query = `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		WHERE owner_id = ? AND kind = 'expense' AND pending = 0 AND date >= ? AND date <= ?`
	var total int64
	if err := r.db.QueryRowContext(ctx, query, ownerID, start, end).Scan(&total); err != nil {
		return core.Money{}, fmt.Errorf("monthly spending: %w", err)
	}
	return core.Money{Cents: total}, nil
}

func (r *Repository) SignedTransactionSum(ctx context.Context, ownerID, accountID string) (int64, error) {
	const direct = `SELECT COALESCE(SUM(CASE kind WHEN 'income' THEN amount_cents
		ELSE -amount_cents END), 0)
		FROM transactions WHERE owner_id = ? AND account_id = ? AND pending = 0`
	var sum int64
	if err := r.db.QueryRowContext(ctx, direct, ownerID, accountID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("signed transaction sum: %w", err)
	}

	const incoming = `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		WHERE owner_id = ? AND transfer_account_id = ? AND kind = 'transfer' AND pending = 0`
	var credits int64
	if err := r.db.QueryRowContext(ctx, incoming, ownerID, accountID).Scan(&credits); err != nil {
		return 0, fmt.Errorf("incoming transfer sum: %w", err)
	}
	return sum + credits, nil
}
