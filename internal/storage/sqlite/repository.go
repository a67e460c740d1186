// Package sqlite implements storage.Store on an embedded SQLite
// database. Monetary columns are INTEGER minor units; conversion to
// and from decimal strings happens at the API boundary, never here.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Write transactions start immediate so the record mutation and its
	// paired balance adjustment serialize without lock-upgrade deadlocks.
	dsn := dbPath + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithinTx runs fn inside a database transaction. Any error rolls the
// whole unit back, so the ledger is never left with a record mutation
// missing its balance adjustment.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	t := &sqlTx{ctx: ctx, tx: dbTx}
	if err := fn(t); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const accountColumns = `id, owner_id, name, type, currency, balance_cents, initial_balance_cents,
	available_balance_cents, credit_limit_cents, interest_rate, is_active, is_hidden,
	version, last_synced, created_at, updated_at`

type accountScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row accountScanner) (*core.Account, error) {
	var (
		a          core.Account
		available  sql.NullInt64
		limit      sql.NullInt64
		rate       sql.NullFloat64
		lastSynced sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Name, &a.Type, &a.Currency,
		&a.Balance.Cents, &a.InitialBalance.Cents,
		&available, &limit, &rate,
		&a.Active, &a.Hidden, &a.Version,
		&lastSynced, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if available.Valid {
		a.AvailableBalance = &core.Money{Cents: available.Int64}
	}
	if limit.Valid {
		a.CreditLimit = &core.Money{Cents: limit.Int64}
	}
	if rate.Valid {
		a.InterestRate = &rate.Float64
	}
	if lastSynced.Valid {
		a.LastSynced = lastSynced.Time
	}
	return &a, nil
}

func (r *Repository) CreateAccount(ctx context.Context, a *core.Account) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Currency == "" {
		a.Currency = "USD"
	}
	a.InitialBalance = a.Balance
	a.Active = true
	a.Version = 0
	a.CreatedAt = now
	a.UpdatedAt = now

	var (
		available sql.NullInt64
		limit     sql.NullInt64
		rate      sql.NullFloat64
	)
	if a.AvailableBalance != nil {
		available = sql.NullInt64{Int64: a.AvailableBalance.Cents, Valid: true}
	}
	if a.CreditLimit != nil {
		limit = sql.NullInt64{Int64: a.CreditLimit.Cents, Valid: true}
	}
	if a.InterestRate != nil {
		rate = sql.NullFloat64{Float64: *a.InterestRate, Valid: true}
	}

	const query = `INSERT INTO accounts (id, owner_id, name, type, currency, balance_cents,
		initial_balance_cents, available_balance_cents, credit_limit_cents, interest_rate,
		is_active, is_hidden, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, 0, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.OwnerID, a.Name, a.Type, a.Currency, a.Balance.Cents,
		a.InitialBalance.Cents, available, limit, rate,
		a.Hidden, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Account created",
		"account_id", a.ID,
		"owner_id", a.OwnerID,
		"type", a.Type,
		"balance_cents", a.Balance.Cents)
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, ownerID, id string) (*core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ? AND owner_id = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, id, ownerID))
}

func (r *Repository) ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE owner_id = ? AND is_active = 1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
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
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateAccount(ctx context.Context, ownerID, id string, u storage.AccountUpdate) (*core.Account, error) {
	now := time.Now().UTC()
	set := []string{"updated_at = ?"}
	args := []any{now}

	if u.Name != nil {
		set = append(set, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Type != nil {
		set = append(set, "type = ?")
		args = append(args, *u.Type)
	}
	if u.Currency != nil {
		set = append(set, "currency = ?")
		args = append(args, *u.Currency)
	}
	if u.Balance != nil {
		// Direct balance edit bumps the version counter so in-flight
		// ledger deltas lose their compare-and-swap and retry.
		set = append(set, "balance_cents = ?", "version = version + 1", "last_synced = ?")
		args = append(args, u.Balance.Cents, now)
	}
	if u.AvailableBalance != nil {
		set = append(set, "available_balance_cents = ?")
		args = append(args, u.AvailableBalance.Cents)
	}
	if u.CreditLimit != nil {
		set = append(set, "credit_limit_cents = ?")
		args = append(args, u.CreditLimit.Cents)
	}
	if u.InterestRate != nil {
		set = append(set, "interest_rate = ?")
		args = append(args, *u.InterestRate)
	}
	if u.Hidden != nil {
		set = append(set, "is_hidden = ?")
		args = append(args, *u.Hidden)
	}

	query := "UPDATE accounts SET " + strings.Join(set, ", ") + " WHERE id = ? AND owner_id = ?"
	args = append(args, id, ownerID)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update account rows: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}
	return r.GetAccount(ctx, ownerID, id)
}

func (r *Repository) DeactivateAccount(ctx context.Context, ownerID, id string) error {
	const query = `UPDATE accounts SET is_active = 0, updated_at = ? WHERE id = ? AND owner_id = ?`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate account rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	slog.InfoContext(ctx, "Account deactivated", "account_id", id, "owner_id", ownerID)
	return nil
}

// Compile-time check: Repository implements storage.Store.
var _ storage.Store = (*Repository)(nil)
