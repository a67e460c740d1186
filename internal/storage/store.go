// Package storage defines the owner-scoped ledger store contract shared
// by the sqlite and memory implementations.
//
// Every operation takes an explicit owner identity and only ever
// touches records owned by it. A record owned by someone else is
// reported as ErrNotFound, never as a permission error, so callers
// cannot probe for existence.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ivstefano/personal-finance-manager/internal/core"
)

var (
	// ErrNotFound covers both truly absent records and records owned by a
	// different identity.
	ErrNotFound = errors.New("record not found")

	// ErrConflict signals a lost compare-and-swap on an account balance.
	// Callers may retry.
	ErrConflict = errors.New("account balance conflict")
)

// AccountUpdate is a partial field set for account updates. Nil fields
// are left untouched.
type AccountUpdate struct {
	Name             *string
	Type             *core.AccountType
	Currency         *string
	Balance          *core.Money
	AvailableBalance *core.Money
	CreditLimit      *core.Money
	InterestRate     *float64
	Hidden           *bool
}

// TransactionUpdate is a partial field set for transaction updates.
type TransactionUpdate struct {
	AccountID         *string
	TransferAccountID *string
	CategoryID        *string
	Amount            *core.Money
	Kind              *core.TransactionKind
	Description       *string
	Merchant          *string
	Date              *time.Time
	Pending           *bool
	Notes             *string
	Tags              *[]string
}

// Apply returns a copy of t with the supplied fields replaced.
func (u TransactionUpdate) Apply(t core.Transaction) core.Transaction {
	if u.AccountID != nil {
		t.AccountID = *u.AccountID
	}
	if u.TransferAccountID != nil {
		t.TransferAccountID = *u.TransferAccountID
	}
	if u.CategoryID != nil {
		t.CategoryID = *u.CategoryID
	}
	if u.Amount != nil {
		t.Amount = *u.Amount
	}
	if u.Kind != nil {
		t.Kind = *u.Kind
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Merchant != nil {
		t.Merchant = *u.Merchant
	}
	if u.Date != nil {
		t.Date = *u.Date
	}
	if u.Pending != nil {
		t.Pending = *u.Pending
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if u.Tags != nil {
		t.Tags = *u.Tags
	}
	return t
}

// CategoryUpdate is a partial field set for category updates.
type CategoryUpdate struct {
	Name     *string
	Kind     *core.CategoryKind
	ParentID *string
	Icon     *string
	Color    *string
}

// TransactionFilter narrows a search. Zero values mean "no constraint";
// date and amount ranges are inclusive.
type TransactionFilter struct {
	Query      string
	AccountID  string
	CategoryID string
	Kind       core.TransactionKind
	StartDate  *time.Time
	EndDate    *time.Time
	MinAmount  *core.Money
	MaxAmount  *core.Money
}

// TransactionRow is a transaction joined with the display names of its
// account and category.
type TransactionRow struct {
	core.Transaction
	AccountName  string
	CategoryName string
	CategoryIcon string
}

// CategorySpend is the expense total attributed to one category.
type CategorySpend struct {
	CategoryID   string
	CategoryName string
	CategoryIcon string
	Total        core.Money
}

// Tx is the transactional scope handed to WithinTx callbacks. All
// mutations performed through it commit or roll back together.
type Tx interface {
	GetAccount(ownerID, id string) (*core.Account, error)

	// ApplyBalanceDelta adds delta (minor units) to the account's stored
	// balance, bumps the version counter and stamps LastSynced. The write
	// only lands if the account's version still equals expectVersion;
	// otherwise ErrConflict is returned and nothing changes.
	ApplyBalanceDelta(ownerID, id string, delta int64, expectVersion int64, now time.Time) error

	GetTransaction(ownerID, id string) (*core.Transaction, error)
	InsertTransaction(t *core.Transaction) error
	UpdateTransaction(t *core.Transaction) error
	DeleteTransaction(ownerID, id string) error
}

// Store is the durable ledger store. Reads outside WithinTx see only
// committed state, so the balance invariant is never visible in a
// violated state.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	CreateAccount(ctx context.Context, a *core.Account) error
	GetAccount(ctx context.Context, ownerID, id string) (*core.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error)
	UpdateAccount(ctx context.Context, ownerID, id string, u AccountUpdate) (*core.Account, error)
	DeactivateAccount(ctx context.Context, ownerID, id string) error

	GetTransaction(ctx context.Context, ownerID, id string) (*core.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, limit, offset int) ([]TransactionRow, error)
	SearchTransactions(ctx context.Context, ownerID string, f TransactionFilter, limit int) ([]TransactionRow, error)
	SpendingByCategory(ctx context.Context, ownerID string, start, end time.Time) ([]CategorySpend, error)
	MonthlySpending(ctx context.Context, ownerID string, year, month int) (core.Money, error)

	// SignedTransactionSum returns the signed sum, in minor units, of all
	// non-pending transactions touching the account (including transfer
	// credits). Used to audit the stored balance against history.
	SignedTransactionSum(ctx context.Context, ownerID, accountID string) (int64, error)

	ListCategories(ctx context.Context, ownerID string, kind core.CategoryKind) ([]core.Category, error)
	GetCategory(ctx context.Context, ownerID, id string) (*core.Category, error)
	CreateCategory(ctx context.Context, c *core.Category) error
	UpdateCategory(ctx context.Context, ownerID, id string, u CategoryUpdate) (*core.Category, error)
	DeactivateCategory(ctx context.Context, ownerID, id string) error

	Close() error
}

// MonthRange returns the inclusive first and last instant of a calendar
// month in UTC.
func MonthRange(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}
