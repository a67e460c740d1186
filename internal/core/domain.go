package core

import (
	"errors"
	"strings"
	"time"
)

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
	AccountCash       AccountType = "cash"
)

const (
	KindIncome   TransactionKind = "income"
	KindExpense  TransactionKind = "expense"
	KindTransfer TransactionKind = "transfer"
)

const (
	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"
)

type (
	AccountType     string
	TransactionKind string
	CategoryKind    string

	// Account is a single owner's money container. Balance is the stored
	// balance maintained by the ledger engine; it is signed and expressed
	// in minor units. Version is bumped on every balance write and backs
	// the compare-and-swap discipline in the storage layer.
	Account struct {
		ID               string
		OwnerID          string
		Name             string
		Type             AccountType
		Currency         string
		Balance          Money
		InitialBalance   Money
		AvailableBalance *Money
		CreditLimit      *Money
		InterestRate     *float64
		Active           bool
		Hidden           bool
		Version          int64
		LastSynced       time.Time
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	// Transaction is a single ledger movement against one account.
	// Amount is a strictly positive magnitude; Kind decides its sign.
	// TransferAccountID is set only for transfers and names the
	// destination account.
	Transaction struct {
		ID                string
		OwnerID           string
		AccountID         string
		TransferAccountID string
		CategoryID        string
		Amount            Money
		Kind              TransactionKind
		Description       string
		Merchant          string
		Date              time.Time
		Pending           bool
		Notes             string
		Tags              []string
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	// Category labels transactions. Categories form a forest per owner:
	// at most one parent, no cycles.
	Category struct {
		ID        string
		OwnerID   string
		Name      string
		Kind      CategoryKind
		ParentID  string
		Icon      string
		Color     string
		System    bool
		Active    bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidKind        = errors.New("invalid transaction kind")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrInvalidCategory    = errors.New("invalid category kind")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrEmptyName          = errors.New("empty name")
	ErrMissingAccount     = errors.New("missing account reference")
	ErrMissingOwner       = errors.New("missing owner")
	ErrZeroDate           = errors.New("date cannot be zero")
	ErrTransferTarget     = errors.New("transfer requires a destination account")
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCreditCard, AccountInvestment, AccountLoan, AccountCash:
		return true
	}
	return false
}

// Debt reports whether balances on this account type represent money
// owed rather than held.
func (t AccountType) Debt() bool {
	return t == AccountCreditCard || t == AccountLoan
}

func (k TransactionKind) Valid() bool {
	switch k {
	case KindIncome, KindExpense, KindTransfer:
		return true
	}
	return false
}

func (k CategoryKind) Valid() bool {
	return k == CategoryIncome || k == CategoryExpense
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.OwnerID) == "" {
		return ErrMissingOwner
	}
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Type.Valid() {
		return ErrInvalidAccountType
	}
	return nil
}

// AvailableCredit returns the remaining credit for a credit card
// account: the credit limit minus the carried debt magnitude. The
// second return value is false when the account has no credit limit.
func (a Account) AvailableCredit() (Money, bool) {
	if a.Type != AccountCreditCard || a.CreditLimit == nil {
		return Money{}, false
	}
	debt := a.Balance.Cents
	if debt < 0 {
		debt = -debt
	}
	return Money{Cents: a.CreditLimit.Cents - debt}, true
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrMissingOwner
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrMissingAccount
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if t.Kind == KindTransfer {
		if strings.TrimSpace(t.TransferAccountID) == "" || t.TransferAccountID == t.AccountID {
			return ErrTransferTarget
		}
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return ErrMissingOwner
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Kind.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

// NetWorth sums balances across a set of accounts. Debt accounts
// (credit cards, loans) subtract their carried balance.
func NetWorth(accounts []Account) Money {
	var total int64
	for _, a := range accounts {
		if a.Type.Debt() {
			b := a.Balance.Cents
			if b < 0 {
				b = -b
			}
			total -= b
			continue
		}
		total += a.Balance.Cents
	}
	return Money{Cents: total}
}
