// Package memory is an in-memory implementation of storage.Store. It
// backs the memory data backend and the test suite.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

// Store keeps all records in maps guarded by one mutex. WithinTx holds
// the mutex for the whole callback and rolls back through snapshots, so
// a failed callback leaves no partial state behind.
type Store struct {
	mu           sync.RWMutex
	accounts     map[string]*core.Account
	transactions map[string]*core.Transaction
	categories   map[string]*core.Category
}

func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]*core.Account),
		transactions: make(map[string]*core.Transaction),
		categories:   make(map[string]*core.Category),
	}
}

func (s *Store) Close() error { return nil }

// tx records undo state for every record it touches.
type tx struct {
	s            *Store
	prevAccounts map[string]*core.Account     // nil value = did not exist
	prevTx       map[string]*core.Transaction // nil value = did not exist
}

func (t *tx) snapshotAccount(id string) {
	if _, done := t.prevAccounts[id]; done {
		return
	}
	if a, ok := t.s.accounts[id]; ok {
		cp := *a
		t.prevAccounts[id] = &cp
	} else {
		t.prevAccounts[id] = nil
	}
}

func (t *tx) snapshotTransaction(id string) {
	if _, done := t.prevTx[id]; done {
		return
	}
	if tr, ok := t.s.transactions[id]; ok {
		cp := cloneTransaction(*tr)
		t.prevTx[id] = &cp
	} else {
		t.prevTx[id] = nil
	}
}

func (t *tx) rollback() {
	for id, prev := range t.prevAccounts {
		if prev == nil {
			delete(t.s.accounts, id)
			continue
		}
		cp := *prev
		t.s.accounts[id] = &cp
	}
	for id, prev := range t.prevTx {
		if prev == nil {
			delete(t.s.transactions, id)
			continue
		}
		cp := cloneTransaction(*prev)
		t.s.transactions[id] = &cp
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		s:            s,
		prevAccounts: make(map[string]*core.Account),
		prevTx:       make(map[string]*core.Transaction),
	}
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

func (t *tx) GetAccount(ownerID, id string) (*core.Account, error) {
	a, ok := t.s.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *tx) ApplyBalanceDelta(ownerID, id string, delta int64, expectVersion int64, now time.Time) error {
	a, ok := t.s.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	if a.Version != expectVersion {
		return storage.ErrConflict
	}
	t.snapshotAccount(id)
	a.Balance.Cents += delta
	a.Version++
	a.LastSynced = now
	a.UpdatedAt = now
	return nil
}

func (t *tx) GetTransaction(ownerID, id string) (*core.Transaction, error) {
	tr, ok := t.s.transactions[id]
	if !ok || tr.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	cp := cloneTransaction(*tr)
	return &cp, nil
}

func (t *tx) InsertTransaction(tr *core.Transaction) error {
	now := time.Now().UTC()
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	tr.CreatedAt = now
	tr.UpdatedAt = now
	t.snapshotTransaction(tr.ID)
	cp := cloneTransaction(*tr)
	t.s.transactions[tr.ID] = &cp
	return nil
}

func (t *tx) UpdateTransaction(tr *core.Transaction) error {
	existing, ok := t.s.transactions[tr.ID]
	if !ok || existing.OwnerID != tr.OwnerID {
		return storage.ErrNotFound
	}
	t.snapshotTransaction(tr.ID)
	tr.CreatedAt = existing.CreatedAt
	tr.UpdatedAt = time.Now().UTC()
	cp := cloneTransaction(*tr)
	t.s.transactions[tr.ID] = &cp
	return nil
}

func (t *tx) DeleteTransaction(ownerID, id string) error {
	tr, ok := t.s.transactions[id]
	if !ok || tr.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	t.snapshotTransaction(id)
	delete(t.s.transactions, id)
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, a *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *Store) GetAccount(ctx context.Context, ownerID, id string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Account
	for _, a := range s.accounts {
		if a.OwnerID == ownerID && a.Active {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateAccount(ctx context.Context, ownerID, id string, u storage.AccountUpdate) (*core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	now := time.Now().UTC()
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Type != nil {
		a.Type = *u.Type
	}
	if u.Currency != nil {
		a.Currency = *u.Currency
	}
	if u.Balance != nil {
		// Direct balance edit. Bumps the version so concurrent ledger
		// deltas lose their compare-and-swap and retry.
		a.Balance = *u.Balance
		a.Version++
		a.LastSynced = now
	}
	if u.AvailableBalance != nil {
		v := *u.AvailableBalance
		a.AvailableBalance = &v
	}
	if u.CreditLimit != nil {
		v := *u.CreditLimit
		a.CreditLimit = &v
	}
	if u.InterestRate != nil {
		v := *u.InterestRate
		a.InterestRate = &v
	}
	if u.Hidden != nil {
		a.Hidden = *u.Hidden
	}
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (s *Store) DeactivateAccount(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	a.Active = false
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, ownerID, id string) (*core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tr, ok := s.transactions[id]
	if !ok || tr.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	cp := cloneTransaction(*tr)
	return &cp, nil
}

func (s *Store) ListTransactions(ctx context.Context, ownerID string, limit, offset int) ([]storage.TransactionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.collectRows(ownerID, storage.TransactionFilter{})
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) SearchTransactions(ctx context.Context, ownerID string, f storage.TransactionFilter, limit int) ([]storage.TransactionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.collectRows(ownerID, f)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// collectRows filters, joins and orders matching transactions by date
// descending then creation time descending. Callers must hold the lock.
func (s *Store) collectRows(ownerID string, f storage.TransactionFilter) []storage.TransactionRow {
	var rows []storage.TransactionRow
	for _, tr := range s.transactions {
		if tr.OwnerID != ownerID || !s.matches(tr, f) {
			continue
		}
		row := storage.TransactionRow{Transaction: cloneTransaction(*tr)}
		if a, ok := s.accounts[tr.AccountID]; ok {
			row.AccountName = a.Name
		}
		if c, ok := s.categories[tr.CategoryID]; ok {
			row.CategoryName = c.Name
			row.CategoryIcon = c.Icon
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.After(rows[j].Date)
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows
}

func (s *Store) matches(tr *core.Transaction, f storage.TransactionFilter) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(tr.Description), q) &&
			!strings.Contains(strings.ToLower(tr.Merchant), q) {
			return false
		}
	}
	if f.AccountID != "" && tr.AccountID != f.AccountID {
		return false
	}
	if f.CategoryID != "" && tr.CategoryID != f.CategoryID {
		return false
	}
	if f.Kind != "" && tr.Kind != f.Kind {
		return false
	}
	if f.StartDate != nil && tr.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && tr.Date.After(*f.EndDate) {
		return false
	}
	if f.MinAmount != nil && tr.Amount.Cents < f.MinAmount.Cents {
		return false
	}
	if f.MaxAmount != nil && tr.Amount.Cents > f.MaxAmount.Cents {
		return false
	}
	return true
}

func (s *Store) SpendingByCategory(ctx context.Context, ownerID string, start, end time.Time) ([]storage.CategorySpend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int64)
	for _, tr := range s.transactions {
		if tr.OwnerID != ownerID || tr.Kind != core.KindExpense {
			continue
		}
		if tr.Date.Before(start) || tr.Date.After(end) {
			continue
		}
		totals[tr.CategoryID] += tr.Amount.Cents
	}

	var out []storage.CategorySpend
	for id, cents := range totals {
		spend := storage.CategorySpend{CategoryID: id, Total: core.Money{Cents: cents}}
		if c, ok := s.categories[id]; ok {
			spend.CategoryName = c.Name
			spend.CategoryIcon = c.Icon
		}
		out = append(out, spend)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Total.Cents > out[j].Total.Cents
	})
	return out, nil
}

func (s *Store) MonthlySpending(ctx context.Context, ownerID string, year, month int) (core.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, end := storage.MonthRange(year, month)
	var total int64
	for _, tr := range s.transactions {
		if tr.OwnerID != ownerID || tr.Kind != core.KindExpense || tr.Pending {
			continue
		}
		if tr.Date.Before(start) || tr.Date.After(end) {
			continue
		}
		total += tr.Amount.Cents
	}
	return core.Money{Cents: total}, nil
}

func (s *Store) SignedTransactionSum(ctx context.Context, ownerID, accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, tr := range s.transactions {
		if tr.OwnerID != ownerID || tr.Pending {
			continue
		}
		if tr.AccountID == accountID {
			switch tr.Kind {
			case core.KindIncome:
				sum += tr.Amount.Cents
			case core.KindExpense, core.KindTransfer:
				sum -= tr.Amount.Cents
			}
		}
		if tr.Kind == core.KindTransfer && tr.TransferAccountID == accountID {
			sum += tr.Amount.Cents
		}
	}
	return sum, nil
}

func (s *Store) ListCategories(ctx context.Context, ownerID string, kind core.CategoryKind) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Category
	for _, c := range s.categories {
		if c.OwnerID != ownerID || !c.Active {
			continue
		}
		if kind != "" && c.Kind != kind {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetCategory(ctx context.Context, ownerID, id string) (*core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok || c.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Active = true
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, ownerID, id string, u storage.CategoryUpdate) (*core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok || c.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Kind != nil {
		c.Kind = *u.Kind
	}
	if u.ParentID != nil {
		c.ParentID = *u.ParentID
	}
	if u.Icon != nil {
		c.Icon = *u.Icon
	}
	if u.Color != nil {
		c.Color = *u.Color
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (s *Store) DeactivateCategory(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok || c.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneTransaction(t core.Transaction) core.Transaction {
	if t.Tags != nil {
		tags := make([]string, len(t.Tags))
		copy(tags, t.Tags)
		t.Tags = tags
	}
	return t
}

// Compile-time check: Store implements storage.Store.
var _ storage.Store = (*Store)(nil)
