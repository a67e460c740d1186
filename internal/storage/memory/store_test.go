package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

func newAccount(t *testing.T, s *Store, ownerID, name string, cents int64) *core.Account {
	t.Helper()
	a := &core.Account{
		OwnerID: ownerID,
		Name:    name,
		Type:    core.AccountChecking,
		Balance: core.Money{Cents: cents},
	}
	if err := s.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func insertTx(t *testing.T, s *Store, tx core.Transaction) core.Transaction {
	t.Helper()
	err := s.WithinTx(context.Background(), func(st storage.Tx) error {
		return st.InsertTransaction(&tx)
	})
	if err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
	return tx
}

func TestCreateAccountRecordsInitialBalance(t *testing.T) {
	s := NewStore()
	a := newAccount(t, s, "owner-1", "Checking", 50000)

	got, err := s.GetAccount(context.Background(), "owner-1", a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.InitialBalance.Cents != 50000 {
		t.Errorf("initial balance = %d, want 50000", got.InitialBalance.Cents)
	}
	if !got.Active {
		t.Error("new account should be active")
	}
	if got.Version != 0 {
		t.Errorf("version = %d, want 0", got.Version)
	}
}

func TestOwnerScoping(t *testing.T) {
	s := NewStore()
	a := newAccount(t, s, "owner-1", "Checking", 0)

	if _, err := s.GetAccount(context.Background(), "owner-2", a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("foreign get: expected ErrNotFound, got %v", err)
	}
	if _, err := s.UpdateAccount(context.Background(), "owner-2", a.ID, storage.AccountUpdate{}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("foreign update: expected ErrNotFound, got %v", err)
	}
	accounts, err := s.ListAccounts(context.Background(), "owner-2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("foreign list saw %d accounts", len(accounts))
	}
}

func TestApplyBalanceDeltaVersionCheck(t *testing.T) {
	s := NewStore()
	a := newAccount(t, s, "owner-1", "Checking", 10000)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.ApplyBalanceDelta("owner-1", a.ID, -2500, 0, now)
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := s.GetAccount(ctx, "owner-1", a.ID)
	if got.Balance.Cents != 7500 {
		t.Errorf("balance = %d, want 7500", got.Balance.Cents)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}

	// A stale expected version loses the compare-and-swap.
	err = s.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.ApplyBalanceDelta("owner-1", a.ID, -2500, 0, now)
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("stale CAS: expected ErrConflict, got %v", err)
	}
	got, _ = s.GetAccount(ctx, "owner-1", a.ID)
	if got.Balance.Cents != 7500 {
		t.Errorf("failed CAS changed the balance: %d", got.Balance.Cents)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := NewStore()
	a := newAccount(t, s, "owner-1", "Checking", 10000)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertTransaction(&core.Transaction{
			ID:          "t1",
			OwnerID:     "owner-1",
			AccountID:   a.ID,
			Amount:      core.Money{Cents: 100},
			Kind:        core.KindExpense,
			Description: "doomed",
			Date:        time.Now(),
		}); err != nil {
			return err
		}
		if err := tx.ApplyBalanceDelta("owner-1", a.ID, -100, 0, time.Now().UTC()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	if _, err := s.GetTransaction(ctx, "owner-1", "t1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rolled-back transaction still visible: %v", err)
	}
	got, _ := s.GetAccount(ctx, "owner-1", a.ID)
	if got.Balance.Cents != 10000 {
		t.Errorf("rolled-back delta still applied: %d", got.Balance.Cents)
	}
	if got.Version != 0 {
		t.Errorf("rolled-back version bump persisted: %d", got.Version)
	}
}

func seedSearchFixture(t *testing.T, s *Store) (*core.Account, *core.Account) {
	t.Helper()
	a := newAccount(t, s, "owner-1", "Checking", 0)
	b := newAccount(t, s, "owner-1", "Savings", 0)

	day := func(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }

	insertTx(t, s, core.Transaction{ID: "t1", OwnerID: "owner-1", AccountID: a.ID, Amount: core.Money{Cents: 475}, Kind: core.KindExpense, Description: "Coffee downtown", Merchant: "Blue Cup", Date: day(1)})
	insertTx(t, s, core.Transaction{ID: "t2", OwnerID: "owner-1", AccountID: a.ID, Amount: core.Money{Cents: 8950}, Kind: core.KindExpense, Description: "Groceries", Date: day(3)})
	insertTx(t, s, core.Transaction{ID: "t3", OwnerID: "owner-1", AccountID: b.ID, Amount: core.Money{Cents: 250000}, Kind: core.KindIncome, Description: "Paycheck", Date: day(5)})
	insertTx(t, s, core.Transaction{ID: "t4", OwnerID: "owner-1", AccountID: a.ID, Amount: core.Money{Cents: 1800}, Kind: core.KindExpense, Description: "More COFFEE beans", Date: day(7)})
	insertTx(t, s, core.Transaction{ID: "t5", OwnerID: "owner-2", AccountID: "other", Amount: core.Money{Cents: 999}, Kind: core.KindExpense, Description: "coffee elsewhere", Date: day(7)})

	return a, b
}

func TestSearchTransactionsFilters(t *testing.T) {
	s := NewStore()
	a, b := seedSearchFixture(t, s)
	ctx := context.Background()

	cases := []struct {
		name   string
		filter storage.TransactionFilter
		want   []string
	}{
		{"query case-insensitive", storage.TransactionFilter{Query: "coffee"}, []string{"t4", "t1"}},
		{"query matches merchant", storage.TransactionFilter{Query: "blue cup"}, []string{"t1"}},
		{"by account", storage.TransactionFilter{AccountID: b.ID}, []string{"t3"}},
		{"by kind", storage.TransactionFilter{Kind: core.KindIncome}, []string{"t3"}},
		{"amount range", storage.TransactionFilter{MinAmount: &core.Money{Cents: 1000}, MaxAmount: &core.Money{Cents: 10000}}, []string{"t4", "t2"}},
	}

	start := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC)
	cases = append(cases, struct {
		name   string
		filter storage.TransactionFilter
		want   []string
	}{"date range inclusive", storage.TransactionFilter{StartDate: &start, EndDate: &end}, []string{"t3", "t2"}})

	_ = a
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := s.SearchTransactions(ctx, "owner-1", tc.filter, 100)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(rows) != len(tc.want) {
				t.Fatalf("got %d rows, want %d", len(rows), len(tc.want))
			}
			for i, id := range tc.want {
				if rows[i].ID != id {
					t.Errorf("row %d = %s, want %s", i, rows[i].ID, id)
				}
			}
		})
	}
}

func TestListTransactionsPagination(t *testing.T) {
	s := NewStore()
	a := newAccount(t, s, "owner-1", "Checking", 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		insertTx(t, s, core.Transaction{
			ID:          fmt.Sprintf("t%d", i),
			OwnerID:     "owner-1",
			AccountID:   a.ID,
			Amount:      core.Money{Cents: 100},
			Kind:        core.KindExpense,
			Description: "spend",
			Date:        time.Date(2026, 5, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}

	rows, err := s.ListTransactions(ctx, "owner-1", 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "t4" || rows[1].ID != "t3" {
		t.Fatalf("first page wrong: %+v", rows)
	}
	if rows[0].AccountName != "Checking" {
		t.Errorf("account name not joined: %q", rows[0].AccountName)
	}

	rows, err = s.ListTransactions(ctx, "owner-1", 2, 4)
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "t0" {
		t.Fatalf("last page wrong: %+v", rows)
	}

	rows, err = s.ListTransactions(ctx, "owner-1", 2, 50)
	if err != nil {
		t.Fatalf("list beyond end: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("offset past end returned %d rows", len(rows))
	}
}

func TestSpendingAggregations(t *testing.T) {
	s := NewStore()
	a := newAccount(t, s, "owner-1", "Checking", 0)
	ctx := context.Background()

	cat := &core.Category{OwnerID: "owner-1", Name: "Food", Kind: core.CategoryExpense}
	if err := s.CreateCategory(ctx, cat); err != nil {
		t.Fatalf("create category: %v", err)
	}

	day := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	insertTx(t, s, core.Transaction{ID: "t1", OwnerID: "owner-1", AccountID: a.ID, CategoryID: cat.ID, Amount: core.Money{Cents: 3000}, Kind: core.KindExpense, Description: "lunch", Date: day})
	insertTx(t, s, core.Transaction{ID: "t2", OwnerID: "owner-1", AccountID: a.ID, CategoryID: cat.ID, Amount: core.Money{Cents: 4500}, Kind: core.KindExpense, Description: "dinner", Date: day})
	insertTx(t, s, core.Transaction{ID: "t3", OwnerID: "owner-1", AccountID: a.ID, CategoryID: cat.ID, Amount: core.Money{Cents: 9999}, Kind: core.KindExpense, Description: "pending", Pending: true, Date: day})
	insertTx(t, s, core.Transaction{ID: "t4", OwnerID: "owner-1", AccountID: a.ID, Amount: core.Money{Cents: 100000}, Kind: core.KindIncome, Description: "pay", Date: day})

	start, end := storage.MonthRange(2026, 6)
	spends, err := s.SpendingByCategory(ctx, "owner-1", start, end)
	if err != nil {
		t.Fatalf("spending by category: %v", err)
	}
	if len(spends) != 1 {
		t.Fatalf("got %d categories, want 1", len(spends))
	}
	// Pending holds count toward category spending but not toward the
	// monthly scalar below.
	if spends[0].Total.Cents != 17499 {
		t.Errorf("category total = %d, want 17499", spends[0].Total.Cents)
	}
	if spends[0].CategoryName != "Food" {
		t.Errorf("category name = %q", spends[0].CategoryName)
	}

	total, err := s.MonthlySpending(ctx, "owner-1", 2026, 6)
	if err != nil {
		t.Fatalf("monthly spending: %v", err)
	}
	if total.Cents != 7500 {
		t.Errorf("monthly total = %d, want 7500", total.Cents)
	}
}

func TestSignedTransactionSumIncludesTransferCredits(t *testing.T) {
	s := NewStore()
	a := newAccount(t, s, "owner-1", "Checking", 0)
	b := newAccount(t, s, "owner-1", "Savings", 0)
	ctx := context.Background()

	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	insertTx(t, s, core.Transaction{ID: "t1", OwnerID: "owner-1", AccountID: a.ID, Amount: core.Money{Cents: 50000}, Kind: core.KindIncome, Description: "pay", Date: day})
	insertTx(t, s, core.Transaction{ID: "t2", OwnerID: "owner-1", AccountID: a.ID, TransferAccountID: b.ID, Amount: core.Money{Cents: 20000}, Kind: core.KindTransfer, Description: "save", Date: day})
	insertTx(t, s, core.Transaction{ID: "t3", OwnerID: "owner-1", AccountID: b.ID, Amount: core.Money{Cents: 1500}, Kind: core.KindExpense, Description: "fee", Date: day})

	sumA, err := s.SignedTransactionSum(ctx, "owner-1", a.ID)
	if err != nil {
		t.Fatalf("sum a: %v", err)
	}
	if sumA != 30000 {
		t.Errorf("sum for source = %d, want 30000", sumA)
	}

	sumB, err := s.SignedTransactionSum(ctx, "owner-1", b.ID)
	if err != nil {
		t.Fatalf("sum b: %v", err)
	}
	if sumB != 18500 {
		t.Errorf("sum for destination = %d, want 18500", sumB)
	}
}

func TestUpdateTransactionPartialFields(t *testing.T) {
	s := NewStore()
	a := newAccount(t, s, "owner-1", "Checking", 0)
	ctx := context.Background()

	orig := insertTx(t, s, core.Transaction{
		ID:          "t1",
		OwnerID:     "owner-1",
		AccountID:   a.ID,
		Amount:      core.Money{Cents: 4550},
		Kind:        core.KindExpense,
		Description: "before",
		Tags:        []string{"one"},
		Date:        time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})

	desc := "after"
	updated := storage.TransactionUpdate{Description: &desc}.Apply(orig)
	err := s.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.UpdateTransaction(&updated)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetTransaction(ctx, "owner-1", "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Description != "after" {
		t.Errorf("description = %q", got.Description)
	}
	if got.Amount.Cents != 4550 || got.Kind != core.KindExpense {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "one" {
		t.Errorf("tags changed: %v", got.Tags)
	}
}
