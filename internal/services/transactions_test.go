package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/ledger"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
	"github.com/ivstefano/personal-finance-manager/internal/storage/memory"
)

func newTransactionFixture(t *testing.T) (*TransactionService, *memory.Store, *core.Account) {
	t.Helper()
	store := memory.NewStore()
	svc := NewTransactionService(store, ledger.NewEngine(store), nil)

	acc := &core.Account{
		OwnerID: "owner-1",
		Name:    "Checking",
		Type:    core.AccountChecking,
		Balance: core.Money{Cents: 100000},
	}
	if err := store.CreateAccount(context.Background(), acc); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return svc, store, acc
}

func seedExpenses(t *testing.T, svc *TransactionService, accountID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.CreateTransaction(context.Background(), core.Transaction{
			OwnerID:     "owner-1",
			AccountID:   accountID,
			Amount:      core.Money{Cents: 100},
			Kind:        core.KindExpense,
			Description: fmt.Sprintf("expense %d", i),
			Date:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("create expense %d: %v", i, err)
		}
	}
}

func TestListRecentDefaultsAndPaginates(t *testing.T) {
	svc, _, acc := newTransactionFixture(t)
	seedExpenses(t, svc, acc.ID, 60)

	rows, err := svc.ListRecent(context.Background(), "owner-1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != defaultListLimit {
		t.Fatalf("default limit: got %d rows, want %d", len(rows), defaultListLimit)
	}
	if rows[0].Description != "expense 59" {
		t.Errorf("expected newest first, got %q", rows[0].Description)
	}

	page2, err := svc.ListRecent(context.Background(), "owner-1", 50, 50)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 10 {
		t.Errorf("page 2: got %d rows, want 10", len(page2))
	}
}

func TestSearchCapsResults(t *testing.T) {
	svc, _, acc := newTransactionFixture(t)
	seedExpenses(t, svc, acc.ID, 120)

	rows, err := svc.Search(context.Background(), "owner-1", storage.TransactionFilter{}, 500)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != maxSearchLimit {
		t.Errorf("cap: got %d rows, want %d", len(rows), maxSearchLimit)
	}
}

func TestSearchByQueryAndRange(t *testing.T) {
	svc, _, acc := newTransactionFixture(t)
	ctx := context.Background()

	for _, tc := range []struct {
		desc  string
		cents int64
		date  time.Time
	}{
		{"Coffee at Blue Bottle", 475, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"Weekly groceries", 8950, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)},
		{"coffee beans", 1800, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
	} {
		if _, err := svc.CreateTransaction(ctx, core.Transaction{
			OwnerID:     "owner-1",
			AccountID:   acc.ID,
			Amount:      core.Money{Cents: tc.cents},
			Kind:        core.KindExpense,
			Description: tc.desc,
			Date:        tc.date,
		}); err != nil {
			t.Fatalf("create %q: %v", tc.desc, err)
		}
	}

	rows, err := svc.Search(ctx, "owner-1", storage.TransactionFilter{Query: "coffee"}, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("query match: got %d rows, want 2", len(rows))
	}

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	min := core.Money{Cents: 1000}
	rows, err = svc.Search(ctx, "owner-1", storage.TransactionFilter{
		StartDate: &start,
		EndDate:   &end,
		MinAmount: &min,
	}, 0)
	if err != nil {
		t.Fatalf("search range: %v", err)
	}
	if len(rows) != 1 || rows[0].Description != "Weekly groceries" {
		t.Fatalf("range match: got %d rows", len(rows))
	}
}

func TestMonthlySpendingExcludesPendingAndIncome(t *testing.T) {
	svc, _, acc := newTransactionFixture(t)
	ctx := context.Background()

	mk := func(kind core.TransactionKind, cents int64, pending bool) {
		if _, err := svc.CreateTransaction(ctx, core.Transaction{
			OwnerID:     "owner-1",
			AccountID:   acc.ID,
			Amount:      core.Money{Cents: cents},
			Kind:        kind,
			Pending:     pending,
			Description: "march activity",
			Date:        time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	mk(core.KindExpense, 5000, false)
	mk(core.KindExpense, 2500, false)
	mk(core.KindExpense, 9999, true)  // pending, excluded
	mk(core.KindIncome, 100000, false)

	total, err := svc.MonthlySpending(ctx, "owner-1", 2026, 3)
	if err != nil {
		t.Fatalf("monthly spending: %v", err)
	}
	if total.Cents != 7500 {
		t.Errorf("monthly spending = %d, want 7500", total.Cents)
	}
}

func TestDeleteTransactionNotFoundForForeignOwner(t *testing.T) {
	svc, _, acc := newTransactionFixture(t)
	ctx := context.Background()

	created, err := svc.CreateTransaction(ctx, core.Transaction{
		OwnerID:     "owner-1",
		AccountID:   acc.ID,
		Amount:      core.Money{Cents: 100},
		Kind:        core.KindExpense,
		Description: "mine",
		Date:        time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeleteTransaction(ctx, "owner-2", created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteTransaction(ctx, "owner-1", created.ID); err != nil {
		t.Errorf("owner delete failed: %v", err)
	}
}
