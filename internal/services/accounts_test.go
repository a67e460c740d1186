package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
	"github.com/ivstefano/personal-finance-manager/internal/storage/memory"
)

func TestNetWorthSkipsHiddenAndSubtractsDebt(t *testing.T) {
	store := memory.NewStore()
	svc := NewAccountService(store)
	ctx := context.Background()

	mk := func(name string, typ core.AccountType, cents int64, hidden bool) {
		a := core.Account{
			OwnerID: "owner-1",
			Name:    name,
			Type:    typ,
			Balance: core.Money{Cents: cents},
			Hidden:  hidden,
		}
		if err := store.CreateAccount(ctx, &a); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	mk("Checking", core.AccountChecking, 250000, false)
	mk("Savings", core.AccountSavings, 1000000, false)
	mk("Card", core.AccountCreditCard, -40000, false)
	mk("Stash", core.AccountCash, 99900, true) // hidden, excluded

	got, err := svc.NetWorth(ctx, "owner-1")
	if err != nil {
		t.Fatalf("net worth: %v", err)
	}
	if want := int64(250000 + 1000000 - 40000); got.Cents != want {
		t.Errorf("net worth = %d, want %d", got.Cents, want)
	}
}

func TestNetWorthDebtMagnitudeRegardlessOfSign(t *testing.T) {
	store := memory.NewStore()
	svc := NewAccountService(store)
	ctx := context.Background()

	// A loan recorded with a positive principal still reduces net worth.
	loan := core.Account{
		OwnerID: "owner-1",
		Name:    "Car Loan",
		Type:    core.AccountLoan,
		Balance: core.Money{Cents: 1500000},
	}
	if err := store.CreateAccount(ctx, &loan); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.NetWorth(ctx, "owner-1")
	if err != nil {
		t.Fatalf("net worth: %v", err)
	}
	if got.Cents != -1500000 {
		t.Errorf("net worth = %d, want -1500000", got.Cents)
	}
}

func TestCreateAccountValidates(t *testing.T) {
	svc := NewAccountService(memory.NewStore())

	_, err := svc.CreateAccount(context.Background(), core.Account{
		OwnerID: "owner-1",
		Name:    "",
		Type:    core.AccountChecking,
	})
	if !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
}

func TestUpdateAccountBalanceBumpsVersion(t *testing.T) {
	store := memory.NewStore()
	svc := NewAccountService(store)
	ctx := context.Background()

	a := core.Account{
		OwnerID: "owner-1",
		Name:    "Checking",
		Type:    core.AccountChecking,
		Balance: core.Money{Cents: 10000},
	}
	if err := store.CreateAccount(ctx, &a); err != nil {
		t.Fatalf("create: %v", err)
	}

	corrected := core.Money{Cents: 12345}
	updated, err := svc.UpdateAccount(ctx, "owner-1", a.ID, storage.AccountUpdate{Balance: &corrected})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Balance.Cents != 12345 {
		t.Errorf("balance = %d, want 12345", updated.Balance.Cents)
	}
	if updated.Version != a.Version+1 {
		t.Errorf("version = %d, want %d", updated.Version, a.Version+1)
	}
}

func TestDeactivateAccountHidesFromListing(t *testing.T) {
	store := memory.NewStore()
	svc := NewAccountService(store)
	ctx := context.Background()

	a := core.Account{OwnerID: "owner-1", Name: "Old", Type: core.AccountChecking}
	if err := store.CreateAccount(ctx, &a); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeactivateAccount(ctx, "owner-1", a.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	accounts, err := svc.ListAccounts(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("deactivated account still listed: %d", len(accounts))
	}

	if err := svc.DeactivateAccount(ctx, "owner-2", a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("foreign deactivate: expected ErrNotFound, got %v", err)
	}
}
