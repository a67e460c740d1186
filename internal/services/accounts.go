package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

// AccountService handles account lifecycle and derived account figures.
type AccountService struct {
	storage storage.Store
}

func NewAccountService(store storage.Store) *AccountService {
	return &AccountService{storage: store}
}

func (s *AccountService) ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error) {
	accounts, err := s.storage.ListAccounts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (s *AccountService) GetAccount(ctx context.Context, ownerID, id string) (*core.Account, error) {
	return s.storage.GetAccount(ctx, ownerID, id)
}

func (s *AccountService) CreateAccount(ctx context.Context, a core.Account) (*core.Account, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	if err := s.storage.CreateAccount(ctx, &a); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Account created",
		"account_id", a.ID,
		"owner_id", a.OwnerID,
		"type", a.Type)

	return &a, nil
}

// UpdateAccount applies a partial update. A direct balance edit is an
// owner-initiated correction, not a ledger posting; it does not touch
// transaction history.
func (s *AccountService) UpdateAccount(ctx context.Context, ownerID, id string, u storage.AccountUpdate) (*core.Account, error) {
	updated, err := s.storage.UpdateAccount(ctx, ownerID, id, u)
	if err != nil {
		return nil, err
	}

	if u.Balance != nil {
		slog.InfoContext(ctx, "Account balance corrected",
			"account_id", id,
			"owner_id", ownerID,
			"balance_cents", u.Balance.Cents)
	}

	return updated, nil
}

// DeactivateAccount soft deletes an account. Its transaction history
// stays in place.
func (s *AccountService) DeactivateAccount(ctx context.Context, ownerID, id string) error {
	if err := s.storage.DeactivateAccount(ctx, ownerID, id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Account deactivated", "account_id", id, "owner_id", ownerID)
	return nil
}

// NetWorth sums active, visible account balances; debt accounts
// subtract the magnitude they owe.
func (s *AccountService) NetWorth(ctx context.Context, ownerID string) (core.Money, error) {
	accounts, err := s.storage.ListAccounts(ctx, ownerID)
	if err != nil {
		return core.Money{}, fmt.Errorf("list accounts: %w", err)
	}

	visible := accounts[:0]
	for _, a := range accounts {
		if !a.Hidden {
			visible = append(visible, a)
		}
	}
	return core.NetWorth(visible), nil
}
