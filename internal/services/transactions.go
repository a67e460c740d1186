package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ivstefano/personal-finance-manager/internal/amqp"
	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/ledger"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

const (
	defaultListLimit = 50
	maxSearchLimit   = 100
)

// TransactionService routes mutations through the ledger engine and
// publishes ledger events for downstream consumers.
type TransactionService struct {
	storage    storage.Store
	engine     *ledger.Engine
	amqpClient *amqp.Client
}

func NewTransactionService(store storage.Store, engine *ledger.Engine, amqpClient *amqp.Client) *TransactionService {
	return &TransactionService{
		storage:    store,
		engine:     engine,
		amqpClient: amqpClient,
	}
}

// CreateTransaction posts a transaction and its balance effects
// atomically, then publishes a ledger event.
func (s *TransactionService) CreateTransaction(ctx context.Context, t core.Transaction) (*core.Transaction, error) {
	created, err := s.engine.Create(ctx, t)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, created, amqp.ActionPosted)
	return created, nil
}

func (s *TransactionService) UpdateTransaction(ctx context.Context, ownerID, id string, u storage.TransactionUpdate) (*core.Transaction, error) {
	updated, err := s.engine.Update(ctx, ownerID, id, u)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, updated, amqp.ActionUpdated)
	return updated, nil
}

func (s *TransactionService) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	t, err := s.storage.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.engine.Delete(ctx, ownerID, id); err != nil {
		return err
	}

	s.publishEvent(ctx, t, amqp.ActionReversed)
	return nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, ownerID, id string) (*core.Transaction, error) {
	return s.storage.GetTransaction(ctx, ownerID, id)
}

// ListRecent returns the owner's transactions newest first, joined with
// account and category display names. Limit defaults to 50.
func (s *TransactionService) ListRecent(ctx context.Context, ownerID string, limit, offset int) ([]storage.TransactionRow, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.storage.ListTransactions(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return rows, nil
}

// Search applies the filter and returns at most 100 rows, newest first.
func (s *TransactionService) Search(ctx context.Context, ownerID string, f storage.TransactionFilter, limit int) ([]storage.TransactionRow, error) {
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	rows, err := s.storage.SearchTransactions(ctx, ownerID, f, limit)
	if err != nil {
		return nil, fmt.Errorf("search transactions: %w", err)
	}
	return rows, nil
}

// SpendingByCategory aggregates expense totals per category over the
// inclusive date range. Pending holds are included here; only the
// monthly scalar filters them out.
func (s *TransactionService) SpendingByCategory(ctx context.Context, ownerID string, start, end time.Time) ([]storage.CategorySpend, error) {
	return s.storage.SpendingByCategory(ctx, ownerID, start, end)
}

// MonthlySpending totals the owner's non-pending expenses for one
// calendar month.
func (s *TransactionService) MonthlySpending(ctx context.Context, ownerID string, year, month int) (core.Money, error) {
	return s.storage.MonthlySpending(ctx, ownerID, year, month)
}

// publishEvent is best effort: the transaction is already committed, a
// publish failure must not surface to the caller.
func (s *TransactionService) publishEvent(ctx context.Context, t *core.Transaction, action string) {
	if s.amqpClient == nil {
		return
	}

	delta := ledger.SignedDelta(*t)
	if action == amqp.ActionReversed {
		delta = -delta
	}

	msg := amqp.NewLedgerEventMessage(t.ID, t.OwnerID, t.AccountID, delta, action)
	if err := s.amqpClient.PublishLedgerEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"transaction_id", t.ID,
			"action", action,
			"error", err)
	}
}

// Close closes both storage and AMQP connections
func (s *TransactionService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %v", errs)
	}

	return nil
}
