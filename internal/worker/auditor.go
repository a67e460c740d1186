package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivstefano/personal-finance-manager/internal/amqp"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

// BalanceAuditor consumes ledger events and periodically re-derives
// each touched account's balance from its transaction history. A stored
// balance that disagrees with the derived one is logged as drift; the
// auditor never writes, it only reports.
type BalanceAuditor struct {
	storage    storage.Store
	amqpClient *amqp.Client
	interval   time.Duration

	mu      sync.Mutex
	watched map[accountRef]struct{}
}

type accountRef struct {
	ownerID   string
	accountID string
}

func NewBalanceAuditor(store storage.Store, amqpClient *amqp.Client, interval time.Duration) *BalanceAuditor {
	return &BalanceAuditor{
		storage:    store,
		amqpClient: amqpClient,
		interval:   interval,
		watched:    make(map[accountRef]struct{}),
	}
}

// HandleLedgerEvent records the account touched by a ledger event for
// the next audit sweep.
func (w *BalanceAuditor) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if msg.OwnerID == "" || msg.AccountID == "" {
		return fmt.Errorf("ledger event missing identity: %+v", msg)
	}

	slog.DebugContext(ctx, "Tracking account for audit",
		"owner_id", msg.OwnerID,
		"account_id", msg.AccountID,
		"action", msg.Action,
		"delta_cents", msg.DeltaCents)

	w.mu.Lock()
	w.watched[accountRef{ownerID: msg.OwnerID, accountID: msg.AccountID}] = struct{}{}
	w.mu.Unlock()
	return nil
}

// AuditAccount checks one account's stored balance against its initial
// balance plus the signed sum of its non-pending history. Returns true
// when they agree.
func (w *BalanceAuditor) AuditAccount(ctx context.Context, ownerID, accountID string) (bool, error) {
	account, err := w.storage.GetAccount(ctx, ownerID, accountID)
	if err != nil {
		return false, fmt.Errorf("get account: %w", err)
	}

	sum, err := w.storage.SignedTransactionSum(ctx, ownerID, accountID)
	if err != nil {
		return false, fmt.Errorf("signed transaction sum: %w", err)
	}

	derived := account.InitialBalance.Cents + sum
	if account.Balance.Cents == derived {
		return true, nil
	}

	slog.ErrorContext(ctx, "Balance drift detected",
		"owner_id", ownerID,
		"account_id", accountID,
		"stored_cents", account.Balance.Cents,
		"derived_cents", derived,
		"drift_cents", account.Balance.Cents-derived)
	return false, nil
}

// sweep audits every watched account and drops the ones that vanished.
func (w *BalanceAuditor) sweep(ctx context.Context) {
	w.mu.Lock()
	refs := make([]accountRef, 0, len(w.watched))
	for ref := range w.watched {
		refs = append(refs, ref)
	}
	w.mu.Unlock()

	drifted := 0
	for _, ref := range refs {
		ok, err := w.AuditAccount(ctx, ref.ownerID, ref.accountID)
		if err != nil {
			slog.WarnContext(ctx, "Audit failed, dropping account from watch set",
				"owner_id", ref.ownerID,
				"account_id", ref.accountID,
				"error", err)
			w.mu.Lock()
			delete(w.watched, ref)
			w.mu.Unlock()
			continue
		}
		if !ok {
			drifted++
		}
	}

	slog.InfoContext(ctx, "Audit sweep completed",
		"accounts", len(refs),
		"drifted", drifted)
}

// Run consumes ledger events and sweeps on the configured interval
// until the context ends.
func (w *BalanceAuditor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.amqpClient.ConsumeLedgerEvents(ctx, func(msg *amqp.LedgerEventMessage) error {
			return w.HandleLedgerEvent(ctx, msg)
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	})

	return g.Wait()
}
