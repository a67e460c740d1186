// Package ledger keeps an account's stored balance in agreement with
// the history of transactions posted against it.
//
// The invariant: balance = initial balance + signed sum of all
// non-pending transactions touching the account, where income
// contributes +amount, expense -amount, and a transfer -amount on the
// source and +amount on the destination. Pending transactions
// contribute nothing until resolved.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ivstefano/personal-finance-manager/internal/core"
	"github.com/ivstefano/personal-finance-manager/internal/storage"
)

// maxRetries bounds the compare-and-swap retry loop before a conflict
// is surfaced to the caller.
const maxRetries = 3

// errStaleLockSet signals that the transaction's account references
// changed between the unlocked pre-read and the locked re-read; the
// operation restarts with a fresh lock set.
var errStaleLockSet = errors.New("stale lock set")

// Engine is the balance maintenance engine. Every transaction mutation
// goes through it: the record write and the paired balance adjustments
// happen inside a single store transaction, under per-account mutexes
// acquired in globally consistent (sorted) order.
type Engine struct {
	store storage.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(store storage.Store) *Engine {
	return &Engine{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

type accountDelta struct {
	accountID string
	cents     int64
}

// effectiveDeltas returns the balance contributions of a transaction.
// Pending transactions contribute nothing, so pending toggles fall out
// of the same mechanism: un-pending applies the create deltas, pending
// applies the delete reversal.
func effectiveDeltas(t *core.Transaction) []accountDelta {
	if t.Pending {
		return nil
	}
	switch t.Kind {
	case core.KindIncome:
		return []accountDelta{{t.AccountID, t.Amount.Cents}}
	case core.KindExpense:
		return []accountDelta{{t.AccountID, -t.Amount.Cents}}
	case core.KindTransfer:
		return []accountDelta{
			{t.AccountID, -t.Amount.Cents},
			{t.TransferAccountID, t.Amount.Cents},
		}
	}
	return nil
}

// SignedDelta is the contribution of t to its primary account, in minor
// units. Zero for pending transactions.
func SignedDelta(t core.Transaction) int64 {
	for _, d := range effectiveDeltas(&t) {
		if d.accountID == t.AccountID {
			return d.cents
		}
	}
	return 0
}

// mergeDeltas sums contributions per account, drops zero entries and
// returns them in a deterministic order.
func mergeDeltas(deltas ...[]accountDelta) []accountDelta {
	sums := make(map[string]int64)
	for _, ds := range deltas {
		for _, d := range ds {
			sums[d.accountID] += d.cents
		}
	}
	out := make([]accountDelta, 0, len(sums))
	for id, cents := range sums {
		if cents != 0 {
			out = append(out, accountDelta{id, cents})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].accountID < out[j].accountID })
	return out
}

func negate(ds []accountDelta) []accountDelta {
	out := make([]accountDelta, len(ds))
	for i, d := range ds {
		out[i] = accountDelta{d.accountID, -d.cents}
	}
	return out
}

// involvedAccounts lists the unique account IDs a transaction touches,
// independent of its pending state.
func involvedAccounts(ts ...*core.Transaction) []string {
	seen := make(map[string]struct{})
	for _, t := range ts {
		if t == nil {
			continue
		}
		seen[t.AccountID] = struct{}{}
		if t.Kind == core.KindTransfer && t.TransferAccountID != "" {
			seen[t.TransferAccountID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) accountLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.locks[id]; !ok {
		e.locks[id] = &sync.Mutex{}
	}
	return e.locks[id]
}

// lockAccounts acquires the mutex of every listed account in sorted ID
// order, so two concurrent transfers over the same pair can never
// deadlock. The returned func releases in reverse order.
func (e *Engine) lockAccounts(ids []string) func() {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		m := e.accountLock(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func subset(ids, of []string) bool {
	for _, id := range ids {
		if !contains(of, id) {
			return false
		}
	}
	return true
}

// applyDeltas verifies each account exists under the owner, then
// applies the merged deltas with a version compare-and-swap. Called
// inside a store transaction.
func applyDeltas(tx storage.Tx, ownerID string, deltas []accountDelta) error {
	now := time.Now().UTC()
	for _, d := range deltas {
		a, err := tx.GetAccount(ownerID, d.accountID)
		if err != nil {
			return err
		}
		if err := tx.ApplyBalanceDelta(ownerID, d.accountID, d.cents, a.Version, now); err != nil {
			return err
		}
	}
	return nil
}

// Create validates and posts a new transaction. The row insert and the
// balance adjustments commit or roll back together.
func (e *Engine) Create(ctx context.Context, t core.Transaction) (*core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	unlock := e.lockAccounts(involvedAccounts(&t))
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := e.store.WithinTx(ctx, func(tx storage.Tx) error {
			// Account existence is checked even for pending transactions.
			for _, id := range involvedAccounts(&t) {
				if _, err := tx.GetAccount(t.OwnerID, id); err != nil {
					return err
				}
			}
			if err := tx.InsertTransaction(&t); err != nil {
				return err
			}
			return applyDeltas(tx, t.OwnerID, mergeDeltas(effectiveDeltas(&t)))
		})
		if errors.Is(err, storage.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Transaction posted",
			"transaction_id", t.ID,
			"owner_id", t.OwnerID,
			"account_id", t.AccountID,
			"kind", t.Kind,
			"amount_cents", t.Amount.Cents,
			"pending", t.Pending)
		return &t, nil
	}
	return nil, lastErr
}

// Update applies a partial field set to an existing transaction and
// settles the net balance effect: old effective deltas are reversed,
// new effective deltas applied, including when the account references
// or the pending flag change.
func (e *Engine) Update(ctx context.Context, ownerID, id string, u storage.TransactionUpdate) (*core.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		// Unlocked pre-read to learn which accounts need locking.
		old, err := e.store.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return nil, err
		}
		planned := u.Apply(*old)
		if err := planned.Validate(); err != nil {
			return nil, err
		}

		lockIDs := involvedAccounts(old, &planned)
		unlock := e.lockAccounts(lockIDs)

		var updated core.Transaction
		err = e.store.WithinTx(ctx, func(tx storage.Tx) error {
			cur, err := tx.GetTransaction(ownerID, id)
			if err != nil {
				return err
			}
			if !subset(involvedAccounts(cur), lockIDs) {
				return errStaleLockSet
			}
			next := u.Apply(*cur)
			next.ID = cur.ID
			next.OwnerID = cur.OwnerID
			if err := next.Validate(); err != nil {
				return err
			}
			if !subset(involvedAccounts(&next), lockIDs) {
				return errStaleLockSet
			}
			for _, accID := range involvedAccounts(cur, &next) {
				if _, err := tx.GetAccount(ownerID, accID); err != nil {
					return err
				}
			}
			if err := tx.UpdateTransaction(&next); err != nil {
				return err
			}
			net := mergeDeltas(negate(effectiveDeltas(cur)), effectiveDeltas(&next))
			if err := applyDeltas(tx, ownerID, net); err != nil {
				return err
			}
			updated = next
			return nil
		})
		unlock()

		if errors.Is(err, errStaleLockSet) || errors.Is(err, storage.ErrConflict) {
			lastErr = storage.ErrConflict
			continue
		}
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Transaction updated",
			"transaction_id", id,
			"owner_id", ownerID,
			"account_id", updated.AccountID,
			"amount_cents", updated.Amount.Cents)
		return &updated, nil
	}
	return nil, lastErr
}

// Delete removes a transaction and reverses its balance effect using
// its state at deletion time. Deleting an absent transaction returns
// ErrNotFound and never applies a second reversal.
func (e *Engine) Delete(ctx context.Context, ownerID, id string) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		old, err := e.store.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return err
		}

		lockIDs := involvedAccounts(old)
		unlock := e.lockAccounts(lockIDs)

		err = e.store.WithinTx(ctx, func(tx storage.Tx) error {
			cur, err := tx.GetTransaction(ownerID, id)
			if err != nil {
				return err
			}
			if !subset(involvedAccounts(cur), lockIDs) {
				return errStaleLockSet
			}
			if err := tx.DeleteTransaction(ownerID, id); err != nil {
				return err
			}
			return applyDeltas(tx, ownerID, mergeDeltas(negate(effectiveDeltas(cur))))
		})
		unlock()

		if errors.Is(err, errStaleLockSet) || errors.Is(err, storage.ErrConflict) {
			lastErr = storage.ErrConflict
			continue
		}
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "Transaction deleted",
			"transaction_id", id,
			"owner_id", ownerID)
		return nil
	}
	return lastErr
}
