// internal/ledger/ledger.go
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/util"

	"github.com/shopspring/decimal"
)

// Ledger is the only component allowed to change wallet balances. Every mutation goes
// through a LockSet obtained from LockWallets within the caller's unit of work.
type Ledger struct {
	wallets     repository.WalletRepository
	lockTimeout time.Duration
}

// NewLedger creates a Ledger. lockTimeout bounds each row-lock wait; zero waits forever.
func NewLedger(wallets repository.WalletRepository, lockTimeout time.Duration) *Ledger {
	return &Ledger{wallets: wallets, lockTimeout: lockTimeout}
}

// LockSet is the set of wallets locked by one unit of work, with their running balances.
type LockSet struct {
	q       repository.DBExecutor
	order   []int64
	wallets map[int64]*domain.Wallet
}

// LockWallets locks every distinct id in ascending order. Acquiring all locks in one
// global order is what keeps concurrent A->B and B->A transfers from deadlocking.
func (l *Ledger) LockWallets(ctx context.Context, q repository.DBExecutor, ids ...int64) (*LockSet, error) {
	order := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	if l.lockTimeout > 0 {
		if err := l.wallets.SetLockTimeout(ctx, q, l.lockTimeout); err != nil {
			return nil, fmt.Errorf("ledger: failed to set lock timeout: %w", err)
		}
	}

	set := &LockSet{q: q, order: order, wallets: make(map[int64]*domain.Wallet, len(order))}
	for _, id := range order {
		w, err := l.wallets.LockWalletByID(ctx, q, id)
		if err != nil {
			if util.IsError(err, util.ErrNotFound) {
				return nil, fmt.Errorf("ledger: wallet %d: %w", id, util.ErrWalletNotFound)
			}
			return nil, fmt.Errorf("ledger: failed to lock wallet %d: %w", id, err)
		}
		set.wallets[id] = w
	}
	return set, nil
}

// IDs returns the locked wallet ids in lock order.
func (s *LockSet) IDs() []int64 {
	return append([]int64(nil), s.order...)
}

// Balance returns the running balance of a locked wallet.
func (s *LockSet) Balance(id int64) (decimal.Decimal, error) {
	w, ok := s.wallets[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("wallet %d: %w", id, util.ErrWalletNotLocked)
	}
	return w.Balance, nil
}

// Debit subtracts amount from a locked wallet and returns the new balance.
func (l *Ledger) Debit(ctx context.Context, set *LockSet, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	w, err := set.mutable(walletID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.GreaterThan(w.Balance) {
		return decimal.Zero, fmt.Errorf("wallet %d: %w", walletID, util.ErrInsufficientFunds)
	}
	if amount.IsZero() {
		return w.Balance, nil
	}
	if err := l.wallets.UpdateWalletBalance(ctx, set.q, walletID, amount.Neg()); err != nil {
		return decimal.Zero, fmt.Errorf("ledger: failed to debit wallet %d: %w", walletID, err)
	}
	w.Balance = w.Balance.Sub(amount)
	return w.Balance, nil
}

// Credit adds amount to a locked wallet and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, set *LockSet, walletID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	w, err := set.mutable(walletID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsZero() {
		return w.Balance, nil
	}
	if err := l.wallets.UpdateWalletBalance(ctx, set.q, walletID, amount); err != nil {
		return decimal.Zero, fmt.Errorf("ledger: failed to credit wallet %d: %w", walletID, err)
	}
	w.Balance = w.Balance.Add(amount)
	return w.Balance, nil
}

func (s *LockSet) mutable(walletID int64, amount decimal.Decimal) (*domain.Wallet, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("ledger: negative amount %s: %w", amount, util.ErrInvalidInput)
	}
	w, ok := s.wallets[walletID]
	if !ok {
		return nil, fmt.Errorf("wallet %d: %w", walletID, util.ErrWalletNotLocked)
	}
	return w, nil
}
