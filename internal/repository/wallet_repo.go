// internal/repository/wallet_repo.go
package repository

import (
	"context"
	"time"

	"wallet-engine/internal/domain"

	"github.com/shopspring/decimal"
)

// WalletRepository defines the interface for wallet data operations.
type WalletRepository interface {
	// CreateWallet adds a new wallet using the provided DBExecutor.
	CreateWallet(ctx context.Context, q DBExecutor, wallet *domain.Wallet) error
	// GetWalletByID reads a wallet without locking it.
	GetWalletByID(ctx context.Context, q DBExecutor, id int64) (*domain.Wallet, error)
	// GetWalletByActorID reads the wallet owned by an actor.
	GetWalletByActorID(ctx context.Context, q DBExecutor, actorID int64) (*domain.Wallet, error)
	// GetSystemWallet reads the fee-collection wallet for a currency.
	GetSystemWallet(ctx context.Context, q DBExecutor, currency string) (*domain.Wallet, error)
	// SetLockTimeout bounds how long subsequent row locks in q may wait.
	SetLockTimeout(ctx context.Context, q DBExecutor, timeout time.Duration) error
	// LockWalletByID takes a row lock on the wallet and returns its current state.
	// q must be a transaction; the lock is released on commit or rollback.
	LockWalletByID(ctx context.Context, q DBExecutor, id int64) (*domain.Wallet, error)
	// UpdateWalletBalance adds delta to the balance. It fails with util.ErrInsufficientFunds
	// rather than let the balance go negative.
	UpdateWalletBalance(ctx context.Context, q DBExecutor, walletID int64, delta decimal.Decimal) error
}
