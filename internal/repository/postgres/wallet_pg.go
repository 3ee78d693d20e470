// internal/repository/postgres/wallet_pg.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, actor_id, currency, balance, is_active, is_system, created_at, updated_at`

// WalletRepository implements repository.WalletRepository for PostgreSQL.
type WalletRepository struct{}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) repository.WalletRepository {
	return &WalletRepository{}
}

// CreateWallet inserts a new wallet into the database using the provided DBExecutor.
func (r *WalletRepository) CreateWallet(ctx context.Context, q repository.DBExecutor, wallet *domain.Wallet) error {
	query := `INSERT INTO wallets (actor_id, currency, balance, is_active, is_system, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := q.QueryRowContext(ctx, query,
		wallet.ActorID, wallet.Currency, wallet.Balance, wallet.IsActive, wallet.IsSystem, wallet.CreatedAt, wallet.UpdatedAt,
	).Scan(&wallet.ID)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", mapError(err))
	}
	return nil
}

// GetWalletByID retrieves a wallet by its ID without locking it.
func (r *WalletRepository) GetWalletByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	if err := q.GetContext(ctx, &wallet, query, id); err != nil {
		return nil, fmt.Errorf("failed to get wallet by ID %d: %w", id, mapError(err))
	}
	return &wallet, nil
}

// GetWalletByActorID retrieves the wallet owned by an actor.
func (r *WalletRepository) GetWalletByActorID(ctx context.Context, q repository.DBExecutor, actorID int64) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE actor_id = $1`
	if err := q.GetContext(ctx, &wallet, query, actorID); err != nil {
		return nil, fmt.Errorf("failed to get wallet for actor %d: %w", actorID, mapError(err))
	}
	return &wallet, nil
}

// GetSystemWallet retrieves the fee-collection wallet for a currency.
func (r *WalletRepository) GetSystemWallet(ctx context.Context, q repository.DBExecutor, currency string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE is_system AND currency = $1`
	if err := q.GetContext(ctx, &wallet, query, currency); err != nil {
		return nil, fmt.Errorf("failed to get system wallet for %s: %w", currency, mapError(err))
	}
	return &wallet, nil
}

// SetLockTimeout sets lock_timeout for the rest of the current transaction.
func (r *WalletRepository) SetLockTimeout(ctx context.Context, q repository.DBExecutor, timeout time.Duration) error {
	// SET does not accept bind parameters; the value is formatted from an integer.
	query := fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, timeout.Milliseconds())
	if _, err := q.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", mapError(err))
	}
	return nil
}

// LockWalletByID locks the wallet row with SELECT ... FOR UPDATE and returns its current state.
func (r *WalletRepository) LockWalletByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`
	if err := q.GetContext(ctx, &wallet, query, id); err != nil {
		return nil, fmt.Errorf("failed to lock wallet %d: %w", id, mapError(err))
	}
	return &wallet, nil
}

// UpdateWalletBalance adds delta to the balance of a specific wallet.
// The balance guard in the WHERE clause keeps the row non-negative even if a caller skipped the check.
func (r *WalletRepository) UpdateWalletBalance(ctx context.Context, q repository.DBExecutor, walletID int64, delta decimal.Decimal) error {
	query := `UPDATE wallets SET balance = balance + $1, updated_at = $2 WHERE id = $3 AND balance + $1 >= 0`
	result, err := q.ExecContext(ctx, query, delta, time.Now().UTC(), walletID)
	if err != nil {
		return fmt.Errorf("failed to update wallet balance for ID %d: %w", walletID, mapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating wallet balance for ID %d: %w", walletID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wallet %d not updated: %w", walletID, util.ErrInsufficientFunds)
	}
	return nil
}
