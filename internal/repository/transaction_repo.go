// internal/repository/transaction_repo.go
package repository

import (
	"context"
	"time"

	"wallet-engine/internal/domain"

	"github.com/shopspring/decimal"
)

// TransactionRepository defines the interface for transaction data operations.
type TransactionRepository interface {
	// CreateTransaction adds a new transaction record using the provided DBExecutor.
	CreateTransaction(ctx context.Context, q DBExecutor, transaction *domain.Transaction) error
	// GetTransactionByID retrieves a transaction by its primary key.
	GetTransactionByID(ctx context.Context, q DBExecutor, id int64) (*domain.Transaction, error)
	// GetTransactionByReference retrieves a transaction by its public reference.
	GetTransactionByReference(ctx context.Context, q DBExecutor, reference string) (*domain.Transaction, error)
	// GetTransactionByIdempotencyKey retrieves the transaction persisted for a request key.
	GetTransactionByIdempotencyKey(ctx context.Context, q DBExecutor, key string) (*domain.Transaction, error)
	// FailPendingTransaction stores the FAILED status and description of a transaction that was
	// PENDING. It returns util.ErrNotFound when the row is no longer PENDING.
	FailPendingTransaction(ctx context.Context, q DBExecutor, transaction *domain.Transaction) error
	// ReferenceExists reports whether a reference is already taken.
	ReferenceExists(ctx context.Context, q DBExecutor, reference string) (bool, error)
	// SumSentSince totals COMPLETED amounts debited from walletID since the given instant.
	// External deposits credit the source wallet and are excluded.
	SumSentSince(ctx context.Context, q DBExecutor, walletID int64, since time.Time) (decimal.Decimal, error)
	// GetTransactionsByWalletID retrieves sent and received transactions, newest first, with a total count.
	GetTransactionsByWalletID(ctx context.Context, q DBExecutor, walletID int64, limit, offset int) ([]domain.Transaction, int64, error)
}
