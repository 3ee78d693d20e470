// internal/repository/postgres/transaction_pg.go
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

const transactionColumns = `id, reference, type, source_wallet_id, dest_wallet_id, amount, fee, fee_bearer, currency,
	status, idempotency_key, source_balance_after, description, created_at, completed_at`

// TransactionRepository implements repository.TransactionRepository for PostgreSQL.
type TransactionRepository struct{}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *sqlx.DB) repository.TransactionRepository {
	return &TransactionRepository{}
}

// CreateTransaction inserts a new transaction record into the database using the provided DBExecutor.
func (r *TransactionRepository) CreateTransaction(ctx context.Context, q repository.DBExecutor, transaction *domain.Transaction) error {
	query := `INSERT INTO transactions (reference, type, source_wallet_id, dest_wallet_id, amount, fee, fee_bearer, currency,
                  status, idempotency_key, source_balance_after, description, created_at, completed_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`

	err := q.QueryRowContext(ctx, query,
		transaction.Reference,
		transaction.Type,
		transaction.SourceWalletID,
		transaction.DestWalletID,
		transaction.Amount,
		transaction.Fee,
		transaction.FeeBearer,
		transaction.Currency,
		transaction.Status,
		transaction.IdempotencyKey,
		transaction.SourceBalanceAfter,
		transaction.Description,
		transaction.CreatedAt,
		transaction.CompletedAt,
	).Scan(&transaction.ID)

	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", mapError(err))
	}
	return nil
}

// GetTransactionByID retrieves a transaction by its primary key.
func (r *TransactionRepository) GetTransactionByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if err := q.GetContext(ctx, &tx, query, id); err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, mapError(err))
	}
	return &tx, nil
}

// GetTransactionByReference retrieves a transaction by its reference.
func (r *TransactionRepository) GetTransactionByReference(ctx context.Context, q repository.DBExecutor, reference string) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	if err := q.GetContext(ctx, &tx, query, reference); err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", reference, mapError(err))
	}
	return &tx, nil
}

// GetTransactionByIdempotencyKey retrieves the transaction persisted for an idempotency key.
func (r *TransactionRepository) GetTransactionByIdempotencyKey(ctx context.Context, q repository.DBExecutor, key string) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`
	if err := q.GetContext(ctx, &tx, query, key); err != nil {
		return nil, fmt.Errorf("failed to get transaction for idempotency key: %w", mapError(err))
	}
	return &tx, nil
}

// FailPendingTransaction moves a PENDING row to FAILED. The status condition makes a second
// settlement of the same row a no-op that is reported as not found.
func (r *TransactionRepository) FailPendingTransaction(ctx context.Context, q repository.DBExecutor, transaction *domain.Transaction) error {
	query := `UPDATE transactions SET status = $2, description = $3 WHERE id = $1 AND status = $4`
	res, err := q.ExecContext(ctx, query, transaction.ID, transaction.Status, transaction.Description, domain.TransactionStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", transaction.ID, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", transaction.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %d is not pending: %w", transaction.ID, util.ErrNotFound)
	}
	return nil
}

// ReferenceExists reports whether a reference is already used.
func (r *TransactionRepository) ReferenceExists(ctx context.Context, q repository.DBExecutor, reference string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM transactions WHERE reference = $1)`
	if err := q.GetContext(ctx, &exists, query, reference); err != nil {
		return false, fmt.Errorf("failed to check reference %s: %w", reference, mapError(err))
	}
	return exists, nil
}

// SumSentSince totals the amounts of COMPLETED transactions debited from a wallet since an instant.
func (r *TransactionRepository) SumSentSince(ctx context.Context, q repository.DBExecutor, walletID int64, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE source_wallet_id = $1
		  AND status = $2
		  AND completed_at >= $3
		  AND NOT (type = $4 AND dest_wallet_id IS NULL)`
	err := q.GetContext(ctx, &total, query, walletID, domain.TransactionStatusCompleted, since, domain.TransactionTypeDeposit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum sent amounts for wallet %d: %w", walletID, mapError(err))
	}
	return total, nil
}

// GetTransactionsByWalletID retrieves a paginated list of transactions for a specific wallet.
// It performs two queries: one for the data and one for the total count.
func (r *TransactionRepository) GetTransactionsByWalletID(ctx context.Context, q repository.DBExecutor, walletID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	transactions := []domain.Transaction{}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE source_wallet_id = $1 OR dest_wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	err := q.SelectContext(ctx, &transactions, query, walletID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions for wallet %d: %w", walletID, err)
	}

	var totalCount int64
	countQuery := `
		SELECT COUNT(*)
		FROM transactions
		WHERE source_wallet_id = $1 OR dest_wallet_id = $1`
	err = q.GetContext(ctx, &totalCount, countQuery, walletID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get total transaction count for wallet %d: %w", walletID, err)
	}

	return transactions, totalCount, nil
}

