// internal/service/wallet_service.go
package service

import (
	"context"
	"fmt"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/limit"
	"wallet-engine/internal/util"

	"github.com/shopspring/decimal"
)

func (s *transactionService) walletForActor(ctx context.Context, actorID int64) (*domain.Wallet, error) {
	wallet, err := s.WalletRepo.GetWalletByActorID(ctx, s.DBExecutor, actorID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet for actor %d: %w", actorID, err)
	}
	return wallet, nil
}

// GetWallet returns the caller's wallet.
func (s *transactionService) GetWallet(ctx context.Context, actorID int64) (*domain.Wallet, error) {
	return s.walletForActor(ctx, actorID)
}

// GetTransactionHistory retrieves a paginated list of transactions sent or received by the caller.
func (s *transactionService) GetTransactionHistory(ctx context.Context, actorID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	wallet, err := s.walletForActor(ctx, actorID)
	if err != nil {
		return nil, 0, err
	}

	transactions, totalCount, err := s.TransactionRepo.GetTransactionsByWalletID(ctx, s.DBExecutor, wallet.ID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}
	return transactions, totalCount, nil
}

// GetTransaction returns a transaction by reference if the caller is a party to it.
func (s *transactionService) GetTransaction(ctx context.Context, actorID int64, reference string) (*domain.Transaction, error) {
	wallet, err := s.walletForActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	t, err := s.TransactionRepo.GetTransactionByReference(ctx, s.DBExecutor, reference)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", reference, err)
	}
	if t.SourceWalletID != wallet.ID && (t.DestWalletID == nil || *t.DestWalletID != wallet.ID) {
		// Indistinguishable from a missing reference.
		return nil, util.ErrNotFound
	}
	return t, nil
}

// GetLimitUsage reports the caller's usage of their tier caps.
func (s *transactionService) GetLimitUsage(ctx context.Context, actorID int64) (*limit.Usage, error) {
	actor, err := s.ActorRepo.GetActorByID(ctx, s.DBExecutor, actorID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get actor %d: %w", actorID, err)
	}
	wallet, err := s.walletForActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.Limits.Usage(ctx, s.DBExecutor, actor, wallet.ID, s.Now())
}

// QuoteCharge returns the fee the caller would pay for amount, without touching any wallet.
func (s *transactionService) QuoteCharge(ctx context.Context, actorID int64, txType domain.TransactionType, amount decimal.Decimal) (*ChargeQuote, error) {
	if !txType.Valid() {
		return nil, fmt.Errorf("unknown transaction type %q: %w", txType, util.ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", util.ErrInvalidInput)
	}
	actor, err := s.ActorRepo.GetActorByID(ctx, s.DBExecutor, actorID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get actor %d: %w", actorID, err)
	}

	ch := s.Charges.Compute(txType, actor.Role, amount)
	total := amount
	if ch.AppliesTo == domain.ChargePartySender {
		total = amount.Add(ch.Fee)
	}
	return &ChargeQuote{
		Type:      txType,
		Amount:    amount,
		Fee:       ch.Fee,
		AppliesTo: ch.AppliesTo,
		Total:     total,
	}, nil
}
