// internal/service/payment_request.go
package service

import (
	"context"
	"fmt"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/util"
)

// RequestPayment records a PENDING payment from a customer to the calling merchant.
// No money moves until the customer approves it.
func (s *transactionService) RequestPayment(ctx context.Context, req PaymentRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(2)) {
		return nil, fmt.Errorf("amount must be positive with at most 2 decimal places: %w", util.ErrInvalidInput)
	}
	merchant, err := s.ActorRepo.GetActorByID(ctx, s.DBExecutor, req.MerchantID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, fmt.Errorf("request payment: failed to load actor %d: %w", req.MerchantID, err)
	}
	if !merchant.IsActive {
		return nil, util.ErrInactiveActor
	}
	if merchant.Role != domain.ActorRoleMerchant {
		return nil, fmt.Errorf("only merchants can request payments: %w", util.ErrInvalidInput)
	}
	merchantWallet, err := s.walletForActor(ctx, merchant.ID)
	if err != nil {
		return nil, err
	}
	if !merchantWallet.IsActive {
		return nil, fmt.Errorf("wallet %d is inactive: %w", merchantWallet.ID, util.ErrInactiveActor)
	}

	ident := req.CustomerIdentifier
	if ident == "" {
		return nil, fmt.Errorf("customer identifier is required: %w", util.ErrInvalidInput)
	}
	customer, err := s.ActorRepo.GetActorByIdentifier(ctx, s.DBExecutor, ident)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, fmt.Errorf("no actor for %q: %w", ident, util.ErrDestinationNotFound)
		}
		return nil, fmt.Errorf("request payment: failed to resolve customer: %w", err)
	}
	if !customer.IsActive {
		return nil, fmt.Errorf("customer %d is inactive: %w", customer.ID, util.ErrDestinationNotFound)
	}
	if customer.ID == merchant.ID {
		return nil, util.ErrSameWalletTransfer
	}
	customerWallet, err := s.WalletRepo.GetWalletByActorID(ctx, s.DBExecutor, customer.ID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, fmt.Errorf("actor %d has no wallet: %w", customer.ID, util.ErrDestinationNotFound)
		}
		return nil, fmt.Errorf("request payment: failed to load customer wallet: %w", err)
	}
	if customerWallet.Currency != merchantWallet.Currency {
		return nil, util.ErrCurrencyMismatch
	}

	description := req.Description
	if description == "" {
		description = "Payment to " + merchant.Label()
	}

	txController, err := s.BeginTx(ctx, s.DBBeginner)
	if err != nil {
		return nil, fmt.Errorf("request payment: failed to begin transaction: %w", err)
	}
	defer s.RollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("request payment: transaction controller does not implement DBExecutor")
	}

	ref, err := s.References.Generate(ctx, txExecutor, domain.TransactionTypePayment)
	if err != nil {
		return nil, err
	}
	pending := domain.NewPaymentRequest(customerWallet.ID, merchantWallet.ID, req.Amount, merchantWallet.Currency, description, s.Now())
	pending.Reference = ref
	if err := s.TransactionRepo.CreateTransaction(ctx, txExecutor, pending); err != nil {
		return nil, fmt.Errorf("request payment: failed to create transaction: %w", err)
	}
	if err := s.CommitTx(txController); err != nil {
		return nil, fmt.Errorf("request payment: failed to commit transaction: %w", err)
	}

	s.Logger.Info("Payment requested",
		"reference", pending.Reference,
		"merchant_id", merchant.ID,
		"customer_id", customer.ID,
		"amount", pending.Amount.StringFixed(2),
	)
	return pending, nil
}

// ApprovePayment settles a pending request with a COMPLETED payment from the caller.
// The request row is marked FAILED in the same unit of work.
func (s *transactionService) ApprovePayment(ctx context.Context, req PaymentApproval) (*domain.TransactionResult, error) {
	if req.Reference == "" {
		return nil, fmt.Errorf("payment request reference is required: %w", util.ErrInvalidInput)
	}
	pending, err := s.TransactionRepo.GetTransactionByReference(ctx, s.DBExecutor, req.Reference)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("approve payment: failed to load %s: %w", req.Reference, err)
	}
	var description string
	if pending.Description != nil {
		description = *pending.Description
	}
	return s.Execute(ctx, TransactionRequest{
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        req.ActorID,
		Type:           domain.TransactionTypePayment,
		Amount:         pending.Amount,
		Pin:            req.Pin,
		Description:    description,
		PaymentRequest: pending.Reference,
	})
}

// resolvePaymentRequest makes the requesting merchant the destination. Requests the caller
// does not owe look the same as missing ones.
func (s *transactionService) resolvePaymentRequest(ctx context.Context, p *plan) error {
	if p.req.Type != domain.TransactionTypePayment {
		return fmt.Errorf("only a PAYMENT can settle a payment request: %w", util.ErrInvalidInput)
	}
	ref := p.req.PaymentRequest
	notPending := fmt.Errorf("no pending payment request %s: %w", ref, util.ErrNotFound)

	pending, err := s.TransactionRepo.GetTransactionByReference(ctx, s.DBExecutor, ref)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return notPending
		}
		return fmt.Errorf("validate: failed to load payment request %s: %w", ref, err)
	}
	if !pending.IsPaymentRequest() || pending.SourceWalletID != p.source.ID || !pending.Amount.Equal(p.req.Amount) {
		return notPending
	}

	dest, err := s.WalletRepo.GetWalletByID(ctx, s.DBExecutor, *pending.DestWalletID)
	if err != nil {
		return fmt.Errorf("validate: failed to load merchant wallet: %w", err)
	}
	if !dest.IsActive || dest.ActorID == nil {
		return fmt.Errorf("merchant wallet %d is inactive: %w", dest.ID, util.ErrDestinationNotFound)
	}
	merchant, err := s.ActorRepo.GetActorByID(ctx, s.DBExecutor, *dest.ActorID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return fmt.Errorf("merchant for wallet %d: %w", dest.ID, util.ErrDestinationNotFound)
		}
		return fmt.Errorf("validate: failed to load merchant: %w", err)
	}
	if !merchant.IsActive || merchant.Role != domain.ActorRoleMerchant {
		return fmt.Errorf("merchant %d cannot be paid: %w", merchant.ID, util.ErrDestinationNotFound)
	}
	if dest.Currency != p.source.Currency {
		return util.ErrCurrencyMismatch
	}
	p.dest = dest
	p.pending = pending
	return nil
}
