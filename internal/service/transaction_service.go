// internal/service/transaction_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wallet-engine/internal/cache"
	"wallet-engine/internal/charge"
	"wallet-engine/internal/domain"
	"wallet-engine/internal/ledger"
	"wallet-engine/internal/limit"
	"wallet-engine/internal/metrics"
	"wallet-engine/internal/reference"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/util"
	"wallet-engine/pkg/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// TransactionRequest is a caller's instruction to move money. ActorID comes from the
// authenticated session, never from the request body.
type TransactionRequest struct {
	IdempotencyKey        string
	Type                  domain.TransactionType
	ActorID               int64
	DestinationIdentifier string
	Amount                decimal.Decimal
	Pin                   string
	Description           string
	PaymentRequest        string // reference of the pending merchant request this payment settles
}

// PaymentRequest is a merchant asking a customer to approve a payment.
type PaymentRequest struct {
	MerchantID         int64
	CustomerIdentifier string
	Amount             decimal.Decimal
	Description        string
}

// PaymentApproval is a customer approving a pending payment request.
type PaymentApproval struct {
	IdempotencyKey string
	ActorID        int64
	Reference      string
	Pin            string
}

// ChargeQuote is the fee a caller would pay for a transaction right now.
type ChargeQuote struct {
	Type      domain.TransactionType `json:"transaction_type"`
	Amount    decimal.Decimal        `json:"amount"`
	Fee       decimal.Decimal        `json:"fee"`
	AppliesTo domain.ChargeParty     `json:"applies_to"`
	Total     decimal.Decimal        `json:"total_debit"`
}

// TransactionService defines the money movement and wallet read operations.
type TransactionService interface {
	Execute(ctx context.Context, req TransactionRequest) (*domain.TransactionResult, error)
	RequestPayment(ctx context.Context, req PaymentRequest) (*domain.Transaction, error)
	ApprovePayment(ctx context.Context, req PaymentApproval) (*domain.TransactionResult, error)
	QuoteCharge(ctx context.Context, actorID int64, txType domain.TransactionType, amount decimal.Decimal) (*ChargeQuote, error)
	GetWallet(ctx context.Context, actorID int64) (*domain.Wallet, error)
	GetTransactionHistory(ctx context.Context, actorID int64, limit, offset int) ([]domain.Transaction, int64, error)
	GetTransaction(ctx context.Context, actorID int64, reference string) (*domain.Transaction, error)
	GetLimitUsage(ctx context.Context, actorID int64) (*limit.Usage, error)
}

// EventPublisher receives completion events after commit. *events.Queue implements it.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.TransactionCompleted) error
}

// Dependencies wires a transactionService.
type Dependencies struct {
	DBBeginner      db.DBTxBeginner       // For starting transactions (e.g., *sqlx.DB)
	DBExecutor      repository.DBExecutor // For non-transactional reads (e.g., *sqlx.DB)
	ActorRepo       repository.ActorRepository
	WalletRepo      repository.WalletRepository
	TransactionRepo repository.TransactionRepository
	Ledger          *ledger.Ledger
	Charges         *charge.Calculator
	Limits          *limit.Enforcer
	References      *reference.Generator
	Events          EventPublisher
	Results         cache.ResultCache
	Metrics         metrics.MetricsCollector
	Logger          *slog.Logger
	BeginTx         db.BeginTxFunc    // Injected dependency for beginning transactions
	CommitTx        db.CommitTxFunc   // Injected dependency for committing transactions
	RollbackTx      db.RollbackTxFunc // Injected dependency for rolling back transactions
	SystemWalletID  int64             // 0 means look the system wallet up by currency
	Now             func() time.Time
}

// transactionService implements the TransactionService interface.
type transactionService struct {
	Dependencies
}

// NewTransactionService creates a new instance of TransactionService.
func NewTransactionService(deps Dependencies) TransactionService {
	if deps.Results == nil {
		deps.Results = cache.NoopResultCache{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoOpCollector{}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &transactionService{Dependencies: deps}
}

// plan is everything VALIDATING resolved about a request.
type plan struct {
	req          TransactionRequest
	actor        *domain.Actor
	source       *domain.Wallet
	dest         *domain.Wallet // nil for external deposits and payouts
	system       *domain.Wallet
	pending      *domain.Transaction // merchant request settled by this payment
	externalMove bool
}

// Execute runs one transaction as a single atomic unit.
func (s *transactionService) Execute(ctx context.Context, req TransactionRequest) (*domain.TransactionResult, error) {
	start := time.Now()
	res, replayed, err := s.execute(ctx, req)

	outcome := string(domain.TransactionStatusCompleted)
	switch {
	case err != nil:
		outcome = string(util.KindOf(err))
		s.logRejection(req, err)
	case replayed:
		outcome = "REPLAYED"
	}
	s.Metrics.RecordTransaction(string(req.Type), outcome, time.Since(start))
	return res, err
}

func (s *transactionService) logRejection(req TransactionRequest, err error) {
	kind := util.KindOf(err)
	attrs := []any{"type", req.Type, "actor_id", req.ActorID, "idempotency_key", req.IdempotencyKey, "error_kind", kind, "error", err}
	switch kind {
	case util.KindInternal, util.KindReferenceCollision:
		s.Logger.Error("Transaction failed", attrs...)
	case util.KindLockTimeout:
		s.Logger.Warn("Transaction rejected", attrs...)
	default:
		s.Logger.Info("Transaction rejected", attrs...)
	}
}

func (s *transactionService) execute(ctx context.Context, req TransactionRequest) (*domain.TransactionResult, bool, error) {
	// VALIDATING
	p, prior, err := s.validate(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if prior != nil {
		return prior, true, nil
	}

	// LOCKING
	s.Logger.Debug("Transaction state", "state", "LOCKING", "idempotency_key", req.IdempotencyKey)
	txController, err := s.BeginTx(ctx, s.DBBeginner)
	if err != nil {
		return nil, false, fmt.Errorf("execute: failed to begin transaction: %w", err)
	}
	defer s.RollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, false, fmt.Errorf("execute: transaction controller does not implement DBExecutor")
	}

	ids := []int64{p.source.ID, p.system.ID}
	if p.dest != nil {
		ids = append(ids, p.dest.ID)
	}
	locks, err := s.Ledger.LockWallets(ctx, txExecutor, ids...)
	if err != nil {
		return nil, false, err
	}

	// COMPUTING
	s.Logger.Debug("Transaction state", "state", "COMPUTING", "idempotency_key", req.IdempotencyKey)
	if prior, err := s.priorResult(ctx, txExecutor, req.IdempotencyKey, p.source.ID); err != nil || prior != nil {
		return prior, prior != nil, err
	}
	if p.pending != nil {
		// The source wallet lock serializes approvals of the same request.
		current, err := s.TransactionRepo.GetTransactionByID(ctx, txExecutor, p.pending.ID)
		if err != nil {
			return nil, false, fmt.Errorf("execute: failed to reload payment request: %w", err)
		}
		if !current.IsPaymentRequest() {
			return nil, false, fmt.Errorf("payment request %s is no longer pending: %w", current.Reference, util.ErrNotFound)
		}
		p.pending = current
	}

	ch := s.chargeFor(p)
	if err := checkCharge(p, ch); err != nil {
		return nil, false, err
	}
	debit, credit := movement(p, ch)
	balance, err := locks.Balance(p.source.ID)
	if err != nil {
		return nil, false, err
	}
	if debit.GreaterThan(balance) {
		return nil, false, fmt.Errorf("execute: wallet %d needs %s: %w", p.source.ID, debit.StringFixed(2), util.ErrInsufficientFunds)
	}
	now := s.Now()
	if !p.externalDeposit() {
		if err := s.Limits.Check(ctx, txExecutor, p.actor, p.source.ID, req.Amount, now); err != nil {
			return nil, false, err
		}
	}

	// MUTATING
	s.Logger.Debug("Transaction state", "state", "MUTATING", "idempotency_key", req.IdempotencyKey)
	if _, err := s.Ledger.Debit(ctx, locks, p.source.ID, debit); err != nil {
		return nil, false, err
	}
	if p.externalDeposit() {
		if _, err := s.Ledger.Credit(ctx, locks, p.source.ID, credit); err != nil {
			return nil, false, err
		}
	} else if p.dest != nil {
		if _, err := s.Ledger.Credit(ctx, locks, p.dest.ID, credit); err != nil {
			return nil, false, err
		}
	}
	if _, err := s.Ledger.Credit(ctx, locks, p.system.ID, ch.Fee); err != nil {
		return nil, false, err
	}
	newBalance, err := locks.Balance(p.source.ID)
	if err != nil {
		return nil, false, err
	}

	// PERSISTING
	s.Logger.Debug("Transaction state", "state", "PERSISTING", "idempotency_key", req.IdempotencyKey)
	ref, err := s.References.Generate(ctx, txExecutor, req.Type)
	if err != nil {
		return nil, false, err
	}

	var destID *int64
	if p.dest != nil {
		id := p.dest.ID
		destID = &id
	}
	var description *string
	if req.Description != "" {
		description = &req.Description
	}
	transaction := domain.NewTransaction(req.Type, p.source.ID, destID, req.Amount, p.source.Currency, req.IdempotencyKey, description, now)
	transaction.Reference = ref
	transaction.Fee = ch.Fee
	transaction.FeeBearer = ch.AppliesTo
	transaction.SourceBalanceAfter = newBalance
	if err := transaction.Complete(now); err != nil {
		return nil, false, fmt.Errorf("execute: %w", err)
	}
	if err := s.TransactionRepo.CreateTransaction(ctx, txExecutor, transaction); err != nil {
		if util.IsError(err, util.ErrDuplicateEntry) {
			return s.afterConflict(ctx, req, p.source.ID, err)
		}
		return nil, false, fmt.Errorf("execute: failed to create transaction: %w", err)
	}
	if p.pending != nil {
		if err := p.pending.Supersede(transaction.Reference); err != nil {
			return nil, false, fmt.Errorf("execute: payment request %s: %w", p.pending.Reference, err)
		}
		if err := s.TransactionRepo.FailPendingTransaction(ctx, txExecutor, p.pending); err != nil {
			return nil, false, fmt.Errorf("execute: failed to settle payment request %s: %w", p.pending.Reference, err)
		}
	}

	// COMMITTED
	if err := s.CommitTx(txController); err != nil {
		if util.IsError(err, util.ErrDuplicateEntry) {
			return s.afterConflict(ctx, req, p.source.ID, err)
		}
		return nil, false, fmt.Errorf("execute: failed to commit transaction: %w", err)
	}

	s.Logger.Info("Transaction completed",
		"reference", transaction.Reference,
		"type", transaction.Type,
		"amount", transaction.Amount.StringFixed(2),
		"fee", transaction.Fee.StringFixed(2),
		"fee_bearer", transaction.FeeBearer,
	)
	s.Metrics.RecordFee(string(req.Type), ch.Fee.InexactFloat64())

	result := domain.ResultFromTransaction(transaction)
	s.Results.Set(ctx, req.IdempotencyKey, &cache.Entry{SourceWalletID: p.source.ID, Result: result})
	s.publish(ctx, transaction, p)
	return result, false, nil
}

// validate resolves the actor, destination and wallets and runs the optimistic checks.
// It never takes a lock or mutates anything. A non-nil result means the key was seen before.
func (s *transactionService) validate(ctx context.Context, req TransactionRequest) (*plan, *domain.TransactionResult, error) {
	s.Logger.Debug("Transaction state", "state", "VALIDATING", "idempotency_key", req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		return nil, nil, fmt.Errorf("idempotency key is required: %w", util.ErrInvalidInput)
	}
	if !req.Type.Valid() {
		return nil, nil, fmt.Errorf("unknown transaction type %q: %w", req.Type, util.ErrInvalidInput)
	}
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(2)) {
		return nil, nil, fmt.Errorf("amount must be positive with at most 2 decimal places: %w", util.ErrInvalidInput)
	}

	actor, err := s.ActorRepo.GetActorByID(ctx, s.DBExecutor, req.ActorID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, nil, util.ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("validate: failed to load actor %d: %w", req.ActorID, err)
	}
	if !actor.IsActive {
		return nil, nil, util.ErrInactiveActor
	}
	if bcrypt.CompareHashAndPassword([]byte(actor.PinHash), []byte(req.Pin)) != nil {
		return nil, nil, util.ErrInvalidPin
	}

	source, err := s.WalletRepo.GetWalletByActorID(ctx, s.DBExecutor, actor.ID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, nil, util.ErrWalletNotFound
		}
		return nil, nil, fmt.Errorf("validate: failed to load wallet for actor %d: %w", actor.ID, err)
	}
	if !source.IsActive {
		return nil, nil, fmt.Errorf("wallet %d is inactive: %w", source.ID, util.ErrInactiveActor)
	}

	if prior, err := s.priorResult(ctx, s.DBExecutor, req.IdempotencyKey, source.ID); err != nil || prior != nil {
		return nil, prior, err
	}

	p := &plan{req: req, actor: actor, source: source}
	if p.system, err = s.systemWallet(ctx, source.Currency); err != nil {
		return nil, nil, err
	}
	if err := s.resolveDestination(ctx, p); err != nil {
		return nil, nil, err
	}

	ch := s.chargeFor(p)
	if err := checkCharge(p, ch); err != nil {
		return nil, nil, err
	}
	debit, _ := movement(p, ch)
	if debit.GreaterThan(source.Balance) {
		return nil, nil, fmt.Errorf("wallet %d needs %s: %w", source.ID, debit.StringFixed(2), util.ErrInsufficientFunds)
	}
	if !p.externalDeposit() {
		if err := s.Limits.Check(ctx, s.DBExecutor, actor, source.ID, req.Amount, s.Now()); err != nil {
			return nil, nil, err
		}
	}
	return p, nil, nil
}

func (s *transactionService) systemWallet(ctx context.Context, currency string) (*domain.Wallet, error) {
	var (
		w   *domain.Wallet
		err error
	)
	if s.SystemWalletID != 0 {
		w, err = s.WalletRepo.GetWalletByID(ctx, s.DBExecutor, s.SystemWalletID)
	} else {
		w, err = s.WalletRepo.GetSystemWallet(ctx, s.DBExecutor, currency)
	}
	if err != nil {
		return nil, fmt.Errorf("validate: failed to load system wallet for %s: %w", currency, err)
	}
	if w.Currency != currency {
		return nil, fmt.Errorf("system wallet holds %s, not %s: %w", w.Currency, currency, util.ErrCurrencyMismatch)
	}
	return w, nil
}

// resolveDestination applies the per-type destination rules.
func (s *transactionService) resolveDestination(ctx context.Context, p *plan) error {
	if p.req.PaymentRequest != "" {
		return s.resolvePaymentRequest(ctx, p)
	}
	ident := p.req.DestinationIdentifier
	switch p.req.Type {
	case domain.TransactionTypeCommission:
		p.dest = p.system
		return nil
	case domain.TransactionTypeTransfer, domain.TransactionTypePayment:
		if ident == "" {
			return fmt.Errorf("%s requires a destination: %w", p.req.Type, util.ErrInvalidInput)
		}
	case domain.TransactionTypeDeposit:
		if ident == "" {
			p.externalMove = true
			return nil
		}
		if p.actor.Role != domain.ActorRoleAgent {
			return fmt.Errorf("only agents can deposit into another wallet: %w", util.ErrInvalidInput)
		}
	case domain.TransactionTypeWithdrawal:
		if ident == "" {
			p.externalMove = true
			return nil
		}
	}

	target, err := s.ActorRepo.GetActorByIdentifier(ctx, s.DBExecutor, ident)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return fmt.Errorf("no actor for %q: %w", ident, util.ErrDestinationNotFound)
		}
		return fmt.Errorf("validate: failed to resolve destination: %w", err)
	}
	if !target.IsActive {
		return fmt.Errorf("destination actor %d is inactive: %w", target.ID, util.ErrDestinationNotFound)
	}
	if target.ID == p.actor.ID {
		return util.ErrSameWalletTransfer
	}
	switch p.req.Type {
	case domain.TransactionTypePayment:
		if target.Role != domain.ActorRoleMerchant {
			return fmt.Errorf("%q is not a merchant: %w", ident, util.ErrDestinationNotFound)
		}
	case domain.TransactionTypeWithdrawal:
		if target.Role != domain.ActorRoleAgent {
			return fmt.Errorf("%q is not an agent: %w", ident, util.ErrDestinationNotFound)
		}
	}

	dest, err := s.WalletRepo.GetWalletByActorID(ctx, s.DBExecutor, target.ID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return fmt.Errorf("actor %d has no wallet: %w", target.ID, util.ErrDestinationNotFound)
		}
		return fmt.Errorf("validate: failed to load destination wallet: %w", err)
	}
	if !dest.IsActive {
		return fmt.Errorf("destination wallet %d is inactive: %w", dest.ID, util.ErrDestinationNotFound)
	}
	if dest.Currency != p.source.Currency {
		return util.ErrCurrencyMismatch
	}
	p.dest = dest
	return nil
}

func (p *plan) externalDeposit() bool {
	return p.externalMove && p.req.Type == domain.TransactionTypeDeposit
}

// hasReceiver reports whether an actor receives the amount and can bear a fee.
func (p *plan) hasReceiver() bool {
	return p.dest != nil && !p.dest.IsSystem
}

// chargeFor computes the fee from the current rule snapshot. A receiver-borne fee with
// nobody to receive falls back to the sender.
func (s *transactionService) chargeFor(p *plan) domain.Charge {
	ch := s.Charges.Compute(p.req.Type, p.actor.Role, p.req.Amount)
	if ch.AppliesTo == domain.ChargePartyReceiver && !p.hasReceiver() {
		ch.AppliesTo = domain.ChargePartySender
	}
	return ch
}

// checkCharge rejects fees the amount cannot cover: an external deposit must net a
// non-negative credit and a receiver-borne fee must leave the receiver something.
func checkCharge(p *plan, ch domain.Charge) error {
	amount := p.req.Amount
	switch {
	case p.externalDeposit() && ch.Fee.GreaterThan(amount):
		return fmt.Errorf("fee %s exceeds deposit amount: %w", ch.Fee.StringFixed(2), util.ErrInvalidInput)
	case !p.externalDeposit() && ch.AppliesTo == domain.ChargePartyReceiver && ch.Fee.GreaterThanOrEqual(amount):
		return fmt.Errorf("fee %s paid by the receiver must be less than the amount %s: %w",
			ch.Fee.StringFixed(2), amount.StringFixed(2), util.ErrInvalidInput)
	}
	return nil
}

// movement returns what leaves the source wallet and what reaches the destination.
// For an external deposit nothing leaves the source; credit is what it receives.
func movement(p *plan, ch domain.Charge) (debit, credit decimal.Decimal) {
	amount := p.req.Amount
	if p.externalDeposit() {
		return decimal.Zero, amount.Sub(ch.Fee)
	}
	switch ch.AppliesTo {
	case domain.ChargePartyReceiver:
		return amount, amount.Sub(ch.Fee)
	default:
		return amount.Add(ch.Fee), amount
	}
}

// priorResult returns the stored result for key, if any. A key first used from a
// different wallet is rejected instead of replayed.
func (s *transactionService) priorResult(ctx context.Context, q repository.DBExecutor, key string, sourceWalletID int64) (*domain.TransactionResult, error) {
	if entry, ok := s.Results.Get(ctx, key); ok {
		if entry.SourceWalletID != sourceWalletID {
			return nil, fmt.Errorf("idempotency key already used: %w", util.ErrInvalidInput)
		}
		s.Metrics.RecordIdempotentReplay("cache")
		return entry.Result, nil
	}

	prior, err := s.TransactionRepo.GetTransactionByIdempotencyKey(ctx, q, key)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if prior.SourceWalletID != sourceWalletID {
		return nil, fmt.Errorf("idempotency key already used: %w", util.ErrInvalidInput)
	}
	s.Metrics.RecordIdempotentReplay("store")
	result := domain.ResultFromTransaction(prior)
	s.Results.Set(ctx, key, &cache.Entry{SourceWalletID: sourceWalletID, Result: result})
	return result, nil
}

// afterConflict handles a unique violation on insert or commit. If the idempotency key
// won the race elsewhere its result is returned; otherwise the conflict is a failure.
func (s *transactionService) afterConflict(ctx context.Context, req TransactionRequest, sourceWalletID int64, cause error) (*domain.TransactionResult, bool, error) {
	prior, err := s.priorResult(ctx, s.DBExecutor, req.IdempotencyKey, sourceWalletID)
	if err != nil {
		return nil, false, err
	}
	if prior != nil {
		return prior, true, nil
	}
	return nil, false, fmt.Errorf("execute: failed to create transaction: %w", cause)
}

// publish enqueues the completion event. The transaction is already committed, so a
// failure here is logged and never returned.
func (s *transactionService) publish(ctx context.Context, t *domain.Transaction, p *plan) {
	if s.Events == nil {
		return
	}
	evt := domain.TransactionCompleted{
		EventID:       uuid.NewString(),
		TransactionID: t.ID,
		Reference:     t.Reference,
		Type:          t.Type,
		SourceActorID: p.source.ActorID,
		Amount:        t.Amount,
		Fee:           t.Fee,
		CompletedAt:   *t.CompletedAt,
	}
	if p.dest != nil {
		evt.DestinationActor = p.dest.ActorID
	}
	if err := s.Events.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.Logger.Error("Failed to enqueue completion event",
			"reference", t.Reference,
			"transaction_id", t.ID,
			"error", err,
		)
	}
}
