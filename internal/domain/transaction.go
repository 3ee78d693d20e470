// internal/domain/transaction.go
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal" // For precise monetary calculations
)

// TransactionType defines the type of a financial transaction.
type TransactionType string

const (
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypePayment    TransactionType = "PAYMENT"
	TransactionTypeCommission TransactionType = "COMMISSION"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeTransfer, TransactionTypeDeposit, TransactionTypeWithdrawal,
		TransactionTypePayment, TransactionTypeCommission:
		return true
	}
	return false
}

// RequiresDestination reports whether a request of this type must name a counterparty.
func (t TransactionType) RequiresDestination() bool {
	return t == TransactionTypeTransfer || t == TransactionTypePayment
}

// TransactionStatus defines the status of a financial transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// ErrInvalidStatusTransition is returned when a transaction leaves a terminal state.
var ErrInvalidStatusTransition = errors.New("invalid transaction status transition")

// Transaction represents a financial transaction record.
type Transaction struct {
	ID                 int64             `db:"id" json:"id"`
	Reference          string            `db:"reference" json:"reference"`
	Type               TransactionType   `db:"type" json:"type"`
	SourceWalletID     int64             `db:"source_wallet_id" json:"source_wallet_id"`
	DestWalletID       *int64            `db:"dest_wallet_id" json:"dest_wallet_id"` // nil for external deposits/payouts
	Amount             decimal.Decimal   `db:"amount" json:"amount"`
	Fee                decimal.Decimal   `db:"fee" json:"fee"`
	FeeBearer          ChargeParty       `db:"fee_bearer" json:"fee_bearer"`
	Currency           string            `db:"currency" json:"currency"`
	Status             TransactionStatus `db:"status" json:"status"`
	IdempotencyKey     *string           `db:"idempotency_key" json:"-"`
	SourceBalanceAfter decimal.Decimal   `db:"source_balance_after" json:"-"`
	Description        *string           `db:"description" json:"description"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	CompletedAt        *time.Time        `db:"completed_at" json:"completed_at"`
}

// NewTransaction creates a PENDING transaction. It only becomes visible once Complete
// has been called and the record is persisted in the same unit of work as the balance mutation.
func NewTransaction(
	txType TransactionType,
	sourceWalletID int64,
	destWalletID *int64,
	amount decimal.Decimal,
	currency string,
	idempotencyKey string,
	description *string,
	now time.Time,
) *Transaction {
	var key *string
	if idempotencyKey != "" {
		key = &idempotencyKey
	}
	return &Transaction{
		Type:           txType,
		SourceWalletID: sourceWalletID,
		DestWalletID:   destWalletID,
		Amount:         amount,
		Fee:            decimal.Zero,
		FeeBearer:      ChargePartySender,
		Currency:       currency,
		Status:         TransactionStatusPending,
		IdempotencyKey: key,
		Description:    description,
		CreatedAt:      now,
	}
}

// Complete moves a PENDING transaction to COMPLETED.
func (t *Transaction) Complete(now time.Time) error {
	if t.Status != TransactionStatusPending {
		return ErrInvalidStatusTransition
	}
	t.Status = TransactionStatusCompleted
	t.CompletedAt = &now
	return nil
}

// Fail moves a PENDING transaction to FAILED.
func (t *Transaction) Fail() error {
	if t.Status != TransactionStatusPending {
		return ErrInvalidStatusTransition
	}
	t.Status = TransactionStatusFailed
	return nil
}

// NewPaymentRequest creates the PENDING payment a merchant asks a customer to approve.
// It moves no money; approval records a separate COMPLETED payment and supersedes it.
func NewPaymentRequest(customerWalletID, merchantWalletID int64, amount decimal.Decimal, currency, description string, now time.Time) *Transaction {
	merchant := merchantWalletID
	return NewTransaction(TransactionTypePayment, customerWalletID, &merchant, amount, currency, "", &description, now)
}

// IsPaymentRequest reports whether t is a merchant payment request still awaiting approval.
func (t *Transaction) IsPaymentRequest() bool {
	return t.Type == TransactionTypePayment && t.Status == TransactionStatusPending && t.DestWalletID != nil
}

// Supersede fails a pending payment request once the payment settling it is recorded.
func (t *Transaction) Supersede(settledBy string) error {
	if err := t.Fail(); err != nil {
		return err
	}
	description := "Superseded by transaction " + settledBy
	t.Description = &description
	return nil
}

// IsExternalDeposit reports whether money enters the system from outside (gateway funding).
// Such deposits credit the source wallet and are not counted against sending limits.
func (t *Transaction) IsExternalDeposit() bool {
	return t.Type == TransactionTypeDeposit && t.DestWalletID == nil
}

// TransactionResult is the success payload returned for a completed transaction.
// A repeated request with the same idempotency key receives an identical payload.
type TransactionResult struct {
	TransactionID    int64             `json:"transaction_id"`
	Reference        string            `json:"reference"`
	Status           TransactionStatus `json:"status"`
	NewSourceBalance decimal.Decimal   `json:"new_source_balance"`
	FeeCharged       decimal.Decimal   `json:"fee_charged"`
	CompletedAt      time.Time         `json:"completed_at"`
}

// ResultFromTransaction builds the success payload from a persisted COMPLETED record.
func ResultFromTransaction(t *Transaction) *TransactionResult {
	res := &TransactionResult{
		TransactionID:    t.ID,
		Reference:        t.Reference,
		Status:           t.Status,
		NewSourceBalance: t.SourceBalanceAfter,
		FeeCharged:       t.Fee,
	}
	if t.CompletedAt != nil {
		res.CompletedAt = *t.CompletedAt
	}
	return res
}
