// internal/util/errors.go
package util

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"wallet-engine/internal/domain"
)

// Common application-specific errors.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input provided")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrSameWalletTransfer  = errors.New("cannot transfer to the same wallet")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrDuplicateEntry      = errors.New("duplicate entry")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrInvalidPin          = errors.New("invalid transaction pin")
	ErrInactiveActor       = errors.New("actor is not active")
	ErrLimitExceeded       = errors.New("transaction limit exceeded")
	ErrDestinationNotFound = errors.New("destination not found")
	ErrReferenceCollision  = errors.New("could not generate a unique transaction reference")
	ErrLockTimeout         = errors.New("timed out waiting for wallet lock")
	ErrWalletNotLocked     = errors.New("wallet is not held in the current lock set")
	ErrUnauthorized        = errors.New("unauthorized")
)

// IsError reports whether err matches target anywhere in its chain.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// LimitExceededError reports which cap a transaction would breach.
type LimitExceededError struct {
	Window    domain.LimitWindow
	Cap       decimal.Decimal
	Used      decimal.Decimal
	Remaining decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s limit of %s exceeded, remaining %s", strings.ToLower(string(e.Window)), e.Cap.StringFixed(2), e.Remaining.StringFixed(2))
}

// Is makes errors.Is(err, ErrLimitExceeded) hold for every LimitExceededError.
func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// ErrorKind is the stable, caller-facing classification of a rejected transaction.
type ErrorKind string

const (
	KindInvalidPin          ErrorKind = "INVALID_PIN"
	KindInsufficientFunds   ErrorKind = "INSUFFICIENT_FUNDS"
	KindLimitExceeded       ErrorKind = "LIMIT_EXCEEDED"
	KindDestinationNotFound ErrorKind = "DESTINATION_NOT_FOUND"
	KindReferenceCollision  ErrorKind = "REFERENCE_COLLISION"
	KindLockTimeout         ErrorKind = "LOCK_TIMEOUT"
	KindInvalidInput        ErrorKind = "INVALID_INPUT"
	KindInactiveActor       ErrorKind = "INACTIVE_ACTOR"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindUnauthorized        ErrorKind = "UNAUTHORIZED"
	KindInternal            ErrorKind = "INTERNAL"
)

// KindOf classifies err into an ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidPin):
		return KindInvalidPin
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrLimitExceeded):
		return KindLimitExceeded
	case errors.Is(err, ErrDestinationNotFound):
		return KindDestinationNotFound
	case errors.Is(err, ErrReferenceCollision):
		return KindReferenceCollision
	case errors.Is(err, ErrLockTimeout):
		return KindLockTimeout
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrCurrencyMismatch), errors.Is(err, ErrSameWalletTransfer):
		return KindInvalidInput
	case errors.Is(err, ErrInactiveActor):
		return KindInactiveActor
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindInternal
	}
}

// Retryable reports whether the caller may resubmit the same request unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
