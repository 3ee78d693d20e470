// internal/domain/wallet.go
package domain

import (
	"time"

	"github.com/shopspring/decimal" // For precise monetary calculations
)

// Wallet represents an actor's wallet, or the system wallet that collects fees.
type Wallet struct {
	ID        int64           `db:"id" json:"id"`
	ActorID   *int64          `db:"actor_id" json:"actor_id"` // nil for the system wallet
	Currency  string          `db:"currency" json:"currency"`
	Balance   decimal.Decimal `db:"balance" json:"balance"` // NUMERIC(20, 2) in DB, never negative
	IsActive  bool            `db:"is_active" json:"is_active"`
	IsSystem  bool            `db:"is_system" json:"is_system"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// NewWallet creates a new, empty wallet for an actor.
func NewWallet(actorID int64, currency string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ActorID:   &actorID,
		Currency:  currency,
		Balance:   decimal.Zero,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSystemWallet creates the distinguished fee-collection wallet.
func NewSystemWallet(currency string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		Currency:  currency,
		Balance:   decimal.Zero,
		IsActive:  true,
		IsSystem:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
