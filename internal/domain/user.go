// internal/domain/user.go
package domain

import "time"

// ActorRole is the role of an actor; charge rules are selected by (type, role).
type ActorRole string

const (
	ActorRoleCustomer ActorRole = "CUSTOMER"
	ActorRoleMerchant ActorRole = "MERCHANT"
	ActorRoleAgent    ActorRole = "AGENT"
)

// Actor is a user, merchant or agent able to own a wallet and send money.
// Onboarding, KYC and PIN setup are owned by other services; the engine only reads actors.
type Actor struct {
	ID                int64     `db:"id" json:"id"`
	PhoneNumber       string    `db:"phone_number" json:"phone_number"`
	Email             *string   `db:"email" json:"email"`
	DisplayName       string    `db:"display_name" json:"display_name"`
	Role              ActorRole `db:"role" json:"role"`
	VerificationLevel int       `db:"verification_level" json:"verification_level"`
	PinHash           string    `db:"pin_hash" json:"-"`
	MerchantCode      *string   `db:"merchant_code" json:"merchant_code,omitempty"`
	AgentCode         *string   `db:"agent_code" json:"agent_code,omitempty"`
	WebhookURL        *string   `db:"webhook_url" json:"-"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// NewActor creates a new Actor instance.
func NewActor(phoneNumber, displayName string, role ActorRole, pinHash string) *Actor {
	now := time.Now().UTC()
	return &Actor{
		PhoneNumber: phoneNumber,
		DisplayName: displayName,
		Role:        role,
		PinHash:     pinHash,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Label is the name shown to counterparties in notifications.
func (a *Actor) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.PhoneNumber
}
