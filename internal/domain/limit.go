// internal/domain/limit.go
package domain

import "github.com/shopspring/decimal"

// VerificationLimit holds the sending caps for one verification tier.
type VerificationLimit struct {
	Tier       int              `json:"tier"`
	DailyCap   decimal.Decimal  `json:"daily_cap"`
	MonthlyCap *decimal.Decimal `json:"monthly_cap"` // nil means unlimited
}

// LimitWindow names the rolling window a cap applies to.
type LimitWindow string

const (
	LimitWindowDaily   LimitWindow = "DAILY"
	LimitWindowMonthly LimitWindow = "MONTHLY"
)
