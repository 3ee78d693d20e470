// internal/domain/charge.go
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ChargeKind selects how a fee is derived from the amount.
type ChargeKind string

const (
	ChargeKindPercentage ChargeKind = "PERCENTAGE"
	ChargeKindFixed      ChargeKind = "FIXED"
)

// ChargeParty is the side of a transaction that bears the fee.
type ChargeParty string

const (
	ChargePartySender   ChargeParty = "SENDER"
	ChargePartyReceiver ChargeParty = "RECEIVER"
)

// TransactionChargeRule describes the fee for one (transaction type, actor role) pair.
type TransactionChargeRule struct {
	Key       string           `db:"key" json:"key"`
	Kind      ChargeKind       `db:"kind" json:"kind"`
	Value     decimal.Decimal  `db:"value" json:"value"`
	Minimum   decimal.Decimal  `db:"minimum" json:"minimum"`
	Maximum   *decimal.Decimal `db:"maximum" json:"maximum"` // nil means unbounded
	AppliesTo ChargeParty      `db:"applies_to" json:"applies_to"`
	Active    bool             `db:"active" json:"active"`
}

// ChargeKey builds the rule key for a transaction type and actor role, e.g. "TRANSFER:CUSTOMER".
func ChargeKey(txType TransactionType, role ActorRole) string {
	return string(txType) + ":" + string(role)
}

// Validate checks the rule invariants.
func (r TransactionChargeRule) Validate() error {
	switch r.Kind {
	case ChargeKindPercentage:
		if r.Value.IsNegative() || r.Value.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("charge rule %q: percentage rate %s outside [0,1)", r.Key, r.Value)
		}
	case ChargeKindFixed:
		if r.Value.IsNegative() {
			return fmt.Errorf("charge rule %q: negative fixed value %s", r.Key, r.Value)
		}
	default:
		return fmt.Errorf("charge rule %q: unknown kind %q", r.Key, r.Kind)
	}
	if r.AppliesTo != ChargePartySender && r.AppliesTo != ChargePartyReceiver {
		return fmt.Errorf("charge rule %q: unknown party %q", r.Key, r.AppliesTo)
	}
	if r.Minimum.IsNegative() {
		return fmt.Errorf("charge rule %q: negative minimum", r.Key)
	}
	if r.Maximum != nil && r.Maximum.LessThan(r.Minimum) {
		return fmt.Errorf("charge rule %q: maximum %s below minimum %s", r.Key, r.Maximum, r.Minimum)
	}
	return nil
}

// Charge is the computed fee and the party that pays it.
type Charge struct {
	Fee       decimal.Decimal `json:"fee"`
	AppliesTo ChargeParty     `json:"applies_to"`
}
