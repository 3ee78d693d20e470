// internal/repository/charge_repo.go
package repository

import (
	"context"

	"wallet-engine/internal/domain"
)

// ChargeRuleRepository reads charge configuration. Rules are maintained by an admin
// service; the engine never writes them.
type ChargeRuleRepository interface {
	ListActiveChargeRules(ctx context.Context, q DBExecutor) ([]domain.TransactionChargeRule, error)
}
