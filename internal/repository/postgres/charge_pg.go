// internal/repository/postgres/charge_pg.go
package postgres

import (
	"context"
	"fmt"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"

	"github.com/jmoiron/sqlx"
)

// ChargeRuleRepository implements repository.ChargeRuleRepository for PostgreSQL.
type ChargeRuleRepository struct{}

// NewChargeRuleRepository creates a new ChargeRuleRepository.
func NewChargeRuleRepository(db *sqlx.DB) repository.ChargeRuleRepository {
	return &ChargeRuleRepository{}
}

// ListActiveChargeRules returns every active rule.
func (r *ChargeRuleRepository) ListActiveChargeRules(ctx context.Context, q repository.DBExecutor) ([]domain.TransactionChargeRule, error) {
	rules := []domain.TransactionChargeRule{}
	query := `SELECT key, kind, value, minimum, maximum, applies_to, active
              FROM transaction_charges WHERE active ORDER BY key`
	if err := q.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list charge rules: %w", mapError(err))
	}
	return rules, nil
}
