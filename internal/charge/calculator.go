// internal/charge/calculator.go
package charge

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"

	"github.com/shopspring/decimal"
)

type snapshot map[string]domain.TransactionChargeRule

// Calculator computes transaction fees from an immutable snapshot of charge rules.
// Reload swaps the snapshot atomically; in-flight computations keep the one they started with.
type Calculator struct {
	repo     repository.ChargeRuleRepository
	q        repository.DBExecutor
	logger   *slog.Logger
	snapshot atomic.Pointer[snapshot]
}

// NewCalculator creates a Calculator with an empty rule set. Call Reload or Load before use.
func NewCalculator(repo repository.ChargeRuleRepository, q repository.DBExecutor, logger *slog.Logger) *Calculator {
	c := &Calculator{repo: repo, q: q, logger: logger}
	empty := snapshot{}
	c.snapshot.Store(&empty)
	return c
}

// Load validates rules and installs them as the current snapshot. Inactive rules are ignored.
// An invalid rule rejects the whole set and keeps the previous snapshot.
func (c *Calculator) Load(rules []domain.TransactionChargeRule) error {
	next := make(snapshot, len(rules))
	for _, r := range rules {
		if !r.Active {
			continue
		}
		if err := r.Validate(); err != nil {
			return err
		}
		next[r.Key] = r
	}
	c.snapshot.Store(&next)
	return nil
}

// Reload reads the active rules from the repository.
func (c *Calculator) Reload(ctx context.Context) error {
	rules, err := c.repo.ListActiveChargeRules(ctx, c.q)
	if err != nil {
		return fmt.Errorf("charge: failed to load rules: %w", err)
	}
	if err := c.Load(rules); err != nil {
		return fmt.Errorf("charge: rejected rule set: %w", err)
	}
	c.logger.Debug("Charge rules reloaded", "count", len(rules))
	return nil
}

// Run reloads the rules every interval until ctx is done.
func (c *Calculator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Reload(ctx); err != nil {
				c.logger.Warn("Keeping previous charge rules", "error", err)
			}
		}
	}
}

// Rule returns the active rule for a transaction type and role, if any.
func (c *Calculator) Rule(txType domain.TransactionType, role domain.ActorRole) (domain.TransactionChargeRule, bool) {
	rules := *c.snapshot.Load()
	r, ok := rules[domain.ChargeKey(txType, role)]
	return r, ok
}

// Compute returns the fee for amount. Without an active rule the fee is zero and sender-borne.
func (c *Calculator) Compute(txType domain.TransactionType, role domain.ActorRole, amount decimal.Decimal) domain.Charge {
	rule, ok := c.Rule(txType, role)
	if !ok {
		return domain.Charge{Fee: decimal.Zero, AppliesTo: domain.ChargePartySender}
	}
	return domain.Charge{Fee: Fee(rule, amount), AppliesTo: rule.AppliesTo}
}

// Fee applies a single rule. Rounding happens once, after clamping, half-to-even at 2 places.
func Fee(rule domain.TransactionChargeRule, amount decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch rule.Kind {
	case domain.ChargeKindPercentage:
		fee = amount.Mul(rule.Value)
	case domain.ChargeKindFixed:
		fee = rule.Value
	default:
		return decimal.Zero
	}

	if fee.LessThan(rule.Minimum) {
		fee = rule.Minimum
	}
	if rule.Maximum != nil && fee.GreaterThan(*rule.Maximum) {
		fee = *rule.Maximum
	}
	return fee.RoundBank(2)
}
