// internal/limit/enforcer.go
package limit

import (
	"context"
	"fmt"
	"sort"
	"time"
	_ "time/tzdata" // windows are computed in a configured zone

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/util"

	"github.com/shopspring/decimal"
)

// DefaultLimits are the tier caps used when no VERIFICATION_LIMITS are configured.
func DefaultLimits() []domain.VerificationLimit {
	return []domain.VerificationLimit{
		{Tier: 0, DailyCap: decimal.Zero, MonthlyCap: decimalPtr(decimal.Zero)},
		{Tier: 1, DailyCap: decimal.NewFromInt(100), MonthlyCap: decimalPtr(decimal.NewFromInt(500))},
		{Tier: 2, DailyCap: decimal.NewFromInt(2000), MonthlyCap: decimalPtr(decimal.NewFromInt(10000))},
		{Tier: 3, DailyCap: decimal.NewFromInt(10000), MonthlyCap: nil},
	}
}

func decimalPtr(v decimal.Decimal) *decimal.Decimal { return &v }

// Validate checks that caps are non-negative and non-decreasing by tier. A nil monthly cap
// (unlimited) may only be followed by other unlimited tiers.
func Validate(limits []domain.VerificationLimit) error {
	sorted := append([]domain.VerificationLimit(nil), limits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tier < sorted[j].Tier })

	for i, l := range sorted {
		if l.Tier < 0 {
			return fmt.Errorf("limit: negative tier %d", l.Tier)
		}
		if l.DailyCap.IsNegative() || (l.MonthlyCap != nil && l.MonthlyCap.IsNegative()) {
			return fmt.Errorf("limit: tier %d has a negative cap", l.Tier)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.Tier == l.Tier {
			return fmt.Errorf("limit: tier %d configured twice", l.Tier)
		}
		if l.DailyCap.LessThan(prev.DailyCap) {
			return fmt.Errorf("limit: tier %d daily cap below tier %d", l.Tier, prev.Tier)
		}
		if prev.MonthlyCap == nil && l.MonthlyCap != nil {
			return fmt.Errorf("limit: tier %d monthly cap below unlimited tier %d", l.Tier, prev.Tier)
		}
		if prev.MonthlyCap != nil && l.MonthlyCap != nil && l.MonthlyCap.LessThan(*prev.MonthlyCap) {
			return fmt.Errorf("limit: tier %d monthly cap below tier %d", l.Tier, prev.Tier)
		}
	}
	return nil
}

// Enforcer applies per-tier daily and monthly sending caps over wall-clock windows.
type Enforcer struct {
	tiers        map[int]domain.VerificationLimit
	loc          *time.Location
	transactions repository.TransactionRepository
}

// NewEnforcer validates limits and builds an Enforcer. Windows are computed in loc.
func NewEnforcer(limits []domain.VerificationLimit, loc *time.Location, transactions repository.TransactionRepository) (*Enforcer, error) {
	if err := Validate(limits); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	tiers := make(map[int]domain.VerificationLimit, len(limits))
	for _, l := range limits {
		tiers[l.Tier] = l
	}
	return &Enforcer{tiers: tiers, loc: loc, transactions: transactions}, nil
}

// Limit returns the caps for a tier. An unknown tier gets zero caps.
func (e *Enforcer) Limit(tier int) domain.VerificationLimit {
	if l, ok := e.tiers[tier]; ok {
		return l
	}
	return domain.VerificationLimit{Tier: tier, DailyCap: decimal.Zero, MonthlyCap: decimalPtr(decimal.Zero)}
}

// WindowStarts returns local midnight of now and the first instant of now's month, in loc.
func WindowStarts(now time.Time, loc *time.Location) (day, month time.Time) {
	local := now.In(loc)
	y, m, dd := local.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, loc), time.Date(y, m, 1, 0, 0, 0, 0, loc)
}

// Usage is how much of each cap an actor has used in the current windows.
type Usage struct {
	Tier        int              `json:"tier"`
	DailyCap    decimal.Decimal  `json:"daily_cap"`
	DailyUsed   decimal.Decimal  `json:"daily_used"`
	MonthlyCap  *decimal.Decimal `json:"monthly_cap"`
	MonthlyUsed decimal.Decimal  `json:"monthly_used"`
}

// Usage sums the COMPLETED amounts debited from walletID in the windows containing now.
func (e *Enforcer) Usage(ctx context.Context, q repository.DBExecutor, actor *domain.Actor, walletID int64, now time.Time) (*Usage, error) {
	limit := e.Limit(actor.VerificationLevel)
	dayStart, monthStart := WindowStarts(now, e.loc)

	daily, err := e.transactions.SumSentSince(ctx, q, walletID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("limit: failed to sum daily usage: %w", err)
	}
	monthly, err := e.transactions.SumSentSince(ctx, q, walletID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("limit: failed to sum monthly usage: %w", err)
	}
	return &Usage{
		Tier:        limit.Tier,
		DailyCap:    limit.DailyCap,
		DailyUsed:   daily,
		MonthlyCap:  limit.MonthlyCap,
		MonthlyUsed: monthly,
	}, nil
}

// Check rejects amount with a *util.LimitExceededError if it would take usage past a cap.
// Reaching a cap exactly is allowed.
func (e *Enforcer) Check(ctx context.Context, q repository.DBExecutor, actor *domain.Actor, walletID int64, amount decimal.Decimal, now time.Time) error {
	u, err := e.Usage(ctx, q, actor, walletID, now)
	if err != nil {
		return err
	}
	if u.DailyUsed.Add(amount).GreaterThan(u.DailyCap) {
		return exceeded(domain.LimitWindowDaily, u.DailyCap, u.DailyUsed)
	}
	if u.MonthlyCap != nil && u.MonthlyUsed.Add(amount).GreaterThan(*u.MonthlyCap) {
		return exceeded(domain.LimitWindowMonthly, *u.MonthlyCap, u.MonthlyUsed)
	}
	return nil
}

func exceeded(window domain.LimitWindow, limitCap, used decimal.Decimal) error {
	remaining := limitCap.Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &util.LimitExceededError{Window: window, Cap: limitCap, Used: used, Remaining: remaining}
}
