// internal/limit/enforcer_test.go
package limit

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTransactionRepository only answers SumSentSince; the enforcer needs nothing else.
type MockTransactionRepository struct {
	repository.TransactionRepository
	mock.Mock
}

func (m *MockTransactionRepository) SumSentSince(ctx context.Context, q repository.DBExecutor, walletID int64, since time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, q, walletID, since)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWindowStarts(t *testing.T) {
	nairobi, err := time.LoadLocation("Africa/Nairobi")
	require.NoError(t, err)

	// 22:30 UTC on Jan 31 is 01:30 on Feb 1 in Nairobi (UTC+3).
	now := time.Date(2024, time.January, 31, 22, 30, 0, 0, time.UTC)
	day, month := WindowStarts(now, nairobi)

	assert.True(t, day.Equal(time.Date(2024, time.February, 1, 0, 0, 0, 0, nairobi)))
	assert.True(t, month.Equal(time.Date(2024, time.February, 1, 0, 0, 0, 0, nairobi)))
	assert.True(t, day.Equal(time.Date(2024, time.January, 31, 21, 0, 0, 0, time.UTC)))

	dayUTC, monthUTC := WindowStarts(now, time.UTC)
	assert.True(t, dayUTC.Equal(time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)))
	assert.True(t, monthUTC.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(DefaultLimits()))

	tests := []struct {
		name   string
		limits []domain.VerificationLimit
	}{
		{"decreasing daily", []domain.VerificationLimit{
			{Tier: 1, DailyCap: d("100")}, {Tier: 2, DailyCap: d("50")},
		}},
		{"capped after unlimited", []domain.VerificationLimit{
			{Tier: 1, DailyCap: d("100")}, {Tier: 2, DailyCap: d("200"), MonthlyCap: decimalPtr(d("1000"))},
		}},
		{"duplicate tier", []domain.VerificationLimit{
			{Tier: 1, DailyCap: d("100")}, {Tier: 1, DailyCap: d("100")},
		}},
		{"negative cap", []domain.VerificationLimit{{Tier: 0, DailyCap: d("-1")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate(tt.limits))
		})
	}
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
	day, month := WindowStarts(now, time.UTC)
	walletID := int64(7)

	newEnforcer := func(t *testing.T, daily, monthly string) (*Enforcer, *MockTransactionRepository) {
		repo := new(MockTransactionRepository)
		repo.On("SumSentSince", ctx, nil, walletID, day).Return(d(daily), nil)
		repo.On("SumSentSince", ctx, nil, walletID, month).Return(d(monthly), nil)
		e, err := NewEnforcer(DefaultLimits(), time.UTC, repo)
		require.NoError(t, err)
		return e, repo
	}
	tier1 := &domain.Actor{ID: 1, VerificationLevel: 1}

	t.Run("reaching the daily cap exactly is allowed", func(t *testing.T) {
		e, repo := newEnforcer(t, "60", "60")
		assert.NoError(t, e.Check(ctx, nil, tier1, walletID, d("40"), now))
		repo.AssertExpectations(t)
	})

	t.Run("one cent over the daily cap", func(t *testing.T) {
		e, _ := newEnforcer(t, "60", "60")
		err := e.Check(ctx, nil, tier1, walletID, d("40.01"), now)
		require.ErrorIs(t, err, util.ErrLimitExceeded)

		var le *util.LimitExceededError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, domain.LimitWindowDaily, le.Window)
		assert.True(t, le.Remaining.Equal(d("40")))
		assert.Equal(t, util.KindLimitExceeded, util.KindOf(err))
	})

	t.Run("monthly cap", func(t *testing.T) {
		e, _ := newEnforcer(t, "0", "450")
		err := e.Check(ctx, nil, tier1, walletID, d("60"), now)

		var le *util.LimitExceededError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, domain.LimitWindowMonthly, le.Window)
		assert.True(t, le.Remaining.Equal(d("50")))
	})

	t.Run("unlimited monthly tier", func(t *testing.T) {
		e, _ := newEnforcer(t, "0", "1000000")
		assert.NoError(t, e.Check(ctx, nil, &domain.Actor{VerificationLevel: 3}, walletID, d("10000"), now))
	})

	t.Run("unknown tier rejects everything", func(t *testing.T) {
		e, _ := newEnforcer(t, "0", "0")
		err := e.Check(ctx, nil, &domain.Actor{VerificationLevel: 9}, walletID, d("0.01"), now)
		assert.ErrorIs(t, err, util.ErrLimitExceeded)
	})

	t.Run("usage reports both windows", func(t *testing.T) {
		e, _ := newEnforcer(t, "25", "300")
		u, err := e.Usage(ctx, nil, tier1, walletID, now)
		require.NoError(t, err)
		assert.True(t, u.DailyUsed.Equal(d("25")))
		assert.True(t, u.MonthlyUsed.Equal(d("300")))
		assert.True(t, u.DailyCap.Equal(d("100")))
	})
}
