// internal/charge/calculator_test.go
package charge

import (
	"context"
	"errors"
	"testing"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"
	"wallet-engine/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChargeRuleRepository struct {
	mock.Mock
}

func (m *MockChargeRuleRepository) ListActiveChargeRules(ctx context.Context, q repository.DBExecutor) ([]domain.TransactionChargeRule, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TransactionChargeRule), args.Error(1)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

func TestFee(t *testing.T) {
	twoPercent := domain.TransactionChargeRule{
		Key: "TRANSFER:CUSTOMER", Kind: domain.ChargeKindPercentage, Value: d("0.02"),
		Minimum: d("0.50"), Maximum: ptr(d("5.00")), AppliesTo: domain.ChargePartySender, Active: true,
	}
	fixed := domain.TransactionChargeRule{
		Key: "WITHDRAWAL:CUSTOMER", Kind: domain.ChargeKindFixed, Value: d("25"),
		Minimum: d("0"), Maximum: ptr(d("20")), AppliesTo: domain.ChargePartySender, Active: true,
	}
	halfEven := domain.TransactionChargeRule{
		Key: "PAYMENT:CUSTOMER", Kind: domain.ChargeKindPercentage, Value: d("0.005"),
		Minimum: d("0"), AppliesTo: domain.ChargePartyReceiver, Active: true,
	}

	tests := []struct {
		name   string
		rule   domain.TransactionChargeRule
		amount string
		want   string
	}{
		{"clamped to maximum", twoPercent, "1000", "5.00"},
		{"clamped to minimum", twoPercent, "10", "0.50"},
		{"inside bounds", twoPercent, "100", "2.00"},
		{"fixed clamped to maximum", fixed, "1", "20.00"},
		{"half even rounds down on 5", halfEven, "5", "0.02"},
		{"half even rounds up on 5 after odd", halfEven, "7", "0.04"},
		{"no maximum", halfEven, "100000", "500.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fee(tt.rule, d(tt.amount))
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestCompute(t *testing.T) {
	c := NewCalculator(nil, nil, util.DiscardLogger())
	require.NoError(t, c.Load([]domain.TransactionChargeRule{
		{Key: "PAYMENT:CUSTOMER", Kind: domain.ChargeKindPercentage, Value: d("0.01"), AppliesTo: domain.ChargePartyReceiver, Active: true},
		{Key: "TRANSFER:CUSTOMER", Kind: domain.ChargeKindFixed, Value: d("3"), AppliesTo: domain.ChargePartySender, Active: false},
	}))

	t.Run("rule found", func(t *testing.T) {
		ch := c.Compute(domain.TransactionTypePayment, domain.ActorRoleCustomer, d("250"))
		assert.True(t, ch.Fee.Equal(d("2.50")))
		assert.Equal(t, domain.ChargePartyReceiver, ch.AppliesTo)
	})

	t.Run("inactive rule means no fee", func(t *testing.T) {
		ch := c.Compute(domain.TransactionTypeTransfer, domain.ActorRoleCustomer, d("250"))
		assert.True(t, ch.Fee.IsZero())
		assert.Equal(t, domain.ChargePartySender, ch.AppliesTo)
	})

	t.Run("role is part of the key", func(t *testing.T) {
		ch := c.Compute(domain.TransactionTypePayment, domain.ActorRoleAgent, d("250"))
		assert.True(t, ch.Fee.IsZero())
	})
}

func TestReload(t *testing.T) {
	ctx := context.Background()

	t.Run("installs repository rules", func(t *testing.T) {
		repo := new(MockChargeRuleRepository)
		repo.On("ListActiveChargeRules", ctx, nil).Return([]domain.TransactionChargeRule{
			{Key: "TRANSFER:CUSTOMER", Kind: domain.ChargeKindFixed, Value: d("1"), AppliesTo: domain.ChargePartySender, Active: true},
		}, nil).Once()

		c := NewCalculator(repo, nil, util.DiscardLogger())
		require.NoError(t, c.Reload(ctx))
		assert.True(t, c.Compute(domain.TransactionTypeTransfer, domain.ActorRoleCustomer, d("50")).Fee.Equal(d("1")))
		repo.AssertExpectations(t)
	})

	t.Run("invalid set keeps previous snapshot", func(t *testing.T) {
		repo := new(MockChargeRuleRepository)
		repo.On("ListActiveChargeRules", ctx, nil).Return([]domain.TransactionChargeRule{
			{Key: "TRANSFER:CUSTOMER", Kind: domain.ChargeKindPercentage, Value: d("1.5"), AppliesTo: domain.ChargePartySender, Active: true},
		}, nil).Once()

		c := NewCalculator(repo, nil, util.DiscardLogger())
		require.NoError(t, c.Load([]domain.TransactionChargeRule{
			{Key: "TRANSFER:CUSTOMER", Kind: domain.ChargeKindFixed, Value: d("2"), AppliesTo: domain.ChargePartySender, Active: true},
		}))
		assert.Error(t, c.Reload(ctx))
		assert.True(t, c.Compute(domain.TransactionTypeTransfer, domain.ActorRoleCustomer, d("50")).Fee.Equal(d("2")))
	})

	t.Run("repository error", func(t *testing.T) {
		repo := new(MockChargeRuleRepository)
		repo.On("ListActiveChargeRules", ctx, nil).Return(nil, errors.New("db down")).Once()

		c := NewCalculator(repo, nil, util.DiscardLogger())
		assert.Error(t, c.Reload(ctx))
	})
}
