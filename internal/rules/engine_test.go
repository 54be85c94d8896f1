package rules

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/skyfare/ticketing/internal/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type staticSource struct {
	rules []domain.BusinessRule
}

func (s *staticSource) ActiveRules(ctx context.Context) ([]domain.BusinessRule, error) {
	return s.rules, nil
}

func newTestEngine(rules ...domain.BusinessRule) *Engine {
	return NewEngine(&staticSource{rules: rules}, zap.NewNop())
}

func agent(limit, balance int64) domain.Agent {
	return domain.Agent{
		ID:               uuid.New(),
		CreditLimitMinor: limit,
		BalanceMinor:     balance,
		Currency:         "USD",
		Active:           true,
	}
}

func TestEvaluate_AccessControlVetoWins(t *testing.T) {
	blockRule := domain.BusinessRule{
		ID:       uuid.New(),
		Type:     domain.RuleAccessControl,
		Priority: 100,
		Condition: domain.RuleCondition{
			Vendor: "galileo",
		},
		Effect: domain.RuleEffect{BlockAccess: true, Reason: "vendor suspended"},
		Active: true,
	}
	commissionRule := domain.BusinessRule{
		ID:       uuid.New(),
		Type:     domain.RuleCommission,
		Priority: 1,
		Effect:   domain.RuleEffect{CommissionMinor: 1000},
		Active:   true,
	}

	engine := newTestEngine(blockRule, commissionRule)

	effect, err := engine.Evaluate(context.Background(), EvalRequest{
		Agent:       agent(100000, 0),
		Vendor:      "galileo",
		Operation:   "issue_ticket",
		AmountMinor: 50000,
	})

	// The veto wins regardless of the pricing rules' lower priority.
	assert.Nil(t, effect)
	var perm *domain.PermissionError
	assert.ErrorAs(t, err, &perm)
	assert.Equal(t, blockRule.ID.String(), perm.RuleID)
}

func TestEvaluate_PricingAppliedInPriorityOrder(t *testing.T) {
	commission := domain.BusinessRule{
		ID:       uuid.New(),
		Type:     domain.RuleCommission,
		Priority: 1,
		Effect:   domain.RuleEffect{CommissionMinor: 10000},
		Active:   true,
	}
	// 10% off applies after the commission, so it discounts the marked-up
	// amount.
	discount := domain.BusinessRule{
		ID:       uuid.New(),
		Type:     domain.RuleDiscount,
		Priority: 2,
		Effect:   domain.RuleEffect{DiscountPercent: 10},
		Active:   true,
	}

	engine := newTestEngine(discount, commission)

	effect, err := engine.Evaluate(context.Background(), EvalRequest{
		Agent:       agent(1000000, 0),
		Operation:   "issue_ticket",
		AmountMinor: 100000,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(10000), effect.CommissionMinor)
	assert.Equal(t, int64(11000), effect.DiscountMinor)
	assert.Equal(t, int64(99000), effect.AdjustedAmountMinor)
	assert.Equal(t, []uuid.UUID{commission.ID, discount.ID}, effect.AppliedRuleIDs)
}

func TestEvaluate_RuleIDBreaksPriorityTies(t *testing.T) {
	idA := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	idB := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	first := domain.BusinessRule{
		ID:       idA,
		Type:     domain.RuleDiscount,
		Priority: 5,
		Effect:   domain.RuleEffect{DiscountMinor: 1000},
		Active:   true,
	}
	second := domain.BusinessRule{
		ID:       idB,
		Type:     domain.RuleDiscount,
		Priority: 5,
		Effect:   domain.RuleEffect{DiscountPercent: 10},
		Active:   true,
	}

	// Registered in reverse; evaluation order must still be idA then idB.
	engine := newTestEngine(second, first)

	effect, err := engine.Evaluate(context.Background(), EvalRequest{
		Agent:       agent(1000000, 0),
		AmountMinor: 101000,
	})

	assert.NoError(t, err)
	// 101000 - 1000 = 100000, then 10% of 100000.
	assert.Equal(t, int64(90000), effect.AdjustedAmountMinor)
	assert.Equal(t, []uuid.UUID{idA, idB}, effect.AppliedRuleIDs)
}

func TestEvaluate_CreditLimitChecksAdjustedAmount(t *testing.T) {
	creditRule := domain.BusinessRule{
		ID:     uuid.New(),
		Type:   domain.RuleCreditLimit,
		Active: true,
	}
	discount := domain.BusinessRule{
		ID:       uuid.New(),
		Type:     domain.RuleDiscount,
		Priority: 1,
		Effect:   domain.RuleEffect{DiscountMinor: 20000},
		Active:   true,
	}

	engine := newTestEngine(creditRule, discount)

	// Base 60000 would exceed the 50000 available, but the discounted
	// 40000 fits.
	effect, err := engine.Evaluate(context.Background(), EvalRequest{
		Agent:       agent(80000, 30000),
		AmountMinor: 60000,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(40000), effect.AdjustedAmountMinor)
	assert.Equal(t, int64(50000), effect.AvailableCredit)
}

func TestEvaluate_InsufficientCredit(t *testing.T) {
	creditRule := domain.BusinessRule{
		ID:     uuid.New(),
		Type:   domain.RuleCreditLimit,
		Active: true,
	}

	engine := newTestEngine(creditRule)

	effect, err := engine.Evaluate(context.Background(), EvalRequest{
		Agent:       agent(100000, 80000),
		AmountMinor: 50000,
	})

	assert.Nil(t, effect)
	var perm *domain.PermissionError
	assert.ErrorAs(t, err, &perm)
	assert.Equal(t, "insufficient credit", perm.Reason)
}

func TestEvaluate_ConditionFiltering(t *testing.T) {
	agentID := uuid.New()
	scoped := domain.BusinessRule{
		ID:   uuid.New(),
		Type: domain.RuleCommission,
		Condition: domain.RuleCondition{
			Vendor:         "amadeus",
			RoutePrefix:    "SVO",
			AgentID:        agentID,
			Operation:      "issue_ticket",
			MinAmountMinor: 10000,
			MaxAmountMinor: 100000,
		},
		Effect: domain.RuleEffect{CommissionMinor: 5000},
		Active: true,
	}

	engine := newTestEngine(scoped)

	a := agent(1000000, 0)
	a.ID = agentID

	match, err := engine.Evaluate(context.Background(), EvalRequest{
		Agent:       a,
		Vendor:      "amadeus",
		Route:       "SVO-JFK",
		Operation:   "issue_ticket",
		AmountMinor: 50000,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(55000), match.AdjustedAmountMinor)

	// Same request through a different vendor leaves the amount untouched.
	noMatch, err := engine.Evaluate(context.Background(), EvalRequest{
		Agent:       a,
		Vendor:      "galileo",
		Route:       "SVO-JFK",
		Operation:   "issue_ticket",
		AmountMinor: 50000,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(50000), noMatch.AdjustedAmountMinor)
	assert.Empty(t, noMatch.AppliedRuleIDs)
}

func TestEvaluate_InactiveRulesIgnored(t *testing.T) {
	inactive := domain.BusinessRule{
		ID:     uuid.New(),
		Type:   domain.RuleAccessControl,
		Effect: domain.RuleEffect{BlockAccess: true},
		Active: false,
	}

	engine := newTestEngine(inactive)

	effect, err := engine.Evaluate(context.Background(), EvalRequest{
		Agent:       agent(100000, 0),
		AmountMinor: 50000,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(50000), effect.AdjustedAmountMinor)
}

func TestEvaluate_AdjustedAmountNeverNegative(t *testing.T) {
	discount := domain.BusinessRule{
		ID:     uuid.New(),
		Type:   domain.RuleDiscount,
		Effect: domain.RuleEffect{DiscountMinor: 90000},
		Active: true,
	}

	engine := newTestEngine(discount)

	effect, err := engine.Evaluate(context.Background(), EvalRequest{
		Agent:       agent(100000, 0),
		AmountMinor: 50000,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(0), effect.AdjustedAmountMinor)
}
