// Package rules evaluates prioritized business rules against an (agent,
// operation) pair. The engine is pure: it never calls the GDS and has no
// side effects beyond producing an effect or a veto.
package rules

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/skyfare/ticketing/internal/domain"
	"go.uber.org/zap"
)

// RuleSource supplies the active rule set. Backed by the business_rules
// table in production, by a slice in tests.
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]domain.BusinessRule, error)
}

type EvalRequest struct {
	Agent       domain.Agent
	Vendor      string
	Route       string
	Operation   string
	AmountMinor int64
}

// Effect is the composed outcome of all applicable pricing rules.
// AdjustedAmountMinor is the amount the credit check ran against and the
// amount the orchestrator will debit.
type Effect struct {
	BaseAmountMinor     int64
	CommissionMinor     int64
	DiscountMinor       int64
	AdjustedAmountMinor int64
	AvailableCredit     int64
	AppliedRuleIDs      []uuid.UUID
}

type Engine struct {
	source RuleSource
	log    *zap.Logger
}

func NewEngine(source RuleSource, log *zap.Logger) *Engine {
	return &Engine{source: source, log: log}
}

// Evaluate runs access-control rules first (any applicable rule with
// block_access vetoes the whole operation), then applies commission and
// discount rules in ascending priority order with rule id as the
// tie-break, and finally checks the agent's available credit against the
// adjusted total.
func (e *Engine) Evaluate(ctx context.Context, req EvalRequest) (*Effect, error) {
	all, err := e.source.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	applicable := make([]domain.BusinessRule, 0, len(all))
	for _, rule := range all {
		if rule.Active && matches(rule.Condition, req) {
			applicable = append(applicable, rule)
		}
	}
	sort.Slice(applicable, func(i, j int) bool {
		if applicable[i].Priority != applicable[j].Priority {
			return applicable[i].Priority < applicable[j].Priority
		}
		return applicable[i].ID.String() < applicable[j].ID.String()
	})

	effect := &Effect{
		BaseAmountMinor:     req.AmountMinor,
		AdjustedAmountMinor: req.AmountMinor,
	}

	for _, rule := range applicable {
		switch rule.Type {
		case domain.RuleAccessControl, domain.RulePermission:
			if rule.Effect.BlockAccess {
				e.log.Debug("operation vetoed",
					zap.String("rule_id", rule.ID.String()),
					zap.String("operation", req.Operation))
				return nil, &domain.PermissionError{RuleID: rule.ID.String(), Reason: rule.Effect.Reason}
			}
		}
	}

	for _, rule := range applicable {
		switch rule.Type {
		case domain.RuleCommission:
			effect.CommissionMinor += rule.Effect.CommissionMinor
			effect.AdjustedAmountMinor += rule.Effect.CommissionMinor
			effect.AppliedRuleIDs = append(effect.AppliedRuleIDs, rule.ID)
		case domain.RuleDiscount:
			var off int64
			if rule.Effect.DiscountPercent > 0 {
				off = int64(float64(effect.AdjustedAmountMinor) * rule.Effect.DiscountPercent / 100)
			} else {
				off = rule.Effect.DiscountMinor
			}
			effect.DiscountMinor += off
			effect.AdjustedAmountMinor -= off
			effect.AppliedRuleIDs = append(effect.AppliedRuleIDs, rule.ID)
		}
	}
	if effect.AdjustedAmountMinor < 0 {
		effect.AdjustedAmountMinor = 0
	}

	for _, rule := range applicable {
		if rule.Type != domain.RuleCreditLimit {
			continue
		}
		available := req.Agent.CreditLimitMinor - req.Agent.BalanceMinor
		effect.AvailableCredit = available
		if available < effect.AdjustedAmountMinor {
			return nil, &domain.PermissionError{
				RuleID: rule.ID.String(),
				Reason: "insufficient credit",
			}
		}
		effect.AppliedRuleIDs = append(effect.AppliedRuleIDs, rule.ID)
	}

	return effect, nil
}

func matches(cond domain.RuleCondition, req EvalRequest) bool {
	if cond.Vendor != "" && cond.Vendor != req.Vendor {
		return false
	}
	if cond.RoutePrefix != "" && !strings.HasPrefix(req.Route, cond.RoutePrefix) {
		return false
	}
	if cond.AgentID != uuid.Nil && cond.AgentID != req.Agent.ID {
		return false
	}
	if cond.Operation != "" && cond.Operation != req.Operation {
		return false
	}
	if cond.MinAmountMinor > 0 && req.AmountMinor < cond.MinAmountMinor {
		return false
	}
	if cond.MaxAmountMinor > 0 && req.AmountMinor > cond.MaxAmountMinor {
		return false
	}
	return true
}
