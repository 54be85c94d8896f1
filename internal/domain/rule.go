package domain

import "github.com/google/uuid"

type RuleType string

const (
	RuleAccessControl RuleType = "access_control"
	RuleCreditLimit   RuleType = "credit_limit"
	RuleCommission    RuleType = "commission"
	RuleDiscount      RuleType = "discount"
	RulePermission    RuleType = "permission"
)

// RuleCondition is the serialized applicability predicate of a rule. Empty
// fields match anything.
type RuleCondition struct {
	Vendor         string    `json:"vendor,omitempty"`
	RoutePrefix    string    `json:"route_prefix,omitempty"`
	AgentID        uuid.UUID `json:"agent_id,omitempty"`
	Operation      string    `json:"operation,omitempty"`
	MinAmountMinor int64     `json:"min_amount_minor,omitempty"`
	MaxAmountMinor int64     `json:"max_amount_minor,omitempty"`
}

// RuleEffect is the action payload. Which fields matter depends on the rule
// type: access_control reads BlockAccess, commission reads
// CommissionMinor, discount reads DiscountPercent or DiscountMinor.
type RuleEffect struct {
	BlockAccess     bool    `json:"block_access,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	CommissionMinor int64   `json:"commission_minor,omitempty"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	DiscountMinor   int64   `json:"discount_minor,omitempty"`
}

type BusinessRule struct {
	ID        uuid.UUID
	Type      RuleType
	Priority  int
	Condition RuleCondition
	Effect    RuleEffect
	Active    bool
}
