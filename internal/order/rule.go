package order

import "github.com/shopspring/decimal"

// RuleScope is the targeting dimension of a pricing rule.
type RuleScope string

const (
	ScopeGlobal   RuleScope = "GLOBAL"
	ScopeCategory RuleScope = "CATEGORY"
	ScopeTag      RuleScope = "TAG"
	ScopeProduct  RuleScope = "PRODUCT"
)

// RuleLevel selects whether a rule adjusts line items or the order as a whole.
type RuleLevel string

const (
	LevelItem  RuleLevel = "ITEM"
	LevelOrder RuleLevel = "ORDER"
)

// Direction is the sign of an adjustment.
type Direction string

const (
	DirectionDiscount  Direction = "DISCOUNT"
	DirectionSurcharge Direction = "SURCHARGE"
)

// AdjustmentType selects how a rule value is interpreted.
type AdjustmentType string

const (
	// AdjustmentPercentage treats Value as percent of the base (10 = 10%).
	AdjustmentPercentage AdjustmentType = "PERCENTAGE"
	// AdjustmentFixed treats Value as an amount in currency units (2.50).
	AdjustmentFixed AdjustmentType = "FIXED_AMOUNT"
)

// Zone scopes understood by rule matching. Any other value is a zone id.
const (
	ZoneAll    = "all"
	ZoneRetail = "retail"
)

// PricingRule is a rule definition as captured into an order at open time.
type PricingRule struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Level          RuleLevel       `json:"level"`
	Scope          RuleScope       `json:"scope"`
	TargetID       string          `json:"target_id,omitempty"`
	ZoneScope      string          `json:"zone_scope"`
	Direction      Direction       `json:"direction"`
	AdjustmentType AdjustmentType  `json:"adjustment_type"`
	Value          decimal.Decimal `json:"value"`
	Priority       int             `json:"priority"`
	Stackable      bool            `json:"stackable"`
	Exclusive      bool            `json:"exclusive"`
}

// AppliedRule is the immutable record of one rule's effect at evaluation time.
//
// Amount is per unit for ITEM level rules and for the whole order for ORDER
// level rules. Skipped rules are listed with Amount zero.
type AppliedRule struct {
	RuleID         string          `json:"rule_id"`
	Name           string          `json:"name"`
	Level          RuleLevel       `json:"level"`
	Scope          RuleScope       `json:"scope"`
	Direction      Direction       `json:"direction"`
	AdjustmentType AdjustmentType  `json:"adjustment_type"`
	Value          decimal.Decimal `json:"value"`
	Priority       int             `json:"priority"`
	Amount         int64           `json:"amount"`
	Stackable      bool            `json:"stackable"`
	Exclusive      bool            `json:"exclusive"`
	Skipped        bool            `json:"skipped"`
}
