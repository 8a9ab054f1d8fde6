package pricing

import (
	"slices"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// Matches reports whether r targets t by level, zone and scope.
func Matches(r order.PricingRule, t Target) bool {
	if levelOf(r) != t.Level {
		return false
	}
	if !MatchesZone(r.ZoneScope, t.ZoneID, t.IsRetail) {
		return false
	}
	switch r.Scope {
	case order.ScopeGlobal, "":
		return true
	case order.ScopeCategory:
		return t.CategoryID != "" && r.TargetID == t.CategoryID
	case order.ScopeTag:
		return r.TargetID != "" && slices.Contains(t.TagIDs, r.TargetID)
	case order.ScopeProduct:
		return t.ProductID != "" && r.TargetID == t.ProductID
	}
	return false
}

// MatchesZone applies the zone scope: "all" (or empty) matches everything,
// "retail" matches retail orders, anything else must equal the zone id.
func MatchesZone(scope, zoneID string, isRetail bool) bool {
	switch scope {
	case order.ZoneAll, "":
		return true
	case order.ZoneRetail:
		return isRetail
	}
	return !isRetail && scope == zoneID
}

// levelOf defaults an unset level to item level.
func levelOf(r order.PricingRule) order.RuleLevel {
	if r.Level == "" {
		return order.LevelItem
	}
	return r.Level
}

// ForZone returns the rules that can ever apply to an order in the given
// zone. Used to capture an order's rule set when it is opened.
func ForZone(rules []order.PricingRule, zoneID string, isRetail bool) []order.PricingRule {
	var out []order.PricingRule
	for _, r := range rules {
		if MatchesZone(r.ZoneScope, zoneID, isRetail) {
			out = append(out, r)
		}
	}
	return out
}
