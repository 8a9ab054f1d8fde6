package pricing

import (
	"slices"
	"sort"

	"github.com/samber/lo"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// Target is the context a rule set is evaluated against.
//
// For LevelItem, Base is the base unit price of the line item.
// For LevelOrder, Base is the order amount before order-level adjustments.
type Target struct {
	Level      order.RuleLevel
	ProductID  string
	CategoryID string
	TagIDs     []string
	ZoneID     string
	IsRetail   bool
	Base       int64
}

// ItemTarget builds the evaluation target for a cart item.
func ItemTarget(item order.CartItem, zoneID string, isRetail bool, base int64) Target {
	return Target{
		Level:      order.LevelItem,
		ProductID:  item.ProductID,
		CategoryID: item.CategoryID,
		TagIDs:     item.TagIDs,
		ZoneID:     zoneID,
		IsRetail:   isRetail,
		Base:       base,
	}
}

// OrderTarget builds the evaluation target for order-level rules.
func OrderTarget(zoneID string, isRetail bool, base int64) Target {
	return Target{
		Level:    order.LevelOrder,
		ZoneID:   zoneID,
		IsRetail: isRetail,
		Base:     base,
	}
}

// Evaluate returns the rules that apply to target, plus every matching
// rule listed in skipped (with Skipped set and a zero amount).
//
// The result is sorted by priority descending, then rule id.
func Evaluate(target Target, rules []order.PricingRule, skipped []string) []order.AppliedRule {
	candidates := lo.Filter(rules, func(r order.PricingRule, _ int) bool {
		return Matches(r, target)
	})
	if len(candidates) == 0 {
		return nil
	}

	var result []order.AppliedRule
	var active []order.PricingRule
	for _, r := range candidates {
		if slices.Contains(skipped, r.ID) {
			applied := toApplied(r, 0)
			applied.Skipped = true
			result = append(result, applied)
			continue
		}
		active = append(active, r)
	}

	byDirection := lo.GroupBy(active, func(r order.PricingRule) order.Direction {
		return r.Direction
	})
	for _, dir := range []order.Direction{order.DirectionDiscount, order.DirectionSurcharge} {
		for _, r := range resolve(byDirection[dir]) {
			result = append(result, toApplied(r, Amount(r, target.Base)))
		}
	}

	sortApplied(result)
	return result
}

// resolve picks the rules of one direction that take effect.
func resolve(rules []order.PricingRule) []order.PricingRule {
	sorted := slices.Clone(rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	var out []order.PricingRule
	singleTaken := false
	for _, r := range sorted {
		switch {
		case r.Exclusive:
			return append(out, r)
		case r.Stackable:
			out = append(out, r)
		case !singleTaken:
			out = append(out, r)
			singleTaken = true
		}
	}
	return out
}

// Amount computes the adjustment of r against base. Always non-negative;
// the direction carries the sign.
func Amount(r order.PricingRule, base int64) int64 {
	var amt int64
	switch r.AdjustmentType {
	case order.AdjustmentPercentage:
		amt = order.Percent(base, r.Value)
	case order.AdjustmentFixed:
		amt = order.Cents(r.Value)
	}
	if amt < 0 {
		return 0
	}
	return amt
}

// Totals sums the discount and surcharge amounts of applied rules,
// ignoring skipped entries.
func Totals(applied []order.AppliedRule) (discount, surcharge int64) {
	for _, a := range applied {
		if a.Skipped {
			continue
		}
		switch a.Direction {
		case order.DirectionDiscount:
			discount += a.Amount
		case order.DirectionSurcharge:
			surcharge += a.Amount
		}
	}
	return discount, surcharge
}

// CapDiscounts trims the discount entries of applied so their amounts sum
// to at most limit, and returns that sum. The lowest priority entries are
// trimmed first, so each entry still reports what it took off.
func CapDiscounts(applied []order.AppliedRule, limit int64) int64 {
	discount, _ := Totals(applied)
	excess := discount - max(limit, 0)
	for i := len(applied) - 1; i >= 0 && excess > 0; i-- {
		a := &applied[i]
		if a.Skipped || a.Direction != order.DirectionDiscount {
			continue
		}
		cut := min(a.Amount, excess)
		a.Amount -= cut
		excess -= cut
		discount -= cut
	}
	return discount
}

func toApplied(r order.PricingRule, amount int64) order.AppliedRule {
	return order.AppliedRule{
		RuleID:         r.ID,
		Name:           r.Name,
		Level:          levelOf(r),
		Scope:          r.Scope,
		Direction:      r.Direction,
		AdjustmentType: r.AdjustmentType,
		Value:          r.Value,
		Priority:       r.Priority,
		Amount:         amount,
		Stackable:      r.Stackable,
		Exclusive:      r.Exclusive,
	}
}

func sortApplied(applied []order.AppliedRule) {
	sort.SliceStable(applied, func(i, j int) bool {
		if applied[i].Priority != applied[j].Priority {
			return applied[i].Priority > applied[j].Priority
		}
		return applied[i].RuleID < applied[j].RuleID
	})
}
