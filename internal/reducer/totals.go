package reducer

import (
	"github.com/samber/lo"

	"github.com/LucaXiang/Crab-sub002/internal/canonical"
	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/pricing"
	"github.com/LucaXiang/Crab-sub002/internal/settlement"
)

// computeTotals derives every computed field of s from its facts.
func computeTotals(s *order.Snapshot, st settlement.State) {
	itemRules := lo.Filter(s.Rules, func(r order.PricingRule, _ int) bool {
		return r.Level != order.LevelOrder
	})
	orderRules := lo.Filter(s.Rules, func(r order.PricingRule, _ int) bool {
		return r.Level == order.LevelOrder
	})

	var (
		original, subtotal        int64
		itemManual, itemRuleDisc  int64
		itemRuleSur, lineTotalSum int64
		tax                       int64
	)
	for i := range s.Items {
		it := &s.Items[i]
		priceLine(it, s, itemRules, st)

		original += it.BaseUnitPrice * int64(it.Quantity)
		subtotal += it.BaseUnitPrice * int64(it.BillableQuantity())
		itemManual += it.ManualDiscountAmount
		itemRuleDisc += it.RuleDiscountAmount
		itemRuleSur += it.RuleSurchargeAmount
		lineTotalSum += it.LineTotal
		tax += it.TaxAmount
	}

	// Order-level adjustments use the sum of line totals as their base.
	s.OrderAppliedRules = pricing.Evaluate(
		pricing.OrderTarget(s.ZoneID, s.IsRetail, lineTotalSum), orderRules, s.SkippedRuleIDs)
	_, orderRuleSur := pricing.Totals(s.OrderAppliedRules)
	manualDisc := adjustmentAmount(s.OrderManualDiscount, lineTotalSum)
	manualSur := adjustmentAmount(s.OrderManualSurcharge, lineTotalSum)

	// Discounts never take the pre-tax amount below zero.
	ceiling := lineTotalSum + orderRuleSur + manualSur
	orderRuleDisc := pricing.CapDiscounts(s.OrderAppliedRules, ceiling)
	manualDisc = min(manualDisc, ceiling-orderRuleDisc)

	s.OriginalTotal = original
	s.Subtotal = subtotal
	s.CompTotal = original - subtotal
	s.ItemManualDiscountAmount = itemManual
	s.ItemRuleDiscountAmount = itemRuleDisc
	s.ItemRuleSurchargeAmount = itemRuleSur
	s.OrderRuleDiscountAmount = orderRuleDisc
	s.OrderRuleSurchargeAmount = orderRuleSur
	s.OrderManualDiscountAmount = manualDisc
	s.OrderManualSurchargeAmount = manualSur

	s.TotalDiscount = itemManual + itemRuleDisc + orderRuleDisc + manualDisc
	s.TotalSurcharge = itemRuleSur + orderRuleSur + manualSur
	s.Discount = s.TotalDiscount
	s.Tax = tax
	s.Total = s.Subtotal - s.TotalDiscount + s.TotalSurcharge + s.Tax

	s.PaidAmount = st.PaidAmount
	s.RemainingAmount = s.Total - s.PaidAmount
	s.HasAmountSplit = st.HasAmountSplit()
	s.HasItemSplit = st.HasItemSplit()
	s.AATotalShares = st.AATotalShares
	s.AAPaidShares = st.AAPaidShares
}

// priceLine fills the computed fields of one line item. Per-unit amounts
// are taken against the base unit price, never against another
// adjustment's output.
func priceLine(it *order.CartItem, s *order.Snapshot, rules []order.PricingRule, st settlement.State) {
	base := it.Price
	for _, opt := range it.Options {
		base += opt.PriceModifier
	}
	if base < 0 {
		base = 0
	}

	applied := pricing.Evaluate(pricing.ItemTarget(*it, s.ZoneID, s.IsRetail, base), rules, s.SkippedRuleIDs)
	_, ruleSur := pricing.Totals(applied)
	manual := order.Percent(base, it.ManualDiscountPercent)

	ceiling := base + ruleSur
	manual = min(max(manual, 0), ceiling)
	ruleDisc := pricing.CapDiscounts(applied, ceiling-manual)

	billable := int64(it.BillableQuantity())
	paid := st.PaidQuantities[it.InstanceID]

	it.BaseUnitPrice = base
	it.UnitPrice = base - manual - ruleDisc + ruleSur
	it.ManualDiscountAmount = manual * billable
	it.RuleDiscountAmount = ruleDisc * billable
	it.RuleSurchargeAmount = ruleSur * billable
	it.LineTotal = it.UnitPrice * billable
	it.TaxAmount = order.Percent(it.LineTotal, it.TaxRate)
	it.AppliedRules = applied
	it.PaidQuantity = paid
	it.UnpaidQuantity = max(it.BillableQuantity()-paid, 0)
}

func adjustmentAmount(adj *order.ManualAdjustment, base int64) int64 {
	if adj == nil {
		return 0
	}
	if adj.Percent != nil {
		return max(order.Percent(base, *adj.Percent), 0)
	}
	return max(adj.Amount, 0)
}

// Checksum is the drift-detection digest of a snapshot: the first 16 hex
// characters of the domain-separated hash of
// {item_count, last_sequence, paid_amount, status, total}.
func Checksum(s order.Snapshot) (string, error) {
	count := 0
	for _, it := range s.Items {
		count += it.Quantity
	}
	return canonical.ShortHash(canonical.DomainSnapshot, map[string]any{
		"item_count":    count,
		"last_sequence": s.LastSequence,
		"paid_amount":   s.PaidAmount,
		"status":        string(s.Status),
		"total":         s.Total,
	})
}
