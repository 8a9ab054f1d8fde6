package gateway

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/LucaXiang/Crab-sub002/internal/canonical"
	"github.com/LucaXiang/Crab-sub002/internal/engine"
	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/settlement"
)

var hundred = decimal.NewFromInt(100)

// plan validates cmd and returns the order id reported in the response
// together with the events to append.
func (g *Gateway) plan(cmd order.Command) (string, []engine.Draft, error) {
	switch p := cmd.Payload.(type) {
	case order.OpenTable:
		return g.planOpenTable(cmd, p)
	case order.AddItems:
		return g.planAddItems(cmd, p)
	case order.ModifyItem:
		return g.planModifyItem(p)
	case order.RemoveItem:
		return g.planRemoveItem(p)
	case order.CompItem:
		return g.planCompItem(cmd, p)
	case order.UncompItem:
		return g.planUncompItem(p)
	case order.AddPayment:
		return g.planAddPayment(cmd, p)
	case order.CancelPayment:
		return g.planCancelPayment(p)
	case order.SplitByItems:
		return g.planSplitByItems(cmd, p)
	case order.SplitByAmount:
		return g.planSplitByAmount(cmd, p)
	case order.AASplitPay:
		return g.planAASplitPay(cmd, p)
	case order.MoveOrder:
		return g.planMoveOrder(cmd, p)
	case order.MergeOrders:
		return g.planMergeOrders(p)
	case order.ApplyOrderDiscount:
		return g.planAdjustment(p.OrderID, p.Percent, p.Amount, p.Reason, p.AuthorizerID, true)
	case order.ApplyOrderSurcharge:
		return g.planAdjustment(p.OrderID, p.Percent, p.Amount, p.Reason, p.AuthorizerID, false)
	case order.ToggleRuleSkip:
		return g.planToggleRuleSkip(p)
	case order.UpdateOrderInfo:
		return g.planUpdateOrderInfo(p)
	case order.CompleteOrder:
		return g.planCompleteOrder(p)
	case order.VoidOrder:
		return g.planVoidOrder(p)
	default:
		return "", nil, order.Errorf(order.ErrInvalidOperation, "unsupported command %T", cmd.Payload)
	}
}

func single(orderID string, p order.EventPayload) (string, []engine.Draft, error) {
	return orderID, []engine.Draft{{OrderID: orderID, Payload: p}}, nil
}

func fail(err error) (string, []engine.Draft, error) {
	return "", nil, err
}

// active returns the snapshot of an order that still accepts commands.
func (g *Gateway) active(orderID string) (order.Snapshot, error) {
	if orderID == "" {
		return order.Snapshot{}, order.Errorf(order.ErrInvalidOperation, "order_id is required")
	}
	snap, ok := g.seq.Snapshot(orderID)
	if !ok {
		return order.Snapshot{}, order.Errorf(order.ErrOrderNotFound, "order %s not found", orderID)
	}
	switch snap.Status {
	case order.StatusActive:
		return snap, nil
	case order.StatusCompleted:
		return snap, order.Errorf(order.ErrOrderAlreadyCompleted, "order %s is completed", orderID)
	case order.StatusVoid:
		return snap, order.Errorf(order.ErrOrderAlreadyVoided, "order %s is void", orderID)
	case order.StatusMoved:
		return snap, order.Errorf(order.ErrInvalidOperation, "order %s moved to %s", orderID, snap.MovedTo)
	case order.StatusMerged:
		return snap, order.Errorf(order.ErrInvalidOperation, "order %s merged into %s", orderID, snap.MergedInto)
	}
	return snap, order.Errorf(order.ErrInternal, "order %s has unknown status %s", orderID, snap.Status)
}

func item(snap order.Snapshot, instanceID string) (order.CartItem, error) {
	idx := snap.FindItem(instanceID)
	if idx < 0 {
		return order.CartItem{}, order.Errorf(order.ErrItemNotFound, "item %s not found in order %s", instanceID, snap.OrderID)
	}
	return snap.Items[idx], nil
}

func (g *Gateway) rulesFor(zoneID string, isRetail bool) []order.PricingRule {
	if g.rules == nil {
		return nil
	}
	return g.rules.RulesFor(zoneID, isRetail)
}

func (g *Gateway) planOpenTable(cmd order.Command, p order.OpenTable) (string, []engine.Draft, error) {
	if p.TableID == "" && !p.IsRetail {
		return fail(order.Errorf(order.ErrInvalidOperation, "table_id is required"))
	}
	if p.GuestCount < 0 {
		return fail(order.Errorf(order.ErrInvalidOperation, "guest_count must not be negative"))
	}
	if p.TableID != "" {
		if other, ok := g.seq.OrderForTable(p.TableID); ok {
			return fail(order.Errorf(order.ErrTableOccupied, "table %s is occupied by order %s", p.TableID, other).
				WithDetail("order_id", other))
		}
	}

	orderID := canonical.DeriveID(canonical.DomainCommand, cmd.CommandID, 0)
	return single(orderID, order.TableOpened{
		TableID:    p.TableID,
		TableName:  p.TableName,
		ZoneID:     p.ZoneID,
		IsRetail:   p.IsRetail,
		GuestCount: p.GuestCount,
		Rules:      g.rulesFor(p.ZoneID, p.IsRetail),
	})
}

func validPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}

func (g *Gateway) planAddItems(cmd order.Command, p order.AddItems) (string, []engine.Draft, error) {
	if _, err := g.active(p.OrderID); err != nil {
		return fail(err)
	}
	if len(p.Items) == 0 {
		return fail(order.Errorf(order.ErrInvalidOperation, "no items"))
	}

	items := make([]order.CartItem, len(p.Items))
	for i, in := range p.Items {
		switch {
		case in.ProductID == "":
			return fail(order.Errorf(order.ErrInvalidOperation, "item %d: product_id is required", i))
		case in.Quantity <= 0:
			return fail(order.Errorf(order.ErrInvalidOperation, "item %d: quantity must be positive", i))
		case in.Price < 0:
			return fail(order.Errorf(order.ErrInvalidAmount, "item %d: price must not be negative", i))
		case !validPercent(in.ManualDiscountPercent):
			return fail(order.Errorf(order.ErrInvalidAmount, "item %d: discount must be between 0 and 100", i))
		case in.TaxRate.IsNegative():
			return fail(order.Errorf(order.ErrInvalidAmount, "item %d: tax rate must not be negative", i))
		}
		items[i] = order.CartItem{
			InstanceID:            canonical.DeriveID(canonical.DomainInstance, cmd.CommandID, i),
			ProductID:             in.ProductID,
			Name:                  in.Name,
			CategoryID:            in.CategoryID,
			TagIDs:                slices.Clone(in.TagIDs),
			Price:                 in.Price,
			Options:               slices.Clone(in.Options),
			Quantity:              in.Quantity,
			ManualDiscountPercent: in.ManualDiscountPercent,
			TaxRate:               in.TaxRate,
			Note:                  in.Note,
		}
	}
	return single(p.OrderID, order.ItemsAdded{Items: items})
}

func (g *Gateway) planModifyItem(p order.ModifyItem) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	it, err := item(snap, p.InstanceID)
	if err != nil {
		return fail(err)
	}

	c := p.Changes
	if c.Quantity == nil && c.Price == nil && c.ManualDiscountPercent == nil && c.Note == nil {
		return fail(order.Errorf(order.ErrInvalidOperation, "no changes"))
	}
	if c.Quantity != nil {
		floor := max(it.PaidQuantity+it.CompedQuantity, 1)
		if *c.Quantity < floor {
			return fail(order.Errorf(order.ErrInsufficientQuantity,
				"quantity %d below paid and comped units (%d)", *c.Quantity, floor))
		}
	}
	if c.Price != nil {
		if *c.Price < 0 {
			return fail(order.Errorf(order.ErrInvalidAmount, "price must not be negative"))
		}
		if it.PaidQuantity > 0 {
			return fail(order.Errorf(order.ErrInvalidOperation, "price of a partly paid item cannot change"))
		}
	}
	if c.ManualDiscountPercent != nil && !validPercent(*c.ManualDiscountPercent) {
		return fail(order.Errorf(order.ErrInvalidAmount, "discount must be between 0 and 100"))
	}
	return single(p.OrderID, order.ItemModified{InstanceID: p.InstanceID, Changes: c})
}

func (g *Gateway) planRemoveItem(p order.RemoveItem) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	it, err := item(snap, p.InstanceID)
	if err != nil {
		return fail(err)
	}

	removable := it.Quantity - it.PaidQuantity - it.CompedQuantity
	qty := p.Quantity
	if qty == 0 {
		qty = removable
	}
	if qty <= 0 || qty > removable {
		return fail(order.Errorf(order.ErrInsufficientQuantity,
			"cannot remove %d of item %s: %d removable", qty, p.InstanceID, removable))
	}
	return single(p.OrderID, order.ItemRemoved{InstanceID: p.InstanceID, Quantity: qty, Reason: p.Reason})
}

func (g *Gateway) planCompItem(cmd order.Command, p order.CompItem) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	it, err := item(snap, p.InstanceID)
	if err != nil {
		return fail(err)
	}
	if p.Reason == "" || p.AuthorizerID == "" {
		return fail(order.Errorf(order.ErrInvalidOperation, "comp requires a reason and an authorizer"))
	}
	if p.Quantity <= 0 || p.Quantity > it.UnpaidQuantity {
		return fail(order.Errorf(order.ErrInsufficientQuantity,
			"cannot comp %d of item %s: %d unpaid", p.Quantity, p.InstanceID, it.UnpaidQuantity))
	}

	return single(p.OrderID, order.ItemComped{Comp: order.CompRecord{
		CompID:         canonical.DeriveID(canonical.DomainComp, cmd.CommandID, 0),
		InstanceID:     p.InstanceID,
		Quantity:       p.Quantity,
		Reason:         p.Reason,
		AuthorizerID:   p.AuthorizerID,
		AuthorizerName: p.AuthorizerName,
	}})
}

func (g *Gateway) planUncompItem(p order.UncompItem) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	idx := snap.FindComp(p.CompID)
	if idx < 0 {
		return fail(order.Errorf(order.ErrItemNotFound, "comp %s not found", p.CompID))
	}
	if snap.Comps[idx].Uncomped {
		return fail(order.Errorf(order.ErrInvalidOperation, "comp %s already reversed", p.CompID))
	}
	if p.AuthorizerID == "" {
		return fail(order.Errorf(order.ErrInvalidOperation, "uncomp requires an authorizer"))
	}
	return single(p.OrderID, order.ItemUncomped{
		CompID:         p.CompID,
		Reason:         p.Reason,
		AuthorizerID:   p.AuthorizerID,
		AuthorizerName: p.AuthorizerName,
	})
}

// tender validates the tendered amount and returns (tendered, change).
func tender(amount, tendered int64) (int64, int64, error) {
	if tendered == 0 {
		return amount, 0, nil
	}
	if tendered < amount {
		return 0, 0, order.Errorf(order.ErrInvalidAmount, "tendered %s is less than amount %s",
			order.FormatCents(tendered), order.FormatCents(amount))
	}
	return tendered, tendered - amount, nil
}

// payable checks a free-form amount against the remaining balance.
func payable(snap order.Snapshot, amount int64) error {
	if amount <= 0 {
		return order.Errorf(order.ErrInvalidAmount, "amount must be positive")
	}
	if snap.RemainingAmount <= 0 {
		return order.Errorf(order.ErrInvalidOperation, "order %s is already paid", snap.OrderID)
	}
	if amount > snap.RemainingAmount {
		return order.Errorf(order.ErrInvalidAmount, "amount %s exceeds remaining %s",
			order.FormatCents(amount), order.FormatCents(snap.RemainingAmount)).
			WithDetail("remaining", order.FormatCents(snap.RemainingAmount))
	}
	return nil
}

func requireMethod(method string) error {
	if method == "" {
		return order.Errorf(order.ErrInvalidOperation, "payment method is required")
	}
	return nil
}

func (g *Gateway) planAddPayment(cmd order.Command, p order.AddPayment) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	if err := requireMethod(p.Method); err != nil {
		return fail(err)
	}
	if snap.AATotalShares > 0 {
		return fail(order.Errorf(order.ErrInvalidOperation, "order %s is in AA split", p.OrderID))
	}
	if err := payable(snap, p.Amount); err != nil {
		return fail(err)
	}
	tendered, change, err := tender(p.Amount, p.Tendered)
	if err != nil {
		return fail(err)
	}

	return single(p.OrderID, order.PaymentAdded{Payment: order.PaymentRecord{
		PaymentID: canonical.DeriveID(canonical.DomainPayment, cmd.CommandID, 0),
		Method:    p.Method,
		Amount:    p.Amount,
		Tendered:  tendered,
		Change:    change,
		Note:      p.Note,
		SplitMode: order.SplitNone,
	}})
}

func (g *Gateway) planCancelPayment(p order.CancelPayment) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	idx := snap.FindPayment(p.PaymentID)
	if idx < 0 {
		return fail(order.Errorf(order.ErrPaymentNotFound, "payment %s not found", p.PaymentID))
	}
	if snap.Payments[idx].Cancelled {
		return fail(order.Errorf(order.ErrInvalidOperation, "payment %s already cancelled", p.PaymentID))
	}
	if p.Reason == "" {
		return fail(order.Errorf(order.ErrInvalidOperation, "cancel requires a reason"))
	}
	return single(p.OrderID, order.PaymentCancelled{
		PaymentID:      p.PaymentID,
		Reason:         p.Reason,
		AuthorizerID:   p.AuthorizerID,
		AuthorizerName: p.AuthorizerName,
	})
}

func (g *Gateway) planSplitByItems(cmd order.Command, p order.SplitByItems) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	if err := requireMethod(p.Method); err != nil {
		return fail(err)
	}
	switch {
	case snap.AATotalShares > 0:
		return fail(order.Errorf(order.ErrInvalidOperation, "order %s is in AA split", p.OrderID))
	case snap.HasAmountSplit:
		return fail(order.Errorf(order.ErrInvalidOperation, "order %s has an active amount split", p.OrderID))
	case snap.RemainingAmount <= 0:
		return fail(order.Errorf(order.ErrInvalidOperation, "order %s is already paid", p.OrderID))
	case len(p.Items) == 0:
		return fail(order.Errorf(order.ErrInvalidOperation, "no items to pay"))
	}
	for _, pay := range snap.Payments {
		if !pay.Cancelled && pay.SplitMode == order.SplitNone {
			return fail(order.Errorf(order.ErrInvalidOperation,
				"order %s has whole-order payments; cancel them before an item split", p.OrderID))
		}
	}

	seen := make(map[string]bool, len(p.Items))
	split := make([]order.SplitItem, len(p.Items))
	for i, s := range p.Items {
		if seen[s.InstanceID] {
			return fail(order.Errorf(order.ErrInvalidOperation, "item %s listed twice", s.InstanceID))
		}
		seen[s.InstanceID] = true

		it, err := item(snap, s.InstanceID)
		if err != nil {
			return fail(err)
		}
		if s.Quantity <= 0 || s.Quantity > it.UnpaidQuantity {
			return fail(order.Errorf(order.ErrInsufficientQuantity,
				"cannot pay %d of item %s: %d unpaid", s.Quantity, s.InstanceID, it.UnpaidQuantity))
		}
		gross := it.LineTotal + it.TaxAmount
		share := settlement.ItemSplitAmount(gross, it.BillableQuantity(), it.PaidQuantity, s.Quantity)
		split[i] = order.SplitItem{InstanceID: s.InstanceID, Quantity: s.Quantity, Amount: share}
	}
	amount := settlement.CapItemSplit(split, snap.RemainingAmount)

	tendered, change, err := tender(amount, p.Tendered)
	if err != nil {
		return fail(err)
	}
	return single(p.OrderID, order.ItemSplitPaid{Payment: order.PaymentRecord{
		PaymentID: canonical.DeriveID(canonical.DomainPayment, cmd.CommandID, 0),
		Method:    p.Method,
		Amount:    amount,
		Tendered:  tendered,
		Change:    change,
		SplitMode: order.SplitItems,
		Items:     split,
	}})
}

func (g *Gateway) planSplitByAmount(cmd order.Command, p order.SplitByAmount) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	if err := requireMethod(p.Method); err != nil {
		return fail(err)
	}
	if snap.AATotalShares > 0 {
		return fail(order.Errorf(order.ErrInvalidOperation, "order %s is in AA split", p.OrderID))
	}
	if err := payable(snap, p.Amount); err != nil {
		return fail(err)
	}
	tendered, change, err := tender(p.Amount, p.Tendered)
	if err != nil {
		return fail(err)
	}

	return single(p.OrderID, order.AmountSplitPaid{Payment: order.PaymentRecord{
		PaymentID: canonical.DeriveID(canonical.DomainPayment, cmd.CommandID, 0),
		Method:    p.Method,
		Amount:    p.Amount,
		Tendered:  tendered,
		Change:    change,
		SplitMode: order.SplitAmount,
	}})
}

func (g *Gateway) planAASplitPay(cmd order.Command, p order.AASplitPay) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	if err := requireMethod(p.Method); err != nil {
		return fail(err)
	}

	totalShares := snap.AATotalShares
	if totalShares == 0 {
		for _, pay := range snap.Payments {
			if !pay.Cancelled && pay.SplitMode != order.SplitAA {
				return fail(order.Errorf(order.ErrInvalidOperation,
					"order %s has non-AA payments; cancel them before an AA split", p.OrderID))
			}
		}
		if p.TotalShares <= 0 {
			return fail(order.Errorf(order.ErrInvalidOperation, "total_shares is required for the first AA payment"))
		}
		totalShares = p.TotalShares
	} else if p.TotalShares != 0 && p.TotalShares != totalShares {
		return fail(order.Errorf(order.ErrInvalidOperation,
			"AA split is locked at %d shares", totalShares).
			WithDetail("total_shares", decimal.NewFromInt(int64(totalShares)).String()))
	}

	amount, err := settlement.AAPaymentAmount(snap.Total, snap.RemainingAmount, totalShares, snap.AAPaidShares, p.Shares)
	if err != nil {
		return fail(err)
	}
	tendered, change, err := tender(amount, p.Tendered)
	if err != nil {
		return fail(err)
	}

	return single(p.OrderID, order.AASplitPaid{Payment: order.PaymentRecord{
		PaymentID:     canonical.DeriveID(canonical.DomainPayment, cmd.CommandID, 0),
		Method:        p.Method,
		Amount:        amount,
		Tendered:      tendered,
		Change:        change,
		SplitMode:     order.SplitAA,
		AAShares:      p.Shares,
		AATotalShares: totalShares,
	}})
}

func carriedItems(snap order.Snapshot) []order.CartItem {
	items := make([]order.CartItem, len(snap.Items))
	for i, it := range snap.Items {
		items[i] = it.Facts()
	}
	return items
}

func (g *Gateway) planMoveOrder(cmd order.Command, p order.MoveOrder) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	switch {
	case p.TargetTableID == "":
		return fail(order.Errorf(order.ErrInvalidOperation, "target_table_id is required"))
	case p.TargetTableID == snap.TableID:
		return fail(order.Errorf(order.ErrInvalidOperation, "order %s is already on table %s", p.OrderID, p.TargetTableID))
	case snap.ActivePaymentCount() > 0:
		return fail(order.Errorf(order.ErrInvalidOperation, "order %s has active payments", p.OrderID))
	}
	if other, ok := g.seq.OrderForTable(p.TargetTableID); ok {
		return fail(order.Errorf(order.ErrTableOccupied, "table %s is occupied by order %s", p.TargetTableID, other).
			WithDetail("order_id", other))
	}

	zone := snap.ZoneID
	rules := snap.Rules
	if p.TargetZoneID != "" && p.TargetZoneID != snap.ZoneID {
		zone = p.TargetZoneID
		if g.rules != nil {
			rules = g.rulesFor(zone, snap.IsRetail)
		}
	}

	newID := canonical.DeriveID(canonical.DomainCommand, cmd.CommandID, 0)
	return newID, []engine.Draft{
		{OrderID: p.OrderID, Payload: order.OrderMovedOut{
			ToOrderID:   newID,
			ToTableID:   p.TargetTableID,
			ToTableName: p.TargetTableName,
		}},
		{OrderID: newID, Payload: order.OrderMoved{
			FromOrderID:     p.OrderID,
			TableID:         p.TargetTableID,
			TableName:       p.TargetTableName,
			ZoneID:          zone,
			IsRetail:        snap.IsRetail,
			GuestCount:      snap.GuestCount,
			Note:            snap.Note,
			Items:           carriedItems(snap),
			Comps:           slices.Clone(snap.Comps),
			Rules:           slices.Clone(rules),
			SkippedRuleIDs:  slices.Clone(snap.SkippedRuleIDs),
			ManualDiscount:  snap.OrderManualDiscount,
			ManualSurcharge: snap.OrderManualSurcharge,
		}},
	}, nil
}

func (g *Gateway) planMergeOrders(p order.MergeOrders) (string, []engine.Draft, error) {
	if p.SourceOrderID == p.TargetOrderID {
		return fail(order.Errorf(order.ErrInvalidOperation, "cannot merge an order into itself"))
	}
	source, err := g.active(p.SourceOrderID)
	if err != nil {
		return fail(err)
	}
	if _, err := g.active(p.TargetOrderID); err != nil {
		return fail(err)
	}
	if source.ActivePaymentCount() > 0 {
		return fail(order.Errorf(order.ErrInvalidOperation, "order %s has active payments", p.SourceOrderID))
	}

	return p.TargetOrderID, []engine.Draft{
		{OrderID: p.SourceOrderID, Payload: order.OrderMergedOut{IntoOrderID: p.TargetOrderID}},
		{OrderID: p.TargetOrderID, Payload: order.OrderMerged{
			FromOrderID: p.SourceOrderID,
			Items:       carriedItems(source),
			Comps:       slices.Clone(source.Comps),
		}},
	}, nil
}

func (g *Gateway) planAdjustment(orderID string, percent *decimal.Decimal, amount int64, reason, authorizer string, discount bool) (string, []engine.Draft, error) {
	if _, err := g.active(orderID); err != nil {
		return fail(err)
	}

	var adj *order.ManualAdjustment
	switch {
	case percent != nil && amount != 0:
		return fail(order.Errorf(order.ErrInvalidOperation, "set either percent or amount, not both"))
	case percent != nil:
		if percent.IsNegative() || (discount && percent.GreaterThan(hundred)) {
			return fail(order.Errorf(order.ErrInvalidAmount, "invalid percent %s", percent.String()))
		}
		pct := *percent
		adj = &order.ManualAdjustment{Percent: &pct, Reason: reason, AuthorizerID: authorizer}
	case amount < 0:
		return fail(order.Errorf(order.ErrInvalidAmount, "amount must not be negative"))
	case amount > 0:
		adj = &order.ManualAdjustment{Amount: amount, Reason: reason, AuthorizerID: authorizer}
	}

	if discount {
		return single(orderID, order.OrderDiscountApplied{Adjustment: adj})
	}
	return single(orderID, order.OrderSurchargeApplied{Adjustment: adj})
}

func (g *Gateway) planToggleRuleSkip(p order.ToggleRuleSkip) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	known := slices.ContainsFunc(snap.Rules, func(r order.PricingRule) bool { return r.ID == p.RuleID })
	if !known {
		return fail(order.Errorf(order.ErrInvalidOperation, "rule %s does not apply to order %s", p.RuleID, p.OrderID))
	}
	return single(p.OrderID, order.RuleSkipToggled{RuleID: p.RuleID, Skipped: p.Skipped})
}

func (g *Gateway) planUpdateOrderInfo(p order.UpdateOrderInfo) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	if p.GuestCount == nil && p.Note == nil {
		return fail(order.Errorf(order.ErrInvalidOperation, "no changes"))
	}
	if p.GuestCount != nil {
		if *p.GuestCount < 0 {
			return fail(order.Errorf(order.ErrInvalidOperation, "guest_count must not be negative"))
		}
		if snap.AATotalShares > 0 && *p.GuestCount != snap.GuestCount {
			return fail(order.Errorf(order.ErrInvalidOperation,
				"guest count is locked by the AA split (%d shares)", snap.AATotalShares))
		}
	}
	return single(p.OrderID, order.OrderInfoUpdated{GuestCount: p.GuestCount, Note: p.Note})
}

func (g *Gateway) planCompleteOrder(p order.CompleteOrder) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	if snap.RemainingAmount > 0 {
		return fail(order.Errorf(order.ErrInvalidOperation, "order %s has %s remaining",
			p.OrderID, order.FormatCents(snap.RemainingAmount)).
			WithDetail("remaining", order.FormatCents(snap.RemainingAmount)))
	}
	if snap.AATotalShares > 0 && snap.AAPaidShares < snap.AATotalShares {
		return fail(order.Errorf(order.ErrInvalidOperation, "AA split has %d of %d shares paid",
			snap.AAPaidShares, snap.AATotalShares))
	}
	return single(p.OrderID, order.OrderCompleted{ReceiptNumber: p.ReceiptNumber})
}

func (g *Gateway) planVoidOrder(p order.VoidOrder) (string, []engine.Draft, error) {
	snap, err := g.active(p.OrderID)
	if err != nil {
		return fail(err)
	}
	if p.Reason == "" {
		return fail(order.Errorf(order.ErrInvalidOperation, "void requires a reason"))
	}
	if n := snap.ActivePaymentCount(); n > 0 {
		return fail(order.Errorf(order.ErrInvalidOperation,
			"order %s has %d active payments; cancel them first", p.OrderID, n))
	}
	return single(p.OrderID, order.OrderVoided{Reason: p.Reason, AuthorizerID: p.AuthorizerID})
}
