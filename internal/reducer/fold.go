package reducer

import (
	"fmt"
	"slices"

	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/settlement"
)

// folder carries the in-progress state of one fold.
type folder struct {
	snap   order.Snapshot
	settle settlement.State
	opened bool
}

// Fold replays events for a single order and returns its snapshot.
//
// Events must belong to one order, start with TABLE_OPENED or ORDER_MOVED,
// and be strictly ascending by sequence. Nothing may follow a terminal
// event.
func Fold(events []order.Event) (order.Snapshot, error) {
	if len(events) == 0 {
		return order.Snapshot{}, fmt.Errorf("fold: no events")
	}
	f := &folder{settle: settlement.New()}
	if err := f.run(events); err != nil {
		return order.Snapshot{}, err
	}
	return f.finish()
}

// Resume continues a fold from a materialised snapshot, the way a replica
// does after a full sync. Events must belong to base's order and follow
// base.LastSequence.
func Resume(base order.Snapshot, events []order.Event) (order.Snapshot, error) {
	if base.OrderID == "" {
		return order.Snapshot{}, fmt.Errorf("resume: base snapshot has no order id")
	}
	if len(events) > 0 {
		if ev := events[0]; ev.OrderID != base.OrderID || ev.Sequence <= base.LastSequence {
			return order.Snapshot{}, fmt.Errorf("resume: event %d of order %s does not follow %s@%d",
				ev.Sequence, ev.OrderID, base.OrderID, base.LastSequence)
		}
	}

	snap := base
	snap.Items = slices.Clone(base.Items)
	snap.Payments = slices.Clone(base.Payments)
	snap.Comps = slices.Clone(base.Comps)
	snap.Rules = slices.Clone(base.Rules)
	snap.SkippedRuleIDs = slices.Clone(base.SkippedRuleIDs)
	snap.MergedFrom = slices.Clone(base.MergedFrom)

	f := &folder{snap: snap, settle: settlement.Restore(base.Payments), opened: true}
	if err := f.run(events); err != nil {
		return order.Snapshot{}, err
	}
	return f.finish()
}

func (f *folder) run(events []order.Event) error {
	for i, ev := range events {
		if i > 0 {
			prev := events[i-1]
			if ev.Sequence <= prev.Sequence {
				return fmt.Errorf("fold: sequence %d after %d is not ascending",
					ev.Sequence, prev.Sequence)
			}
			if ev.OrderID != prev.OrderID {
				return fmt.Errorf("fold: event %d belongs to order %s, expected %s",
					ev.Sequence, ev.OrderID, prev.OrderID)
			}
		}
		if err := f.apply(ev); err != nil {
			return fmt.Errorf("fold %s at sequence %d: %w", ev.EventType, ev.Sequence, err)
		}
	}
	return nil
}

func (f *folder) finish() (order.Snapshot, error) {
	snap := f.snap
	computeTotals(&snap, f.settle)
	sum, err := Checksum(snap)
	if err != nil {
		return order.Snapshot{}, err
	}
	snap.Checksum = sum
	return snap, nil
}

// FoldAll groups events by order id and folds each order. Events are
// expected in global sequence order, as read from the log.
func FoldAll(events []order.Event) (map[string]order.Snapshot, error) {
	byOrder := make(map[string][]order.Event)
	for _, ev := range events {
		byOrder[ev.OrderID] = append(byOrder[ev.OrderID], ev)
	}
	out := make(map[string]order.Snapshot, len(byOrder))
	for id, evs := range byOrder {
		snap, err := Fold(evs)
		if err != nil {
			return nil, err
		}
		out[id] = snap
	}
	return out, nil
}

func (f *folder) apply(ev order.Event) error {
	if ev.Payload == nil {
		return fmt.Errorf("missing payload")
	}

	switch ev.Payload.(type) {
	case order.TableOpened, order.OrderMoved:
		if f.opened {
			return fmt.Errorf("order %s already opened", ev.OrderID)
		}
	default:
		if !f.opened {
			return fmt.Errorf("order %s not opened", ev.OrderID)
		}
		if f.snap.Status.IsTerminal() {
			return fmt.Errorf("order %s is %s", ev.OrderID, f.snap.Status)
		}
	}

	s := &f.snap
	switch p := ev.Payload.(type) {
	case order.TableOpened:
		f.open(ev)
		s.TableID = p.TableID
		s.TableName = p.TableName
		s.ZoneID = p.ZoneID
		s.IsRetail = p.IsRetail
		s.GuestCount = p.GuestCount
		s.Rules = slices.Clone(p.Rules)

	case order.OrderMoved:
		f.open(ev)
		s.TableID = p.TableID
		s.TableName = p.TableName
		s.ZoneID = p.ZoneID
		s.IsRetail = p.IsRetail
		s.GuestCount = p.GuestCount
		s.Note = p.Note
		s.MovedFrom = p.FromOrderID
		s.Rules = slices.Clone(p.Rules)
		s.SkippedRuleIDs = slices.Clone(p.SkippedRuleIDs)
		s.OrderManualDiscount = p.ManualDiscount
		s.OrderManualSurcharge = p.ManualSurcharge
		if err := f.addItems(p.Items); err != nil {
			return err
		}
		s.Comps = append(s.Comps, p.Comps...)

	case order.ItemsAdded:
		if err := f.addItems(p.Items); err != nil {
			return err
		}

	case order.ItemModified:
		idx := s.FindItem(p.InstanceID)
		if idx < 0 {
			return fmt.Errorf("item %s not found", p.InstanceID)
		}
		it := &s.Items[idx]
		if c := p.Changes.Quantity; c != nil {
			it.Quantity = *c
		}
		if c := p.Changes.Price; c != nil {
			it.Price = *c
		}
		if c := p.Changes.ManualDiscountPercent; c != nil {
			it.ManualDiscountPercent = *c
		}
		if c := p.Changes.Note; c != nil {
			it.Note = *c
		}

	case order.ItemRemoved:
		idx := s.FindItem(p.InstanceID)
		if idx < 0 {
			return fmt.Errorf("item %s not found", p.InstanceID)
		}
		s.Items[idx].Quantity -= p.Quantity
		if s.Items[idx].Quantity <= 0 {
			s.Items = slices.Delete(s.Items, idx, idx+1)
			f.settle = settlement.RemoveInstance(f.settle, p.InstanceID)
		}

	case order.ItemComped:
		idx := s.FindItem(p.Comp.InstanceID)
		if idx < 0 {
			return fmt.Errorf("item %s not found", p.Comp.InstanceID)
		}
		comp := p.Comp
		comp.Sequence = ev.Sequence
		s.Items[idx].CompedQuantity += comp.Quantity
		s.Comps = append(s.Comps, comp)

	case order.ItemUncomped:
		ci := s.FindComp(p.CompID)
		if ci < 0 {
			return fmt.Errorf("comp %s not found", p.CompID)
		}
		comp := &s.Comps[ci]
		if comp.Uncomped {
			return fmt.Errorf("comp %s already reversed", p.CompID)
		}
		comp.Uncomped = true
		comp.UncompReason = p.Reason
		if idx := s.FindItem(comp.InstanceID); idx >= 0 {
			s.Items[idx].CompedQuantity -= comp.Quantity
		}

	case order.PaymentAdded:
		return f.addPayment(ev, p.Payment)
	case order.ItemSplitPaid:
		return f.addPayment(ev, p.Payment)
	case order.AmountSplitPaid:
		return f.addPayment(ev, p.Payment)
	case order.AASplitPaid:
		return f.addPayment(ev, p.Payment)

	case order.PaymentCancelled:
		pi := s.FindPayment(p.PaymentID)
		if pi < 0 {
			return fmt.Errorf("payment %s not found", p.PaymentID)
		}
		pay := &s.Payments[pi]
		if pay.Cancelled {
			return fmt.Errorf("payment %s already cancelled", p.PaymentID)
		}
		f.settle = settlement.CancelPayment(f.settle, *pay)
		pay.Cancelled = true
		pay.CancelReason = p.Reason
		pay.CancelledBy = p.AuthorizerID

	case order.OrderMovedOut:
		s.Status = order.StatusMoved
		s.MovedTo = p.ToOrderID
		s.EndTime = ev.Timestamp

	case order.OrderMerged:
		if err := f.addItems(p.Items); err != nil {
			return err
		}
		s.Comps = append(s.Comps, p.Comps...)
		s.MergedFrom = append(s.MergedFrom, p.FromOrderID)

	case order.OrderMergedOut:
		s.Status = order.StatusMerged
		s.MergedInto = p.IntoOrderID
		s.EndTime = ev.Timestamp

	case order.OrderDiscountApplied:
		s.OrderManualDiscount = p.Adjustment

	case order.OrderSurchargeApplied:
		s.OrderManualSurcharge = p.Adjustment

	case order.RuleSkipToggled:
		s.SkippedRuleIDs = slices.DeleteFunc(s.SkippedRuleIDs, func(id string) bool {
			return id == p.RuleID
		})
		if p.Skipped {
			s.SkippedRuleIDs = append(s.SkippedRuleIDs, p.RuleID)
			slices.Sort(s.SkippedRuleIDs)
		}
		if len(s.SkippedRuleIDs) == 0 {
			s.SkippedRuleIDs = nil
		}

	case order.OrderInfoUpdated:
		if p.GuestCount != nil {
			s.GuestCount = *p.GuestCount
		}
		if p.Note != nil {
			s.Note = *p.Note
		}

	case order.OrderCompleted:
		s.Status = order.StatusCompleted
		s.ReceiptNumber = p.ReceiptNumber
		s.EndTime = ev.Timestamp

	case order.OrderVoided:
		s.Status = order.StatusVoid
		s.VoidReason = p.Reason
		s.EndTime = ev.Timestamp

	default:
		return fmt.Errorf("unknown event payload %T", ev.Payload)
	}

	s.UpdatedAt = ev.Timestamp
	s.LastSequence = ev.Sequence
	return nil
}

func (f *folder) open(ev order.Event) {
	f.opened = true
	f.snap = order.Snapshot{
		OrderID:   ev.OrderID,
		Status:    order.StatusActive,
		Items:     []order.CartItem{},
		Payments:  []order.PaymentRecord{},
		Comps:     []order.CompRecord{},
		CreatedAt: ev.Timestamp,
	}
}

func (f *folder) addItems(items []order.CartItem) error {
	for _, it := range items {
		if f.snap.FindItem(it.InstanceID) >= 0 {
			return fmt.Errorf("duplicate item instance %s", it.InstanceID)
		}
		f.snap.Items = append(f.snap.Items, it.Facts())
	}
	return nil
}

func (f *folder) addPayment(ev order.Event, p order.PaymentRecord) error {
	if f.snap.FindPayment(p.PaymentID) >= 0 {
		return fmt.Errorf("duplicate payment %s", p.PaymentID)
	}
	p.Sequence = ev.Sequence
	p.Timestamp = ev.Timestamp
	p.Cancelled = false

	billable := make(map[string]int, len(f.snap.Items))
	for _, it := range f.snap.Items {
		billable[it.InstanceID] = it.BillableQuantity()
	}
	next, err := settlement.ApplyPayment(f.settle, p, billable)
	if err != nil {
		return err
	}
	f.settle = next
	f.snap.Payments = append(f.snap.Payments, p)
	return nil
}
