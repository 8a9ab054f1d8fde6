package settlement

import (
	"maps"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// State is the settlement progress of one order.
type State struct {
	// PaidQuantities maps instance id to item-split paid units.
	PaidQuantities map[string]int

	PaidAmount int64

	ItemSplitCount   int
	AmountSplitCount int

	// AATotalShares is zero until the first AA payment locks it.
	AATotalShares int
	AAPaidShares  int
}

// New returns an empty settlement state.
func New() State {
	return State{PaidQuantities: make(map[string]int)}
}

// HasAmountSplit reports whether an active amount-split payment exists.
func (s State) HasAmountSplit() bool { return s.AmountSplitCount > 0 }

// HasItemSplit reports whether an active item-split payment exists.
func (s State) HasItemSplit() bool { return s.ItemSplitCount > 0 }

// AALocked reports whether the AA share count has been fixed.
func (s State) AALocked() bool { return s.AATotalShares > 0 }

// Remaining returns total minus paid. Negative means overpaid.
func (s State) Remaining(total int64) int64 {
	return total - s.PaidAmount
}

// IsPaid reports whether the order balance is settled.
func (s State) IsPaid(total int64) bool {
	if s.AALocked() && s.AAPaidShares < s.AATotalShares {
		return false
	}
	return s.Remaining(total) <= 0
}

func (s State) clone() State {
	out := s
	out.PaidQuantities = maps.Clone(s.PaidQuantities)
	if out.PaidQuantities == nil {
		out.PaidQuantities = make(map[string]int)
	}
	return out
}

// ApplyPayment adds p to the state. billable maps every instance id of the
// order to its chargeable quantity; item-split payments may not exceed it.
func ApplyPayment(s State, p order.PaymentRecord, billable map[string]int) (State, error) {
	if p.Amount < 0 {
		return s, order.Errorf(order.ErrInvalidAmount, "payment amount must not be negative")
	}
	out := s.clone()

	switch p.SplitMode {
	case order.SplitItems:
		for _, it := range p.Items {
			limit, ok := billable[it.InstanceID]
			if !ok {
				return s, order.Errorf(order.ErrItemNotFound, "item %s not found", it.InstanceID)
			}
			if it.Quantity <= 0 {
				return s, order.Errorf(order.ErrInsufficientQuantity, "split quantity must be positive")
			}
			if out.PaidQuantities[it.InstanceID]+it.Quantity > limit {
				return s, order.Errorf(order.ErrInsufficientQuantity,
					"item %s: %d already paid, %d requested, %d billable",
					it.InstanceID, out.PaidQuantities[it.InstanceID], it.Quantity, limit)
			}
			out.PaidQuantities[it.InstanceID] += it.Quantity
		}
		out.ItemSplitCount++

	case order.SplitAmount:
		out.AmountSplitCount++

	case order.SplitAA:
		if p.AAShares <= 0 {
			return s, order.Errorf(order.ErrInvalidOperation, "AA payment must cover at least one share")
		}
		if !out.AALocked() {
			if p.AATotalShares <= 0 {
				return s, order.Errorf(order.ErrInvalidOperation, "AA total shares must be positive")
			}
			out.AATotalShares = p.AATotalShares
		} else if p.AATotalShares != 0 && p.AATotalShares != out.AATotalShares {
			return s, order.Errorf(order.ErrInvalidOperation,
				"AA total shares locked at %d", out.AATotalShares)
		}
		if out.AAPaidShares+p.AAShares > out.AATotalShares {
			return s, order.Errorf(order.ErrInvalidOperation,
				"AA shares exceed total: %d paid, %d requested, %d total",
				out.AAPaidShares, p.AAShares, out.AATotalShares)
		}
		out.AAPaidShares += p.AAShares
	}

	out.PaidAmount += p.Amount
	return out, nil
}

// CancelPayment reverses p. The AA share count stays locked.
func CancelPayment(s State, p order.PaymentRecord) State {
	out := s.clone()

	switch p.SplitMode {
	case order.SplitItems:
		for _, it := range p.Items {
			out.PaidQuantities[it.InstanceID] -= it.Quantity
			if out.PaidQuantities[it.InstanceID] <= 0 {
				delete(out.PaidQuantities, it.InstanceID)
			}
		}
		out.ItemSplitCount--
	case order.SplitAmount:
		out.AmountSplitCount--
	case order.SplitAA:
		out.AAPaidShares -= p.AAShares
	}

	out.PaidAmount -= p.Amount
	return out
}

// Restore rebuilds the state recorded by a snapshot's payment list.
// Cancelled payments contribute nothing except the AA share lock.
func Restore(payments []order.PaymentRecord) State {
	s := New()
	for _, p := range payments {
		if p.SplitMode == order.SplitAA && !s.AALocked() {
			s.AATotalShares = p.AATotalShares
		}
		if p.Cancelled {
			continue
		}
		switch p.SplitMode {
		case order.SplitItems:
			for _, it := range p.Items {
				s.PaidQuantities[it.InstanceID] += it.Quantity
			}
			s.ItemSplitCount++
		case order.SplitAmount:
			s.AmountSplitCount++
		case order.SplitAA:
			s.AAPaidShares += p.AAShares
		}
		s.PaidAmount += p.Amount
	}
	return s
}

// RemoveInstance drops the paid-quantity entry of an item that left the
// order.
func RemoveInstance(s State, instanceID string) State {
	if _, ok := s.PaidQuantities[instanceID]; !ok {
		return s
	}
	out := s.clone()
	delete(out.PaidQuantities, instanceID)
	return out
}
