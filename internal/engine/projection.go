package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/reducer"
)

// Projection caches the snapshot of every order folded from the log.
//
// Snapshots are only ever replaced wholesale by refolding the order's full
// event list; nothing is patched in place.
type Projection struct {
	mu        sync.RWMutex
	events    map[string][]order.Event
	snapshots map[string]order.Snapshot
	tables    map[string]string // table id -> active order id
}

// NewProjection creates an empty projection.
func NewProjection() *Projection {
	return &Projection{
		events:    make(map[string][]order.Event),
		snapshots: make(map[string]order.Snapshot),
		tables:    make(map[string]string),
	}
}

// Rebuild replaces the projection with a fold of events, which must be the
// whole log in ascending sequence order.
func (p *Projection) Rebuild(events []order.Event) error {
	byOrder := make(map[string][]order.Event)
	for _, ev := range events {
		byOrder[ev.OrderID] = append(byOrder[ev.OrderID], ev)
	}

	snapshots := make(map[string]order.Snapshot, len(byOrder))
	tables := make(map[string]string)
	for id, evs := range byOrder {
		snap, err := reducer.Fold(evs)
		if err != nil {
			return fmt.Errorf("rebuild projection: %w", err)
		}
		snapshots[id] = snap
		indexTable(tables, snap)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = byOrder
	p.snapshots = snapshots
	p.tables = tables

	slog.Info("projection rebuilt", "orders", len(snapshots), "events", len(events))
	return nil
}

// Apply refolds every order touched by events. events must follow the
// events already applied.
func (p *Projection) Apply(events []order.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	touched := make(map[string][]order.Event)
	for _, ev := range events {
		touched[ev.OrderID] = append(touched[ev.OrderID], ev)
	}

	next := make(map[string]order.Snapshot, len(touched))
	for id, evs := range touched {
		all := append(slices.Clone(p.events[id]), evs...)
		snap, err := reducer.Fold(all)
		if err != nil {
			return fmt.Errorf("apply to projection: %w", err)
		}
		next[id] = snap
	}

	for id, snap := range next {
		if old, ok := p.snapshots[id]; ok && p.tables[old.TableID] == id {
			delete(p.tables, old.TableID)
		}
		p.events[id] = append(p.events[id], touched[id]...)
		p.snapshots[id] = snap
		indexTable(p.tables, snap)
	}
	return nil
}

func indexTable(tables map[string]string, snap order.Snapshot) {
	if snap.Status == order.StatusActive && snap.TableID != "" {
		tables[snap.TableID] = snap.OrderID
	}
}

// Snapshot returns the current snapshot of an order.
func (p *Projection) Snapshot(orderID string) (order.Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.snapshots[orderID]
	return snap, ok
}

// Events returns a copy of an order's events.
func (p *Projection) Events(orderID string) []order.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.events[orderID])
}

// ActiveSnapshots returns every ACTIVE order sorted by order id.
func (p *Projection) ActiveSnapshots() []order.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := []order.Snapshot{}
	for _, snap := range p.snapshots {
		if snap.Status == order.StatusActive {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// OrderForTable returns the active order occupying tableID.
func (p *Projection) OrderForTable(tableID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.tables[tableID]
	return id, ok
}
