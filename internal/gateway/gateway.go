package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/LucaXiang/Crab-sub002/internal/cache"
	"github.com/LucaXiang/Crab-sub002/internal/engine"
	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/reducer"
	"github.com/LucaXiang/Crab-sub002/internal/store"
)

// DefaultResponseTTL is how long a rejection stays in the in-memory
// cache. Rejections are also recorded in the log and never expire there.
const DefaultResponseTTL = 10 * time.Minute

// RuleSource supplies the pricing rules captured when an order opens.
type RuleSource interface {
	RulesFor(zoneID string, isRetail bool) []order.PricingRule
}

// Gateway validates commands and turns them into events.
type Gateway struct {
	seq        *engine.Sequencer
	rules      RuleSource
	locks      *keyedLocks
	flight     singleflight.Group
	ttl        time.Duration
	rejections *cache.TTLCache[string, order.CommandResponse]
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRules sets the rule source consulted by OPEN_TABLE and MOVE_ORDER.
func WithRules(rs RuleSource) Option {
	return func(g *Gateway) {
		g.rules = rs
	}
}

// WithResponseTTL sets how long rejections are cached in memory.
//
// Default: 10 minutes (DefaultResponseTTL)
func WithResponseTTL(d time.Duration) Option {
	return func(g *Gateway) {
		g.ttl = d
	}
}

// New creates a Gateway on top of seq.
func New(seq *engine.Sequencer, opts ...Option) *Gateway {
	g := &Gateway{
		seq:   seq,
		locks: newKeyedLocks(),
		ttl:   DefaultResponseTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.rejections = cache.NewTTLCache[string, order.CommandResponse](g.ttl)
	return g
}

// Submit processes cmd and returns its response. Submitting a command id
// that was already processed returns the recorded response without
// executing it again.
func (g *Gateway) Submit(ctx context.Context, cmd order.Command) order.CommandResponse {
	if cmd.CommandID == "" {
		return order.Rejected("", order.Errorf(order.ErrInvalidOperation, "command_id is required"))
	}
	if cmd.Payload == nil {
		return order.Rejected(cmd.CommandID, order.Errorf(order.ErrInvalidOperation, "payload is required"))
	}

	v, _, shared := g.flight.Do(cmd.CommandID, func() (any, error) {
		return g.submit(ctx, cmd), nil
	})
	if shared {
		slog.Debug("command shared in-flight execution", "command_id", cmd.CommandID)
	}
	return v.(order.CommandResponse)
}

func (g *Gateway) submit(ctx context.Context, cmd order.Command) order.CommandResponse {
	if resp, ok, err := g.recorded(ctx, cmd.CommandID); err != nil {
		return g.reject(ctx, cmd, order.Errorf(order.ErrInternal, "lookup command: %v", err))
	} else if ok {
		return resp
	}

	unlock := g.locks.Lock(lockKeys(cmd.Payload)...)
	defer unlock()

	// A concurrent submission may have finished while we waited.
	if resp, ok, err := g.recorded(ctx, cmd.CommandID); err != nil {
		return g.reject(ctx, cmd, order.Errorf(order.ErrInternal, "lookup command: %v", err))
	} else if ok {
		return resp
	}

	orderID, drafts, err := g.plan(cmd)
	if err != nil {
		return g.reject(ctx, cmd, err)
	}
	if err := g.dryRun(drafts); err != nil {
		return g.reject(ctx, cmd, err)
	}

	resp := order.Succeeded(cmd.CommandID, orderID)
	events, err := g.seq.Append(ctx, cmd, drafts, resp)
	if errors.Is(err, store.ErrDuplicateCommand) {
		if prior, ok, lerr := g.recorded(ctx, cmd.CommandID); lerr == nil && ok {
			return prior
		}
	}
	if err != nil {
		return g.reject(ctx, cmd, order.Errorf(order.ErrInternal, "append: %v", err))
	}

	slog.Info("command accepted",
		"command_id", cmd.CommandID,
		"type", cmd.Payload.CommandType(),
		"order_id", orderID,
		"first_sequence", events[0].Sequence,
		"events", len(events),
	)
	return resp
}

// recorded returns a prior response for commandID. Recent rejections are
// answered from memory; everything else comes from the durable log.
func (g *Gateway) recorded(ctx context.Context, commandID string) (order.CommandResponse, bool, error) {
	if resp, ok := g.rejections.Get(commandID); ok {
		slog.Debug("duplicate rejected command", "command_id", commandID)
		return resp, true, nil
	}
	resp, ok, err := g.seq.Log().LookupResponse(ctx, commandID)
	if err != nil || !ok {
		return resp, ok, err
	}
	slog.Debug("duplicate command", "command_id", commandID)
	if !resp.Success {
		g.rejections.Set(commandID, resp)
	}
	return resp, true, nil
}

// reject builds a rejection and records it in the log and the cache.
// INTERNAL_ERROR responses are not recorded so a retry after a transient
// failure executes again.
func (g *Gateway) reject(ctx context.Context, cmd order.Command, err error) order.CommandResponse {
	resp := order.Rejected(cmd.CommandID, err)
	if resp.Error.Code != order.ErrInternal {
		if rerr := g.seq.Log().RecordRejection(ctx, resp); rerr != nil {
			slog.Warn("rejection not recorded", "command_id", cmd.CommandID, "error", rerr)
		}
		g.rejections.Set(cmd.CommandID, resp)
	}

	attrs := []any{
		"command_id", cmd.CommandID,
		"code", resp.Error.Code,
		"message", resp.Error.Message,
	}
	if cmd.Payload != nil {
		attrs = append(attrs, "type", cmd.Payload.CommandType())
	}
	if resp.Error.Code == order.ErrInternal {
		slog.Error("command failed", attrs...)
	} else {
		slog.Info("command rejected", attrs...)
	}
	return resp
}

// dryRun folds each touched order with the drafts appended. A command is
// accepted only if every resulting log folds cleanly and no order ends up
// with more paid than its total.
func (g *Gateway) dryRun(drafts []engine.Draft) error {
	next := g.seq.Current()
	pending := make(map[string][]order.Event)
	var ids []string
	for _, d := range drafts {
		next++
		if _, ok := pending[d.OrderID]; !ok {
			pending[d.OrderID] = g.seq.Events(d.OrderID)
			ids = append(ids, d.OrderID)
		}
		pending[d.OrderID] = append(pending[d.OrderID], order.Event{
			Sequence:  next,
			OrderID:   d.OrderID,
			EventType: d.Payload.EventType(),
			Payload:   d.Payload,
		})
	}
	for _, id := range ids {
		snap, err := reducer.Fold(pending[id])
		if err != nil {
			var ce *order.CommandError
			if errors.As(err, &ce) {
				return ce
			}
			return order.Errorf(order.ErrInvalidOperation, "%v", err)
		}
		if snap.PaidAmount > snap.Total {
			return order.Errorf(order.ErrInvalidOperation,
				"order %s would be left overpaid; cancel payments first", id).
				WithDetail("total", order.FormatCents(snap.Total)).
				WithDetail("paid", order.FormatCents(snap.PaidAmount))
		}
	}
	return nil
}

// Snapshot returns the current snapshot of an order.
func (g *Gateway) Snapshot(orderID string) (order.Snapshot, error) {
	snap, ok := g.seq.Snapshot(orderID)
	if !ok {
		return order.Snapshot{}, order.Errorf(order.ErrOrderNotFound, "order %s not found", orderID)
	}
	return snap, nil
}

func lockKeys(p order.CommandPayload) []string {
	keys := order.TargetOrderIDs(p)
	switch v := p.(type) {
	case order.OpenTable:
		keys = append(keys, tableKey(v.TableID))
	case order.MoveOrder:
		keys = append(keys, tableKey(v.TargetTableID))
	}
	return keys
}

func tableKey(tableID string) string {
	return fmt.Sprintf("table:%s", tableID)
}
