package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/LucaXiang/Crab-sub002/internal/catalog"
	"github.com/LucaXiang/Crab-sub002/internal/engine"
	"github.com/LucaXiang/Crab-sub002/internal/gateway"
	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/reducer"
	"github.com/LucaXiang/Crab-sub002/internal/store"
	"github.com/LucaXiang/Crab-sub002/internal/testutil"
)

// DefaultEpoch is the server epoch of a scenario that does not set one.
const DefaultEpoch = "scenario"

// Harness runs one scenario against a fresh engine with deterministic
// command ids, event ids and timestamps.
type Harness struct {
	seq     *engine.Sequencer
	gw      *gateway.Gateway
	catalog *catalog.Catalog
	ids     *testutil.CommandIDs
	aliases map[string]string
	logger  *slog.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger logs each step to logger. Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Steps are submitted
// through the command gateway; expect clauses and assertions are checked
// against what the engine actually produced. After the flow every aliased
// order is re-folded from the log and must match the live projection.
//
// The returned error reports harness failures (bad catalog, unresolvable
// reference). Scenario failures are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		ids:     testutil.NewCommandIDs(""),
		aliases: make(map[string]string),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	var gwOpts []gateway.Option
	if scenario.Catalog != "" {
		cat, err := catalog.Load(scenario.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		h.catalog = cat
		gwOpts = append(gwOpts, gateway.WithRules(cat))
	}

	epoch := scenario.Epoch
	if epoch == "" {
		epoch = DefaultEpoch
	}
	seq, err := engine.NewSequencer(ctx, st,
		engine.WithIDGenerator(engine.NewSequentialGenerator("evt")),
		engine.WithTimeSource(testutil.NewStepClock(0, 0)),
		engine.WithEpoch(epoch),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start sequencer: %w", err)
	}
	defer seq.Close()
	h.seq = seq
	h.gw = gateway.New(seq, gwOpts...)

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("failed to execute flow: %w", err)
		}
	}

	if err := h.collect(ctx, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h.aliases) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step FlowStep, result *Result) error {
	cmd, err := h.command(step)
	if err != nil {
		return fmt.Errorf("flow step %d: %w", i, err)
	}

	before := h.seq.Current()
	resp := h.gw.Submit(ctx, cmd)
	events, err := h.seq.Log().ReadEventsSince(ctx, before)
	if err != nil {
		return fmt.Errorf("flow step %d: read events: %w", i, err)
	}
	if step.As != "" && resp.Success {
		h.aliases[step.As] = resp.OrderID
	}

	entry := TraceStep{
		Step:      i,
		Command:   step.Command,
		CommandID: cmd.CommandID,
		Success:   resp.Success,
		Order:     h.aliasOf(resp.OrderID),
	}
	if resp.Error != nil {
		entry.ErrorCode = resp.Error.Code
	}
	for _, ev := range events {
		entry.Events = append(entry.Events, TraceEvent{Sequence: ev.Sequence, Type: ev.EventType})
	}
	result.Trace = append(result.Trace, entry)

	want := ExpectClause{Success: true}
	if step.Expect != nil {
		want = *step.Expect
	}
	switch {
	case resp.Success != want.Success:
		result.AddError(fmt.Sprintf("flow[%d] %s: expected success=%t, got %t%s",
			i, step.Command, want.Success, resp.Success, describe(resp.Error)))
	case !want.Success && resp.Error.Code != want.Code:
		result.AddError(fmt.Sprintf("flow[%d] %s: expected code %s, got %s",
			i, step.Command, want.Code, resp.Error.Code))
	}

	h.logger.Info("flow step completed",
		"step", i,
		"command", step.Command,
		"command_id", cmd.CommandID,
		"success", resp.Success,
		"events", len(events),
	)
	return nil
}

func describe(info *order.ErrorInfo) string {
	if info == nil {
		return ""
	}
	return fmt.Sprintf(" (%s: %s)", info.Code, info.Message)
}

// command builds the command for a step after alias resolution.
func (h *Harness) command(step FlowStep) (order.Command, error) {
	resolved, err := h.resolve(step.Data)
	if err != nil {
		return order.Command{}, err
	}
	data := resolved.(map[string]any)

	if len(step.Products) > 0 {
		items, _ := data["items"].([]any)
		keys := lo.Keys(step.Products)
		slices.Sort(keys)
		for _, id := range keys {
			p, ok := h.catalog.Product(id)
			if !ok {
				return order.Command{}, fmt.Errorf("unknown product %q", id)
			}
			items = append(items, p.Item(step.Products[id]))
		}
		data["items"] = items
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return order.Command{}, fmt.Errorf("encode %s payload: %w", step.Command, err)
	}
	payload, err := order.DecodeCommandPayload(step.Command, raw)
	if err != nil {
		return order.Command{}, err
	}

	id := step.ID
	if id == "" {
		id = h.ids.Next()
	}
	return order.Command{
		CommandID:    id,
		OperatorID:   "scenario",
		OperatorName: "Scenario",
		Payload:      payload,
	}, nil
}

// resolve replaces "$alias" references in YAML-decoded data.
func (h *Harness) resolve(v any) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, "$") {
			return val, nil
		}
		return h.resolveRef(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := h.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := h.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (h *Harness) resolveRef(ref string) (string, error) {
	name, field, _ := strings.Cut(ref[1:], ".")
	orderID, ok := h.aliases[name]
	if !ok {
		return "", fmt.Errorf("unknown alias %q", name)
	}
	if field == "" {
		return orderID, nil
	}

	snap, ok := h.seq.Snapshot(orderID)
	if !ok {
		return "", fmt.Errorf("%s: order %s not found", ref, orderID)
	}
	var ids []string
	var idx string
	switch {
	case strings.HasPrefix(field, "item"):
		idx = strings.TrimPrefix(field, "item")
		ids = lo.Map(snap.Items, func(it order.CartItem, _ int) string { return it.InstanceID })
	case strings.HasPrefix(field, "payment"):
		idx = strings.TrimPrefix(field, "payment")
		ids = lo.Map(snap.Payments, func(p order.PaymentRecord, _ int) string { return p.PaymentID })
	case strings.HasPrefix(field, "comp"):
		idx = strings.TrimPrefix(field, "comp")
		ids = lo.Map(snap.Comps, func(c order.CompRecord, _ int) string { return c.CompID })
	default:
		return "", fmt.Errorf("%s: unknown field %q", ref, field)
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 || n >= len(ids) {
		return "", fmt.Errorf("%s: index out of range (have %d)", ref, len(ids))
	}
	return ids[n], nil
}

// aliasOf returns the alias captured for orderID, if any.
func (h *Harness) aliasOf(orderID string) string {
	if orderID == "" {
		return ""
	}
	keys := lo.Keys(h.aliases)
	slices.Sort(keys)
	for _, k := range keys {
		if h.aliases[k] == orderID {
			return k
		}
	}
	return ""
}

// collect reads the log, re-folds it, and records the final snapshots.
func (h *Harness) collect(ctx context.Context, result *Result) error {
	events, err := h.seq.Log().ReadAllEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}
	result.Events = events

	replayed, err := reducer.FoldAll(events)
	if err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
	}
	keys := lo.Keys(h.aliases)
	slices.Sort(keys)
	for _, alias := range keys {
		id := h.aliases[alias]
		snap, ok := h.seq.Snapshot(id)
		if !ok {
			result.AddError(fmt.Sprintf("order %s (%s) missing from projection", alias, id))
			continue
		}
		result.Orders[alias] = snap
		if replayed == nil {
			continue
		}
		if again, ok := replayed[id]; !ok || again.Checksum != snap.Checksum {
			result.AddError(fmt.Sprintf("order %s: projection checksum %s differs from replay %s",
				alias, snap.Checksum, again.Checksum))
		}
	}
	return nil
}
