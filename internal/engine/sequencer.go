package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// EventLog is the durable, ordered, append-only event log.
// Implemented by store.Store (SQLite) and pgstore.Store (PostgreSQL).
type EventLog interface {
	// Append writes events and the command response atomically.
	Append(ctx context.Context, events []order.Event, resp order.CommandResponse) error
	// RecordRejection stores the response of a rejected command. It
	// writes no events and keeps an existing response for the same id.
	RecordRejection(ctx context.Context, resp order.CommandResponse) error
	MaxSequence(ctx context.Context) (int64, error)
	ReadEventsSince(ctx context.Context, since int64) ([]order.Event, error)
	ReadOrderEvents(ctx context.Context, orderID string) ([]order.Event, error)
	ReadAllEvents(ctx context.Context) ([]order.Event, error)
	LookupResponse(ctx context.Context, commandID string) (order.CommandResponse, bool, error)
}

// Draft is an event before the sequencer stamps it.
type Draft struct {
	OrderID string
	Payload order.EventPayload
}

// Sequencer assigns global sequence numbers and appends events.
//
// Thread-safety model:
//   - Append(): safe from any goroutine; appends are serialized
//   - Snapshot(), ActiveSnapshots(), Subscribe(): safe from any goroutine
type Sequencer struct {
	mu         sync.Mutex
	log        EventLog
	clock      *Clock
	epoch      string
	ids        IDGenerator
	now        TimeSource
	hub        *Hub
	projection *Projection
	buffer     int
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithBroadcastBuffer sets the per-subscriber buffer size.
//
// Default: 256 events (DefaultBroadcastBuffer)
func WithBroadcastBuffer(n int) SequencerOption {
	return func(s *Sequencer) {
		s.buffer = n
	}
}

// WithIDGenerator replaces the UUIDv7 event id generator.
func WithIDGenerator(g IDGenerator) SequencerOption {
	return func(s *Sequencer) {
		s.ids = g
	}
}

// WithTimeSource replaces the server wall clock.
func WithTimeSource(ts TimeSource) SequencerOption {
	return func(s *Sequencer) {
		s.now = ts
	}
}

// WithEpoch fixes the server epoch instead of generating a random one.
// Used by tests that compare output across runs.
func WithEpoch(epoch string) SequencerOption {
	return func(s *Sequencer) {
		s.epoch = epoch
	}
}

// NewSequencer resumes from the log: the clock starts at the log's highest
// sequence and the projection is rebuilt by folding every order.
func NewSequencer(ctx context.Context, log EventLog, opts ...SequencerOption) (*Sequencer, error) {
	s := &Sequencer{
		log:        log,
		ids:        UUIDv7Generator{},
		now:        SystemTime{},
		projection: NewProjection(),
		buffer:     DefaultBroadcastBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.epoch == "" {
		s.epoch = NewEpoch()
	}
	s.hub = NewHub(s.buffer)

	last, err := log.MaxSequence(ctx)
	if err != nil {
		return nil, fmt.Errorf("new sequencer: %w", err)
	}
	s.clock = NewClockAt(last)

	events, err := log.ReadAllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("new sequencer: %w", err)
	}
	if err := s.projection.Rebuild(events); err != nil {
		return nil, fmt.Errorf("new sequencer: %w", err)
	}

	slog.Info("sequencer started", "epoch", s.epoch, "sequence", last)
	return s, nil
}

// Append stamps drafts with consecutive sequence numbers, writes them with
// resp in one transaction, refreshes the projection and broadcasts.
//
// The clock advances only after the write succeeds. On error nothing is
// durable and no sequence number is consumed.
func (s *Sequencer) Append(ctx context.Context, cmd order.Command, drafts []Draft, resp order.CommandResponse) ([]order.Event, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("append %s: no events", cmd.CommandID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.clock.Current()
	now := s.now.Now()
	var clientTS *int64
	if cmd.Timestamp != 0 {
		ts := cmd.Timestamp
		clientTS = &ts
	}

	events := make([]order.Event, len(drafts))
	for i, d := range drafts {
		events[i] = order.Event{
			EventID:         s.ids.Generate(),
			Sequence:        base + int64(i) + 1,
			OrderID:         d.OrderID,
			Timestamp:       now,
			ClientTimestamp: clientTS,
			OperatorID:      cmd.OperatorID,
			OperatorName:    cmd.OperatorName,
			CommandID:       cmd.CommandID,
			EventType:       d.Payload.EventType(),
			Payload:         d.Payload,
		}
	}

	if err := s.log.Append(ctx, events, resp); err != nil {
		return nil, fmt.Errorf("append %s: %w", cmd.CommandID, err)
	}
	s.clock.AdvanceTo(events[len(events)-1].Sequence)

	if err := s.projection.Apply(events); err != nil {
		// The log is authoritative; the next Rebuild recovers the cache.
		slog.Error("projection refresh failed",
			"command_id", cmd.CommandID,
			"error", err,
		)
	}
	s.hub.Publish(events)

	slog.Debug("events appended",
		"command_id", cmd.CommandID,
		"first_sequence", events[0].Sequence,
		"count", len(events),
	)
	return events, nil
}

// Epoch returns the server epoch of this process.
func (s *Sequencer) Epoch() string { return s.epoch }

// Current returns the highest durable sequence number.
func (s *Sequencer) Current() int64 { return s.clock.Current() }

// Log returns the underlying event log.
func (s *Sequencer) Log() EventLog { return s.log }

// Subscribe registers for broadcast events of one order.
func (s *Sequencer) Subscribe(orderID string) *Subscription {
	return s.hub.Subscribe(orderID)
}

// SubscribeAll registers for broadcast events of every order.
func (s *Sequencer) SubscribeAll() *Subscription {
	return s.hub.SubscribeAll()
}

// Snapshot returns the cached snapshot of an order.
func (s *Sequencer) Snapshot(orderID string) (order.Snapshot, bool) {
	return s.projection.Snapshot(orderID)
}

// Events returns the cached events of an order.
func (s *Sequencer) Events(orderID string) []order.Event {
	return s.projection.Events(orderID)
}

// ActiveSnapshots returns every ACTIVE order sorted by id.
func (s *Sequencer) ActiveSnapshots() []order.Snapshot {
	return s.projection.ActiveSnapshots()
}

// OrderForTable returns the active order on a table.
func (s *Sequencer) OrderForTable(tableID string) (string, bool) {
	return s.projection.OrderForTable(tableID)
}

// ActiveState returns the active snapshots and the sequence they reflect,
// read under the append lock so the pair is consistent.
func (s *Sequencer) ActiveState() ([]order.Snapshot, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projection.ActiveSnapshots(), s.clock.Current()
}

// Close closes every subscription.
func (s *Sequencer) Close() {
	s.hub.Close()
}
