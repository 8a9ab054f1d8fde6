package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/reducer"
)

// DefaultMaxPending is how many out-of-order events are buffered before
// the replica gives up waiting for the gap and resyncs.
const DefaultMaxPending = 256

// ErrInvalidTransition is returned when an operation needs a state change
// the connection state machine does not allow.
var ErrInvalidTransition = errors.New("invalid connection state transition")

// Server is the sync endpoint a replica reconciles against.
// Implemented by syncer.Coordinator.
type Server interface {
	Sync(ctx context.Context, req order.SyncRequest) (order.SyncResponse, error)
}

// Replica is a client-side materialised view of every order it has seen.
//
// Thread-safety: all methods are safe for concurrent use; they are
// serialized by an internal mutex, including the server round trip.
type Replica struct {
	mu         sync.Mutex
	server     Server
	state      ConnState
	epoch      string
	applied    int64
	snapshots  map[string]order.Snapshot
	pending    map[int64]order.Event
	maxPending int
	onState    func(from, to ConnState)
	resyncs    int
}

// Option configures a Replica.
type Option func(*Replica)

// WithMaxPending sets the out-of-order buffer size.
//
// Default: 256 events (DefaultMaxPending)
func WithMaxPending(n int) Option {
	return func(r *Replica) {
		r.maxPending = n
	}
}

// WithStateHook registers fn to observe every state change.
// fn runs with the replica lock held and must not call back into it.
func WithStateHook(fn func(from, to ConnState)) Option {
	return func(r *Replica) {
		r.onState = fn
	}
}

// New creates a disconnected replica for server.
func New(server Server, opts ...Option) *Replica {
	r := &Replica{
		server:     server,
		state:      Disconnected,
		snapshots:  make(map[string]order.Snapshot),
		pending:    make(map[int64]order.Event),
		maxPending: DefaultMaxPending,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect syncs a disconnected replica and marks it connected. On failure
// the replica returns to disconnected.
func (r *Replica) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Disconnected {
		return fmt.Errorf("connect from %s: %w", r.state, ErrInvalidTransition)
	}
	return r.sync(ctx, false)
}

// Disconnect marks the transport as lost. Local snapshots are kept; the
// next Connect resumes from the last applied sequence.
func (r *Replica) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setState(Disconnected)
}

// Resync re-enters syncing from connected and fetches what was missed.
// full discards local state first, so the server either returns a full
// snapshot set or the whole log.
func (r *Replica) Resync(ctx context.Context, full bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Connected {
		return fmt.Errorf("resync from %s: %w", r.state, ErrInvalidTransition)
	}
	return r.sync(ctx, full)
}

// Deliver hands a broadcast event to the replica. Events at or below the
// applied sequence are ignored; events ahead of it are buffered. While not
// connected every event is buffered for the next sync to reconcile.
func (r *Replica) Deliver(ctx context.Context, ev order.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Sequence <= r.applied {
		slog.Debug("replica ignored stale event", "seq", ev.Sequence, "applied", r.applied)
		return nil
	}
	r.pending[ev.Sequence] = ev
	if r.state != Connected {
		return nil
	}

	if err := r.drain(); err != nil {
		slog.Warn("replica fold failed, resyncing", "seq", ev.Sequence, "error", err)
		return r.sync(ctx, true)
	}
	if len(r.pending) > r.maxPending {
		slog.Warn("replica gap not filled, resyncing",
			"applied", r.applied,
			"pending", len(r.pending),
		)
		return r.sync(ctx, false)
	}
	return nil
}

// VerifyEpoch compares the server epoch the client observed with the one
// it synced against and resyncs on change.
func (r *Replica) VerifyEpoch(ctx context.Context, epoch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Connected || epoch == r.epoch {
		return nil
	}
	slog.Warn("server epoch changed, resyncing", "old", r.epoch, "new", epoch)
	return r.sync(ctx, false)
}

// VerifyChecksum compares the local checksum of an order with the server's
// and forces a full resync on mismatch. It reports whether they matched.
func (r *Replica) VerifyChecksum(ctx context.Context, orderID, sum string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.snapshots[orderID]
	if ok && snap.Checksum == sum {
		return true, nil
	}
	slog.Warn("checksum mismatch, resyncing",
		"order_id", orderID,
		"local", snap.Checksum,
		"server", sum,
	)
	if r.state != Connected {
		return false, nil
	}
	return false, r.sync(ctx, true)
}

// Run delivers events from a broadcast channel until ctx is done or the
// channel closes. A closed channel means the transport was lost.
func (r *Replica) Run(ctx context.Context, events <-chan order.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				r.Disconnect()
				return nil
			}
			if err := r.Deliver(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// sync runs one syncing round. Callers hold r.mu.
func (r *Replica) sync(ctx context.Context, full bool) error {
	if !r.setState(Syncing) {
		return fmt.Errorf("sync from %s: %w", r.state, ErrInvalidTransition)
	}
	r.resyncs++
	if full {
		r.reset()
	}

	resp, err := r.server.Sync(ctx, order.SyncRequest{SinceSequence: r.applied, ServerEpoch: r.epoch})
	if err != nil {
		r.setState(Disconnected)
		return fmt.Errorf("sync: %w", err)
	}
	if err := r.apply(resp); err != nil {
		// The incremental slice did not fold; start over from nothing.
		slog.Warn("incremental sync failed to fold, retrying full", "error", err)
		r.reset()
		resp, err = r.server.Sync(ctx, order.SyncRequest{})
		if err == nil {
			err = r.apply(resp)
		}
		if err != nil {
			r.setState(Disconnected)
			return fmt.Errorf("sync: %w", err)
		}
	}

	if err := r.drain(); err != nil {
		r.setState(Disconnected)
		return fmt.Errorf("sync: drain buffered events: %w", err)
	}
	r.setState(Connected)
	return nil
}

func (r *Replica) reset() {
	r.applied = 0
	r.epoch = ""
	r.snapshots = make(map[string]order.Snapshot)
}

// apply installs a sync response.
func (r *Replica) apply(resp order.SyncResponse) error {
	if resp.RequiresFullSync {
		r.snapshots = make(map[string]order.Snapshot, len(resp.ActiveOrders))
		for _, snap := range resp.ActiveOrders {
			r.snapshots[snap.OrderID] = snap
		}
		r.applied = resp.ServerSequence
		r.epoch = resp.ServerEpoch
		slog.Info("replica full sync", "orders", len(resp.ActiveOrders), "seq", r.applied, "epoch", r.epoch)
		return nil
	}

	for _, ev := range resp.Events {
		if ev.Sequence <= r.applied {
			continue
		}
		if err := r.fold(ev); err != nil {
			return err
		}
	}
	r.applied = max(r.applied, resp.ServerSequence)
	r.epoch = resp.ServerEpoch
	slog.Info("replica incremental sync", "events", len(resp.Events), "seq", r.applied)
	return nil
}

// drain folds buffered events while they continue the applied sequence.
func (r *Replica) drain() error {
	for seq := range r.pending {
		if seq <= r.applied {
			delete(r.pending, seq)
		}
	}
	for {
		ev, ok := r.pending[r.applied+1]
		if !ok {
			return nil
		}
		delete(r.pending, ev.Sequence)
		if err := r.fold(ev); err != nil {
			return err
		}
	}
}

// fold applies one event to its order's snapshot and advances applied.
func (r *Replica) fold(ev order.Event) error {
	var (
		snap order.Snapshot
		err  error
	)
	if base, ok := r.snapshots[ev.OrderID]; ok {
		snap, err = reducer.Resume(base, []order.Event{ev})
	} else {
		snap, err = reducer.Fold([]order.Event{ev})
	}
	if err != nil {
		return fmt.Errorf("fold event %d: %w", ev.Sequence, err)
	}
	r.snapshots[ev.OrderID] = snap
	r.applied = ev.Sequence
	return nil
}

func (r *Replica) setState(to ConnState) bool {
	from := r.state
	if from == to {
		return true
	}
	if !canTransition(from, to) {
		return false
	}
	r.state = to
	slog.Debug("replica state", "from", from, "to", to)
	if r.onState != nil {
		r.onState(from, to)
	}
	return true
}

// State returns the connection state.
func (r *Replica) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Applied returns the last applied sequence.
func (r *Replica) Applied() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

// Epoch returns the server epoch of the last sync.
func (r *Replica) Epoch() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// Pending returns the sequences buffered ahead of the applied one.
func (r *Replica) Pending() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seqs := lo.Keys(r.pending)
	slices.Sort(seqs)
	return seqs
}

// Resyncs returns how many syncing rounds the replica has run.
func (r *Replica) Resyncs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resyncs
}

// Snapshot returns the local snapshot of an order.
func (r *Replica) Snapshot(orderID string) (order.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[orderID]
	return snap, ok
}

// ActiveSnapshots returns every local ACTIVE order sorted by id.
func (r *Replica) ActiveSnapshots() []order.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := lo.Filter(lo.Values(r.snapshots), func(s order.Snapshot, _ int) bool {
		return s.Status == order.StatusActive
	})
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}
