package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LucaXiang/Crab-sub002/internal/engine"
	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// DefaultFullSyncThreshold is the largest sequence gap served incrementally.
const DefaultFullSyncThreshold int64 = 1000

// Coordinator answers sync requests from the sequencer's log and projection.
type Coordinator struct {
	seq       *engine.Sequencer
	threshold int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFullSyncThreshold sets the gap above which a full sync is forced.
//
// Default: 1000 events (DefaultFullSyncThreshold)
func WithFullSyncThreshold(n int64) Option {
	return func(c *Coordinator) {
		c.threshold = n
	}
}

// New creates a Coordinator for seq.
func New(seq *engine.Sequencer, opts ...Option) *Coordinator {
	c := &Coordinator{seq: seq, threshold: DefaultFullSyncThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync answers req. The returned ServerSequence is the sequence the client
// is caught up to once it has applied the response.
func (c *Coordinator) Sync(ctx context.Context, req order.SyncRequest) (order.SyncResponse, error) {
	epoch := c.seq.Epoch()
	current := c.seq.Current()

	if reason := c.fullSyncReason(req, epoch, current); reason != "" {
		slog.Info("full sync",
			"reason", reason,
			"since", req.SinceSequence,
			"server_sequence", current,
			"client_epoch", req.ServerEpoch,
		)
		return c.full(epoch), nil
	}

	events, err := c.seq.Log().ReadEventsSince(ctx, req.SinceSequence)
	if err != nil {
		return order.SyncResponse{}, fmt.Errorf("sync since %d: %w", req.SinceSequence, err)
	}
	serverSeq := max(current, req.SinceSequence)
	if n := len(events); n > 0 {
		serverSeq = max(serverSeq, events[n-1].Sequence)
	}

	slog.Debug("incremental sync", "since", req.SinceSequence, "events", len(events), "server_sequence", serverSeq)
	return order.SyncResponse{
		Events:         events,
		ActiveOrders:   []order.Snapshot{},
		ServerSequence: serverSeq,
		ServerEpoch:    epoch,
	}, nil
}

func (c *Coordinator) fullSyncReason(req order.SyncRequest, epoch string, current int64) string {
	switch {
	case req.ServerEpoch != "" && req.ServerEpoch != epoch:
		return "epoch changed"
	case req.ServerEpoch == "" && req.SinceSequence > 0:
		return "unknown epoch"
	case req.SinceSequence < 0:
		return "negative sequence"
	case req.SinceSequence > current:
		return "client ahead of server"
	case current-req.SinceSequence > c.threshold:
		return "gap exceeds threshold"
	}
	return ""
}

func (c *Coordinator) full(epoch string) order.SyncResponse {
	snaps, seq := c.seq.ActiveState()
	return order.SyncResponse{
		Events:           []order.Event{},
		ActiveOrders:     snaps,
		ServerSequence:   seq,
		RequiresFullSync: true,
		ServerEpoch:      epoch,
	}
}

// Checksum returns the drift-detection checksum of an order's current
// snapshot. ok is false for unknown orders.
func (c *Coordinator) Checksum(orderID string) (sum string, ok bool) {
	snap, ok := c.seq.Snapshot(orderID)
	if !ok {
		return "", false
	}
	return snap.Checksum, true
}

// Snapshot returns the current snapshot of an order.
func (c *Coordinator) Snapshot(orderID string) (order.Snapshot, bool) {
	return c.seq.Snapshot(orderID)
}

// Epoch returns the server epoch.
func (c *Coordinator) Epoch() string {
	return c.seq.Epoch()
}

// Subscribe streams every appended event. Events may be dropped when the
// subscriber falls behind; Sync recovers them.
func (c *Coordinator) Subscribe() *engine.Subscription {
	return c.seq.SubscribeAll()
}
