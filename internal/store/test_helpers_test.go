package store

import (
	"path/filepath"
	"testing"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEvent creates an event with minimal required fields.
func createTestEvent(seq int64, orderID, commandID string, p order.EventPayload) order.Event {
	return order.Event{
		EventID:      "evt-" + commandID + "-" + orderID,
		Sequence:     seq,
		OrderID:      orderID,
		Timestamp:    1_700_000_000_000 + seq,
		OperatorID:   "op-1",
		OperatorName: "Alice",
		CommandID:    commandID,
		EventType:    p.EventType(),
		Payload:      p,
	}
}
