package harness

import "github.com/LucaXiang/Crab-sub002/internal/order"

// TraceEvent is one event written by a flow step.
type TraceEvent struct {
	Sequence int64           `json:"seq"`
	Type     order.EventType `json:"type"`
}

// TraceStep records what one flow step submitted and what came back.
type TraceStep struct {
	Step      int               `json:"step"`
	Command   order.CommandType `json:"command"`
	CommandID string            `json:"command_id"`
	Success   bool              `json:"success"`
	Order     string            `json:"order,omitempty"` // alias of the response order
	ErrorCode order.ErrorCode   `json:"error_code,omitempty"`
	Events    []TraceEvent      `json:"events,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the flow steps in order.
	Trace []TraceStep `json:"trace"`

	// Errors contains validation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Orders holds the final snapshot of every aliased order.
	Orders map[string]order.Snapshot `json:"orders"`

	// Events is the full event log after the flow.
	Events []order.Event `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Errors: []string{},
		Orders: make(map[string]order.Snapshot),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// OrderEvents returns the logged events of one order in sequence order.
func (r *Result) OrderEvents(orderID string) []order.Event {
	var out []order.Event
	for _, ev := range r.Events {
		if ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out
}
