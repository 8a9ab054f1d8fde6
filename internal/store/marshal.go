package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// EventRow is the column form of an event, shared by every log backend.
type EventRow struct {
	Sequence        int64
	EventID         string
	OrderID         string
	CommandID       string
	EventType       string
	Payload         string
	Timestamp       int64
	ClientTimestamp sql.NullInt64
	OperatorID      string
	OperatorName    string
}

// EncodeEvent converts an event to its column form.
func EncodeEvent(ev order.Event) (EventRow, error) {
	if ev.Payload == nil {
		return EventRow{}, fmt.Errorf("encode event %d: missing payload", ev.Sequence)
	}
	payload, err := order.EncodePayload(ev.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("encode event %d: %w", ev.Sequence, err)
	}
	row := EventRow{
		Sequence:     ev.Sequence,
		EventID:      ev.EventID,
		OrderID:      ev.OrderID,
		CommandID:    ev.CommandID,
		EventType:    string(ev.Payload.EventType()),
		Payload:      string(payload),
		Timestamp:    ev.Timestamp,
		OperatorID:   ev.OperatorID,
		OperatorName: ev.OperatorName,
	}
	if ev.ClientTimestamp != nil {
		row.ClientTimestamp = sql.NullInt64{Int64: *ev.ClientTimestamp, Valid: true}
	}
	return row, nil
}

// Decode converts a row back into an event.
func (r EventRow) Decode() (order.Event, error) {
	t := order.EventType(r.EventType)
	payload, err := order.DecodeEventPayload(t, []byte(r.Payload))
	if err != nil {
		return order.Event{}, fmt.Errorf("decode event %d: %w", r.Sequence, err)
	}
	ev := order.Event{
		EventID:      r.EventID,
		Sequence:     r.Sequence,
		OrderID:      r.OrderID,
		Timestamp:    r.Timestamp,
		OperatorID:   r.OperatorID,
		OperatorName: r.OperatorName,
		CommandID:    r.CommandID,
		EventType:    t,
		Payload:      payload,
	}
	if r.ClientTimestamp.Valid {
		ts := r.ClientTimestamp.Int64
		ev.ClientTimestamp = &ts
	}
	return ev, nil
}

// EncodeResponse serializes a command response for storage.
func EncodeResponse(resp order.CommandResponse) (string, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("encode response %s: %w", resp.CommandID, err)
	}
	return string(data), nil
}

// DecodeResponse parses a stored command response.
func DecodeResponse(data string) (order.CommandResponse, error) {
	var resp order.CommandResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return order.CommandResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
