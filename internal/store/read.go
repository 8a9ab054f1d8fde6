package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

const selectEvents = `
	SELECT sequence, event_id, order_id, command_id, event_type, payload,
	       timestamp, client_timestamp, operator_id, operator_name
	FROM events`

// MaxSequence returns the highest sequence in the log, or 0 when empty.
// Used at startup to resume the logical clock.
func (s *Store) MaxSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max sequence: %w", err)
	}
	return seq, nil
}

// ReadEventsSince returns every event with sequence > since, ascending.
func (s *Store) ReadEventsSince(ctx context.Context, since int64) ([]order.Event, error) {
	return s.queryEvents(ctx, selectEvents+` WHERE sequence > ? ORDER BY sequence ASC`, since)
}

// ReadOrderEvents returns the events of one order, ascending.
// Returns an empty slice (not nil) for unknown orders.
func (s *Store) ReadOrderEvents(ctx context.Context, orderID string) ([]order.Event, error) {
	return s.queryEvents(ctx, selectEvents+` WHERE order_id = ? ORDER BY sequence ASC`, orderID)
}

// ReadAllEvents returns the whole log, ascending. Used for replay.
func (s *Store) ReadAllEvents(ctx context.Context) ([]order.Event, error) {
	return s.queryEvents(ctx, selectEvents+` ORDER BY sequence ASC`)
}

// LookupResponse returns the recorded response for commandID.
// found is false when no response was recorded for the command.
func (s *Store) LookupResponse(ctx context.Context, commandID string) (resp order.CommandResponse, found bool, err error) {
	var data string
	err = s.db.QueryRowContext(ctx, `
		SELECT response FROM command_responses WHERE command_id = ?
	`, commandID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return order.CommandResponse{}, false, nil
	}
	if err != nil {
		return order.CommandResponse{}, false, fmt.Errorf("lookup response %s: %w", commandID, err)
	}
	resp, err = DecodeResponse(data)
	if err != nil {
		return order.CommandResponse{}, false, err
	}
	return resp, true, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]order.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []order.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (order.Event, error) {
	var r EventRow
	err := rows.Scan(
		&r.Sequence,
		&r.EventID,
		&r.OrderID,
		&r.CommandID,
		&r.EventType,
		&r.Payload,
		&r.Timestamp,
		&r.ClientTimestamp,
		&r.OperatorID,
		&r.OperatorName,
	)
	if err != nil {
		return order.Event{}, fmt.Errorf("scan event: %w", err)
	}
	return r.Decode()
}
