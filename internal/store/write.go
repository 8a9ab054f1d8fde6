package store

import (
	"context"
	"fmt"

	"github.com/LucaXiang/Crab-sub002/internal/order"
)

// Append writes events and the command response in one transaction.
//
// The response row is inserted first with ON CONFLICT DO NOTHING. If the
// command id is already recorded the transaction is rolled back and
// ErrDuplicateCommand is returned, so a command's events are written at
// most once. A sequence or event id collision fails the whole append.
func (s *Store) Append(ctx context.Context, events []order.Event, resp order.CommandResponse) error {
	if len(events) == 0 {
		return fmt.Errorf("append: no events")
	}

	rows := make([]EventRow, len(events))
	for i, ev := range events {
		row, err := EncodeEvent(ev)
		if err != nil {
			return fmt.Errorf("append: %w", err)
		}
		rows[i] = row
	}
	respJSON, err := EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	last := rows[len(rows)-1].Sequence
	result, err := tx.ExecContext(ctx, `
		INSERT INTO command_responses (command_id, order_id, response, sequence)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(command_id) DO NOTHING
	`, resp.CommandID, resp.OrderID, respJSON, last)
	if err != nil {
		return fmt.Errorf("append: insert response: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("append: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("append %s: %w", resp.CommandID, ErrDuplicateCommand)
	}

	for _, r := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events
			(sequence, event_id, order_id, command_id, event_type, payload,
			 timestamp, client_timestamp, operator_id, operator_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.Sequence,
			r.EventID,
			r.OrderID,
			r.CommandID,
			r.EventType,
			r.Payload,
			r.Timestamp,
			r.ClientTimestamp,
			r.OperatorID,
			r.OperatorName,
		)
		if err != nil {
			return fmt.Errorf("append: insert event %d: %w", r.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append: commit: %w", err)
	}
	return nil
}

// RecordRejection stores the response of a rejected command so a retry
// with the same command id is answered without running it again. It
// writes no events. Recording an id that already has a response is a
// no-op and the first response stays authoritative.
func (s *Store) RecordRejection(ctx context.Context, resp order.CommandResponse) error {
	if resp.Success {
		return fmt.Errorf("record rejection %s: response is a success", resp.CommandID)
	}
	respJSON, err := EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO command_responses (command_id, order_id, response, sequence, accepted)
		VALUES (?, ?, ?, 0, 0)
		ON CONFLICT(command_id) DO NOTHING
	`, resp.CommandID, resp.OrderID, respJSON)
	if err != nil {
		return fmt.Errorf("record rejection %s: %w", resp.CommandID, err)
	}
	return nil
}
