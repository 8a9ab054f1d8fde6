package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LucaXiang/Crab-sub002/internal/order"
	"github.com/LucaXiang/Crab-sub002/internal/store"
)

//go:embed schema.sql
var schema string

const selectEvents = `
	SELECT sequence, event_id, order_id, command_id, event_type, payload,
	       timestamp, client_timestamp, operator_id, operator_name
	FROM events`

// Store is an event log on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	own  bool
}

// Open connects to connString, verifies the connection and applies the
// schema. The returned Store owns the pool and closes it on Close.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.own = true
	return s, nil
}

// New applies the schema on an existing pool. The caller keeps ownership
// of the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool if the Store opened it. Safe to call on nil.
func (s *Store) Close() error {
	if s == nil || s.pool == nil || !s.own {
		return nil
	}
	s.pool.Close()
	return nil
}

// Append writes events and the command response in one transaction.
// See store.Store.Append for the duplicate semantics.
func (s *Store) Append(ctx context.Context, events []order.Event, resp order.CommandResponse) (txErr error) {
	if len(events) == 0 {
		return fmt.Errorf("append: no events")
	}

	rows := make([]store.EventRow, len(events))
	for i, ev := range events {
		row, err := store.EncodeEvent(ev)
		if err != nil {
			return fmt.Errorf("append: %w", err)
		}
		rows[i] = row
	}
	respJSON, err := store.EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("append: begin tx: %w", err)
	}
	defer func() {
		if txErr != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rbErr))
			}
		}
	}()

	tag, err := tx.Exec(ctx, `
		INSERT INTO command_responses (command_id, order_id, response, sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (command_id) DO NOTHING
	`, resp.CommandID, resp.OrderID, respJSON, rows[len(rows)-1].Sequence)
	if err != nil {
		return fmt.Errorf("append: insert response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append %s: %w", resp.CommandID, store.ErrDuplicateCommand)
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO events
			(sequence, event_id, order_id, command_id, event_type, payload,
			 timestamp, client_timestamp, operator_id, operator_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
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
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append: insert events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("append: commit: %w", err)
	}
	return nil
}

// RecordRejection stores a rejected command's response without events.
// See store.Store.RecordRejection.
func (s *Store) RecordRejection(ctx context.Context, resp order.CommandResponse) error {
	if resp.Success {
		return fmt.Errorf("record rejection %s: response is a success", resp.CommandID)
	}
	respJSON, err := store.EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO command_responses (command_id, order_id, response, sequence, accepted)
		VALUES ($1, $2, $3, 0, FALSE)
		ON CONFLICT (command_id) DO NOTHING
	`, resp.CommandID, resp.OrderID, respJSON)
	if err != nil {
		return fmt.Errorf("record rejection %s: %w", resp.CommandID, err)
	}
	return nil
}

// MaxSequence returns the highest sequence in the log, or 0 when empty.
func (s *Store) MaxSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max sequence: %w", err)
	}
	return seq, nil
}

// ReadEventsSince returns every event with sequence > since, ascending.
func (s *Store) ReadEventsSince(ctx context.Context, since int64) ([]order.Event, error) {
	return s.queryEvents(ctx, selectEvents+` WHERE sequence > $1 ORDER BY sequence ASC`, since)
}

// ReadOrderEvents returns the events of one order, ascending.
func (s *Store) ReadOrderEvents(ctx context.Context, orderID string) ([]order.Event, error) {
	return s.queryEvents(ctx, selectEvents+` WHERE order_id = $1 ORDER BY sequence ASC`, orderID)
}

// ReadAllEvents returns the whole log, ascending.
func (s *Store) ReadAllEvents(ctx context.Context) ([]order.Event, error) {
	return s.queryEvents(ctx, selectEvents+` ORDER BY sequence ASC`)
}

// LookupResponse returns the recorded response for commandID.
func (s *Store) LookupResponse(ctx context.Context, commandID string) (order.CommandResponse, bool, error) {
	var data string
	err := s.pool.QueryRow(ctx, `
		SELECT response FROM command_responses WHERE command_id = $1
	`, commandID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.CommandResponse{}, false, nil
	}
	if err != nil {
		return order.CommandResponse{}, false, fmt.Errorf("lookup response %s: %w", commandID, err)
	}
	resp, err := store.DecodeResponse(data)
	if err != nil {
		return order.CommandResponse{}, false, err
	}
	return resp, true, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]order.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []order.Event{}
	for rows.Next() {
		var r store.EventRow
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
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := r.Decode()
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
