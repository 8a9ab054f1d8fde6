// Package order defines the command, event and snapshot model of the order
// engine.
//
// Commands are intents and are never persisted as truth. Events are facts:
// immutable once appended and ordered solely by their global Sequence.
// Snapshots are derived by folding events (see internal/reducer) and are
// the only read model handed to rendering layers.
//
// Payloads are closed tagged unions. Every command payload implements
// CommandPayload and every event payload implements EventPayload; both
// interfaces are sealed so the reducer and the gateway can switch on them
// exhaustively. On the wire a payload is encoded as
//
//	{"type": "ITEMS_ADDED", "data": {...}}
//
// Money is int64 cents throughout. Percentages and tax rates are
// decimal.Decimal in percent units and serialise as JSON strings.
package order
