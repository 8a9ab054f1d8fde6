// Package pgstore is the PostgreSQL event log backend.
//
// It has the same tables and guarantees as package store: events are
// keyed by their global sequence, a command's events and its response are
// written in one transaction, and a second append for the same command id
// fails with store.ErrDuplicateCommand. Row encoding is shared with the
// SQLite backend so both logs hold byte-identical payloads.
package pgstore
