// Package engine implements the event sequencer for the order log.
//
// ARCHITECTURE:
//
// Single Writer:
// The Sequencer owns the global sequence counter. Appends are serialized
// under one mutex, so sequence numbers are assigned and made durable in
// the same critical section and never reused:
//
//  1. Stamp drafts with Clock.Current()+1.. and the server wall time
//  2. Write events and the command response in one log transaction
//  3. Advance the clock only after the write succeeds
//  4. Refold the affected orders in the Projection
//  5. Publish to the Hub without blocking
//
// A failed write leaves the clock untouched, so the next append reuses the
// same numbers and the log stays gap free.
//
// Projection:
// The in-memory snapshot of each order is a cache rebuilt from the log at
// startup and replaced wholesale by refolding on every append.
//
// Hub:
// Fan-out is best effort. A subscriber whose buffer is full loses the
// event and is expected to recover through sync.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Events are ordered by sequence only. Wall-clock timestamps, server or
// client, are recorded for audit and never compared.
//
// Server Epoch:
// Every Sequencer gets a fresh random epoch at construction. Clients that
// synced against another epoch must fully resync.
package engine
