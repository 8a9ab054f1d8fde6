// Package store provides SQLite-backed durable storage for the order event log.
//
// The store holds two tables:
//   - events: the append-only log, keyed by the global sequence number
//   - command_responses: the recorded response of every accepted command
//     and of every command rejected for a non-transient reason, keyed by
//     command id
//
// # Critical Patterns
//
// Atomic Append
//   - Events and the command response are written in one transaction
//   - Either every event of a command is durable or none is
//
// Command Idempotency
//   - command_responses.command_id is the primary key
//   - A second append for the same command id fails with ErrDuplicateCommand
//     and writes nothing
//
// Logical Ordering
//   - All reads ORDER BY sequence ASC, never by timestamp
//   - sequence is the INTEGER PRIMARY KEY, so it is never reused
//
// Schema Versions
//   - PRAGMA user_version holds the schema version
//   - Open installs the schema on an empty file, upgrades an older one in
//     a single transaction and refuses a newer one with ErrSchemaTooNew
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: An acknowledged append survives power loss
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
