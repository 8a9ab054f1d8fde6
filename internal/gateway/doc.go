// Package gateway accepts order commands.
//
// Submit deduplicates by command id, validates the command against the
// current snapshot of every order it touches, and hands the resulting
// events to the engine.Sequencer. It never mutates state itself.
//
// Every outcome is a CommandResponse; rejections carry an order.ErrorCode.
//
// Concurrency:
//   - Commands for the same order (or the same table) are serialized
//   - Commands for different orders run in parallel
//   - Concurrent submissions of one command id share a single execution
package gateway
