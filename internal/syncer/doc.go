// Package syncer serves reconnecting clients.
//
// A client sends the last sequence it applied and the server epoch it
// synced against. The coordinator answers with either the event slice
// after that sequence (incremental) or the snapshots of every active order
// (full). A full sync is forced when the epoch changed, when the client is
// ahead of the server, or when the gap exceeds the configured threshold.
package syncer
