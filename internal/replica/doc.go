// Package replica is the client side of the sync protocol.
//
// A Replica keeps a local snapshot per order and folds broadcast events
// strictly in ascending sequence order. Events that arrive ahead of the
// next expected sequence are buffered until the gap fills. A gap that does
// not fill, an epoch change, or a checksum mismatch sends the replica back
// through the Sync Coordinator.
//
// Connection states:
//
//	disconnected -> syncing -> connected
//	connected    -> syncing   (gap, epoch change, checksum mismatch)
//	any          -> disconnected (transport lost)
package replica
