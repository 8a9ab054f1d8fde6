package replica

//go:generate go tool stringer -type=ConnState -linecomment

// ConnState is the connection state of a replica.
type ConnState int

const (
	Disconnected ConnState = iota // disconnected
	Syncing                       // syncing
	Connected                     // connected
)

// canTransition reports whether from -> to is a valid state change.
func canTransition(from, to ConnState) bool {
	switch to {
	case Disconnected:
		return true
	case Syncing:
		return from == Disconnected || from == Connected
	case Connected:
		return from == Syncing
	}
	return false
}
