package order

// Status is the lifecycle state of an order.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusVoid      Status = "VOID"
	StatusMoved     Status = "MOVED"
	StatusMerged    Status = "MERGED"
)

// IsTerminal reports whether no further commands may mutate the order.
func (s Status) IsTerminal() bool {
	return s != StatusActive
}

// SplitMode records how a payment was attributed.
type SplitMode string

const (
	SplitNone   SplitMode = "NONE"
	SplitItems  SplitMode = "ITEMS"
	SplitAmount SplitMode = "AMOUNT"
	SplitAA     SplitMode = "AA"
)
