package testutil

import (
	"fmt"
	"sync/atomic"
)

// CommandIDs hands out "<prefix>-0001", "<prefix>-0002", ... so scenario
// command ids are stable across runs.
type CommandIDs struct {
	prefix string
	n      atomic.Int64
}

// NewCommandIDs creates a generator. An empty prefix defaults to "cmd".
func NewCommandIDs(prefix string) *CommandIDs {
	if prefix == "" {
		prefix = "cmd"
	}
	return &CommandIDs{prefix: prefix}
}

// Next returns the next command id.
func (g *CommandIDs) Next() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}
