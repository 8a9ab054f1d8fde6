package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates unique event ids.
// Implemented by UUIDv7Generator (production) and SequentialGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 event ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequentialGenerator returns prefix-1, prefix-2, ... for tests that need
// stable ids.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialGenerator creates a generator for the given prefix.
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// TimeSource supplies the server wall clock in unix milliseconds.
type TimeSource interface {
	Now() int64
}

// SystemTime reads the real wall clock.
type SystemTime struct{}

// Now returns the current time in unix milliseconds.
func (SystemTime) Now() int64 {
	return time.Now().UnixMilli()
}

// NewEpoch returns a fresh random server epoch.
func NewEpoch() string {
	return uuid.NewString()
}
