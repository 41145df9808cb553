package eventsync

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces entry IDs for payloads that do not implement
// Identified. Implemented by UUIDv7Generator (production) and
// FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 entry IDs, which keeps
// journaled records roughly ordered by creation time.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined IDs in order, then falls back to
// "<prefix>-<n>" once exhausted.
type FixedGenerator struct {
	mu     sync.Mutex
	ids    []string
	prefix string
	n      int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids, prefix: "entry"}
}

// Generate returns the next ID.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.n++
	if g.n <= len(g.ids) {
		return g.ids[g.n-1]
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
