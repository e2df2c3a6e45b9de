package store

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDs hands out lexically sortable run identifiers.
type IDs struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDs creates a run id generator
func NewIDs() *IDs {
	return &IDs{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Next returns a new ULID for the given time.
func (g *IDs) Next(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}
