package service

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// UUIDGenerator issues prefixed random ids, e.g. "S-1b4e28ba-2fa1-11d2-883f-0016d3cca427".
type UUIDGenerator struct {
	Prefix string
}

func (g UUIDGenerator) NewID() string {
	return g.Prefix + uuid.NewString()
}

// SequenceGenerator issues "<prefix><n>" ids with a zero-padded monotonic counter.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Int64
}

func NewSequenceGenerator(prefix string, start int64) *SequenceGenerator {
	g := &SequenceGenerator{Prefix: prefix}
	g.n.Store(start)
	return g
}

func (g *SequenceGenerator) NewID() string {
	return fmt.Sprintf("%s%03d", g.Prefix, g.n.Add(1))
}
