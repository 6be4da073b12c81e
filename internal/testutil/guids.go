package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/roach88/qofcore/internal/guid"
)

// SequentialGenerator issues GUIDs 00..01, 00..02, ... in order.
//
// Unlike guid.FixedGenerator it never runs out, which suits tests that
// create many entities but still want byte-identical output (golden dumps).
//
// Thread-safety: SequentialGenerator is safe for concurrent use.
type SequentialGenerator struct {
	mu   sync.Mutex
	next uint64
}

// NewSequentialGenerator creates a generator whose first GUID ends in 1.
func NewSequentialGenerator() *SequentialGenerator {
	return &SequentialGenerator{}
}

// New returns the next GUID.
//
// Implements guid.Generator interface.
func (g *SequentialGenerator) New() guid.GUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return SeqGUID(g.next)
}

// SeqGUID returns the n-th GUID a SequentialGenerator issues.
func SeqGUID(n uint64) guid.GUID {
	var id guid.GUID
	binary.BigEndian.PutUint64(id[8:], n)
	return id
}
