package guid

import (
	"io"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// Generator produces fresh identifiers.
//
// The default generator draws version-4 UUIDs from crypto/rand through
// github.com/google/uuid. Seeded generators are deterministic and exist so
// tests can predict the identifiers they will see.
type Generator interface {
	New() GUID
}

// RandomGenerator issues random identifiers read from an entropy source.
//
// Thread-safety: RandomGenerator is safe for concurrent use.
type RandomGenerator struct {
	mu  sync.Mutex
	src io.Reader
}

// NewGenerator returns a generator seeded with seed. Two generators built
// from the same seed issue the same sequence.
func NewGenerator(seed int64) *RandomGenerator {
	return &RandomGenerator{src: rand.New(rand.NewSource(seed))}
}

// New returns the next identifier. A null draw is discarded and retried.
func (g *RandomGenerator) New() GUID {
	for {
		var u uuid.UUID
		if g.src == nil {
			u = uuid.New()
		} else {
			g.mu.Lock()
			u = uuid.Must(uuid.NewRandomFromReader(g.src))
			g.mu.Unlock()
		}
		id := GUID(u)
		if !id.IsNull() {
			return id
		}
	}
}

var defaultGen Generator = &RandomGenerator{}

// Default returns the process-wide generator used by New.
func Default() Generator {
	return defaultGen
}

// FixedGenerator returns predetermined identifiers, in order.
//
// Panics once all identifiers are consumed; a test that allocates more
// entities than it planned for is misconfigured.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []GUID
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...GUID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// New returns the next predetermined identifier.
func (g *FixedGenerator) New() GUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("guid: FixedGenerator exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
