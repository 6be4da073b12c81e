package qof

import (
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/qofcore/internal/guid"
)

// Book is the top-level container: one Collection per entity type plus the
// backend that persists them.
type Book struct {
	guid        guid.GUID
	collections map[string]*Collection
	backend     Backend

	altDirty bool
	readOnly bool
	gen      guid.Generator
	log      zerolog.Logger
	now      func() time.Time

	handlers  map[int]EventHandler
	nextEvent int
}

// Option configures a Book.
type Option func(*Book)

// WithAltDirtyMode makes dirty tracking per-instance only: edits and
// membership changes no longer flag the collections.
func WithAltDirtyMode() Option {
	return func(b *Book) { b.altDirty = true }
}

// WithReadOnly marks the book read-only.
func WithReadOnly() Option {
	return func(b *Book) { b.readOnly = true }
}

// WithGenerator sets the GUID source.
func WithGenerator(g guid.Generator) Option {
	return func(b *Book) { b.gen = g }
}

// WithLogger sets the book logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Book) { b.log = l }
}

// WithBackend attaches a backend.
func WithBackend(be Backend) Option {
	return func(b *Book) { b.backend = be }
}

// WithClock sets the time source used for last-update stamps.
func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

// NewBook creates an empty book.
func NewBook(opts ...Option) *Book {
	b := &Book{
		collections: make(map[string]*Collection),
		gen:         guid.Default(),
		log:         zerolog.Nop(),
		now:         time.Now,
		handlers:    make(map[int]EventHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.guid = b.gen.New()
	return b
}

// GUID returns the book identifier.
func (b *Book) GUID() guid.GUID { return b.guid }

// SetGUID replaces the book identifier; loaders use it.
func (b *Book) SetGUID(g guid.GUID) { b.guid = g }

// Backend returns the attached backend, or nil.
func (b *Book) Backend() Backend { return b.backend }

// SetBackend attaches be, replacing any previous backend.
func (b *Book) SetBackend(be Backend) { b.backend = be }

// IsReadOnly reports whether the book rejects writes.
func (b *Book) IsReadOnly() bool { return b.readOnly }

// SetReadOnly changes the read-only flag.
func (b *Book) SetReadOnly(ro bool) { b.readOnly = ro }

// AltDirtyMode reports whether the book uses per-instance dirty tracking.
func (b *Book) AltDirtyMode() bool { return b.altDirty }

// Generator returns the GUID source.
func (b *Book) Generator() guid.Generator { return b.gen }

// Logger returns the book logger.
func (b *Book) Logger() zerolog.Logger { return b.log }

// Now returns the current time from the book clock.
func (b *Book) Now() time.Time { return b.now() }

// Collection returns the registry for typ, creating it on first use.
func (b *Book) Collection(typ string) *Collection {
	c, ok := b.collections[typ]
	if !ok {
		c = NewCollection(typ, b.altDirty)
		b.collections[typ] = c
	}
	return c
}

// HasCollection reports whether a registry for typ exists.
func (b *Book) HasCollection(typ string) bool {
	_, ok := b.collections[typ]
	return ok
}

// CollectionTypes returns the type tags of existing registries, sorted.
func (b *Book) CollectionTypes() []string {
	types := make([]string, 0, len(b.collections))
	for t := range b.collections {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Lookup finds an entity by type and GUID.
func (b *Book) Lookup(typ string, g guid.GUID) (Entity, bool) {
	c, ok := b.collections[typ]
	if !ok {
		return nil, false
	}
	return c.Lookup(g)
}

// IsDirty reports whether any collection changed since the last save.
func (b *Book) IsDirty() bool {
	for _, c := range b.collections {
		if c.IsDirty() {
			return true
		}
	}
	return false
}

// MarkClean clears the dirty flag of every collection.
func (b *Book) MarkClean() {
	for _, c := range b.collections {
		c.MarkClean()
	}
}
