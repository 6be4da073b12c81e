package qof

import (
	"slices"
	"strings"

	"github.com/roach88/qofcore/internal/guid"
)

// Collection is the identity registry for one entity type: it maps GUIDs to
// the entities of that type in one book and tracks whether any of them
// changed since the last save.
//
// The collection owns its entities. An entity's back-reference to its
// collection is a lookup aid only.
type Collection struct {
	typ      string
	altDirty bool
	dirty    bool
	entities map[guid.GUID]Entity
}

// NewCollection returns an empty registry for typ. In alternate dirty mode
// membership changes and entity edits do not mark the collection dirty.
func NewCollection(typ string, altDirty bool) *Collection {
	return &Collection{
		typ:      typ,
		altDirty: altDirty,
		entities: make(map[guid.GUID]Entity),
	}
}

// Type returns the entity type tag.
func (c *Collection) Type() string {
	return c.typ
}

// Count returns the number of registered entities.
func (c *Collection) Count() int {
	return len(c.entities)
}

func (c *Collection) accepts(e Entity) bool {
	if e == nil {
		return false
	}
	inst := e.Inst()
	return !inst.guid.IsNull() && inst.typ == c.typ
}

// Insert registers e under its GUID. It fails when the GUID is null, the
// type does not match, or a different entity already holds the GUID.
// Re-inserting the same entity succeeds without changes.
func (c *Collection) Insert(e Entity) bool {
	if !c.accepts(e) {
		return false
	}
	inst := e.Inst()
	if existing, ok := c.entities[inst.guid]; ok {
		return existing == e
	}
	c.entities[inst.guid] = e
	inst.coll = c
	c.touch()
	return true
}

// Replace registers e under its GUID, displacing any previous holder.
// Used when an entity's GUID is reassigned.
func (c *Collection) Replace(e Entity) bool {
	if !c.accepts(e) {
		return false
	}
	inst := e.Inst()
	if prev, ok := c.entities[inst.guid]; ok && prev != e && prev.Inst().coll == c {
		prev.Inst().coll = nil
	}
	c.entities[inst.guid] = e
	inst.coll = c
	c.touch()
	return true
}

// Remove unregisters e. Removing an entity that is not registered is a
// no-op.
func (c *Collection) Remove(e Entity) {
	if e == nil {
		return
	}
	inst := e.Inst()
	if held, ok := c.entities[inst.guid]; !ok || held != e {
		return
	}
	delete(c.entities, inst.guid)
	if inst.coll == c {
		inst.coll = nil
	}
	c.touch()
}

// Lookup returns the entity registered under g.
func (c *Collection) Lookup(g guid.GUID) (Entity, bool) {
	if c == nil || g.IsNull() {
		return nil, false
	}
	e, ok := c.entities[g]
	return e, ok
}

// Entities returns a snapshot of the members sorted by GUID.
func (c *Collection) Entities() []Entity {
	out := make([]Entity, 0, len(c.entities))
	for _, e := range c.entities {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entity) int {
		return guid.Compare(a.Inst().guid, b.Inst().guid)
	})
	return out
}

// ForEach calls fn on a snapshot of the members in GUID order, so fn may
// insert or remove entities.
func (c *Collection) ForEach(fn func(Entity)) {
	for _, e := range c.Entities() {
		fn(e)
	}
}

// Copy returns a registry holding the same entities. The entities keep
// their back-reference to c.
func (c *Collection) Copy() *Collection {
	out := NewCollection(c.typ, c.altDirty)
	for g, e := range c.entities {
		out.entities[g] = e
	}
	out.dirty = c.dirty
	return out
}

func (c *Collection) touch() {
	if !c.altDirty {
		c.dirty = true
	}
}

// MarkDirty flags the collection as changed.
func (c *Collection) MarkDirty() {
	c.dirty = true
}

// MarkClean clears the changed flag.
func (c *Collection) MarkClean() {
	c.dirty = false
}

// IsDirty reports whether the collection changed since the last MarkClean.
func (c *Collection) IsDirty() bool {
	return c != nil && c.dirty
}

// CompareCollections reports whether two registries hold the same GUID set.
// Registries of different types are ordered by type name. Otherwise it
// returns 0 for equal sets, -1 when a member of b has a null GUID, and +1
// when either side holds a GUID the other lacks.
func CompareCollections(a, b *Collection) int {
	if a == b {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if c := strings.Compare(a.typ, b.typ); c != 0 {
		return c
	}
	for g := range b.entities {
		if g.IsNull() {
			return -1
		}
		if _, ok := a.entities[g]; !ok {
			return 1
		}
	}
	for g := range a.entities {
		if _, ok := b.entities[g]; !ok {
			return 1
		}
	}
	return 0
}
