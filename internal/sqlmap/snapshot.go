package sqlmap

import (
	"fmt"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/kvp"
	"github.com/roach88/qofcore/internal/qof"
)

// SlotsField holds an entity's encoded metadata frame inside a record.
const SlotsField = "slots"

// EntityRecord is Record plus the entity's metadata frame under SlotsField
// when the frame is not empty.
func EntityRecord(ent qof.Entity, ot *ObjectTable) map[string]any {
	rec := Record(ent, ot.Columns)
	if slots := ent.Inst().Slots(); !slots.IsEmpty() {
		rec[SlotsField] = kvp.Encode(slots)
	}
	return rec
}

// Snapshot renders every registered entity of book as records keyed by
// type tag. Entities being destroyed are left out, along with anything
// whose columns still reference them.
func Snapshot(book *qof.Book, reg *Registry) map[string][]map[string]any {
	type entry struct {
		typ  string
		id   string
		rec  map[string]any
		gone bool
	}
	var entries []*entry
	gone := make(map[string]bool)
	for _, ot := range reg.Tables() {
		if !book.HasCollection(ot.Type) {
			continue
		}
		for _, e := range book.Collection(ot.Type).Entities() {
			ent := &entry{typ: ot.Type, id: e.Inst().GUID().String(), rec: EntityRecord(e, ot)}
			if e.Inst().IsDestroying() {
				ent.gone = true
				gone[ent.id] = true
			}
			entries = append(entries, ent)
		}
	}

	for changed := len(gone) > 0; changed; {
		changed = false
		for _, ent := range entries {
			if ent.gone || !references(ent.rec, gone) {
				continue
			}
			ent.gone = true
			gone[ent.id] = true
			changed = true
		}
	}

	out := make(map[string][]map[string]any)
	for _, ent := range entries {
		if !ent.gone {
			out[ent.typ] = append(out[ent.typ], ent.rec)
		}
	}
	return out
}

func references(rec map[string]any, ids map[string]bool) bool {
	for k, v := range rec {
		if s, ok := v.(string); ok && k != SlotsField && ids[s] {
			return true
		}
	}
	return false
}

type pendingRecord struct {
	ent   qof.Entity
	ot    *ObjectTable
	rec   map[string]any
	fresh bool
}

// releaseFresh drops the entities ApplySnapshot allocated itself.
func releaseFresh(todo []pendingRecord) {
	for _, p := range todo {
		if p.fresh {
			p.ent.Inst().Release()
		}
	}
}

// ApplySnapshot loads records produced by Snapshot into book and returns
// how many entities of each type were loaded. Entities are allocated
// first and filled in second, so references resolve in any order.
// Entities with unsaved changes are left untouched. On error every entity
// the call allocated is released again.
func ApplySnapshot(book *qof.Book, reg *Registry, objects map[string][]map[string]any) (map[string]int, error) {
	var todo []pendingRecord
	for _, ot := range reg.Tables() {
		pk := primaryKey(ot.Columns).Name
		for i, rec := range objects[ot.Type] {
			g, ok := guid.Parse(ToString(rec[pk]))
			if !ok || g.IsNull() {
				releaseFresh(todo)
				return nil, qof.NewBackendError(qof.ErrBackendDataCorrupt, "sqlmap: apply snapshot",
					fmt.Errorf("%s record %d: bad %s %q", ot.Type, i, pk, ToString(rec[pk])))
			}
			ent, found := book.Lookup(ot.Type, g)
			if found && ent.Inst().DirtyFlag() {
				continue
			}
			if !found {
				ent = ot.New(book)
				ent.Inst().SetGUID(g)
			}
			todo = append(todo, pendingRecord{ent: ent, ot: ot, rec: rec, fresh: !found})
		}
	}

	counts := make(map[string]int)
	for _, p := range todo {
		if err := ApplyRecord(book, p.ent, p.ot.Columns, p.rec); err != nil {
			releaseFresh(todo)
			return nil, qof.NewBackendError(qof.ErrBackendDataCorrupt, "sqlmap: apply snapshot", err)
		}
		frame, err := RecordSlots(p.rec)
		if err != nil {
			releaseFresh(todo)
			return nil, qof.NewBackendError(qof.ErrBackendDataCorrupt, "sqlmap: apply snapshot",
				fmt.Errorf("%s %s: %w", p.ot.Type, p.ent.Inst().GUID(), err))
		}
		p.ent.Inst().LoadSlots(frame)
		p.ent.Inst().MarkLoaded()
		counts[p.ot.Type]++
	}
	return counts, nil
}

// RecordSlots decodes the metadata frame carried by rec, or returns an
// empty frame.
func RecordSlots(rec map[string]any) (*kvp.Frame, error) {
	raw, ok := rec[SlotsField]
	if !ok || raw == nil {
		return kvp.NewFrame(), nil
	}
	tree, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("slots are %T", raw)
	}
	return kvp.Decode(tree)
}
