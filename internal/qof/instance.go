package qof

import (
	"context"
	"time"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/kvp"
)

// Entity is any record that embeds an Instance. Embedding Instance by value
// promotes Inst, so *Record satisfies Entity without further code.
type Entity interface {
	Inst() *Instance
}

// Instance is the identity and edit-state core shared by every record type.
//
// Lifecycle: Init makes an infant; the first successful commit makes it
// clean; setters called inside BeginEdit/CommitEdit make it dirty; a commit
// with the destroying flag set releases it.
//
// Instance is not safe for concurrent use. All edits on a book happen on
// one goroutine.
type Instance struct {
	guid guid.GUID
	typ  string
	self Entity

	// book and coll do not own the instance.
	book *Book
	coll *Collection

	slots *kvp.Frame

	editLevel  int
	dirty      bool
	infant     bool
	destroying bool

	version      int32
	versionCheck uint32
	lastUpdate   time.Time
	idata        uint32
}

// Inst returns i; it lets embedding records satisfy Entity.
func (i *Instance) Inst() *Instance {
	return i
}

// Init assigns a fresh GUID from the book's generator and registers self in
// the book's collection for typ. The new instance is an infant.
//
// Panics if book is nil: every entity belongs to a book.
func (i *Instance) Init(self Entity, typ string, book *Book) {
	if book == nil {
		panic("qof: Instance.Init with nil book")
	}
	i.self = self
	i.typ = typ
	i.book = book
	i.infant = true
	i.editLevel = 0

	coll := book.Collection(typ)
	for {
		i.guid = book.gen.New()
		if i.guid.IsNull() {
			continue
		}
		if _, taken := coll.Lookup(i.guid); !taken {
			break
		}
	}
	if !coll.Insert(self) {
		book.log.Error().
			Str("type", typ).
			Str("guid", i.guid.String()).
			Msg("entity not registered")
	}
}

// GUID returns the entity identifier.
func (i *Instance) GUID() guid.GUID { return i.guid }

// Type returns the entity type tag.
func (i *Instance) Type() string { return i.typ }

// Book returns the owning book.
func (i *Instance) Book() *Book { return i.book }

// Collection returns the registry currently holding the entity, or nil once
// released.
func (i *Instance) Collection() *Collection { return i.coll }

// SetGUID reassigns the identifier, moving the registry entry. Loaders use
// this to give a freshly allocated entity its stored GUID.
func (i *Instance) SetGUID(g guid.GUID) {
	if g == i.guid {
		return
	}
	coll := i.coll
	if coll == nil && i.book != nil {
		coll = i.book.Collection(i.typ)
	}
	if coll != nil {
		coll.Remove(i.self)
	}
	i.guid = g
	if coll != nil {
		coll.Replace(i.self)
	}
}

// Slots returns the metadata frame, allocating it on first use.
func (i *Instance) Slots() *kvp.Frame {
	if i.slots == nil {
		i.slots = kvp.NewFrame()
	}
	return i.slots
}

// SetSlots replaces the metadata frame and marks the entity dirty.
func (i *Instance) SetSlots(f *kvp.Frame) {
	i.setSlots(f)
	i.MarkDirty()
}

// LoadSlots replaces the metadata frame without marking the entity dirty.
func (i *Instance) LoadSlots(f *kvp.Frame) {
	i.setSlots(f)
}

func (i *Instance) setSlots(f *kvp.Frame) {
	if i.slots != nil && i.slots != f {
		i.slots.Clear()
	}
	i.slots = f
}

// EditLevel returns the current begin/commit nesting depth.
func (i *Instance) EditLevel() int { return i.editLevel }

// IsInfant reports whether the entity has never been committed.
func (i *Instance) IsInfant() bool { return i.infant }

// IsDestroying reports whether the next commit deletes the entity.
func (i *Instance) IsDestroying() bool { return i.destroying }

// SetDestroying schedules the entity for deletion on its next commit.
func (i *Instance) SetDestroying() {
	i.destroying = true
	i.MarkDirty()
}

// MarkDirty flags the entity as changed. Outside alternate dirty mode the
// owning collection is flagged too.
func (i *Instance) MarkDirty() {
	i.dirty = true
	if i.coll != nil && (i.book == nil || !i.book.altDirty) {
		i.coll.MarkDirty()
	}
}

// Touch is called by record setters after changing a field. A mutation
// outside an edit bracket is logged and still recorded.
func (i *Instance) Touch() {
	if i.editLevel <= 0 && i.book != nil {
		i.book.log.Warn().
			Str("type", i.typ).
			Str("guid", i.guid.String()).
			Msg("entity modified outside begin/commit edit")
	}
	i.MarkDirty()
}

// IsDirty reports whether the entity has unsaved changes. Outside
// alternate dirty mode a clean collection means every member is clean, and
// the instance flag is cleared to match.
func (i *Instance) IsDirty() bool {
	if i.book == nil || i.book.altDirty || i.coll == nil {
		return i.dirty
	}
	if i.coll.IsDirty() {
		return i.dirty
	}
	i.dirty = false
	return false
}

// DirtyFlag returns the raw instance flag, ignoring the collection.
func (i *Instance) DirtyFlag() bool { return i.dirty }

// MarkClean clears the dirty flag.
func (i *Instance) MarkClean() { i.dirty = false }

// MarkLoaded records that the entity's state came from storage: it is
// neither an infant nor dirty.
func (i *Instance) MarkLoaded() {
	i.infant = false
	i.dirty = false
}

// Version returns the backend version counter.
func (i *Instance) Version() int32 { return i.version }

// SetVersion sets the backend version counter.
func (i *Instance) SetVersion(v int32) { i.version = v }

// VersionCheck returns the backend version-check stamp.
func (i *Instance) VersionCheck() uint32 { return i.versionCheck }

// SetVersionCheck sets the backend version-check stamp.
func (i *Instance) SetVersionCheck(v uint32) { i.versionCheck = v }

// LastUpdate returns the time of the last successful commit.
func (i *Instance) LastUpdate() time.Time { return i.lastUpdate }

// SetLastUpdate sets the last-update time.
func (i *Instance) SetLastUpdate(t time.Time) { i.lastUpdate = t }

// IData returns the backend-private integer.
func (i *Instance) IData() uint32 { return i.idata }

// SetIData sets the backend-private integer.
func (i *Instance) SetIData(v uint32) { i.idata = v }

// VersionCompare orders two entities by last-update time.
func VersionCompare(a, b Entity) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Inst().lastUpdate.Compare(b.Inst().lastUpdate)
}

// BeginEdit opens an edit bracket. It returns true when this call opened
// the outermost bracket, in which case the backend begin hook runs; with no
// hook the entity is marked dirty immediately.
func (i *Instance) BeginEdit(ctx context.Context) bool {
	i.editLevel++
	if i.editLevel > 1 {
		return false
	}
	if i.editLevel <= 0 {
		i.editLevel = 1
	}

	if be := i.backend(); be != nil {
		if hook, ok := be.(BeginHook); ok {
			hook.RunBegin(ctx, i.self)
			return true
		}
	}
	i.MarkDirty()
	return true
}

// CommitEdit closes an edit bracket. It returns true only when the
// outermost bracket closed and the caller should proceed to
// CommitEditPart2. An unbalanced call is logged and the level reset to 0.
func (i *Instance) CommitEdit() bool {
	i.editLevel--
	if i.editLevel > 0 {
		return false
	}
	if i.editLevel < 0 {
		if i.book != nil {
			i.book.log.Error().
				Str("type", i.typ).
				Str("guid", i.guid.String()).
				Int("level", i.editLevel).
				Msg("unbalanced commit edit, resetting")
		}
		i.editLevel = 0
		return false
	}
	return true
}

// CommitEditPart2 dispatches the commit to the backend.
//
// If the backend has a commit hook, stale errors are drained, the hook
// runs and the error channel is read again. On error the destroying flag is
// cancelled, the code is pushed back onto the channel, onError is called
// once and false is returned. The entity stays dirty.
//
// NOTE: a failed commit does not roll back in-memory field values. The
// mutation stays applied locally and the caller decides whether to retry
// or discard it.
//
// On success the infant flag is cleared (and, with a commit hook, the dirty
// flag). A destroying entity is passed to onFree and then released;
// otherwise onDone is called. Any of the continuations may be nil.
func (i *Instance) CommitEditPart2(ctx context.Context, onError func(Entity, ErrorCode), onDone, onFree func(Entity)) bool {
	if be := i.backend(); be != nil {
		if hook, ok := be.(CommitHook); ok {
			for be.LastError() != ErrBackendNoErr {
			}

			hook.RunCommit(ctx, i.self)

			if code := be.LastError(); code != ErrBackendNoErr {
				i.destroying = false
				be.SetError(code)
				i.book.log.Error().
					Str("type", i.typ).
					Str("guid", i.guid.String()).
					Stringer("code", code).
					Msg("commit failed")
				if onError != nil {
					onError(i.self, code)
				}
				return false
			}
			i.dirty = false
			i.lastUpdate = i.book.now()
		}
	}
	i.infant = false

	if i.destroying {
		if onFree != nil {
			onFree(i.self)
		}
		i.Release()
		return true
	}
	if onDone != nil {
		onDone(i.self)
	}
	return true
}

// Release removes the entity from its registry and clears its metadata.
// The entity must not be used afterwards.
func (i *Instance) Release() {
	if i.coll != nil {
		i.coll.Remove(i.self)
	}
	i.coll = nil
	if i.slots != nil {
		i.slots.Clear()
		i.slots = nil
	}
}

func (i *Instance) backend() Backend {
	if i.book == nil {
		return nil
	}
	return i.book.backend
}
