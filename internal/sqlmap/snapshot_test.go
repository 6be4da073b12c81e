package sqlmap

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qofcore/internal/kvp"
	"github.com/roach88/qofcore/internal/numeric"
	"github.com/roach88/qofcore/internal/qof"
	"github.com/roach88/qofcore/internal/testutil"
)

func snapshotBook() *qof.Book {
	return qof.NewBook(qof.WithGenerator(testutil.NewSequentialGenerator()))
}

func TestSnapshotRoundTrip(t *testing.T) {
	book := snapshotBook()
	p := newParent(book)
	p.name = "Household"
	p.opened = time.Date(2024, 3, 1, 9, 30, 0, 123000, time.UTC)
	p.seq = 42
	p.SetSlots(sampleFrame())
	c := newChild(book, p)
	c.memo = "groceries"
	c.amount = numeric.New(-4512, 100)
	c.flags = 3

	objects := Snapshot(book, testRegistry())
	require.Len(t, objects[parentType], 1)
	require.Len(t, objects[childType], 1)
	assert.Contains(t, objects[parentType][0], SlotsField)
	assert.NotContains(t, objects[childType][0], SlotsField)

	fresh := snapshotBook()
	counts, err := ApplySnapshot(fresh, testRegistry(), objects)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{parentType: 1, childType: 1}, counts)

	got, ok := fresh.Lookup(parentType, p.GUID())
	require.True(t, ok)
	gp := got.(*parent)
	assert.Equal(t, "Household", gp.name)
	assert.True(t, p.opened.Equal(gp.opened))
	assert.Equal(t, int64(42), gp.seq)
	assert.Equal(t, 0, kvp.CompareFrames(p.Slots(), gp.Slots()))
	assert.False(t, gp.DirtyFlag())
	assert.False(t, gp.IsInfant())

	require.Len(t, gp.children, 1)
	gc := gp.children[0]
	assert.Equal(t, c.GUID(), gc.GUID())
	assert.Same(t, gp, gc.parent)
	assert.Equal(t, "groceries", gc.memo)
	assert.True(t, c.amount.Equal(gc.amount))
	assert.Equal(t, uint32(3), gc.flags)
}

func TestSnapshotDropsDestroyedAndDependents(t *testing.T) {
	book := snapshotBook()
	keep := newParent(book)
	gone := newParent(book)
	newChild(book, keep)
	newChild(book, gone)
	gone.SetDestroying()

	objects := Snapshot(book, testRegistry())
	require.Len(t, objects[parentType], 1)
	assert.Equal(t, keep.GUID().String(), objects[parentType][0]["guid"])
	require.Len(t, objects[childType], 1)
	assert.Equal(t, keep.GUID().String(), objects[childType][0]["parent_guid"])
}

func TestApplySnapshotSkipsDirty(t *testing.T) {
	book := snapshotBook()
	p := newParent(book)
	p.name = "stored"
	objects := Snapshot(book, testRegistry())

	p.name = "local"
	p.MarkDirty()
	counts, err := ApplySnapshot(book, testRegistry(), objects)
	require.NoError(t, err)
	assert.Zero(t, counts[parentType])
	assert.Equal(t, "local", p.name)
}

func TestApplySnapshotUnresolvedReference(t *testing.T) {
	book := snapshotBook()
	p := newParent(book)
	newChild(book, p)
	objects := Snapshot(book, testRegistry())
	delete(objects, parentType)

	target := snapshotBook()
	_, err := ApplySnapshot(target, testRegistry(), objects)
	require.Error(t, err)
	assert.Equal(t, qof.ErrBackendDataCorrupt, qof.CodeOf(err))
	assert.True(t, errors.Is(err, ErrUnresolvedRef))
	assert.Zero(t, target.Collection(childType).Count())
}

func TestApplySnapshotBadValueLeavesBookEmpty(t *testing.T) {
	book := snapshotBook()
	newParent(book).name = "first"
	newParent(book).name = "second"
	objects := Snapshot(book, testRegistry())
	objects[parentType][1]["seq"] = "notanumber"

	target := snapshotBook()
	_, err := ApplySnapshot(target, testRegistry(), objects)
	require.Error(t, err)
	assert.Equal(t, qof.ErrBackendDataCorrupt, qof.CodeOf(err))
	assert.Zero(t, target.Collection(parentType).Count())
}

func TestRecordSlots(t *testing.T) {
	f, err := RecordSlots(map[string]any{"guid": "x"})
	require.NoError(t, err)
	assert.True(t, f.IsEmpty())

	_, err = RecordSlots(map[string]any{SlotsField: "nope"})
	assert.Error(t, err)
}
