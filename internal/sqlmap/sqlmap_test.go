package sqlmap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/kvp"
	"github.com/roach88/qofcore/internal/numeric"
	"github.com/roach88/qofcore/internal/qof"
	"github.com/roach88/qofcore/internal/testutil"
)

const (
	parentType = "Parent"
	childType  = "Child"
)

type parent struct {
	qof.Instance
	name     string
	opened   time.Time
	seq      int64
	children []*child
}

type child struct {
	qof.Instance
	parent *parent
	memo   string
	amount numeric.Numeric
	flags  uint32
}

func newParent(b *qof.Book) *parent {
	p := &parent{}
	p.Init(p, parentType, b)
	return p
}

func newChild(b *qof.Book, p *parent) *child {
	c := &child{parent: p, amount: numeric.Zero}
	c.Init(c, childType, b)
	if p != nil {
		p.children = append(p.children, c)
	}
	return c
}

var parentColumns = []Column{
	GUIDCol("guid", PrimaryKey,
		func(p *parent) guid.GUID { return p.GUID() },
		func(p *parent, g guid.GUID) { p.SetGUID(g) }),
	StringCol("name", 64, NotNull,
		func(p *parent) string { return p.name },
		func(p *parent, s string) { p.name = s }),
	TimestampCol("opened", 0,
		func(p *parent) time.Time { return p.opened },
		func(p *parent, t time.Time) { p.opened = t }),
	IntCol("seq", 0,
		func(p *parent) int64 { return p.seq },
		func(p *parent, n int64) { p.seq = n }),
}

var childColumns = []Column{
	GUIDCol("guid", PrimaryKey,
		func(c *child) guid.GUID { return c.GUID() },
		func(c *child, g guid.GUID) { c.SetGUID(g) }),
	RefCol("parent_guid", parentType, NotNull,
		func(c *child) *parent { return c.parent },
		func(c *child, p *parent) {
			c.parent = p
			if p != nil {
				p.children = append(p.children, c)
			}
		}),
	StringCol("memo", 2048, 0,
		func(c *child) string { return c.memo },
		func(c *child, s string) { c.memo = s }),
	NumericCol("amount", NotNull,
		func(c *child) numeric.Numeric { return c.amount },
		func(c *child, n numeric.Numeric) { c.amount = n }),
	UintCol("flags", 0,
		func(c *child) uint32 { return c.flags },
		func(c *child, n uint32) { c.flags = n }),
}

var childTable = &ObjectTable{
	Type:    childType,
	Table:   "children",
	Version: 1,
	Columns: childColumns,
	Indexes: []Index{{Name: "children_parent_index", Columns: []string{"parent_guid"}}},
	New:     func(b *qof.Book) qof.Entity { return newChild(b, nil) },
	Child:   true,
}

var parentTable = &ObjectTable{
	Type:    parentType,
	Table:   "parents",
	Version: 1,
	Columns: parentColumns,
	New:     func(b *qof.Book) qof.Entity { return newParent(b) },
	Commit: func(ctx context.Context, e *Engine, ent qof.Entity) error {
		p := ent.(*parent)
		if p.IsDestroying() {
			for _, c := range p.children {
				if err := e.DeleteSlots(ctx, c.GUID()); err != nil {
					return err
				}
			}
			if err := e.DeleteWhere(ctx, childTable.Table, "parent_guid", p.GUID().String()); err != nil {
				return err
			}
		}
		return e.CommitInstance(ctx, "parents", p, parentColumns)
	},
	Load: loadParents,
}

// loadParents loads parents and then their children in one batch.
func loadParents(ctx context.Context, e *Engine, b *qof.Book, ot *ObjectTable) error {
	parents, err := e.LoadAll(ctx, b, ot)
	if err != nil {
		return err
	}
	_, err = e.LoadChildren(ctx, b, childTable, "parent_guid", parents)
	return err
}

func testRegistry() *Registry {
	return NewRegistry().MustRegister(parentTable, childTable)
}

// engineBackend commits through an Engine, as the SQL backend does.
type engineBackend struct {
	qof.ErrorChannel
	eng  *Engine
	reg  *Registry
	errs []error
}

func (b *engineBackend) RunCommit(ctx context.Context, e qof.Entity) {
	if err := b.eng.Commit(ctx, b.reg, e); err != nil {
		b.errs = append(b.errs, err)
		b.SetError(qof.CodeOf(err))
	}
}

func setup(t *testing.T) (*Engine, *Registry, *qof.Book) {
	t.Helper()
	db := testutil.OpenSQLite(t)
	eng := New(db, SQLite)
	reg := testRegistry()
	require.NoError(t, eng.CreateTables(context.Background(), reg))
	book := qof.NewBook(qof.WithBackend(&engineBackend{eng: eng, reg: reg}))
	return eng, reg, book
}

func commit(t *testing.T, ctx context.Context, ent qof.Entity) {
	t.Helper()
	inst := ent.Inst()
	require.True(t, inst.CommitEdit())
	ok := inst.CommitEditPart2(ctx, func(_ qof.Entity, code qof.ErrorCode) {
		t.Fatalf("commit failed: %s", code)
	}, nil, nil)
	require.True(t, ok)
}

func sampleFrame() *kvp.Frame {
	f := kvp.NewFrame()
	f.Set("count", kvp.NewInt64(-7))
	f.Set("ratio", kvp.NewDouble(1.5))
	f.Set("price", kvp.NewNumeric(numeric.New(1999, 100)))
	f.Set("ref", kvp.NewGUID(guid.MustParse("abcdefabcdefabcdefabcdefabcdefab")))
	f.Set("seen", kvp.NewTimestamp(time.Date(2023, 12, 31, 23, 59, 59, 250000000, time.UTC)))
	f.Set("blob", kvp.NewBinary([]byte("raw\x00bytes")))
	f.Set("tags", kvp.NewList(kvp.NewString("x"), kvp.NewInt64(2)))
	f.SetPath(kvp.NewString("deep"), "import", "ofx", "id")
	f.Set("empty", kvp.NewFrame())
	return f
}

func TestDDL(t *testing.T) {
	sqlite := New(nil, SQLite)
	assert.Equal(t,
		"CREATE TABLE children (guid text(32) PRIMARY KEY NOT NULL, parent_guid text(32) NOT NULL, "+
			"memo text(2048), amount_num bigint NOT NULL, amount_denom bigint NOT NULL, flags integer)",
		sqlite.DDL("children", childColumns))

	pg := New(nil, Postgres)
	assert.Equal(t,
		"CREATE TABLE children (guid varchar(32) PRIMARY KEY NOT NULL, parent_guid varchar(32) NOT NULL, "+
			"memo varchar(2048), amount_num bigint NOT NULL, amount_denom bigint NOT NULL, flags integer)",
		pg.DDL("children", childColumns))

	assert.Equal(t,
		"CREATE TABLE slots (id serial PRIMARY KEY NOT NULL, obj_guid varchar(32) NOT NULL, name varchar(4096) NOT NULL, "+
			"slot_type bigint NOT NULL, int64_val bigint, string_val varchar(4096), double_val double precision, "+
			"timespec_val timestamp without time zone, guid_val varchar(32), numeric_val_num bigint, "+
			"numeric_val_denom bigint, binary_val bytea)",
		pg.DDL(SlotsTable, SlotColumns()))
}

func TestSchemaDDL(t *testing.T) {
	ddl := SchemaDDL(SQLite, testRegistry())
	lines := strings.Split(strings.TrimSuffix(ddl, "\n"), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "CREATE TABLE versions (table_name text(50) PRIMARY KEY NOT NULL"))
	assert.Equal(t, "CREATE INDEX slots_guid_index ON slots (obj_guid);", lines[2])
	assert.Equal(t, "CREATE TABLE books (guid text(32) PRIMARY KEY NOT NULL);", lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "CREATE TABLE parents ("))
	assert.Equal(t, "CREATE INDEX children_parent_index ON children (parent_guid);", lines[6])
}

func TestDialectByName(t *testing.T) {
	d, err := DialectByName("pgx")
	require.NoError(t, err)
	assert.Equal(t, "$3", d.Placeholder(3))

	d, err = DialectByName("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "?", d.Placeholder(3))

	_, err = DialectByName("oracle")
	assert.Error(t, err)
}

func TestCreateTableOnlyWhenVersionZero(t *testing.T) {
	eng, reg, _ := setup(t)
	ctx := context.Background()

	v, err := eng.TableVersion(ctx, "parents")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	created, err := eng.CreateTable(ctx, "parents", 2, parentColumns)
	require.NoError(t, err)
	assert.False(t, created)

	v, err = eng.TableVersion(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Zero(t, v)

	// Creating everything again is a no-op.
	require.NoError(t, eng.CreateTables(ctx, reg))
}

func TestChooseOp(t *testing.T) {
	eng := New(nil, SQLite)
	book := qof.NewBook()
	p := newParent(book)

	assert.Equal(t, OpInsert, eng.ChooseOp(p))

	p.MarkLoaded()
	assert.Equal(t, OpUpdate, eng.ChooseOp(p))

	eng.SetPristine(true)
	assert.Equal(t, OpInsert, eng.ChooseOp(p))

	p.SetDestroying()
	assert.Equal(t, OpDelete, eng.ChooseOp(p))
	assert.Equal(t, "delete", OpDelete.String())
}

func TestCommitUpdateLoadRoundTrip(t *testing.T) {
	eng, _, book := setup(t)
	ctx := context.Background()

	p := newParent(book)
	p.BeginEdit(ctx)
	p.name = "Checking"
	p.opened = time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)
	p.seq = 42
	p.SetSlots(sampleFrame())
	commit(t, ctx, p)
	assert.False(t, p.IsInfant())
	assert.Equal(t, uint32(len(kvp.Flatten(p.Slots()))), p.IData())

	p.BeginEdit(ctx)
	p.name = "Checking (renamed)"
	p.seq = 43
	p.Slots().SetPath(kvp.NewString("changed"), "import", "ofx", "id")
	p.Touch()
	commit(t, ctx, p)

	fresh := qof.NewBook()
	got, ok, err := eng.LoadByGUID(ctx, fresh, parentTable, p.GUID())
	require.NoError(t, err)
	require.True(t, ok)

	loaded := got.(*parent)
	assert.Equal(t, p.GUID(), loaded.GUID())
	assert.Equal(t, "Checking (renamed)", loaded.name)
	assert.True(t, p.opened.Equal(loaded.opened))
	assert.Equal(t, int64(43), loaded.seq)
	assert.Equal(t, 0, kvp.CompareFrames(p.Slots(), loaded.Slots()))
	assert.False(t, loaded.IsInfant())
	assert.False(t, loaded.DirtyFlag())

	rows, err := eng.SelectAll(ctx, "parents", parentColumns)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLoadByGUIDMissing(t *testing.T) {
	eng, _, _ := setup(t)
	_, ok, err := eng.LoadByGUID(context.Background(), qof.NewBook(), parentTable, guid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDestroyDeletesRowAndSlots(t *testing.T) {
	eng, _, book := setup(t)
	ctx := context.Background()

	p := newParent(book)
	p.BeginEdit(ctx)
	p.name = "Doomed"
	p.Slots().Set("note", kvp.NewString("x"))
	commit(t, ctx, p)

	c := newChild(book, p)
	c.Slots().Set("k", kvp.NewInt64(1))
	require.NoError(t, eng.CommitInstance(ctx, "children", c, childColumns))

	p.BeginEdit(ctx)
	p.SetDestroying()
	commit(t, ctx, p)

	rows, err := eng.SelectAll(ctx, "parents", parentColumns)
	require.NoError(t, err)
	assert.Empty(t, rows)
	rows, err = eng.SelectAll(ctx, "children", childColumns)
	require.NoError(t, err)
	assert.Empty(t, rows)
	rows, err = eng.SelectAll(ctx, SlotsTable, slotDataColumns)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBatchLoadIssuesTwoQueries(t *testing.T) {
	eng, _, book := setup(t)
	ctx := context.Background()

	const parents, perParent = 50, 10
	for i := 0; i < parents; i++ {
		p := newParent(book)
		p.name = fmt.Sprintf("p%02d", i)
		require.NoError(t, eng.CommitInstance(ctx, "parents", p, parentColumns))
		for j := 0; j < perParent; j++ {
			c := newChild(book, p)
			c.memo = fmt.Sprintf("c%02d-%02d", i, j)
			c.amount = numeric.New(int64(i*100+j), 100)
			c.flags = uint32(j)
			if j == 0 {
				c.Slots().Set("first", kvp.NewInt64(int64(i)))
			}
			require.NoError(t, eng.CommitInstance(ctx, "children", c, childColumns))
		}
	}

	fresh := qof.NewBook()
	loadedParents, err := eng.LoadAll(ctx, fresh, parentTable)
	require.NoError(t, err)
	require.Len(t, loadedParents, parents)

	counter := testutil.NewCountingExecutor(eng.exec)
	counted := eng.WithExecutor(counter)
	children, err := counted.LoadChildren(ctx, fresh, childTable, "parent_guid", loadedParents)
	require.NoError(t, err)

	assert.Len(t, children, parents*perParent)
	assert.Len(t, counter.Queries(), 2)
	assert.Len(t, counter.QueriesOn("children"), 1)
	assert.Len(t, counter.QueriesOn(SlotsTable), 1)

	withSlots := 0
	for _, ent := range children {
		c := ent.(*child)
		require.NotNil(t, c.parent)
		if !c.Slots().IsEmpty() {
			withSlots++
		}
	}
	assert.Equal(t, parents, withSlots)
	for _, ent := range loadedParents {
		assert.Len(t, ent.(*parent).children, perParent)
	}
}

func TestSelectInBatches(t *testing.T) {
	eng, _, book := setup(t)
	ctx := context.Background()

	var keys []any
	for i := 0; i < 25; i++ {
		p := newParent(book)
		require.NoError(t, eng.CommitInstance(ctx, "parents", p, parentColumns))
		keys = append(keys, p.GUID().String())
	}

	counter := testutil.NewCountingExecutor(eng.exec)
	small := New(counter, SQLite, WithBatchSize(10))
	rows, err := small.SelectIn(ctx, "parents", parentColumns, "guid", keys)
	require.NoError(t, err)
	assert.Len(t, rows, 25)
	assert.Len(t, counter.Queries(), 3)
}

func TestLoadSkipsDirtyInstances(t *testing.T) {
	eng, _, book := setup(t)
	ctx := context.Background()

	p := newParent(book)
	p.name = "stored"
	require.NoError(t, eng.CommitInstance(ctx, "parents", p, parentColumns))

	fresh := qof.NewBook()
	ents, err := eng.LoadAll(ctx, fresh, parentTable)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	local := ents[0].(*parent)

	local.BeginEdit(ctx)
	local.name = "unsaved"
	local.Touch()

	ents, err = eng.LoadAll(ctx, fresh, parentTable)
	require.NoError(t, err)
	assert.Empty(t, ents)
	assert.Equal(t, "unsaved", local.name)
}

func TestLoadBookRunsParentLoader(t *testing.T) {
	eng, reg, book := setup(t)
	ctx := context.Background()

	p := newParent(book)
	require.NoError(t, eng.CommitInstance(ctx, "parents", p, parentColumns))
	c := newChild(book, p)
	require.NoError(t, eng.CommitInstance(ctx, "children", c, childColumns))

	fresh := qof.NewBook()
	require.NoError(t, eng.LoadBook(ctx, fresh, reg))
	assert.Equal(t, 1, fresh.Collection(parentType).Count())
	assert.Equal(t, 1, fresh.Collection(childType).Count())
}

func TestSaveBookPristine(t *testing.T) {
	eng, reg, book := setup(t)
	ctx := context.Background()

	p := newParent(book)
	p.MarkLoaded()
	eng.SetPristine(true)
	require.NoError(t, eng.SaveBook(ctx, book, reg))

	rows, err := eng.SelectAll(ctx, "parents", parentColumns)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStatementErrorsAreBackendErrors(t *testing.T) {
	db := testutil.OpenSQLite(t)
	eng := New(db, SQLite)
	book := qof.NewBook()
	p := newParent(book)

	err := eng.CommitInstance(context.Background(), "parents", p, parentColumns)
	require.Error(t, err)
	assert.Equal(t, qof.ErrBackendServerErr, qof.CodeOf(err))

	locked := New(db, SQLite, WithClassifier(func(error) qof.ErrorCode { return qof.ErrBackendLocked }))
	err = locked.CommitInstance(context.Background(), "parents", p, parentColumns)
	assert.True(t, qof.IsBackendError(err, qof.ErrBackendLocked))
}

func TestFailedCommitReachesOnError(t *testing.T) {
	db := testutil.OpenSQLite(t)
	eng := New(db, SQLite)
	be := &engineBackend{eng: eng, reg: testRegistry()}
	book := qof.NewBook(qof.WithBackend(be))
	ctx := context.Background()

	// No tables exist, so the insert fails.
	p := newParent(book)
	p.BeginEdit(ctx)
	p.name = "lost"
	require.True(t, p.CommitEdit())

	var codes []qof.ErrorCode
	ok := p.CommitEditPart2(ctx, func(_ qof.Entity, code qof.ErrorCode) { codes = append(codes, code) }, nil, nil)
	assert.False(t, ok)
	assert.Equal(t, []qof.ErrorCode{qof.ErrBackendServerErr}, codes)
	assert.True(t, p.IsDirty())
	assert.Len(t, be.errs, 1)
}

func TestRecordApplyRecord(t *testing.T) {
	book := qof.NewBook()
	p := newParent(book)
	p.name = "rec"
	p.seq = -5
	p.opened = time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)
	c := newChild(book, p)
	c.amount = numeric.New(-250, 100)
	c.flags = 3

	prec := Record(p, parentColumns)
	assert.Equal(t, p.GUID().String(), prec["guid"])
	assert.Equal(t, "-5", prec["seq"])
	assert.Equal(t, "2024-02-29 12:00:00.000000", prec["opened"])

	crec := Record(c, childColumns)
	assert.Equal(t, "-250", crec["amount_num"])
	assert.Equal(t, "100", crec["amount_denom"])

	other := qof.NewBook()
	p2 := newParent(other)
	require.NoError(t, ApplyRecord(other, p2, parentColumns, prec))
	assert.Equal(t, p.GUID(), p2.GUID())
	assert.Equal(t, "rec", p2.name)
	assert.True(t, p.opened.Equal(p2.opened))

	c2 := newChild(other, nil)
	require.NoError(t, ApplyRecord(other, c2, childColumns, crec))
	assert.Same(t, p2, c2.parent)
	assert.True(t, c.amount.Equal(c2.amount))
	assert.Equal(t, uint32(3), c2.flags)

	orphan := newChild(qof.NewBook(), nil)
	err := ApplyRecord(orphan.Book(), orphan, childColumns, crec)
	assert.True(t, errors.Is(err, ErrUnresolvedRef))
}

func TestBindingOnWrongEntityPanics(t *testing.T) {
	book := qof.NewBook()
	c := newChild(book, nil)
	assert.Panics(t, func() { parentColumns[1].Values(c) })
}

func TestRegistry(t *testing.T) {
	reg := testRegistry()
	ot, ok := reg.Lookup(childType)
	require.True(t, ok)
	assert.Equal(t, "children", ot.Table)
	assert.Len(t, reg.Tables(), 2)

	assert.Error(t, reg.Register(parentTable))
	assert.Error(t, reg.Register(&ObjectTable{Type: "Empty"}))
}

func TestWireConversions(t *testing.T) {
	n, err := ToInt64([]byte("12"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	_, err = ToInt64(struct{}{})
	assert.Error(t, err)

	ts, err := ToTime("2024-01-02 03:04:05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), ts)

	ts, err = ToTime(nil)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	g := guid.New()
	got, err := ToGUID(g.Bytes())
	require.NoError(t, err)
	assert.Equal(t, g, got)

	_, err = ToGUID("nope")
	assert.Error(t, err)
}

func TestEmptySlotKeyRoundTrip(t *testing.T) {
	eng, _, book := setup(t)
	ctx := context.Background()

	p := newParent(book)
	p.BeginEdit(ctx)
	p.name = "blank"
	p.Slots().Set("", kvp.NewString("blank key"))
	p.Slots().SetPath(kvp.NewInt64(3), "nested", "")
	p.Touch()
	commit(t, ctx, p)

	got, ok, err := eng.LoadByGUID(ctx, qof.NewBook(), parentTable, p.GUID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, kvp.CompareFrames(p.Slots(), got.Inst().Slots()))
}

func TestLoadReleasesEntityOnBadColumn(t *testing.T) {
	db := testutil.OpenSQLite(t)
	eng := New(db, SQLite)
	ctx := context.Background()
	require.NoError(t, eng.CreateTables(ctx, testRegistry()))

	g := guid.New()
	_, err := db.Exec("INSERT INTO parents (guid, name, seq) VALUES (?, ?, ?)", g.String(), "n", "notanumber")
	require.NoError(t, err)

	fresh := qof.NewBook()
	_, err = eng.LoadAll(ctx, fresh, parentTable)
	require.Error(t, err)
	assert.Equal(t, qof.ErrBackendDataCorrupt, qof.CodeOf(err))
	_, found := fresh.Lookup(parentType, g)
	assert.False(t, found)
	assert.Zero(t, fresh.Collection(parentType).Count())
}

func TestLoadRejectsZeroDenominator(t *testing.T) {
	db := testutil.OpenSQLite(t)
	eng := New(db, SQLite)
	ctx := context.Background()
	require.NoError(t, eng.CreateTables(ctx, testRegistry()))

	pg, cg := guid.New(), guid.New()
	_, err := db.Exec("INSERT INTO parents (guid, name) VALUES (?, ?)", pg.String(), "p")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO children (guid, parent_guid, amount_num, amount_denom) VALUES (?, ?, ?, ?)",
		cg.String(), pg.String(), 5, 0)
	require.NoError(t, err)

	fresh := qof.NewBook()
	_, err = eng.LoadAll(ctx, fresh, parentTable)
	require.NoError(t, err)
	_, err = eng.LoadAll(ctx, fresh, childTable)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrZeroDenominator))
	assert.Equal(t, qof.ErrBackendDataCorrupt, qof.CodeOf(err))
	assert.Zero(t, fresh.Collection(childType).Count())
}
