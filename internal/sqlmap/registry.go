package sqlmap

import (
	"context"
	"fmt"

	"github.com/roach88/qofcore/internal/qof"
)

// ObjectTable binds one entity type to its table.
type ObjectTable struct {
	// Type is the entity type tag (collection name).
	Type string

	// Table is the SQL table name.
	Table string

	// Version is recorded in the versions table on creation.
	Version int

	// Columns map entity fields to SQL columns; the primary key comes first.
	Columns []Column

	// Indexes are created with the table.
	Indexes []Index

	// New allocates an empty entity registered in book.
	New func(book *qof.Book) qof.Entity

	// Commit overrides CommitInstance, for types that save dependent rows.
	Commit func(ctx context.Context, e *Engine, ent qof.Entity) error

	// Load overrides LoadAll, for types that load dependent rows. It is
	// passed its own table.
	Load func(ctx context.Context, e *Engine, book *qof.Book, ot *ObjectTable) error

	// Child marks types whose rows are loaded and saved through their
	// parent's Load and Commit.
	Child bool
}

// Registry holds object tables in registration order. Load order follows
// registration order, so referenced types register first.
type Registry struct {
	tables []*ObjectTable
	byType map[string]*ObjectTable
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]*ObjectTable)}
}

// Register adds ot. A type may be registered once.
func (r *Registry) Register(ot *ObjectTable) error {
	if ot.Type == "" || ot.Table == "" || len(ot.Columns) == 0 || ot.New == nil {
		return fmt.Errorf("sqlmap: incomplete object table %q", ot.Type)
	}
	if _, dup := r.byType[ot.Type]; dup {
		return fmt.Errorf("sqlmap: type %q already registered", ot.Type)
	}
	r.tables = append(r.tables, ot)
	r.byType[ot.Type] = ot
	return nil
}

// MustRegister is Register for package initialisation; it panics on error.
func (r *Registry) MustRegister(ots ...*ObjectTable) *Registry {
	for _, ot := range ots {
		if err := r.Register(ot); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the object table for an entity type.
func (r *Registry) Lookup(typ string) (*ObjectTable, bool) {
	ot, ok := r.byType[typ]
	return ot, ok
}

// Tables returns the object tables in registration order.
func (r *Registry) Tables() []*ObjectTable {
	return append([]*ObjectTable(nil), r.tables...)
}

// Commit persists ent through its object table.
func (e *Engine) Commit(ctx context.Context, reg *Registry, ent qof.Entity) error {
	typ := ent.Inst().Type()
	ot, ok := reg.Lookup(typ)
	if !ok {
		return qof.NewBackendError(qof.ErrBackendMisc, "sqlmap: commit", fmt.Errorf("no object table for %q", typ))
	}
	if ot.Commit != nil {
		return ot.Commit(ctx, e, ent)
	}
	return e.CommitInstance(ctx, ot.Table, ent, ot.Columns)
}

// LoadBook loads every top-level object table into book.
func (e *Engine) LoadBook(ctx context.Context, book *qof.Book, reg *Registry) error {
	for _, ot := range reg.Tables() {
		if ot.Child {
			continue
		}
		if ot.Load != nil {
			if err := ot.Load(ctx, e, book, ot); err != nil {
				return err
			}
			continue
		}
		ents, err := e.LoadAll(ctx, book, ot)
		if err != nil {
			return err
		}
		e.log.Debug().Str("type", ot.Type).Int("count", len(ents)).Msg("loaded")
	}
	return nil
}

// SaveBook writes every entity of every top-level type. Used with the
// pristine flag to copy a book into a fresh database.
func (e *Engine) SaveBook(ctx context.Context, book *qof.Book, reg *Registry) error {
	for _, ot := range reg.Tables() {
		if ot.Child || !book.HasCollection(ot.Type) {
			continue
		}
		for _, ent := range book.Collection(ot.Type).Entities() {
			if err := e.Commit(ctx, reg, ent); err != nil {
				return err
			}
		}
	}
	return nil
}

// Record renders ent's columns as a map of SQL column name to string.
// NULL columns are omitted. The file and RPC backends use records as their
// row format.
func Record(ent qof.Entity, cols []Column) map[string]any {
	rec := make(map[string]any, len(cols))
	for _, c := range cols {
		vals := c.Values(ent)
		for i, name := range c.SQLNames() {
			if vals[i] == nil {
				continue
			}
			rec[name] = ToString(vals[i])
		}
	}
	return rec
}

// ApplyRecord stores a record produced by Record into ent. Unlike
// LoadObject it treats an unresolved reference as an error.
func ApplyRecord(book *qof.Book, ent qof.Entity, cols []Column, rec map[string]any) error {
	if err := applyRow(book, ent, cols, Row(rec), nil); err != nil {
		return fmt.Errorf("sqlmap: apply %s record: %w", ent.Inst().Type(), err)
	}
	return nil
}
