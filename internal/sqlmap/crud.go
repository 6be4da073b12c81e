package sqlmap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/qof"
)

// Op is the statement chosen for a commit.
type Op int

const (
	OpInsert Op = iota + 1
	OpUpdate
	OpDelete
)

// String returns the lower-case statement name.
func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

// ChooseOp picks the statement for ent: destroying deletes, an infant or a
// pristine database inserts, anything else updates.
func (e *Engine) ChooseOp(ent qof.Entity) Op {
	inst := ent.Inst()
	switch {
	case inst.IsDestroying():
		return OpDelete
	case e.pristine || inst.IsInfant():
		return OpInsert
	}
	return OpUpdate
}

// primaryKey returns the first primary-key column, or the first column.
func primaryKey(cols []Column) Column {
	for _, c := range cols {
		if c.Has(PrimaryKey) {
			return c
		}
	}
	return cols[0]
}

func (e *Engine) placeholders(from, n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = e.dialect.Placeholder(from + i)
	}
	return strings.Join(marks, ", ")
}

// DoOperation builds and runs one statement for ent against table.
func (e *Engine) DoOperation(ctx context.Context, op Op, table string, ent qof.Entity, cols []Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("sqlmap: %s %s: no columns", op, table)
	}
	pk := primaryKey(cols)
	pkVals := pk.Values(ent)

	switch op {
	case OpInsert:
		var names []string
		var args []any
		for _, c := range cols {
			names = append(names, c.SQLNames()...)
			args = append(args, c.Values(ent)...)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(names, ", "), e.placeholders(1, len(args)))
		_, err := e.execStmt(ctx, op.String(), table, q, args...)
		return err

	case OpUpdate:
		var sets []string
		var args []any
		for _, c := range cols {
			if c.Name == pk.Name {
				continue
			}
			vals := c.Values(ent)
			for i, name := range c.SQLNames() {
				args = append(args, vals[i])
				sets = append(sets, name+" = "+e.dialect.Placeholder(len(args)))
			}
		}
		if len(sets) == 0 {
			return nil
		}
		args = append(args, pkVals[0])
		q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			table, strings.Join(sets, ", "), pk.Name, e.dialect.Placeholder(len(args)))
		_, err := e.execStmt(ctx, op.String(), table, q, args...)
		return err

	case OpDelete:
		q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, pk.Name, e.dialect.Placeholder(1))
		_, err := e.execStmt(ctx, op.String(), table, q, pkVals[0])
		return err
	}
	return fmt.Errorf("sqlmap: unknown operation %d", op)
}

// CommitInstance writes ent's row with the statement ChooseOp picks, then
// mirrors its metadata frame into the slot table (or removes the slots
// when the entity is being deleted).
func (e *Engine) CommitInstance(ctx context.Context, table string, ent qof.Entity, cols []Column) error {
	op := e.ChooseOp(ent)
	if err := e.DoOperation(ctx, op, table, ent, cols); err != nil {
		return err
	}
	if op == OpDelete {
		return e.DeleteSlots(ctx, ent.Inst().GUID())
	}
	return e.SaveSlots(ctx, ent)
}

func (e *Engine) selectList(cols []Column) string {
	var names []string
	for _, c := range cols {
		names = append(names, c.SQLNames()...)
	}
	return strings.Join(names, ", ")
}

// SelectAll returns every row of table.
func (e *Engine) SelectAll(ctx context.Context, table string, cols []Column) ([]Row, error) {
	q := fmt.Sprintf("SELECT %s FROM %s", e.selectList(cols), table)
	return e.queryRows(ctx, "select", table, q)
}

// SelectWhere returns the rows of table whose keyCol equals key.
func (e *Engine) SelectWhere(ctx context.Context, table string, cols []Column, keyCol string, key any) ([]Row, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", e.selectList(cols), table, keyCol, e.dialect.Placeholder(1))
	return e.queryRows(ctx, "select", table, q, key)
}

// SelectIn returns the rows of table whose keyCol is one of keys, issuing
// one IN (...) query per batch of keys.
func (e *Engine) SelectIn(ctx context.Context, table string, cols []Column, keyCol string, keys []any) ([]Row, error) {
	var out []Row
	for start := 0; start < len(keys); start += e.batchSize {
		end := min(start+e.batchSize, len(keys))
		batch := keys[start:end]
		q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			e.selectList(cols), table, keyCol, e.placeholders(1, len(batch)))
		rows, err := e.queryRows(ctx, "select", table, q, batch...)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// LoadObject stores the values of row into ent through the column setters.
// An unresolved reference is logged and skipped; any other bad value fails
// with ErrBackendDataCorrupt.
func (e *Engine) LoadObject(book *qof.Book, ent qof.Entity, cols []Column, row Row) error {
	err := applyRow(book, ent, cols, row, func(c Column, err error) bool {
		if errors.Is(err, ErrUnresolvedRef) {
			e.log.Warn().Err(err).Str("type", ent.Inst().Type()).Msg("dangling reference")
			return true
		}
		return false
	})
	if err != nil {
		return qof.NewBackendError(qof.ErrBackendDataCorrupt, "sqlmap: load "+ent.Inst().Type(), err)
	}
	return nil
}

func applyRow(book *qof.Book, ent qof.Entity, cols []Column, row Row, tolerate func(Column, error) bool) error {
	for _, c := range cols {
		names := c.SQLNames()
		raw := make([]any, len(names))
		for i, n := range names {
			raw[i] = row[n]
		}
		if err := c.Apply(book, ent, raw); err != nil {
			if tolerate != nil && tolerate(c, err) {
				continue
			}
			return err
		}
	}
	return nil
}

// LoadRows turns rows of ot's table into entities. Existing entities are
// reused; entities with unsaved changes are left untouched and omitted from
// the result. Loaded entities are marked clean and not infant. An entity
// allocated for a row that fails to load is released again.
func (e *Engine) LoadRows(book *qof.Book, ot *ObjectTable, rows []Row) ([]qof.Entity, error) {
	pk := primaryKey(ot.Columns)
	out := make([]qof.Entity, 0, len(rows))
	for _, row := range rows {
		g, err := ToGUID(row[pk.Name])
		if err != nil || g.IsNull() {
			return nil, qof.NewBackendError(qof.ErrBackendDataCorrupt, "sqlmap: load "+ot.Table, err)
		}
		ent, ok := book.Lookup(ot.Type, g)
		if ok && ent.Inst().DirtyFlag() {
			continue
		}
		if !ok {
			ent = ot.New(book)
			ent.Inst().SetGUID(g)
		}
		if err := e.LoadObject(book, ent, ot.Columns, row); err != nil {
			if !ok {
				ent.Inst().Release()
			}
			return nil, err
		}
		ent.Inst().MarkLoaded()
		out = append(out, ent)
	}
	return out, nil
}

// LoadAll loads every row of ot's table and their metadata frames.
func (e *Engine) LoadAll(ctx context.Context, book *qof.Book, ot *ObjectTable) ([]qof.Entity, error) {
	rows, err := e.SelectAll(ctx, ot.Table, ot.Columns)
	if err != nil {
		return nil, err
	}
	ents, err := e.LoadRows(book, ot, rows)
	if err != nil {
		return nil, err
	}
	if err := e.LoadSlotsForList(ctx, ents); err != nil {
		return nil, err
	}
	return ents, nil
}

// LoadByGUID loads one entity of ot's type by primary key. It reports false
// when no row exists.
func (e *Engine) LoadByGUID(ctx context.Context, book *qof.Book, ot *ObjectTable, g guid.GUID) (qof.Entity, bool, error) {
	pk := primaryKey(ot.Columns)
	rows, err := e.SelectWhere(ctx, ot.Table, ot.Columns, pk.Name, g.String())
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	ents, err := e.LoadRows(book, ot, rows[:1])
	if err != nil {
		return nil, false, err
	}
	if len(ents) == 0 {
		// Dirty in memory; the caller gets the unsaved version.
		ent, ok := book.Lookup(ot.Type, g)
		return ent, ok, nil
	}
	if err := e.LoadSlotsForList(ctx, ents); err != nil {
		return nil, false, err
	}
	return ents[0], true, nil
}

// LoadChildren loads the rows of ot whose parentCol references one of the
// parents, in batched IN (...) queries, followed by one batched slot query.
func (e *Engine) LoadChildren(ctx context.Context, book *qof.Book, ot *ObjectTable, parentCol string, parents []qof.Entity) ([]qof.Entity, error) {
	if len(parents) == 0 {
		return nil, nil
	}
	keys := make([]any, len(parents))
	for i, p := range parents {
		keys[i] = p.Inst().GUID().String()
	}
	rows, err := e.SelectIn(ctx, ot.Table, ot.Columns, parentCol, keys)
	if err != nil {
		return nil, err
	}
	ents, err := e.LoadRows(book, ot, rows)
	if err != nil {
		return nil, err
	}
	if err := e.LoadSlotsForList(ctx, ents); err != nil {
		return nil, err
	}
	return ents, nil
}

// DeleteWhere deletes the rows of table whose keyCol equals key.
func (e *Engine) DeleteWhere(ctx context.Context, table, keyCol string, key any) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, keyCol, e.dialect.Placeholder(1))
	_, err := e.execStmt(ctx, "delete", table, q, key)
	return err
}

// DeleteAll removes every row of table and reports how many went.
func (e *Engine) DeleteAll(ctx context.Context, table string) (int64, error) {
	res, err := e.execStmt(ctx, "delete", table, "DELETE FROM "+table)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
