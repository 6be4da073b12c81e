package sqlmap

import (
	"context"
	"fmt"
	"strings"
)

// VersionsTable records the schema version of every mapped table.
const VersionsTable = "versions"

var versionColumns = []Column{
	{Name: "table_name", Type: ColString, Size: 50, Flags: PrimaryKey | NotNull},
	{Name: "table_version", Type: ColInt, Flags: NotNull},
}

// Index is a secondary index created alongside a table.
type Index struct {
	Name    string
	Columns []string
}

// DDL renders the CREATE TABLE statement for cols.
func (e *Engine) DDL(table string, cols []Column) string {
	return renderDDL(e.dialect, table, cols, false)
}

func renderDDL(d Dialect, table string, cols []Column, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(table)
	b.WriteString(" (")
	first := true
	for _, c := range cols {
		for _, name := range c.SQLNames() {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(name)
			b.WriteByte(' ')
			b.WriteString(columnDecl(d, c))
		}
	}
	b.WriteString(")")
	return b.String()
}

func columnDecl(d Dialect, c Column) string {
	if c.Has(AutoIncrement) {
		return d.SerialKey()
	}
	typ := c.Type
	if typ == ColNumeric {
		typ = ColInt
	}
	decl := d.TypeName(typ, c.Size)
	if c.Has(PrimaryKey) {
		decl += " PRIMARY KEY"
	}
	if c.Has(NotNull) || c.Has(PrimaryKey) {
		decl += " NOT NULL"
	}
	return decl
}

// EnsureVersionsTable creates the versions table if it is missing.
func (e *Engine) EnsureVersionsTable(ctx context.Context) error {
	_, err := e.execStmt(ctx, "create", VersionsTable, renderDDL(e.dialect, VersionsTable, versionColumns, true))
	return err
}

// TableVersion returns the stored version of table, or 0 when the table
// has never been created.
func (e *Engine) TableVersion(ctx context.Context, table string) (int, error) {
	q := fmt.Sprintf("SELECT table_version FROM %s WHERE table_name = %s", VersionsTable, e.dialect.Placeholder(1))
	rows, err := e.queryRows(ctx, "select", VersionsTable, q, table)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	v, err := ToInt64(rows[0]["table_version"])
	if err != nil {
		return 0, fmt.Errorf("sqlmap: version of %s: %w", table, err)
	}
	return int(v), nil
}

// SetTableVersion records version for table.
func (e *Engine) SetTableVersion(ctx context.Context, table string, version int) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE table_name = %s", VersionsTable, e.dialect.Placeholder(1))
	if _, err := e.execStmt(ctx, "delete", VersionsTable, del, table); err != nil {
		return err
	}
	ins := fmt.Sprintf("INSERT INTO %s (table_name, table_version) VALUES (%s, %s)",
		VersionsTable, e.dialect.Placeholder(1), e.dialect.Placeholder(2))
	_, err := e.execStmt(ctx, "insert", VersionsTable, ins, table, int64(version))
	return err
}

// CreateTable creates table and records its version, but only when the
// stored version is 0. It reports whether the table was created. Column
// migrations of existing tables are the caller's concern.
func (e *Engine) CreateTable(ctx context.Context, table string, version int, cols []Column) (bool, error) {
	current, err := e.TableVersion(ctx, table)
	if err != nil {
		return false, err
	}
	if current != 0 {
		return false, nil
	}
	if _, err := e.execStmt(ctx, "create", table, e.DDL(table, cols)); err != nil {
		return false, err
	}
	if err := e.SetTableVersion(ctx, table, version); err != nil {
		return false, err
	}
	e.log.Debug().Str("table", table).Int("version", version).Msg("table created")
	return true, nil
}

func renderIndex(table string, idx Index, ifNotExists bool) string {
	q := "CREATE INDEX "
	if ifNotExists {
		q += "IF NOT EXISTS "
	}
	return q + fmt.Sprintf("%s ON %s (%s)", idx.Name, table, strings.Join(idx.Columns, ", "))
}

// CreateIndex creates idx on table if it does not exist.
func (e *Engine) CreateIndex(ctx context.Context, table string, idx Index) error {
	_, err := e.execStmt(ctx, "create", table, renderIndex(table, idx, true))
	return err
}

var slotsIndex = Index{Name: "slots_guid_index", Columns: []string{slotKeyCol}}

// SchemaDDL renders every statement CreateTables would run on an empty
// database, one per line, each terminated by a semicolon.
func SchemaDDL(d Dialect, reg *Registry) string {
	var b strings.Builder
	stmt := func(s string) {
		b.WriteString(s)
		b.WriteString(";\n")
	}
	stmt(renderDDL(d, VersionsTable, versionColumns, false))
	stmt(renderDDL(d, SlotsTable, slotColumns, false))
	stmt(renderIndex(SlotsTable, slotsIndex, false))
	stmt(renderDDL(d, BooksTable, bookColumns, false))
	for _, ot := range reg.Tables() {
		stmt(renderDDL(d, ot.Table, ot.Columns, false))
		for _, idx := range ot.Indexes {
			stmt(renderIndex(ot.Table, idx, false))
		}
	}
	return b.String()
}

// CreateTables creates the versions, slot and book tables plus every
// registered object table that does not exist yet.
func (e *Engine) CreateTables(ctx context.Context, reg *Registry) error {
	if err := e.EnsureVersionsTable(ctx); err != nil {
		return err
	}
	if _, err := e.CreateTable(ctx, SlotsTable, SlotsVersion, slotColumns); err != nil {
		return err
	}
	if err := e.CreateIndex(ctx, SlotsTable, slotsIndex); err != nil {
		return err
	}
	if _, err := e.CreateTable(ctx, BooksTable, BooksVersion, bookColumns); err != nil {
		return err
	}
	for _, ot := range reg.Tables() {
		created, err := e.CreateTable(ctx, ot.Table, ot.Version, ot.Columns)
		if err != nil {
			return err
		}
		if !created {
			continue
		}
		for _, idx := range ot.Indexes {
			if err := e.CreateIndex(ctx, ot.Table, idx); err != nil {
				return err
			}
		}
	}
	return nil
}
