package sqlmap

import (
	"fmt"
	"strconv"
)

// Dialect renders the database-specific parts of a statement.
type Dialect interface {
	// Name returns the database/sql driver family, "sqlite3" or "postgres".
	Name() string

	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder(n int) string

	// TypeName returns the column type for a logical type. Numeric columns
	// ask once per SQL column with ColInt.
	TypeName(t ColType, size int) string

	// SerialKey returns the full declaration (type and constraints) of an
	// auto-incrementing integer primary key.
	SerialKey() string
}

// SQLite is the embedded-database dialect.
var SQLite Dialect = sqliteDialect{}

// Postgres is the client/server dialect.
var Postgres Dialect = postgresDialect{}

// DialectByName returns the dialect for a driver family.
func DialectByName(name string) (Dialect, error) {
	switch name {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return nil, fmt.Errorf("sqlmap: unknown dialect %q", name)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite3" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) TypeName(t ColType, size int) string {
	switch t {
	case ColGUID, ColRef:
		return "text(32)"
	case ColString:
		if size > 0 {
			return "text(" + strconv.Itoa(size) + ")"
		}
		return "text"
	case ColInt, ColNumeric:
		return "bigint"
	case ColUint:
		return "integer"
	case ColTimestamp:
		return "text(26)"
	case ColDouble:
		return "real"
	case ColBinary:
		return "blob"
	}
	panic(fmt.Sprintf("sqlmap: no sqlite type for %d", t))
}

func (sqliteDialect) SerialKey() string {
	return "integer PRIMARY KEY AUTOINCREMENT NOT NULL"
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) TypeName(t ColType, size int) string {
	switch t {
	case ColGUID, ColRef:
		return "varchar(32)"
	case ColString:
		if size > 0 {
			return "varchar(" + strconv.Itoa(size) + ")"
		}
		return "text"
	case ColInt, ColNumeric:
		return "bigint"
	case ColUint:
		return "integer"
	case ColTimestamp:
		return "timestamp without time zone"
	case ColDouble:
		return "double precision"
	case ColBinary:
		return "bytea"
	}
	panic(fmt.Sprintf("sqlmap: no postgres type for %d", t))
}

func (postgresDialect) SerialKey() string {
	return "serial PRIMARY KEY NOT NULL"
}
