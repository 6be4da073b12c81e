package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// OpenSQLite opens a fresh SQLite database in t's temp dir. The database is
// closed when the test ends.
func OpenSQLite(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.sqlite")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Ping())
	return db
}

// Statements is the subset of *sql.DB the counting executor wraps.
type Statements interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CountingExecutor records every statement passed through it.
//
// Thread-safety: CountingExecutor is safe for concurrent use.
type CountingExecutor struct {
	Inner Statements

	mu      sync.Mutex
	queries []string
	execs   []string
}

// NewCountingExecutor wraps inner.
func NewCountingExecutor(inner Statements) *CountingExecutor {
	return &CountingExecutor{Inner: inner}
}

// ExecContext records and forwards a statement.
func (c *CountingExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.mu.Lock()
	c.execs = append(c.execs, query)
	c.mu.Unlock()
	return c.Inner.ExecContext(ctx, query, args...)
}

// QueryContext records and forwards a query.
func (c *CountingExecutor) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()
	return c.Inner.QueryContext(ctx, query, args...)
}

// Queries returns the recorded queries.
func (c *CountingExecutor) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

// QueriesOn returns the recorded queries that read from table.
func (c *CountingExecutor) QueriesOn(table string) []string {
	var out []string
	for _, q := range c.Queries() {
		if strings.Contains(q, " FROM "+table+" ") || strings.HasSuffix(q, " FROM "+table) {
			out = append(out, q)
		}
	}
	return out
}

// Execs returns the recorded non-query statements.
func (c *CountingExecutor) Execs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

// Reset forgets everything recorded so far.
func (c *CountingExecutor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = nil
	c.execs = nil
}
