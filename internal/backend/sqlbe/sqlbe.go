// Package sqlbe is the SQL persistence backend: SQLite through
// mattn/go-sqlite3 and PostgreSQL through the pgx database/sql driver, both
// mapped by sqlmap.
package sqlbe

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/roach88/qofcore/internal/logger"
	"github.com/roach88/qofcore/internal/metrics"
	"github.com/roach88/qofcore/internal/qof"
	"github.com/roach88/qofcore/internal/sqlmap"
)

// Backend commits and loads entities through a SQL database.
//
// Each commit runs in its own database transaction. A failed statement
// rolls back that transaction and pushes its error code onto the backend
// error channel; the in-memory entity is left as it is.
type Backend struct {
	qof.ErrorChannel

	db       *sql.DB
	eng      *sqlmap.Engine
	reg      *sqlmap.Registry
	uri      string
	readOnly bool

	logger  *logger.Logger
	log     zerolog.Logger
	metrics *metrics.Metrics
	batch   int

	bookStored atomic.Bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithMetrics records commits, statements and loads on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Backend) { b.metrics = m }
}

// WithReadOnly rejects every commit with ErrBackendReadonly.
func WithReadOnly() Option {
	return func(b *Backend) { b.readOnly = true }
}

// WithBatchSize sets the IN (...) batch size of batched loads.
func WithBatchSize(n int) Option {
	return func(b *Backend) { b.batch = n }
}

// OpenSQLite opens or creates the SQLite database at path and creates any
// missing tables of reg.
func OpenSQLite(ctx context.Context, path string, reg *sqlmap.Registry, opts ...Option) (*Backend, error) {
	return open(ctx, "sqlite3", path, sqlmap.SQLite, reg, opts)
}

// OpenPostgres connects to the PostgreSQL database named by dsn and creates
// any missing tables of reg.
func OpenPostgres(ctx context.Context, dsn string, reg *sqlmap.Registry, opts ...Option) (*Backend, error) {
	return open(ctx, "pgx", dsn, sqlmap.Postgres, reg, opts)
}

func open(ctx context.Context, driver, dsn string, d sqlmap.Dialect, reg *sqlmap.Registry, opts []Option) (*Backend, error) {
	b := &Backend{reg: reg, uri: d.Name() + "://" + redact(dsn), logger: logger.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.logger.BackendLogger(d.Name(), b.uri)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, qof.NewBackendError(qof.ErrBackendBadURL, "sqlbe: open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, qof.NewBackendError(connectCode(err), "sqlbe: connect", err)
	}

	if driver == "sqlite3" {
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, qof.NewBackendError(Classify(err), "sqlbe: pragmas", err)
		}
	}
	b.db = db

	engOpts := []sqlmap.Option{
		sqlmap.WithLogger(b.log),
		sqlmap.WithClassifier(Classify),
		sqlmap.WithBatchSize(b.batch),
	}
	if b.metrics != nil {
		engOpts = append(engOpts, sqlmap.WithObserver(b.metrics))
	}
	b.eng = sqlmap.New(db, d, engOpts...)

	if !b.readOnly {
		if err := b.eng.CreateTables(ctx, reg); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlbe: create tables: %w", err)
		}
	}
	b.log.Info().Msg("backend opened")
	return b, nil
}

// connectCode maps a connection failure; anything unrecognised means the
// server could not be reached.
func connectCode(err error) qof.ErrorCode {
	if code := Classify(err); code != qof.ErrBackendServerErr {
		return code
	}
	return qof.ErrBackendCantConnect
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// DB returns the underlying sql.DB.
func (b *Backend) DB() *sql.DB { return b.db }

// Engine returns the column-mapping engine.
func (b *Backend) Engine() *sqlmap.Engine { return b.eng }

// URI returns the backend location with any password removed.
func (b *Backend) URI() string { return b.uri }

// RunCommit writes e in one database transaction.
//
// Implements qof.CommitHook interface.
func (b *Backend) RunCommit(ctx context.Context, e qof.Entity) {
	inst := e.Inst()
	if b.readOnly {
		b.SetError(qof.ErrBackendReadonly)
		return
	}

	op := b.eng.ChooseOp(e).String()
	start := time.Now()
	err := b.inTx(ctx, func(eng *sqlmap.Engine) error {
		if err := b.storeBook(ctx, eng, inst.Book()); err != nil {
			return err
		}
		return eng.Commit(ctx, b.reg, e)
	})
	elapsed := time.Since(start)
	if err == nil {
		b.bookStored.Store(true)
	}

	b.metrics.RecordCommit(inst.Type(), op, elapsed, err)
	b.logger.LogCommit(inst.Type(), op, elapsed, err)
	if err != nil {
		b.SetError(qof.CodeOf(err))
	}
}

// storeBook writes the book row the first time anything is committed to a
// database that has none.
func (b *Backend) storeBook(ctx context.Context, eng *sqlmap.Engine, book *qof.Book) error {
	if b.bookStored.Load() {
		return nil
	}
	_, ok, err := eng.BookGUID(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return eng.SaveBookGUID(ctx, book.GUID())
}

func (b *Backend) inTx(ctx context.Context, fn func(*sqlmap.Engine) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return qof.NewBackendError(Classify(err), "sqlbe: begin", err)
	}
	if err := fn(b.eng.WithExecutor(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			b.log.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return qof.NewBackendError(Classify(err), "sqlbe: commit", err)
	}
	return nil
}

// Load reads every registered table into book.
//
// Implements qof.Loader interface.
func (b *Backend) Load(ctx context.Context, book *qof.Book) error {
	g, ok, err := b.eng.BookGUID(ctx)
	if err != nil {
		return fmt.Errorf("sqlbe: load: %w", err)
	}
	if ok {
		book.SetGUID(g)
		b.bookStored.Store(true)
	}
	if err := b.eng.LoadBook(ctx, book, b.reg); err != nil {
		return fmt.Errorf("sqlbe: load: %w", err)
	}
	for _, ot := range b.reg.Tables() {
		if book.HasCollection(ot.Type) {
			n := book.Collection(ot.Type).Count()
			b.metrics.RecordLoad(ot.Type, n)
			b.log.Debug().Str("type", ot.Type).Int("count", n).Msg("loaded")
		}
	}
	return nil
}

// Sync replaces the database contents with book. Every row is removed and
// every entity inserted, in one transaction.
//
// Implements qof.Syncer interface.
func (b *Backend) Sync(ctx context.Context, book *qof.Book) error {
	if b.readOnly {
		return qof.NewBackendError(qof.ErrBackendReadonly, "sqlbe: sync", nil)
	}
	err := b.inTx(ctx, func(eng *sqlmap.Engine) error {
		for _, ot := range b.reg.Tables() {
			if _, err := eng.DeleteAll(ctx, ot.Table); err != nil {
				return err
			}
		}
		if _, err := eng.DeleteAll(ctx, sqlmap.SlotsTable); err != nil {
			return err
		}
		if err := eng.SaveBookGUID(ctx, book.GUID()); err != nil {
			return err
		}
		eng.SetPristine(true)
		return eng.SaveBook(ctx, book, b.reg)
	})
	if err == nil {
		b.bookStored.Store(true)
	}
	return err
}
