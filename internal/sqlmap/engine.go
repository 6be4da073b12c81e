package sqlmap

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/qofcore/internal/qof"
)

// DefaultBatchSize bounds the number of keys in one IN (...) list.
const DefaultBatchSize = 500

// Executor is the subset of *sql.DB and *sql.Tx the engine needs.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// QueryObserver receives one call per executed statement.
type QueryObserver interface {
	ObserveQuery(op, table string, d time.Duration, err error)
}

// ErrorClassifier maps a driver error to a backend error code.
type ErrorClassifier func(error) qof.ErrorCode

// Engine maps entities onto SQL tables through column descriptors.
//
// An Engine is bound to one Executor. WithExecutor derives an engine that
// runs on a transaction while sharing the rest of the configuration.
type Engine struct {
	exec      Executor
	dialect   Dialect
	log       zerolog.Logger
	batchSize int
	pristine  bool
	observer  QueryObserver
	classify  ErrorClassifier
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithBatchSize sets the IN (...) batch size.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithObserver installs a statement observer (metrics).
func WithObserver(o QueryObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClassifier installs the driver error mapping.
func WithClassifier(c ErrorClassifier) Option {
	return func(e *Engine) { e.classify = c }
}

// New creates an engine.
func New(exec Executor, d Dialect, opts ...Option) *Engine {
	e := &Engine{
		exec:      exec,
		dialect:   d,
		log:       zerolog.Nop(),
		batchSize: DefaultBatchSize,
		classify:  func(error) qof.ErrorCode { return qof.ErrBackendServerErr },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithExecutor returns a copy of e that runs statements on x.
func (e *Engine) WithExecutor(x Executor) *Engine {
	cp := *e
	cp.exec = x
	return &cp
}

// Dialect returns the engine dialect.
func (e *Engine) Dialect() Dialect { return e.dialect }

// BatchSize returns the IN (...) batch size.
func (e *Engine) BatchSize() int { return e.batchSize }

// SetPristine marks the target database as freshly created, so every
// commit inserts.
func (e *Engine) SetPristine(p bool) { e.pristine = p }

// IsPristine reports the pristine flag.
func (e *Engine) IsPristine() bool { return e.pristine }

func (e *Engine) wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	return qof.NewBackendError(e.classify(err), "sqlmap: "+op+" "+table, err)
}

func (e *Engine) observe(op, table string, start time.Time, err error) {
	if e.observer != nil {
		e.observer.ObserveQuery(op, table, time.Since(start), err)
	}
	if err != nil {
		e.log.Error().Err(err).Str("op", op).Str("table", table).Msg("statement failed")
	}
}

func (e *Engine) execStmt(ctx context.Context, op, table, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := e.exec.ExecContext(ctx, query, args...)
	e.observe(op, table, start, err)
	return res, e.wrap(op, table, err)
}

func (e *Engine) queryRows(ctx context.Context, op, table, query string, args ...any) ([]Row, error) {
	start := time.Now()
	rows, err := e.exec.QueryContext(ctx, query, args...)
	if err == nil {
		var out []Row
		out, err = scanRows(rows)
		e.observe(op, table, start, err)
		return out, e.wrap(op, table, err)
	}
	e.observe(op, table, start, err)
	return nil, e.wrap(op, table, err)
}

// Row is one result row keyed by SQL column name.
type Row map[string]any

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(names))
		for i, n := range names {
			r[n] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
