// Package filebe is the flat-file persistence backend. A book is stored as
// one YAML document holding every entity's column record and metadata
// frame, rewritten in full on every commit.
package filebe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/logger"
	"github.com/roach88/qofcore/internal/metrics"
	"github.com/roach88/qofcore/internal/qof"
	"github.com/roach88/qofcore/internal/sqlmap"
)

// FormatVersion is the document version this package writes. Newer
// documents are refused.
const FormatVersion = 1

// LockSuffix is appended to the book path to name its lock file.
const LockSuffix = ".LCK"

// Document is the on-disk form of a book.
type Document struct {
	Version int                         `yaml:"version"`
	Book    string                      `yaml:"book"`
	Objects map[string][]map[string]any `yaml:"objects"`
}

// Backend stores a book in a YAML file.
//
// Opening a writable backend takes the lock file; a second writer fails
// with ErrBackendLocked until Close removes it.
type Backend struct {
	qof.ErrorChannel

	path       string
	reg        *sqlmap.Registry
	readOnly   bool
	ignoreLock bool
	locked     bool

	logger  *logger.Logger
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithMetrics records commits and loads on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Backend) { b.metrics = m }
}

// WithReadOnly opens without taking the lock and rejects every write with
// ErrBackendReadonly.
func WithReadOnly() Option {
	return func(b *Backend) { b.readOnly = true }
}

// WithIgnoreLock opens for writing even if another process holds the
// lock. The lock is still taken over and removed on Close.
func WithIgnoreLock() Option {
	return func(b *Backend) { b.ignoreLock = true }
}

// Open prepares the book file at path. The file itself need not exist yet.
func Open(ctx context.Context, path string, reg *sqlmap.Registry, opts ...Option) (*Backend, error) {
	b := &Backend{path: path, reg: reg, logger: logger.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.logger.BackendLogger("file", path)

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return nil, qof.NewBackendError(qof.ErrFileNotFound, "filebe: open", err)
	}
	if !b.readOnly {
		if err := b.lock(); err != nil {
			return nil, err
		}
	}
	b.log.Info().Bool("read_only", b.readOnly).Msg("backend opened")
	return b, nil
}

// Path returns the book file path.
func (b *Backend) Path() string { return b.path }

func (b *Backend) lockPath() string { return b.path + LockSuffix }

func (b *Backend) lock() error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_EXCL
	if b.ignoreLock {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(b.lockPath(), flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return qof.NewBackendError(qof.ErrBackendLocked, "filebe: lock", err)
	}
	if err != nil {
		return qof.NewBackendError(qof.ErrFileLockErr, "filebe: lock", err)
	}
	defer f.Close()

	host, _ := os.Hostname()
	if _, err := fmt.Fprintf(f, "%s %d\n", host, os.Getpid()); err != nil {
		return qof.NewBackendError(qof.ErrFileLockErr, "filebe: lock", err)
	}
	b.locked = true
	return nil
}

// Close releases the lock.
func (b *Backend) Close() error {
	if !b.locked {
		return nil
	}
	b.locked = false
	if err := os.Remove(b.lockPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filebe: unlock: %w", err)
	}
	return nil
}

// Exists reports whether the book file has been written.
func (b *Backend) Exists() bool {
	_, err := os.Stat(b.path)
	return err == nil
}

// RunCommit rewrites the file with the committing entity's book.
//
// Implements qof.CommitHook interface.
func (b *Backend) RunCommit(ctx context.Context, e qof.Entity) {
	inst := e.Inst()
	start := time.Now()
	err := b.Sync(ctx, inst.Book())
	elapsed := time.Since(start)

	b.metrics.RecordCommit(inst.Type(), "write", elapsed, err)
	b.logger.LogCommit(inst.Type(), "write", elapsed, err)
	if err != nil {
		b.SetError(qof.CodeOf(err))
	}
}

// Sync writes book to the file, replacing it atomically.
//
// Implements qof.Syncer interface.
func (b *Backend) Sync(ctx context.Context, book *qof.Book) error {
	if b.readOnly {
		return qof.NewBackendError(qof.ErrBackendReadonly, "filebe: sync", nil)
	}
	doc, err := b.Snapshot(book)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return qof.NewBackendError(qof.ErrBackendMisc, "filebe: encode", err)
	}
	if err := writeAtomic(b.path, data); err != nil {
		return qof.NewBackendError(writeCode(err), "filebe: write", err)
	}
	return nil
}

// Snapshot renders book as a Document. Entities being destroyed are left
// out, along with anything that still references them.
func (b *Backend) Snapshot(book *qof.Book) (*Document, error) {
	return &Document{
		Version: FormatVersion,
		Book:    book.GUID().String(),
		Objects: sqlmap.Snapshot(book, b.reg),
	}, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeCode(err error) qof.ErrorCode {
	switch {
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EROFS):
		return qof.ErrBackendReadonly
	case errors.Is(err, fs.ErrNotExist):
		return qof.ErrFileNotFound
	}
	return qof.ErrBackendMisc
}

// Load reads the file into book. Entities are created first and filled in
// second, so references resolve whatever order records appear in.
// Entities with unsaved changes are left untouched.
//
// Implements qof.Loader interface.
func (b *Backend) Load(ctx context.Context, book *qof.Book) error {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return qof.NewBackendError(qof.ErrFileNotFound, "filebe: load", err)
	}
	if err != nil {
		return qof.NewBackendError(qof.ErrFileBadRead, "filebe: load", err)
	}
	if len(data) == 0 {
		return qof.NewBackendError(qof.ErrFileEmpty, "filebe: load", nil)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return qof.NewBackendError(qof.ErrFileParse, "filebe: load", err)
	}
	if doc.Version > FormatVersion {
		return qof.NewBackendError(qof.ErrBackendTooNew, "filebe: load",
			fmt.Errorf("document version %d, newest known %d", doc.Version, FormatVersion))
	}
	if doc.Version < 1 {
		return qof.NewBackendError(qof.ErrFileUnknownType, "filebe: load",
			fmt.Errorf("missing document version"))
	}
	if g, ok := guid.Parse(doc.Book); ok {
		book.SetGUID(g)
	}
	return b.apply(book, &doc)
}

func (b *Backend) apply(book *qof.Book, doc *Document) error {
	counts, err := sqlmap.ApplySnapshot(book, b.reg, doc.Objects)
	if err != nil {
		return err
	}
	for typ, n := range counts {
		b.metrics.RecordLoad(typ, n)
		b.log.Debug().Str("type", typ).Int("count", n).Msg("loaded")
	}
	return nil
}
