// Package session opens a book against the backend named by a URI.
//
// Supported locations:
//
//	sqlite3:///path/to/book.sqlite   embedded SQL
//	postgres://user@host/dbname      client/server SQL
//	file:///path/to/book.yaml        flat YAML file
//	rpc://host:port                  remote qofctl server
//
// A bare path is a SQLite database when it ends in .sqlite, .sqlite3 or
// .db and a YAML file otherwise.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/roach88/qofcore/internal/backend/filebe"
	"github.com/roach88/qofcore/internal/backend/rpcbe"
	"github.com/roach88/qofcore/internal/backend/sqlbe"
	"github.com/roach88/qofcore/internal/logger"
	"github.com/roach88/qofcore/internal/metrics"
	"github.com/roach88/qofcore/internal/qof"
	"github.com/roach88/qofcore/internal/sqlmap"
)

// URI schemes.
const (
	SchemeSQLite   = "sqlite3"
	SchemePostgres = "postgres"
	SchemeFile     = "file"
	SchemeRPC      = "rpc"
)

// Location is a parsed book URI.
type Location struct {
	// Scheme is one of the Scheme constants.
	Scheme string

	// Target is what the backend opens: a file path, a PostgreSQL DSN or a
	// host:port.
	Target string
}

// ParseURI resolves uri into a Location.
func ParseURI(uri string) (Location, error) {
	if uri == "" {
		return Location{}, qof.NewBackendError(qof.ErrBackendBadURL, "session: parse uri", errors.New("empty uri"))
	}
	if !strings.Contains(uri, "://") {
		switch strings.ToLower(filepath.Ext(uri)) {
		case ".sqlite", ".sqlite3", ".db":
			return Location{Scheme: SchemeSQLite, Target: uri}, nil
		}
		return Location{Scheme: SchemeFile, Target: uri}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, qof.NewBackendError(qof.ErrBackendBadURL, "session: parse uri", err)
	}
	switch u.Scheme {
	case "sqlite3", "sqlite":
		return pathLocation(SchemeSQLite, u)
	case "postgres", "postgresql":
		return Location{Scheme: SchemePostgres, Target: uri}, nil
	case "file", "yaml":
		return pathLocation(SchemeFile, u)
	case "rpc", "grpc":
		if u.Host == "" {
			return Location{}, qof.NewBackendError(qof.ErrBackendBadURL, "session: parse uri",
				fmt.Errorf("%s: missing host", uri))
		}
		return Location{Scheme: SchemeRPC, Target: u.Host}, nil
	}
	return Location{}, qof.NewBackendError(qof.ErrBackendBadURL, "session: parse uri",
		fmt.Errorf("unknown scheme %q", u.Scheme))
}

func pathLocation(scheme string, u *url.URL) (Location, error) {
	path := u.Host + u.Path
	if path == "" {
		return Location{}, qof.NewBackendError(qof.ErrBackendBadURL, "session: parse uri",
			fmt.Errorf("%s: missing path", u.String()))
	}
	return Location{Scheme: scheme, Target: path}, nil
}

// Mode says how a session treats the stored book.
type Mode int

const (
	// ModeOpen loads an existing book.
	ModeOpen Mode = iota
	// ModeNew starts an empty book; Load does nothing.
	ModeNew
	// ModeReadOnly loads an existing book and rejects every commit.
	ModeReadOnly
	// ModeBreakLock opens like ModeOpen, taking over a stale file lock.
	ModeBreakLock
)

func (m Mode) String() string {
	switch m {
	case ModeOpen:
		return "open"
	case ModeNew:
		return "new"
	case ModeReadOnly:
		return "read-only"
	case ModeBreakLock:
		return "break-lock"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode is the inverse of Mode.String.
func ParseMode(name string) (Mode, error) {
	for m := ModeOpen; m <= ModeBreakLock; m++ {
		if m.String() == name {
			return m, nil
		}
	}
	return ModeOpen, fmt.Errorf("session: unknown mode %q", name)
}

// Backend is what a session needs from a backend.
type Backend interface {
	qof.Backend
	qof.Loader
	Close() error
}

// Session binds a book to its backend.
type Session struct {
	loc     Location
	uri     string
	mode    Mode
	book    *qof.Book
	be      Backend
	reg     *sqlmap.Registry
	logger  *logger.Logger
	metrics *metrics.Metrics
	log     zerolog.Logger
	bookOps []qof.Option
}

// Option configures a Session.
type Option func(*Session)

// WithMode sets the open mode. The default is ModeOpen.
func WithMode(m Mode) Option {
	return func(s *Session) { s.mode = m }
}

// WithLogger sets the logger for the session, its book and its backend.
func WithLogger(l *logger.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records backend activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithBookOptions passes extra options to the book, e.g. a fixed clock.
func WithBookOptions(opts ...qof.Option) Option {
	return func(s *Session) { s.bookOps = append(s.bookOps, opts...) }
}

// Open connects to the book at uri. reg lists the entity types stored
// there. The book is empty until Load.
func Open(ctx context.Context, uri string, reg *sqlmap.Registry, opts ...Option) (*Session, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	s := &Session{loc: loc, uri: uri, reg: reg, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.logger.Component("session").With().
		Str("uri", redactURI(uri)).
		Str("mode", s.mode.String()).
		Logger()

	be, err := s.openBackend(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("open failed")
		return nil, err
	}
	s.be = be

	bookOpts := []qof.Option{
		qof.WithBackend(be),
		qof.WithLogger(s.logger.Component("book")),
	}
	if s.mode == ModeReadOnly {
		bookOpts = append(bookOpts, qof.WithReadOnly())
	}
	s.book = qof.NewBook(append(bookOpts, s.bookOps...)...)
	s.log.Info().Str("book", s.book.GUID().String()).Msg("session opened")
	return s, nil
}

func (s *Session) openBackend(ctx context.Context) (Backend, error) {
	readOnly := s.mode == ModeReadOnly
	switch s.loc.Scheme {
	case SchemeSQLite, SchemePostgres:
		opts := []sqlbe.Option{sqlbe.WithLogger(s.logger), sqlbe.WithMetrics(s.metrics)}
		if readOnly {
			opts = append(opts, sqlbe.WithReadOnly())
		}
		if s.loc.Scheme == SchemeSQLite {
			return sqlbe.OpenSQLite(ctx, s.loc.Target, s.reg, opts...)
		}
		return sqlbe.OpenPostgres(ctx, s.loc.Target, s.reg, opts...)

	case SchemeFile:
		opts := []filebe.Option{filebe.WithLogger(s.logger), filebe.WithMetrics(s.metrics)}
		if readOnly {
			opts = append(opts, filebe.WithReadOnly())
		}
		if s.mode == ModeBreakLock {
			opts = append(opts, filebe.WithIgnoreLock())
		}
		return filebe.Open(ctx, s.loc.Target, s.reg, opts...)

	case SchemeRPC:
		return rpcbe.Dial(s.loc.Target, s.reg, rpcbe.WithLogger(s.logger), rpcbe.WithMetrics(s.metrics))
	}
	return nil, qof.NewBackendError(qof.ErrBackendBadURL, "session: open",
		fmt.Errorf("unknown scheme %q", s.loc.Scheme))
}

// Book returns the session's book.
func (s *Session) Book() *qof.Book { return s.book }

// Backend returns the session's backend.
func (s *Session) Backend() Backend { return s.be }

// Location returns the parsed URI.
func (s *Session) Location() Location { return s.loc }

// Mode returns the open mode.
func (s *Session) Mode() Mode { return s.mode }

// Load reads the stored book. In ModeNew it does nothing. The book is
// clean afterwards.
func (s *Session) Load(ctx context.Context) error {
	if s.mode == ModeNew {
		return nil
	}
	if err := s.be.Load(ctx, s.book); err != nil {
		s.log.Error().Err(err).Msg("load failed")
		return fmt.Errorf("session: load: %w", err)
	}
	s.book.MarkClean()
	s.log.Info().Msg("book loaded")
	return nil
}

// Sync writes the whole book to the backend.
func (s *Session) Sync(ctx context.Context) error {
	return s.SaveTo(ctx, s)
}

// SaveTo writes this session's book through dst's backend, replacing
// whatever dst stored. It is how a book is converted between backends.
func (s *Session) SaveTo(ctx context.Context, dst *Session) error {
	syncer, ok := dst.be.(qof.Syncer)
	if !ok {
		return qof.NewBackendError(qof.ErrBackendMisc, "session: sync",
			fmt.Errorf("%s backend cannot write a whole book", dst.loc.Scheme))
	}
	if err := syncer.Sync(ctx, s.book); err != nil {
		return fmt.Errorf("session: sync: %w", err)
	}
	s.book.MarkClean()
	dst.log.Info().Msg("book written")
	return nil
}

// End closes the backend. The book stays usable in memory but is no
// longer persisted.
func (s *Session) End() error {
	s.book.SetBackend(nil)
	if err := s.be.Close(); err != nil {
		return fmt.Errorf("session: end: %w", err)
	}
	s.log.Info().Msg("session ended")
	return nil
}

func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
