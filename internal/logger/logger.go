// Package logger provides structured logging for qofcore
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with qofcore-specific functionality
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// ParseLevel maps a configuration level name to a zerolog level. Unknown
// names fall back to info.
func ParseLevel(name string) zerolog.Level {
	switch name {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	}
	return zerolog.InfoLevel
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "qofcore").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Component returns a zerolog logger tagged with a component name.
// Packages hold the returned value and log through it directly.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// BookLogger returns a logger for one open book
func (l *Logger) BookLogger(bookID string) zerolog.Logger {
	return l.zlog.With().
		Str("component", "book").
		Str("book", bookID).
		Logger()
}

// BackendLogger returns a logger for a persistence backend
func (l *Logger) BackendLogger(kind, uri string) zerolog.Logger {
	return l.zlog.With().
		Str("component", "backend").
		Str("backend", kind).
		Str("uri", uri).
		Logger()
}

// LogRPCRequest logs an RPC request with structured fields
func (l *Logger) LogRPCRequest(method string, duration time.Duration, err error) {
	event := l.zlog.Info()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Str("component", "rpc").
		Str("method", method).
		Dur("duration_ms", duration).
		Msg("rpc request completed")
}

// LogCommit logs one entity commit with structured fields
func (l *Logger) LogCommit(entityType, op string, duration time.Duration, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Str("component", "commit").
		Str("type", entityType).
		Str("op", op).
		Dur("duration_ms", duration).
		Msg("commit completed")
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(addr, bookURI string) {
	l.zlog.Info().
		Str("event", "server_start").
		Str("addr", addr).
		Str("book", bookURI).
		Msg("qof rpc server starting")
}

// LogServerShutdown logs server shutdown
func (l *Logger) LogServerShutdown() {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Msg("qof rpc server shutting down")
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = NewLogger(cfg)
	log.Logger = globalLogger.zlog
	return globalLogger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	l := globalLogger
	globalMu.Unlock()
	if l == nil {
		return InitGlobalLogger(Config{Level: "info"})
	}
	return l
}
