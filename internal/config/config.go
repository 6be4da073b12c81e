// Package config loads qofctl configuration. Files are YAML; the decoded
// document is checked and defaulted against an embedded CUE schema, so a
// typo in a key or an unknown mode fails loudly instead of being ignored.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qofcore/internal/logger"
)

//go:embed schema.cue
var schemaSource string

// Config is the full configuration.
type Config struct {
	Book   BookConfig   `json:"book" yaml:"book"`
	Log    LogConfig    `json:"log" yaml:"log"`
	SQL    SQLConfig    `json:"sql" yaml:"sql"`
	Server ServerConfig `json:"server" yaml:"server"`
}

// BookConfig says which book to open and how.
type BookConfig struct {
	URI  string `json:"uri" yaml:"uri"`
	Mode string `json:"mode" yaml:"mode"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// SQLConfig tunes the SQL backends.
type SQLConfig struct {
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// ServerConfig configures qofctl serve.
type ServerConfig struct {
	Listen        string `json:"listen" yaml:"listen"`
	MetricsListen string `json:"metrics_listen" yaml:"metrics_listen"`
}

// Error reports an invalid configuration.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Default returns the configuration an empty file produces.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema rejects empty document: %v", err))
	}
	return cfg
}

// Load reads and validates the file at path. A missing file is an error;
// callers that treat the file as optional check fs.ErrNotExist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			cerr.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// LoadOptional is Load, except that a missing file yields Default.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse validates a YAML document and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Err: fmt.Errorf("parse yaml: %w", err)}
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &Error{Err: fmt.Errorf("compile schema: %w", err)}
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := value.Validate(); err != nil {
		return nil, &Error{Err: flatten(err)}
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, &Error{Err: flatten(err)}
	}
	return &cfg, nil
}

// flatten joins CUE's error list into one error.
func flatten(err error) error {
	list := cueerrors.Errors(err)
	if len(list) <= 1 {
		return err
	}
	errs := make([]error, len(list))
	for i, e := range list {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// LoggerConfig converts the log section for logger.NewLogger.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.Log.Level, Pretty: c.Log.Pretty}
}
