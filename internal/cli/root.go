package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qofcore/internal/config"
	"github.com/roach88/qofcore/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Set by the root command before any subcommand runs.
	Config *config.Config
	Logger *logger.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for qofctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "qofctl",
		Short: "qofctl - inspect, convert and serve QOF books",
		Long: `qofctl works with books stored by the QOF persistence core.

A book is addressed by URI: sqlite3:///path, postgres://host/db,
file:///path.yaml or rpc://host:port. Bare paths ending in .sqlite or .db
are SQLite databases; other bare paths are YAML files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML configuration file")

	// Add subcommands
	cmd.AddCommand(NewGUIDCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// setup validates global flags, loads configuration and builds the logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	o.Config = cfg

	lc := cfg.LoggerConfig()
	if o.Verbose {
		lc.Level = "debug"
	}
	lc.Output = cmd.ErrOrStderr()
	o.Logger = logger.NewLogger(lc)
	return nil
}

// options returns o with defaults filled in for commands built and run
// without the root command, as tests do.
func (o *RootOptions) options() *RootOptions {
	if o.Config == nil {
		o.Config = config.Default()
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Format == "" {
		o.Format = "text"
	}
	return o
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
