package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qofcore/internal/ledger"
	"github.com/roach88/qofcore/internal/sqlmap"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Dialect string
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the SQL schema",
		Long: `Print the CREATE TABLE and CREATE INDEX statements for every
registered entity table plus the slots, books and versions tables.

Examples:
  qofctl schema
  qofctl schema --dialect postgres`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "sqlite3", "SQL dialect (sqlite3|postgres)")

	return cmd
}

func runSchema(opts *SchemaOptions, cmd *cobra.Command) error {
	d, err := sqlmap.DialectByName(opts.Dialect)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid dialect", err)
	}
	ddl := sqlmap.SchemaDDL(d, ledger.Registry())

	out := &OutputFormatter{Format: opts.options().Format, Writer: cmd.OutOrStdout()}
	if out.Format == "json" {
		return out.Success(map[string]string{"dialect": d.Name(), "ddl": ddl})
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), ddl)
	return err
}
