package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/qofcore/internal/guid"
)

// GUIDOptions holds flags for the guid command.
type GUIDOptions struct {
	*RootOptions
	Count int
}

// NewGUIDCommand creates the guid command.
func NewGUIDCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GUIDOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "guid",
		Short: "Print new entity identifiers",
		Long: `Print freshly generated 32-digit hex identifiers, one per line.

Examples:
  qofctl guid
  qofctl guid -n 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGUID(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "number of identifiers")

	return cmd
}

func runGUID(opts *GUIDOptions, cmd *cobra.Command) error {
	if opts.Count < 1 {
		return NewExitError(ExitCommandError, "--count must be at least 1")
	}
	ids := make([]string, opts.Count)
	for i := range ids {
		ids[i] = guid.New().String()
	}

	out := &OutputFormatter{Format: opts.options().Format, Writer: cmd.OutOrStdout()}
	if out.Format == "json" {
		return out.Success(ids)
	}
	return out.Success(strings.Join(ids, "\n"))
}
