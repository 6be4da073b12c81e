package cli

import (
	"context"
	"io"
)

// Run executes qofctl with args and returns the process exit code. Errors
// are reported on stderr, as JSON when --format json was given.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	format := "text"
	if f := cmd.PersistentFlags().Lookup("format"); f != nil && f.Value.String() == "json" {
		format = "json"
	}
	out := &OutputFormatter{Format: format, Writer: stderr}
	out.Error(err)
	return GetExitCode(err)
}
