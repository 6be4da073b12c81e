// Command qofctl inspects, converts and serves QOF books.
package main

import (
	"context"
	"os"

	"github.com/roach88/qofcore/internal/cli"
)

func main() {
	os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
