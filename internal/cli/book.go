package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qofcore/internal/kvp"
	"github.com/roach88/qofcore/internal/ledger"
	"github.com/roach88/qofcore/internal/numeric"
	"github.com/roach88/qofcore/internal/qof"
	"github.com/roach88/qofcore/internal/session"
	"github.com/roach88/qofcore/internal/sqlmap"
)

// openSession opens uri with the configured logger and batch size.
func openSession(ctx context.Context, opts *RootOptions, uri string, mode session.Mode) (*session.Session, error) {
	s, err := session.Open(ctx, uri, ledger.Registry(),
		session.WithMode(mode),
		session.WithLogger(opts.Logger),
	)
	if err != nil {
		return nil, backendExit(fmt.Sprintf("failed to open %s", uri), err)
	}
	return s, nil
}

// loadSession opens uri read-only and loads it.
func loadSession(ctx context.Context, opts *RootOptions, uri string) (*session.Session, error) {
	s, err := openSession(ctx, opts, uri, session.ModeReadOnly)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx); err != nil {
		s.End()
		return nil, backendExit(fmt.Sprintf("failed to load %s", uri), err)
	}
	return s, nil
}

func countEntities(book *qof.Book) map[string]int {
	counts := make(map[string]int)
	for _, typ := range book.CollectionTypes() {
		if n := book.Collection(typ).Count(); n > 0 {
			counts[typ] = n
		}
	}
	return counts
}

func formatCounts(counts map[string]int) string {
	types := make([]string, 0, len(counts))
	for typ := range counts {
		types = append(types, typ)
	}
	sort.Strings(types)
	parts := make([]string, len(types))
	for i, typ := range types {
		parts[i] = fmt.Sprintf("%s=%d", typ, counts[typ])
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Sample bool
}

// InitResult is the outcome of init.
type InitResult struct {
	URI    string         `json:"uri"`
	Book   string         `json:"book"`
	Counts map[string]int `json:"counts"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init <uri>",
		Short: "Create a new, empty book",
		Long: `Create a new book at the given location, replacing anything stored
there. With --sample the book gets a small chart of accounts and one
transaction.

Examples:
  qofctl init sqlite3:///tmp/home.sqlite
  qofctl init --sample home.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Sample, "sample", false, "populate with sample accounts and a transaction")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command, uri string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	root := opts.options()

	s, err := openSession(ctx, root, uri, session.ModeNew)
	if err != nil {
		return err
	}
	defer s.End()

	if opts.Sample {
		if err := seedSample(ctx, s.Book()); err != nil {
			return backendExit("failed to write sample data", err)
		}
	}
	if err := s.Sync(ctx); err != nil {
		return backendExit("failed to write book", err)
	}

	result := InitResult{URI: uri, Book: s.Book().GUID().String(), Counts: countEntities(s.Book())}
	out := &OutputFormatter{Format: root.Format, Writer: cmd.OutOrStdout()}
	if out.Format == "json" {
		return out.Success(result)
	}
	return out.Success(fmt.Sprintf("initialized %s (book %s): %s", uri, result.Book, formatCounts(result.Counts)))
}

// seedSample builds a small household book.
func seedSample(ctx context.Context, book *qof.Book) error {
	account := func(name, typ string, parent *ledger.Account) (*ledger.Account, error) {
		a := ledger.NewAccount(book)
		a.BeginEdit(ctx)
		a.SetName(name)
		a.SetAccountType(typ)
		a.SetCommodity("USD")
		if parent != nil {
			a.SetParent(parent)
		}
		return a, a.CommitEdit(ctx)
	}

	assets, err := account("Assets", ledger.AccountAsset, nil)
	if err != nil {
		return err
	}
	checking, err := account("Checking", ledger.AccountBank, assets)
	if err != nil {
		return err
	}
	expenses, err := account("Expenses", ledger.AccountExpense, nil)
	if err != nil {
		return err
	}
	groceries, err := account("Groceries", ledger.AccountExpense, expenses)
	if err != nil {
		return err
	}

	tx := ledger.NewTransaction(book)
	tx.BeginEdit(ctx)
	tx.SetCurrency("USD")
	tx.SetNum("1")
	tx.SetDescription("Farmers market")
	for _, leg := range []struct {
		acct  *ledger.Account
		cents int64
	}{{checking, -4250}, {groceries, 4250}} {
		s := ledger.NewSplit(book)
		s.SetTransaction(tx)
		s.SetAccount(leg.acct)
		s.SetValue(numeric.New(leg.cents, 100))
		s.SetAmount(numeric.New(leg.cents, 100))
	}
	tx.Slots().Set("notes", kvp.NewString("weekly shop"))
	return tx.CommitEdit(ctx)
}

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Summary bool
}

// DumpResult is the content of a book.
type DumpResult struct {
	Book    string                      `json:"book" yaml:"book"`
	Counts  map[string]int              `json:"counts" yaml:"counts"`
	Objects map[string][]map[string]any `json:"objects,omitempty" yaml:"objects,omitempty"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <uri>",
		Short: "Print every entity in a book",
		Long: `Load a book read-only and print its entities as column records,
grouped by entity type. Text output is YAML.

Examples:
  qofctl dump home.sqlite
  qofctl dump --summary rpc://books.local:7400
  qofctl dump --format json file:///tmp/home.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "print entity counts only")

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command, uri string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	root := opts.options()

	s, err := loadSession(ctx, root, uri)
	if err != nil {
		return err
	}
	defer s.End()

	book := s.Book()
	result := DumpResult{Book: book.GUID().String(), Counts: countEntities(book)}
	if !opts.Summary {
		result.Objects = sqlmap.Snapshot(book, ledger.Registry())
	}

	out := &OutputFormatter{Format: root.Format, Writer: cmd.OutOrStdout()}
	if out.Format == "json" {
		return out.Success(result)
	}
	data, err := yaml.Marshal(result)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode book", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// ConvertResult is the outcome of convert.
type ConvertResult struct {
	From   string         `json:"from"`
	To     string         `json:"to"`
	Book   string         `json:"book"`
	Counts map[string]int `json:"counts"`
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <from-uri> <to-uri>",
		Short: "Copy a book to another backend",
		Long: `Load a book and write all of it to another location, replacing
whatever the destination held. The book keeps its identifier.

Examples:
  qofctl convert home.yaml sqlite3:///tmp/home.sqlite
  qofctl convert home.sqlite postgres://me@db.local/books`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(rootOpts, cmd, args[0], args[1])
		},
	}

	return cmd
}

func runConvert(opts *RootOptions, cmd *cobra.Command, from, to string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	root := opts.options()

	src, err := loadSession(ctx, root, from)
	if err != nil {
		return err
	}
	defer src.End()

	dst, err := openSession(ctx, root, to, session.ModeNew)
	if err != nil {
		return err
	}
	defer dst.End()

	if err := src.SaveTo(ctx, dst); err != nil {
		return backendExit(fmt.Sprintf("failed to write %s", to), err)
	}

	result := ConvertResult{
		From:   from,
		To:     to,
		Book:   src.Book().GUID().String(),
		Counts: countEntities(src.Book()),
	}
	out := &OutputFormatter{Format: root.Format, Writer: cmd.OutOrStdout()}
	if out.Format == "json" {
		return out.Success(result)
	}
	return out.Success(fmt.Sprintf("converted %s -> %s: %s", from, to, formatCounts(result.Counts)))
}
