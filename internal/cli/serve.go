package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/roach88/qofcore/internal/backend/rpcbe"
	"github.com/roach88/qofcore/internal/ledger"
	"github.com/roach88/qofcore/internal/metrics"
	"github.com/roach88/qofcore/internal/session"
)

// ServeOptions holds flags for the serve command. Empty flags fall back
// to the configuration file.
type ServeOptions struct {
	*RootOptions
	Book          string
	Listen        string
	MetricsListen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a book to remote clients",
		Long: `Load a book and accept commits from rpc:// clients. Accepted commits
are written through the book's own backend. A commit made against an
older version of an entity is rejected.

With --metrics-listen, Prometheus metrics are served on /metrics and a
health check on /health.

Examples:
  qofctl serve --book home.sqlite
  qofctl serve --book postgres://db.local/books --listen :7400 --metrics-listen :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Book, "book", "", "book URI (default: book.uri from config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "gRPC listen address (default: server.listen from config)")
	cmd.Flags().StringVar(&opts.MetricsListen, "metrics-listen", "", "metrics HTTP listen address")

	return cmd
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	root := opts.options()
	cfg := root.Config
	log := root.Logger

	uri := firstNonEmpty(opts.Book, cfg.Book.URI)
	if uri == "" {
		return NewExitError(ExitCommandError, "no book: pass --book or set book.uri in the config file")
	}
	mode, err := session.ParseMode(cfg.Book.Mode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid book mode", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	s, err := session.Open(ctx, uri, ledger.Registry(),
		session.WithMode(mode),
		session.WithLogger(log),
		session.WithMetrics(m),
	)
	if err != nil {
		return backendExit(fmt.Sprintf("failed to open %s", uri), err)
	}
	defer s.End()
	if err := s.Load(ctx); err != nil {
		return backendExit(fmt.Sprintf("failed to load %s", uri), err)
	}

	lis, err := net.Listen("tcp", firstNonEmpty(opts.Listen, cfg.Server.Listen))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	gs := grpc.NewServer(grpc.UnaryInterceptor(rpcbe.UnaryInterceptor(m, log)))
	rpcbe.RegisterBackendServer(gs, rpcbe.NewServer(s.Book(), ledger.Registry(), log))

	var obs *http.Server
	mlog := log.Component("metrics")
	if addr := firstNonEmpty(opts.MetricsListen, cfg.Server.MetricsListen); addr != "" {
		obs = metricsServer(addr, m)
		go func() {
			if err := obs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				mlog.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()

	log.LogServerStart(lis.Addr().String(), uri)
	fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", uri, lis.Addr())
	serveErr := gs.Serve(lis)

	log.LogServerShutdown()
	if obs != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownMetrics(shutdownCtx, obs, mlog)
	}
	if serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
		return WrapExitError(ExitFailure, "server failed", serveErr)
	}
	return nil
}

// shutdownMetrics stops srv, waiting for open requests until ctx is done.
func shutdownMetrics(ctx context.Context, srv *http.Server, log zerolog.Logger) {
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown failed")
	}
}

func metricsServer(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"qofctl"}`))
	})
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
