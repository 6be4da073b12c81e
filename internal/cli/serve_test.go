package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qofcore/internal/metrics"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestServeNeedsBook(t *testing.T) {
	_, err := execute(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no book")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServeStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home.sqlite")
	_, err := execute(t, "init", "--sample", path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--book", path, "--listen", "127.0.0.1:0"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, buf.String(), "serving "+path+" on 127.0.0.1:")
}

func TestServeUsesConfig(t *testing.T) {
	dir := t.TempDir()
	book := filepath.Join(dir, "home.yaml")
	_, err := execute(t, "init", book)
	require.NoError(t, err)

	cfg := filepath.Join(dir, "qofctl.yaml")
	require.NoError(t, writeFile(cfg, "book:\n  uri: "+book+"\nserver:\n  listen: 127.0.0.1:0\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfg, "serve"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, buf.String(), "serving "+book)
}

func TestShutdownMetricsLogsFailure(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := metricsServer(lis.Addr().String(), metrics.New(nil))
	entered := make(chan struct{})
	release := make(chan struct{})
	srv.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})
	go srv.Serve(lis)
	defer srv.Close()

	go func() {
		resp, err := http.Get("http://" + lis.Addr().String() + "/health")
		if err == nil {
			resp.Body.Close()
		}
	}()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the handler")
	}

	// A request is still open, so a done context makes Shutdown fail.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	shutdownMetrics(ctx, srv, zerolog.New(&buf))
	close(release)

	assert.Contains(t, buf.String(), "metrics server shutdown failed")
	assert.Contains(t, buf.String(), context.Canceled.Error())
}
