package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qofcore/internal/qof"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(qof.NewBackendError(qof.ErrBackendLocked, "filebe: lock", nil))
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "backend:LOCKED", resp.Error.Code)
	assert.Equal(t, "filebe: lock: backend:LOCKED", resp.Error.Message)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("Hello, World!")
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error(errors.New("something went wrong"))
	require.NoError(t, err)
	assert.Equal(t, "Error [backend:MISC]: something went wrong\n", buf.String())
}

func TestExitError(t *testing.T) {
	err := NewExitError(ExitCommandError, "bad input")
	assert.Equal(t, "bad input", err.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	inner := errors.New("disk full")
	wrapped := WrapExitError(ExitFailure, "write failed", inner)
	assert.Equal(t, "write failed: disk full", wrapped.Error())
	assert.True(t, errors.Is(wrapped, inner))

	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
}

func TestBackendExit(t *testing.T) {
	locked := qof.NewBackendError(qof.ErrBackendLocked, "filebe: lock", nil)
	assert.Equal(t, ExitFailure, backendExit("open", locked).Code)

	badURL := qof.NewBackendError(qof.ErrBackendBadURL, "session: parse uri", nil)
	assert.Equal(t, ExitCommandError, backendExit("open", badURL).Code)
}
