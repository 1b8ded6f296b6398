package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"aascan"}, args...))
	return out.String(), err
}

func TestHealthCommand_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","checks":{}}`))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server is healthy")
	assert.Contains(t, out, server.URL)
}

func TestHealthCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unhealthy","checks":{"database":"connection refused"}}`))
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHealthCommand_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := runApp(t, "--server-url", url, "server", "health", "--timeout", "1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "server", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "aascan CLI")
	assert.Contains(t, out, "Version: dev")
}
