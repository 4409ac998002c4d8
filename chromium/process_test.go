package chromium

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copymill/webprobe/log"
)

func TestDevToolsURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fpath := filepath.Join(dir, "DevToolsActivePort")
	require.NoError(t, os.WriteFile(fpath, []byte("41055\n/devtools/browser/abc-123\n"), 0o600))

	wsURL, err := devToolsURL(dir)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:41055/devtools/browser/abc-123", wsURL)
}

func TestDevToolsURLAppearsLate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fpath := filepath.Join(dir, "DevToolsActivePort")

	// Chrome writes the port file some time after starting; the reader
	// has to retry until it shows up.
	go func() {
		time.Sleep(120 * time.Millisecond)
		_ = os.WriteFile(fpath, []byte("9222\n/devtools/browser/late\n"), 0o600)
	}()

	wsURL, err := devToolsURL(dir)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/late", wsURL)
}

func TestDevToolsURLMissing(t *testing.T) {
	t.Parallel()

	_, err := devToolsURL(t.TempDir())
	require.Error(t, err)
}

func TestDevToolsURLMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DevToolsActivePort"), []byte("9222\n"), 0o600))

	_, err := devToolsURL(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestQueryWebSocketURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"webSocketDebuggerUrl":"ws://127.0.0.1:9222/devtools/browser/xyz"}`))
	}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)
	wsURL, err := queryWebSocketURL(context.Background(), host, port)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/xyz", wsURL)
}

func TestQueryWebSocketURLEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)
	_, err := queryWebSocketURL(context.Background(), host, port)
	require.Error(t, err)
}

func TestLaunchedProcessTeardown(t *testing.T) {
	t.Parallel()

	// A stand-in browser binary: writes the DevTools port file into the
	// user data dir and lingers until killed.
	script := filepath.Join(t.TempDir(), "fake-chrome")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
for a in "$@"; do
  case "$a" in
    --user-data-dir=*) dir="${a#--user-data-dir=}" ;;
  esac
done
printf '9222\n/devtools/browser/fake\n' > "$dir/DevToolsActivePort"
sleep 10
`), 0o700))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc, err := Launch(ctx, Options{ExecutablePath: script, Headless: true}, log.NewNull(ctx))
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/fake", proc.WsURL())

	// Overlapping teardown paths may each ask for a graceful close.
	proc.GracefulClose()
	proc.GracefulClose()
	proc.Terminate()

	done := make(chan struct{})
	go func() {
		proc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Wait did not return after Terminate")
	}
}

func TestAttachedProcessTeardown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"webSocketDebuggerUrl":"ws://127.0.0.1:9222/devtools/browser/xyz"}`))
	}))
	defer srv.Close()

	host, port := hostPort(t, srv.URL)
	ctx := context.Background()
	proc, err := Attach(ctx, host, port, log.NewNull(ctx))
	require.NoError(t, err)
	assert.Equal(t, -1, proc.Pid())

	// Overlapping teardown paths may each ask for a graceful close.
	proc.GracefulClose()
	proc.GracefulClose()

	// The browser process is not ours, so Wait must not block on it.
	done := make(chan struct{})
	go func() {
		proc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked for an attached browser")
	}
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}
