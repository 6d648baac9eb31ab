// Package testutil provides common test utilities for the go-ezsockets library.
package testutil

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

var (
	defaultSlogHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	})
	// Logger is the debug logger shared by tests.
	Logger = slog.New(defaultSlogHandler)
)

// TestServer is an httptest server exposing a WebSocket endpoint.
type TestServer struct {
	HTTP  *httptest.Server
	WSURL string
}

// NewTestServer serves h and closes it when the test ends.
func NewTestServer(t *testing.T, h http.Handler) *TestServer {
	t.Helper()
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)
	return &TestServer{HTTP: s, WSURL: WSURL(s.URL)}
}

// WSURL converts an http(s) URL into its ws(s) form.
func WSURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}
