package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-ezsockets/pkg/client"
	"github.com/lightforgemedia/go-ezsockets/pkg/testutil"
)

const waitTimeout = 2 * time.Second

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// echoHandler answers every text frame with "echo:" + text.
func echoHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.CloseNow()
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if err := conn.Write(r.Context(), typ, append([]byte("echo:"), data...)); err != nil {
				return
			}
		}
	})
}

func TestRunSendsLinesAndPrintsReplies(t *testing.T) {
	ts := testutil.NewTestServer(t, echoHandler(t))

	stdinR, stdinW := io.Pipe()
	defer stdinW.Close()
	out := &syncBuffer{}

	cfg := client.DefaultConfig(ts.WSURL)
	cfg.InitialDelay = 10 * time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond

	errCh := make(chan error, 1)
	go func() { errCh <- run(context.Background(), cfg, stdinR, out, testutil.Logger) }()

	_, err := io.WriteString(stdinW, "hello\n")
	require.NoError(t, err)
	require.NoError(t, testutil.WaitFor(t, "echo printed", waitTimeout, func() bool {
		return strings.Contains(out.String(), "echo:hello")
	}))

	_, err = io.WriteString(stdinW, "/state\n")
	require.NoError(t, err)
	require.NoError(t, testutil.WaitFor(t, "state notice printed", waitTimeout, func() bool {
		return strings.Contains(out.String(), "* state: connected")
	}))

	_, err = io.WriteString(stdinW, "/quit\n")
	require.NoError(t, err)

	got, err := testutil.Recv(t, errCh, waitTimeout)
	require.NoError(t, err)
	assert.NoError(t, got)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ts := testutil.NewTestServer(t, echoHandler(t))

	stdinR, stdinW := io.Pipe()
	defer stdinW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, client.DefaultConfig(ts.WSURL), stdinR, io.Discard, testutil.Logger) }()

	cancel()
	got, err := testutil.Recv(t, errCh, waitTimeout)
	require.NoError(t, err)
	assert.NoError(t, got)
}

func TestRunReportsGivingUp(t *testing.T) {
	stdinR, stdinW := io.Pipe()
	defer stdinW.Close()

	cfg := client.DefaultConfig("ws://127.0.0.1:1/websocket")
	cfg.InitialDelay = 5 * time.Millisecond
	cfg.MaxDelay = 10 * time.Millisecond
	cfg.MaxAttempts = 2
	cfg.DialTimeout = 200 * time.Millisecond

	errCh := make(chan error, 1)
	go func() { errCh <- run(context.Background(), cfg, stdinR, io.Discard, testutil.Logger) }()

	got, err := testutil.Recv(t, errCh, 5*time.Second)
	require.NoError(t, err)
	assert.ErrorIs(t, got, client.ErrMaxAttempts)
}
