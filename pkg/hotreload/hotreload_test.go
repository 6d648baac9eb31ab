package hotreload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-ezsockets/pkg/filewatcher"
	"github.com/lightforgemedia/go-ezsockets/pkg/testutil"
)

const waitTimeout = 2 * time.Second

type fixture struct {
	hr    *HotReload
	dir   string
	wsURL string
	http  *httptest.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()

	fw, err := filewatcher.New(
		filewatcher.WithLogger(testutil.Logger),
		filewatcher.WithDirs([]string{dir}),
		filewatcher.WithPatterns([]string{"*.html", "*.css"}),
		filewatcher.WithDebounce(50*time.Millisecond),
	)
	require.NoError(t, err)

	opts = append([]Option{WithLogger(testutil.Logger), WithFileWatcher(fw)}, opts...)
	hr, err := New(opts...)
	require.NoError(t, err)
	require.NoError(t, hr.Start())
	t.Cleanup(func() { _ = hr.Stop() })

	mux := http.NewServeMux()
	hr.RegisterHandlers(mux, "/hotreload")
	ts := testutil.NewTestServer(t, mux)

	return &fixture{hr: hr, dir: dir, wsURL: ts.WSURL + "/hotreload", http: ts.HTTP}
}

func (f *fixture) dial(t *testing.T, ctx context.Context, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, f.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	require.NoError(t, testutil.WaitFor(t, "browser registered", waitTimeout, func() bool {
		return len(f.hr.Clients()) == want
	}))
	return conn
}

func readText(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	return string(data)
}

func TestNewRequiresFileWatcher(t *testing.T) {
	_, err := New(WithLogger(testutil.Logger))
	assert.ErrorIs(t, err, ErrNoFileWatcher)
}

func TestReloadBroadcastsToEveryBrowser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.dial(t, ctx, 1)
	b := f.dial(t, ctx, 2)

	require.NoError(t, f.hr.Trigger("index.html"))
	assert.Equal(t, "reload:index.html", readText(t, ctx, a))
	assert.Equal(t, "reload:index.html", readText(t, ctx, b))
}

func TestFileChangeTriggersReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.dial(t, ctx, 1)

	file := filepath.Join(f.dir, "style.css")
	require.NoError(t, os.WriteFile(file, []byte("body{}"), 0644))

	assert.Equal(t, PrefixReload+file, readText(t, ctx, conn))
}

func TestBrowserReadyPingAndErrors(t *testing.T) {
	var mu sync.Mutex
	var reported []ClientError
	f := newFixture(t,
		WithMaxErrorsPerClient(2),
		WithErrorHandler(func(_ int, report ClientError) {
			mu.Lock()
			reported = append(reported, report)
			mu.Unlock()
		}),
	)
	ctx := context.Background()
	conn := f.dial(t, ctx, 1)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ready:http://localhost/page")))
	for _, msg := range []string{"one", "two", "three"} {
		report, err := json.Marshal(ClientError{Message: msg, Line: 3})
		require.NoError(t, err)
		require.NoError(t, conn.Write(ctx, websocket.MessageText, append([]byte(PrefixError), report...)))
	}
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("error:{broken")))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ping")))

	// The pong is written after every earlier frame has been handled.
	assert.Equal(t, "pong", readText(t, ctx, conn))

	clients := f.hr.Clients()
	require.Len(t, clients, 1)
	assert.Equal(t, 0, clients[0].ID)
	assert.Equal(t, "ready", clients[0].Status)
	assert.Equal(t, "http://localhost/page", clients[0].URL)
	require.Len(t, clients[0].Errors, 2)
	assert.Equal(t, "two", clients[0].Errors[0].Message)
	assert.Equal(t, "three", clients[0].Errors[1].Message)

	mu.Lock()
	assert.Len(t, reported, 3)
	mu.Unlock()

	resp, err := http.Get(f.http.URL + "/api/hotreload/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status struct {
		Clients []ClientStatus `json:"clients"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Len(t, status.Clients, 1)
	assert.Equal(t, "ready", status.Clients[0].Status)
}

func TestBinaryFrameClosesWithUnsupported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.dial(t, ctx, 1)

	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}))

	readCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	_, _, err := conn.Read(readCtx)
	assert.Equal(t, websocket.StatusUnsupportedData, websocket.CloseStatus(err))

	require.NoError(t, testutil.WaitFor(t, "browser removed", waitTimeout, func() bool {
		return len(f.hr.Clients()) == 0
	}))
}

func TestDisconnectFreesLowestID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.dial(t, ctx, 1)
	f.dial(t, ctx, 2)
	require.NoError(t, first.Close(websocket.StatusNormalClosure, "bye"))
	require.NoError(t, testutil.WaitFor(t, "first browser removed", waitTimeout, func() bool {
		return len(f.hr.Clients()) == 1
	}))

	f.dial(t, ctx, 2)
	ids := []int{}
	for _, c := range f.hr.Clients() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int{0, 1}, ids)
}

func TestScriptHandler(t *testing.T) {
	full, err := ClientScript(false)
	require.NoError(t, err)
	small, err := ClientScript(true)
	require.NoError(t, err)
	assert.Less(t, len(small), len(full))
	assert.Contains(t, string(small), "reload:")

	rec := httptest.NewRecorder()
	ScriptHandler(DefaultClientScriptOptions()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hotreload.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))
	assert.Equal(t, "max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, small, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	ScriptHandler(ClientScriptOptions{CacheMaxAge: 0}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, full, rec.Body.Bytes())
}
