// Package hotreload pushes reload notifications to browsers when watched files
// change. It is a server extension: every browser tab holds a session and a
// changed file is broadcast to all of them.
package hotreload

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lightforgemedia/go-ezsockets/pkg/events"
	"github.com/lightforgemedia/go-ezsockets/pkg/fault"
	"github.com/lightforgemedia/go-ezsockets/pkg/filewatcher"
	"github.com/lightforgemedia/go-ezsockets/pkg/server"
	"github.com/lightforgemedia/go-ezsockets/pkg/session"
	"github.com/lightforgemedia/go-ezsockets/pkg/socket"
)

// Text frame prefixes exchanged with the browser snippet.
const (
	PrefixReload = "reload:"
	PrefixReady  = "ready:"
	PrefixError  = "error:"
)

// Reload asks every connected browser to reload because File changed.
type Reload struct {
	File string
}

// ClientError is a JavaScript error reported by a browser.
type ClientError struct {
	Message   string `json:"message"`
	Filename  string `json:"filename,omitempty"`
	Line      int    `json:"lineno,omitempty"`
	Column    int    `json:"colno,omitempty"`
	Stack     string `json:"stack,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ClientStatus is a snapshot of one connected browser.
type ClientStatus struct {
	ID       int           `json:"id"`
	Addr     string        `json:"addr"`
	Status   string        `json:"status"`
	URL      string        `json:"url,omitempty"`
	LastSeen time.Time     `json:"lastSeen"`
	Errors   []ClientError `json:"errors,omitempty"`
}

// HotReload coordinates file watching and browser reloading
type HotReload struct {
	srv     *server.Server[int, Reload, struct{}]
	watcher *filewatcher.FileWatcher
	events  *events.Bus
	logger  *slog.Logger
	options Options

	clients   map[int]*ClientStatus
	clientsMu sync.RWMutex
}

// New creates a new HotReload service. The underlying server runs until Stop.
func New(opts ...Option) (*HotReload, error) {
	hr := &HotReload{
		clients: make(map[int]*ClientStatus),
		logger:  slog.Default(),
		options: DefaultOptions(),
	}
	for _, opt := range opts {
		opt(hr)
	}

	if hr.watcher == nil {
		return nil, ErrNoFileWatcher
	}

	hr.srv = server.Create(func(*server.Server[int, Reload, struct{}]) *extension {
		return &extension{hr: hr, sessions: server.NewIntRegistry()}
	}, server.WithLogger(hr.logger), server.WithEvents(hr.events))
	return hr, nil
}

// Start starts the hot reload service
func (hr *HotReload) Start() error {
	hr.watcher.AddCallback(hr.handleFileChange)
	if err := hr.watcher.Start(); err != nil {
		return err
	}
	hr.logger.Info("HotReload: service started")
	return nil
}

// Stop stops the file watcher, closes every browser session and waits for
// the server to exit.
func (hr *HotReload) Stop() error {
	werr := hr.watcher.Stop()
	hr.srv.Close()
	if err := hr.srv.Wait(); err != nil {
		return err
	}
	hr.logger.Info("HotReload: service stopped")
	return werr
}

// Trigger broadcasts a reload for file without waiting for the watcher.
func (hr *HotReload) Trigger(file string) error {
	return hr.srv.Call(Reload{File: file})
}

// Handler upgrades browser connections.
func (hr *HotReload) Handler(opts *websocket.AcceptOptions) http.Handler {
	return server.UpgradeHandler(hr.srv, nil, opts)
}

// Clients returns the connected browsers ordered by id.
func (hr *HotReload) Clients() []ClientStatus {
	hr.clientsMu.RLock()
	defer hr.clientsMu.RUnlock()

	out := make([]ClientStatus, 0, len(hr.clients))
	for _, c := range hr.clients {
		cp := *c
		cp.Errors = append([]ClientError(nil), c.Errors...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (hr *HotReload) handleFileChange(file string) {
	hr.logger.Info("HotReload: file changed, triggering reload", "file", file)
	if err := hr.Trigger(file); err != nil {
		hr.logger.Warn("HotReload: reload not delivered", "file", file, "error", err)
	}
}

func (hr *HotReload) connected(id int, addr string) {
	hr.clientsMu.Lock()
	defer hr.clientsMu.Unlock()
	hr.clients[id] = &ClientStatus{ID: id, Addr: addr, Status: "connected", LastSeen: time.Now()}
}

func (hr *HotReload) disconnected(id int) {
	hr.clientsMu.Lock()
	defer hr.clientsMu.Unlock()
	delete(hr.clients, id)
}

func (hr *HotReload) update(id int, fn func(*ClientStatus)) {
	hr.clientsMu.Lock()
	defer hr.clientsMu.Unlock()
	if c, ok := hr.clients[id]; ok {
		fn(c)
		c.LastSeen = time.Now()
	}
}

func (hr *HotReload) handleClientReady(id int, url string) {
	hr.logger.Info("HotReload: client ready", "client_id", id, "url", url)
	hr.update(id, func(c *ClientStatus) {
		c.Status = "ready"
		c.URL = url
	})
}

func (hr *HotReload) handleClientError(id int, report ClientError) {
	hr.logger.Info("HotReload: client error", "client_id", id, "message", report.Message, "filename", report.Filename)
	if hr.options.ErrorHandler != nil {
		hr.options.ErrorHandler(id, report)
	}
	hr.update(id, func(c *ClientStatus) {
		c.Errors = append(c.Errors, report)
		if n := hr.options.MaxErrorsPerClient; len(c.Errors) > n {
			c.Errors = c.Errors[len(c.Errors)-n:]
		}
	})
}

// extension runs on the server goroutine.
type extension struct {
	hr       *HotReload
	sessions *server.IntRegistry
}

func (e *extension) Accept(_ context.Context, sock *socket.Socket, addr string, _ struct{}) (*session.Session[int], error) {
	id := e.sessions.NextID()
	e.hr.connected(id, addr)
	sess := session.Create(func(*session.Session[int]) *browser {
		return &browser{id: id, hr: e.hr}
	}, sock, session.WithLogger(e.hr.logger))
	if err := e.sessions.Insert(sess); err != nil {
		e.hr.disconnected(id)
		_ = sess.Close(&socket.CloseFrame{Code: socket.CloseInternalError, Reason: "registry"})
		return nil, err
	}
	return sess, nil
}

func (e *extension) Disconnected(_ context.Context, id int) error {
	e.sessions.Remove(id)
	e.hr.disconnected(id)
	return nil
}

func (e *extension) Call(_ context.Context, r Reload) error {
	n, err := e.sessions.Broadcast(socket.NewText(PrefixReload + r.File))
	if err != nil {
		e.hr.logger.Warn("HotReload: some clients missed the reload", "file", r.File, "error", err)
	}
	e.hr.logger.Info("HotReload: reload sent", "file", r.File, "clients", n)
	return nil
}

// browser is the session logic for one browser tab.
type browser struct {
	id int
	hr *HotReload
}

func (b *browser) ID() int { return b.id }

func (b *browser) Text(_ context.Context, text string) (*socket.Message, error) {
	switch {
	case text == "ping":
		pong := socket.NewText("pong")
		return &pong, nil
	case strings.HasPrefix(text, PrefixReady):
		b.hr.handleClientReady(b.id, strings.TrimPrefix(text, PrefixReady))
	case strings.HasPrefix(text, PrefixError):
		var report ClientError
		if err := json.Unmarshal([]byte(strings.TrimPrefix(text, PrefixError)), &report); err != nil {
			b.hr.logger.Warn("HotReload: malformed error report", "client_id", b.id, "error", err)
			return nil, nil
		}
		b.hr.handleClientError(b.id, report)
	default:
		b.hr.logger.Debug("HotReload: ignoring message", "client_id", b.id, "text", text)
	}
	return nil, nil
}

func (b *browser) Binary(context.Context, []byte) (*socket.Message, error) {
	return nil, fault.ErrUnsupported
}
