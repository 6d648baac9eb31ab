package hotreload

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"
)

//go:embed hotreload.js
var clientScript []byte

const scriptMediaType = "application/javascript"

var (
	minifyOnce sync.Once
	minified   []byte
	minifyErr  error
)

// ClientScriptOptions configures the JavaScript client handler
type ClientScriptOptions struct {
	// Path is the URL path where the script will be served
	// Default: "/hotreload.js"
	Path string

	// CacheMaxAge sets the Cache-Control max-age directive in seconds
	// Default: 3600 (1 hour)
	CacheMaxAge int

	// Minify serves the minified script. Default: true
	Minify bool
}

// DefaultClientScriptOptions returns the default options for the client script handler
func DefaultClientScriptOptions() ClientScriptOptions {
	return ClientScriptOptions{
		Path:        "/hotreload.js",
		CacheMaxAge: 3600,
		Minify:      true,
	}
}

// ClientScript returns the browser snippet, minified when requested. The
// minified form is computed once.
func ClientScript(minify bool) ([]byte, error) {
	if !minify {
		return clientScript, nil
	}
	minifyOnce.Do(func() {
		minified, minifyErr = minifyScript(clientScript)
	})
	return minified, minifyErr
}

func minifyScript(src []byte) ([]byte, error) {
	m := minify.New()
	m.AddFunc(scriptMediaType, js.Minify)
	return m.Bytes(scriptMediaType, src)
}

// ScriptHandler returns an HTTP handler that serves the embedded JavaScript client
func ScriptHandler(options ClientScriptOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := ClientScript(options.Minify)
		if err != nil {
			http.Error(w, "script unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", scriptMediaType)
		w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(options.CacheMaxAge))
		_, _ = w.Write(data)
	})
}

// RegisterHandler registers the JavaScript client handler with the provided ServeMux
func RegisterHandler(mux *http.ServeMux, options ClientScriptOptions) {
	mux.Handle(options.Path, ScriptHandler(options))
}

// RegisterHandlers registers the WebSocket endpoint at wsPath, the client
// script and the status endpoint.
func (hr *HotReload) RegisterHandlers(mux *http.ServeMux, wsPath string) {
	mux.Handle(wsPath, hr.Handler(nil))
	RegisterHandler(mux, DefaultClientScriptOptions())
	mux.HandleFunc("/api/hotreload/status", hr.StatusHandler)
}

// StatusHandler reports the connected browsers as JSON.
func (hr *HotReload) StatusHandler(w http.ResponseWriter, r *http.Request) {
	response := struct {
		Clients []ClientStatus `json:"clients"`
	}{Clients: hr.Clients()}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
