package hotreload

import (
	"errors"
	"log/slog"

	"github.com/lightforgemedia/go-ezsockets/pkg/events"
	"github.com/lightforgemedia/go-ezsockets/pkg/filewatcher"
)

// Errors
var (
	ErrNoFileWatcher = errors.New("no file watcher provided")
)

// ErrorHandler is called with every JavaScript error a browser reports.
type ErrorHandler func(clientID int, report ClientError)

// Options configures the HotReload service
type Options struct {
	// MaxErrorsPerClient is the maximum number of errors to store per client
	MaxErrorsPerClient int

	// ErrorHandler is a custom handler for client errors
	ErrorHandler ErrorHandler
}

// DefaultOptions returns the default options
func DefaultOptions() Options {
	return Options{
		MaxErrorsPerClient: 100,
	}
}

// Option configures a HotReload service
type Option func(*HotReload)

// WithLogger sets the logger for the hot reload service
func WithLogger(logger *slog.Logger) Option {
	return func(hr *HotReload) {
		if logger != nil {
			hr.logger = logger
		}
	}
}

// WithFileWatcher sets the file watcher for the hot reload service
func WithFileWatcher(watcher *filewatcher.FileWatcher) Option {
	return func(hr *HotReload) {
		hr.watcher = watcher
	}
}

// WithEvents publishes the underlying server's lifecycle events on bus.
func WithEvents(bus *events.Bus) Option {
	return func(hr *HotReload) {
		hr.events = bus
	}
}

// WithMaxErrorsPerClient sets the maximum number of errors to store per client
func WithMaxErrorsPerClient(max int) Option {
	return func(hr *HotReload) {
		if max > 0 {
			hr.options.MaxErrorsPerClient = max
		}
	}
}

// WithErrorHandler sets a custom error handler for the hot reload service
func WithErrorHandler(handler ErrorHandler) Option {
	return func(hr *HotReload) {
		hr.options.ErrorHandler = handler
	}
}
