// Package filewatcher reports debounced file changes under a set of
// directories.
package filewatcher

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrStarted is returned when Start is called more than once.
var ErrStarted = errors.New("file watcher already started")

// FileWatcher watches directories for file changes. Pending changes are owned
// by the watch goroutine; callbacks run on it, in path order for changes that
// settle on the same tick.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	dirs      []string
	patterns  []string
	logger    *slog.Logger
	callbacks []func(string)
	debounce  time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
	exited  chan struct{}
}

// New creates a new FileWatcher
func New(opts ...Option) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:  watcher,
		dirs:     []string{"."},
		patterns: []string{"*"},
		logger:   slog.Default(),
		debounce: 300 * time.Millisecond,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(fw)
	}
	return fw, nil
}

// AddCallback adds a callback to be called when files change. It must be
// called before Start.
func (fw *FileWatcher) AddCallback(callback func(string)) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.started {
		fw.logger.Warn("FileWatcher: callback added after start ignored")
		return
	}
	fw.callbacks = append(fw.callbacks, callback)
}

// Start adds every directory to the watcher and begins reporting changes.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.started {
		return ErrStarted
	}
	for _, dir := range fw.dirs {
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		fw.logger.Info("FileWatcher: watching directory", "dir", dir)
	}
	fw.started = true

	callbacks := append(([]func(string))(nil), fw.callbacks...)
	go fw.watchLoop(callbacks)
	return nil
}

// Stop stops watching and waits for the watch goroutine to exit. It is safe
// to call more than once.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return nil
	}
	fw.stopped = true
	started := fw.started
	close(fw.done)
	fw.mu.Unlock()

	err := fw.watcher.Close()
	if started {
		<-fw.exited
	}
	return err
}

func (fw *FileWatcher) watchLoop(callbacks []func(string)) {
	defer close(fw.exited)

	ticker := time.NewTicker(fw.tick())
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if fw.matchesPattern(event.Name) {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("FileWatcher: watcher error", "error", err)
		case now := <-ticker.C:
			for _, file := range settled(pending, now, fw.debounce) {
				delete(pending, file)
				fw.logger.Info("FileWatcher: file changed", "file", file)
				for _, cb := range callbacks {
					cb(file)
				}
			}
		}
	}
}

// tick polls pending changes a few times per debounce window.
func (fw *FileWatcher) tick() time.Duration {
	if t := fw.debounce / 3; t > 10*time.Millisecond {
		return t
	}
	return 10 * time.Millisecond
}

// settled returns the sorted files that have been quiet for at least d.
func settled(pending map[string]time.Time, now time.Time, d time.Duration) []string {
	var files []string
	for file, at := range pending {
		if now.Sub(at) >= d {
			files = append(files, file)
		}
	}
	sort.Strings(files)
	return files
}

// matchesPattern checks if a file's base name matches any of the patterns
func (fw *FileWatcher) matchesPattern(file string) bool {
	base := filepath.Base(file)
	for _, pattern := range fw.patterns {
		matched, err := filepath.Match(pattern, base)
		if err != nil {
			fw.logger.Error("FileWatcher: bad pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
