package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the burst of events an editor save produces.
const debounceDelay = 100 * time.Millisecond

// fileState identifies one version of the config file on disk. A missing
// file has the zero state.
type fileState struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher keeps the daemon's view of the config file current. Directory
// events from fsnotify trigger a reload (editors that save by rename are
// seen too); a slow poll covers filesystems without inotify. Only a valid
// file whose content changed reaches the callback.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	onError  func(error)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	state   fileState

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the poll interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger. Default: [slog.Default].
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// WithInvalidHandler is called with the load error whenever a changed file
// fails to parse or validate. The previous config stays active.
func WithInvalidHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher loads path and starts watching it. A missing file counts as
// [Default] until it appears; an invalid one is an error.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.state = cfg, st

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the watch. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// subscribe returns fsnotify channels for the config directory, or nil
// channels (which block forever) when events are unavailable.
func (w *Watcher) subscribe() (events <-chan fsnotify.Event, errs <-chan error, closeFn func()) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Debug("config watcher: fsnotify unavailable, polling only", "err", err)
		return nil, nil, func() {}
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		w.log.Debug("config watcher: cannot watch directory, polling only", "path", w.path, "err", err)
		return nil, nil, func() {}
	}
	return fw.Events, fw.Errors, func() { fw.Close() }
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	events, errs, closeFn := w.subscribe()
	defer closeFn()

	name := filepath.Base(w.path)
	var settle <-chan time.Time
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.reload(false)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) == name && ev.Op.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				settle = time.After(debounceDelay)
			}
		case <-settle:
			settle = nil
			w.reload(true)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Warn("config watcher: fsnotify error", "err", err)
		}
	}
}

// reload re-reads the file when it may have changed. Polls skip the read
// when the mtime is unchanged; event-driven reloads always read.
func (w *Watcher) reload(fromEvent bool) {
	info, err := os.Stat(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		w.log.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}
	if info.Size() == 0 {
		// Truncated by a save in progress; the write that follows triggers again.
		return
	}

	w.mu.Lock()
	prev := w.state
	w.mu.Unlock()
	if !fromEvent && info.ModTime().Equal(prev.mtime) {
		return
	}

	cfg, st, err := w.read()
	if err != nil {
		// Remember the rejected mtime so polling reports it once.
		w.mu.Lock()
		w.state.mtime = info.ModTime()
		w.mu.Unlock()
		w.log.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	if st.sum == w.state.sum {
		w.state = st
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.state = cfg, st
	w.mu.Unlock()

	w.log.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read loads and validates the file with env overrides applied, as [Load]
// does, and reports the version it read.
func (w *Watcher) read() (*Config, fileState, error) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		applyEnv(cfg)
		return cfg, fileState{}, Validate(cfg)
	}
	if err != nil {
		return nil, fileState{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}

	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
