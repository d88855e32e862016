// Package logging builds the process logger: human-readable text on stderr
// plus one JSON file per day under the configured log directory.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/voicecli/internal/config"
)

// Retention is how long daily log files are kept.
const Retention = 7 * 24 * time.Hour

const (
	filePrefix = "voice-cli-"
	fileSuffix = ".log"
)

// FileName returns the daily log file name for t.
func FileName(t time.Time) string {
	return filePrefix + t.Format("2006-01-02") + fileSuffix
}

// ParseLevel maps a configured level onto slog. Unknown values mean info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options configures [New].
type Options struct {
	Level config.LogLevel

	// Dir receives the JSON log files. Empty disables file logging.
	Dir string

	// Stderr defaults to os.Stderr.
	Stderr io.Writer

	// Now defaults to time.Now; used for the file name and pruning.
	Now func() time.Time
}

// Logger is the configured logger plus the handles needed to adjust and
// release it.
type Logger struct {
	*slog.Logger

	// Level can be changed at runtime, e.g. after a config reload.
	Level *slog.LevelVar

	file *os.File
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// New builds the logger. Old log files are pruned first; a pruning failure
// is reported through the new logger rather than returned.
func New(opts Options) (*Logger, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	lvl := new(slog.LevelVar)
	lvl.Set(ParseLevel(opts.Level))
	hopts := &slog.HandlerOptions{Level: lvl}

	handlers := []slog.Handler{slog.NewTextHandler(opts.Stderr, hopts)}
	l := &Logger{Level: lvl}

	var pruneErr error
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("logging: create dir %q: %w", opts.Dir, err)
		}
		_, pruneErr = Prune(opts.Dir, Retention, opts.Now())

		path := filepath.Join(opts.Dir, FileName(opts.Now()))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("logging: open %q: %w", path, err)
		}
		l.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, hopts))
	}

	l.Logger = slog.New(fanout(handlers)).With("pid", os.Getpid())
	if pruneErr != nil {
		l.Warn("failed to prune old log files", "dir", opts.Dir, "err", pruneErr)
	}
	return l, nil
}

// Prune deletes voice-cli-*.log files in dir last modified more than maxAge
// before now. It returns how many files were removed.
func Prune(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var removed int
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
