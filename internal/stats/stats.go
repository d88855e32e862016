// Package stats counts completed transcriptions per day and in total.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/voicecli/internal/atomicfile"
)

const dateLayout = "2006-01-02"

// Stats is the persisted counter file.
type Stats struct {
	Today    int    `json:"today"`
	Total    int    `json:"total"`
	LastDate string `json:"lastDate"`
}

// Store reads and updates the stats file at Path.
type Store struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// Option configures a [Store].
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store backed by path.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns the current counters. A missing or corrupt file yields zero
// counters; a file from an earlier day yields Today == 0.
func (s *Store) Load() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() Stats {
	today := s.now().Format(dateLayout)
	fresh := Stats{LastDate: today}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fresh
	}
	if err != nil {
		slog.Warn("failed to read stats file", "path", s.path, "err", err)
		return fresh
	}
	var st Stats
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("stats file is corrupt, starting over", "path", s.path, "err", err)
		return fresh
	}
	if st.LastDate != today {
		return Stats{Total: st.Total, LastDate: today}
	}
	return st
}

// Increment adds one transcription and persists the result with mode 0600.
func (s *Store) Increment() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.load()
	st.Today++
	st.Total++
	if err := atomicfile.WriteJSON(s.path, st, 0o600); err != nil {
		return st, fmt.Errorf("stats: save: %w", err)
	}
	return st, nil
}
