package daemon

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voicecli/internal/output"
	"github.com/MrWong99/voicecli/internal/recorder"
	"github.com/MrWong99/voicecli/internal/stats"
	"github.com/MrWong99/voicecli/pkg/audio"
)

// fakeRecorder mimics recorder.Recorder: Start emits EventStart, Stop emits
// an optional warning followed by EventStop.
type fakeRecorder struct {
	mu        sync.Mutex
	events    chan recorder.Event
	recording bool
	starts    int
	stops     int

	// manualStart suppresses the automatic EventStart.
	manualStart bool
	startErr    error
	stopErr     error

	stopBuf      []byte
	stopDuration time.Duration
	stopWarning  string

	// holdStop, when set, blocks Stop until closed.
	holdStop chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		events:       make(chan recorder.Event, 16),
		stopBuf:      []byte{1, 2, 3, 4},
		stopDuration: 1500 * time.Millisecond,
	}
}

func (r *fakeRecorder) Events() <-chan recorder.Event { return r.events }

func (r *fakeRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *fakeRecorder) Start(context.Context) error {
	r.mu.Lock()
	r.starts++
	if r.recording {
		r.mu.Unlock()
		return recorder.ErrAlreadyRecording
	}
	if r.startErr != nil {
		r.mu.Unlock()
		return r.startErr
	}
	r.recording = true
	manual := r.manualStart
	r.mu.Unlock()
	if !manual {
		r.events <- recorder.Event{Kind: recorder.EventStart}
	}
	return nil
}

func (r *fakeRecorder) Stop(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	r.stops++
	hold := r.holdStop
	r.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	if r.stopErr != nil {
		err := r.stopErr
		r.recording = false
		r.mu.Unlock()
		return nil, err
	}
	r.recording = false
	buf, dur, warn := r.stopBuf, r.stopDuration, r.stopWarning
	r.mu.Unlock()

	if warn != "" {
		r.events <- recorder.Event{Kind: recorder.EventWarning, Message: warn}
	}
	r.events <- recorder.Event{Kind: recorder.EventStop, Buffer: buf, Duration: dur}
	return buf, nil
}

func (r *fakeRecorder) counts() (starts, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

type fakeConverter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (c *fakeConverter) Convert(_ context.Context, pcm []byte) (audio.Clip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return audio.Clip{}, c.err
	}
	return audio.Clip{PCM: pcm, Format: audio.SpeechFormat}, nil
}

func (c *fakeConverter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeClipboard struct {
	mu    sync.Mutex
	texts []string
	err   error
	panic any
}

func (c *fakeClipboard) Append(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panic != nil {
		panic(c.panic)
	}
	if c.err != nil {
		return c.err
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeClipboard) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type notification struct {
	title, body string
	sev         output.Severity
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(title, body string, sev output.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{title, body, sev})
}

func (n *fakeNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		out = append(out, s.title)
	}
	return out
}

type fakeStats struct {
	mu sync.Mutex
	n  int
}

func (s *fakeStats) Increment() (stats.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return stats.Stats{Today: s.n, Total: s.n}, nil
}

func (s *fakeStats) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// logCapture is a slog.Handler that keeps every record.
type logCapture struct {
	mu      sync.Mutex
	records []capturedRecord
}

type capturedRecord struct {
	level slog.Level
	msg   string
	attrs map[string]string
}

func (h *logCapture) Enabled(context.Context, slog.Level) bool { return true }

func (h *logCapture) Handle(_ context.Context, r slog.Record) error {
	rec := capturedRecord{level: r.Level, msg: r.Message, attrs: map[string]string{}}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value.String()
		return true
	})
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *logCapture) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *logCapture) WithGroup(string) slog.Handler      { return h }

// transitions returns the "to" states of every logged transition.
func (h *logCapture) transitions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.records {
		if r.msg == "state transition" {
			out = append(out, r.attrs["to"])
		}
	}
	return out
}

// count returns how many records at level contain substr.
func (h *logCapture) count(level slog.Level, substr string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.level == level && strings.Contains(r.msg, substr) {
			n++
		}
	}
	return n
}

func (h *logCapture) attr(msg, key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.msg == msg {
			return r.attrs[key]
		}
	}
	return ""
}

var errBoom = errors.New("boom")
