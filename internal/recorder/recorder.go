// Package recorder captures microphone audio as 16 kHz mono signed 16-bit PCM
// by running an external capture command (arecord or parecord).
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicecli/pkg/audio"
)

var (
	// ErrAlreadyRecording is returned by [Recorder.Start] while a capture is active.
	ErrAlreadyRecording = errors.New("Already recording")

	// ErrNotRecording is returned by [Recorder.Stop] when nothing is being captured.
	ErrNotRecording = errors.New("Not recording")
)

// Warning messages emitted when a clip is discarded.
const (
	WarnNoAudio  = "No audio detected"
	WarnTooShort = "Recording too short"
)

// EventKind identifies a recorder [Event].
type EventKind int

const (
	EventStart EventKind = iota
	EventStop
	EventError
	EventWarning
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventError:
		return "error"
	case EventWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Event is published on [Recorder.Events].
type Event struct {
	Kind EventKind

	// Buffer and Duration are set for EventStop. Buffer is nil when the clip
	// was discarded.
	Buffer   []byte
	Duration time.Duration

	// Err is set for EventError.
	Err error

	// Message is set for EventWarning.
	Message string
}

// Source opens a raw PCM stream from a capture device. Closing the returned
// reader ends the capture.
type Source interface {
	Open(ctx context.Context, device string) (io.ReadCloser, error)
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithSource replaces the capture command. Tests use it to feed canned PCM.
func WithSource(s Source) Option {
	return func(r *Recorder) { r.source = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithMinDuration sets the shortest clip that is kept.
func WithMinDuration(d time.Duration) Option {
	return func(r *Recorder) { r.minDuration = d }
}

// Recorder captures one clip at a time. All methods are safe for concurrent
// use.
type Recorder struct {
	device      string
	minDuration time.Duration
	source      Source
	now         func() time.Time
	events      chan Event

	mu       sync.Mutex
	active   bool
	stream   io.ReadCloser
	buf      []byte
	started  time.Time
	readDone chan struct{}
	stopping bool
}

// New returns a Recorder for device ("default" for the system default).
func New(device string, opts ...Option) *Recorder {
	r := &Recorder{
		device:      device,
		minDuration: 500 * time.Millisecond,
		source:      ExecSource{},
		now:         time.Now,
		events:      make(chan Event, 16),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Events returns the channel on which start, stop, error and warning events
// are delivered. The consumer must keep draining it.
func (r *Recorder) Events() <-chan Event { return r.events }

// SetDevice changes the capture device for the next [Recorder.Start].
func (r *Recorder) SetDevice(device string) {
	r.mu.Lock()
	r.device = device
	r.mu.Unlock()
}

// SetMinDuration changes the shortest clip kept by the next [Recorder.Stop].
func (r *Recorder) SetMinDuration(d time.Duration) {
	r.mu.Lock()
	r.minDuration = d
	r.mu.Unlock()
}

// IsRecording reports whether a capture is active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Start begins a capture and emits EventStart.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	device := r.device
	stream, err := r.source.Open(ctx, device)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("recorder: start: %w", err)
	}
	r.active = true
	r.stopping = false
	r.stream = stream
	r.buf = r.buf[:0]
	r.started = r.now()
	r.readDone = make(chan struct{})
	done := r.readDone
	r.mu.Unlock()

	go r.capture(stream, done)

	slog.Info("recording started", "device", device)
	r.emit(Event{Kind: EventStart})
	return nil
}

func (r *Recorder) capture(stream io.Reader, done chan struct{}) {
	defer close(done)
	chunk := make([]byte, 4096)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			r.mu.Lock()
			r.buf = append(r.buf, chunk[:n]...)
			r.mu.Unlock()
		}
		if err == nil {
			continue
		}

		r.mu.Lock()
		stopping := r.stopping
		r.mu.Unlock()
		if stopping {
			return
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("capture stream ended unexpectedly")
		}
		r.fail(fmt.Errorf("recorder: capture: %w", err))
		return
	}
}

// fail tears down a capture that died on its own and emits EventError.
func (r *Recorder) fail(err error) {
	r.mu.Lock()
	if !r.active || r.stopping {
		r.mu.Unlock()
		return
	}
	r.active = false
	stream := r.stream
	r.stream = nil
	r.buf = nil
	r.mu.Unlock()

	_ = stream.Close()
	slog.Error("recording failed", "err", err)
	r.emit(Event{Kind: EventError, Err: err})
}

// Stop ends the capture and returns the recorded PCM. It returns a nil
// buffer, and emits a warning, when the clip is shorter than the minimum
// duration or contains only silence. EventStop is emitted in every case.
func (r *Recorder) Stop(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.stopping = true
	stream := r.stream
	done := r.readDone
	r.mu.Unlock()

	closeErr := stream.Close()
	select {
	case <-done:
	case <-ctx.Done():
		r.mu.Lock()
		r.active = false
		r.stream = nil
		r.mu.Unlock()
		return nil, fmt.Errorf("recorder: stop: %w", ctx.Err())
	}

	r.mu.Lock()
	elapsed := r.now().Sub(r.started)
	minDuration := r.minDuration
	pcm := append([]byte(nil), r.buf...)
	r.active = false
	r.stream = nil
	r.buf = r.buf[:0]
	r.mu.Unlock()

	if closeErr != nil {
		slog.Debug("capture command exited with error", "err", closeErr)
	}

	var warning string
	switch {
	case elapsed < minDuration:
		warning = WarnTooShort
	case audio.IsSilent(pcm):
		warning = WarnNoAudio
	}
	if warning != "" {
		slog.Warn(warning, "duration_ms", elapsed.Milliseconds(), "bytes", len(pcm))
		r.emit(Event{Kind: EventWarning, Message: warning})
		r.emit(Event{Kind: EventStop, Duration: elapsed})
		return nil, nil
	}

	slog.Info("recording stopped", "duration_ms", elapsed.Milliseconds(), "bytes", len(pcm))
	r.emit(Event{Kind: EventStop, Buffer: pcm, Duration: elapsed})
	return pcm, nil
}

func (r *Recorder) emit(e Event) {
	r.events <- e
}
