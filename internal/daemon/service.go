package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/voicecli/internal/atomicfile"
	"github.com/MrWong99/voicecli/internal/observe"
	"github.com/MrWong99/voicecli/internal/output"
	"github.com/MrWong99/voicecli/internal/recorder"
	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

// shutdownTimeout bounds the recorder stop issued while shutting down.
const shutdownTimeout = 2 * time.Second

// Config holds the collaborators of a [Service]. Every interface field is
// required except Speller, Metrics, Logger and Now.
type Config struct {
	Recorder  Recorder
	Converter Converter
	EngineA   stt.Provider
	EngineB   stt.Provider
	Merger    Merger
	Clipboard Clipboard
	Notifier  Notifier
	Stats     Counter

	// EngineAName and EngineBName label engine metrics and spans
	// (e.g. "groq", "deepgram").
	EngineAName string
	EngineBName string

	// StatePath is where the JSON snapshot is written. Empty disables it.
	StatePath string

	// Language and BoostWords are forwarded to both engines. They can be
	// changed later with [Service.SetVocabulary].
	Language   string
	BoostWords []string

	// Speller, when set, rewrites near misses of the boost words in the
	// merged transcript.
	Speller Speller

	Metrics *observe.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

type eventKind int

const (
	evTrigger eventKind = iota
	evRecorderStart
	evRecorderStop
	evRecorderError
	evRecorderWarning
	evStartFailed
	evStopFailed
	evProcessed
)

type event struct {
	kind     eventKind
	buffer   []byte
	duration time.Duration
	err      error
	message  string
	outcome  outcome
}

// Service is the session state machine.
type Service struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics
	events  chan event

	// inflight tracks recorder calls and pipelines started by the loop.
	inflight sync.WaitGroup

	mu                sync.RWMutex
	status            Status
	started           time.Time
	errorCount        int
	lastTranscription *time.Time
	lastError         string
	language          string
	boostWords        []string

	// Touched only by the loop goroutine.
	lastWarning string
}

// New validates cfg and returns an idle Service.
func New(cfg Config) (*Service, error) {
	var missing []string
	for name, v := range map[string]any{
		"Recorder": cfg.Recorder, "Converter": cfg.Converter, "EngineA": cfg.EngineA,
		"EngineB": cfg.EngineB, "Merger": cfg.Merger, "Clipboard": cfg.Clipboard,
		"Notifier": cfg.Notifier, "Stats": cfg.Stats,
	} {
		if v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("daemon: missing collaborators: %v", missing)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		cfg:        cfg,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		events:     make(chan event, 64),
		status:     StatusIdle,
		started:    cfg.Now(),
		language:   cfg.Language,
		boostWords: slices.Clone(cfg.BoostWords),
	}, nil
}

// Trigger requests a toggle, as if the hotkey was pressed. It never blocks;
// a trigger that finds the queue full is dropped.
func (s *Service) Trigger() {
	select {
	case s.events <- event{kind: evTrigger}:
	default:
		s.log.Warn("trigger ignored: event queue full")
	}
}

// Status returns the current phase. Safe for concurrent use.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns the current daemon state. Safe for concurrent use.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:     s.status,
		Uptime:     int64(s.cfg.Now().Sub(s.started) / time.Second),
		ErrorCount: s.errorCount,
		LastError:  s.lastError,
	}
	if s.lastTranscription != nil {
		t := *s.lastTranscription
		snap.LastTranscription = &t
	}
	return snap
}

// SetVocabulary replaces the language and boost words used by the next
// session.
func (s *Service) SetVocabulary(language string, boostWords []string) {
	s.mu.Lock()
	s.language = language
	s.boostWords = slices.Clone(boostWords)
	s.mu.Unlock()
	s.log.Info("vocabulary updated", "language", language, "boost_words", len(boostWords))
}

func (s *Service) vocabulary() (string, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language, s.boostWords
}

// Run consumes events until ctx is cancelled, then stops any active
// recording, waits for in-flight work and removes the snapshot file.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = s.cfg.Now()
	s.mu.Unlock()
	s.writeSnapshot()

	go s.forwardRecorderEvents(ctx)

	s.log.Info("daemon ready", "state_path", s.cfg.StatePath)
	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx)
			return nil
		case e := <-s.events:
			s.handle(ctx, e)
		}
	}
}

func (s *Service) forwardRecorderEvents(ctx context.Context) {
	src := s.cfg.Recorder.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case re, ok := <-src:
			if !ok {
				return
			}
			var e event
			switch re.Kind {
			case recorder.EventStart:
				e = event{kind: evRecorderStart}
			case recorder.EventStop:
				e = event{kind: evRecorderStop, buffer: re.Buffer, duration: re.Duration}
			case recorder.EventError:
				e = event{kind: evRecorderError, err: re.Err}
			case recorder.EventWarning:
				e = event{kind: evRecorderWarning, message: re.Message}
			default:
				continue
			}
			s.post(ctx, e)
		}
	}
}

// post queues e for the loop unless the service is shutting down.
func (s *Service) post(ctx context.Context, e event) {
	select {
	case s.events <- e:
	case <-ctx.Done():
	}
}

func (s *Service) handle(ctx context.Context, e event) {
	switch e.kind {
	case evTrigger:
		s.onTrigger(ctx)

	case evRecorderStart:
		if s.Status() != StatusStarting {
			s.log.Debug("unexpected recorder start", "status", s.Status())
			return
		}
		s.metrics.Recording.Add(ctx, 1)
		s.setStatus(ctx, StatusRecording)

	case evStartFailed:
		s.fail(ctx, "Recording Failed", fmt.Errorf("start recording: %w", e.err))
		s.setStatus(ctx, StatusIdle)

	case evRecorderWarning:
		s.lastWarning = e.message

	case evRecorderStop:
		if s.Status() != StatusStopping {
			s.log.Debug("unexpected recorder stop", "status", s.Status())
			return
		}
		s.metrics.Recording.Add(ctx, -1)
		s.metrics.RecordedAudio.Record(ctx, e.duration.Seconds())
		warning := s.lastWarning
		s.lastWarning = ""
		s.setStatus(ctx, StatusProcessing)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			out := s.process(ctx, e.buffer, e.duration, warning)
			s.post(ctx, event{kind: evProcessed, outcome: out})
		}()

	case evStopFailed:
		s.metrics.Recording.Add(ctx, -1)
		s.fail(ctx, "Recording Failed", fmt.Errorf("stop recording: %w", e.err))
		s.setStatus(ctx, StatusIdle)

	case evRecorderError:
		st := s.Status()
		if st == StatusRecording || st == StatusStopping {
			s.metrics.Recording.Add(ctx, -1)
		}
		s.fail(ctx, "Recording Error", e.err)
		// A running pipeline owns the way back to idle.
		if st != StatusProcessing {
			s.setStatus(ctx, StatusIdle)
		}

	case evProcessed:
		s.finish(ctx, e.outcome)
	}
}

func (s *Service) onTrigger(ctx context.Context) {
	switch st := s.Status(); st {
	case StatusIdle:
		s.setStatus(ctx, StatusStarting)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			if err := s.cfg.Recorder.Start(ctx); err != nil {
				s.post(ctx, event{kind: evStartFailed, err: err})
			}
		}()

	case StatusRecording:
		s.setStatus(ctx, StatusStopping)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			if _, err := s.cfg.Recorder.Stop(ctx); err != nil {
				s.post(ctx, event{kind: evStopFailed, err: err})
			}
		}()

	default:
		s.metrics.IgnoredTriggers.Add(ctx, 1)
		s.log.Warn("trigger ignored while session is busy", "status", string(st))
	}
}

// setStatus moves the state machine and persists the snapshot. Only the loop
// goroutine calls it.
func (s *Service) setStatus(ctx context.Context, to Status) {
	s.mu.Lock()
	from := s.status
	s.status = to
	s.mu.Unlock()
	if from == to {
		return
	}
	s.metrics.RecordTransition(ctx, string(from), string(to))
	s.log.Debug("state transition", "from", string(from), "to", string(to))
	s.writeSnapshot()
}

// fail records a session error, notifies the user and persists the snapshot.
func (s *Service) fail(ctx context.Context, title string, err error) {
	s.recordError(err)
	s.log.Error(title, "err", err)
	s.cfg.Notifier.Notify(title, err.Error(), output.SeverityError)
	s.writeSnapshot()
}

func (s *Service) recordError(err error) {
	s.mu.Lock()
	s.errorCount++
	s.lastError = err.Error()
	s.mu.Unlock()
}

func (s *Service) finish(ctx context.Context, o outcome) {
	switch {
	case o.err != nil:
		s.recordError(o.err)
		s.metrics.RecordSession(ctx, observe.OutcomeFailed)
	case o.discarded:
		s.metrics.RecordSession(ctx, observe.OutcomeDiscarded)
	case o.text == "":
		s.metrics.RecordSession(ctx, observe.OutcomeEmpty)
	default:
		now := s.cfg.Now()
		s.mu.Lock()
		s.lastTranscription = &now
		s.mu.Unlock()
		s.metrics.RecordSession(ctx, observe.OutcomeSuccess)
	}
	s.setStatus(ctx, StatusIdle)
}

func (s *Service) writeSnapshot() {
	if s.cfg.StatePath == "" {
		return
	}
	if err := atomicfile.WriteJSON(s.cfg.StatePath, s.Snapshot(), 0o600); err != nil {
		s.log.Warn("failed to write state snapshot", "path", s.cfg.StatePath, "err", err)
	}
}

func (s *Service) shutdown(ctx context.Context) {
	s.log.Info("daemon shutting down", "status", string(s.Status()))
	s.inflight.Wait()

	if s.cfg.Recorder.IsRecording() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if _, err := s.cfg.Recorder.Stop(stopCtx); err != nil {
			s.log.Warn("failed to stop recorder during shutdown", "err", err)
		}
		cancel()
	}

	if s.cfg.StatePath == "" {
		return
	}
	if err := os.Remove(s.cfg.StatePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("failed to remove state snapshot", "path", s.cfg.StatePath, "err", err)
	}
}
