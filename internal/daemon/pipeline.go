package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicecli/internal/observe"
	"github.com/MrWong99/voicecli/internal/output"
	"github.com/MrWong99/voicecli/internal/transcript/merge"
	"github.com/MrWong99/voicecli/internal/transcript/phonetic"
	"github.com/MrWong99/voicecli/pkg/audio"
	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

// previewRunes caps the transcript shown in the success notification.
const previewRunes = 120

// outcome is what a pipeline run reports back to the loop.
type outcome struct {
	text      string
	source    merge.Source
	discarded bool
	err       error
}

// errBothEngines is wrapped when neither engine produced a transcript.
var errBothEngines = errors.New("both speech engines failed")

// process runs one session from captured PCM to clipboard delivery. Panics
// are converted into errors so the loop always gets an outcome.
func (s *Service) process(ctx context.Context, pcm []byte, recorded time.Duration, warning string) (out outcome) {
	sessionID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "daemon.session")
	span.SetAttributes(attribute.String("session.id", sessionID))
	log := observe.Logger(ctx, s.log.With("session_id", sessionID))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("session panic: %v", r)}
			log.Error("session panicked", "panic", r)
			s.cfg.Notifier.Notify("Transcription Failed", "Internal error, see `voice-cli errors`", output.SeverityError)
		}
		s.metrics.SessionDuration.Record(ctx, time.Since(start).Seconds())
		observe.EndSpan(span, out.err)
	}()

	if pcm == nil {
		if warning != "" {
			log.Warn("recording discarded", "reason", warning)
			s.cfg.Notifier.Notify("No Transcription", warning, output.SeverityInfo)
		} else {
			log.Info("recording discarded")
		}
		return outcome{discarded: true}
	}

	log.Info("processing recording", "duration_ms", recorded.Milliseconds(), "bytes", len(pcm))

	clip, err := s.cfg.Converter.Convert(ctx, pcm)
	if err != nil {
		return s.abort(ctx, log, "Audio Conversion Failed", fmt.Errorf("convert audio: %w", err))
	}

	text, source, err := s.transcribe(ctx, log, clip)
	if err != nil {
		return s.abort(ctx, log, "Transcription Failed", err)
	}
	if text == "" {
		log.Info("engines returned no speech")
		s.cfg.Notifier.Notify("No Transcription", "No speech recognized", output.SeverityInfo)
		return outcome{source: source}
	}

	if s.cfg.Speller != nil {
		_, words := s.vocabulary()
		var reps []phonetic.Replacement
		text, reps = s.cfg.Speller.Correct(text, words)
		for _, r := range reps {
			log.Debug("vocabulary correction", "from", r.From, "to", r.To, "confidence", r.Confidence)
		}
	}

	if err := s.cfg.Clipboard.Append(text); err != nil {
		return s.abort(ctx, log, "Clipboard Error", fmt.Errorf("copy transcript: %w", err))
	}
	s.cfg.Notifier.Notify("Transcription Complete", preview(text), output.SeveritySuccess)

	if st, err := s.cfg.Stats.Increment(); err != nil {
		log.Warn("failed to update stats", "err", err)
	} else {
		log.Debug("stats updated", "today", st.Today, "total", st.Total)
	}

	log.Info("transcription delivered", "source", string(source), "chars", len(text))
	return outcome{text: text, source: source}
}

// abort reports a session failure. Failures caused by shutdown are not
// shown to the user.
func (s *Service) abort(ctx context.Context, log *slog.Logger, title string, err error) outcome {
	log.Error(title, "err", err)
	if ctx.Err() == nil {
		s.cfg.Notifier.Notify(title, err.Error(), output.SeverityError)
	}
	return outcome{err: err}
}

// transcribe runs both engines concurrently and waits for both. With one
// survivor its text is used directly; with two the merger decides.
func (s *Service) transcribe(ctx context.Context, log *slog.Logger, clip audio.Clip) (string, merge.Source, error) {
	language, words := s.vocabulary()
	req := stt.Request{Audio: clip, Language: language, Keywords: stt.Keywords(words)}

	var (
		textA, textB string
		errA, errB   error
		g            errgroup.Group
	)
	g.Go(func() error {
		textA, errA = s.runEngine(ctx, "engine_a", s.cfg.EngineAName, s.cfg.EngineA, req)
		return nil
	})
	g.Go(func() error {
		textB, errB = s.runEngine(ctx, "engine_b", s.cfg.EngineBName, s.cfg.EngineB, req)
		return nil
	})
	_ = g.Wait()

	switch {
	case errA != nil && errB != nil:
		return "", "", fmt.Errorf("%w: %w", errBothEngines, errors.Join(errA, errB))
	case errA != nil:
		log.Warn("engine A failed, using engine B transcript", "err", errA)
		return textB, merge.SourceB, nil
	case errB != nil:
		log.Warn("engine B failed, using engine A transcript", "err", errB)
		return textA, merge.SourceA, nil
	}

	start := time.Now()
	res := s.cfg.Merger.Resolve(ctx, textA, textB)
	s.metrics.RecordMerge(ctx, string(res.Source), time.Since(start).Seconds())
	return res.Text, res.Source, nil
}

// runEngine calls one engine with its own span, latency metric and panic
// guard.
func (s *Service) runEngine(ctx context.Context, slot, provider string, p stt.Provider, req stt.Request) (text string, err error) {
	ctx, span := observe.StartSpan(ctx, "stt.transcribe")
	span.SetAttributes(attribute.String("engine", slot), attribute.String("provider", provider))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", slot, r)
		}
		s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("engine", slot)))
		if err != nil {
			s.metrics.RecordEngineError(ctx, slot, provider)
		}
		observe.EndSpan(span, err)
	}()

	text, err = p.Transcribe(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", slot, err)
	}
	return text, nil
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	r := []rune(text)
	return string(r[:previewRunes]) + "…"
}
