// Package daemon implements the dictation session state machine. One loop
// goroutine owns the session status and consumes a single event channel fed
// by triggers and recorder lifecycle events. Each completed recording is
// converted, transcribed by two engines in parallel, merged, and delivered
// to the clipboard.
package daemon

import (
	"context"
	"time"

	"github.com/MrWong99/voicecli/internal/output"
	"github.com/MrWong99/voicecli/internal/recorder"
	"github.com/MrWong99/voicecli/internal/stats"
	"github.com/MrWong99/voicecli/internal/transcript/merge"
	"github.com/MrWong99/voicecli/internal/transcript/phonetic"
	"github.com/MrWong99/voicecli/pkg/audio"
)

// Status is the phase of the current session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusStarting   Status = "starting"
	StatusRecording  Status = "recording"
	StatusStopping   Status = "stopping"
	StatusProcessing Status = "processing"
)

// Snapshot is the persisted daemon state read by `voice-cli status`.
type Snapshot struct {
	Status Status `json:"status"`

	// Uptime is in whole seconds.
	Uptime     int64  `json:"uptime"`
	ErrorCount int    `json:"errorCount"`

	LastTranscription *time.Time `json:"lastTranscription,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
}

// Recorder captures microphone audio. See [recorder.Recorder].
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) ([]byte, error)
	IsRecording() bool
	Events() <-chan recorder.Event
}

// Converter turns raw captured PCM into an engine-ready clip.
type Converter interface {
	Convert(ctx context.Context, pcm []byte) (audio.Clip, error)
}

// Merger reconciles the two engine transcripts.
type Merger interface {
	Resolve(ctx context.Context, a, b string) merge.Result
}

// Clipboard receives finished transcripts.
type Clipboard interface {
	Append(text string) error
}

// Notifier shows desktop notifications. It never blocks on failure.
type Notifier interface {
	Notify(title, body string, sev output.Severity)
}

// Counter records completed transcriptions.
type Counter interface {
	Increment() (stats.Stats, error)
}

// Speller fixes the spelling of vocabulary terms in a merged transcript.
type Speller interface {
	Correct(text string, vocabulary []string) (string, []phonetic.Replacement)
}
