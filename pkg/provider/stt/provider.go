// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (Groq's Whisper endpoint,
// Deepgram's streaming API, a local whisper.cpp server) and turns one
// finished recording into text. The daemon runs two providers side by side on
// the same clip and reconciles their answers afterwards.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/voicecli/pkg/audio"
)

// DefaultBoost is the intensity applied to plain boost words.
const DefaultBoost = 2.0

// ErrEmptyAudio is returned when a request carries no samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// KeywordBoost represents a keyword to boost in STT recognition, used for
// jargon and proper nouns the base model tends to misspell.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Hyprland").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Request is one transcription job.
type Request struct {
	// Audio is the converted recording.
	Audio audio.Clip

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Keywords are vocabulary hints. Providers without keyword support fold
	// them into a prompt or ignore them.
	Keywords []KeywordBoost
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in req.Audio. An empty string with a
	// nil error means the engine heard nothing intelligible.
	Transcribe(ctx context.Context, req Request) (string, error)
}

// Keywords converts plain boost words into KeywordBoost values with
// [DefaultBoost]. Blank entries are skipped.
func Keywords(words []string) []KeywordBoost {
	out := make([]KeywordBoost, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		out = append(out, KeywordBoost{Keyword: w, Boost: DefaultBoost})
	}
	return out
}

// Prompt joins keyword texts into a comma-separated vocabulary hint for
// engines that accept a free-form prompt instead of weighted keywords.
func Prompt(keywords []KeywordBoost) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		parts = append(parts, k.Keyword)
	}
	return strings.Join(parts, ", ")
}
