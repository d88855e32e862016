// Package groq provides an STT provider backed by Groq's hosted Whisper
// models through the OpenAI-compatible /audio/transcriptions endpoint.
//
// The clip is uploaded in one multipart/form-data request; boost words are
// passed as the Whisper prompt, which biases spelling towards them.
//
// Usage:
//
//	p, err := groq.New("gsk_...", groq.WithModel("whisper-large-v3-turbo"))
//	text, err := p.Transcribe(ctx, stt.Request{Audio: clip, Language: "en"})
package groq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "whisper-large-v3-turbo"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Whisper model (e.g., "whisper-large-v3", "whisper-large-v3-turbo").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API root (default https://api.groq.com/openai/v1).
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the default client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by Groq.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a new Groq Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("groq: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads req.Audio.WAV and returns the trimmed transcript.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio.WAV) == 0 {
		return "", fmt.Errorf("groq: %w", stt.ErrEmptyAudio)
	}
	return stt.PostForm(ctx, p.httpClient, stt.Upload{
		Engine: "groq",
		URL:    p.baseURL + "/audio/transcriptions",
		Header: http.Header{"Authorization": {"Bearer " + p.apiKey}},
		WAV:    req.Audio.WAV,
		Fields: [][2]string{
			{"model", p.model},
			{"response_format", "json"},
			{"temperature", "0"},
			{"language", req.Language},
			{"prompt", stt.Prompt(req.Keywords)},
		},
	})
}
