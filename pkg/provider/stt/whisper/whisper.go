// Package whisper talks to a local whisper.cpp server (the whisper-server
// binary, POST /inference). Quiet clips are answered with an empty transcript
// without a request, since CPU inference on silence is slow and tends to
// hallucinate.
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
package whisper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voicecli/pkg/audio"
	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

// silenceRMS is the 16-bit RMS energy under which a clip counts as silent.
const silenceRMS = 300.0

var _ stt.Provider = (*Provider)(nil)

// Provider is a whisper.cpp inference client.
type Provider struct {
	endpoint string
	model    string
	language string
	silence  float64
	client   *http.Client
}

// Option configures a [Provider].
type Option func(*Provider)

// WithModel asks the server for a specific model ("base.en", "small").
// Empty uses whatever the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage is used for requests that carry no language. Default: "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithRMSThreshold changes the silence cut-off. Zero sends every clip.
func WithRMSThreshold(v float64) Option {
	return func(p *Provider) { p.silence = v }
}

// WithHTTPClient replaces the default client, which allows 60s per request.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New returns a client for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		endpoint: strings.TrimRight(serverURL, "/") + "/inference",
		language: "en",
		silence:  silenceRMS,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Transcribe sends the clip unless it is below the silence cut-off.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio.WAV) == 0 {
		return "", fmt.Errorf("whisper: %w", stt.ErrEmptyAudio)
	}
	if p.quiet(req.Audio) {
		return "", nil
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	return stt.PostForm(ctx, p.client, stt.Upload{
		Engine: "whisper",
		URL:    p.endpoint,
		WAV:    req.Audio.WAV,
		Fields: [][2]string{
			{"response_format", "json"},
			{"language", lang},
			{"model", p.model},
			{"prompt", stt.Prompt(req.Keywords)},
		},
	})
}

func (p *Provider) quiet(clip audio.Clip) bool {
	return p.silence > 0 && len(clip.PCM) > 0 && audio.RMS(clip.PCM) < p.silence
}
