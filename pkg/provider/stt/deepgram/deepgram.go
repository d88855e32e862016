// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// A finished recording is streamed in 100 ms frames, followed by a
// CloseStream control message. Deepgram then flushes its final results and
// a Metadata message, and the finals are joined into one transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicecli/pkg/audio"
	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
	defaultTimeout    = 30 * time.Second

	// frameBytes is 100 ms of 16 kHz mono s16le.
	frameBytes = 3200
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the fallback BCP-47 language code (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the streaming endpoint, e.g. for a self-hosted
// Deepgram deployment or a test server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithTimeout bounds one Transcribe call end to end.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
	timeout  time.Duration
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams req.Audio.PCM to Deepgram and returns the joined final
// transcripts.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio.PCM) == 0 {
		return "", fmt.Errorf("deepgram: %w", stt.ErrEmptyAudio)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	wsURL, err := p.buildURL(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	var finals []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sendAudio(gctx, conn, req.Audio.PCM) })
	g.Go(func() error {
		var rerr error
		finals, rerr = receiveFinals(gctx, conn)
		return rerr
	})
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("deepgram: %w", err)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "done")
	return strings.Join(finals, " "), nil
}

// buildURL constructs the Deepgram streaming endpoint URL for req.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	f := req.Audio.Format
	if f.SampleRate == 0 {
		f = audio.Format{SampleRate: defaultSampleRate, Channels: 1}
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(f.SampleRate))
	q.Set("channels", strconv.Itoa(max(f.Channels, 1)))

	// Nova-3 replaced weighted keywords with keyterm prompting.
	nova3 := strings.HasPrefix(p.model, "nova-3")
	for _, kw := range req.Keywords {
		if nova3 {
			q.Add("keyterm", kw.Keyword)
			continue
		}
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sendAudio writes pcm as binary frames, then asks Deepgram to flush.
func sendAudio(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for off := 0; off < len(pcm); off += frameBytes {
		end := min(off+frameBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("send CloseStream: %w", err)
	}
	return nil
}

// receiveFinals collects final transcripts until Deepgram sends Metadata or
// closes the socket normally.
func receiveFinals(ctx context.Context, conn *websocket.Conn) ([]string, error) {
	var finals []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return finals, nil
			}
			return nil, fmt.Errorf("read: %w", err)
		}

		resp, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		switch resp.Type {
		case "Metadata":
			return finals, nil
		case "Error":
			return nil, fmt.Errorf("server error: %s", resp.Description)
		case "Results":
			if resp.IsFinal && resp.Text != "" {
				finals = append(finals, resp.Text)
			}
		}
	}
}

// deepgramResponse is the JSON structure returned by Deepgram.
type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	Description string `json:"description"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type result struct {
	Type        string
	Text        string
	IsFinal     bool
	Confidence  float64
	Description string
}

// parseDeepgramResponse decodes a raw Deepgram WebSocket message.
// Returns (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	switch resp.Type {
	case "Metadata":
		return result{Type: resp.Type}, true
	case "Error":
		return result{Type: resp.Type, Description: resp.Description}, true
	case "Results":
	default:
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	return result{
		Type:       resp.Type,
		Text:       strings.TrimSpace(alt.Transcript),
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}
