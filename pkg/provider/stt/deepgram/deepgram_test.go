package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicecli/pkg/audio"
	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.Request{Audio: audio.Clip{Format: audio.SpeechFormat}, Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_LanguageFallback(t *testing.T) {
	p, err := New("key", WithModel("nova-2"), WithLanguage("de-DE"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.Request{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	q, _ := url.ParseQuery(strings.SplitN(rawURL, "?", 2)[1])
	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))

	rawURL, _ = p.buildURL(stt.Request{Language: "fr-FR"})
	u, _ := url.Parse(rawURL)
	assertEqual(t, "language override", "fr-FR", u.Query().Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	kws := []stt.KeywordBoost{
		{Keyword: "Hyprland", Boost: 5},
		{Keyword: "Wayland", Boost: 3.5},
	}

	legacy, _ := New("key", WithModel("nova-2"))
	rawURL, err := legacy.buildURL(stt.Request{Keywords: kws})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	got := u.Query()["keywords"]
	if len(got) != 2 || got[0] != "Hyprland:5" || got[1] != "Wayland:3.5" {
		t.Errorf("keywords = %v", got)
	}
	if _, ok := u.Query()["keyterm"]; ok {
		t.Error("nova-2 should not send keyterm")
	}

	nova3, _ := New("key")
	rawURL, _ = nova3.buildURL(stt.Request{Keywords: kws})
	u, _ = url.Parse(rawURL)
	got = u.Query()["keyterm"]
	if len(got) != 2 || got[0] != "Hyprland" || got[1] != "Wayland" {
		t.Errorf("keyterm = %v", got)
	}
	if _, ok := u.Query()["keywords"]; ok {
		t.Error("nova-3 should not send keywords")
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantOK  bool
		want    result
	}{
		{
			name:   "final",
			raw:    `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" Hello world ","confidence":0.95}]}}`,
			wantOK: true,
			want:   result{Type: "Results", Text: "Hello world", IsFinal: true, Confidence: 0.95},
		},
		{
			name:   "partial",
			raw:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hello","confidence":0.7}]}}`,
			wantOK: true,
			want:   result{Type: "Results", Text: "Hello", Confidence: 0.7},
		},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`, wantOK: true, want: result{Type: "Metadata"}},
		{name: "error", raw: `{"type":"Error","description":"bad audio"}`, wantOK: true, want: result{Type: "Error", Description: "bad audio"}},
		{name: "speech started", raw: `{"type":"SpeechStarted"}`},
		{name: "empty alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDeepgramResponse([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", deepgramEndpoint, p.endpoint)
}

// ---- streaming tests ----

// startDeepgramServer launches a WebSocket server that counts received audio
// bytes until CloseStream and then replays replies.
func startDeepgramServer(t *testing.T, replies []string, gotBytes *atomic.Int64, gotAuth *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			gotAuth.Store(r.Header.Get("Authorization"))
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				if gotBytes != nil {
					gotBytes.Add(int64(len(data)))
				}
				continue
			}
			var ctrl struct{ Type string }
			_ = json.Unmarshal(data, &ctrl)
			if ctrl.Type == "CloseStream" {
				break
			}
		}
		for _, msg := range replies {
			if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTranscribe_JoinsFinals(t *testing.T) {
	var gotBytes atomic.Int64
	var gotAuth atomic.Value
	srv := startDeepgramServer(t, []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hello"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Hello world."}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"How are you?"}]}}`,
		`{"type":"Metadata","request_id":"abc"}`,
	}, &gotBytes, &gotAuth)

	p, _ := New("dg-key", WithEndpoint(wsURL(srv)))
	pcm := make([]byte, 10_000)
	text, err := p.Transcribe(context.Background(), stt.Request{
		Audio: audio.Clip{PCM: pcm, Format: audio.SpeechFormat},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "Hello world. How are you?", text)
	if got := gotBytes.Load(); got != int64(len(pcm)) {
		t.Errorf("server received %d bytes, want %d", got, len(pcm))
	}
	auth, _ := gotAuth.Load().(string)
	assertEqual(t, "auth", "Token dg-key", auth)
}

func TestTranscribe_NormalCloseWithoutMetadata(t *testing.T) {
	srv := startDeepgramServer(t, []string{
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"only"}]}}`,
	}, nil, nil)

	p, _ := New("k", WithEndpoint(wsURL(srv)))
	text, err := p.Transcribe(context.Background(), stt.Request{Audio: audio.Clip{PCM: []byte{1, 0}}})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "only", text)
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := startDeepgramServer(t, []string{`{"type":"Error","description":"unsupported encoding"}`}, nil, nil)

	p, _ := New("k", WithEndpoint(wsURL(srv)))
	_, err := p.Transcribe(context.Background(), stt.Request{Audio: audio.Clip{PCM: []byte{1, 0}}})
	if err == nil || !strings.Contains(err.Error(), "unsupported encoding") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestTranscribe_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("k", WithEndpoint(wsURL(srv)), WithTimeout(2*time.Second))
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: audio.Clip{PCM: []byte{1, 0}}}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := New("k")
	if _, err := p.Transcribe(context.Background(), stt.Request{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("got %v, want ErrEmptyAudio", err)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
