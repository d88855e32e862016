package groq_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voicecli/pkg/audio"
	"github.com/MrWong99/voicecli/pkg/provider/stt"
	"github.com/MrWong99/voicecli/pkg/provider/stt/groq"
)

type capturedForm struct {
	auth   string
	fields map[string]string
	file   []byte
}

// newMockServer answers POST /audio/transcriptions with responseText and
// records the parsed form into got.
func newMockServer(t *testing.T, status int, responseText string, got *capturedForm) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got != nil {
			got.auth = r.Header.Get("Authorization")
			got.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got.fields[k] = v[0]
			}
			f, _, err := r.FormFile("file")
			if err == nil {
				got.file, _ = io.ReadAll(f)
				f.Close()
			}
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"invalid api key"}}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

func testClip() audio.Clip {
	return audio.Clip{WAV: []byte("RIFF....WAVEfmt "), Format: audio.SpeechFormat}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := groq.New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestTranscribe_SendsForm(t *testing.T) {
	t.Parallel()
	var got capturedForm
	srv := newMockServer(t, http.StatusOK, "  hello world \n", &got)
	defer srv.Close()

	p, err := groq.New("gsk_test", groq.WithBaseURL(srv.URL+"/"), groq.WithModel("whisper-large-v3"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), stt.Request{
		Audio:    testClip(),
		Language: "de",
		Keywords: stt.Keywords([]string{"Hyprland", "Wayland"}),
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q, want trimmed %q", text, "hello world")
	}
	if got.auth != "Bearer gsk_test" {
		t.Errorf("Authorization = %q", got.auth)
	}
	want := map[string]string{
		"model":           "whisper-large-v3",
		"language":        "de",
		"prompt":          "Hyprland, Wayland",
		"response_format": "json",
	}
	for k, v := range want {
		if got.fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, got.fields[k], v)
		}
	}
	if string(got.file) != string(testClip().WAV) {
		t.Errorf("uploaded file = %q", got.file)
	}
}

func TestTranscribe_OmitsEmptyHints(t *testing.T) {
	t.Parallel()
	var got capturedForm
	srv := newMockServer(t, http.StatusOK, "ok", &got)
	defer srv.Close()

	p, _ := groq.New("gsk_test", groq.WithBaseURL(srv.URL))
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: testClip()}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if _, ok := got.fields["language"]; ok {
		t.Error("language should be omitted when empty")
	}
	if _, ok := got.fields["prompt"]; ok {
		t.Error("prompt should be omitted without keywords")
	}
	if got.fields["model"] != "whisper-large-v3-turbo" {
		t.Errorf("default model = %q", got.fields["model"])
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, http.StatusUnauthorized, "", nil)
	defer srv.Close()

	p, _ := groq.New("gsk_bad", groq.WithBaseURL(srv.URL))
	_, err := p.Transcribe(context.Background(), stt.Request{Audio: testClip()})
	if err == nil {
		t.Fatal("expected error for HTTP 401")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("error should carry status and body, got %v", err)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()
	p, _ := groq.New("gsk_test")
	_, err := p.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("got %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_MalformedJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p, _ := groq.New("gsk_test", groq.WithBaseURL(srv.URL), groq.WithHTTPClient(srv.Client()))
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: testClip()}); err == nil {
		t.Fatal("expected JSON parse error")
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, http.StatusOK, "late", nil)
	defer srv.Close()

	p, _ := groq.New("gsk_test", groq.WithBaseURL(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, stt.Request{Audio: testClip()}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
