package stt_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voicecli/pkg/provider/stt"
)

func TestPostForm(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		wav, _ := io.ReadAll(f)
		if string(wav) != "RIFFdata" || r.Header.Get("X-Key") != "k" {
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		if _, ok := r.MultipartForm.Value["prompt"]; ok {
			http.Error(w, "empty field was sent", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"text":"  `+r.FormValue("language")+`  "}`)
	}))
	defer srv.Close()

	text, err := stt.PostForm(context.Background(), srv.Client(), stt.Upload{
		Engine: "test",
		URL:    srv.URL,
		Header: http.Header{"X-Key": {"k"}},
		WAV:    []byte("RIFFdata"),
		Fields: [][2]string{{"language", "de"}, {"prompt", ""}},
	})
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	if text != "de" {
		t.Errorf("text = %q, want trimmed %q", text, "de")
	}
}

func TestPostForm_HTTPError(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, long, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := stt.PostForm(context.Background(), srv.Client(), stt.Upload{Engine: "test", URL: srv.URL, WAV: []byte("x")})
	var httpErr *stt.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", httpErr.Status)
	}
	if len(httpErr.Body) > 520 || !strings.HasSuffix(httpErr.Body, "...") {
		t.Errorf("body not truncated: %d bytes", len(httpErr.Body))
	}
	if !strings.HasPrefix(err.Error(), "test: server returned HTTP 429") {
		t.Errorf("Error() = %.60q", err.Error())
	}
}

func TestPostForm_BadJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer srv.Close()

	if _, err := stt.PostForm(context.Background(), srv.Client(), stt.Upload{Engine: "test", URL: srv.URL}); err == nil {
		t.Fatal("expected parse error")
	}
}
