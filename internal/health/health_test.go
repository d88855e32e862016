package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/voicecli/internal/config"
)

func passing(name string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return nil }}
}

func failing(name, msg string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return errors.New(msg) }}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var body response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(failing("capture tool", "missing"))

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := decode(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "all pass",
			checkers:   []Checker{passing("capture tool"), passing("state directory")},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"capture tool": "ok", "state directory": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{failing("capture tool", "arecord not found"), passing("state directory")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"capture tool": "fail: arecord not found", "state directory": "ok"},
		},
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(tt.checkers...).Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			body := decode(t, rec)
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for k, v := range tt.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("check %q = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(passing("x")).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestRun_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Run(ctx, Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	if len(results) != 1 || results[0].OK() {
		t.Fatalf("results = %+v, want one failure", results)
	}
	if Healthy(results) {
		t.Error("Healthy = true")
	}
}

func TestWritableDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "state")
	if err := WritableDir("state", dir).Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WritableDir("state", file).Check(context.Background()); err == nil {
		t.Error("expected failure for a regular file")
	}
}

func TestCredential(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.APIKeys.Groq = "gsk_abcdefgh1234"

	ctx := context.Background()
	if err := Credential("engine_a", cfg, cfg.Transcription.EngineA).Check(ctx); err != nil {
		t.Errorf("groq with shared key: %v", err)
	}
	if err := Credential("engine_b", cfg, cfg.Transcription.EngineB).Check(ctx); err == nil {
		t.Error("deepgram without key should fail")
	}
	local := config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8080"}
	if err := Credential("engine_a", cfg, local).Check(ctx); err != nil {
		t.Errorf("whisper needs no key: %v", err)
	}
}

func TestConfigValid(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(good, []byte("log_level: debug\n"), 0o600)
	_ = os.WriteFile(bad, []byte("log_level: loud\n"), 0o600)

	if err := ConfigValid(good).Check(context.Background()); err != nil {
		t.Errorf("good config: %v", err)
	}
	if err := ConfigValid(bad).Check(context.Background()); err == nil {
		t.Error("bad config should fail")
	}
}
