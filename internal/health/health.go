// Package health runs the daemon's environment checks and serves them over
// HTTP.
//
// The same [Checker] list backs two consumers:
//
//   - the worker's diagnostics server, through /healthz (liveness, always 200)
//     and /readyz (200 only when every checker passes);
//   - the `voice-cli health` command, through [Run].
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/MrWong99/voicecli/internal/config"
	"github.com/MrWong99/voicecli/internal/recorder"
)

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Checker is a named environment check. Check returns nil when healthy.
type Checker struct {
	// Name labels the check in JSON responses and CLI output
	// (e.g. "capture tool", "state directory").
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Result is the outcome of one [Checker].
type Result struct {
	Name string
	Err  error
}

// OK reports whether the check passed.
func (r Result) OK() bool { return r.Err == nil }

// Run evaluates checkers in order, each bounded by checkTimeout.
func Run(ctx context.Context, checkers ...Checker) []Result {
	out := make([]Result, 0, len(checkers))
	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()
		out = append(out, Result{Name: c.Name, Err: err})
	}
	return out
}

// Healthy reports whether every result passed.
func Healthy(results []Result) bool {
	for _, r := range results {
		if !r.OK() {
			return false
		}
	}
	return true
}

// CaptureTool checks that arecord or parecord is installed.
func CaptureTool() Checker {
	return Checker{Name: "capture tool", Check: func(context.Context) error {
		_, err := recorder.FindCaptureTool()
		return err
	}}
}

// WritableDir checks that dir exists (creating it when missing) and accepts
// new files.
func WritableDir(name, dir string) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	}}
}

// Credential checks that the provider entry resolves to an API key. Local
// engines such as whisper need none.
func Credential(slot string, cfg *config.Config, e config.ProviderEntry) Checker {
	return Checker{Name: slot + " credentials", Check: func(context.Context) error {
		e := cfg.Credentials(e)
		switch e.Name {
		case "whisper", "ollama", "llamacpp", "llamafile":
			return nil
		}
		if e.APIKey == "" {
			return fmt.Errorf("no API key configured for %q", e.Name)
		}
		return nil
	}}
}

// ConfigValid checks that the file at path loads and validates.
func ConfigValid(path string) Checker {
	return Checker{Name: "config", Check: func(context.Context) error {
		_, err := config.Load(path)
		return err
	}}
}

// Defaults returns the standard check set for cfg.
func Defaults(cfg *config.Config) []Checker {
	return []Checker{
		CaptureTool(),
		WritableDir("state directory", config.Dir()),
		WritableDir("log directory", cfg.LogDir()),
		Credential("engine_a", cfg, cfg.Transcription.EngineA),
		Credential("engine_b", cfg, cfg.Transcription.EngineB),
		Credential("merger", cfg, cfg.Merger),
	}
}

// ErrUnhealthy is returned by callers that turn a failed check run into an
// exit status.
var ErrUnhealthy = errors.New("health: one or more checks failed")

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz returns 200 only when every checker passes.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := Run(r.Context(), h.checkers...)
	res := response{Status: "ok", Checks: make(map[string]string, len(results))}
	for _, c := range results {
		if c.OK() {
			res.Checks[c.Name] = "ok"
		} else {
			res.Checks[c.Name] = "fail: " + c.Err.Error()
		}
	}
	status := http.StatusOK
	if !Healthy(results) {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
