package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type middlewareFixture struct {
	metrics *Metrics
	collect func() snapshot
	spans   *tracetest.InMemoryExporter
	logs    *bytes.Buffer
	handler http.Handler
}

// newMiddlewareFixture wraps inner with [Middleware]. It swaps the global
// tracer provider, so callers must not run in parallel.
func newMiddlewareFixture(t *testing.T, inner http.HandlerFunc) *middlewareFixture {
	t.Helper()

	m, collect := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	logs := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return &middlewareFixture{
		metrics: m,
		collect: collect,
		spans:   exp,
		logs:    logs,
		handler: Middleware(m, log)(inner),
	}
}

func (f *middlewareFixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMiddleware_CorrelationHeaderMatchesSpan(t *testing.T) {
	var inside string
	f := newMiddlewareFixture(t, func(w http.ResponseWriter, r *http.Request) {
		inside = CorrelationID(r.Context())
	})

	rec := f.get("/healthz")

	if len(inside) != 32 {
		t.Fatalf("correlation id inside handler = %q", inside)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inside {
		t.Errorf("X-Correlation-ID = %q, want %q", got, inside)
	}
	spans := f.spans.GetSpans()
	if len(spans) != 1 || spans[0].Name != "diagnostics /healthz" {
		t.Fatalf("spans = %+v", spans)
	}
	if spans[0].SpanContext.TraceID().String() != inside {
		t.Error("span trace id differs from the correlation id")
	}
}

func TestMiddleware_RecordsDurationWithStatus(t *testing.T) {
	f := newMiddlewareFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	f.get("/readyz")

	data := f.collect()["voicecli.http.request.duration"]
	hist, ok := data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("data = %+v", data)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("count = %d, want 1", dp.Count)
	}
	want := map[string]string{"method": "GET", "path": "/readyz", "status": "503"}
	for _, kv := range dp.Attributes.ToSlice() {
		if w, ok := want[string(kv.Key)]; ok {
			if got := kv.Value.Emit(); got != w {
				t.Errorf("%s = %q, want %q", kv.Key, got, w)
			}
			delete(want, string(kv.Key))
		}
	}
	if len(want) != 0 {
		t.Errorf("missing attributes: %v", want)
	}
}

func TestMiddleware_LogLevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{name: "ok is debug", status: http.StatusOK, level: "level=DEBUG"},
		{name: "not found is debug", status: http.StatusNotFound, level: "level=DEBUG"},
		{name: "server error is warn", status: http.StatusInternalServerError, level: "level=WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMiddlewareFixture(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			rec := f.get("/metrics")

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			line := f.logs.String()
			if !strings.Contains(line, tt.level) || !strings.Contains(line, "diagnostics request") {
				t.Errorf("log = %q, want %s", line, tt.level)
			}
			if !strings.Contains(line, "trace_id=") {
				t.Errorf("log lacks trace id: %q", line)
			}
		})
	}
}

func TestMiddleware_SpanCarriesStatusCode(t *testing.T) {
	f := newMiddlewareFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	f.get("/nope")

	spans := f.spans.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 404 {
			return
		}
	}
	t.Error("span missing http.response.status_code=404")
}
