package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer as the global provider for the
// duration of the test. Tests using it must not run in parallel.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_Routes(t *testing.T) {
	tests := []struct {
		path      string
		code      int
		wantSpan  string
		wantRoute string
	}{
		{"/readyz", http.StatusServiceUnavailable, "GET /readyz", "/readyz"},
		{"/metrics", http.StatusOK, "GET /metrics", "/metrics"},
		{"/wp-login.php", http.StatusNotFound, "GET other", "other"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			exp := useTracer(t)
			m, reader := newTestMetrics(t)

			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.code)
			}))
			rec := serve(h, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != tc.code {
				t.Errorf("status = %d, want %d", rec.Code, tc.code)
			}

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if spans[0].Name != tc.wantSpan {
				t.Errorf("span = %q, want %q", spans[0].Name, tc.wantSpan)
			}
			var gotCode int64
			for _, a := range spans[0].Attributes {
				if a.Key == "http.response.status_code" {
					gotCode = a.Value.AsInt64()
				}
			}
			if gotCode != int64(tc.code) {
				t.Errorf("span status attribute = %d, want %d", gotCode, tc.code)
			}

			met := findMetric(collect(t, reader), "currybot.http.request.duration")
			if met == nil {
				t.Fatal("request duration not recorded")
			}
			hist := met.Data.(metricdata.Histogram[float64])
			if len(hist.DataPoints) != 1 {
				t.Fatalf("got %d data points, want 1", len(hist.DataPoints))
			}
			dp := hist.DataPoints[0]
			if route, _ := dp.Attributes.Value("path"); route.AsString() != tc.wantRoute {
				t.Errorf("path attribute = %q, want %q", route.AsString(), tc.wantRoute)
			}
			if method, _ := dp.Attributes.Value("method"); method.AsString() != http.MethodGet {
				t.Errorf("method attribute = %q", method.AsString())
			}
		})
	}
}

func TestMiddleware_CorrelationHeader(t *testing.T) {
	useTracer(t)
	m, _ := newTestMetrics(t)

	var inner string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = CorrelationID(r.Context())
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if len(inner) != 32 {
		t.Fatalf("handler saw correlation ID %q, want 32 hex chars", inner)
	}
	if got := rec.Header().Get(CorrelationHeader); got != inner {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, inner)
	}
	if rec.Header().Get("traceparent") == "" {
		t.Error("response carries no traceparent")
	}
}

func TestMiddleware_JoinsCallerTrace(t *testing.T) {
	useTracer(t)
	m, _ := newTestMetrics(t)

	const traceID = "0af7651916cd43dd8448eb211c80319c"
	var inner string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-b7ad6b7169203331-01")
	rec := serve(h, req)

	if inner != traceID {
		t.Errorf("handler trace = %q, want %q", inner, traceID)
	}
	if got := rec.Header().Get(CorrelationHeader); got != traceID {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, traceID)
	}
}

func TestRouteLabel(t *testing.T) {
	t.Parallel()
	for path, want := range map[string]string{
		"/metrics":     "/metrics",
		"/healthz":     "/healthz",
		"/readyz":      "/readyz",
		"/":            "other",
		"/readyz/deep": "other",
	} {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
