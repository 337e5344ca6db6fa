package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID of an ops request back to the caller.
const CorrelationHeader = "X-Correlation-ID"

// probeRoutes are polled by scrapers and orchestrators. A successful probe
// logs at debug level.
var probeRoutes = map[string]bool{
	"/metrics": true,
	"/healthz": true,
	"/readyz":  true,
}

// routeLabel bounds the path attribute to the routes the ops listener
// serves, so that scanners probing random URLs cannot blow up the histogram.
func routeLabel(path string) string {
	if probeRoutes[path] {
		return path
	}
	return "other"
}

// recorder remembers the status code written by the wrapped handler.
type recorder struct {
	http.ResponseWriter
	code int
}

func (r *recorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// opsHandler instruments one request to the operations listener.
type opsHandler struct {
	next    http.Handler
	metrics *Metrics
	prop    propagation.TextMapPropagator
}

// Middleware wraps the operations listener. Each request joins the caller's
// W3C trace (or starts one), answers with [CorrelationHeader], and is timed
// into [Metrics.HTTPRequestDuration].
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &opsHandler{next: next, metrics: m, prop: propagation.TraceContext{}}
	}
}

func (h *opsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	route := routeLabel(r.URL.Path)

	ctx := h.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, r.Method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		),
	)
	defer span.End()

	cid := CorrelationID(ctx)
	if cid != "" {
		w.Header().Set(CorrelationHeader, cid)
	}
	h.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	rec := &recorder{ResponseWriter: w, code: http.StatusOK}
	h.next.ServeHTTP(rec, r.WithContext(ctx))

	elapsed := time.Since(start)
	span.SetAttributes(semconv.HTTPResponseStatusCode(rec.code))
	h.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", r.Method),
		attribute.String("path", route),
	))

	level := slog.LevelInfo
	if probeRoutes[route] && rec.code < http.StatusBadRequest {
		level = slog.LevelDebug
	}
	Logger(ctx).LogAttrs(ctx, level, "ops request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.code),
		slog.Duration("elapsed", elapsed),
	)
}
