package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/linkshelf/server/internal/observability"

// HTTPMetrics holds the API request instruments
type HTTPMetrics struct {
	requests  metric.Int64Counter
	latency   metric.Float64Histogram
	bodyBytes metric.Int64Histogram
	inFlight  metric.Int64UpDownCounter
}

// NewHTTPMetrics registers the API request instruments
func NewHTTPMetrics() (*HTTPMetrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &HTTPMetrics{}

	var err error
	if m.requests, err = meter.Int64Counter("linkshelf.http.requests",
		metric.WithDescription("API requests by route and status class"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.latency, err = meter.Float64Histogram("linkshelf.http.latency",
		metric.WithDescription("API request latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.bodyBytes, err = meter.Int64Histogram("linkshelf.http.response_bytes",
		metric.WithDescription("Response body size before compression"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("linkshelf.http.in_flight",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	return m, nil
}

// statusRecorder captures the status and body size. It passes Flush and
// Hijack through so WebSocket upgrades keep working behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// TracingMiddleware starts a server span per request and writes one access
// log line when the request finishes. Spans are renamed to the matched chi
// route so ids do not explode span cardinality.
func TracingMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer(instrumentationName)
	propagator := otel.GetTextMapPropagator()
	log := GetLogger().Component("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.String("client.address", r.RemoteAddr),
					attribute.String("user_agent.original", r.UserAgent()),
					attribute.String("linkshelf.request_id", chimw.GetReqID(r.Context())),
				),
			)
			defer span.End()

			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			route := routePattern(r)
			status := rec.code()
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			entry := log.WithContext(ctx).WithFields(logrus.Fields{
				"method":      r.Method,
				"route":       route,
				"status":      status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  chimw.GetReqID(r.Context()),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("Request finished")
			} else {
				entry.Debug("Request finished")
			}
		})
	}
}

// MetricsMiddleware records request counts, latency and response sizes
func MetricsMiddleware(m *HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			m.inFlight.Add(ctx, 1)
			defer m.inFlight.Add(ctx, -1)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			attrs := metric.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", routePattern(r)),
				attribute.String("status_class", statusClass(rec.code())),
			)
			m.requests.Add(ctx, 1, attrs)
			m.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
			m.bodyBytes.Record(ctx, rec.bytes, attrs)
		})
	}
}

// routePattern returns the chi route pattern once routing has happened
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
