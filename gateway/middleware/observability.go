package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"xfarm/observability"
)

// HeaderRequestID carries the request correlation id.
const HeaderRequestID = "X-Request-ID"

type ObservabilityConfig struct {
	ServiceName   string
	MetricsPrefix string
	LogRequests   bool
	Enabled       bool
}

// Observability owns the per-server HTTP collectors and the tracer.
type Observability struct {
	cfg       ObservabilityConfig
	logger    *slog.Logger
	tracer    trace.Tracer
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	registry  *prometheus.Registry

	// exported through the OTLP meter provider when telemetry is enabled
	served metric.Int64Counter
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "farmd"
	}
	if cfg.MetricsPrefix == "" {
		cfg.MetricsPrefix = "xfarm_http"
	}
	o := &Observability{
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer(cfg.ServiceName),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.MetricsPrefix,
			Name:      "requests_total",
			Help:      "Farm API requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.MetricsPrefix,
			Name:      "request_duration_seconds",
			Help:      "Farm API request latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route", "method"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.MetricsPrefix,
			Name:      "requests_in_flight",
			Help:      "Farm API requests currently being served.",
		}),
		registry: prometheus.NewRegistry(),
	}
	o.registry.MustRegister(o.requests, o.durations, o.inFlight)
	served, err := otel.Meter(cfg.ServiceName).Int64Counter("xfarm.http.requests",
		metric.WithDescription("Farm API requests served."),
		metric.WithUnit("{request}"))
	if err != nil {
		logger.Warn("otel request counter unavailable", "error", err)
	} else {
		o.served = served
	}
	return o
}

// Middleware traces and counts requests under route. module labels the
// process-wide API metrics.
func (o *Observability) Middleware(module, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if o == nil || !o.cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			o.inFlight.Inc()
			defer o.inFlight.Dec()

			start := time.Now()
			ctx, span := o.tracer.Start(r.Context(), module+"."+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", routePattern(r, route)),
				))
			defer span.End()

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			elapsed := time.Since(start)
			requestID := w.Header().Get(HeaderRequestID)
			span.SetAttributes(attribute.Int("http.status_code", recorder.status))
			if requestID != "" {
				span.SetAttributes(attribute.String("request.id", requestID))
			}
			if recorder.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(recorder.status))
			}

			o.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			o.durations.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())
			observability.API().Observe(module, route, recorder.status, elapsed)
			if o.served != nil {
				o.served.Add(ctx, 1, metric.WithAttributes(
					attribute.String("http.route", route),
					attribute.Int("http.status_code", recorder.status)))
			}
			if o.cfg.LogRequests {
				o.logger.Debug("http request",
					"route", route,
					"method", r.Method,
					"status", recorder.status,
					"bytes", recorder.bytes,
					"request_id", requestID,
					"duration_ms", float64(elapsed.Microseconds())/1000)
			}
		})
	}
}

// routePattern prefers the matched chi pattern over the route label.
func routePattern(r *http.Request, fallback string) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return fallback
}

// MetricsHandler serves the HTTP collectors together with the process-wide
// default registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{o.registry, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}
