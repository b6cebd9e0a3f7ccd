package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"driver-agent/internal/logx"
)

// Observability counts and times requests and writes one access log line per
// request. Metrics are registered on construction, so tests can pass their
// own registry.
type Observability struct {
	logger   logx.Logger
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewObservability creates the middleware and registers its metrics. A nil
// registerer means prometheus.DefaultRegisterer.
func NewObservability(logger logx.Logger, reg prometheus.Registerer) *Observability {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &Observability{
		logger: logger,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
	reg.MustRegister(o.requests, o.duration)
	return o
}

// Handler returns chi-style middleware.
func (o *Observability) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := pathPattern(r) // шаблон маршрута, не сырой путь
			tm := time.Since(start)
			status := strconv.Itoa(ww.Status())

			o.requests.WithLabelValues(r.Method, path, status).Inc()
			o.duration.WithLabelValues(r.Method, path, status).Observe(tm.Seconds())

			o.logger.Info("http request",
				logx.String("method", r.Method),
				logx.String("path", path),
				logx.Int("status", ww.Status()),
				logx.Duration("duration", tm),
			)
		})
	}
}

func pathPattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
