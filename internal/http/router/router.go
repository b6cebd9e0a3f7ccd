package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"driver-agent/internal/http/handlers"
	mw "driver-agent/internal/http/middleware"
	"driver-agent/internal/http/middleware/ratelimit"
)

// New constructs the chi-based handler of the local dashboard API.
func New(
	h *handlers.Handlers,
	broadcasts *handlers.BroadcastHandler,
	driver *handlers.DriverHandler,
	obs *mw.Observability,
	limiter *ratelimit.Middleware,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if obs != nil {
		r.Use(obs.Handler())
	}
	if limiter != nil {
		r.Use(limiter.Handler())
	}

	r.Get("/ping", h.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(h.HealthcheckHead))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/broadcasts", func(r chi.Router) {
		r.Get("/", broadcasts.List)
		r.Post("/{deliveryId}/accept", broadcasts.Accept)
		r.Get("/{deliveryId}/status", broadcasts.Status)
	})

	r.Put("/location", driver.UpdateLocation)
	r.Get("/location", driver.Location)
	r.Get("/notifications", driver.Notifications)

	r.NotFound(http.HandlerFunc(h.NotFound))

	return r
}
