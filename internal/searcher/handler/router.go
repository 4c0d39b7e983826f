package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/unified-search/pkg/ratelimit"
)

type RouterConfig struct {
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
	// Gatherer, when set, is served on /metrics alongside the API.
	Gatherer prometheus.Gatherer
	// CORSOrigins and Limiter apply to the public search routes only.
	CORSOrigins []string
	Limiter     *ratelimit.Limiter
}

// NewRouter registers the search, admin, webhook and health routes.
func NewRouter(h *Handler, checker *health.Checker, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health/live", checker.LiveHandler())
	r.Get("/health/ready", checker.ReadyHandler())
	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if len(cfg.CORSOrigins) > 0 {
				r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
			}
			if cfg.Limiter != nil {
				r.Use(middleware.RateLimit(cfg.Limiter, cfg.Metrics))
			}
			r.Get("/search", h.Search)
			r.Get("/search/grouped", h.SearchGrouped)
			r.Get("/search/config", h.ClientConfig)
			r.Options("/search", noContent)
			r.Options("/search/grouped", noContent)
			r.Options("/search/config", noContent)
		})
		r.Post("/events/{event}/{id}", h.LifecycleEvent)
		r.Get("/cache/stats", h.CacheStats)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reindex", h.Reindex)
			r.Post("/cache/purge", h.CachePurge)
		})
	})

	return r
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
