package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"statusbar/internal/metrics"
	logx "statusbar/pkg/logx"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	// Token guards every route except /healthz when set.
	Token string
	// RequestTimeout bounds each request; zero means 30s.
	RequestTimeout time.Duration
	// Pprof mounts net/http/pprof under /debug.
	Pprof bool
}

// NewRouter creates the API router. m may be nil.
func NewRouter(src Sources, m *metrics.Metrics, log logx.Logger, cfg RouterConfig) *chi.Mux {
	if src.Now == nil {
		src.Now = time.Now
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	h := &handler{src: src, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newLoggingMiddleware(log, m))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	r.Group(func(r chi.Router) {
		r.Use(newAuthMiddleware(cfg.Token))

		if m != nil {
			r.Handle("/metrics", m.Handler())
		}
		if cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			r.Get("/bar", h.bar)
			r.Get("/bar/line", h.barLine)
			r.Get("/schedule", h.schedule)
			r.Get("/runs", h.runs)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, log, http.StatusNotFound, "NOT_FOUND", "no such route")
	})
	return r
}
