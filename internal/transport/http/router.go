package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knowton/marketplace/internal/platform/metrics"
	"github.com/knowton/marketplace/internal/platform/middleware"
)

// Registrar is implemented by every domain handler: it mounts its routes on
// the shared router.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries everything the root router needs.
type RouterConfig struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Health   func() map[string]string
	Handlers []Registrar
}

// NewRouter assembles the middleware chain, the operational endpoints and
// every domain's routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	if cfg.Metrics != nil {
		r.Use(middleware.LatencyMiddleware(cfg.Metrics))
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		statuses := map[string]string{}
		if cfg.Health != nil {
			statuses = cfg.Health()
		}
		code := http.StatusOK
		body := map[string]string{"status": "ok"}
		for name, s := range statuses {
			body[name] = s
			if s != "ok" {
				code = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(body)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range cfg.Handlers {
		h.Register(r)
	}
	return r
}
