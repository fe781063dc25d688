// Package httpapi exposes the bridge over HTTP: status and health routes,
// the authenticated send endpoint and Prometheus metrics.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shineum/mail-bridge/internal/transport"
)

// Config holds the settings the router needs.
type Config struct {
	// APIKey is the bearer token required under /api.
	APIKey string
	// DefaultFrom is used when a request omits "from".
	DefaultFrom string
	// MaxBodyBytes limits the send request body. Zero disables the limit.
	MaxBodyBytes int64
}

// NewRouter builds the HTTP handler. The transport is shared by every request.
func NewRouter(cfg Config, tr transport.Transport, metrics *Metrics) http.Handler {
	if metrics == nil {
		metrics = NewMetrics()
	}

	h := &handlers{
		transport:    tr,
		defaultFrom:  cfg.DefaultFrom,
		maxBodyBytes: cfg.MaxBodyBytes,
		metrics:      metrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(middleware.GetHead)

	r.Get("/", h.status)
	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(requireAPIKey(cfg.APIKey))
		r.Post("/send", h.send)
	})

	return r
}
