package chi

import (
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodsearch/internal/metrics"
)

// RouterConfig holds cross-cutting HTTP settings.
type RouterConfig struct {
	APIKeys     []string
	CORSOrigins []string
}

// NewRouter mounts the handlers behind the middleware chain:
// recoverer, request ID, request log, CORS, auth, metrics.
func NewRouter(s *Server, cfg RouterConfig) http.Handler {
	r := gochi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", apiKeyHeader, "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-Embedding-Tokens"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(BearerAuthMiddleware(cfg.APIKeys))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/", s.Info)
	r.Post("/search", s.Search)
	r.Post("/ask", s.Ask)
	r.Post("/product-ids", s.ProductIDs)
	r.Get("/product-ids", s.ProductIDsQuery)
	r.Get("/variant-ids", s.VariantIDs)
	r.Get("/usage", s.Usage)
	r.Get("/health", s.HealthCheck)
	r.Get("/ready", s.Ready)
	r.Get("/metrics", s.Metrics)

	s.logger.Debug("routes mounted", zap.Strings("cors_origins", cfg.CORSOrigins))
	return r
}
