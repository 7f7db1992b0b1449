package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"gitea.jw6.us/james/calsync/internal/api"
	"gitea.jw6.us/james/calsync/internal/auth"
	"gitea.jw6.us/james/calsync/internal/config"
	"gitea.jw6.us/james/calsync/internal/http/ratelimit"
	"gitea.jw6.us/james/calsync/internal/metrics"
	"gitea.jw6.us/james/calsync/internal/store"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter wires the OAuth, sync and event routes under cfg.BasePath.
func NewRouter(cfg *config.Config, health HealthChecker, authService *auth.Service, apiHandler *api.Handler) http.Handler {
	r := chi.NewRouter()

	// OAuth endpoints: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	// Sync hits the providers; 1 request per second, burst of 5
	syncRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(1), 5, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := health.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	routes := func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authRateLimiter.Middleware())
			r.Get("/google-auth", authService.BeginAuth(store.SourceGoogle))
			r.Get("/outlook-auth", authService.BeginAuth(store.SourceOutlook))
			r.Get("/callback", authService.HandleCallback)
			if cfg.Tokens.Delivery == config.TokenDeliveryHandoff {
				r.Post("/token", authService.RedeemHandoff)
			}
		})

		r.With(syncRateLimiter.Middleware()).Post("/sync", apiHandler.Sync)

		r.Get("/events", apiHandler.ListEvents)
		r.Get("/events.ics", apiHandler.ExportICS)
	}

	if cfg.BasePath == "" {
		r.Group(routes)
	} else {
		r.Route(cfg.BasePath, routes)
	}

	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
