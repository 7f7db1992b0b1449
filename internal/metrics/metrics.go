package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKey string

const (
	routeLabelKey   ctxKey = "metrics_route"
	requestIDCtxKey ctxKey = "metrics_request_id"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calsync_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calsync_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_sync_runs_total",
		Help: "Sync runs by provider and outcome.",
	}, []string{"provider", "result"})

	syncedEvents = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calsync_synced_events",
		Help:    "Number of events written per successful sync.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"provider"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calsync_provider_request_duration_seconds",
		Help:    "Latency of calls to external calendar providers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation", "result"})

	tokenExchangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_token_exchanges_total",
		Help: "OAuth authorization code exchanges by provider and outcome.",
	}, []string{"provider", "result"})
)

// Middleware records request metrics and enriches the context with labels for downstream instrumentation.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())

			ctx := context.WithValue(r.Context(), routeLabelKey, r.URL.Path)
			if reqID != "" {
				ctx = context.WithValue(ctx, requestIDCtxKey, reqID)
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			r = r.WithContext(ctx)
			next.ServeHTTP(ww, r)

			// chi fills in the pattern while routing, so read it afterwards.
			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			method := r.Method
			duration := time.Since(start).Seconds()
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(method, route).Inc()
			httpRequestDuration.WithLabelValues(method, route, statusCode).Observe(duration)
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation, associating it with request labels when available.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	route := routeFromContext(ctx)
	dbLatency.WithLabelValues(operation, route).Observe(time.Since(start).Seconds())
}

// ObserveSync counts a finished sync run. count is only recorded for successful runs.
func ObserveSync(provider string, err error, count int) {
	if err != nil {
		syncRunsTotal.WithLabelValues(provider, "error").Inc()
		return
	}
	syncRunsTotal.WithLabelValues(provider, "ok").Inc()
	syncedEvents.WithLabelValues(provider).Observe(float64(count))
}

// ObserveProviderCall records the latency of a provider API call started at start.
func ObserveProviderCall(provider, operation string, start time.Time, err error) {
	providerRequestDuration.WithLabelValues(provider, operation, resultLabel(err)).Observe(time.Since(start).Seconds())
}

// ObserveTokenExchange counts an authorization code exchange.
func ObserveTokenExchange(provider string, err error) {
	tokenExchangesTotal.WithLabelValues(provider, resultLabel(err)).Inc()
}

// RequestIDFromContext extracts the request ID stored by the metrics middleware.
func RequestIDFromContext(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDCtxKey).(string); ok {
		return reqID
	}
	return ""
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeLabelKey).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
