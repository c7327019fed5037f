// Package httpapi exposes alert ingestion, listing, dashboard, admin login,
// and operational endpoints over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"alertdesk/internal/config"
	"alertdesk/internal/domain"
	"alertdesk/internal/gate"
	"alertdesk/internal/metrics"
	"alertdesk/internal/normalize"
	"alertdesk/internal/store"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Ingestor normalizes and persists alerts for the ingestion endpoints.
type Ingestor interface {
	IngestGeneric(ctx context.Context, request normalize.GenericRequest) (domain.Alert, error)
	IngestDoSPacket(ctx context.Context, payload normalize.Payload) (domain.Alert, error)
	IngestFraudDetection(ctx context.Context, payload normalize.Payload) (domain.Alert, error)
}

// DashboardBuilder produces the aggregated dashboard view.
type DashboardBuilder interface {
	BuildDashboard(ctx context.Context) domain.DashboardView
}

// Lister reads stored alerts.
type Lister interface {
	List(ctx context.Context, filter store.Filter) ([]domain.Alert, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Ingestor  Ingestor
	Alerts    Lister
	Dashboard DashboardBuilder
	Gate      *gate.Gate
	Ready     func() bool
	Logger    *slog.Logger
}

// API holds handlers and their settings.
type API struct {
	cfg  config.HTTPConfig
	deps Deps
}

// NewRouter builds the chi router; the gate runs before routing on every request.
// Params: HTTP settings, admin path settings, and handler dependencies.
// Returns: root HTTP handler.
func NewRouter(cfg config.HTTPConfig, gateCfg config.GateConfig, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Ready == nil {
		deps.Ready = func() bool { return true }
	}
	api := &API{cfg: cfg, deps: deps}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(accessLog(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(deps.Gate.Middleware)

	r.Get(cfg.HealthPath, api.health)
	r.Get(cfg.ReadyPath, api.ready)
	r.Method(http.MethodGet, cfg.MetricsPath, metrics.Handler())

	// Listing stays unprefixed; typed listings under /api are gated.
	r.Get("/alerts", api.listAlerts)
	for _, prefix := range []string{"", "/api"} {
		r.Post(prefix+"/alerts", api.createAlert)
		r.Post(prefix+"/dos-alert", api.createDoSAlert)
		r.Post(prefix+"/fraud-alert", api.createFraudAlert)
		r.Get(prefix+"/dashboard", api.dashboard)
	}
	r.Get("/api/fraud-alerts", api.typedFeed(domain.AlertTypeFraud))
	r.Get("/api/dos-alerts", api.typedFeed(domain.AlertTypeDoS))

	r.Get(gateCfg.LoginPath, deps.Gate.LoginStatus)
	r.Post(gateCfg.LoginPath, deps.Gate.Login)
	r.Post(gateCfg.AdminPrefix+"/logout", deps.Gate.Logout)
	r.Get(gateCfg.AdminPrefix, func(writer http.ResponseWriter, request *http.Request) {
		http.Redirect(writer, request, gateCfg.AdminPrefix+"/dashboard", http.StatusFound)
	})
	r.Get(gateCfg.AdminPrefix+"/dashboard", api.dashboard)

	r.NotFound(func(writer http.ResponseWriter, _ *http.Request) {
		writeError(writer, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(writer http.ResponseWriter, _ *http.Request) {
		writeError(writer, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// accessLog logs one line per request and records latency by route pattern.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			started := time.Now()
			wrapped := chimiddleware.NewWrapResponseWriter(writer, request.ProtoMajor)
			next.ServeHTTP(wrapped, request)

			status := wrapped.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(request.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.HTTPRequestDuration.WithLabelValues(request.Method, route, strconv.Itoa(status)).Observe(time.Since(started).Seconds())
			logger.Debug("http request",
				"method", request.Method,
				"path", request.URL.Path,
				"status", status,
				"duration_ms", time.Since(started).Milliseconds(),
				"request_id", chimiddleware.GetReqID(request.Context()),
			)
		})
	}
}
