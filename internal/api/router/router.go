package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/notary-booking/internal/dashboard"
	httpmiddleware "github.com/wolfman30/notary-booking/internal/http/middleware"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

// StatsPoller is the dashboard poller as the router sees it.
type StatsPoller interface {
	Snapshot() dashboard.Snapshot
	Refresh(ctx context.Context) error
}

// DatesStatus reports the unavailable-date cache health.
type DatesStatus interface {
	Stale() bool
	LoadedAt() time.Time
}

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Poller             StatsPoller
	Dates              DatesStatus
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Budget for POST /dashboard/refresh per client IP.
	RefreshRPS   float64
	RefreshBurst int
}

// New creates the local status server routes.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(httpmiddleware.CORSOptions{Origins: cfg.CORSAllowedOrigins}))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", health(cfg))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.Poller != nil {
		r.Route("/dashboard", func(d chi.Router) {
			d.Get("/", dashboardSnapshot(cfg.Poller))
			rps, burst := cfg.RefreshRPS, cfg.RefreshBurst
			if rps <= 0 {
				rps, burst = 0.2, 2
			}
			d.With(httpmiddleware.RateLimit(rps, burst)).Post("/refresh", dashboardRefresh(cfg.Poller, cfg.Logger))
		})
	}
	return r
}

func health(cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}
		if cfg.Poller != nil {
			resp["dashboard"] = cfg.Poller.Snapshot().State.String()
		}
		if cfg.Dates != nil {
			resp["unavailable_dates_stale"] = cfg.Dates.Stale()
			if at := cfg.Dates.LoadedAt(); !at.IsZero() {
				resp["unavailable_dates_loaded_at"] = at.UTC().Format(time.RFC3339)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func dashboardSnapshot(p StatsPoller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, p.Snapshot())
	}
}

func dashboardRefresh(p StatsPoller, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.Refresh(r.Context()); err != nil {
			if logger != nil {
				logger.Warn("dashboard refresh failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
			}
			writeJSON(w, http.StatusBadGateway, p.Snapshot())
			return
		}
		writeJSON(w, http.StatusOK, p.Snapshot())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
