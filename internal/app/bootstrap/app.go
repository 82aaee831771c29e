// Package bootstrap assembles the booking client from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/notary-booking/internal/api/router"
	"github.com/wolfman30/notary-booking/internal/appointments"
	"github.com/wolfman30/notary-booking/internal/availability"
	"github.com/wolfman30/notary-booking/internal/backend"
	"github.com/wolfman30/notary-booking/internal/blackout"
	"github.com/wolfman30/notary-booking/internal/booking"
	appconfig "github.com/wolfman30/notary-booking/internal/config"
	"github.com/wolfman30/notary-booking/internal/dashboard"
	"github.com/wolfman30/notary-booking/internal/events"
	"github.com/wolfman30/notary-booking/internal/identity"
	"github.com/wolfman30/notary-booking/internal/limits"
	"github.com/wolfman30/notary-booking/internal/observability/metrics"
	"github.com/wolfman30/notary-booking/pkg/logging"
)

// App is the wired client: one backend, one bus, and the shared caches the
// booking and admin components read.
type App struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.ClientMetrics
	Bus      *events.Bus
	API      *backend.Client
	Identity *identity.Resolver
	Redis    *redis.Client

	Dates        *availability.DateStore
	Guard        *limits.Guard
	Appointments *appointments.Service
	Services     *booking.ServiceCatalog

	unsubscribe []func()
}

// Options swaps pieces Build would otherwise create.
type Options struct {
	HTTPClient *http.Client
	Redis      *redis.Client
}

// Build wires every component. Nothing is fetched yet; call Load for that.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewClientMetrics(reg)

	clientOpts := []backend.Option{
		backend.WithTimeout(cfg.HTTPTimeout),
		backend.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		backend.WithMetrics(m),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, backend.WithHTTPClient(opts.HTTPClient))
	}
	api := backend.NewClient(cfg.APIBaseURL, cfg.APIToken, logger.Component("backend"), clientOpts...)

	ids := identity.NewResolver(cfg.APIToken, cfg.UserID)
	if id, ok := ids.Current(); ok {
		logger.Info("identity resolved", "user_id", id.UserID, "role", id.Role)
	} else {
		logger.Warn("identity not resolved, daily limit checks disabled")
	}

	rdb := opts.Redis
	if rdb == nil {
		rdb = BuildRedisClient(ctx, cfg, logger, true)
	}
	var cache availability.Cache
	if rdb != nil {
		cache = availability.NewRedisCache(rdb, cfg.UnavailableDatesCacheTTL)
	}

	bus := events.NewBus(logger.Component("events"))
	dates := availability.NewDateStore(api, availability.NewOracle(), cache, logger.Component("availability"))
	guard := limits.NewGuard(api, ids, limits.Options{
		FailOpen: cfg.LimitFailsOpen(),
		Location: cfg.Location(),
	}, logger.Component("limits"))
	appts := appointments.NewService(api, bus, logger.Component("appointments"))
	services := booking.NewServiceCatalog(api, logger.Component("services"))

	app := &App{
		Config:       cfg,
		Logger:       logger,
		Registry:     reg,
		Metrics:      m,
		Bus:          bus,
		API:          api,
		Identity:     ids,
		Redis:        rdb,
		Dates:        dates,
		Guard:        guard,
		Appointments: appts,
		Services:     services,
	}
	app.unsubscribe = append(app.unsubscribe,
		dates.Watch(bus),
		guard.Watch(bus),
		appts.Watch(bus),
		services.Watch(bus),
	)
	return app, nil
}

// Load fetches the unavailable dates and the service list. Each load runs
// even if the other fails; failures leave the previous data in place and
// are returned together for the caller to report.
func (a *App) Load(ctx context.Context) error {
	return errors.Join(a.Dates.Load(ctx), a.Services.Load(ctx))
}

// NewFlow starts a booking session.
func (a *App) NewFlow() *booking.Flow {
	return booking.NewFlow(a.API, a.Dates.Oracle(), a.Guard, booking.Options{
		DaysAhead: a.Config.SuggestDaysAhead,
		Location:  a.Config.Location(),
		Bus:       a.Bus,
		Metrics:   a.Metrics,
		Services:  a.Services,
	}, a.Logger.Component("booking"))
}

// NewWizard starts a blackout-creation session.
func (a *App) NewWizard() *blackout.Wizard {
	return blackout.NewWizard(a.API, a.Identity, a.Bus, a.Logger.Component("blackout"))
}

// NewPoller builds the dashboard stats poller.
func (a *App) NewPoller() *dashboard.Poller {
	return dashboard.NewPoller(a.API, dashboard.Options{
		Interval:    a.Config.DashboardPollInterval,
		MaxFailures: a.Config.DashboardMaxFailures,
		MaxBackoff:  a.Config.DashboardMaxBackoff,
		Metrics:     a.Metrics,
	}, a.Logger.Component("dashboard"))
}

// StatusHandler serves health, metrics and the poller snapshot.
func (a *App) StatusHandler(p *dashboard.Poller) http.Handler {
	cfg := &router.Config{
		Logger:             a.Logger.Component("status"),
		Dates:              a.Dates,
		MetricsHandler:     promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: a.Config.CORSAllowedOrigins,
		RefreshRPS:         a.Config.RefreshRPS,
		RefreshBurst:       a.Config.RefreshBurst,
	}
	if p != nil {
		cfg.Poller = p
	}
	return router.New(cfg)
}

// Close drops subscriptions and the Redis connection.
func (a *App) Close() error {
	for _, unsub := range a.unsubscribe {
		unsub()
	}
	a.unsubscribe = nil
	if a.Redis != nil {
		return a.Redis.Close()
	}
	return nil
}
