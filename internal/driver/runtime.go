package driver

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"alphahunter/internal/analysis/momentum"
	"alphahunter/internal/analysis/scoring"
	"alphahunter/internal/cache"
	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/metrics"
	"alphahunter/internal/models"
	"alphahunter/internal/notify"
	"alphahunter/internal/performance"
	"alphahunter/internal/provider"
	"alphahunter/internal/resilience"
	"alphahunter/internal/store"
	"alphahunter/internal/trading"
)

// Runtime owns the long-lived resources behind a Driver.
type Runtime struct {
	Driver   *Driver
	Store    store.PositionStore
	Cache    cache.Cache
	Provider *provider.Resilient
	Metrics  *metrics.Recorder
}

// Build wires a driver from cfg: the CSV provider behind the resilient
// wrapper, the configured cache and store, the notifier chain and the
// recommendation tracker.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	loc := cfg.Location()
	rec := metrics.New()

	st, err := store.Open(ctx, cfg.Store, loc)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	c := cache.New(cfg.Cache)

	data := provider.NewResilient(
		provider.NewCSVProvider(cfg.Data.Dir, loc),
		c,
		provider.OptionsFromConfig(cfg),
		logger,
		rec,
	)

	cycle := momentum.NewCycle(c, data, momentum.NewRanker(cfg.Momentum), momentum.CycleOptions{
		Key:      cfg.Momentum.CacheKey,
		Workers:  cfg.Data.MaxWorkers,
		Lookback: cfg.Data.HistoryDays,
		Adjust:   models.AdjustMode(cfg.Data.Adjust),
	}, logger)

	calendar := NewCalendar(cfg)
	d := New(cfg, Deps{
		Data:     data,
		Cycle:    cycle,
		Pipeline: scoring.NewPipeline(cfg, data, logger),
		Engine:   trading.NewRiskEngine(st, cfg.Risk, calendar, logger, rec),
		Store:    st,
		Notifier: notify.New(cfg.Notifications, cfg.Monitor.AlertCooldown, logger),
		Metrics:  rec,
		Calendar: calendar,
		Tracker:  performance.NewTracker(st, data, cfg.Tracking, cfg.Data.MaxWorkers, models.AdjustMode(cfg.Data.Adjust), logger),
	}, logger)

	return &Runtime{Driver: d, Store: st, Cache: c, Provider: data, Metrics: rec}, nil
}

// Health builds a monitor over the store, the cache and the provider
// breaker.
func (r *Runtime) Health() *resilience.HealthMonitor {
	m := resilience.NewHealthMonitor(5 * time.Second)
	m.RegisterComponent("store", resilience.PingHealthCheck("store", time.Second, r.Store.Ping))
	if p, ok := r.Cache.(interface{ Ping(context.Context) error }); ok {
		m.RegisterComponent("cache", resilience.PingHealthCheck("cache", 500*time.Millisecond, p.Ping))
	}
	m.RegisterComponent("market-data", resilience.BreakerHealthCheck("market-data", func() int {
		return int(r.Provider.BreakerState())
	}))
	return m
}

// Close releases the store.
func (r *Runtime) Close() error {
	return r.Store.Close()
}
