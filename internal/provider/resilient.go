package provider

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/cache"
	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/logging"
	"alphahunter/internal/metrics"
	"alphahunter/internal/models"
	"alphahunter/pkg/utils"
)

// Options configures the resilient wrapper.
type Options struct {
	Retry           utils.RetryConfig
	RateLimit       float64 // requests per second, <= 0 disables
	RateBurst       int
	BreakerName     string
	BreakerFailures uint32
	BreakerCooldown time.Duration
	CacheTTL        time.Duration
	Location        *time.Location
	Now             func() time.Time
}

// OptionsFromConfig builds wrapper options from the data and cache sections.
func OptionsFromConfig(cfg *config.Config) Options {
	retry := utils.DefaultRetryConfig()
	if cfg.Data.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Data.MaxRetries
	}
	if cfg.Data.RetryDelay > 0 {
		retry.InitialDelay = cfg.Data.RetryDelay
	}
	if cfg.Data.Timeout > 0 {
		retry.AttemptTimeout = cfg.Data.Timeout
	}

	failures := uint32(5)
	if cfg.Data.BreakerFailures > 0 {
		failures = uint32(cfg.Data.BreakerFailures)
	}

	return Options{
		Retry:           retry,
		RateLimit:       cfg.Data.RateLimit,
		RateBurst:       cfg.Data.RateBurst,
		BreakerName:     "market-data",
		BreakerFailures: failures,
		BreakerCooldown: cfg.Data.BreakerCooldown,
		CacheTTL:        cfg.Cache.TTL,
		Location:        cfg.Location(),
	}
}

// Resilient wraps a MarketData source with per-call timeout, bounded retry,
// a token-bucket limit, a circuit breaker and a dated history cache. History
// is truncated before the as-of day of the context, or before the current
// day when the caller set none.
type Resilient struct {
	inner   MarketData
	opts    Options
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   cache.Cache
	logger  zerolog.Logger
	metrics *metrics.Recorder
}

// NewResilient wraps inner. c and rec may be nil.
func NewResilient(inner MarketData, c cache.Cache, opts Options, logger zerolog.Logger, rec *metrics.Recorder) *Resilient {
	if opts.Location == nil {
		opts.Location = time.FixedZone("CST", 8*3600)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BreakerName == "" {
		opts.BreakerName = "market-data"
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = retryable
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = int(math.Max(1, opts.RateLimit))
	}

	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    opts.BreakerName,
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// a symbol that does not exist says nothing about provider health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errors.ErrSymbolNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			rec.BreakerState(name, int(to))
		},
	})

	return &Resilient{
		inner:   inner,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		cache:   c,
		logger:  logging.WithOperation(logger, "market_data"),
		metrics: rec,
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, errors.ErrSymbolNotFound),
		errors.Is(err, errors.ErrCircuitOpen),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// BreakerState exposes the breaker state for health reporting.
func (r *Resilient) BreakerState() gobreaker.State {
	return r.breaker.State()
}

func call[T any](ctx context.Context, r *Resilient, op, symbol string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := utils.RetryWithResult(ctx, r.opts.Retry, func(ctx context.Context) (T, error) {
		var zero T
		if err := r.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("%w: %v", errors.ErrRateLimited, err)
		}
		out, err := r.breaker.Execute(func() (interface{}, error) {
			return fn(ctx)
		})
		switch {
		case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
			return zero, errors.NewDataError(op, symbol, "provider unavailable", errors.ErrCircuitOpen)
		case err != nil && ctx.Err() == context.DeadlineExceeded:
			return zero, errors.NewDataError(op, symbol, err.Error(), errors.ErrTimeout)
		case err != nil:
			return zero, err
		}
		return out.(T), nil
	})

	d := time.Since(start)
	logging.LogProviderCall(r.logger, op, symbol, d, err)
	r.metrics.ProviderCall(op, d, err)
	return v, err
}

func (r *Resilient) Snapshot(ctx context.Context) ([]models.Snapshot, error) {
	return call(ctx, r, "snapshot", "", r.inner.Snapshot)
}

func (r *Resilient) IndexQuote(ctx context.Context, symbol string) (models.IndexQuote, error) {
	return call(ctx, r, "index", symbol, func(ctx context.Context) (models.IndexQuote, error) {
		return r.inner.IndexQuote(ctx, symbol)
	})
}

func (r *Resilient) Confirmation(ctx context.Context, symbol string) (models.Confirmation, error) {
	return call(ctx, r, "confirmation", symbol, func(ctx context.Context) (models.Confirmation, error) {
		return r.inner.Confirmation(ctx, symbol)
	})
}

// History returns the series truncated before the as-of day (see WithAsOf),
// served from the dated cache when it already holds a copy for that day.
func (r *Resilient) History(ctx context.Context, symbol string, lookback int, adjust models.AdjustMode) (models.HistoricalSeries, error) {
	today := AsOf(ctx, r.opts.Now()).In(r.opts.Location)
	key := cache.DayKey("history", fmt.Sprintf("%s:%s:%d", symbol, adjust, lookback), today)

	if r.cache != nil {
		cached, err := cache.GetDated[models.HistoricalSeries](ctx, r.cache, key)
		switch {
		case err == nil && cached.IsFor(today):
			return indicators.TruncateSeries(cached.Value, today), nil
		case err != nil && !errors.Is(err, errors.ErrCacheMiss):
			r.logger.Warn().Err(err).Str("symbol", symbol).Msg("History cache read failed")
		}
	}

	series, err := call(ctx, r, "history", symbol, func(ctx context.Context) (models.HistoricalSeries, error) {
		return r.inner.History(ctx, symbol, lookback, adjust)
	})
	if err != nil {
		return series, err
	}
	series = indicators.TruncateSeries(series, today)

	if r.cache != nil {
		entry := cache.Dated[models.HistoricalSeries]{Value: series, GeneratedDate: today}
		if err := cache.PutDated(ctx, r.cache, key, entry, r.opts.CacheTTL); err != nil {
			r.logger.Warn().Err(err).Str("symbol", symbol).Msg("History cache write failed")
		}
	}
	return series, nil
}
