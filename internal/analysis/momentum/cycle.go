package momentum

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"alphahunter/internal/cache"
	"alphahunter/internal/errors"
	"alphahunter/internal/logging"
	"alphahunter/internal/models"
	"alphahunter/internal/performance"
	"alphahunter/internal/provider"
)

// HistorySource is the part of the market data provider the cycle needs.
type HistorySource interface {
	History(ctx context.Context, symbol string, lookback int, adjust models.AdjustMode) (models.HistoricalSeries, error)
}

// CycleOptions configures a Cycle.
type CycleOptions struct {
	Key      string
	TTL      time.Duration
	Workers  int
	Lookback int
	Adjust   models.AdjustMode
}

// Cycle serves the frozen rank table from the cache. A table stays in use
// until the next Refresh, even across days; readers get a stale flag.
type Cycle struct {
	cache  cache.Cache
	source HistorySource
	ranker *Ranker
	opts   CycleOptions
	logger zerolog.Logger
}

// NewCycle creates a cycle.
func NewCycle(c cache.Cache, source HistorySource, ranker *Ranker, opts CycleOptions, logger zerolog.Logger) *Cycle {
	if opts.Key == "" {
		opts.Key = "momentum:rank_table"
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.Workers <= 0 {
		opts.Workers = 30
	}
	if opts.Lookback < ranker.MinCandles() {
		opts.Lookback = ranker.MinCandles() + 30
	}
	return &Cycle{
		cache:  c,
		source: source,
		ranker: ranker,
		opts:   opts,
		logger: logging.WithOperation(logger, "momentum_cycle"),
	}
}

func (c *Cycle) load(ctx context.Context, key string) (*models.RankTable, error) {
	entry, err := cache.GetDated[models.RankTable](ctx, c.cache, key)
	if err != nil {
		return nil, err
	}
	table := entry.Value
	return &table, nil
}

// Current returns the cached table. stale is true when it was generated for
// a day other than day. Without a cached table it returns ErrRankUnavailable.
func (c *Cycle) Current(ctx context.Context, day time.Time) (*models.RankTable, bool, error) {
	table, err := c.load(ctx, c.opts.Key)
	if err != nil {
		if errors.Is(err, errors.ErrCacheMiss) {
			return nil, false, errors.ErrRankUnavailable
		}
		return nil, false, errors.Wrap(err, "loading rank table")
	}

	stale := !table.IsFor(day)
	if stale {
		c.logger.Warn().
			Time("generated", table.GeneratedDate).
			Time("day", day).
			Msg("Momentum ranking is stale")
	}
	return table, stale, nil
}

// Refresh fetches history for the universe, ranks it for day and stores the
// result. The table it replaces becomes the previous cycle for Delta and
// History; refreshing twice on one day keeps the same previous cycle.
func (c *Cycle) Refresh(ctx context.Context, day time.Time, universe []string, sectors map[string]string) (*models.RankTable, error) {
	prevKey := c.opts.Key + ":prev"

	current, err := c.load(ctx, c.opts.Key)
	if err != nil && !errors.Is(err, errors.ErrCacheMiss) {
		return nil, errors.Wrap(err, "loading rank table")
	}

	previous := current
	if current != nil && current.IsFor(day) {
		previous, err = c.load(ctx, prevKey)
		if err != nil && !errors.Is(err, errors.ErrCacheMiss) {
			return nil, errors.Wrap(err, "loading previous rank table")
		}
	}

	// a table for the next session must see the one that just closed
	fetchCtx := provider.WithAsOf(ctx, day)
	result := performance.FetchAll(fetchCtx, c.opts.Workers, universe, func(ctx context.Context, symbol string) (models.HistoricalSeries, error) {
		return c.source.History(ctx, symbol, c.opts.Lookback, c.opts.Adjust)
	})
	c.logger.Info().
		Int("universe", len(universe)).
		Int("fetched", len(result.Values)).
		Int("failed", result.Failed()).
		Int("skipped", len(result.Skipped)).
		Dur("duration", result.Duration).
		Msg("Fetched history for ranking")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(result.Values) == 0 {
		return nil, errors.NewDataError("history", "", fmt.Sprintf("no history for %d symbols", len(universe)), nil)
	}

	table := c.ranker.Rank(day, result.Values, sectors, previous)

	if current != nil && !current.IsFor(day) {
		if err := c.save(ctx, prevKey, current); err != nil {
			return nil, err
		}
	}
	if err := c.save(ctx, c.opts.Key, table); err != nil {
		return nil, err
	}

	c.logger.Info().
		Int("ranked", len(table.Ranks)).
		Int("sectors", len(table.Sectors)).
		Float64("breadth", table.Breadth).
		Msg("Momentum ranking refreshed")
	return table, nil
}

func (c *Cycle) save(ctx context.Context, key string, table *models.RankTable) error {
	entry := cache.Dated[models.RankTable]{Value: *table, GeneratedDate: table.GeneratedDate}
	if err := cache.PutDated(ctx, c.cache, key, entry, c.opts.TTL); err != nil {
		return errors.Wrap(err, "saving rank table")
	}
	return nil
}
