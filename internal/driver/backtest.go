package driver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"alphahunter/internal/errors"
	"alphahunter/internal/models"
	"alphahunter/internal/performance"
	"alphahunter/internal/provider"
	"alphahunter/internal/trading"
)

// Backtest replays the scan and the exit rules over [start, end] for a
// sample of the current universe.
func (d *Driver) Backtest(ctx context.Context, start, end time.Time) (*trading.BacktestResult, error) {
	loc := d.calendar.Location()
	start, end = models.DayStart(start.In(loc)), models.DayStart(end.In(loc))
	if end.Before(start) {
		return nil, errors.NewValidationError("range", fmt.Sprintf("%s..%s", start.Format("2006-01-02"), end.Format("2006-01-02")), "end must not precede start")
	}

	snaps, err := d.data.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}
	symbols := sampleUniverse(snaps, d.cfg.Backtest.SampleSize)

	// history ends with the last replayed session
	asOf := d.calendar.NextTradingDay(end)
	hctx := provider.WithAsOf(ctx, asOf)
	lookback := d.cfg.Data.HistoryDays + d.calendar.TradingDaysBetween(start, asOf) + 1
	histories := performance.FetchAll(hctx, d.cfg.Data.MaxWorkers, symbols, func(ctx context.Context, symbol string) (models.HistoricalSeries, error) {
		return d.data.History(ctx, symbol, lookback, d.adjust())
	})
	if len(histories.Values) == 0 {
		return nil, fmt.Errorf("%w: no history for the %d sampled symbols", errors.ErrDataUnavailable, len(symbols))
	}
	if histories.Failed() > 0 {
		d.logger.Warn().Int("failed", histories.Failed()).Msg("Replaying without some symbols")
	}

	in := trading.BacktestInput{
		Series:  histories.Values,
		Sectors: provider.Sectors(snaps),
		Names:   make(map[string]string, len(snaps)),
		Start:   start,
		End:     end,
	}
	for _, s := range snaps {
		in.Names[s.Symbol] = s.Name
	}
	if index, err := d.data.History(hctx, d.cfg.Regime.IndexSymbol, lookback, models.AdjustNone); err != nil {
		d.logger.Warn().Err(err).Str("index", d.cfg.Regime.IndexSymbol).Msg("Replaying without the index regime")
	} else {
		in.Index = index.Candles
	}

	return trading.NewBacktester(d.cfg, d.calendar, d.logger).Run(ctx, in)
}

// sampleUniverse picks n symbols spread evenly over the sorted universe, or
// all of them when n is not positive.
func sampleUniverse(snaps []models.Snapshot, n int) []string {
	symbols := provider.Universe(snaps)
	sort.Strings(symbols)
	if n <= 0 || n >= len(symbols) {
		return symbols
	}
	out := make([]string, 0, n)
	step := float64(len(symbols)) / float64(n)
	for i := 0; i < n; i++ {
		out = append(out, symbols[int(float64(i)*step)])
	}
	return out
}
