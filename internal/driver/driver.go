// Package driver runs the scan, monitor and ranking jobs against the market
// data provider and publishes their results.
package driver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/analysis/momentum"
	"alphahunter/internal/analysis/scoring"
	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/logging"
	"alphahunter/internal/metrics"
	"alphahunter/internal/models"
	"alphahunter/internal/notify"
	"alphahunter/internal/performance"
	"alphahunter/internal/provider"
	"alphahunter/internal/resilience"
	"alphahunter/internal/store"
	"alphahunter/internal/trading"
)

// indexLookback is the number of daily index candles fetched for the regime
// check.
const indexLookback = 60

// Deps are the collaborators a Driver coordinates.
type Deps struct {
	Data     provider.MarketData
	Cycle    *momentum.Cycle
	Pipeline *scoring.Pipeline
	Engine   *trading.RiskEngine
	Store    store.PositionStore
	Notifier notify.Notifier
	Metrics  *metrics.Recorder
	Calendar *resilience.SessionCalendar
	Tracker  *performance.Tracker
}

// Driver runs one job per call. It keeps no state between calls beyond what
// its collaborators persist.
type Driver struct {
	cfg      *config.Config
	data     provider.MarketData
	cycle    *momentum.Cycle
	pipeline *scoring.Pipeline
	engine   *trading.RiskEngine
	store    store.PositionStore
	notifier notify.Notifier
	rec      *metrics.Recorder
	calendar *resilience.SessionCalendar
	tracker  *performance.Tracker
	logger   zerolog.Logger
}

// NewCalendar builds the session calendar for the configured market location
// with any extra holidays applied.
func NewCalendar(cfg *config.Config) *resilience.SessionCalendar {
	calendar := resilience.NewSessionCalendar(cfg.Location())
	for _, d := range cfg.HolidayDates() {
		calendar.AddHoliday(d)
	}
	return calendar
}

// New creates a driver. A nil Notifier publishes nothing; a nil Calendar
// uses the market location of cfg. A nil Tracker records nothing.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Driver {
	if deps.Notifier == nil {
		deps.Notifier = notify.NewMulti()
	}
	if deps.Calendar == nil {
		deps.Calendar = NewCalendar(cfg)
	}
	return &Driver{
		cfg:      cfg,
		data:     deps.Data,
		cycle:    deps.Cycle,
		pipeline: deps.Pipeline,
		engine:   deps.Engine,
		store:    deps.Store,
		notifier: deps.Notifier,
		rec:      deps.Metrics,
		calendar: deps.Calendar,
		tracker:  deps.Tracker,
		logger:   logging.WithOperation(logger, "driver"),
	}
}

// Calendar returns the session calendar.
func (d *Driver) Calendar() *resilience.SessionCalendar {
	return d.calendar
}

// Engine returns the risk engine for manual position operations.
func (d *Driver) Engine() *trading.RiskEngine {
	return d.engine
}

// RankDay returns the trading day a ranking computed at now serves. After
// the close, or on a closed day, that is the next trading day, so the
// session just finished is part of the ranked history.
func (d *Driver) RankDay(now time.Time) time.Time {
	now = now.In(d.calendar.Location())
	if !d.calendar.IsTradingDay(now) || now.Hour() >= 15 {
		return d.calendar.NextTradingDay(now)
	}
	return models.DayStart(now)
}

// UpdateRanks refreshes the frozen momentum table from the current universe.
func (d *Driver) UpdateRanks(ctx context.Context, now time.Time) (*models.RankTable, error) {
	snaps, err := d.data.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}
	return d.refresh(ctx, d.RankDay(now), snaps)
}

func (d *Driver) refresh(ctx context.Context, day time.Time, snaps []models.Snapshot) (*models.RankTable, error) {
	table, err := d.cycle.Refresh(ctx, day, provider.Universe(snaps), provider.Sectors(snaps))
	if err != nil {
		return nil, errors.Wrap(err, "refresh ranks")
	}
	d.logger.Info().
		Time("day", day).
		Int("ranked", len(table.Ranks)).
		Int("sectors", len(table.Sectors)).
		Float64("breadth", table.Breadth).
		Msg("Momentum ranking updated")
	return table, nil
}

// Scan runs the candidate pipeline at now and publishes the result. With
// auto-open enabled, accepted candidates are bought at their scan price.
func (d *Driver) Scan(ctx context.Context, now time.Time) (*scoring.ScanResult, error) {
	now = now.In(d.calendar.Location())

	snaps, err := d.data.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}

	table, stale, err := d.cycle.Current(ctx, now)
	if errors.Is(err, errors.ErrRankUnavailable) {
		d.logger.Warn().Msg("No momentum ranking cached, ranking inline")
		table, err = d.refresh(ctx, models.DayStart(now), snaps)
		stale = false
	}
	if err != nil {
		return nil, err
	}

	indexSymbol := d.cfg.Regime.IndexSymbol
	quote, err := d.data.IndexQuote(ctx, indexSymbol)
	if err != nil {
		return nil, errors.Wrap(err, "index quote")
	}
	var indexCandles []models.Candle
	if series, err := d.data.History(ctx, indexSymbol, indexLookback, models.AdjustNone); err != nil {
		// a short index history puts the pipeline to sleep
		d.logger.Warn().Err(err).Str("index", indexSymbol).Msg("Index history unavailable")
	} else {
		indexCandles = series.Candles
	}

	lookback := d.cfg.Kelly.LookbackDays
	if lookback <= 0 {
		lookback = 30
	}
	trades, err := d.store.ListTrades(ctx, models.DayStart(now).AddDate(0, 0, -lookback))
	if err != nil {
		return nil, errors.Wrap(err, "list trades")
	}

	result, err := d.pipeline.Run(ctx, scoring.ScanInput{
		Date:         now,
		Snapshots:    snaps,
		Ranks:        table,
		RankStale:    stale,
		Index:        quote,
		IndexHistory: indexCandles,
		Trades:       trades,
	})
	if err != nil {
		return nil, err
	}

	d.record(result)
	if !result.Sleep {
		if _, err := d.tracker.Record(ctx, result.Date, result.Candidates); err != nil {
			d.logger.Error().Err(err).Str("scan_id", result.ID).Msg("Recording recommendations failed")
		}
	}
	if err := d.notifier.PublishCandidates(ctx, result.Report()); err != nil {
		d.logger.Error().Err(err).Str("scan_id", result.ID).Msg("Publishing candidates failed")
	}

	if d.cfg.Monitor.AutoOpen && !result.Sleep {
		d.autoOpen(ctx, result)
	}
	return result, nil
}

func (d *Driver) record(result *scoring.ScanResult) {
	d.rec.ObserveScan(result.Duration)
	for _, s := range result.Stages {
		d.rec.StageDropped(s.Stage, s.Dropped)
	}
	for _, c := range result.Candidates {
		d.rec.Candidate(string(c.Grade))
	}
}

func (d *Driver) autoOpen(ctx context.Context, result *scoring.ScanResult) {
	logger := logging.WithScan(d.logger, result.ID)
	for _, c := range result.Candidates {
		if c.Quantity <= 0 {
			continue
		}
		var candles []models.Candle
		if series, err := d.data.History(ctx, c.Symbol, d.cfg.Risk.ATRPeriod+10, d.adjust()); err == nil {
			candles = series.Candles
		}
		upd, err := d.engine.Open(ctx, trading.OpenRequest{
			Symbol:   c.Symbol,
			Name:     c.Name,
			Price:    c.Price,
			Quantity: c.Quantity,
			Grade:    c.Grade,
			Strategy: string(c.Category),
			Note:     "auto " + result.ID,
			Candles:  candles,
			At:       result.Date,
		})
		if err != nil {
			logger.Warn().Err(err).Str("symbol", c.Symbol).Msg("Auto-open skipped")
			continue
		}
		logger.Info().
			Str("symbol", c.Symbol).
			Int("quantity", upd.Position.Quantity).
			Float64("stop", upd.Position.StopPrice).
			Msg("Auto-opened position")
	}
}

func (d *Driver) adjust() models.AdjustMode {
	return models.AdjustMode(d.cfg.Data.Adjust)
}

// Holding is one open position marked to the latest price.
type Holding struct {
	Position models.Position `json:"position"`
	Price    float64         `json:"price"`
	MA5      float64         `json:"ma5"`
	PnLPct   float64         `json:"pnl_pct"`
	Value    float64         `json:"value"`
	Sellable bool            `json:"sellable"`
}

// CheckReport is the result of a monitor pass or the daily check.
type CheckReport struct {
	At        time.Time          `json:"at"`
	Daily     bool               `json:"daily"`
	Holdings  []Holding          `json:"holdings"`
	Exits     *models.ExitReport `json:"exits"`
	Unpriced  []string           `json:"unpriced,omitempty"` // held but missing from the snapshot
	Stats     trading.TradeStats `json:"stats"`
	MarketPnL float64            `json:"market_pnl"`

	Tracking *performance.UpdateReport `json:"tracking,omitempty"`
}

// Monitor evaluates every open position against the current snapshot and
// publishes the exit signals.
func (d *Driver) Monitor(ctx context.Context, now time.Time) (*CheckReport, error) {
	return d.check(ctx, now, false)
}

// DailyCheck is the end-of-day pass over closing prices. Besides the exit
// signals it carries the trailing trade statistics and refreshes the
// returns of past recommendations.
func (d *Driver) DailyCheck(ctx context.Context, now time.Time) (*CheckReport, error) {
	report, err := d.check(ctx, now, true)
	if err != nil {
		return nil, err
	}
	lookback := d.cfg.Kelly.LookbackDays
	if lookback <= 0 {
		lookback = 30
	}
	stats, err := d.engine.Stats(ctx, models.DayStart(report.At).AddDate(0, 0, -lookback))
	if err != nil {
		return nil, errors.Wrap(err, "trade stats")
	}
	report.Stats = stats

	if report.Tracking, err = d.Track(ctx, report.At); err != nil {
		d.logger.Error().Err(err).Msg("Tracking recommendations failed")
	}

	n := notify.Notification{
		Type:      notify.NotificationInfo,
		Title:     "Daily check",
		Message:   fmt.Sprintf("%d positions, %d signals, unrealized %.2f", len(report.Holdings), report.Exits.Len(), report.MarketPnL),
		Data:      map[string]interface{}{"holdings": report.Holdings, "stats": stats},
		Timestamp: report.At,
	}
	if err := d.notifier.Send(ctx, n); err != nil {
		d.logger.Error().Err(err).Msg("Publishing daily check failed")
	}
	return report, nil
}

// Track fills the recommendation returns completed by now and drops rows
// past the retention window. After the close today's session counts.
func (d *Driver) Track(ctx context.Context, now time.Time) (*performance.UpdateReport, error) {
	if !d.tracker.Enabled() {
		return nil, nil
	}
	asOf := d.RankDay(now)
	report, err := d.tracker.Update(provider.WithAsOf(ctx, asOf), asOf)
	if err != nil {
		return nil, errors.Wrap(err, "update recommendation returns")
	}
	if _, err := d.tracker.Cleanup(ctx, now); err != nil {
		return report, errors.Wrap(err, "clean up recommendations")
	}
	return report, nil
}

// Performance summarises the recommendations made in the last days.
func (d *Driver) Performance(ctx context.Context, now time.Time, days int) (*performance.Report, error) {
	if d.tracker == nil {
		return nil, fmt.Errorf("%w: recommendation tracking is not configured", errors.ErrConfigInvalid)
	}
	since := models.DayStart(now.In(d.calendar.Location())).AddDate(0, 0, -days)
	return d.tracker.Report(ctx, since)
}

func (d *Driver) check(ctx context.Context, now time.Time, daily bool) (*CheckReport, error) {
	now = now.In(d.calendar.Location())
	report := &CheckReport{At: now, Daily: daily, Exits: models.NewExitReport(now)}

	positions, err := d.engine.Positions(ctx)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return report, nil
	}

	snaps, err := d.data.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}
	prices := make(map[string]float64, len(snaps))
	for _, s := range snaps {
		if s.Price > 0 {
			prices[s.Symbol] = s.Price
		}
	}

	var held []string
	for _, p := range positions {
		if _, ok := prices[p.Symbol]; ok {
			held = append(held, p.Symbol)
		} else {
			report.Unpriced = append(report.Unpriced, p.Symbol)
		}
	}

	period := d.cfg.Risk.MAPeriod
	if period <= 0 {
		period = 5
	}
	workers := d.cfg.Data.MaxWorkers
	histories := performance.FetchAll(ctx, workers, held, func(ctx context.Context, symbol string) (models.HistoricalSeries, error) {
		return d.data.History(ctx, symbol, period+5, d.adjust())
	})

	quotes := make(map[string]trading.Quote, len(held))
	for _, sym := range held {
		q := trading.Quote{Symbol: sym, Price: prices[sym], At: now}
		if series, ok := histories.Values[sym]; ok {
			closes := indicators.TruncateSeries(series, now).Closes()
			if ma, err := indicators.RealtimeMA(closes, q.Price, period); err == nil {
				q.MA5 = indicators.Round2(ma)
			}
		}
		quotes[sym] = q
	}

	exits, err := d.engine.EvaluateAll(ctx, quotes)
	if err != nil {
		return nil, err
	}
	report.Exits = exits

	settlement := trading.NewSettlementRule(d.calendar)
	// EvaluateAll may have raised highest prices
	positions, err = d.engine.Positions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		q, ok := quotes[p.Symbol]
		if !ok {
			continue
		}
		h := Holding{
			Position: p,
			Price:    q.Price,
			MA5:      q.MA5,
			PnLPct:   indicators.Round2(p.PnLPct(q.Price)),
			Value:    p.MarketValue(q.Price),
			Sellable: settlement.CanSell(p.EntryDate, now),
		}
		report.MarketPnL += (q.Price - p.EntryPrice) * float64(p.Quantity)
		report.Holdings = append(report.Holdings, h)
	}
	report.MarketPnL = indicators.Round2(report.MarketPnL)

	if len(report.Unpriced) > 0 {
		d.logger.Warn().Strs("symbols", report.Unpriced).Msg("Held symbols missing from snapshot")
	}
	if exits.Len() > 0 {
		if err := d.notifier.PublishExits(ctx, exits); err != nil {
			d.logger.Error().Err(err).Msg("Publishing exit signals failed")
		}
	}
	d.logger.Info().
		Bool("daily", daily).
		Int("positions", len(positions)).
		Int("evaluated", exits.Evaluated).
		Int("signals", exits.Len()).
		Msg("Position check complete")
	return report, nil
}

// GapLabel classifies an opening gap.
type GapLabel string

const (
	GapCriticalDown GapLabel = "CRITICAL_GAP_DOWN"
	GapDown         GapLabel = "GAP_DOWN"
	GapHighOpen     GapLabel = "HIGH_OPEN"
	GapStableOpen   GapLabel = "STABLE_OPEN"
	GapFlat         GapLabel = "FLAT"
)

// GapAlert is the opening gap of one held symbol.
type GapAlert struct {
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	PrevClose float64  `json:"prev_close"`
	Open      float64  `json:"open"`
	GapPct    float64  `json:"gap_pct"`
	Label     GapLabel `json:"label"`
	StopPrice float64  `json:"stop_price"`
	BelowStop bool     `json:"below_stop"` // open already under the stop
}

// classifyGap maps a gap percent onto its label using the monitor thresholds.
func classifyGap(gap float64, cfg config.MonitorConfig) GapLabel {
	switch {
	case gap <= cfg.CriticalGap:
		return GapCriticalDown
	case gap <= cfg.GapDownPct:
		return GapDown
	case gap >= cfg.HighOpenPct:
		return GapHighOpen
	case gap >= cfg.GapUpPct:
		return GapStableOpen
	}
	return GapFlat
}

// PremarketCheck reports the call-auction gap of every held symbol and sends
// an alert for each non-flat gap.
func (d *Driver) PremarketCheck(ctx context.Context, now time.Time) ([]GapAlert, error) {
	positions, err := d.engine.Positions(ctx)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}
	snaps, err := d.data.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot")
	}
	bySymbol := make(map[string]models.Snapshot, len(snaps))
	for _, s := range snaps {
		bySymbol[s.Symbol] = s
	}

	var alerts []GapAlert
	for _, p := range positions {
		s, ok := bySymbol[p.Symbol]
		if !ok || s.PrevClose <= 0 {
			continue
		}
		open := s.Open
		if open <= 0 {
			open = s.Price
		}
		gap, err := indicators.ChangePct(s.PrevClose, open)
		if err != nil {
			continue
		}
		alerts = append(alerts, GapAlert{
			Symbol:    p.Symbol,
			Name:      p.Name,
			PrevClose: s.PrevClose,
			Open:      open,
			GapPct:    indicators.Round2(gap),
			Label:     classifyGap(gap, d.cfg.Monitor),
			StopPrice: p.StopPrice,
			BelowStop: open < p.StopPrice,
		})
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].GapPct < alerts[j].GapPct })

	for _, a := range alerts {
		if a.Label == GapFlat && !a.BelowStop {
			continue
		}
		n := notify.Notification{
			Type:      notify.NotificationAlert,
			Symbol:    a.Symbol,
			Title:     string(a.Label),
			Message:   fmt.Sprintf("%s opens %+.2f%% at %.2f (stop %.2f)", a.Symbol, a.GapPct, a.Open, a.StopPrice),
			Data:      map[string]interface{}{"gap": a},
			Timestamp: now,
		}
		if err := d.notifier.Send(ctx, n); err != nil {
			d.logger.Error().Err(err).Str("symbol", a.Symbol).Msg("Publishing gap alert failed")
		}
	}
	return alerts, nil
}
