package trading

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/analysis/momentum"
	"alphahunter/internal/analysis/scoring"
	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/logging"
	"alphahunter/internal/models"
	"alphahunter/internal/resilience"
)

// annualRiskFree is the risk-free rate used by the Sharpe ratio.
const annualRiskFree = 0.02

// BacktestInput is the history a replay runs over. Index is optional; without
// it the regime carries only the breadth adjustments.
type BacktestInput struct {
	Series  map[string]models.HistoricalSeries
	Sectors map[string]string
	Names   map[string]string
	Index   []models.Candle
	Start   time.Time
	End     time.Time
}

// EquityPoint is the marked-to-market equity after one session.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// BacktestResult summarises a replay.
type BacktestResult struct {
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	Sessions       int            `json:"sessions"`
	SleptSessions  int            `json:"slept_sessions"`
	Signals        int            `json:"signals"`
	Dropped        map[string]int `json:"dropped"`
	Trades         []models.Trade `json:"trades"`
	Stats          TradeStats     `json:"stats"`
	FinalEquity    float64        `json:"final_equity"`
	TotalReturnPct float64        `json:"total_return_pct"`
	MaxDrawdownPct float64        `json:"max_drawdown_pct"`
	SharpeRatio    float64        `json:"sharpe_ratio"`
	EquityCurve    []EquityPoint  `json:"equity_curve"`
}

// Backtester replays the scan stages and the exit rules over daily candles.
// Each session is screened at its close and entries fill at that close.
// Exits are checked from the following session on.
type Backtester struct {
	cfg        *config.Config
	screen     config.Config
	ranker     *momentum.Ranker
	detector   *resilience.RegimeDetector
	settlement SettlementRule
	loc        *time.Location
	logger     zerolog.Logger
}

// NewBacktester creates a backtester. cfg must already be validated.
func NewBacktester(cfg *config.Config, calendar *resilience.SessionCalendar, logger zerolog.Logger) *Backtester {
	// daily candles carry no float share count, so the turnover band is open
	screen := *cfg
	screen.Strategy.TurnoverMin = 0
	screen.Strategy.TurnoverMax = math.MaxFloat64

	return &Backtester{
		cfg:        cfg,
		screen:     screen,
		ranker:     momentum.NewRanker(cfg.Momentum),
		detector:   resilience.NewRegimeDetector(cfg.Regime, cfg.Momentum.RPSMin),
		settlement: NewSettlementRule(calendar),
		loc:        calendar.Location(),
		logger:     logging.WithOperation(logger, "backtest"),
	}
}

// replay carries the state of one run.
type replay struct {
	*Backtester
	in        BacktestInput
	symbols   []string
	days      []time.Time
	at        map[string]map[string]int // symbol -> day key -> candle index
	open      map[string]*models.Position
	lastClose map[string]float64
	cash      float64
	peak      float64
	maxDD     float64
	previous  *models.RankTable
	result    *BacktestResult
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Run replays every session in [in.Start, in.End].
func (b *Backtester) Run(ctx context.Context, in BacktestInput) (*BacktestResult, error) {
	if in.Start.IsZero() || in.End.IsZero() || in.End.Before(in.Start) {
		return nil, errors.NewValidationError("range", fmt.Sprintf("%s..%s", dayKey(in.Start), dayKey(in.End)), "end must not precede start")
	}
	if len(in.Series) == 0 {
		return nil, errors.NewValidationError("series", 0, "no history to replay")
	}

	r := &replay{
		Backtester: b,
		in:         in,
		at:         make(map[string]map[string]int, len(in.Series)),
		open:       make(map[string]*models.Position),
		lastClose:  make(map[string]float64),
		cash:       b.cfg.Backtest.InitialCapital,
		peak:       b.cfg.Backtest.InitialCapital,
		result: &BacktestResult{
			Start:   models.DayStart(in.Start.In(b.loc)),
			End:     models.DayStart(in.End.In(b.loc)),
			Dropped: make(map[string]int),
		},
	}
	r.indexSessions()
	if len(r.days) == 0 {
		return nil, errors.NewValidationError("range", dayKey(in.Start), "no sessions inside the range")
	}

	for i, day := range r.days {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "backtest interrupted")
		}
		r.exits(day)
		if i < len(r.days)-1 {
			r.entries(day)
		}
		r.mark(day)
	}
	r.closeAll(r.days[len(r.days)-1])
	r.finish()

	b.logger.Info().
		Int("sessions", r.result.Sessions).
		Int("signals", r.result.Signals).
		Int("trades", len(r.result.Trades)).
		Float64("win_rate", r.result.Stats.WinRate).
		Float64("return_pct", r.result.TotalReturnPct).
		Msg("Backtest complete")
	return r.result, nil
}

// indexSessions collects the replayed days and a day lookup per symbol.
func (r *replay) indexSessions() {
	from, to := r.result.Start, r.result.End
	seen := make(map[string]bool)
	for symbol, s := range r.in.Series {
		r.symbols = append(r.symbols, symbol)
		idx := make(map[string]int, len(s.Candles))
		for i, c := range s.Candles {
			day := models.DayStart(c.Timestamp.In(r.loc))
			key := dayKey(day)
			idx[key] = i
			if day.Before(from) || day.After(to) || seen[key] {
				continue
			}
			seen[key] = true
			r.days = append(r.days, day)
		}
		r.at[symbol] = idx
	}
	sort.Strings(r.symbols)
	sort.Slice(r.days, func(i, j int) bool { return r.days[i].Before(r.days[j]) })
	r.result.Sessions = len(r.days)
}

func (r *replay) candle(symbol string, day time.Time) (int, models.Candle, bool) {
	i, ok := r.at[symbol][dayKey(day)]
	if !ok {
		return 0, models.Candle{}, false
	}
	return i, r.in.Series[symbol].Candles[i], true
}

// quote builds the risk-engine reading at price during candle i.
func (r *replay) quote(symbol string, i int, price float64, day time.Time) Quote {
	q := Quote{Symbol: symbol, Price: price, At: day}
	closes := models.HistoricalSeries{Candles: r.in.Series[symbol].Candles[:i]}.Closes()
	if ma, err := indicators.RealtimeMA(closes, price, r.cfg.Risk.MAPeriod); err == nil {
		q.MA5 = ma
	}
	return q
}

// check raises the highest price and returns the exit reason demanded at q.
func (r *replay) check(p *models.Position, q Quote) (models.ExitReason, bool) {
	if q.Price > p.HighestPrice {
		p.HighestPrice = q.Price
	}
	gr, _ := r.cfg.Risk.GradeParams(string(p.Grade))
	sig := evaluate(p, q, gr, models.Grade(r.cfg.Risk.CoreGrade))
	if sig == nil || !sig.Authoritative {
		return "", false
	}
	return sig.Reason, true
}

// exits applies the exit rules to every sellable position: at the open, then
// the intraday low against the stop, then at the close.
func (r *replay) exits(day time.Time) {
	for _, symbol := range r.heldSymbols() {
		p := r.open[symbol]
		i, c, ok := r.candle(symbol, day)
		if !ok || !r.settlement.CanSell(p.EntryDate, day) {
			continue
		}

		if reason, exit := r.check(p, r.quote(symbol, i, c.Open, day)); exit {
			r.exit(p, day, c.Open, reason)
			continue
		}
		if limit := r.cfg.Backtest.MaxHoldDays; limit > 0 && r.settlement.HoldingDays(p.EntryDate, day) >= limit {
			r.exit(p, day, c.Open, models.ExitMaxHold)
			continue
		}
		if c.Low < p.StopPrice {
			r.exit(p, day, p.StopPrice, models.ExitForcedStop)
			continue
		}
		if reason, exit := r.check(p, r.quote(symbol, i, c.Close, day)); exit {
			r.exit(p, day, c.Close, reason)
		}
	}
}

func (r *replay) heldSymbols() []string {
	out := make([]string, 0, len(r.open))
	for symbol := range r.open {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// regime assesses the market for day from the ranking and, when the index
// has a candle for day, the index trend.
func (r *replay) regime(day time.Time, table *models.RankTable) resilience.RegimeAssessment {
	history := indicators.TruncateBefore(r.in.Index, day)
	n := len(history)
	if n == len(r.in.Index) || !models.SameDay(day, r.in.Index[n].Timestamp) {
		return r.detector.AssessBreadth(table.Breadth)
	}
	today := r.in.Index[n]
	quote := models.IndexQuote{Symbol: r.cfg.Regime.IndexSymbol, Price: today.Close, Timestamp: today.Timestamp}
	if n > 0 {
		quote.ChangePct, _ = indicators.ChangePct(history[n-1].Close, today.Close)
	}
	return r.detector.Assess(quote, history, table.Breadth)
}

// entries screens the session at its close and opens the best signals.
func (r *replay) entries(day time.Time) {
	table := r.ranker.Rank(day, r.in.Series, r.in.Sectors, r.previous)
	r.previous = table

	regime := r.regime(day, table)
	if regime.Sleep {
		r.result.SleptSessions++
		r.logger.Debug().Str("day", dayKey(day)).Str("reason", regime.Reason).Msg("Session skipped")
		return
	}

	var signals []models.CandidateSignal
	for _, symbol := range r.symbols {
		if _, held := r.open[symbol]; held {
			continue
		}
		i, _, ok := r.candle(symbol, day)
		if !ok {
			continue
		}
		snap, ok := sessionSnapshot(symbol, r.in.Names[symbol], r.in.Series[symbol].Candles, i)
		if !ok {
			continue
		}
		series := models.HistoricalSeries{Symbol: symbol, Candles: r.in.Series[symbol].Candles[:i]}
		s := scoring.Screen(&r.screen, snap, series, table, regime)
		if !s.Passed() {
			r.result.Dropped[s.Stage]++
			continue
		}
		signals = append(signals, s.Signal)
	}
	r.result.Signals += len(signals)

	scoring.SortCandidates(signals)
	for _, sig := range signals {
		if len(r.open) >= r.cfg.Backtest.MaxPositions {
			break
		}
		r.enter(sig, day)
	}
}

func (r *replay) lotSize() int {
	if r.cfg.Kelly.LotSize > 0 {
		return r.cfg.Kelly.LotSize
	}
	return 100
}

func (r *replay) enter(sig models.CandidateSignal, day time.Time) {
	lot := r.lotSize()
	qty := int(r.cfg.Backtest.TradeAmount/sig.Price) / lot * lot
	if qty <= 0 {
		return
	}
	cost := float64(qty) * sig.Price
	fee := cost * r.cfg.Backtest.CommissionPct / 100
	if r.cash < cost+fee {
		return
	}
	r.cash -= cost + fee

	gr, _ := r.cfg.Risk.GradeParams(string(sig.Grade))
	r.open[sig.Symbol] = &models.Position{
		Symbol:       sig.Symbol,
		Name:         sig.Name,
		EntryPrice:   sig.Price,
		EntryDate:    day,
		Quantity:     qty,
		HighestPrice: sig.Price,
		Grade:        sig.Grade,
		ATR:          sig.ATR,
		StopPrice:    StopPrice(sig.Price, sig.ATR, gr),
		Strategy:     string(sig.Category),
		UpdatedAt:    day,
	}
	r.logger.Debug().
		Str("symbol", sig.Symbol).
		Str("day", dayKey(day)).
		Float64("price", sig.Price).
		Int("quantity", qty).
		Msg("Replay entry")
}

// exit sells the whole position at price. Trade returns are net of both
// commissions and the stamp duty.
func (r *replay) exit(p *models.Position, day time.Time, price float64, reason models.ExitReason) {
	bt := r.cfg.Backtest
	qty := float64(p.Quantity)
	proceeds := qty * price * (1 - (bt.CommissionPct+bt.StampDutyPct)/100)
	r.cash += proceeds

	fees := qty * (p.EntryPrice*bt.CommissionPct + price*(bt.CommissionPct+bt.StampDutyPct)) / 100
	trade := models.Trade{
		Symbol:      p.Symbol,
		Name:        p.Name,
		Grade:       p.Grade,
		Strategy:    p.Strategy,
		EntryDate:   p.EntryDate,
		ExitDate:    day,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   price,
		Quantity:    p.Quantity,
		PnLAmount:   round2(qty*(price-p.EntryPrice) - fees),
		PnLPct:      round2(p.PnLPct(price) - (2*bt.CommissionPct + bt.StampDutyPct)),
		HoldingDays: r.settlement.HoldingDays(p.EntryDate, day),
		Reason:      string(reason),
	}
	r.result.Trades = append(r.result.Trades, trade)
	delete(r.open, p.Symbol)
}

// mark records equity at the session close.
func (r *replay) mark(day time.Time) {
	for _, symbol := range r.symbols {
		if _, c, ok := r.candle(symbol, day); ok {
			r.lastClose[symbol] = c.Close
		}
	}
	equity := r.cash
	for symbol, p := range r.open {
		equity += p.MarketValue(r.lastClose[symbol])
	}
	r.result.EquityCurve = append(r.result.EquityCurve, EquityPoint{Date: day, Equity: round2(equity)})

	if equity > r.peak {
		r.peak = equity
	}
	if r.peak > 0 {
		r.maxDD = math.Max(r.maxDD, (r.peak-equity)/r.peak)
	}
}

func (r *replay) closeAll(day time.Time) {
	for _, symbol := range r.heldSymbols() {
		r.exit(r.open[symbol], day, r.lastClose[symbol], models.ExitReplayEnd)
	}
}

func (r *replay) finish() {
	res := r.result
	initial := r.cfg.Backtest.InitialCapital
	res.Stats = ComputeStats(res.Trades)
	res.FinalEquity = round2(r.cash)
	if initial > 0 {
		res.TotalReturnPct = round2((r.cash - initial) / initial * 100)
	}
	res.MaxDrawdownPct = round2(r.maxDD * 100)
	res.SharpeRatio = round2(sharpeRatio(res.EquityCurve))
}

// sharpeRatio annualises the mean daily equity return over its deviation.
func sharpeRatio(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if prev := curve[i-1].Equity; prev > 0 {
			returns = append(returns, (curve[i].Equity-prev)/prev)
		}
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, v := range returns {
		mean += v
	}
	mean /= float64(len(returns))

	var variance float64
	for _, v := range returns {
		variance += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)))
	if stdDev == 0 {
		return 0
	}
	return (mean - annualRiskFree/252) / stdDev * math.Sqrt(252)
}

// sessionSnapshot reads candle i as a snapshot taken at its close. Turnover
// cannot be derived from daily candles and stays zero.
func sessionSnapshot(symbol, name string, candles []models.Candle, i int) (models.Snapshot, bool) {
	if i < 1 || i >= len(candles) {
		return models.Snapshot{}, false
	}
	c, prev := candles[i], candles[i-1]
	change, err := indicators.ChangePct(prev.Close, c.Close)
	if err != nil {
		return models.Snapshot{}, false
	}
	amplitude, _ := indicators.Amplitude(c.High, c.Low, prev.Close)

	var ratio float64
	if i >= 5 {
		var sum int64
		for _, p := range candles[i-5 : i] {
			sum += p.Volume
		}
		if sum > 0 {
			ratio = float64(c.Volume) / (float64(sum) / 5)
		}
	}

	return models.Snapshot{
		Symbol:      symbol,
		Name:        name,
		Price:       c.Close,
		Open:        c.Open,
		High:        c.High,
		Low:         c.Low,
		PrevClose:   prev.Close,
		ChangePct:   change,
		VolumeRatio: ratio,
		Amplitude:   amplitude,
		Bullish:     c.Bullish(),
		Timestamp:   c.Timestamp,
	}, true
}
