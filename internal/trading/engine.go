// Package trading manages open positions under grade-tiered exit rules.
package trading

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/logging"
	"alphahunter/internal/metrics"
	"alphahunter/internal/models"
	"alphahunter/internal/performance"
	"alphahunter/internal/resilience"
	"alphahunter/internal/store"
)

// keyedMutex hands out one mutex per key. Entries are dropped once no
// caller holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// held reports how many keys currently have an entry.
func (k *keyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// OpenRequest describes a purchase. Candles, when given, are daily history
// used for ATR; anything dated on or after At is ignored.
type OpenRequest struct {
	Symbol   string
	Name     string
	Price    float64
	Quantity int
	Grade    models.Grade
	Strategy string
	Note     string
	Candles  []models.Candle
	At       time.Time
}

// AddRequest adds shares to an open position.
type AddRequest struct {
	Symbol   string
	Price    float64
	Quantity int
	Candles  []models.Candle
	At       time.Time
}

// CloseRequest sells some or all of a position. Quantity zero sells all.
type CloseRequest struct {
	Symbol   string
	Price    float64
	Quantity int
	Reason   string
	Override bool // bypass the T+1 rule
	At       time.Time
}

// PositionUpdate is the result of an open or add.
type PositionUpdate struct {
	Position models.Position `json:"position"`
	Added    bool            `json:"added"`
	Warnings []string        `json:"warnings,omitempty"`
}

// RiskEngine owns the position lifecycle. Operations on the same symbol are
// serialized; different symbols proceed in parallel.
type RiskEngine struct {
	store      store.PositionStore
	cfg        config.RiskConfig
	settlement SettlementRule
	logger     zerolog.Logger
	rec        *metrics.Recorder
	workers    int
	locks      keyedMutex
}

// NewRiskEngine creates an engine. rec may be nil.
func NewRiskEngine(st store.PositionStore, cfg config.RiskConfig, calendar *resilience.SessionCalendar, logger zerolog.Logger, rec *metrics.Recorder) *RiskEngine {
	return &RiskEngine{
		store:      st,
		cfg:        cfg,
		settlement: NewSettlementRule(calendar),
		logger:     logging.WithOperation(logger, "risk"),
		rec:        rec,
		workers:    8,
	}
}

func (e *RiskEngine) gradeParams(grade models.Grade) (config.GradeRisk, []string) {
	gr, ok := e.cfg.GradeParams(string(grade))
	if ok {
		return gr, nil
	}
	msg := fmt.Sprintf("grade %q has no risk parameters, using %s", grade, e.cfg.DefaultGrade)
	e.logger.Warn().Str("grade", string(grade)).Msg("Unknown grade, using default risk parameters")
	return gr, []string{msg}
}

func (e *RiskEngine) coreGrade() models.Grade {
	return models.Grade(strings.ToUpper(e.cfg.CoreGrade))
}

func validateTrade(symbol string, price float64, qty int) error {
	if symbol == "" {
		return errors.NewValidationError("symbol", symbol, "symbol is required")
	}
	if price <= 0 {
		return errors.NewValidationError("price", price, "price must be positive")
	}
	if qty <= 0 {
		return errors.NewValidationError("quantity", qty, "quantity must be positive")
	}
	return nil
}

// Open starts a new position. It fails with ErrPositionExists when the
// symbol is already held.
func (e *RiskEngine) Open(ctx context.Context, req OpenRequest) (*PositionUpdate, error) {
	if err := validateTrade(req.Symbol, req.Price, req.Quantity); err != nil {
		return nil, err
	}
	unlock := e.locks.lock(req.Symbol)
	defer unlock()

	if _, err := e.store.GetPosition(ctx, req.Symbol); err == nil {
		return nil, errors.Wrapf(errors.ErrPositionExists, "open %s", req.Symbol)
	} else if !errors.Is(err, errors.ErrPositionNotFound) {
		return nil, err
	}
	return e.open(ctx, req)
}

func (e *RiskEngine) open(ctx context.Context, req OpenRequest) (*PositionUpdate, error) {
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	grade := req.Grade
	if grade == "" {
		grade = models.Grade(e.cfg.DefaultGrade)
	}
	gr, warnings := e.gradeParams(grade)

	atr := entryATR(req.Candles, at, e.cfg.ATRPeriod)
	if atr == 0 {
		warnings = append(warnings, "ATR unavailable, using fixed percent stop")
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = string(models.CategoryManual)
	}

	p := models.Position{
		Symbol:       req.Symbol,
		Name:         req.Name,
		EntryPrice:   req.Price,
		EntryDate:    at,
		Quantity:     req.Quantity,
		HighestPrice: req.Price,
		Grade:        grade,
		ATR:          indicators.Round2(atr),
		StopPrice:    StopPrice(req.Price, atr, gr),
		Strategy:     strategy,
		Note:         req.Note,
		UpdatedAt:    at,
	}
	if err := e.store.SavePosition(ctx, &p); err != nil {
		return nil, errors.Wrap(err, "save position")
	}
	e.logger.Info().
		Str("symbol", p.Symbol).
		Str("grade", string(p.Grade)).
		Float64("entry", p.EntryPrice).
		Float64("stop", p.StopPrice).
		Int("quantity", p.Quantity).
		Msg("Position opened")
	e.refreshGauge(ctx)
	return &PositionUpdate{Position: p, Warnings: warnings}, nil
}

// Add averages more shares into an open position and recomputes the stop
// from the new cost.
func (e *RiskEngine) Add(ctx context.Context, req AddRequest) (*PositionUpdate, error) {
	if err := validateTrade(req.Symbol, req.Price, req.Quantity); err != nil {
		return nil, err
	}
	unlock := e.locks.lock(req.Symbol)
	defer unlock()

	p, err := e.store.GetPosition(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	return e.add(ctx, p, req)
}

func (e *RiskEngine) add(ctx context.Context, p *models.Position, req AddRequest) (*PositionUpdate, error) {
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	gr, warnings := e.gradeParams(p.Grade)

	atr := p.ATR
	if fresh := entryATR(req.Candles, at, e.cfg.ATRPeriod); fresh > 0 {
		atr = indicators.Round2(fresh)
	}

	// cost stays exact; only prices shown or quoted are rounded
	p.EntryPrice = WeightedCost(p.Quantity, p.EntryPrice, req.Quantity, req.Price)
	p.Quantity += req.Quantity
	if req.Price > p.HighestPrice {
		p.HighestPrice = req.Price
	}
	p.ATR = atr
	p.StopPrice = StopPrice(p.EntryPrice, atr, gr)
	p.UpdatedAt = at

	if err := e.store.SavePosition(ctx, p); err != nil {
		return nil, errors.Wrap(err, "save position")
	}
	e.logger.Info().
		Str("symbol", p.Symbol).
		Float64("cost", p.EntryPrice).
		Float64("stop", p.StopPrice).
		Int("quantity", p.Quantity).
		Msg("Position added")
	return &PositionUpdate{Position: *p, Added: true, Warnings: warnings}, nil
}

// Buy opens a position or adds to the existing one.
func (e *RiskEngine) Buy(ctx context.Context, req OpenRequest) (*PositionUpdate, error) {
	if err := validateTrade(req.Symbol, req.Price, req.Quantity); err != nil {
		return nil, err
	}
	unlock := e.locks.lock(req.Symbol)
	defer unlock()

	p, err := e.store.GetPosition(ctx, req.Symbol)
	switch {
	case err == nil:
		return e.add(ctx, p, AddRequest{Symbol: req.Symbol, Price: req.Price, Quantity: req.Quantity, Candles: req.Candles, At: req.At})
	case errors.Is(err, errors.ErrPositionNotFound):
		return e.open(ctx, req)
	default:
		return nil, err
	}
}

// Evaluate refreshes the highest price and returns the exit signal for the
// position, or nil.
func (e *RiskEngine) Evaluate(ctx context.Context, q Quote) (*models.ExitSignal, error) {
	if q.Price <= 0 {
		return nil, errors.NewValidationError("price", q.Price, "price must be positive")
	}
	if q.At.IsZero() {
		q.At = time.Now()
	}
	unlock := e.locks.lock(q.Symbol)
	defer unlock()

	p, err := e.store.GetPosition(ctx, q.Symbol)
	if err != nil {
		return nil, err
	}
	if q.Price > p.HighestPrice {
		p.HighestPrice = q.Price
		p.UpdatedAt = q.At
		if err := e.store.SavePosition(ctx, p); err != nil {
			return nil, errors.Wrap(err, "save highest price")
		}
	}

	gr, _ := e.cfg.GradeParams(string(p.Grade))
	sig := evaluate(p, q, gr, e.coreGrade())
	if sig != nil {
		logging.LogExit(e.logger, sig.Symbol, string(sig.Reason), sig.Price, sig.PnLPct, sig.Authoritative)
		e.rec.ExitSignal(string(sig.Reason))
	}
	return sig, nil
}

// EvaluateAll evaluates every open position that has a quote. Per-symbol
// failures are logged and skipped.
func (e *RiskEngine) EvaluateAll(ctx context.Context, quotes map[string]Quote) (*models.ExitReport, error) {
	positions, err := e.store.ListPositions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list positions")
	}

	var date time.Time
	var symbols []string
	for _, p := range positions {
		q, ok := quotes[p.Symbol]
		if !ok {
			continue
		}
		symbols = append(symbols, p.Symbol)
		if q.At.After(date) {
			date = q.At
		}
	}
	if date.IsZero() {
		date = time.Now()
	}

	results := performance.FetchAll(ctx, e.workers, symbols, func(ctx context.Context, symbol string) (*models.ExitSignal, error) {
		q := quotes[symbol]
		q.Symbol = symbol
		return e.Evaluate(ctx, q)
	})
	for symbol, err := range results.Errors {
		e.logger.Error().Err(err).Str("symbol", symbol).Msg("Evaluation failed")
	}

	report := models.NewExitReport(date)
	report.Evaluated = len(results.Values)
	for _, sig := range results.Values {
		if sig != nil {
			report.Add(*sig)
		}
	}
	return report, nil
}

// Close sells a position in full or in part and archives the trade in the
// same transaction.
func (e *RiskEngine) Close(ctx context.Context, req CloseRequest) (*models.Trade, error) {
	if req.Price <= 0 {
		return nil, errors.NewValidationError("price", req.Price, "price must be positive")
	}
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}
	unlock := e.locks.lock(req.Symbol)
	defer unlock()

	p, err := e.store.GetPosition(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	qty := req.Quantity
	if qty == 0 {
		qty = p.Quantity
	}
	if qty < 1 || qty > p.Quantity {
		return nil, errors.NewValidationError("quantity", qty, fmt.Sprintf("must be between 1 and %d", p.Quantity))
	}
	if !req.Override && !e.settlement.CanSell(p.EntryDate, at) {
		return nil, errors.NewConstraintError("T+1", p.Symbol,
			fmt.Sprintf("sellable from %s", e.settlement.SellableFrom(p.EntryDate).Format("2006-01-02")),
			errors.ErrSettlementPending)
	}

	reason := req.Reason
	if reason == "" {
		reason = string(models.ExitManual)
	}
	trade := &models.Trade{
		Symbol:      p.Symbol,
		Name:        p.Name,
		Grade:       p.Grade,
		Strategy:    p.Strategy,
		EntryDate:   p.EntryDate,
		ExitDate:    at,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   req.Price,
		Quantity:    qty,
		PnLAmount:   round2((req.Price - p.EntryPrice) * float64(qty)),
		PnLPct:      round2(p.PnLPct(req.Price)),
		HoldingDays: e.settlement.HoldingDays(p.EntryDate, at),
		Reason:      reason,
	}

	var remaining *models.Position
	if qty < p.Quantity {
		rest := *p
		rest.Quantity -= qty
		rest.UpdatedAt = at
		remaining = &rest
	}
	if err := e.store.ClosePosition(ctx, p.Symbol, remaining, trade); err != nil {
		return nil, errors.Wrap(err, "close position")
	}

	logging.LogTrade(e.logger, trade.Symbol, trade.Quantity, trade.EntryPrice, trade.ExitPrice, trade.PnLPct)
	e.refreshGauge(ctx)
	return trade, nil
}

// Positions lists open positions.
func (e *RiskEngine) Positions(ctx context.Context) ([]models.Position, error) {
	return e.store.ListPositions(ctx)
}

// Stats summarises trades that exited at or after since.
func (e *RiskEngine) Stats(ctx context.Context, since time.Time) (TradeStats, error) {
	trades, err := e.store.ListTrades(ctx, since)
	if err != nil {
		return TradeStats{}, err
	}
	return ComputeStats(trades), nil
}

func (e *RiskEngine) refreshGauge(ctx context.Context) {
	if e.rec == nil {
		return
	}
	if positions, err := e.store.ListPositions(ctx); err == nil {
		e.rec.SetOpenPositions(len(positions))
	}
}
