// Package scoring turns a market snapshot into graded, sized candidates.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/logging"
	"alphahunter/internal/models"
	"alphahunter/internal/performance"
	"alphahunter/internal/resilience"
)

// Source supplies per-symbol data the pipeline fetches on demand.
type Source interface {
	History(ctx context.Context, symbol string, lookback int, adjust models.AdjustMode) (models.HistoricalSeries, error)
	Confirmation(ctx context.Context, symbol string) (models.Confirmation, error)
}

// ScanInput is everything one scan needs besides the per-symbol fetches.
type ScanInput struct {
	Date      time.Time
	Snapshots []models.Snapshot
	Ranks     *models.RankTable
	RankStale bool
	Index     models.IndexQuote
	// IndexHistory is daily index candles; anything dated on or after Date
	// is ignored.
	IndexHistory []models.Candle
	// Trades may span any period; only the Kelly lookback window is used.
	Trades []models.Trade
}

// StageCount records how many symbols a stage removed.
type StageCount struct {
	Stage   string `json:"stage"`
	In      int    `json:"in"`
	Dropped int    `json:"dropped"`
}

// ScanResult is the output of one pipeline run.
type ScanResult struct {
	ID          string                      `json:"id"`
	Date        time.Time                   `json:"date"`
	Regime      resilience.RegimeAssessment `json:"regime"`
	Candidates  []models.CandidateSignal    `json:"candidates"`
	Traps       []models.CandidateSignal    `json:"traps,omitempty"`
	Stages      []StageCount                `json:"stages"`
	Kelly       KellyEstimate               `json:"kelly"`
	Warnings    []string                    `json:"warnings,omitempty"`
	Sleep       bool                        `json:"sleep"`
	SleepReason string                      `json:"sleep_reason,omitempty"`
	Duration    time.Duration               `json:"duration"`
}

// Dropped returns the drop count of a stage.
func (r *ScanResult) Dropped(stage string) int {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s.Dropped
		}
	}
	return 0
}

// Report converts the result into what notifiers publish.
func (r *ScanResult) Report() models.ScanReport {
	return models.ScanReport{
		ID:          r.ID,
		Date:        r.Date,
		Candidates:  r.Candidates,
		Traps:       r.Traps,
		Regime:      string(r.Regime.Trend),
		Breadth:     r.Regime.BreadthPct,
		Sleep:       r.Sleep,
		SleepReason: r.SleepReason,
		Warnings:    r.Warnings,
	}
}

// Pipeline runs the multi-stage scan. It holds no per-scan state, so one
// Pipeline may serve concurrent runs.
type Pipeline struct {
	cfg      *config.Config
	source   Source
	detector *resilience.RegimeDetector
	logger   zerolog.Logger
}

// NewPipeline creates a pipeline over cfg. cfg must already be validated.
func NewPipeline(cfg *config.Config, source Source, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		detector: resilience.NewRegimeDetector(cfg.Regime, cfg.Momentum.RPSMin),
		logger:   logging.WithOperation(logger, "scan"),
	}
}

// scan carries the state of one run.
type scan struct {
	*Pipeline
	in      ScanInput
	result  *ScanResult
	logger  zerolog.Logger
	current string
	counts  map[string]*StageCount
}

func (s *scan) enter(stage string, n int) {
	s.current = stage
	sc := &StageCount{Stage: stage, In: n}
	s.counts[stage] = sc
	s.result.Stages = append(s.result.Stages, *sc)
}

func (s *scan) drop(symbol, reason string) {
	s.counts[s.current].Dropped++
	logging.LogStageDrop(s.logger, s.current, symbol, reason)
}

func (s *scan) finishStages() {
	for i := range s.result.Stages {
		s.result.Stages[i] = *s.counts[s.result.Stages[i].Stage]
	}
}

func (s *scan) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.result.Warnings = append(s.result.Warnings, msg)
	s.logger.Warn().Msg(msg)
}

// Run executes every stage. Regime sleep is not an error: the result comes
// back empty with Sleep set.
func (p *Pipeline) Run(ctx context.Context, in ScanInput) (*ScanResult, error) {
	start := time.Now()
	if in.Ranks == nil {
		return nil, errors.NewDataError("rank_table", "", "no momentum ranking", errors.ErrRankUnavailable)
	}

	id := uuid.New().String()
	s := &scan{
		Pipeline: p,
		in:       in,
		result:   &ScanResult{ID: id, Date: in.Date},
		logger:   logging.WithScan(p.logger, id),
		counts:   make(map[string]*StageCount),
	}
	defer func() { s.result.Duration = time.Since(start) }()

	if in.RankStale {
		s.warn("%v: table generated %s", errors.ErrStaleRanking, in.Ranks.GeneratedDate.Format("2006-01-02"))
	}

	index := indicators.TruncateBefore(in.IndexHistory, in.Date)
	regime := p.detector.Assess(in.Index, index, in.Ranks.Breadth)
	s.result.Regime = regime
	s.logger.Info().
		Str("trend", string(regime.Trend)).
		Float64("discount", regime.Discount).
		Str("breadth", string(regime.BreadthLevel)).
		Float64("breadth_pct", regime.BreadthPct).
		Msg("Market regime")
	if regime.Sleep {
		s.result.Sleep = true
		s.result.SleepReason = regime.Reason
		s.logger.Warn().Str("reason", regime.Reason).Msg("Scan sleeping")
		return s.result, nil
	}

	snaps := s.filterSnapshots(in.Snapshots)
	candidates, err := s.screen(ctx, snaps)
	if err != nil {
		return nil, err
	}
	candidates = s.grade(candidates)
	sortCandidates(candidates)

	s.result.Kelly = Kelly(TrailingTrades(in.Trades, in.Date, p.cfg.Kelly.LookbackDays), p.cfg.Kelly, regime.PositionMultiplier)
	for i := range candidates {
		candidates[i].Amount, candidates[i].Quantity = Size(s.result.Kelly.Multiple, candidates[i].Price, p.cfg.Kelly)
	}

	candidates = s.secondPass(ctx, candidates)
	sortCandidates(candidates)
	s.finishStages()

	for _, c := range candidates {
		logging.LogSignal(s.logger, c.Symbol, string(c.Grade), c.Score, c.Quantity)
	}
	s.result.Candidates = candidates
	s.logger.Info().
		Int("universe", len(in.Snapshots)).
		Int("candidates", len(candidates)).
		Int("traps", len(s.result.Traps)).
		Msg("Scan complete")
	return s.result, nil
}

// filterSnapshots runs the stages that need only the snapshot.
func (s *scan) filterSnapshots(snaps []models.Snapshot) []models.Snapshot {
	blacklist := blacklistSet(s.cfg.Strategy.Blacklist)

	s.enter(StageUniverse, len(snaps))
	var universe []models.Snapshot
	for _, snap := range snaps {
		if out, reason := excluded(snap, blacklist); out {
			s.drop(snap.Symbol, reason)
			continue
		}
		universe = append(universe, snap)
	}

	s.enter(StageBasic, len(universe))
	var basic []models.Snapshot
	for _, snap := range universe {
		if ok, reason := passesBasic(snap, s.cfg.Strategy); !ok {
			s.drop(snap.Symbol, reason)
			continue
		}
		basic = append(basic, snap)
	}
	return basic
}

// screen fetches history for the survivors and applies the history and
// momentum stages, then scores what is left.
func (s *scan) screen(ctx context.Context, snaps []models.Snapshot) ([]models.CandidateSignal, error) {
	symbols := make([]string, len(snaps))
	for i, snap := range snaps {
		symbols[i] = snap.Symbol
	}
	adjust := models.AdjustMode(s.cfg.Data.Adjust)
	day := s.in.Date
	fetched := performance.FetchAll(ctx, s.cfg.Data.MaxWorkers, symbols, func(ctx context.Context, sym string) (models.HistoricalSeries, error) {
		series, err := s.source.History(ctx, sym, s.cfg.Data.HistoryDays, adjust)
		if err != nil {
			return series, err
		}
		return indicators.TruncateSeries(series, day), nil
	})
	if ctx.Err() != nil {
		return nil, errors.Wrap(ctx.Err(), "history fetch interrupted")
	}

	s.enter(StageProximity, len(snaps))
	type screened struct {
		snap   models.Snapshot
		series models.HistoricalSeries
		ma     float64
		bias   float64
	}
	var near []screened
	for _, snap := range snaps {
		series, ok := fetched.Values[snap.Symbol]
		if !ok {
			reason := "history not fetched"
			if err := fetched.Errors[snap.Symbol]; err != nil {
				reason = err.Error()
			}
			s.drop(snap.Symbol, reason)
			continue
		}
		ma, bias, reason := proximity(snap, series, s.cfg.Strategy.MAPeriod, s.cfg.Strategy.BiasMax)
		if reason != "" {
			s.drop(snap.Symbol, reason)
			continue
		}
		near = append(near, screened{snap: snap, series: series, ma: ma, bias: bias})
	}

	s.enter(StagePriorDay, len(near))
	var confirmed []screened
	for _, c := range near {
		if ok, reason := priorDayOK(c.series, s.cfg.Strategy); !ok {
			s.drop(c.snap.Symbol, reason)
			continue
		}
		confirmed = append(confirmed, c)
	}

	s.enter(StageMomentum, len(confirmed))
	var out []models.CandidateSignal
	for _, c := range confirmed {
		rank, found := s.in.Ranks.Get(c.snap.Symbol)
		if ok, reason := momentumGate(c.snap, rank, found, s.result.Regime); !ok {
			s.drop(c.snap.Symbol, reason)
			continue
		}
		out = append(out, s.score(c.snap, rank, c.series, c.ma, c.bias))
	}
	return out, nil
}

func (s *scan) score(snap models.Snapshot, rank models.MomentumRank, series models.HistoricalSeries, ma, bias float64) models.CandidateSignal {
	return scoreSignal(s.cfg, s.in.Ranks, s.result.Regime.Discount, snap, rank, series, ma, bias)
}

// scoreSignal builds the candidate for a snapshot that passed the momentum
// gate and fills its composite score.
func scoreSignal(cfg *config.Config, ranks *models.RankTable, discount float64, snap models.Snapshot, rank models.MomentumRank, series models.HistoricalSeries, ma, bias float64) models.CandidateSignal {
	c := models.CandidateSignal{
		Symbol:      snap.Symbol,
		Name:        snap.Name,
		Sector:      snap.Sector,
		Price:       snap.Price,
		ChangePct:   snap.ChangePct,
		TurnoverPct: snap.TurnoverPct,
		VolumeRatio: snap.VolumeRatio,
		MA5:         indicators.Round2(ma),
		Bias:        bias,
		RPS120:      rank.RPS120,
		RPS20:       rank.RPS20,
		SectorRank:  rank.SectorRank,
		Category:    CategoryFor(rank.RPS120, cfg.Scoring),
	}
	if c.Sector == "" {
		c.Sector = rank.Sector
	}
	if c.SectorRank == 0 && c.Sector != "" {
		c.SectorRank, _ = ranks.SectorRank(c.Sector)
	}
	if atr, err := indicators.ATRValue(series.Candles, cfg.Risk.ATRPeriod); err == nil {
		c.ATR = indicators.Round2(atr)
	}
	composite(&c, snap, cfg.Weights, cfg.Scoring, discount)
	return c
}

// grade separates traps, applies the score floor and the sector filter.
func (s *scan) grade(candidates []models.CandidateSignal) []models.CandidateSignal {
	s.enter(StageTrap, len(candidates))
	var clean []models.CandidateSignal
	for _, c := range candidates {
		if IsTrap(c.RPS120, c.MoneyFlow, s.cfg.Scoring.TrapRPS) {
			markTrap(&c)
			s.result.Traps = append(s.result.Traps, c)
			s.drop(c.Symbol, "trap")
			continue
		}
		clean = append(clean, c)
	}

	s.enter(StageGrade, len(clean))
	var graded []models.CandidateSignal
	for _, c := range clean {
		c.Grade = GradeFor(c.Score, s.cfg.Scoring)
		if c.Score < s.cfg.Scoring.MinTotalScore {
			s.drop(c.Symbol, fmt.Sprintf("score %.1f below %.1f", c.Score, s.cfg.Scoring.MinTotalScore))
			continue
		}
		graded = append(graded, c)
	}

	s.enter(StageSector, len(graded))
	sectorCount := len(s.in.Ranks.Sectors)
	var out []models.CandidateSignal
	for _, c := range graded {
		if ok, reason := passesSector(c, s.cfg.Sector, sectorCount); !ok {
			s.drop(c.Symbol, reason)
			continue
		}
		out = append(out, c)
	}
	return out
}

// secondPass confirms the top candidates. Fetch failures leave a candidate
// unadjusted.
func (s *scan) secondPass(ctx context.Context, candidates []models.CandidateSignal) []models.CandidateSignal {
	s.enter(StageConfirmation, len(candidates))
	cfg := s.cfg.Confirmation
	if !cfg.Enabled || len(candidates) == 0 {
		return candidates
	}

	n := cfg.TopN
	if n <= 0 || n > len(candidates) {
		n = len(candidates)
	}
	symbols := make([]string, n)
	for i := 0; i < n; i++ {
		symbols[i] = candidates[i].Symbol
	}
	fetched := performance.FetchAll(ctx, s.cfg.Data.MaxWorkers, symbols, s.source.Confirmation)

	var out []models.CandidateSignal
	for i, c := range candidates {
		if i >= n {
			out = append(out, c)
			continue
		}
		conf, ok := fetched.Values[c.Symbol]
		if !ok {
			c.Note("second pass unavailable")
			out = append(out, c)
			continue
		}
		rank, _ := s.in.Ranks.Get(c.Symbol)
		result := confirm(conf, rank.History, c.RPS120, cfg)
		for _, note := range result.notes {
			c.Note(note)
		}
		if result.exclude {
			s.drop(c.Symbol, "late-session outflow")
			continue
		}
		if result.adjust != 0 {
			c.Score = round1(clamp(c.Score+result.adjust, 0, 100))
			c.Grade = GradeFor(c.Score, s.cfg.Scoring)
		}
		if c.Score < s.cfg.Scoring.MinTotalScore {
			s.drop(c.Symbol, fmt.Sprintf("score %.1f below %.1f after confirmation", c.Score, s.cfg.Scoring.MinTotalScore))
			continue
		}
		out = append(out, c)
	}
	return out
}

// sortCandidates orders by score descending, then symbol.
func sortCandidates(cs []models.CandidateSignal) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].Symbol < cs[j].Symbol
	})
}
