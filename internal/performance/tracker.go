package performance

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/config"
	"alphahunter/internal/logging"
	"alphahunter/internal/models"
)

// RecommendationStore persists recommendations and their returns.
type RecommendationStore interface {
	SaveRecommendations(ctx context.Context, recs []models.Recommendation) error
	ListRecommendations(ctx context.Context, since time.Time) ([]models.Recommendation, error)
	UpdateReturns(ctx context.Context, date time.Time, symbol string, returns map[int]float64) error
	DeleteRecommendationsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// HistorySource supplies daily candles for the return lookups.
type HistorySource interface {
	History(ctx context.Context, symbol string, lookback int, adjust models.AdjustMode) (models.HistoricalSeries, error)
}

// Tracker records scan candidates and measures their close-to-close
// returns a fixed number of sessions later.
type Tracker struct {
	store   RecommendationStore
	data    HistorySource
	cfg     config.TrackingConfig
	workers int
	adjust  models.AdjustMode
	logger  zerolog.Logger
}

func NewTracker(st RecommendationStore, data HistorySource, cfg config.TrackingConfig, workers int, adjust models.AdjustMode, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:   st,
		data:    data,
		cfg:     cfg,
		workers: workers,
		adjust:  adjust,
		logger:  logging.WithOperation(logger, "tracker"),
	}
}

// Enabled reports whether recommendations are recorded.
func (t *Tracker) Enabled() bool {
	return t != nil && t.cfg.Enabled && len(t.cfg.Horizons) > 0
}

// Record stores the candidates of a scan taken at at.
func (t *Tracker) Record(ctx context.Context, at time.Time, candidates []models.CandidateSignal) (int, error) {
	if !t.Enabled() || len(candidates) == 0 {
		return 0, nil
	}
	recs := make([]models.Recommendation, len(candidates))
	for i, c := range candidates {
		recs[i] = models.RecommendationFrom(c, at)
	}
	if err := t.store.SaveRecommendations(ctx, recs); err != nil {
		return 0, err
	}
	t.logger.Info().Int("recorded", len(recs)).Time("day", models.DayStart(at)).Msg("Recommendations recorded")
	return len(recs), nil
}

// UpdateReport counts the outcome of one Update.
type UpdateReport struct {
	Pending int      `json:"pending"`
	Updated int      `json:"updated"`
	Failed  []string `json:"failed,omitempty"`
}

// Update fills every horizon that has completed before asOf. A horizon of
// n is the close of the n-th session after the recommendation day.
func (t *Tracker) Update(ctx context.Context, asOf time.Time) (*UpdateReport, error) {
	report := &UpdateReport{}
	if !t.Enabled() {
		return report, nil
	}
	asOf = models.DayStart(asOf)
	recs, err := t.store.ListRecommendations(ctx, t.cutoff(asOf))
	if err != nil {
		return nil, err
	}

	var pending []models.Recommendation
	oldest := asOf
	seen := make(map[string]bool)
	var symbols []string
	for _, r := range recs {
		if !r.Date.Before(asOf) || !r.Pending(t.cfg.Horizons) {
			continue
		}
		pending = append(pending, r)
		if r.Date.Before(oldest) {
			oldest = r.Date
		}
		if !seen[r.Symbol] {
			seen[r.Symbol] = true
			symbols = append(symbols, r.Symbol)
		}
	}
	report.Pending = len(pending)
	if len(pending) == 0 {
		return report, nil
	}

	// calendar days bound the session count from above
	lookback := int(asOf.Sub(oldest).Hours()/24) + 2
	histories := FetchAll(ctx, t.workers, symbols, func(ctx context.Context, symbol string) (models.HistoricalSeries, error) {
		return t.data.History(ctx, symbol, lookback, t.adjust)
	})
	for symbol, err := range histories.Errors {
		t.logger.Warn().Err(err).Str("symbol", symbol).Msg("History unavailable for tracking")
		report.Failed = append(report.Failed, symbol)
	}
	report.Failed = append(report.Failed, histories.Skipped...)
	sort.Strings(report.Failed)

	for _, r := range pending {
		series, ok := histories.Values[r.Symbol]
		if !ok {
			continue
		}
		returns, changed := t.returns(r, indicators.TruncateBefore(series.Candles, asOf))
		if !changed {
			continue
		}
		if err := t.store.UpdateReturns(ctx, r.Date, r.Symbol, returns); err != nil {
			return nil, err
		}
		report.Updated++
	}

	t.logger.Info().
		Int("pending", report.Pending).
		Int("updated", report.Updated).
		Int("failed", len(report.Failed)).
		Msg("Recommendation returns updated")
	return report, nil
}

// returns adds the horizons of r reached by candles.
func (t *Tracker) returns(r models.Recommendation, candles []models.Candle) (map[int]float64, bool) {
	if r.Price <= 0 {
		return nil, false
	}
	next := sort.Search(len(candles), func(i int) bool {
		return !models.DayStart(candles[i].Timestamp.In(r.Date.Location())).Before(r.Date.AddDate(0, 0, 1))
	})

	out := make(map[int]float64, len(t.cfg.Horizons))
	for h, v := range r.Returns {
		out[h] = v
	}
	changed := false
	for _, h := range t.cfg.Horizons {
		if _, done := out[h]; done {
			continue
		}
		i := next + h - 1
		if i >= len(candles) {
			continue
		}
		ret, err := indicators.ChangePct(r.Price, candles[i].Close)
		if err != nil {
			continue
		}
		out[h] = indicators.Round2(ret)
		changed = true
	}
	return out, changed
}

// Cleanup drops recommendations older than the retention window.
func (t *Tracker) Cleanup(ctx context.Context, now time.Time) (int, error) {
	if t == nil || t.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	n, err := t.store.DeleteRecommendationsBefore(ctx, t.cutoff(models.DayStart(now)))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.logger.Info().Int("deleted", n).Msg("Old recommendations removed")
	}
	return n, nil
}

func (t *Tracker) cutoff(day time.Time) time.Time {
	if t.cfg.RetentionDays <= 0 {
		return time.Time{}
	}
	return day.AddDate(0, 0, -t.cfg.RetentionDays)
}

// HorizonStats summarises the returns measured at one horizon.
type HorizonStats struct {
	Horizon   int     `json:"horizon"`
	Count     int     `json:"count"`
	Wins      int     `json:"wins"`
	WinRate   float64 `json:"win_rate"`
	AvgReturn float64 `json:"avg_return"`
	MaxReturn float64 `json:"max_return"`
	MinReturn float64 `json:"min_return"`
}

// Report is the tracked performance since a day.
type Report struct {
	Since           time.Time                          `json:"since"`
	Recommendations int                                `json:"recommendations"`
	Horizons        []HorizonStats                     `json:"horizons"`
	ByCategory      map[models.Category][]HorizonStats `json:"by_category,omitempty"`
	ByGrade         map[models.Grade][]HorizonStats    `json:"by_grade,omitempty"`
}

// Report summarises every recommendation dated at or after since.
func (t *Tracker) Report(ctx context.Context, since time.Time) (*Report, error) {
	recs, err := t.store.ListRecommendations(ctx, since)
	if err != nil {
		return nil, err
	}
	return Summarize(recs, t.cfg.Horizons, since), nil
}

// Summarize computes the per-horizon statistics of recs, overall and split
// by category and grade.
func Summarize(recs []models.Recommendation, horizons []int, since time.Time) *Report {
	r := &Report{
		Since:           since,
		Recommendations: len(recs),
		Horizons:        horizonStats(recs, horizons),
		ByCategory:      make(map[models.Category][]HorizonStats),
		ByGrade:         make(map[models.Grade][]HorizonStats),
	}
	byCategory := make(map[models.Category][]models.Recommendation)
	byGrade := make(map[models.Grade][]models.Recommendation)
	for _, rec := range recs {
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
		byGrade[rec.Grade] = append(byGrade[rec.Grade], rec)
	}
	for c, group := range byCategory {
		r.ByCategory[c] = horizonStats(group, horizons)
	}
	for g, group := range byGrade {
		r.ByGrade[g] = horizonStats(group, horizons)
	}
	return r
}

func horizonStats(recs []models.Recommendation, horizons []int) []HorizonStats {
	out := make([]HorizonStats, 0, len(horizons))
	for _, h := range horizons {
		s := HorizonStats{Horizon: h}
		var sum float64
		for _, rec := range recs {
			v, ok := rec.Returns[h]
			if !ok {
				continue
			}
			if s.Count == 0 || v > s.MaxReturn {
				s.MaxReturn = v
			}
			if s.Count == 0 || v < s.MinReturn {
				s.MinReturn = v
			}
			s.Count++
			sum += v
			if v > 0 {
				s.Wins++
			}
		}
		if s.Count > 0 {
			s.WinRate = indicators.Round2(float64(s.Wins) / float64(s.Count) * 100)
			s.AvgReturn = indicators.Round2(sum / float64(s.Count))
		}
		out = append(out, s)
	}
	return out
}
