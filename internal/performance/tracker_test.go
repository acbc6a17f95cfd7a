package performance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphahunter/internal/config"
	"alphahunter/internal/models"
	"alphahunter/internal/store"
)

var cst = time.FixedZone("CST", 8*3600)

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, cst)
}

type fakeHistory map[string][]models.Candle

func (f fakeHistory) History(_ context.Context, symbol string, _ int, _ models.AdjustMode) (models.HistoricalSeries, error) {
	candles, ok := f[symbol]
	if !ok {
		return models.HistoricalSeries{}, errors.New("no data")
	}
	return models.HistoricalSeries{Symbol: symbol, Candles: candles}, nil
}

func closes(points map[time.Time]float64, days ...time.Time) []models.Candle {
	out := make([]models.Candle, len(days))
	for i, d := range days {
		out[i] = models.Candle{Timestamp: d.Add(15 * time.Hour), Close: points[d]}
	}
	return out
}

func newTracker(t *testing.T, data fakeHistory) (*Tracker, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := config.TrackingConfig{Enabled: true, Horizons: []int{1, 3, 5}, RetentionDays: 30}
	return NewTracker(st, data, cfg, 2, models.AdjustNone, zerolog.Nop()), st
}

func TestTrackerFillsHorizonsAsSessionsComplete(t *testing.T) {
	sessions := []time.Time{day(6, 11), day(6, 12), day(6, 13), day(6, 14), day(6, 17), day(6, 18), day(6, 19)}
	prices := map[time.Time]float64{
		day(6, 11): 9.9, day(6, 12): 10, day(6, 13): 10.5, day(6, 14): 10.2,
		day(6, 17): 9.5, day(6, 18): 11, day(6, 19): 11.5,
	}
	data := fakeHistory{"600519": closes(prices, sessions...)}
	tr, st := newTracker(t, data)
	ctx := context.Background()

	scanAt := day(6, 12).Add(14*time.Hour + 35*time.Minute)
	n, err := tr.Record(ctx, scanAt, []models.CandidateSignal{
		{Symbol: "600519", Name: "Moutai", Price: 10, Score: 82, Grade: models.GradeA, Category: models.CategoryCore, RPS120: 95},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// the 06-19 session is still running
	rep, err := tr.Update(ctx, day(6, 19))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pending)
	assert.Equal(t, 1, rep.Updated)

	recs, err := st.ListRecommendations(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Date.Equal(day(6, 12)))
	assert.Equal(t, 95.0, recs[0].RPS)
	assert.Equal(t, map[int]float64{1: 5, 3: -5}, recs[0].Returns)

	rep, err = tr.Update(ctx, day(6, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	recs, err = st.ListRecommendations(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{1: 5, 3: -5, 5: 15}, recs[0].Returns)

	// nothing left to measure
	rep, err = tr.Update(ctx, day(6, 21))
	require.NoError(t, err)
	assert.Zero(t, rep.Pending)
}

func TestTrackerRescanKeepsMeasuredReturns(t *testing.T) {
	sessions := []time.Time{day(6, 12), day(6, 13)}
	data := fakeHistory{"600519": closes(map[time.Time]float64{day(6, 12): 10, day(6, 13): 10.3}, sessions...)}
	tr, st := newTracker(t, data)
	ctx := context.Background()

	cand := models.CandidateSignal{Symbol: "600519", Price: 10, Score: 70, Grade: models.GradeB}
	_, err := tr.Record(ctx, day(6, 12).Add(10*time.Hour), []models.CandidateSignal{cand})
	require.NoError(t, err)
	_, err = tr.Update(ctx, day(6, 14))
	require.NoError(t, err)

	cand.Score = 75
	_, err = tr.Record(ctx, day(6, 12).Add(14*time.Hour), []models.CandidateSignal{cand})
	require.NoError(t, err)

	recs, err := st.ListRecommendations(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 75.0, recs[0].Score)
	assert.Equal(t, 3.0, recs[0].Returns[1])
}

func TestTrackerReportsFailedSymbols(t *testing.T) {
	data := fakeHistory{"600519": closes(map[time.Time]float64{day(6, 13): 10.1}, day(6, 13))}
	tr, st := newTracker(t, data)
	ctx := context.Background()

	_, err := tr.Record(ctx, day(6, 12), []models.CandidateSignal{
		{Symbol: "600519", Price: 10, Grade: models.GradeC},
		{Symbol: "000404", Price: 8, Grade: models.GradeC},
	})
	require.NoError(t, err)

	rep, err := tr.Update(ctx, day(6, 14))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Pending)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, []string{"000404"}, rep.Failed)

	recs, err := st.ListRecommendations(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, recs[0].Returns) // 000404 sorts first
	assert.Equal(t, 1.0, recs[1].Returns[1])
}

func TestTrackerDisabledRecordsNothing(t *testing.T) {
	st := store.NewMemoryStore()
	tr := NewTracker(st, fakeHistory{}, config.TrackingConfig{Horizons: []int{1}}, 1, models.AdjustNone, zerolog.Nop())
	n, err := tr.Record(context.Background(), day(6, 12), []models.CandidateSignal{{Symbol: "600519", Price: 10}})
	require.NoError(t, err)
	assert.Zero(t, n)

	var nilTracker *Tracker
	assert.False(t, nilTracker.Enabled())
}

func TestTrackerCleanupHonoursRetention(t *testing.T) {
	tr, st := newTracker(t, fakeHistory{})
	ctx := context.Background()
	require.NoError(t, st.SaveRecommendations(ctx, []models.Recommendation{
		{Date: day(5, 1), Symbol: "600519", Price: 10},
		{Date: day(6, 1), Symbol: "600519", Price: 10},
	}))

	n, err := tr.Cleanup(ctx, day(6, 14))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	recs, err := st.ListRecommendations(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Date.Equal(day(6, 1)))
}

func TestSummarizeByHorizonAndCategory(t *testing.T) {
	recs := []models.Recommendation{
		{Symbol: "a", Category: models.CategoryCore, Grade: models.GradeA, Returns: map[int]float64{1: 2, 3: 4}},
		{Symbol: "b", Category: models.CategoryCore, Grade: models.GradeB, Returns: map[int]float64{1: -1}},
		{Symbol: "c", Category: models.CategoryStable, Grade: models.GradeB, Returns: map[int]float64{1: 3, 3: -2}},
		{Symbol: "d", Category: models.CategoryStable, Grade: models.GradeC},
	}
	r := Summarize(recs, []int{1, 3, 5}, day(6, 1))

	assert.Equal(t, 4, r.Recommendations)
	require.Len(t, r.Horizons, 3)
	one := r.Horizons[0]
	assert.Equal(t, 3, one.Count)
	assert.Equal(t, 2, one.Wins)
	assert.Equal(t, 66.67, one.WinRate)
	assert.Equal(t, 1.33, one.AvgReturn)
	assert.Equal(t, 3.0, one.MaxReturn)
	assert.Equal(t, -1.0, one.MinReturn)

	three := r.Horizons[1]
	assert.Equal(t, 2, three.Count)
	assert.Equal(t, 50.0, three.WinRate)
	assert.Equal(t, 1.0, three.AvgReturn)
	assert.Zero(t, r.Horizons[2].Count)

	core := r.ByCategory[models.CategoryCore]
	assert.Equal(t, 2, core[0].Count)
	assert.Equal(t, 50.0, core[0].WinRate)
	assert.Equal(t, 1, r.ByGrade[models.GradeA][1].Count)
}
