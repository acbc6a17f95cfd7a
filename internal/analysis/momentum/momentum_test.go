package momentum

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphahunter/internal/cache"
	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/models"
)

var cst = time.FixedZone("CST", 8*3600)

func testRanker() *Ranker {
	return NewRanker(config.MomentumConfig{LongWindow: 10, ShortWindow: 3, HistoryDepth: 3, BreadthWindow: 5})
}

// linearSeries ends the day before asOf and grows by step per day.
func linearSeries(symbol string, n int, asOf time.Time, base, step float64) models.HistoricalSeries {
	s := models.HistoricalSeries{Symbol: symbol}
	start := asOf.AddDate(0, 0, -n)
	for i := 0; i < n; i++ {
		price := base + step*float64(i)
		s.Candles = append(s.Candles, models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
		})
	}
	return s
}

func TestRankOrdersByTrailingReturn(t *testing.T) {
	asOf := time.Date(2024, 6, 14, 17, 0, 0, 0, cst)
	series := map[string]models.HistoricalSeries{
		"A": linearSeries("A", 20, asOf, 10, 0.5),
		"B": linearSeries("B", 20, asOf, 10, 0.1),
		"C": linearSeries("C", 20, asOf, 10, -0.1),
		"D": linearSeries("D", 8, asOf, 10, 1), // too short to rank
	}
	sectors := map[string]string{"A": "Chips", "B": "Chips", "C": "Banks"}

	table := testRanker().Rank(asOf, series, sectors, nil)

	require.Len(t, table.Ranks, 3)
	_, ok := table.Get("D")
	assert.False(t, ok)
	assert.InDelta(t, 100.0, table.Ranks["A"].RPS120, 1e-9)
	assert.InDelta(t, 200.0/3, table.Ranks["B"].RPS120, 1e-9)
	assert.InDelta(t, 100.0/3, table.Ranks["C"].RPS120, 1e-9)

	require.Len(t, table.Sectors, 2)
	assert.Equal(t, "Chips", table.Sectors[0].Name)
	assert.Equal(t, 1, table.Ranks["A"].SectorRank)
	assert.Equal(t, 2, table.Ranks["C"].SectorRank)
	assert.Equal(t, 2, table.Ranks["C"].SectorCount)
	assert.InDelta(t, 100.0, table.Ranks["A"].SectorPercentile, 1e-9)
	assert.InDelta(t, 50.0, table.Ranks["B"].SectorPercentile, 1e-9)

	// rising series close at their 5-day high, the falling one does not
	assert.InDelta(t, 200.0/3, table.Breadth, 1e-9)
	assert.True(t, table.IsFor(asOf))
}

func TestRankIgnoresCandlesOnEvaluationDay(t *testing.T) {
	asOf := time.Date(2024, 6, 14, 17, 0, 0, 0, cst)
	a := linearSeries("A", 20, asOf, 10, 0.1)
	b := linearSeries("B", 20, asOf, 10, 0.2)
	// a huge print on the evaluation day must not change the order
	a.Candles = append(a.Candles, models.Candle{Timestamp: asOf, Close: 100})

	table := testRanker().Rank(asOf, map[string]models.HistoricalSeries{"A": a, "B": b}, nil, nil)
	assert.Less(t, table.Ranks["A"].RPS120, table.Ranks["B"].RPS120)
}

func TestRankCarriesDeltaAndHistory(t *testing.T) {
	asOf := time.Date(2024, 6, 14, 17, 0, 0, 0, cst)
	series := map[string]models.HistoricalSeries{
		"A": linearSeries("A", 20, asOf, 10, 0.5),
		"B": linearSeries("B", 20, asOf, 10, 0.1),
	}
	previous := &models.RankTable{Ranks: map[string]models.MomentumRank{
		"A": {Symbol: "A", RPS120: 50, History: []float64{30, 40, 50}},
	}}

	table := testRanker().Rank(asOf, series, nil, previous)
	assert.InDelta(t, 50.0, table.Ranks["A"].Delta, 1e-9)
	assert.Equal(t, []float64{40, 50, 100}, table.Ranks["A"].History)
	assert.Equal(t, 0.0, table.Ranks["B"].Delta)
	assert.Equal(t, []float64{50}, table.Ranks["B"].History)
}

// Property: every ranked symbol has RPS in (0,100] and sector ranks are a
// permutation of 1..count.
func TestProperty_RankTableBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	asOf := time.Date(2024, 6, 14, 17, 0, 0, 0, cst)
	ranker := testRanker()

	properties.Property("rps within bounds", prop.ForAll(
		func(steps []float64, sectorCount int) bool {
			series := make(map[string]models.HistoricalSeries)
			sectors := make(map[string]string)
			for i, step := range steps {
				sym := fmt.Sprintf("S%02d", i)
				series[sym] = linearSeries(sym, 15, asOf, 20, step)
				sectors[sym] = fmt.Sprintf("sec%d", i%sectorCount)
			}
			table := ranker.Rank(asOf, series, sectors, nil)
			if len(table.Ranks) != len(steps) {
				return false
			}
			for _, r := range table.Ranks {
				if r.RPS120 <= 0 || r.RPS120 > 100 || r.RPS20 <= 0 || r.RPS20 > 100 {
					return false
				}
			}
			seen := make(map[int]bool)
			for _, s := range table.Sectors {
				if s.Rank < 1 || s.Rank > len(table.Sectors) || seen[s.Rank] {
					return false
				}
				seen[s.Rank] = true
			}
			return table.Breadth >= 0 && table.Breadth <= 100
		},
		gen.SliceOf(gen.Float64Range(-0.5, 0.5)),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

type countingSource struct {
	calls int32
	asOf  time.Time
	steps map[string]float64
}

func (s *countingSource) History(_ context.Context, symbol string, lookback int, _ models.AdjustMode) (models.HistoricalSeries, error) {
	atomic.AddInt32(&s.calls, 1)
	step, ok := s.steps[symbol]
	if !ok {
		return models.HistoricalSeries{}, errors.NewDataError("history", symbol, "missing", errors.ErrSymbolNotFound)
	}
	return linearSeries(symbol, 20, s.asOf, 10, step), nil
}

func TestCycleCurrentAndRefresh(t *testing.T) {
	day1 := time.Date(2024, 6, 13, 17, 0, 0, 0, cst)
	day2 := day1.AddDate(0, 0, 1)
	src := &countingSource{asOf: day1, steps: map[string]float64{"A": 0.5, "B": 0.1}}
	c := NewCycle(cache.NewMemoryCache(), src, testRanker(), CycleOptions{Workers: 2}, zerolog.Nop())
	ctx := context.Background()

	_, _, err := c.Current(ctx, day1)
	assert.ErrorIs(t, err, errors.ErrRankUnavailable)

	_, err = c.Refresh(ctx, day1, []string{"A", "B", "X"}, nil)
	require.NoError(t, err)

	table, stale, err := c.Current(ctx, day1)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Len(t, table.Ranks, 2)

	// the next day the frozen table is still served, flagged stale
	_, stale, err = c.Current(ctx, day2)
	require.NoError(t, err)
	assert.True(t, stale)

	// a new cycle extends history; a second refresh the same day does not
	src.asOf = day2
	_, err = c.Refresh(ctx, day2, []string{"A", "B"}, nil)
	require.NoError(t, err)
	again, err := c.Refresh(ctx, day2, []string{"A", "B"}, nil)
	require.NoError(t, err)
	assert.Len(t, again.Ranks["A"].History, 2)
}

func TestCycleRefreshFailsWithoutData(t *testing.T) {
	day := time.Date(2024, 6, 14, 17, 0, 0, 0, cst)
	src := &countingSource{asOf: day, steps: map[string]float64{}}
	c := NewCycle(cache.NewMemoryCache(), src, testRanker(), CycleOptions{}, zerolog.Nop())

	_, err := c.Refresh(context.Background(), day, []string{"A"}, nil)
	assert.ErrorIs(t, err, errors.ErrDataUnavailable)
}
