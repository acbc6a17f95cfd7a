package scoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/models"
	"alphahunter/internal/resilience"
)

var cst = time.FixedZone("CST", 8*3600)

var scanDate = time.Date(2024, 6, 14, 14, 35, 0, 0, cst)

type fakeSource struct {
	history map[string]models.HistoricalSeries
	confirm map[string]models.Confirmation
}

func (f *fakeSource) History(_ context.Context, symbol string, _ int, _ models.AdjustMode) (models.HistoricalSeries, error) {
	s, ok := f.history[symbol]
	if !ok {
		return models.HistoricalSeries{}, errors.NewDataError("history", symbol, "no file", errors.ErrSymbolNotFound)
	}
	return s, nil
}

func (f *fakeSource) Confirmation(_ context.Context, symbol string) (models.Confirmation, error) {
	c, ok := f.confirm[symbol]
	if !ok {
		return models.Confirmation{}, errors.NewDataError("confirmation", symbol, "no row", errors.ErrSymbolNotFound)
	}
	return c, nil
}

// flatHistory is 30 sessions at 10.00 ending the day before the scan, with
// a bullish +0.5% last session.
func flatHistory(symbol string) models.HistoricalSeries {
	s := models.HistoricalSeries{Symbol: symbol}
	start := scanDate.AddDate(0, 0, -30)
	for i := 0; i < 30; i++ {
		c := models.Candle{Timestamp: start.AddDate(0, 0, i), Open: 10, High: 10.1, Low: 9.9, Close: 10, Volume: 1e6}
		if i == 29 {
			c.Open, c.Close, c.High = 9.95, 10.05, 10.1
		}
		s.Candles = append(s.Candles, c)
	}
	// a candle dated on the scan day must be ignored
	s.Candles = append(s.Candles, models.Candle{Timestamp: scanDate, Open: 20, High: 20, Low: 20, Close: 20})
	return s
}

func risingIndex() []models.Candle {
	var out []models.Candle
	start := scanDate.AddDate(0, 0, -25)
	for i := 0; i < 25; i++ {
		p := 2900 + float64(i)*4
		out = append(out, models.Candle{Timestamp: start.AddDate(0, 0, i), Open: p, High: p, Low: p, Close: p})
	}
	return out
}

func snapshot(symbol string, inflow float64) models.Snapshot {
	return models.Snapshot{
		Symbol:        symbol,
		Name:          "Alpha" + symbol,
		Price:         10.25,
		Open:          10.05,
		High:          10.3,
		Low:           10.0,
		PrevClose:     10.05,
		ChangePct:     2.0,
		TurnoverPct:   10,
		VolumeRatio:   1.5,
		Amplitude:     0.03,
		Bullish:       true,
		MainNetInflow: inflow,
	}
}

func rankTable(breadth float64, ranks ...models.MomentumRank) *models.RankTable {
	t := &models.RankTable{
		GeneratedDate: models.DayStart(scanDate),
		Ranks:         make(map[string]models.MomentumRank),
		Breadth:       breadth,
	}
	for i := 1; i <= 50; i++ {
		t.Sectors = append(t.Sectors, models.SectorStrength{Name: fmt.Sprintf("S%02d", i), Rank: i})
	}
	for _, r := range ranks {
		r.SectorCount = 50
		t.Ranks[r.Symbol] = r
	}
	return t
}

type fixture struct {
	cfg    *config.Config
	source *fakeSource
	input  ScanInput
}

// newFixture builds scenario X (strong, inflow), Y (stronger, outflow),
// Z (weak momentum) and W (middling).
func newFixture() *fixture {
	cfg := config.Default()
	cfg.Data.MaxWorkers = 4

	flat := []float64{90, 90, 90, 90, 90}
	src := &fakeSource{
		history: map[string]models.HistoricalSeries{},
		confirm: map[string]models.Confirmation{},
	}
	for _, sym := range []string{"600001", "600002", "600003", "600004"} {
		src.history[sym] = flatHistory(sym)
		src.confirm[sym] = models.Confirmation{Symbol: sym}
	}

	return &fixture{
		cfg:    cfg,
		source: src,
		input: ScanInput{
			Date: scanDate,
			Snapshots: []models.Snapshot{
				snapshot("600001", 2000),  // X
				snapshot("600002", -2000), // Y
				snapshot("600003", 0),     // Z
				snapshot("600004", 0),     // W
			},
			Ranks: rankTable(10,
				models.MomentumRank{Symbol: "600001", RPS120: 92, SectorRank: 2, History: flat},
				models.MomentumRank{Symbol: "600002", RPS120: 95, SectorRank: 1, History: flat},
				models.MomentumRank{Symbol: "600003", RPS120: 30, SectorRank: 4, History: flat},
				models.MomentumRank{Symbol: "600004", RPS120: 75, SectorRank: 8, History: flat},
			),
			Index:        models.IndexQuote{Symbol: "000001", Price: 3050, ChangePct: 0.4},
			IndexHistory: risingIndex(),
		},
	}
}

func (f *fixture) run(t *testing.T) *ScanResult {
	t.Helper()
	res, err := NewPipeline(f.cfg, f.source, zerolog.Nop()).Run(context.Background(), f.input)
	require.NoError(t, err)
	return res
}

func symbols(cs []models.CandidateSignal) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Symbol
	}
	return out
}

func TestStrongCandidateIsGradeAAndFirst(t *testing.T) {
	res := fixtureRun(t)

	require.Equal(t, []string{"600001", "600004"}, symbols(res.Candidates))
	x := res.Candidates[0]
	assert.Equal(t, models.GradeA, x.Grade)
	assert.False(t, x.Trap)
	assert.Equal(t, models.CategoryCore, x.Category)
	assert.InDelta(t, 83.6, x.Score, 1e-9)
	assert.Equal(t, 1.0, x.Discount)
	assert.Equal(t, models.MoneyFlowInflow, x.MoneyFlow)

	w := res.Candidates[1]
	assert.Equal(t, models.GradeC, w.Grade)
	assert.Equal(t, models.CategoryPotential, w.Category)

	// fewer than five trades: half of the base amount
	assert.True(t, res.Kelly.Defaulted)
	assert.Equal(t, 25000.0, x.Amount)
	assert.Equal(t, 2400, x.Quantity)

	assert.Equal(t, 1, res.Dropped(StageMomentum))
	assert.Equal(t, 1, res.Dropped(StageTrap))
	assert.False(t, res.Sleep)
}

func fixtureRun(t *testing.T) *ScanResult {
	return newFixture().run(t)
}

func TestOutflowLeaderIsTrapAndExcluded(t *testing.T) {
	res := fixtureRun(t)

	assert.NotContains(t, symbols(res.Candidates), "600002")
	require.Len(t, res.Traps, 1)
	y := res.Traps[0]
	assert.Equal(t, "600002", y.Symbol)
	assert.Equal(t, models.GradeTrap, y.Grade)
	assert.True(t, y.Trap)
	assert.Equal(t, float64(trapMoneyFlowScore), y.Scores.MoneyFlow)
}

func TestIndexCrashSleeps(t *testing.T) {
	f := newFixture()
	f.input.Index.ChangePct = -2.5

	res := f.run(t)
	assert.True(t, res.Sleep)
	assert.NotEmpty(t, res.SleepReason)
	assert.Empty(t, res.Candidates)
}

func TestStaleRankingWarns(t *testing.T) {
	f := newFixture()
	f.input.RankStale = true

	res := f.run(t)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "stale")
	assert.Len(t, res.Candidates, 2)
}

func TestMissingRankingIsDataError(t *testing.T) {
	f := newFixture()
	f.input.Ranks = nil
	_, err := NewPipeline(f.cfg, f.source, zerolog.Nop()).Run(context.Background(), f.input)
	assert.True(t, errors.Is(err, errors.ErrRankUnavailable))
	assert.True(t, errors.Is(err, errors.ErrDataUnavailable))
}

func TestHistoryFailureDropsOnlyThatSymbol(t *testing.T) {
	f := newFixture()
	delete(f.source.history, "600004")

	res := f.run(t)
	assert.Equal(t, []string{"600001"}, symbols(res.Candidates))
	assert.Equal(t, 1, res.Dropped(StageProximity))
}

func TestUniverseExclusions(t *testing.T) {
	f := newFixture()
	st := snapshot("600005", 2000)
	st.Name = "*ST Foo"
	n := snapshot("600006", 2000)
	n.Name = "N Bar"
	f.input.Snapshots = append(f.input.Snapshots, st, n)
	f.cfg.Strategy.Blacklist = []string{"600004"}

	res := f.run(t)
	assert.Equal(t, 3, res.Dropped(StageUniverse))
	assert.Equal(t, []string{"600001"}, symbols(res.Candidates))
}

func TestColdMarketRaisesGateAndHalvesSize(t *testing.T) {
	f := newFixture()
	f.input.Ranks.Breadth = 5
	w := f.input.Ranks.Ranks["600004"]
	w.RPS120 = 65
	f.input.Ranks.Ranks["600004"] = w

	res := f.run(t)
	assert.Equal(t, []string{"600001"}, symbols(res.Candidates))
	assert.Equal(t, 70.0, res.Regime.RPSMin)
	assert.InDelta(t, 0.25, res.Kelly.Multiple, 1e-9)
	assert.Equal(t, 1200, res.Candidates[0].Quantity)
}

func TestHotMarketDropsVolumeSpikeAtMomentumGate(t *testing.T) {
	f := newFixture()
	f.input.Ranks.Breadth = 35
	spike := f.input.Snapshots[3]
	spike.VolumeRatio = 3.5
	f.input.Snapshots[3] = spike

	res := f.run(t)
	assert.True(t, res.Regime.TurnoverSpikeCheck)
	// the basic filter has no upper volume-ratio bound, so the spike reaches the gate
	assert.Zero(t, res.Dropped(StageBasic))
	assert.Equal(t, 2, res.Dropped(StageMomentum))
	assert.Equal(t, []string{"600001"}, symbols(res.Candidates))

	// below the spike ratio the same candidate survives
	f = newFixture()
	f.input.Ranks.Breadth = 35
	calm := f.input.Snapshots[3]
	calm.VolumeRatio = 2.9
	f.input.Snapshots[3] = calm
	res = f.run(t)
	assert.Equal(t, 1, res.Dropped(StageMomentum))
	assert.Contains(t, symbols(res.Candidates), "600004")
}

func TestScreenAgreesWithScan(t *testing.T) {
	f := newFixture()
	regime := resilience.NewRegimeDetector(f.cfg.Regime, f.cfg.Momentum.RPSMin).
		Assess(f.input.Index, f.input.IndexHistory, f.input.Ranks.Breadth)
	screen := func(snap models.Snapshot) Screening {
		series := indicators.TruncateSeries(f.source.history[snap.Symbol], scanDate)
		return Screen(f.cfg, snap, series, f.input.Ranks, regime)
	}

	x := screen(f.input.Snapshots[0])
	require.True(t, x.Passed(), x.Reason)
	assert.InDelta(t, 83.6, x.Signal.Score, 1e-9)
	assert.Equal(t, models.GradeA, x.Signal.Grade)

	y := screen(f.input.Snapshots[1])
	assert.Equal(t, StageTrap, y.Stage)
	assert.True(t, y.Signal.Trap)

	assert.Equal(t, StageMomentum, screen(f.input.Snapshots[2]).Stage)

	w := screen(f.input.Snapshots[3])
	require.True(t, w.Passed(), w.Reason)
	assert.Equal(t, models.GradeC, w.Signal.Grade)

	hot := f.input.Snapshots[0]
	hot.ChangePct = 5
	assert.Equal(t, StageBasic, screen(hot).Stage)
}

func TestSecondPassExcludesLateOutflow(t *testing.T) {
	f := newFixture()
	f.source.confirm["600001"] = models.Confirmation{Symbol: "600001", LateNetInflowRatio: -0.6}

	res := f.run(t)
	assert.Equal(t, []string{"600004"}, symbols(res.Candidates))
	assert.Equal(t, 1, res.Dropped(StageConfirmation))
}

func TestSecondPassAdjustsAndRegrades(t *testing.T) {
	f := newFixture()
	// concentrated late buying +8 and a shrinking shareholder base +8
	f.source.confirm["600004"] = models.Confirmation{
		Symbol:               "600004",
		LateNetInflowRatio:   0.4,
		LateConcentration:    0.6,
		ShareholderChangePct: -6,
	}
	delete(f.source.confirm, "600001")

	res := f.run(t)
	require.Len(t, res.Candidates, 2)
	w := res.Candidates[1]
	assert.InDelta(t, 63.5+16, w.Score, 1e-9)
	assert.Equal(t, models.GradeB, w.Grade)

	x := res.Candidates[0]
	assert.InDelta(t, 83.6, x.Score, 1e-9)
	assert.Contains(t, x.Reasons, "second pass unavailable")
}

func TestSectorFilterSparesGradeA(t *testing.T) {
	f := newFixture()
	r := f.input.Ranks.Ranks["600004"]
	r.SectorRank = 40
	f.input.Ranks.Ranks["600004"] = r
	// X keeps grade A even in a weak sector
	x := f.input.Ranks.Ranks["600001"]
	x.SectorRank = 0
	f.input.Ranks.Ranks["600001"] = x
	f.input.Snapshots[0].PE = 10
	f.input.Snapshots[0].PB = 1.0
	f.input.Snapshots[0].MarketCap = 100

	res := f.run(t)
	assert.Equal(t, []string{"600001"}, symbols(res.Candidates))
	assert.Equal(t, models.GradeA, res.Candidates[0].Grade)
	assert.Equal(t, 1, res.Dropped(StageSector))
}

func TestTiesBreakBySymbol(t *testing.T) {
	cs := []models.CandidateSignal{
		{Symbol: "600009", Score: 70},
		{Symbol: "600001", Score: 70},
		{Symbol: "600005", Score: 90},
	}
	sortCandidates(cs)
	assert.Equal(t, []string{"600005", "600001", "600009"}, symbols(cs))
}
