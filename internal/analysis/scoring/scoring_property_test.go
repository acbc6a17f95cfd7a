package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

func tradesFromPnL(pnls []float64, exit time.Time) []models.Trade {
	out := make([]models.Trade, len(pnls))
	for i, p := range pnls {
		out[i] = models.Trade{Symbol: "600000", PnLPct: p, ExitDate: exit}
	}
	return out
}

// Property: the sized amount always lies within [0.2, 2.0] x base, whatever
// the trade history and regime multiplier.
func TestProperty_KellyBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	cfg := config.Default().Kelly

	properties.Property("multiple within configured bounds", prop.ForAll(
		func(pnls []float64, regime float64) bool {
			est := Kelly(tradesFromPnL(pnls, scanDate), cfg, regime)
			amount, _ := Size(est.Multiple, 10, cfg)
			return est.Multiple >= cfg.MinMultiple-1e-12 &&
				est.Multiple <= cfg.MaxMultiple+1e-12 &&
				amount >= 0.2*cfg.BaseAmount-1e-6 &&
				amount <= 2.0*cfg.BaseAmount+1e-6
		},
		gen.SliceOf(gen.Float64Range(-20, 30)),
		gen.Float64Range(0, 3),
	))

	properties.Property("fewer than five trades defaults to half", prop.ForAll(
		func(pnls []float64) bool {
			est := Kelly(tradesFromPnL(pnls, scanDate), cfg, 1.0)
			amount, _ := Size(est.Multiple, 10, cfg)
			return est.Defaulted && math.Abs(amount-0.5*cfg.BaseAmount) < 1e-9
		},
		gen.SliceOfN(4, gen.Float64Range(-20, 30)).SuchThat(func(v []float64) bool { return len(v) < 5 }),
	))

	properties.Property("quantity is whole lots within the amount", prop.ForAll(
		func(multiple, price float64) bool {
			amount, qty := Size(multiple, price, cfg)
			return qty%100 == 0 && float64(qty)*price <= amount+1e-6 && float64(qty+100)*price > amount-1e-6
		},
		gen.Float64Range(0.2, 2.0),
		gen.Float64Range(1, 300),
	))

	properties.TestingRun(t)
}

func TestKellyFormula(t *testing.T) {
	cfg := config.Default().Kelly
	// p = 0.6, avg win 6, avg loss -3: b = 2, f* = 0.4, x0.5/0.25 = 0.8
	est := Kelly(tradesFromPnL([]float64{6, 6, 6, -3, -3}, scanDate), cfg, 1.0)
	assert.False(t, est.Defaulted)
	assert.InDelta(t, 0.6, est.WinRate, 1e-9)
	assert.InDelta(t, 2.0, est.Payoff, 1e-9)
	assert.InDelta(t, 0.8, est.Multiple, 1e-9)

	// all wins: payoff assumed 3, f* = 1, clamped to the max
	est = Kelly(tradesFromPnL([]float64{1, 2, 3, 4, 5}, scanDate), cfg, 1.0)
	assert.InDelta(t, 2.0, est.Multiple, 1e-9)

	// all losses clamp to the min
	est = Kelly(tradesFromPnL([]float64{-1, -2, -3, -4, -5}, scanDate), cfg, 1.0)
	assert.InDelta(t, 0.2, est.Multiple, 1e-9)
}

func TestTrailingTradesWindow(t *testing.T) {
	trades := []models.Trade{
		{Symbol: "a", ExitDate: scanDate.AddDate(0, 0, -31)},
		{Symbol: "b", ExitDate: scanDate.AddDate(0, 0, -29)},
		{Symbol: "c", ExitDate: scanDate.AddDate(0, 0, 1)},
	}
	got := TrailingTrades(trades, scanDate, 30)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "b", got[0].Symbol)
	}
}

// Property: a candidate is a trap exactly when RPS120 >= the trap threshold
// and money flow is outflow, and a trap never reaches the candidate list.
func TestProperty_TrapIff(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	scfg := config.Default().Scoring

	properties.Property("trap iff strong and outflow", prop.ForAll(
		func(rps, inflow float64) bool {
			flow := classifyFlow(inflow, scfg).Flow
			want := rps >= scfg.TrapRPS && inflow < scfg.OutflowThreshold
			return IsTrap(rps, flow, scfg.TrapRPS) == want
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(-5000, 5000),
	))

	properties.Property("pipeline never emits a trap", prop.ForAll(
		func(rps, inflow float64) bool {
			f := newFixture()
			r := f.input.Ranks.Ranks["600001"]
			r.RPS120 = rps
			f.input.Ranks.Ranks["600001"] = r
			f.input.Snapshots[0].MainNetInflow = inflow

			res := f.run(t)
			trap := rps >= scfg.TrapRPS && inflow < scfg.OutflowThreshold
			for _, c := range res.Candidates {
				if c.Trap || c.Grade == models.GradeTrap {
					return false
				}
				if c.Symbol == "600001" && trap {
					return false
				}
			}
			inTraps := false
			for _, c := range res.Traps {
				inTraps = inTraps || c.Symbol == "600001"
			}
			return inTraps == trap
		},
		gen.Float64Range(40, 100),
		gen.Float64Range(-5000, 5000),
	))

	properties.TestingRun(t)
}

func TestFactorScores(t *testing.T) {
	assert.Equal(t, 100.0, valuationScore(10, 1.0, 100))
	assert.Equal(t, 50.0, valuationScore(0, 0, 0))
	assert.Equal(t, 30.0, valuationScore(-5, 6, 10))
	assert.Equal(t, 60.0, valuationScore(30, 2, 30))

	score, pattern := volumeEnergy(1.5, 0.8)
	assert.Equal(t, models.VolumeShrinkingRise, pattern)
	assert.Equal(t, 65.0, score)

	score, pattern = volumeEnergy(0.5, 3.0)
	assert.Equal(t, models.VolumeStagnant, pattern)
	assert.Equal(t, 55.0, score)

	score, pattern = volumeEnergy(2.5, 1.5)
	assert.Equal(t, models.VolumeHealthy, pattern)
	assert.Equal(t, 70.0, score)

	heat, bonus := sectorHeat(4)
	assert.Equal(t, 90.0, heat)
	assert.Equal(t, 10.0, bonus)
	heat, _ = sectorHeat(0)
	assert.Equal(t, 50.0, heat)
}

func TestSlopeAdjustment(t *testing.T) {
	adj, _, ok := slopeAdjustment([]float64{80, 83, 86, 89, 92}, 92, 5)
	assert.True(t, ok)
	assert.Equal(t, 10.0, adj)

	adj, _, _ = slopeAdjustment([]float64{95, 92, 89, 86, 83}, 83, 5)
	assert.Equal(t, -8.0, adj)

	_, _, ok = slopeAdjustment([]float64{90}, 90, 5)
	assert.False(t, ok)
}
