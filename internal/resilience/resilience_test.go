package resilience

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

func flatIndex(n int, close float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{Close: close}
	}
	return out
}

// tenAndTwenty builds 20 closes whose MA10 is ma10 and MA20 is ma20.
func tenAndTwenty(ma10, ma20 float64) []models.Candle {
	older := 2*ma20 - ma10
	out := flatIndex(10, older)
	return append(out, flatIndex(10, ma10)...)
}

func TestRegimeTrendClassification(t *testing.T) {
	d := NewRegimeDetector(config.Default().Regime, 40)

	cases := []struct {
		name     string
		price    float64
		trend    Trend
		discount float64
	}{
		{"above both", 3100, TrendUp, 1.0},
		{"above MA20 only", 3020, TrendChoppy, 0.9},
		{"below both", 2900, TrendDown, 0.7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := d.Assess(models.IndexQuote{Price: tc.price, ChangePct: 0.3}, tenAndTwenty(3050, 3000), 10)
			assert.Equal(t, tc.trend, a.Trend)
			assert.Equal(t, tc.discount, a.Discount)
			assert.False(t, a.Sleep)
		})
	}

	rebound := d.Assess(models.IndexQuote{Price: 3020}, tenAndTwenty(3000, 3050), 10)
	assert.Equal(t, TrendRebound, rebound.Trend)
	assert.Equal(t, 0.8, rebound.Discount)
}

func TestRegimeCrashSleeps(t *testing.T) {
	d := NewRegimeDetector(config.Default().Regime, 40)
	a := d.Assess(models.IndexQuote{Price: 3100, ChangePct: -2.3}, tenAndTwenty(3050, 3000), 10)
	assert.True(t, a.Sleep)
	assert.Equal(t, TrendCrash, a.Trend)
	assert.Equal(t, 0.5, a.Discount)
	assert.Contains(t, a.Reason, "-2.30")
}

func TestRegimeSleepBelowMA20WhenEnabled(t *testing.T) {
	cfg := config.Default().Regime
	d := NewRegimeDetector(cfg, 40)
	assert.False(t, d.Assess(models.IndexQuote{Price: 2900}, tenAndTwenty(3050, 3000), 10).Sleep)

	cfg.SleepBelowMA20 = true
	d = NewRegimeDetector(cfg, 40)
	assert.True(t, d.Assess(models.IndexQuote{Price: 2900}, tenAndTwenty(3050, 3000), 10).Sleep)
}

func TestRegimeShortIndexHistorySleeps(t *testing.T) {
	d := NewRegimeDetector(config.Default().Regime, 40)
	a := d.Assess(models.IndexQuote{Price: 3000}, flatIndex(12, 3000), 10)
	assert.True(t, a.Sleep)
	assert.Equal(t, TrendUnknown, a.Trend)
}

// Property: the breadth level fixes the momentum gate and sizing multiplier.
func TestProperty_BreadthAdjustments(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	d := NewRegimeDetector(config.Default().Regime, 40)
	index := tenAndTwenty(3050, 3000)

	properties.Property("cold raises rps min, hot enables spike check", prop.ForAll(
		func(breadth float64) bool {
			a := d.Assess(models.IndexQuote{Price: 3100}, index, breadth)
			switch {
			case breadth < 8:
				return a.BreadthLevel == BreadthCold && a.RPSMin == 70 && a.PositionMultiplier == 0.5 && !a.TurnoverSpikeCheck
			case breadth > 30:
				return a.BreadthLevel == BreadthHot && a.RPSMin == 40 && a.PositionMultiplier == 1 && a.TurnoverSpikeCheck && a.TurnoverSpikeRatio == 3
			default:
				return a.BreadthLevel == BreadthNormal && a.RPSMin == 40 && a.PositionMultiplier == 1 && !a.TurnoverSpikeCheck
			}
		},
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}

func TestAssessBreadthNeverSleeps(t *testing.T) {
	d := NewRegimeDetector(config.Default().Regime, 40)
	a := d.AssessBreadth(35)
	assert.False(t, a.Sleep)
	assert.Equal(t, TrendUnknown, a.Trend)
	assert.Equal(t, 1.0, a.Discount)
	assert.True(t, a.TurnoverSpikeCheck)

	a = d.AssessBreadth(5)
	assert.Equal(t, 70.0, a.RPSMin)
	assert.Equal(t, 0.5, a.PositionMultiplier)
}

func TestBreadthLabel(t *testing.T) {
	assert.Equal(t, "very strong", BreadthLabel(16))
	assert.Equal(t, "good", BreadthLabel(9))
	assert.Equal(t, "normal", BreadthLabel(5))
	assert.Equal(t, "weak", BreadthLabel(4))
}

func TestSessionCalendar(t *testing.T) {
	cal := NewSessionCalendar(ShanghaiLocation)
	at := func(y int, m time.Month, d, hh, mm int) time.Time {
		return time.Date(y, m, d, hh, mm, 0, 0, ShanghaiLocation)
	}

	assert.Equal(t, SessionCallAuction, cal.SessionAt(at(2024, 6, 14, 9, 20)))
	assert.Equal(t, SessionMorning, cal.SessionAt(at(2024, 6, 14, 10, 0)))
	assert.Equal(t, SessionLunch, cal.SessionAt(at(2024, 6, 14, 12, 0)))
	assert.Equal(t, SessionAfternoon, cal.SessionAt(at(2024, 6, 14, 14, 50)))
	assert.Equal(t, SessionClosed, cal.SessionAt(at(2024, 6, 14, 15, 0)))
	assert.False(t, cal.IsOpen(at(2024, 6, 15, 10, 0))) // Saturday

	// Friday before the Dragon Boat holiday settles on Tuesday
	next := cal.NextTradingDay(at(2024, 6, 7, 14, 35))
	assert.Equal(t, at(2024, 6, 11, 0, 0), next)
	assert.Equal(t, at(2024, 6, 7, 0, 0), cal.PreviousTradingDay(next))
	assert.Equal(t, 1, cal.TradingDaysBetween(at(2024, 6, 7, 10, 0), at(2024, 6, 11, 10, 0)))
	assert.Equal(t, 0, cal.TradingDaysBetween(at(2024, 6, 7, 10, 0), at(2024, 6, 7, 14, 0)))
}

func TestHealthMonitorWorstStatusWins(t *testing.T) {
	m := NewHealthMonitor(time.Second)
	m.RegisterComponent("store", PingHealthCheck("store", time.Second, func(ctx context.Context) error { return nil }))
	m.RegisterComponent("breaker", BreakerHealthCheck("breaker", func() int { return 1 }))

	health := m.Check(context.Background())
	require.Len(t, health.Components, 2)
	assert.Equal(t, HealthStatusDegraded, health.Status)

	m.RegisterComponent("cache", PingHealthCheck("cache", time.Second, func(ctx context.Context) error { return errors.New("refused") }))
	rec := httptest.NewRecorder()
	m.HealthHTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 503, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNHEALTHY")
}
