package indicators

import (
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"alphahunter/internal/models"
)

var shanghai = time.FixedZone("CST", 8*3600)

// dailyCandles builds n consecutive daily candles ending on last (inclusive).
func dailyCandles(n int, last time.Time, base float64) []models.Candle {
	candles := make([]models.Candle, n)
	start := last.AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		price := base + float64(i%7) - 3
		candles[i] = models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      price - 0.5,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    int64(1000 + i),
		}
	}
	return candles
}

// Property: after truncation every candle is dated strictly before the
// evaluation day, the result is a prefix of the input, and truncating again
// changes nothing.
func TestProperty_TruncateRemovesEvaluationDay(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("no candle on or after the evaluation day survives", prop.ForAll(
		func(n int, offset int, hour int) bool {
			evalDay := time.Date(2024, 6, 14, hour, 30, 0, 0, shanghai)
			// series may run past the evaluation day by up to offset days
			last := time.Date(2024, 6, 14, 15, 0, 0, 0, shanghai).AddDate(0, 0, offset)
			candles := dailyCandles(n, last, 20)

			out := TruncateBefore(candles, evalDay)
			if CheckNoLookAhead(out, evalDay) != nil {
				return false
			}
			for i := range out {
				if !out[i].Timestamp.Equal(candles[i].Timestamp) {
					return false
				}
			}
			return len(TruncateBefore(out, evalDay)) == len(out)
		},
		gen.IntRange(1, 60),
		gen.IntRange(-5, 5),
		gen.IntRange(0, 23),
	))

	properties.TestingRun(t)
}

func TestCheckNoLookAheadDetectsToday(t *testing.T) {
	today := time.Date(2024, 6, 14, 14, 35, 0, 0, shanghai)
	candles := dailyCandles(10, today, 10)

	if err := CheckNoLookAhead(candles, today); err != ErrLookAhead {
		t.Fatalf("expected ErrLookAhead, got %v", err)
	}
	if got := len(TruncateBefore(candles, today)); got != 9 {
		t.Fatalf("expected 9 candles after truncation, got %d", got)
	}
}

// Property: with unique momentum values, percentile ranks over N symbols are
// exactly {100/N, 200/N, ..., 100}.
func TestProperty_PercentileRankBijection(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("unique values map onto (0,100] one-to-one", prop.ForAll(
		func(raw []float64) bool {
			values := make(map[string]float64)
			seen := make(map[float64]bool)
			for i, v := range raw {
				if seen[v] {
					continue
				}
				seen[v] = true
				values[fmt.Sprintf("S%03d", i)] = v
			}
			n := len(values)
			if n == 0 {
				return len(PercentileRank(values)) == 0
			}

			ranks := PercentileRank(values)
			got := make([]float64, 0, n)
			for _, r := range ranks {
				if r <= 0 || r > 100 {
					return false
				}
				got = append(got, r)
			}
			sort.Float64s(got)
			for i, r := range got {
				if math.Abs(r-float64(i+1)/float64(n)*100) > 1e-9 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-0.5, 2.0)),
	))

	properties.Property("ranks follow value order", prop.ForAll(
		func(raw []float64) bool {
			values := make(map[string]float64)
			for i, v := range raw {
				values[fmt.Sprintf("S%03d", i)] = v
			}
			ranks := PercentileRank(values)
			for a, va := range values {
				for b, vb := range values {
					if va < vb && ranks[a] >= ranks[b] {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.Float64Range(-0.5, 2.0)),
	))

	properties.TestingRun(t)
}

// Property: tied values always share a rank, whatever the symbol names
// (and therefore map iteration and sort order) are.
func TestProperty_PercentileRankTiesOrderIndependent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("equal momentum gives equal rank", prop.ForAll(
		func(levels []int, prefix string) bool {
			values := make(map[string]float64)
			for i, lvl := range levels {
				values[fmt.Sprintf("%s%d", prefix, i)] = float64(lvl) / 10
			}
			ranks := PercentileRank(values)

			// rename symbols in reverse order and rank again
			renamed := make(map[string]float64)
			for i, lvl := range levels {
				renamed[fmt.Sprintf("Z%d", len(levels)-i)] = float64(lvl) / 10
			}
			again := PercentileRank(renamed)

			byValue := make(map[float64]float64)
			for sym, v := range values {
				if r, ok := byValue[v]; ok && r != ranks[sym] {
					return false
				}
				byValue[v] = ranks[sym]
			}
			for sym, v := range renamed {
				if again[sym] != byValue[v] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
		gen.OneConstOf("A", "m", "600"),
	))

	properties.TestingRun(t)
}

func TestRealtimeMAUsesFourClosesPlusCurrent(t *testing.T) {
	closes := []float64{9, 10, 10, 10, 10}
	ma, err := RealtimeMA(closes, 11, 5)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ma-10.2) > 1e-9 {
		t.Fatalf("expected 10.2, got %v", ma)
	}
	if _, err := RealtimeMA([]float64{1, 2, 3}, 4, 5); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestBiasAndAmplitude(t *testing.T) {
	bias, err := Bias(10.2, 10)
	if err != nil || math.Abs(bias-0.02) > 1e-9 {
		t.Fatalf("bias = %v, %v", bias, err)
	}
	if _, err := Bias(10, 0); err != ErrInvalidPrice {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	amp, err := Amplitude(10.5, 10.2, 10)
	if err != nil || math.Abs(amp-0.03) > 1e-9 {
		t.Fatalf("amplitude = %v, %v", amp, err)
	}
}

// Property: a series whose every true range is r has ATR r.
func TestProperty_ATRConstantRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("constant range gives that range", prop.ForAll(
		func(period int, extra int, rng float64) bool {
			n := period + 1 + extra
			candles := make([]models.Candle, n)
			for i := range candles {
				candles[i] = models.Candle{Open: 10, High: 10 + rng/2, Low: 10 - rng/2, Close: 10}
			}
			atr, err := ATRValue(candles, period)
			return err == nil && math.Abs(atr-rng) < 1e-9
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 30),
		gen.Float64Range(0.01, 2),
	))

	properties.Property("too few candles is an error", prop.ForAll(
		func(period int) bool {
			_, err := ATRValue(make([]models.Candle, period), period)
			return err == ErrInsufficientData
		},
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

func TestSMAValue(t *testing.T) {
	v, err := SMAValue([]float64{1, 2, 3, 4, 5, 6}, 5)
	if err != nil || v != 4 {
		t.Fatalf("SMAValue = %v, %v", v, err)
	}
	if _, err := SMAValue([]float64{1}, 0); err != ErrInvalidPeriod {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	series, err := NewSMA(3).Calculate(dailyCandles(5, time.Now(), 10))
	if err != nil || !math.IsNaN(series[0]) || math.IsNaN(series[2]) {
		t.Fatalf("unexpected SMA series %v, %v", series, err)
	}
}

// Property: the least-squares slope of a + b*i is b.
func TestProperty_LinearSlopeRecoversLine(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("slope of a line", prop.ForAll(
		func(a, b float64, n int) bool {
			values := make([]float64, n)
			for i := range values {
				values[i] = a + b*float64(i)
			}
			return math.Abs(LinearSlope(values)-b) < 1e-6
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(-10, 10),
		gen.IntRange(2, 10),
	))

	properties.TestingRun(t)
}

func TestTrailingReturnAndRollingHigh(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 15}
	r, err := TrailingReturn(closes, 4)
	if err != nil || math.Abs(r-0.5) > 1e-9 {
		t.Fatalf("TrailingReturn = %v, %v", r, err)
	}
	if _, err := TrailingReturn(closes, 5); err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if !IsRollingHigh(closes, 3) {
		t.Fatal("expected rolling high")
	}
	if IsRollingHigh([]float64{10, 16, 15}, 3) {
		t.Fatal("did not expect rolling high")
	}
}

func TestTrueRangeUsesPriorClose(t *testing.T) {
	c := models.Candle{High: 10.5, Low: 10.1, Close: 10.3}
	if got := TrueRange(c, 10.2); math.Abs(got-0.4) > 1e-9 {
		t.Fatalf("inside range: got %v", got)
	}
	if got := TrueRange(c, 9.8); math.Abs(got-0.7) > 1e-9 {
		t.Fatalf("gap up: got %v", got)
	}
	if got := TrueRange(c, 11.0); math.Abs(got-0.9) > 1e-9 {
		t.Fatalf("gap down: got %v", got)
	}
}
