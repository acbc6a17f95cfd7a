package indicators

import (
	"fmt"
	"math"

	"alphahunter/internal/models"
)

// SMA calculates Simple Moving Average over closes.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA_%d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

func (s *SMA) Calculate(candles []models.Candle) ([]float64, error) {
	return SMASeries(closePrices(candles), s.period)
}

// SMASeries returns the rolling mean aligned with values. Entries before the
// first full window are NaN.
func SMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(values))
	for i := 0; i < period-1; i++ {
		result[i] = math.NaN()
	}
	for i := period - 1; i < len(values); i++ {
		result[i] = mean(values[i-period+1 : i+1])
	}
	return result, nil
}

// SMAValue returns the mean of the last period values.
func SMAValue(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(values) < period {
		return 0, ErrInsufficientData
	}
	return mean(values[len(values)-period:]), nil
}

// RealtimeMA treats the current price as today's close: the last period-1
// historical closes plus current, divided by period.
func RealtimeMA(closes []float64, current float64, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(closes) < period-1 {
		return 0, ErrInsufficientData
	}
	window := closes[len(closes)-(period-1):]
	return (sum(window) + current) / float64(period), nil
}

// Bias returns (price - ma) / ma as a fraction.
func Bias(price, ma float64) (float64, error) {
	if ma <= 0 {
		return 0, ErrInvalidPrice
	}
	return (price - ma) / ma, nil
}

// Amplitude returns the session range over the previous close as a fraction.
func Amplitude(high, low, prevClose float64) (float64, error) {
	if prevClose <= 0 {
		return 0, ErrInvalidPrice
	}
	return (high - low) / prevClose, nil
}

// IsRollingHigh reports whether the last close is the highest close of the
// trailing window.
func IsRollingHigh(closes []float64, window int) bool {
	if window <= 0 || len(closes) < window {
		return false
	}
	last := closes[len(closes)-1]
	for _, c := range closes[len(closes)-window:] {
		if c > last {
			return false
		}
	}
	return true
}

// ChangePct returns the percent change from prev to cur.
func ChangePct(prev, cur float64) (float64, error) {
	if prev <= 0 {
		return 0, ErrInvalidPrice
	}
	return (cur - prev) / prev * 100, nil
}
