package indicators

import (
	"fmt"

	"alphahunter/internal/models"
)

// ATR calculates the Average True Range.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

// Calculate needs period+1 candles; entries before the first full window are 0.
func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < a.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	tr := make([]float64, n)

	for i := 1; i < n; i++ {
		tr[i] = trueRange(candles[i], candles[i-1])
	}

	// Seed with the mean of the first period true ranges, then Wilder smoothing.
	result[a.period] = mean(tr[1 : a.period+1])
	for i := a.period + 1; i < n; i++ {
		result[i] = (result[i-1]*float64(a.period-1) + tr[i]) / float64(a.period)
	}

	return result, nil
}

// ATRValue returns the latest ATR.
func ATRValue(candles []models.Candle, period int) (float64, error) {
	values, err := NewATR(period).Calculate(candles)
	if err != nil {
		return 0, err
	}
	return values[len(values)-1], nil
}
