// Package indicators computes moving averages, bias, amplitude, ATR and
// momentum ranks from time-ordered price series. Everything here is pure.
package indicators

import (
	"errors"
	"math"

	"alphahunter/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrInvalidPrice is returned when a reference price is zero or negative.
	ErrInvalidPrice = errors.New("invalid reference price")
	// ErrLookAhead is returned when a series contains the evaluation day.
	ErrLookAhead = errors.New("series contains bars on or after the evaluation date")
)

// Indicator is a series indicator over daily candles.
type Indicator interface {
	Name() string
	Period() int
	Calculate(candles []models.Candle) ([]float64, error)
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// trueRange calculates the true range for a candle.
func trueRange(current, previous models.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// TrueRange exposes the true range of c against the prior close.
func TrueRange(c models.Candle, prevClose float64) float64 {
	return trueRange(c, models.Candle{Close: prevClose})
}

// closePrices extracts close prices from candles.
func closePrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return prices
}

// Round2 rounds to the 0.01 price tick.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
