// Package models provides domain models for the scoring pipeline and risk engine.
package models

import (
	"time"
)

// Candle represents OHLCV data for one trading day.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// Snapshot is one row of the market-wide refresh taken at scan time.
type Snapshot struct {
	Symbol      string
	Name        string
	Sector      string
	Price       float64
	Open        float64
	High        float64
	Low         float64
	PrevClose   float64
	ChangePct   float64 // percent, 2.0 means +2%
	TurnoverPct float64 // percent
	VolumeRatio float64 // vs. 5-day average volume
	Amplitude   float64 // fraction of previous close
	Bullish     bool

	// Factor inputs, zero when the provider has no value.
	PE            float64
	PB            float64
	MarketCap     float64 // 100M CNY
	MainNetInflow float64 // 10k CNY

	Timestamp time.Time
}

// HistoricalSeries holds daily candles for one symbol, oldest first.
// The last candle must be dated before the day being evaluated.
type HistoricalSeries struct {
	Symbol  string
	Candles []Candle
}

// Len returns the number of candles.
func (s HistoricalSeries) Len() int {
	return len(s.Candles)
}

// Closes returns the close prices in order.
func (s HistoricalSeries) Closes() []float64 {
	closes := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		closes[i] = c.Close
	}
	return closes
}

// Last returns the most recent candle.
func (s HistoricalSeries) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// IndexQuote is the benchmark index reading used for regime detection.
type IndexQuote struct {
	Symbol    string
	Price     float64
	ChangePct float64
	Timestamp time.Time
}

// Confirmation carries the second-pass signals for one symbol.
type Confirmation struct {
	Symbol string
	// LateNetInflowRatio is net buying in the closing window over total
	// closing-window turnover, in [-1, 1].
	LateNetInflowRatio float64
	// LateConcentration is the share of the day's net inflow that arrived in
	// the closing window, in [0, 1].
	LateConcentration float64
	// ShareholderChangePct is the latest change in shareholder count, percent.
	ShareholderChangePct float64
}

// AdjustMode selects price adjustment for historical fetches.
type AdjustMode string

const (
	AdjustNone    AdjustMode = ""
	AdjustForward AdjustMode = "qfq"
	AdjustBack    AdjustMode = "hfq"
)
