package models

import "time"

// Position is the open holding for one symbol.
type Position struct {
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	EntryPrice   float64   `json:"entry_price"` // weighted-average cost
	EntryDate    time.Time `json:"entry_date"`
	Quantity     int       `json:"quantity"`
	HighestPrice float64   `json:"highest_price"`
	Grade        Grade     `json:"grade"`
	ATR          float64   `json:"atr"` // zero when the stop is the fixed-percent fallback
	StopPrice    float64   `json:"stop_price"`
	Strategy     string    `json:"strategy"`
	Note         string    `json:"note,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PnLPct returns the unrealized percent gain at price.
func (p *Position) PnLPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// MaxPnLPct returns the best unrealized percent gain seen since entry.
func (p *Position) MaxPnLPct() float64 {
	return p.PnLPct(p.HighestPrice)
}

// DrawdownPct returns the percent retrace of price from the highest price.
// It is zero or negative.
func (p *Position) DrawdownPct(price float64) float64 {
	if p.HighestPrice <= 0 || price >= p.HighestPrice {
		return 0
	}
	return (price - p.HighestPrice) / p.HighestPrice * 100
}

// MarketValue returns quantity times price.
func (p *Position) MarketValue(price float64) float64 {
	return float64(p.Quantity) * price
}
