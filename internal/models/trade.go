package models

import "time"

// Trade is the archival record of a full or partial close.
type Trade struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Grade       Grade     `json:"grade"`
	Strategy    string    `json:"strategy"`
	EntryDate   time.Time `json:"entry_date"`
	ExitDate    time.Time `json:"exit_date"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Quantity    int       `json:"quantity"`
	PnLAmount   float64   `json:"pnl_amount"`
	PnLPct      float64   `json:"pnl_pct"`
	HoldingDays int       `json:"holding_days"`
	Reason      string    `json:"reason"`
}

// Win reports whether the trade closed with a profit.
func (t Trade) Win() bool {
	return t.PnLPct > 0
}
