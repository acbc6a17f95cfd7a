package trading

import (
	"time"

	"alphahunter/internal/resilience"
)

// SettlementRule enforces T+1: shares bought on a trading day become
// sellable on the next trading day.
type SettlementRule struct {
	calendar *resilience.SessionCalendar
}

// NewSettlementRule creates a rule over calendar.
func NewSettlementRule(calendar *resilience.SessionCalendar) SettlementRule {
	return SettlementRule{calendar: calendar}
}

// SellableFrom returns midnight of the first day the position may be sold.
func (r SettlementRule) SellableFrom(entry time.Time) time.Time {
	return r.calendar.NextTradingDay(entry)
}

// CanSell reports whether a position entered at entry may be sold at at.
func (r SettlementRule) CanSell(entry, at time.Time) bool {
	return !at.In(r.calendar.Location()).Before(r.SellableFrom(entry))
}

// HoldingDays counts trading days held, with a minimum of one for a
// position closed on its entry day.
func (r SettlementRule) HoldingDays(entry, exit time.Time) int {
	if n := r.calendar.TradingDaysBetween(entry, exit); n > 0 {
		return n
	}
	return 1
}
