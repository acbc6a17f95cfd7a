package resilience

import (
	"time"
)

// ShanghaiLocation is the exchange time zone.
var ShanghaiLocation *time.Location

func init() {
	var err error
	ShanghaiLocation, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		ShanghaiLocation = time.FixedZone("CST", 8*60*60)
	}
}

// MarketSession represents the phases of an A-share trading day.
type MarketSession string

const (
	SessionCallAuction MarketSession = "CALL_AUCTION"
	SessionMorning     MarketSession = "MORNING"
	SessionLunch       MarketSession = "LUNCH"
	SessionAfternoon   MarketSession = "AFTERNOON"
	SessionClosed      MarketSession = "CLOSED"
)

// SessionCalendar knows exchange hours, weekends and holidays.
type SessionCalendar struct {
	loc      *time.Location
	holidays map[string]bool
}

// NewSessionCalendar creates a calendar in loc with the built-in holidays.
func NewSessionCalendar(loc *time.Location) *SessionCalendar {
	if loc == nil {
		loc = ShanghaiLocation
	}
	c := &SessionCalendar{loc: loc, holidays: make(map[string]bool)}
	for _, d := range exchangeHolidays {
		c.holidays[d] = true
	}
	return c
}

// Location returns the calendar time zone.
func (c *SessionCalendar) Location() *time.Location {
	return c.loc
}

// AddHoliday marks a date as closed.
func (c *SessionCalendar) AddHoliday(date time.Time) {
	c.holidays[date.In(c.loc).Format("2006-01-02")] = true
}

// IsHoliday checks if a date is an exchange holiday.
func (c *SessionCalendar) IsHoliday(date time.Time) bool {
	return c.holidays[date.In(c.loc).Format("2006-01-02")]
}

// IsTradingDay reports whether the exchange trades on t's date.
func (c *SessionCalendar) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !c.IsHoliday(t)
}

// SessionAt returns the session at t.
func (c *SessionCalendar) SessionAt(t time.Time) MarketSession {
	t = t.In(c.loc)
	if !c.IsTradingDay(t) {
		return SessionClosed
	}

	minutes := t.Hour()*60 + t.Minute()
	switch {
	case minutes >= 9*60+15 && minutes < 9*60+30:
		return SessionCallAuction
	case minutes >= 9*60+30 && minutes < 11*60+30:
		return SessionMorning
	case minutes >= 11*60+30 && minutes < 13*60:
		return SessionLunch
	case minutes >= 13*60 && minutes < 15*60:
		return SessionAfternoon
	default:
		return SessionClosed
	}
}

// IsOpen reports whether continuous trading is running at t.
func (c *SessionCalendar) IsOpen(t time.Time) bool {
	s := c.SessionAt(t)
	return s == SessionMorning || s == SessionAfternoon
}

// NextTradingDay returns midnight of the first trading day after t's date.
func (c *SessionCalendar) NextTradingDay(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	next := time.Date(y, m, d, 0, 0, 0, 0, c.loc).AddDate(0, 0, 1)
	for !c.IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// PreviousTradingDay returns midnight of the last trading day before t's date.
func (c *SessionCalendar) PreviousTradingDay(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	prev := time.Date(y, m, d, 0, 0, 0, 0, c.loc).AddDate(0, 0, -1)
	for !c.IsTradingDay(prev) {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}

// TradingDaysBetween counts trading days in (from, to].
func (c *SessionCalendar) TradingDaysBetween(from, to time.Time) int {
	n := 0
	for d := c.NextTradingDay(from); !d.After(to.In(c.loc)); d = c.NextTradingDay(d) {
		n++
	}
	return n
}

// exchangeHolidays lists SSE/SZSE weekday closures.
var exchangeHolidays = []string{
	// 2024
	"2024-01-01",
	"2024-02-09", "2024-02-12", "2024-02-13", "2024-02-14", "2024-02-15", "2024-02-16",
	"2024-04-04", "2024-04-05",
	"2024-05-01", "2024-05-02", "2024-05-03",
	"2024-06-10",
	"2024-09-16", "2024-09-17",
	"2024-10-01", "2024-10-02", "2024-10-03", "2024-10-04", "2024-10-07",
	// 2025
	"2025-01-01",
	"2025-01-28", "2025-01-29", "2025-01-30", "2025-01-31", "2025-02-03", "2025-02-04",
	"2025-04-04",
	"2025-05-01", "2025-05-02", "2025-05-05",
	"2025-06-02",
	"2025-10-01", "2025-10-02", "2025-10-03", "2025-10-06", "2025-10-07", "2025-10-08",
}
