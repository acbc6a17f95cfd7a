package indicators

import (
	"time"

	"alphahunter/internal/models"
)

// TruncateBefore returns the prefix of candles dated strictly before the
// calendar day of day. Candles are compared in day's location.
func TruncateBefore(candles []models.Candle, day time.Time) []models.Candle {
	cutoff := models.DayStart(day)
	end := len(candles)
	for end > 0 && !candles[end-1].Timestamp.In(cutoff.Location()).Before(cutoff) {
		end--
	}
	return candles[:end]
}

// TruncateSeries applies TruncateBefore to a series.
func TruncateSeries(s models.HistoricalSeries, day time.Time) models.HistoricalSeries {
	return models.HistoricalSeries{Symbol: s.Symbol, Candles: TruncateBefore(s.Candles, day)}
}

// CheckNoLookAhead returns ErrLookAhead if the last candle is on or after day.
func CheckNoLookAhead(candles []models.Candle, day time.Time) error {
	if len(candles) == 0 {
		return nil
	}
	cutoff := models.DayStart(day)
	if !candles[len(candles)-1].Timestamp.In(cutoff.Location()).Before(cutoff) {
		return ErrLookAhead
	}
	return nil
}
