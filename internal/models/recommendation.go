package models

import "time"

// Recommendation is a candidate kept after its scan so its follow-through
// can be measured. Returns maps a horizon in trading sessions to the close
// return, in percent, against the scan price. Horizons not yet reached are
// absent.
type Recommendation struct {
	Date     time.Time       `json:"date"` // start of the scan day
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Price    float64         `json:"price"`
	Score    float64         `json:"score"`
	Grade    Grade           `json:"grade"`
	Category Category        `json:"category"`
	RPS      float64         `json:"rps"`
	Returns  map[int]float64 `json:"returns,omitempty"`
}

// RecommendationFrom records c as recommended on the day of at.
func RecommendationFrom(c CandidateSignal, at time.Time) Recommendation {
	return Recommendation{
		Date:     DayStart(at),
		Symbol:   c.Symbol,
		Name:     c.Name,
		Price:    c.Price,
		Score:    c.Score,
		Grade:    c.Grade,
		Category: c.Category,
		RPS:      c.RPS120,
	}
}

// Pending reports whether any of horizons has no return yet.
func (r Recommendation) Pending(horizons []int) bool {
	for _, h := range horizons {
		if _, ok := r.Returns[h]; !ok {
			return true
		}
	}
	return false
}
