package models

import (
	"time"
)

// MomentumRank is one symbol's row in a frozen ranking cycle.
type MomentumRank struct {
	Symbol           string    `json:"symbol"`
	Sector           string    `json:"sector,omitempty"`
	RPS120           float64   `json:"rps120"`
	RPS20            float64   `json:"rps20"`
	Delta            float64   `json:"delta"`
	SectorPercentile float64   `json:"sector_percentile"`
	SectorRank       int       `json:"sector_rank"`
	SectorCount      int       `json:"sector_count"`
	History          []float64 `json:"history,omitempty"` // RPS120, oldest first
}

// SectorStrength ranks one sector by the mean RPS120 of its members.
type SectorStrength struct {
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
	Members int     `json:"members"`
}

// RankTable is the momentum ranking produced once per cycle.
type RankTable struct {
	GeneratedDate time.Time               `json:"generated_date"`
	Ranks         map[string]MomentumRank `json:"ranks"`
	Sectors       []SectorStrength        `json:"sectors"`
	Breadth       float64                 `json:"breadth"` // percent at a 20-day high
}

// Get returns the rank for symbol.
func (t *RankTable) Get(symbol string) (MomentumRank, bool) {
	if t == nil {
		return MomentumRank{}, false
	}
	r, ok := t.Ranks[symbol]
	return r, ok
}

// IsFor reports whether the table was generated for the calendar day of d.
func (t *RankTable) IsFor(d time.Time) bool {
	if t == nil {
		return false
	}
	return SameDay(t.GeneratedDate, d)
}

// SectorRank returns the strength rank of a sector and the number of sectors.
func (t *RankTable) SectorRank(sector string) (int, int) {
	if t == nil {
		return 0, 0
	}
	for _, s := range t.Sectors {
		if s.Name == sector {
			return s.Rank, len(t.Sectors)
		}
	}
	return 0, len(t.Sectors)
}

// SameDay compares calendar dates in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
