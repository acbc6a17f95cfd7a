// Package momentum ranks the universe by relative price strength (RPS) and
// keeps the ranking frozen between cycles.
package momentum

import (
	"sort"
	"time"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

// Ranker computes RPS tables. It holds no state between calls.
type Ranker struct {
	longWindow    int
	shortWindow   int
	historyDepth  int
	breadthWindow int
}

// NewRanker creates a ranker from the momentum section.
func NewRanker(cfg config.MomentumConfig) *Ranker {
	r := &Ranker{
		longWindow:    cfg.LongWindow,
		shortWindow:   cfg.ShortWindow,
		historyDepth:  cfg.HistoryDepth,
		breadthWindow: cfg.BreadthWindow,
	}
	if r.longWindow <= 0 {
		r.longWindow = 120
	}
	if r.shortWindow <= 0 {
		r.shortWindow = 20
	}
	if r.historyDepth <= 0 {
		r.historyDepth = 5
	}
	if r.breadthWindow <= 0 {
		r.breadthWindow = 20
	}
	return r
}

// MinCandles is the shortest history the ranker can use.
func (r *Ranker) MinCandles() int {
	return r.longWindow + 1
}

// Rank builds the table for asOf. Every series is cut before asOf first;
// symbols without long-window history are left out. previous feeds Delta
// and History and may be nil.
func (r *Ranker) Rank(asOf time.Time, series map[string]models.HistoricalSeries, sectors map[string]string, previous *models.RankTable) *models.RankTable {
	longRet := make(map[string]float64, len(series))
	shortRet := make(map[string]float64, len(series))
	atHigh := 0

	for symbol, s := range series {
		candles := indicators.TruncateBefore(s.Candles, asOf)
		closes := make([]float64, len(candles))
		for i, c := range candles {
			closes[i] = c.Close
		}

		long, err := indicators.TrailingReturn(closes, r.longWindow)
		if err != nil {
			continue
		}
		short, err := indicators.TrailingReturn(closes, r.shortWindow)
		if err != nil {
			continue
		}
		longRet[symbol] = long
		shortRet[symbol] = short
		if indicators.IsRollingHigh(closes, r.breadthWindow) {
			atHigh++
		}
	}

	rps120 := indicators.PercentileRank(longRet)
	rps20 := indicators.PercentileRank(shortRet)

	table := &models.RankTable{
		GeneratedDate: models.DayStart(asOf),
		Ranks:         make(map[string]models.MomentumRank, len(longRet)),
	}
	if len(longRet) > 0 {
		table.Breadth = float64(atHigh) / float64(len(longRet)) * 100
	}

	// sector peers and percentile inside each sector
	members := make(map[string]map[string]float64)
	for symbol, ret := range longRet {
		sector := sectors[symbol]
		if sector == "" {
			continue
		}
		if members[sector] == nil {
			members[sector] = make(map[string]float64)
		}
		members[sector][symbol] = ret
	}
	sectorPct := make(map[string]float64, len(longRet))
	for _, peers := range members {
		for symbol, pct := range indicators.PercentileRank(peers) {
			sectorPct[symbol] = pct
		}
	}

	table.Sectors = sectorStrength(members, rps120)
	sectorRank := make(map[string]int, len(table.Sectors))
	for _, s := range table.Sectors {
		sectorRank[s.Name] = s.Rank
	}

	for symbol := range longRet {
		rank := models.MomentumRank{
			Symbol:           symbol,
			Sector:           sectors[symbol],
			RPS120:           rps120[symbol],
			RPS20:            rps20[symbol],
			SectorPercentile: sectorPct[symbol],
			SectorRank:       sectorRank[sectors[symbol]],
			SectorCount:      len(table.Sectors),
		}

		var history []float64
		if prev, ok := previous.Get(symbol); ok {
			rank.Delta = rank.RPS120 - prev.RPS120
			history = append(history, prev.History...)
		}
		history = append(history, rank.RPS120)
		if len(history) > r.historyDepth {
			history = history[len(history)-r.historyDepth:]
		}
		rank.History = history

		table.Ranks[symbol] = rank
	}

	return table
}

// sectorStrength ranks sectors by the mean RPS120 of their members,
// strongest first, ties by name.
func sectorStrength(members map[string]map[string]float64, rps120 map[string]float64) []models.SectorStrength {
	out := make([]models.SectorStrength, 0, len(members))
	for name, peers := range members {
		total := 0.0
		for symbol := range peers {
			total += rps120[symbol]
		}
		out = append(out, models.SectorStrength{
			Name:    name,
			Score:   total / float64(len(peers)),
			Members: len(peers),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
