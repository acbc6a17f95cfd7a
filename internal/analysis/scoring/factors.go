package scoring

import (
	"fmt"
	"math"

	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

const trapMoneyFlowScore = 10

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// classifyFlow buckets main-force net inflow (10k CNY).
func classifyFlow(inflow float64, cfg config.ScoringConfig) MoneyFlowReading {
	switch {
	case inflow > cfg.InflowThreshold:
		return MoneyFlowReading{Flow: models.MoneyFlowInflow, Score: 90}
	case inflow < cfg.OutflowThreshold:
		return MoneyFlowReading{Flow: models.MoneyFlowOutflow, Score: 20}
	}
	return MoneyFlowReading{Flow: models.MoneyFlowNeutral, Score: 50}
}

// MoneyFlowReading is the classified money flow and its sub-score.
type MoneyFlowReading struct {
	Flow  models.MoneyFlow
	Score float64
}

// sectorHeat scores the strength rank of the candidate's sector. Rank 0 is
// an unknown sector.
func sectorHeat(rank int) (score, resonance float64) {
	switch {
	case rank <= 0:
		return 50, 0
	case rank <= 3:
		return 100, 15
	case rank <= 5:
		return 90, 10
	case rank <= 10:
		return 75, 5
	}
	return 50, 0
}

// valuationScore starts neutral and adjusts for PE, PB and market cap.
// Zero inputs are treated as missing.
func valuationScore(pe, pb, marketCap float64) float64 {
	score := 50.0

	switch {
	case pe == 0:
	case pe > 0 && pe < 15:
		score += 20
	case pe >= 15 && pe < 25:
		score += 10
	case pe >= 40 || pe < 0:
		score -= 10
	}

	switch {
	case pb == 0:
	case pb > 0 && pb < 1.5:
		score += 15
	case pb >= 1.5 && pb < 3:
		score += 5
	case pb >= 5:
		score -= 10
	}

	switch {
	case marketCap >= 50 && marketCap <= 500:
		score += 15
	case marketCap >= 20 && marketCap < 50, marketCap > 500 && marketCap <= 1000:
		score += 5
	}

	return clamp(score, 0, 100)
}

// volumePattern classifies the session's price/volume relationship.
func volumePattern(changePct, volumeRatio float64) models.VolumePattern {
	switch {
	case changePct > 0 && changePct <= 3 && volumeRatio < 1.0:
		return models.VolumeShrinkingRise
	case changePct < 1 && volumeRatio > 2.5:
		return models.VolumeStagnant
	case changePct > 2 && volumeRatio >= 1.2 && volumeRatio <= 2.5:
		return models.VolumeHealthy
	}
	return models.VolumeNormal
}

// volumeEnergy scores the volume ratio and adjusts for the pattern.
func volumeEnergy(changePct, volumeRatio float64) (float64, models.VolumePattern) {
	var score float64
	switch {
	case volumeRatio >= 2:
		score = 75
	case volumeRatio >= 1.2:
		score = 60
	case volumeRatio <= 0.5:
		score = 30
	default:
		score = 50
	}

	pattern := volumePattern(changePct, volumeRatio)
	switch pattern {
	case models.VolumeShrinkingRise:
		score += 15
	case models.VolumeStagnant:
		score -= 20
	case models.VolumeHealthy:
		score += 10
	}
	return clamp(score, 0, 100), pattern
}

// composite fills the sub-scores, raw score and discounted score of c.
func composite(c *models.CandidateSignal, s models.Snapshot, w config.FactorWeights, scfg config.ScoringConfig, discount float64) {
	flow := classifyFlow(s.MainNetInflow, scfg)
	heat, resonance := sectorHeat(c.SectorRank)
	volume, pattern := volumeEnergy(s.ChangePct, s.VolumeRatio)

	c.MoneyFlow = flow.Flow
	c.Pattern = pattern
	c.Scores = models.SubScores{
		Momentum:  c.RPS120,
		MoneyFlow: flow.Score,
		Sector:    heat,
		Valuation: valuationScore(s.PE, s.PB, s.MarketCap),
		Volume:    volume,
	}
	if resonance > 0 {
		c.Note(fmt.Sprintf("sector resonance +%.0f (rank %d)", resonance, c.SectorRank))
	}
	if pattern != models.VolumeNormal {
		c.Note("volume pattern " + string(pattern))
	}

	c.RawScore = round1(c.Scores.Momentum*w.Momentum +
		c.Scores.MoneyFlow*w.MoneyFlow +
		c.Scores.Sector*w.Sector +
		c.Scores.Valuation*w.Valuation +
		c.Scores.Volume*w.Volume)
	c.Discount = discount
	c.Score = round1(clamp(c.RawScore*discount, 0, 100))
	if discount < 1 {
		c.Note(fmt.Sprintf("regime discount x%.2f", discount))
	}
}
