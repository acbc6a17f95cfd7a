package scoring

import (
	"fmt"
	"math"

	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

// IsTrap reports a strong-momentum name that main-force money is leaving.
func IsTrap(rps120 float64, flow models.MoneyFlow, trapRPS float64) bool {
	return rps120 >= trapRPS && flow == models.MoneyFlowOutflow
}

// markTrap forces the trap marker and the trap money-flow sub-score.
func markTrap(c *models.CandidateSignal) {
	c.Trap = true
	c.Grade = models.GradeTrap
	c.Scores.MoneyFlow = trapMoneyFlowScore
	c.Note(fmt.Sprintf("trap: RPS120 %.1f with main-force outflow", c.RPS120))
}

// GradeFor maps a composite score to a grade.
func GradeFor(score float64, cfg config.ScoringConfig) models.Grade {
	switch {
	case score >= cfg.GradeA:
		return models.GradeA
	case score >= cfg.GradeB:
		return models.GradeB
	case score >= cfg.GradeC:
		return models.GradeC
	}
	return models.GradeD
}

// CategoryFor labels a candidate by RPS120.
func CategoryFor(rps120 float64, cfg config.ScoringConfig) models.Category {
	switch {
	case rps120 >= cfg.CoreRPS:
		return models.CategoryCore
	case rps120 >= cfg.PotentialRPS:
		return models.CategoryPotential
	}
	return models.CategoryStable
}

// sectorCutoff is the worst sector rank that still passes.
func sectorCutoff(topPct float64, sectorCount int) int {
	return int(math.Ceil(topPct * float64(sectorCount)))
}

// passesSector keeps candidates from strong sectors. Grade A is exempt.
func passesSector(c models.CandidateSignal, cfg config.SectorConfig, sectorCount int) (bool, string) {
	if !cfg.Enabled || sectorCount == 0 || c.Grade == models.GradeA {
		return true, ""
	}
	cutoff := sectorCutoff(cfg.TopPct, sectorCount)
	if c.SectorRank <= 0 {
		return false, "sector unknown"
	}
	if c.SectorRank > cutoff {
		return false, fmt.Sprintf("sector rank %d outside top %d of %d", c.SectorRank, cutoff, sectorCount)
	}
	return true, ""
}
