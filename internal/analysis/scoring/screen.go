package scoring

import (
	"fmt"

	"alphahunter/internal/config"
	"alphahunter/internal/models"
	"alphahunter/internal/resilience"
)

// Screening is the outcome of Screen for one session.
type Screening struct {
	Stage  string // stage that rejected the session, empty when it passed
	Reason string
	Signal models.CandidateSignal
}

// Passed reports whether the session survived every stage.
func (s Screening) Passed() bool {
	return s.Stage == ""
}

// Screen runs a single snapshot through the per-symbol stages of a scan,
// from the universe exclusions to the score floor. series must end before
// the snapshot's session. Sector strength and the second pass are left to
// Run.
func Screen(cfg *config.Config, snap models.Snapshot, series models.HistoricalSeries, ranks *models.RankTable, regime resilience.RegimeAssessment) Screening {
	if out, reason := excluded(snap, blacklistSet(cfg.Strategy.Blacklist)); out {
		return Screening{Stage: StageUniverse, Reason: reason}
	}
	if ok, reason := passesBasic(snap, cfg.Strategy); !ok {
		return Screening{Stage: StageBasic, Reason: reason}
	}
	ma, bias, reason := proximity(snap, series, cfg.Strategy.MAPeriod, cfg.Strategy.BiasMax)
	if reason != "" {
		return Screening{Stage: StageProximity, Reason: reason}
	}
	if ok, reason := priorDayOK(series, cfg.Strategy); !ok {
		return Screening{Stage: StagePriorDay, Reason: reason}
	}
	rank, found := ranks.Get(snap.Symbol)
	if ok, reason := momentumGate(snap, rank, found, regime); !ok {
		return Screening{Stage: StageMomentum, Reason: reason}
	}

	c := scoreSignal(cfg, ranks, regime.Discount, snap, rank, series, ma, bias)
	if IsTrap(c.RPS120, c.MoneyFlow, cfg.Scoring.TrapRPS) {
		markTrap(&c)
		return Screening{Stage: StageTrap, Reason: "trap", Signal: c}
	}
	c.Grade = GradeFor(c.Score, cfg.Scoring)
	if c.Score < cfg.Scoring.MinTotalScore {
		return Screening{
			Stage:  StageGrade,
			Reason: fmt.Sprintf("score %.1f below %.1f", c.Score, cfg.Scoring.MinTotalScore),
			Signal: c,
		}
	}
	return Screening{Signal: c}
}

// SortCandidates orders by score descending, then symbol.
func SortCandidates(cs []models.CandidateSignal) {
	sortCandidates(cs)
}
