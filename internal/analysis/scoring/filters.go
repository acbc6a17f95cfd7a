package scoring

import (
	"fmt"
	"math"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/config"
	"alphahunter/internal/models"
	"alphahunter/internal/resilience"
	"alphahunter/pkg/utils"
)

// Stage names used in drop counts, logs and metrics.
const (
	StageUniverse     = "universe"
	StageBasic        = "basic"
	StageProximity    = "proximity"
	StagePriorDay     = "prior_day"
	StageMomentum     = "momentum"
	StageTrap         = "trap"
	StageGrade        = "grade"
	StageSector       = "sector"
	StageConfirmation = "confirmation"
)

var stageOrder = []string{
	StageUniverse, StageBasic, StageProximity, StagePriorDay, StageMomentum,
	StageTrap, StageGrade, StageSector, StageConfirmation,
}

func blacklistSet(symbols []string) map[string]bool {
	set := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		set[sym] = true
	}
	return set
}

// excluded reports names and symbols that never enter the scan.
func excluded(s models.Snapshot, blacklist map[string]bool) (bool, string) {
	switch {
	case utils.IsSpecialTreatment(s.Name):
		return true, "special treatment"
	case utils.IsNewListing(s.Name):
		return true, "first-day listing"
	case blacklist[s.Symbol]:
		return true, "blacklisted"
	}
	return false, ""
}

// passesBasic applies the session bands.
func passesBasic(s models.Snapshot, cfg config.StrategyConfig) (bool, string) {
	switch {
	case s.ChangePct < cfg.ChangeMin || s.ChangePct > cfg.ChangeMax:
		return false, fmt.Sprintf("change %.2f%% outside [%.2f, %.2f]", s.ChangePct, cfg.ChangeMin, cfg.ChangeMax)
	case s.TurnoverPct < cfg.TurnoverMin || s.TurnoverPct > cfg.TurnoverMax:
		return false, fmt.Sprintf("turnover %.2f%% outside [%.2f, %.2f]", s.TurnoverPct, cfg.TurnoverMin, cfg.TurnoverMax)
	case s.VolumeRatio < cfg.VolumeRatioMin:
		return false, fmt.Sprintf("volume ratio %.2f below %.2f", s.VolumeRatio, cfg.VolumeRatioMin)
	case s.Amplitude > cfg.AmplitudeMax:
		return false, fmt.Sprintf("amplitude %.3f above %.3f", s.Amplitude, cfg.AmplitudeMax)
	case cfg.RequireBullish && !s.Bullish:
		return false, "bearish session"
	}
	return true, ""
}

// proximity measures the live price against a moving average that counts
// the current price as today's close.
func proximity(s models.Snapshot, series models.HistoricalSeries, period int, biasMax float64) (ma, bias float64, reason string) {
	ma, err := indicators.RealtimeMA(series.Closes(), s.Price, period)
	if err != nil {
		return 0, 0, fmt.Sprintf("realtime MA%d: %v", period, err)
	}
	bias, err = indicators.Bias(s.Price, ma)
	if err != nil {
		return ma, 0, fmt.Sprintf("bias: %v", err)
	}
	if math.Abs(bias) > biasMax {
		return ma, bias, fmt.Sprintf("bias %.4f beyond %.4f", bias, biasMax)
	}
	return ma, bias, ""
}

// priorDayOK requires the last completed session to be a bullish candle with
// a gain inside the configured band.
func priorDayOK(series models.HistoricalSeries, cfg config.StrategyConfig) (bool, string) {
	n := series.Len()
	if n < 2 {
		return false, "fewer than two completed sessions"
	}
	last, prev := series.Candles[n-1], series.Candles[n-2]
	if !last.Bullish() {
		return false, "prior session closed below its open"
	}
	change, err := indicators.ChangePct(prev.Close, last.Close)
	if err != nil {
		return false, err.Error()
	}
	if change < cfg.PrevChangeMin || change > cfg.PrevChangeMax {
		return false, fmt.Sprintf("prior session change %.2f%% outside [%.2f, %.2f]", change, cfg.PrevChangeMin, cfg.PrevChangeMax)
	}
	return true, ""
}

// momentumGate checks the RPS minimum of the regime and, in hot markets,
// rejects turnover spikes.
func momentumGate(s models.Snapshot, rank models.MomentumRank, found bool, regime resilience.RegimeAssessment) (bool, string) {
	if !found {
		return false, "not in the momentum ranking"
	}
	if rank.RPS120 < regime.RPSMin {
		return false, fmt.Sprintf("RPS120 %.1f below %.1f", rank.RPS120, regime.RPSMin)
	}
	if regime.TurnoverSpikeCheck && regime.TurnoverSpikeRatio > 0 && s.VolumeRatio >= regime.TurnoverSpikeRatio {
		return false, fmt.Sprintf("volume spike %.2f in a hot market", s.VolumeRatio)
	}
	return true, ""
}
