package scoring

import (
	"fmt"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

// confirmation is the outcome of the second pass for one candidate.
type confirmation struct {
	adjust  float64
	exclude bool
	notes   []string
}

func (c *confirmation) add(v float64, format string, args ...interface{}) {
	c.adjust += v
	c.notes = append(c.notes, fmt.Sprintf(format, args...))
}

// confirm scores late-session flow, the ownership trend and the RPS slope.
func confirm(conf models.Confirmation, history []float64, rps120 float64, cfg config.ConfirmationConfig) confirmation {
	var out confirmation

	ratio := conf.LateNetInflowRatio
	switch {
	case ratio <= cfg.ExcludeRatio:
		out.exclude = true
		out.notes = append(out.notes, fmt.Sprintf("late-session outflow %.2f", ratio))
		return out
	case ratio >= cfg.StrongRatio && conf.LateConcentration >= cfg.StrongConcentration:
		out.add(8, "late-session buying %.2f concentrated %.2f +8", ratio, conf.LateConcentration)
	case ratio > 0:
		out.add(3, "late-session buying %.2f +3", ratio)
	case ratio < 0:
		out.add(-5, "late-session selling %.2f -5", ratio)
	}

	if adj := (ownershipScore(conf.ShareholderChangePct) - 50) * 0.2; adj != 0 {
		out.add(adj, "shareholders %+.1f%% %+.0f", conf.ShareholderChangePct, adj)
	}

	if adj, slope, ok := slopeAdjustment(history, rps120, cfg.SlopeWindow); ok && adj != 0 {
		out.add(adj, "RPS slope %.2f %+.0f", slope, adj)
	}
	return out
}

// ownershipScore rewards a shrinking shareholder count, which signals
// concentration.
func ownershipScore(changePct float64) float64 {
	switch {
	case changePct < -5:
		return 90
	case changePct < -2:
		return 75
	case changePct > 5:
		return 30
	}
	return 50
}

func slopeAdjustment(history []float64, rps120 float64, window int) (float64, float64, bool) {
	if window <= 1 {
		window = 5
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}
	if len(history) < 2 {
		return 0, 0, false
	}
	slope := indicators.LinearSlope(history)
	switch {
	case slope > 2:
		switch {
		case rps120 >= 90:
			return 10, slope, true
		case rps120 >= 70:
			return 8, slope, true
		}
		return 5, slope, true
	case slope > 0.5:
		return 3, slope, true
	case slope < -2:
		if rps120 >= 80 {
			return -8, slope, true
		}
		return -5, slope, true
	case slope < -0.5:
		return -3, slope, true
	}
	return 0, slope, true
}
