package scoring

import (
	"math"
	"time"

	"alphahunter/internal/config"
	"alphahunter/internal/models"
	"alphahunter/pkg/utils"
)

// noLossPayoff is the payoff ratio assumed when the window holds no losses.
const noLossPayoff = 3.0

// KellyEstimate is the sizing decision for one scan.
type KellyEstimate struct {
	Trades    int     `json:"trades"`
	WinRate   float64 `json:"win_rate"`
	Payoff    float64 `json:"payoff"`
	Fraction  float64 `json:"fraction"` // raw Kelly f*
	Multiple  float64 `json:"multiple"`
	Defaulted bool    `json:"defaulted"`
}

// TrailingTrades keeps trades that exited within the lookback window
// before asOf.
func TrailingTrades(trades []models.Trade, asOf time.Time, lookbackDays int) []models.Trade {
	since := asOf.AddDate(0, 0, -lookbackDays)
	var out []models.Trade
	for _, t := range trades {
		if !t.ExitDate.Before(since) && !t.ExitDate.After(asOf) {
			out = append(out, t)
		}
	}
	return out
}

// Kelly derives the base-amount multiple from trailing trades and scales it
// by the regime position multiplier. The result always lies in
// [MinMultiple, MaxMultiple].
func Kelly(trades []models.Trade, cfg config.KellyConfig, regimeMultiplier float64) KellyEstimate {
	est := KellyEstimate{Trades: len(trades)}

	if len(trades) < cfg.MinTrades {
		est.Multiple = cfg.DefaultMultiple
		est.Defaulted = true
	} else {
		var wins, losses int
		var winSum, lossSum float64
		for _, t := range trades {
			if t.Win() {
				wins++
				winSum += t.PnLPct
			} else if t.PnLPct < 0 {
				losses++
				lossSum += t.PnLPct
			}
		}
		est.WinRate = float64(wins) / float64(len(trades))

		est.Payoff = noLossPayoff
		if losses > 0 && wins > 0 {
			est.Payoff = (winSum / float64(wins)) / math.Abs(lossSum/float64(losses))
		} else if wins == 0 {
			est.Payoff = 0
		}

		if est.Payoff > 0 {
			est.Fraction = est.WinRate - (1-est.WinRate)/est.Payoff
		} else {
			est.Fraction = -1
		}
		ref := cfg.ReferenceFraction
		if ref <= 0 {
			ref = 0.25
		}
		est.Multiple = clamp(est.Fraction*cfg.SafetyFactor/ref, cfg.MinMultiple, cfg.MaxMultiple)
	}

	if regimeMultiplier <= 0 {
		regimeMultiplier = 1
	}
	est.Multiple = clamp(est.Multiple*regimeMultiplier, cfg.MinMultiple, cfg.MaxMultiple)
	return est
}

// Size converts a multiple into an amount and a whole-lot quantity.
func Size(multiple, price float64, cfg config.KellyConfig) (float64, int) {
	amount := cfg.BaseAmount * multiple
	if price <= 0 {
		return amount, 0
	}
	lot := cfg.LotSize
	if lot <= 0 {
		lot = utils.LotSize
	}
	qty := int(math.Floor(amount/price/float64(lot))) * lot
	return amount, qty
}
