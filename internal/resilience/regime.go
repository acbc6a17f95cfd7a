package resilience

import (
	"fmt"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

// Trend is the benchmark index trend classification.
type Trend string

const (
	TrendUp      Trend = "UPTREND"
	TrendChoppy  Trend = "CHOPPY"
	TrendRebound Trend = "REBOUND"
	TrendDown    Trend = "DOWNTREND"
	TrendCrash   Trend = "CRASH"
	TrendUnknown Trend = "UNKNOWN"
)

// BreadthLevel classifies how much of the market is making new highs.
type BreadthLevel string

const (
	BreadthCold   BreadthLevel = "COLD"
	BreadthNormal BreadthLevel = "NORMAL"
	BreadthHot    BreadthLevel = "HOT"
)

// RegimeAssessment is the market state a scan runs under.
type RegimeAssessment struct {
	Trend          Trend   `json:"trend"`
	IndexPrice     float64 `json:"index_price"`
	IndexChangePct float64 `json:"index_change_pct"`
	MA10           float64 `json:"ma10"`
	MA20           float64 `json:"ma20"`
	AboveMA10      bool    `json:"above_ma10"`
	AboveMA20      bool    `json:"above_ma20"`
	Discount       float64 `json:"discount"`

	BreadthPct   float64      `json:"breadth_pct"`
	BreadthLevel BreadthLevel `json:"breadth_level"`
	BreadthLabel string       `json:"breadth_label"`

	RPSMin             float64 `json:"rps_min"`
	PositionMultiplier float64 `json:"position_multiplier"`
	TurnoverSpikeCheck bool    `json:"turnover_spike_check"`
	TurnoverSpikeRatio float64 `json:"turnover_spike_ratio,omitempty"`

	Sleep  bool   `json:"sleep"`
	Reason string `json:"reason,omitempty"`
}

// RegimeDetector classifies the benchmark index and market breadth.
type RegimeDetector struct {
	cfg    config.RegimeConfig
	rpsMin float64
}

// NewRegimeDetector creates a detector. rpsMin is the momentum gate used
// outside cold markets.
func NewRegimeDetector(cfg config.RegimeConfig, rpsMin float64) *RegimeDetector {
	return &RegimeDetector{cfg: cfg, rpsMin: rpsMin}
}

// Assess classifies the index from its live quote and daily history (which
// must end before today) and applies the breadth adjustments. Short index
// history puts the scan to sleep.
func (d *RegimeDetector) Assess(quote models.IndexQuote, index []models.Candle, breadth float64) RegimeAssessment {
	a := RegimeAssessment{
		Trend:              TrendUnknown,
		IndexPrice:         quote.Price,
		IndexChangePct:     quote.ChangePct,
		Discount:           1.0,
		RPSMin:             d.rpsMin,
		PositionMultiplier: 1.0,
	}
	d.applyBreadth(&a, breadth)

	closes := make([]float64, len(index))
	for i, c := range index {
		closes[i] = c.Close
	}
	ma10, err10 := indicators.SMAValue(closes, 10)
	ma20, err20 := indicators.SMAValue(closes, 20)
	if err10 != nil || err20 != nil {
		a.Sleep = true
		a.Reason = fmt.Sprintf("index history too short (%d days)", len(closes))
		return a
	}

	a.MA10 = indicators.Round2(ma10)
	a.MA20 = indicators.Round2(ma20)
	a.AboveMA10 = quote.Price > ma10
	a.AboveMA20 = quote.Price > ma20

	switch {
	case a.AboveMA20 && a.AboveMA10:
		a.Trend, a.Discount = TrendUp, d.cfg.UptrendDiscount
	case a.AboveMA20:
		a.Trend, a.Discount = TrendChoppy, d.cfg.ChoppyDiscount
	case a.AboveMA10:
		a.Trend, a.Discount = TrendRebound, d.cfg.ReboundDiscount
	default:
		a.Trend, a.Discount = TrendDown, d.cfg.DowntrendDiscount
	}

	switch {
	case quote.ChangePct < d.cfg.IndexDropThreshold:
		a.Trend, a.Discount = TrendCrash, d.cfg.CrashDiscount
		a.Sleep = true
		a.Reason = fmt.Sprintf("index down %.2f%%, below %.2f%%", quote.ChangePct, d.cfg.IndexDropThreshold)
	case d.cfg.SleepBelowMA20 && !a.AboveMA20:
		a.Sleep = true
		a.Reason = fmt.Sprintf("index %.2f below MA20 %.2f", quote.Price, a.MA20)
	}
	return a
}

// AssessBreadth applies only the breadth adjustments. It is used for
// replays that carry no benchmark index.
func (d *RegimeDetector) AssessBreadth(breadth float64) RegimeAssessment {
	a := RegimeAssessment{
		Trend:              TrendUnknown,
		Discount:           1.0,
		RPSMin:             d.rpsMin,
		PositionMultiplier: 1.0,
	}
	d.applyBreadth(&a, breadth)
	return a
}

func (d *RegimeDetector) applyBreadth(a *RegimeAssessment, breadth float64) {
	a.BreadthPct = breadth
	a.BreadthLabel = BreadthLabel(breadth)

	switch {
	case breadth < d.cfg.ColdBreadth:
		a.BreadthLevel = BreadthCold
		if d.cfg.ColdRPSMin > a.RPSMin {
			a.RPSMin = d.cfg.ColdRPSMin
		}
		a.PositionMultiplier = d.cfg.ColdPositionMultiplier
	case breadth > d.cfg.HotBreadth:
		a.BreadthLevel = BreadthHot
		a.TurnoverSpikeCheck = true
		a.TurnoverSpikeRatio = d.cfg.HotTurnoverSpikeRatio
	default:
		a.BreadthLevel = BreadthNormal
	}
}

// BreadthLabel describes a breadth percentage for reports.
func BreadthLabel(pct float64) string {
	switch {
	case pct > 15:
		return "very strong"
	case pct > 8:
		return "good"
	case pct > 4:
		return "normal"
	default:
		return "weak"
	}
}
