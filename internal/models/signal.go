package models

import "time"

// Grade is the risk tier assigned to a signal.
type Grade string

const (
	GradeA    Grade = "A"
	GradeB    Grade = "B"
	GradeC    Grade = "C"
	GradeD    Grade = "D"
	GradeTrap Grade = "TRAP"
)

// Category labels a candidate by momentum strength.
type Category string

const (
	CategoryCore      Category = "RPS_CORE"
	CategoryPotential Category = "POTENTIAL"
	CategoryStable    Category = "STABLE"
	CategoryManual    Category = "MANUAL"
)

// MoneyFlow is the direction of main-force money.
type MoneyFlow string

const (
	MoneyFlowInflow  MoneyFlow = "INFLOW"
	MoneyFlowOutflow MoneyFlow = "OUTFLOW"
	MoneyFlowNeutral MoneyFlow = "NEUTRAL"
)

// VolumePattern classifies the price/volume relationship of the session.
type VolumePattern string

const (
	VolumeShrinkingRise VolumePattern = "SHRINKING_RISE"
	VolumeStagnant      VolumePattern = "STAGNANT"
	VolumeHealthy       VolumePattern = "HEALTHY"
	VolumeNormal        VolumePattern = "NORMAL"
)

// SubScores holds the 0-100 factor scores of a candidate.
type SubScores struct {
	Momentum  float64 `json:"momentum"`
	MoneyFlow float64 `json:"money_flow"`
	Sector    float64 `json:"sector"`
	Valuation float64 `json:"valuation"`
	Volume    float64 `json:"volume"`
}

// CandidateSignal is a scored, graded candidate produced by one scan.
type CandidateSignal struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Sector      string  `json:"sector,omitempty"`
	Price       float64 `json:"price"`
	ChangePct   float64 `json:"change_pct"`
	TurnoverPct float64 `json:"turnover_pct"`
	VolumeRatio float64 `json:"volume_ratio"`
	MA5         float64 `json:"ma5"`
	Bias        float64 `json:"bias"`
	ATR         float64 `json:"atr"`

	RPS120     float64   `json:"rps120"`
	RPS20      float64   `json:"rps20"`
	SectorRank int       `json:"sector_rank"`
	MoneyFlow  MoneyFlow `json:"money_flow"`

	Scores   SubScores     `json:"scores"`
	RawScore float64       `json:"raw_score"`
	Discount float64       `json:"discount"`
	Score    float64       `json:"score"`
	Grade    Grade         `json:"grade"`
	Trap     bool          `json:"trap"`
	Category Category      `json:"category"`
	Pattern  VolumePattern `json:"volume_pattern"`

	Amount   float64 `json:"amount"`
	Quantity int     `json:"quantity"`

	Reasons []string `json:"reasons,omitempty"`
}

// Note appends an audit entry.
func (c *CandidateSignal) Note(reason string) {
	c.Reasons = append(c.Reasons, reason)
}

// ScanReport is what a scan publishes.
type ScanReport struct {
	ID          string            `json:"id"`
	Date        time.Time         `json:"date"`
	Candidates  []CandidateSignal `json:"candidates"`
	Traps       []CandidateSignal `json:"traps,omitempty"`
	Regime      string            `json:"regime"`
	Breadth     float64           `json:"breadth"`
	Sleep       bool              `json:"sleep"`
	SleepReason string            `json:"sleep_reason,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}
