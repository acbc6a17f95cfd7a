package models

import (
	"sort"
	"time"
)

// ExitReason names why an exit signal fired.
type ExitReason string

const (
	ExitForcedStop      ExitReason = "FORCED_STOP"
	ExitMABreak         ExitReason = "MA_BREAK"
	ExitTrailingStop    ExitReason = "TRAILING_STOP"
	NoticeMAWarning     ExitReason = "MA_WARNING"
	NoticeTakeProfit    ExitReason = "TAKE_PROFIT"
	NoticeLossAttention ExitReason = "LOSS_ATTENTION"
	ExitManual          ExitReason = "MANUAL"
	ExitMaxHold         ExitReason = "MAX_HOLD"
	ExitReplayEnd       ExitReason = "REPLAY_END"
)

// Authoritative reports whether the reason demands a close.
func (r ExitReason) Authoritative() bool {
	switch r {
	case ExitForcedStop, ExitMABreak, ExitTrailingStop:
		return true
	}
	return false
}

// ExitSignal is emitted by the risk engine for one position.
type ExitSignal struct {
	Symbol        string     `json:"symbol"`
	Name          string     `json:"name"`
	Reason        ExitReason `json:"reason"`
	Grade         Grade      `json:"grade"`
	Price         float64    `json:"price"`
	StopPrice     float64    `json:"stop_price"`
	PnLPct        float64    `json:"pnl_pct"`
	MaxPnLPct     float64    `json:"max_pnl_pct"`
	DrawdownPct   float64    `json:"drawdown_pct"`
	Quantity      int        `json:"quantity"`
	Authoritative bool       `json:"authoritative"`
	Message       string     `json:"message"`
	Timestamp     time.Time  `json:"timestamp"`
}

// ExitReport groups the signals of one evaluation pass by reason.
type ExitReport struct {
	Date      time.Time                   `json:"date"`
	Evaluated int                         `json:"evaluated"`
	Groups    map[ExitReason][]ExitSignal `json:"groups"`
}

// NewExitReport creates an empty report.
func NewExitReport(date time.Time) *ExitReport {
	return &ExitReport{
		Date:   date,
		Groups: make(map[ExitReason][]ExitSignal),
	}
}

// Add files a signal under its reason.
func (r *ExitReport) Add(sig ExitSignal) {
	r.Groups[sig.Reason] = append(r.Groups[sig.Reason], sig)
}

// Signals returns every signal, authoritative first, then by symbol.
func (r *ExitReport) Signals() []ExitSignal {
	var out []ExitSignal
	for _, group := range r.Groups {
		out = append(out, group...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Authoritative != out[j].Authoritative {
			return out[i].Authoritative
		}
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// Authoritative returns only the signals that demand a close.
func (r *ExitReport) Authoritative() []ExitSignal {
	var out []ExitSignal
	for _, sig := range r.Signals() {
		if sig.Authoritative {
			out = append(out, sig)
		}
	}
	return out
}

// Len returns the total number of signals.
func (r *ExitReport) Len() int {
	n := 0
	for _, group := range r.Groups {
		n += len(group)
	}
	return n
}
