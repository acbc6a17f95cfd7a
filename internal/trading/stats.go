package trading

import (
	"math"

	"alphahunter/internal/models"
)

// TradeStats summarises closed trades.
type TradeStats struct {
	Trades          int     `json:"trades"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRate         float64 `json:"win_rate"` // percent
	AvgWinPct       float64 `json:"avg_win_pct"`
	AvgLossPct      float64 `json:"avg_loss_pct"`
	ProfitLossRatio float64 `json:"profit_loss_ratio"`
	TotalPnL        float64 `json:"total_pnl"`
	AvgHoldingDays  float64 `json:"avg_holding_days"`
	BestPct         float64 `json:"best_pct"`
	WorstPct        float64 `json:"worst_pct"`
}

// ComputeStats derives TradeStats. The profit/loss ratio is zero when there
// are no losses.
func ComputeStats(trades []models.Trade) TradeStats {
	st := TradeStats{Trades: len(trades)}
	if len(trades) == 0 {
		return st
	}

	var winSum, lossSum float64
	holding := 0
	st.BestPct, st.WorstPct = math.Inf(-1), math.Inf(1)
	for _, t := range trades {
		st.TotalPnL += t.PnLAmount
		holding += t.HoldingDays
		st.BestPct = math.Max(st.BestPct, t.PnLPct)
		st.WorstPct = math.Min(st.WorstPct, t.PnLPct)
		switch {
		case t.Win():
			st.Wins++
			winSum += t.PnLPct
		case t.PnLPct < 0:
			st.Losses++
			lossSum += t.PnLPct
		}
	}

	st.WinRate = round2(float64(st.Wins) / float64(st.Trades) * 100)
	if st.Wins > 0 {
		st.AvgWinPct = round2(winSum / float64(st.Wins))
	}
	if st.Losses > 0 {
		st.AvgLossPct = round2(lossSum / float64(st.Losses))
		st.ProfitLossRatio = round2(st.AvgWinPct / math.Abs(st.AvgLossPct))
	}
	st.TotalPnL = round2(st.TotalPnL)
	st.AvgHoldingDays = round2(float64(holding) / float64(st.Trades))
	return st
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
