package trading

import (
	"fmt"
	"time"

	"alphahunter/internal/analysis/indicators"
	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

// entryATR computes ATR over candles dated before the entry day. It returns
// zero when there is not enough history.
func entryATR(candles []models.Candle, at time.Time, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	atr, err := indicators.ATRValue(indicators.TruncateBefore(candles, at), period)
	if err != nil {
		return 0
	}
	return atr
}

// StopPrice is entry minus the grade's ATR multiple, or the grade's fixed
// percent stop when atr is zero.
func StopPrice(entry, atr float64, gr config.GradeRisk) float64 {
	if atr > 0 {
		if stop := indicators.Round2(entry - gr.ATRMultiplier*atr); stop > 0 {
			return stop
		}
	}
	return indicators.Round2(entry * (1 + gr.FixedStopPct/100))
}

// WeightedCost is the average cost after adding q2 shares at p2 to q1 at p1.
func WeightedCost(q1 int, p1 float64, q2 int, p2 float64) float64 {
	total := q1 + q2
	if total <= 0 {
		return 0
	}
	return (float64(q1)*p1 + float64(q2)*p2) / float64(total)
}

// Quote is the live reading a position is evaluated against. MA5 is zero
// when unavailable.
type Quote struct {
	Symbol string
	Price  float64
	MA5    float64
	At     time.Time
}

// evaluate applies the exit rules in priority order and returns at most one
// signal. MA_WARNING yields to a trailing stop.
func evaluate(p *models.Position, q Quote, gr config.GradeRisk, coreGrade models.Grade) *models.ExitSignal {
	pnl := p.PnLPct(q.Price)
	maxPnL := p.MaxPnLPct()
	drawdown := p.DrawdownPct(q.Price)

	sig := func(reason models.ExitReason, msg string) *models.ExitSignal {
		return &models.ExitSignal{
			Symbol:        p.Symbol,
			Name:          p.Name,
			Reason:        reason,
			Grade:         p.Grade,
			Price:         q.Price,
			StopPrice:     p.StopPrice,
			PnLPct:        indicators.Round2(pnl),
			MaxPnLPct:     indicators.Round2(maxPnL),
			DrawdownPct:   indicators.Round2(drawdown),
			Quantity:      p.Quantity,
			Authoritative: reason.Authoritative(),
			Message:       msg,
			Timestamp:     q.At,
		}
	}

	if q.Price < p.StopPrice {
		return sig(models.ExitForcedStop, fmt.Sprintf("price %.2f below stop %.2f", q.Price, p.StopPrice))
	}

	maWarning := false
	if q.MA5 > 0 && q.Price < q.MA5 {
		if p.Grade == coreGrade {
			return sig(models.ExitMABreak, fmt.Sprintf("core position broke MA5 %.2f", q.MA5))
		}
		maWarning = true
	}

	if maxPnL > gr.MaxProfitPct && drawdown <= -gr.DrawdownPct {
		return sig(models.ExitTrailingStop, fmt.Sprintf("gave back %.2f%% from a %.2f%% peak", -drawdown, maxPnL))
	}
	if maWarning {
		return sig(models.NoticeMAWarning, fmt.Sprintf("price below MA5 %.2f", q.MA5))
	}
	if pnl >= gr.TakeProfitPct {
		return sig(models.NoticeTakeProfit, fmt.Sprintf("gain %.2f%% reached target %.2f%%", pnl, gr.TakeProfitPct))
	}
	if pnl <= gr.LossAttentionPct {
		return sig(models.NoticeLossAttention, fmt.Sprintf("loss %.2f%% past %.2f%%", pnl, gr.LossAttentionPct))
	}
	return nil
}
