package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphahunter/internal/config"
	"alphahunter/internal/errors"
	"alphahunter/internal/models"
	"alphahunter/internal/resilience"
	"alphahunter/internal/store"
)

var cst = time.FixedZone("CST", 8*3600)

// Friday 2024-06-07; the next trading day is Tuesday 2024-06-11 because of
// the Dragon Boat holiday.
var friday = time.Date(2024, 6, 7, 14, 40, 0, 0, cst)

func newEngine(t *testing.T) (*RiskEngine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := config.Default()
	return NewRiskEngine(st, cfg.Risk, resilience.NewSessionCalendar(cst), zerolog.Nop(), nil), st
}

// constantRange builds n daily candles before day whose true range is rng.
func constantRange(n int, day time.Time, price, rng float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Timestamp: day.AddDate(0, 0, i-n),
			Open:      price,
			High:      price + rng/2,
			Low:       price - rng/2,
			Close:     price,
		}
	}
	return out
}

func TestOpenGradeBStopAndForcedStop(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	upd, err := e.Open(ctx, OpenRequest{
		Symbol:   "600519",
		Price:    10.00,
		Quantity: 1000,
		Grade:    models.GradeB,
		Candles:  constantRange(30, friday, 10, 0.20),
		At:       friday,
	})
	require.NoError(t, err)
	assert.Equal(t, 9.70, upd.Position.StopPrice)
	assert.Equal(t, 0.20, upd.Position.ATR)
	assert.Empty(t, upd.Warnings)

	sig, err := e.Evaluate(ctx, Quote{Symbol: "600519", Price: 9.65, At: friday.Add(time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, models.ExitForcedStop, sig.Reason)
	assert.True(t, sig.Authoritative)
}

func TestOpenWithoutHistoryUsesFixedStop(t *testing.T) {
	e, _ := newEngine(t)
	upd, err := e.Open(context.Background(), OpenRequest{Symbol: "600519", Price: 10, Quantity: 100, Grade: models.GradeA, At: friday})
	require.NoError(t, err)
	assert.Equal(t, 9.50, upd.Position.StopPrice)
	assert.NotEmpty(t, upd.Warnings)
}

func TestOpenUnknownGradeFallsBackToB(t *testing.T) {
	e, _ := newEngine(t)
	upd, err := e.Open(context.Background(), OpenRequest{
		Symbol: "600519", Price: 10, Quantity: 100, Grade: "Z",
		Candles: constantRange(30, friday, 10, 0.20), At: friday,
	})
	require.NoError(t, err)
	assert.Equal(t, 9.70, upd.Position.StopPrice)
	require.NotEmpty(t, upd.Warnings)
	assert.Contains(t, upd.Warnings[0], "Z")
}

func TestOpenTwiceIsRejected(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	req := OpenRequest{Symbol: "600519", Price: 10, Quantity: 100, Grade: models.GradeB, At: friday}
	_, err := e.Open(ctx, req)
	require.NoError(t, err)
	_, err = e.Open(ctx, req)
	assert.True(t, errors.Is(err, errors.ErrPositionExists))
}

func TestBuyAddsWithWeightedCost(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	candles := constantRange(30, friday, 10, 0.20)

	_, err := e.Buy(ctx, OpenRequest{Symbol: "600519", Price: 10, Quantity: 1000, Grade: models.GradeB, Candles: candles, At: friday})
	require.NoError(t, err)
	upd, err := e.Buy(ctx, OpenRequest{Symbol: "600519", Price: 11, Quantity: 1000, Grade: models.GradeD, At: friday.AddDate(0, 0, 4)})
	require.NoError(t, err)

	p := upd.Position
	assert.True(t, upd.Added)
	assert.Equal(t, 2000, p.Quantity)
	assert.Equal(t, 10.50, p.EntryPrice)
	assert.Equal(t, models.GradeB, p.Grade, "grade of the first purchase is kept")
	assert.True(t, p.EntryDate.Equal(friday))
	assert.Equal(t, 11.0, p.HighestPrice)
	// stored ATR 0.20 x 1.5 under the new cost
	assert.Equal(t, 10.20, p.StopPrice)
}

func TestEvaluatePriority(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		grade   models.Grade
		highest float64
		quote   Quote
		want    models.ExitReason
	}{
		{"core grade breaks MA5", models.GradeA, 10, Quote{Price: 9.9, MA5: 10.1}, models.ExitMABreak},
		{"other grade warns on MA5", models.GradeB, 10, Quote{Price: 9.9, MA5: 10.1}, models.NoticeMAWarning},
		{"trailing stop beats MA warning", models.GradeB, 11.2, Quote{Price: 10.8, MA5: 11.0}, models.ExitTrailingStop},
		{"take profit", models.GradeB, 11, Quote{Price: 11, MA5: 10.5}, models.NoticeTakeProfit},
		{"small loss is quiet", models.GradeB, 10, Quote{Price: 9.72}, ""},
		{"loss attention", models.GradeC, 10, Quote{Price: 9.55}, models.NoticeLossAttention},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, st := newEngine(t)
			p := &models.Position{
				Symbol: "600519", EntryPrice: 10, EntryDate: friday, Quantity: 100,
				HighestPrice: tc.highest, Grade: tc.grade, StopPrice: 9.0,
			}
			require.NoError(t, st.SavePosition(ctx, p))

			tc.quote.Symbol = "600519"
			tc.quote.At = friday.AddDate(0, 0, 5)
			sig, err := e.Evaluate(ctx, tc.quote)
			require.NoError(t, err)
			if tc.want == "" {
				assert.Nil(t, sig)
				return
			}
			require.NotNil(t, sig)
			assert.Equal(t, tc.want, sig.Reason)
			assert.Equal(t, tc.want.Authoritative(), sig.Authoritative)
		})
	}
}

func TestEvaluateRaisesHighest(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	_, err := e.Open(ctx, OpenRequest{Symbol: "600519", Price: 10, Quantity: 100, Grade: models.GradeB, At: friday})
	require.NoError(t, err)

	_, err = e.Evaluate(ctx, Quote{Symbol: "600519", Price: 10.6})
	require.NoError(t, err)
	p, err := st.GetPosition(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, 10.6, p.HighestPrice)

	_, err = e.Evaluate(ctx, Quote{Symbol: "600519", Price: 10.3})
	require.NoError(t, err)
	p, _ = st.GetPosition(ctx, "600519")
	assert.Equal(t, 10.6, p.HighestPrice)
}

func TestEvaluateAllGroupsByReason(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	for sym, stop := range map[string]float64{"600001": 9.7, "600002": 9.7, "600003": 9.0} {
		require.NoError(t, st.SavePosition(ctx, &models.Position{
			Symbol: sym, EntryPrice: 10, EntryDate: friday, Quantity: 100,
			HighestPrice: 10, Grade: models.GradeB, StopPrice: stop,
		}))
	}

	report, err := e.EvaluateAll(ctx, map[string]Quote{
		"600001": {Price: 9.6},
		"600002": {Price: 9.5},
		"600003": {Price: 10.1},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Evaluated)
	assert.Len(t, report.Groups[models.ExitForcedStop], 2)
	assert.Len(t, report.Authoritative(), 2)
}

func TestCloseRespectsSettlement(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	_, err := e.Open(ctx, OpenRequest{Symbol: "600519", Price: 10, Quantity: 1000, Grade: models.GradeB, At: friday})
	require.NoError(t, err)

	// Monday 2024-06-10 is a holiday, so the position is still unsettled
	_, err = e.Close(ctx, CloseRequest{Symbol: "600519", Price: 10.5, At: time.Date(2024, 6, 10, 10, 0, 0, 0, cst)})
	assert.True(t, errors.Is(err, errors.ErrSettlementPending))
	var ce *errors.ConstraintError
	assert.True(t, errors.As(err, &ce))

	trades, _ := st.ListTrades(ctx, time.Time{})
	assert.Empty(t, trades)

	trade, err := e.Close(ctx, CloseRequest{Symbol: "600519", Price: 10.5, Quantity: 400, Override: true, At: friday.Add(10 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 400, trade.Quantity)
	assert.Equal(t, 200.0, trade.PnLAmount)
	assert.Equal(t, 5.0, trade.PnLPct)
	assert.Equal(t, 1, trade.HoldingDays)

	p, err := st.GetPosition(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, 600, p.Quantity)
	assert.Equal(t, 10.0, p.EntryPrice)

	trade, err = e.Close(ctx, CloseRequest{Symbol: "600519", Price: 9.5, At: time.Date(2024, 6, 11, 10, 0, 0, 0, cst)})
	require.NoError(t, err)
	assert.Equal(t, 600, trade.Quantity)
	assert.Equal(t, 1, trade.HoldingDays)
	_, err = st.GetPosition(ctx, "600519")
	assert.True(t, errors.Is(err, errors.ErrPositionNotFound))

	stats, err := e.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Trades)
	assert.Equal(t, 50.0, stats.WinRate)
	assert.Equal(t, 1.0, stats.ProfitLossRatio)
}

func TestCloseRejectsBadQuantity(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	_, err := e.Open(ctx, OpenRequest{Symbol: "600519", Price: 10, Quantity: 100, Grade: models.GradeB, At: friday})
	require.NoError(t, err)

	_, err = e.Close(ctx, CloseRequest{Symbol: "600519", Price: 10, Quantity: 200, Override: true})
	assert.True(t, errors.Is(err, errors.ErrInputValidation))
	_, err = e.Close(ctx, CloseRequest{Symbol: "600519", Price: 10, Quantity: -1, Override: true})
	assert.True(t, errors.Is(err, errors.ErrInputValidation))
	_, err = e.Close(ctx, CloseRequest{Symbol: "000001", Price: 10, Override: true})
	assert.True(t, errors.Is(err, errors.ErrPositionNotFound))
}

func TestConcurrentBuysSerializePerSymbol(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Buy(ctx, OpenRequest{Symbol: "600519", Price: 10, Quantity: 100, Grade: models.GradeB, At: friday})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := st.GetPosition(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, 2000, p.Quantity)
	assert.Zero(t, e.locks.held(), "released symbols leave no lock entry")
}

func TestKeyedMutexKeepsEntryWhileContended(t *testing.T) {
	var k keyedMutex
	unlock := k.lock("600519")
	acquired := make(chan struct{})
	go func() {
		release := k.lock("600519")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second caller got the lock while it was held")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 1, k.held())

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return k.held() == 0 }, time.Second, time.Millisecond)
}

func TestAddKeepsExactWeightedCost(t *testing.T) {
	e, st := newEngine(t)
	ctx := context.Background()
	gr := config.DefaultGradeRisk()["B"]

	_, err := e.Open(ctx, OpenRequest{Symbol: "600519", Price: 10.00, Quantity: 100, Grade: models.GradeB, At: friday})
	require.NoError(t, err)
	upd, err := e.Add(ctx, AddRequest{Symbol: "600519", Price: 10.01, Quantity: 200, At: friday.AddDate(0, 0, 4)})
	require.NoError(t, err)

	want := (100*10.00 + 200*10.01) / 300
	assert.InDelta(t, want, upd.Position.EntryPrice, 1e-12)
	assert.Equal(t, StopPrice(want, upd.Position.ATR, gr), upd.Position.StopPrice)

	// repeated adds do not drift
	_, err = e.Add(ctx, AddRequest{Symbol: "600519", Price: 10.02, Quantity: 300, At: friday.AddDate(0, 0, 5)})
	require.NoError(t, err)
	p, err := st.GetPosition(ctx, "600519")
	require.NoError(t, err)
	assert.InDelta(t, (100*10.00+200*10.01+300*10.02)/600, p.EntryPrice, 1e-12)
}
