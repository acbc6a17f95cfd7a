package trading

import (
	"context"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

// Property: adding to a position leaves the cost at the quantity-weighted
// average, and the stop recomputed from that cost with the stored ATR.
func TestProperty_AddUsesWeightedCost(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	gr := config.DefaultGradeRisk()["B"]

	properties.Property("cost and stop after add", prop.ForAll(
		func(p1, p2 float64, lots1, lots2 int) bool {
			e, _ := newEngine(t)
			ctx := context.Background()
			q1, q2 := lots1*100, lots2*100

			if _, err := e.Open(ctx, OpenRequest{Symbol: "600519", Price: p1, Quantity: q1, Grade: models.GradeB,
				Candles: constantRange(30, friday, p1, p1/50), At: friday}); err != nil {
				return false
			}
			upd, err := e.Add(ctx, AddRequest{Symbol: "600519", Price: p2, Quantity: q2, At: friday.AddDate(0, 0, 4)})
			if err != nil {
				return false
			}
			pos := upd.Position
			want := (float64(q1)*p1 + float64(q2)*p2) / float64(q1+q2)
			return pos.Quantity == q1+q2 &&
				math.Abs(pos.EntryPrice-want) < 1e-9 &&
				math.Abs(pos.StopPrice-StopPrice(pos.EntryPrice, pos.ATR, gr)) < 1e-9 &&
				pos.HighestPrice == math.Max(p1, p2)
		},
		gen.Float64Range(2, 200),
		gen.Float64Range(2, 200),
		gen.IntRange(1, 50),
		gen.IntRange(1, 50),
	))

	properties.Property("cost lies between the two prices", prop.ForAll(
		func(p1, p2 float64, q1, q2 int) bool {
			c := WeightedCost(q1, p1, q2, p2)
			return c >= math.Min(p1, p2)-1e-9 && c <= math.Max(p1, p2)+1e-9
		},
		gen.Float64Range(1, 500),
		gen.Float64Range(1, 500),
		gen.IntRange(1, 10000),
		gen.IntRange(1, 10000),
	))

	properties.TestingRun(t)
}

// Property: the stop always sits below the entry price.
func TestProperty_StopBelowEntry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	grades := config.DefaultGradeRisk()

	properties.Property("stop < entry for every grade", prop.ForAll(
		func(entry, atrPct float64, grade string) bool {
			gr := grades[grade]
			stop := StopPrice(entry, entry*atrPct, gr)
			return stop > 0 && stop < entry
		},
		gen.Float64Range(1, 500),
		gen.Float64Range(0.01, 0.3),
		gen.OneConstOf("A", "B", "C", "D"),
	))

	properties.TestingRun(t)
}

func TestComputeStatsEmpty(t *testing.T) {
	st := ComputeStats(nil)
	if st.Trades != 0 || st.WinRate != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
