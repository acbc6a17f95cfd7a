package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"alphahunter/internal/models"
	"alphahunter/internal/performance"
	"alphahunter/internal/trading"
	"alphahunter/pkg/utils"
)

const dayLayout = "2006-01-02"

// tradeRow is one line of the backtest trade export.
type tradeRow struct {
	Symbol      string  `csv:"symbol"`
	Grade       string  `csv:"grade"`
	Strategy    string  `csv:"strategy"`
	EntryDate   string  `csv:"entry_date"`
	ExitDate    string  `csv:"exit_date"`
	EntryPrice  float64 `csv:"entry_price"`
	ExitPrice   float64 `csv:"exit_price"`
	Quantity    int     `csv:"quantity"`
	PnLAmount   float64 `csv:"pnl_amount"`
	PnLPct      float64 `csv:"pnl_pct"`
	HoldingDays int     `csv:"holding_days"`
	Reason      string  `csv:"reason"`
}

func tradeRows(trades []models.Trade) []*tradeRow {
	rows := make([]*tradeRow, len(trades))
	for i, t := range trades {
		rows[i] = &tradeRow{
			Symbol:      t.Symbol,
			Grade:       string(t.Grade),
			Strategy:    t.Strategy,
			EntryDate:   t.EntryDate.Format(dayLayout),
			ExitDate:    t.ExitDate.Format(dayLayout),
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			Quantity:    t.Quantity,
			PnLAmount:   t.PnLAmount,
			PnLPct:      t.PnLPct,
			HoldingDays: t.HoldingDays,
			Reason:      t.Reason,
		}
	}
	return rows
}

func writeTradesCSV(path string, trades []models.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(tradeRows(trades), f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// dayFlag parses a YYYY-MM-DD flag in the market time zone.
func (a *App) dayFlag(cmd *cobra.Command, name string, fallback time.Time) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation(dayLayout, v, a.Config.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q, want %q", name, v, dayLayout)
	}
	return t, nil
}

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the scan and exit rules over past sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			today := models.DayStart(time.Now().In(app.Config.Location()))
			to, err := app.dayFlag(cmd, "to", today.AddDate(0, 0, -1))
			if err != nil {
				return err
			}
			from, err := app.dayFlag(cmd, "from", to.AddDate(0, 0, -90))
			if err != nil {
				return err
			}
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}
			res, err := rt.Driver.Backtest(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			if path, _ := cmd.Flags().GetString("csv"); path != "" {
				if err := writeTradesCSV(path, res.Trades); err != nil {
					return err
				}
			}

			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(res)
			}
			printBacktest(output, res)
			return nil
		},
	}
	cmd.Flags().String("from", "", "first replayed day, YYYY-MM-DD (default: 90 days before --to)")
	cmd.Flags().String("to", "", "last replayed day, YYYY-MM-DD (default: yesterday)")
	cmd.Flags().String("csv", "", "also write the trades to this CSV file")
	return cmd
}

func printBacktest(output *Output, res *trading.BacktestResult) {
	output.Bold("Backtest %s .. %s", res.Start.Format(dayLayout), res.End.Format(dayLayout))
	output.Printf("  Sessions:     %d (%d asleep)\n", res.Sessions, res.SleptSessions)
	output.Printf("  Signals:      %d\n", res.Signals)
	output.Printf("  Final equity: %s\n", utils.FormatCompact(res.FinalEquity))
	output.Printf("  Return:       %s\n", output.Percent(res.TotalReturnPct))
	output.Printf("  Max drawdown: %.2f%%\n", res.MaxDrawdownPct)
	output.Printf("  Sharpe:       %.2f\n", res.SharpeRatio)

	stages := make([]string, 0, len(res.Dropped))
	for stage := range res.Dropped {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		output.Dim("  dropped at %-10s %d", stage, res.Dropped[stage])
	}
	output.Println()
	printStats(output, res.Stats)
}

func newPerformanceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Follow-through of past recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := app.asOf(cmd)
			if err != nil {
				return err
			}
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}
			if update, _ := cmd.Flags().GetBool("update"); update {
				if _, err := rt.Driver.Track(cmd.Context(), now); err != nil {
					return err
				}
			}
			days, _ := cmd.Flags().GetInt("days")
			report, err := rt.Driver.Performance(cmd.Context(), now, days)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(report)
			}
			printPerformance(output, report)
			return nil
		},
	}
	addAtFlag(cmd)
	cmd.Flags().Int("days", 30, "look back this many days")
	cmd.Flags().Bool("update", false, "fill completed returns before reporting")
	return cmd
}

func printPerformance(output *Output, r *performance.Report) {
	output.Bold("Recommendations since %s: %d", r.Since.Format(dayLayout), r.Recommendations)
	if r.Recommendations == 0 {
		return
	}
	printHorizons(output, "ALL", r.Horizons)

	categories := make([]string, 0, len(r.ByCategory))
	for c := range r.ByCategory {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	for _, c := range categories {
		printHorizons(output, c, r.ByCategory[models.Category(c)])
	}
}

func printHorizons(output *Output, label string, stats []performance.HorizonStats) {
	output.Println()
	output.Bold("%s", label)
	table := NewTable(output, "DAYS", "COUNT", "WIN", "AVG", "MAX", "MIN")
	for _, s := range stats {
		if s.Count == 0 {
			table.AddRow(fmt.Sprintf("%d", s.Horizon), "0", "-", "-", "-", "-")
			continue
		}
		table.AddRow(
			fmt.Sprintf("%d", s.Horizon),
			fmt.Sprintf("%d", s.Count),
			fmt.Sprintf("%.1f%%", s.WinRate),
			output.Percent(s.AvgReturn),
			output.Percent(s.MaxReturn),
			output.Percent(s.MinReturn),
		)
	}
	table.Render()
}
