package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"alphahunter/internal/analysis/scoring"
	"alphahunter/internal/driver"
	"alphahunter/internal/models"
	"alphahunter/pkg/utils"
)

const atLayout = "2006-01-02 15:04"

func addAtFlag(cmd *cobra.Command) {
	cmd.Flags().String("at", "", "run as of this market time, e.g. \"2024-06-14 14:35\" (default: now)")
}

// asOf resolves --at in the market time zone.
func (a *App) asOf(cmd *cobra.Command) (time.Time, error) {
	loc := a.Config.Location()
	at, _ := cmd.Flags().GetString("at")
	if at == "" {
		return time.Now().In(loc), nil
	}
	t, err := time.ParseInLocation(atLayout, at, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q, want %q", at, atLayout)
	}
	return t, nil
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run the candidate scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := app.asOf(cmd)
			if err != nil {
				return err
			}
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}
			res, err := rt.Driver.Scan(cmd.Context(), now)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(res)
			}
			printScan(output, res)
			return nil
		},
	}
	addAtFlag(cmd)
	return cmd
}

func printScan(output *Output, res *scoring.ScanResult) {
	output.Bold("Scan %s  %s", res.ID[:8], res.Date.Format(atLayout))
	output.Printf("  Regime:  %s (discount %.2f)\n", res.Regime.Trend, res.Regime.Discount)
	output.Printf("  Breadth: %.1f%% %s\n", res.Regime.BreadthPct, res.Regime.BreadthLevel)
	for _, w := range res.Warnings {
		output.Warning("  %s", w)
	}
	if res.Sleep {
		output.Warning("Sleeping: %s", res.SleepReason)
		return
	}
	output.Println()

	if len(res.Candidates) == 0 {
		output.Dim("No candidates")
	} else {
		table := NewTable(output, "#", "SYMBOL", "NAME", "GRADE", "SCORE", "PRICE", "CHG", "RPS120", "FLOW", "QTY", "AMOUNT")
		for i, c := range res.Candidates {
			table.AddRow(
				fmt.Sprintf("%d", i+1),
				c.Symbol,
				c.Name,
				gradeText(output, c.Grade),
				fmt.Sprintf("%.1f", c.Score),
				fmt.Sprintf("%.2f", c.Price),
				output.Percent(c.ChangePct),
				fmt.Sprintf("%.0f", c.RPS120),
				string(c.MoneyFlow),
				utils.FormatQuantity(c.Quantity),
				utils.FormatCompact(c.Amount),
			)
		}
		table.Render()
	}

	if len(res.Traps) > 0 {
		output.Println()
		traps := make([]string, len(res.Traps))
		for i, c := range res.Traps {
			traps[i] = c.Symbol
		}
		output.Warning("Traps: %s", strings.Join(traps, ", "))
	}

	output.Println()
	var drops []string
	for _, s := range res.Stages {
		if s.Dropped > 0 {
			drops = append(drops, fmt.Sprintf("%s -%d", s.Stage, s.Dropped))
		}
	}
	output.Dim("Kelly x%.2f (%d trades)  stages: %s  %v", res.Kelly.Multiple, res.Kelly.Trades, strings.Join(drops, ", "), res.Duration.Round(time.Millisecond))
}

func gradeText(output *Output, g models.Grade) string {
	switch g {
	case models.GradeA:
		return output.Green(string(g))
	case models.GradeB:
		return output.Yellow(string(g))
	case models.GradeTrap:
		return output.Red(string(g))
	}
	return string(g)
}

func newRankCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Recompute the frozen momentum ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := app.asOf(cmd)
			if err != nil {
				return err
			}
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}
			table, err := rt.Driver.UpdateRanks(cmd.Context(), now)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(table)
			}
			output.Success("Ranked %d symbols for %s", len(table.Ranks), table.GeneratedDate.Format("2006-01-02"))
			output.Printf("  Breadth: %.1f%%\n", table.Breadth)
			top, _ := cmd.Flags().GetInt("sectors")
			if top > len(table.Sectors) {
				top = len(table.Sectors)
			}
			if top > 0 {
				t := NewTable(output, "RANK", "SECTOR", "SCORE", "MEMBERS")
				for _, s := range table.Sectors[:top] {
					t.AddRow(fmt.Sprintf("%d", s.Rank), s.Name, fmt.Sprintf("%.1f", s.Score), fmt.Sprintf("%d", s.Members))
				}
				t.Render()
			}
			return nil
		},
	}
	addAtFlag(cmd)
	cmd.Flags().Int("sectors", 10, "number of leading sectors to show")
	return cmd
}

func newCheckCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate open positions for exit signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := app.asOf(cmd)
			if err != nil {
				return err
			}
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}
			daily, _ := cmd.Flags().GetBool("daily")
			var report *driver.CheckReport
			if daily {
				report, err = rt.Driver.DailyCheck(cmd.Context(), now)
			} else {
				report, err = rt.Driver.Monitor(cmd.Context(), now)
			}
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(report)
			}
			printCheck(output, report)
			return nil
		},
	}
	addAtFlag(cmd)
	cmd.Flags().Bool("daily", false, "run the end-of-day check with trade statistics")
	return cmd
}

func printCheck(output *Output, report *driver.CheckReport) {
	if len(report.Holdings) == 0 && len(report.Unpriced) == 0 {
		output.Dim("No open positions")
		return
	}
	signals := make(map[string]models.ExitSignal)
	for _, s := range report.Exits.Signals() {
		signals[s.Symbol] = s
	}

	table := NewTable(output, "SYMBOL", "NAME", "GRADE", "QTY", "COST", "PRICE", "MA5", "STOP", "P&L", "T+1", "SIGNAL")
	for _, h := range report.Holdings {
		p := h.Position
		signal := ""
		if s, ok := signals[p.Symbol]; ok {
			signal = string(s.Reason)
			if s.Authoritative {
				signal = output.Red(signal)
			} else {
				signal = output.Yellow(signal)
			}
		}
		sellable := "yes"
		if !h.Sellable {
			sellable = output.Yellow("locked")
		}
		table.AddRow(
			p.Symbol,
			p.Name,
			string(p.Grade),
			utils.FormatQuantity(p.Quantity),
			fmt.Sprintf("%.2f", p.EntryPrice),
			fmt.Sprintf("%.2f", h.Price),
			fmt.Sprintf("%.2f", h.MA5),
			fmt.Sprintf("%.2f", p.StopPrice),
			output.Percent(h.PnLPct),
			sellable,
			signal,
		)
	}
	table.Render()
	output.Println()
	output.Printf("Unrealized: %s\n", output.Signed(report.MarketPnL, utils.FormatPnL(report.MarketPnL)))
	if len(report.Unpriced) > 0 {
		output.Warning("No price for: %s", strings.Join(report.Unpriced, ", "))
	}
	for _, s := range report.Exits.Signals() {
		if s.Authoritative {
			output.Error("%s %s: %s", s.Reason, s.Symbol, s.Message)
		} else {
			output.Warning("%s %s: %s", s.Reason, s.Symbol, s.Message)
		}
	}
	if report.Daily {
		output.Println()
		printStats(output, report.Stats)
	}
}

func newPremarketCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "premarket",
		Short: "Report opening gaps of held positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := app.asOf(cmd)
			if err != nil {
				return err
			}
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}
			alerts, err := rt.Driver.PremarketCheck(cmd.Context(), now)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(alerts)
			}
			if len(alerts) == 0 {
				output.Dim("No open positions with auction prices")
				return nil
			}
			table := NewTable(output, "SYMBOL", "NAME", "PREV", "OPEN", "GAP", "STOP", "LABEL")
			for _, a := range alerts {
				label := string(a.Label)
				switch a.Label {
				case driver.GapCriticalDown, driver.GapDown:
					label = output.Red(label)
				case driver.GapHighOpen, driver.GapStableOpen:
					label = output.Green(label)
				}
				if a.BelowStop {
					label += " " + output.Red("BELOW STOP")
				}
				table.AddRow(a.Symbol, a.Name, fmt.Sprintf("%.2f", a.PrevClose), fmt.Sprintf("%.2f", a.Open),
					output.Percent(a.GapPct), fmt.Sprintf("%.2f", a.StopPrice), label)
			}
			table.Render()
			return nil
		},
	}
	addAtFlag(cmd)
	return cmd
}
