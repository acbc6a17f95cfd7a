package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"alphahunter/internal/errors"
	"alphahunter/internal/models"
	"alphahunter/internal/security"
	"alphahunter/internal/trading"
	"alphahunter/pkg/utils"
)

const maxNoteLen = 200

func parsePriceQty(priceArg, qtyArg string) (float64, int, error) {
	price, err := strconv.ParseFloat(priceArg, 64)
	if err != nil {
		return 0, 0, errors.NewValidationError("price", priceArg, "not a number")
	}
	if qtyArg == "" {
		return price, 0, nil
	}
	qty, err := strconv.Atoi(qtyArg)
	if err != nil {
		return 0, 0, errors.NewValidationError("quantity", qtyArg, "not an integer")
	}
	return price, qty, nil
}

func newBuyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buy SYMBOL PRICE QTY",
		Short: "Open a position or add to an open one",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := security.NormalizeSymbol(args[0])
			if err != nil {
				return err
			}
			price, qty, err := parsePriceQty(args[1], args[2])
			if err != nil {
				return err
			}
			now, err := app.asOf(cmd)
			if err != nil {
				return err
			}
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}

			grade, _ := cmd.Flags().GetString("grade")
			name, _ := cmd.Flags().GetString("name")
			note, _ := cmd.Flags().GetString("note")
			note = security.SanitizeText(note, maxNoteLen)
			name = security.SanitizeText(name, maxNoteLen)

			// ATR needs history; without it the grade's fixed stop is used
			var candles []models.Candle
			lookback := app.Config.Risk.ATRPeriod + 10
			if series, err := rt.Provider.History(cmd.Context(), symbol, lookback, models.AdjustMode(app.Config.Data.Adjust)); err == nil {
				candles = series.Candles
			} else {
				app.Logger.Warn().Err(err).Str("symbol", symbol).Msg("No history for ATR")
			}

			upd, err := rt.Driver.Engine().Buy(cmd.Context(), trading.OpenRequest{
				Symbol:   symbol,
				Name:     name,
				Price:    price,
				Quantity: qty,
				Grade:    models.Grade(strings.ToUpper(grade)),
				Note:     note,
				Candles:  candles,
				At:       now,
			})
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(upd)
			}
			p := upd.Position
			verb := "Opened"
			if upd.Added {
				verb = "Added to"
			}
			output.Success("%s %s: %s @ %.2f, grade %s", verb, p.Symbol, utils.FormatQuantity(p.Quantity), p.EntryPrice, p.Grade)
			output.Printf("  Stop: %.2f", p.StopPrice)
			if p.ATR > 0 {
				output.Printf(" (ATR %.2f)", p.ATR)
			}
			output.Println()
			for _, w := range upd.Warnings {
				output.Warning("  %s", w)
			}
			return nil
		},
	}
	addAtFlag(cmd)
	cmd.Flags().String("grade", "", "risk grade A-D (default: the configured default grade)")
	cmd.Flags().String("name", "", "security name")
	cmd.Flags().String("note", "", "free-form note")
	return cmd
}

func newSellCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sell SYMBOL PRICE",
		Short: "Close all or part of a position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, err := security.NormalizeSymbol(args[0])
			if err != nil {
				return err
			}
			qtyArg, _ := cmd.Flags().GetString("qty")
			price, qty, err := parsePriceQty(args[1], qtyArg)
			if err != nil {
				return err
			}
			now, err := app.asOf(cmd)
			if err != nil {
				return err
			}
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}
			force, _ := cmd.Flags().GetBool("force")
			reason, _ := cmd.Flags().GetString("reason")

			trade, err := rt.Driver.Engine().Close(cmd.Context(), trading.CloseRequest{
				Symbol:   symbol,
				Price:    price,
				Quantity: qty,
				Reason:   reason,
				Override: force,
				At:       now,
			})
			output := NewOutput(cmd)
			if errors.Is(err, errors.ErrSettlementPending) {
				output.Error("%v", err)
				output.Dim("Bought today; use --force to override the T+1 rule")
				return err
			}
			if err != nil {
				return err
			}

			if output.IsStructured() {
				return output.Structured(trade)
			}
			output.Success("Sold %s %s @ %.2f", trade.Symbol, utils.FormatQuantity(trade.Quantity), trade.ExitPrice)
			output.Printf("  P&L: %s (%s), held %d days\n",
				output.Signed(trade.PnLAmount, utils.FormatPnL(trade.PnLAmount)), output.Percent(trade.PnLPct), trade.HoldingDays)
			return nil
		},
	}
	addAtFlag(cmd)
	cmd.Flags().String("qty", "", "shares to sell (default: all)")
	cmd.Flags().Bool("force", false, "sell a position bought today")
	cmd.Flags().String("reason", string(models.ExitManual), "exit reason recorded with the trade")
	return cmd
}

func newPositionsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "List open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}
			positions, err := rt.Driver.Engine().Positions(cmd.Context())
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(positions)
			}
			if len(positions) == 0 {
				output.Dim("No open positions")
				return nil
			}
			table := NewTable(output, "SYMBOL", "NAME", "GRADE", "QTY", "COST", "HIGH", "STOP", "ENTERED", "STRATEGY")
			for _, p := range positions {
				table.AddRow(
					p.Symbol,
					p.Name,
					string(p.Grade),
					utils.FormatQuantity(p.Quantity),
					fmt.Sprintf("%.2f", p.EntryPrice),
					fmt.Sprintf("%.2f", p.HighestPrice),
					fmt.Sprintf("%.2f", p.StopPrice),
					p.EntryDate.Format(atLayout),
					p.Strategy,
				)
			}
			table.Render()
			return nil
		},
	}
}

func since(app *App, cmd *cobra.Command) time.Time {
	days, _ := cmd.Flags().GetInt("days")
	now := time.Now().In(app.Config.Location())
	return models.DayStart(now).AddDate(0, 0, -days)
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List closed trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}
			trades, err := rt.Store.ListTrades(cmd.Context(), since(app, cmd))
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades")
				return nil
			}
			table := NewTable(output, "EXIT", "SYMBOL", "GRADE", "QTY", "ENTRY", "EXIT PX", "P&L", "PCT", "DAYS", "REASON")
			for _, t := range trades {
				table.AddRow(
					t.ExitDate.Format("2006-01-02"),
					t.Symbol,
					string(t.Grade),
					utils.FormatQuantity(t.Quantity),
					fmt.Sprintf("%.2f", t.EntryPrice),
					fmt.Sprintf("%.2f", t.ExitPrice),
					output.Signed(t.PnLAmount, utils.FormatPnL(t.PnLAmount)),
					output.Percent(t.PnLPct),
					fmt.Sprintf("%d", t.HoldingDays),
					t.Reason,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int("days", 30, "look back this many days")
	return cmd
}

func newStatsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Closed-trade statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.Runtime(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := rt.Driver.Engine().Stats(cmd.Context(), since(app, cmd))
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(stats)
			}
			printStats(output, stats)
			return nil
		},
	}
	cmd.Flags().Int("days", 30, "look back this many days")
	return cmd
}

func printStats(output *Output, st trading.TradeStats) {
	output.Bold("Trade statistics")
	if st.Trades == 0 {
		output.Dim("  No closed trades")
		return
	}
	output.Printf("  Trades:       %d (%d won, %d lost)\n", st.Trades, st.Wins, st.Losses)
	output.Printf("  Win rate:     %.1f%%\n", st.WinRate)
	output.Printf("  Avg win/loss: %s / %s\n", output.Percent(st.AvgWinPct), output.Percent(st.AvgLossPct))
	output.Printf("  P/L ratio:    %.2f\n", st.ProfitLossRatio)
	output.Printf("  Total P&L:    %s\n", output.Signed(st.TotalPnL, utils.FormatPnL(st.TotalPnL)))
	output.Printf("  Avg holding:  %.1f days\n", st.AvgHoldingDays)
	output.Printf("  Best/worst:   %s / %s\n", output.Percent(st.BestPct), output.Percent(st.WorstPct))
}
