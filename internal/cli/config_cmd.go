package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"alphahunter/internal/config"
	"alphahunter/internal/security"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View, validate and initialise the configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			warnings, err := app.Config.Validate()
			if err != nil {
				output.Error("Configuration is invalid: %v", err)
				return err
			}
			if output.IsStructured() {
				return output.Structured(map[string]interface{}{"valid": true, "warnings": warnings})
			}
			for _, w := range warnings {
				output.Warning("warning: %s", w)
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the configuration template",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := app.ConfigDir
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			path, err := config.WriteTemplate(dir)
			if err != nil {
				return err
			}
			NewOutput(cmd).Success("Wrote %s", path)
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Strategy")
	output.Printf("  Change band:     %.1f%% .. %.1f%%\n", cfg.Strategy.ChangeMin, cfg.Strategy.ChangeMax)
	output.Printf("  Turnover band:   %.1f%% .. %.1f%%\n", cfg.Strategy.TurnoverMin, cfg.Strategy.TurnoverMax)
	output.Printf("  MA / max bias:   MA%d / %.1f%%\n", cfg.Strategy.MAPeriod, cfg.Strategy.BiasMax*100)
	output.Println()

	output.Bold("Scoring")
	w := cfg.Weights
	output.Printf("  Weights:         momentum %.2f, flow %.2f, sector %.2f, valuation %.2f, volume %.2f\n",
		w.Momentum, w.MoneyFlow, w.Sector, w.Valuation, w.Volume)
	output.Printf("  Grades:          A %.0f, B %.0f, C %.0f (floor %.0f)\n",
		cfg.Scoring.GradeA, cfg.Scoring.GradeB, cfg.Scoring.GradeC, cfg.Scoring.MinTotalScore)
	output.Printf("  Kelly:           base %.0f, x%.1f .. x%.1f\n", cfg.Kelly.BaseAmount, cfg.Kelly.MinMultiple, cfg.Kelly.MaxMultiple)
	output.Println()

	output.Bold("Risk")
	table := NewTable(output, "GRADE", "ATR X", "FIXED STOP", "TRAIL AFTER", "DRAWDOWN", "TAKE PROFIT", "ATTENTION")
	for _, g := range []string{"A", "B", "C", "D"} {
		gr, ok := cfg.Risk.GradeParams(g)
		if !ok {
			continue
		}
		table.AddRow(g,
			formatFloat(gr.ATRMultiplier, 1),
			formatFloat(gr.FixedStopPct, 1)+"%",
			formatFloat(gr.MaxProfitPct, 1)+"%",
			formatFloat(gr.DrawdownPct, 1)+"%",
			formatFloat(gr.TakeProfitPct, 1)+"%",
			formatFloat(gr.LossAttentionPct, 1)+"%")
	}
	table.Render()
	output.Println()

	output.Bold("Runtime")
	output.Printf("  Data dir:        %s\n", cfg.Data.Dir)
	output.Printf("  Cache:           %s\n", cfg.Cache.Backend)
	output.Printf("  Store:           %s\n", cfg.Store.Driver)
	if cfg.Store.DSN != "" {
		output.Printf("  DSN:             %s\n", security.RedactURL(cfg.Store.DSN))
	}
	output.Printf("  Auto-open:       %v\n", cfg.Monitor.AutoOpen)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	if cfg.Notifications.Webhook.URL != "" {
		output.Printf("  Webhook URL:     %s\n", security.RedactURL(cfg.Notifications.Webhook.URL))
	}
	output.Printf("  Metrics:         %v (%s)\n", cfg.Metrics.Enabled, cfg.Metrics.Addr)
}

// redacted returns a shallow copy of cfg with credentials masked.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	out.Store.DSN = security.RedactURL(cfg.Store.DSN)
	out.Notifications.Webhook.URL = security.RedactURL(cfg.Notifications.Webhook.URL)
	return out
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
