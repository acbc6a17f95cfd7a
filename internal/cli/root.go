// Package cli provides the alphahunter command-line interface.
package cli

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"alphahunter/internal/config"
	"alphahunter/internal/driver"
	"alphahunter/internal/logging"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-06-20"
)

// App holds the application dependencies. Config is loaded before every
// command; the runtime is built on first use.
type App struct {
	ConfigDir string
	Config    *config.Config
	Warnings  []string
	Logger    zerolog.Logger

	runtime *driver.Runtime
	// build is swapped out in tests.
	build func(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*driver.Runtime, error)
}

// Runtime returns the wired driver runtime, building it once.
func (a *App) Runtime(ctx context.Context) (*driver.Runtime, error) {
	if a.runtime != nil {
		return a.runtime, nil
	}
	rt, err := a.build(ctx, a.Config, a.Logger)
	if err != nil {
		return nil, err
	}
	a.runtime = rt
	return rt, nil
}

// Close releases the runtime if one was built.
func (a *App) Close() error {
	if a.runtime == nil {
		return nil
	}
	err := a.runtime.Close()
	a.runtime = nil
	return err
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger, build: driver.Build}
	return newRootCmd(app)
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "alphahunter",
		Short: "A-share end-of-session momentum scanner and position risk monitor",
		Long: `alphahunter scans the A-share universe late in the session for momentum
candidates, grades and sizes them, and watches open positions for exits.

Use 'alphahunter serve' to run the scheduled jobs, or run any job by hand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Config == nil {
				cfg, warnings, err := config.Load(app.ConfigDir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Warnings = warnings
				app.Logger = logging.NewLoggerWithConfig(cfg.Logging)
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			for _, w := range app.Warnings {
				app.Logger.Warn().Str("source", "config").Msg(w)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.ConfigDir, "config", "", "config directory (default: ~/.config/alphahunter)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("yaml", false, "output in YAML format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newScanCmd(app),
		newRankCmd(app),
		newCheckCmd(app),
		newPremarketCmd(app),
		newBuyCmd(app),
		newSellCmd(app),
		newPositionsCmd(app),
		newTradesCmd(app),
		newStatsCmd(app),
		newBacktestCmd(app),
		newPerformanceCmd(app),
		newServeCmd(app),
		newConfigCmd(app),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("alphahunter v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}
