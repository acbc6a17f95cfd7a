package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"alphahunter/internal/driver"
)

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled jobs with /metrics and /healthz",
		Long: `Run the rank update, scans, premarket check, intraday monitor and
daily check on their configured cron schedules until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := app.Runtime(ctx)
			if err != nil {
				return err
			}
			logger := app.Logger.With().Str("component", "serve").Logger()

			sched := driver.NewScheduler(rt.Driver, app.Logger)
			if err := sched.Register(app.Config.Schedule); err != nil {
				return err
			}
			sched.Start()

			var srv *http.Server
			if app.Config.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/metrics", rt.Metrics.Handler())
				mux.Handle("/healthz", rt.Health().HealthHTTPHandler())
				srv = &http.Server{
					Addr:              app.Config.Metrics.Addr,
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					logger.Info().Str("addr", srv.Addr).Msg("Metrics listening")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error().Err(err).Msg("Metrics server failed")
						stop()
					}
				}()
			}

			NewOutput(cmd).Info("alphahunter serving; Ctrl-C to stop")
			<-ctx.Done()

			shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if srv != nil {
				if err := srv.Shutdown(shutdown); err != nil {
					logger.Warn().Err(err).Msg("Metrics server shutdown")
				}
			}
			return sched.Stop(shutdown)
		},
	}
}
