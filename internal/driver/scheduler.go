package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"alphahunter/internal/config"
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 10 * time.Minute

type jobFunc func(ctx context.Context, now time.Time) error

type job struct {
	name string
	spec string
	run  jobFunc
}

// Scheduler runs the driver jobs on their cron specs in the market time
// zone. Specs carry a seconds field.
type Scheduler struct {
	cron   *cron.Cron
	driver *Driver
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
	logger zerolog.Logger
}

// NewScheduler creates a scheduler for d. Nothing runs until Start.
func NewScheduler(d *Driver, logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(d.calendar.Location())),
		driver: d,
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds every job in cfg. Empty specs are skipped.
func (s *Scheduler) Register(cfg config.ScheduleConfig) error {
	jobs := []job{
		{"rank_update", cfg.RankUpdate, s.rankUpdate},
		{"premarket", cfg.Premarket, s.tradingDayOnly(s.premarket)},
		{"monitor", cfg.Monitor, s.sessionOnly(s.monitor)},
		{"daily_check", cfg.DailyCheck, s.tradingDayOnly(s.dailyCheck)},
	}
	for i, spec := range cfg.Scans {
		jobs = append(jobs, job{fmt.Sprintf("scan_%d", i+1), spec, s.tradingDayOnly(s.scan)})
	}

	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { s.runJob(j.name, j.run) }); err != nil {
			return fmt.Errorf("register %s job: %w", j.name, err)
		}
		s.logger.Debug().Str("job", j.name).Str("spec", j.spec).Msg("Job registered")
	}
	return nil
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", s.Entries()).Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runJob(name string, run jobFunc) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	start := s.now()
	if err := run(ctx, start); err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("Job failed")
		return
	}
	s.logger.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("Job finished")
}

func (s *Scheduler) tradingDayOnly(run jobFunc) jobFunc {
	return func(ctx context.Context, now time.Time) error {
		if !s.driver.calendar.IsTradingDay(now) {
			return nil
		}
		return run(ctx, now)
	}
}

func (s *Scheduler) sessionOnly(run jobFunc) jobFunc {
	return func(ctx context.Context, now time.Time) error {
		if !s.driver.calendar.IsOpen(now) {
			return nil
		}
		return run(ctx, now)
	}
}

func (s *Scheduler) rankUpdate(ctx context.Context, now time.Time) error {
	_, err := s.driver.UpdateRanks(ctx, now)
	return err
}

func (s *Scheduler) scan(ctx context.Context, now time.Time) error {
	_, err := s.driver.Scan(ctx, now)
	return err
}

func (s *Scheduler) premarket(ctx context.Context, now time.Time) error {
	_, err := s.driver.PremarketCheck(ctx, now)
	return err
}

func (s *Scheduler) monitor(ctx context.Context, now time.Time) error {
	_, err := s.driver.Monitor(ctx, now)
	return err
}

func (s *Scheduler) dailyCheck(ctx context.Context, now time.Time) error {
	_, err := s.driver.DailyCheck(ctx, now)
	return err
}
