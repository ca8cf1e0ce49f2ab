package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tallyboard.io/internal/obs"
)

// Job is a unit of scheduled work returning the number of rows it touched.
type Job interface {
	Run(ctx context.Context) (int64, error)
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) (int64, error)

func (f JobFunc) Run(ctx context.Context) (int64, error) { return f(ctx) }

// Scheduler runs jobs on cron schedules. A run still in progress when its
// next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     zerolog.Logger
	timeout time.Duration
}

// NewScheduler builds a scheduler in UTC. timeout bounds each run; zero
// means no bound.
func NewScheduler(logger zerolog.Logger, timeout time.Duration) *Scheduler {
	cl := cronLogger{log: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     logger,
		timeout: timeout,
	}
}

// Add schedules job under name.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunNow(context.Background(), name, job) }); err != nil {
		return fmt.Errorf("jobs: schedule %s (%q): %w", name, spec, err)
	}
	s.log.Info().Str("job", name).Str("schedule", spec).Msg("job scheduled")
	return nil
}

// RunNow runs job once, recording metrics and logging the outcome.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) (int64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	n, err := job.Run(ctx)
	obs.ObserveJobRun(name, n, err)

	ev := s.log.Info()
	if err != nil {
		ev = s.log.Error().Err(err)
	}
	ev.Str("job", name).Int64("affected", n).Dur("took", time.Since(start)).Msg("job finished")
	return n, err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling; the returned context is done once running jobs end.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// Entries returns how many jobs are scheduled.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
