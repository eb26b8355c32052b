// Package jobs runs the background reconciliation work that keeps
// file records consistent when storage notifications never arrive.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"github.com/robfig/cron/v3"
)

var (
	ErrPoolRequired   = errors.New("jobs: pgx pool is required")
	ErrAlreadyStarted = errors.New("jobs: runner already started")
	ErrNotStarted     = errors.New("jobs: runner not started")
)

const sweepQueue = river.QueueDefault

// Config controls the reconciliation runner.
type Config struct {
	// SweepSchedule is a standard 5-field cron expression.
	SweepSchedule string `env:"JOBS_SWEEP_SCHEDULE" envDefault:"*/5 * * * *"`

	// StaleWindow is how long an upload may stay pending before the
	// sweep marks it failed.
	StaleWindow time.Duration `env:"JOBS_STALE_WINDOW" envDefault:"15m"`

	MaxWorkers int `env:"JOBS_MAX_WORKERS" envDefault:"10"`
}

// Sweeper fails pending uploads older than the window and reports how
// many records were touched.
type Sweeper interface {
	FailStalePending(ctx context.Context, window time.Duration) (int64, error)
}

// Runner owns the River client that executes the periodic sweep.
type Runner struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewRunner creates a Runner with the sweep registered as a periodic
// job. Call Start to begin processing.
func NewRunner(pool *pgxpool.Pool, sweeper Sweeper, cfg Config, log *slog.Logger) (*Runner, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}

	schedule, err := parseCronSchedule(cfg.SweepSchedule)
	if err != nil {
		return nil, fmt.Errorf("jobs: invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &sweepWorker{
		sweeper: sweeper,
		window:  cfg.StaleWindow,
		log:     log,
	})

	periodic := []*river.PeriodicJob{
		river.NewPeriodicJob(
			schedule,
			func() (river.JobArgs, *river.InsertOpts) {
				return sweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			sweepQueue: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: create client: %w", err)
	}

	return &Runner{client: client, log: log}, nil
}

// Start begins processing the periodic sweep.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}
	if err := r.client.Start(ctx); err != nil {
		return fmt.Errorf("jobs: start client: %w", err)
	}
	r.started = true
	r.log.Info("reconciliation runner started")
	return nil
}

// Stop shuts the runner down, waiting for an in-flight sweep to finish.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return ErrNotStarted
	}
	if err := r.client.Stop(ctx); err != nil {
		return fmt.Errorf("jobs: stop client: %w", err)
	}
	r.started = false
	r.log.Info("reconciliation runner stopped")
	return nil
}

type sweepArgs struct{}

func (sweepArgs) Kind() string { return "files:fail_stale_pending" }

// InsertOpts dedupes the periodic job so overlapping schedules never
// run two sweeps at once.
func (sweepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true, ByState: []rivertype.JobState{
			rivertype.JobStateAvailable,
			rivertype.JobStateRunning,
			rivertype.JobStateScheduled,
		}},
	}
}

type sweepWorker struct {
	river.WorkerDefaults[sweepArgs]
	sweeper Sweeper
	window  time.Duration
	log     *slog.Logger
}

func (w *sweepWorker) Work(ctx context.Context, job *river.Job[sweepArgs]) error {
	count, err := w.sweeper.FailStalePending(ctx, w.window)
	if err != nil {
		w.log.ErrorContext(ctx, "stale upload sweep failed",
			slog.Int64("job_id", job.ID),
			slog.Int("attempt", job.Attempt),
			slog.Any("error", err),
		)
		return err
	}

	if count > 0 {
		w.log.InfoContext(ctx, "stale uploads failed by sweep",
			slog.Int64("count", count),
			slog.Duration("window", w.window),
		)
	}
	return nil
}

type cronScheduleAdapter struct {
	schedule cron.Schedule
}

func (a *cronScheduleAdapter) Next(current time.Time) time.Time {
	return a.schedule.Next(current)
}

func parseCronSchedule(expr string) (river.PeriodicSchedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return &cronScheduleAdapter{schedule: schedule}, nil
}
