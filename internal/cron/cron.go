package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job is a task run every Every. A run that is still going when the next one
// is due pushes that one back.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// NewCronScheduler returns a started UTC scheduler. Jobs receive ctx, so they
// log through its logger, and every run is logged with its duration.
func NewCronScheduler(ctx context.Context) (gocron.Scheduler, error) {
	zlog := zerolog.Ctx(ctx).With().Str("component", "cron").Logger()
	runs := &runClock{started: make(map[uuid.UUID]time.Time)}

	scheduler, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithContext(ctx),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithEventListeners(
				gocron.BeforeJobRuns(func(jobID uuid.UUID, _ string) {
					runs.begin(jobID)
				}),
				gocron.AfterJobRuns(func(jobID uuid.UUID, jobName string) {
					jobEvent(zlog.Debug(), jobID, jobName, runs.end(jobID)).Msg("job finished")
				}),
				gocron.AfterJobRunsWithError(func(jobID uuid.UUID, jobName string, err error) {
					jobEvent(zlog.Err(err), jobID, jobName, runs.end(jobID)).Msg("job failed")
				}),
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					jobEvent(zlog.Error(), jobID, jobName, runs.end(jobID)).Any("recover_data", recoverData).Msg("job panicked")
				}),
			),
		),
		gocron.WithLogger(logger{l: zlog}),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}

// Schedule adds job to scheduler. The first run happens one interval after
// scheduling.
func Schedule(scheduler gocron.Scheduler, job Job) (gocron.Job, error) {
	j, err := scheduler.NewJob(
		gocron.DurationJob(job.Every),
		gocron.NewTask(job.Run),
		gocron.WithName(job.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule job %q: %w", job.Name, err)
	}
	return j, nil
}

func jobEvent(e *zerolog.Event, jobID uuid.UUID, jobName string, took time.Duration) *zerolog.Event {
	return e.Str("job_name", jobName).Str("job_id", jobID.String()).Dur("took", took)
}

type runClock struct {
	mu      sync.Mutex
	started map[uuid.UUID]time.Time
}

func (r *runClock) begin(jobID uuid.UUID) {
	r.mu.Lock()
	r.started[jobID] = time.Now()
	r.mu.Unlock()
}

// end returns zero when the run was already accounted for.
func (r *runClock) end(jobID uuid.UUID) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	start, ok := r.started[jobID]
	if !ok {
		return 0
	}
	delete(r.started, jobID)
	return time.Since(start)
}

// logger feeds gocron's slog style key/value pairs into zerolog.
type logger struct {
	l zerolog.Logger
}

func (l logger) Debug(msg string, args ...any) { l.l.Debug().Fields(args).Msg(msg) }
func (l logger) Info(msg string, args ...any)  { l.l.Info().Fields(args).Msg(msg) }
func (l logger) Warn(msg string, args ...any)  { l.l.Warn().Fields(args).Msg(msg) }
func (l logger) Error(msg string, args ...any) { l.l.Error().Fields(args).Msg(msg) }
