package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

var (
	ErrEmptyJobName  = errors.New("job name is required")
	ErrEmptyCronExpr = errors.New("cron expression is required")
)

// Scheduler runs cron jobs until its context ends. Each run gets a
// context bounded by the job timeout.
type Scheduler struct {
	cron    gocron.Scheduler
	logger  *slog.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(logger *slog.Logger, timeout time.Duration) (*Scheduler, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cron, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					logger.Error("scheduler job panicked",
						"job_id", jobID.String(),
						"job_name", jobName,
						"panic", recoverData,
					)
				}),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{cron: cron, logger: logger, timeout: timeout, ctx: ctx, cancel: cancel}, nil
}

// AddCron registers task under a standard five-field cron expression.
func (s *Scheduler) AddCron(name, expr string, task func(context.Context) error) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyJobName
	}
	if strings.TrimSpace(expr) == "" {
		return ErrEmptyCronExpr
	}
	logger := s.logger.With("job_name", name, "cron", expr)
	run := func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		start := time.Now()
		if err := task(ctx); err != nil {
			logger.Error("scheduler job failed", "err", err)
			return
		}
		logger.Debug("scheduler job completed", "duration_ms", time.Since(start).Milliseconds())
	}
	_, err := s.cron.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(run),
		gocron.WithName(name),
	)
	if err != nil {
		return err
	}
	logger.Info("scheduler job registered")
	return nil
}

// Run starts the jobs and blocks until ctx is done, then shuts down and
// waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	s.cancel()
	return s.cron.Shutdown()
}
