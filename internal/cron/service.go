package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/dormship-backend/pkg/logger"
	"github.com/angelmondragon/dormship-backend/pkg/metrics"
)

type ServiceParams struct {
	Logger   *logger.Logger
	Schedule *Schedule
	Lease    Lease
	Metrics  *metrics.CronJobMetrics
	// MaxTick caps how long the loop sleeps between due checks.
	MaxTick time.Duration
}

// Service wakes on the schedule's tick and runs due jobs while holding the
// lease.
type Service struct {
	logg     *logger.Logger
	schedule *Schedule
	lease    Lease
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger is required")
	case params.Lease == nil:
		return nil, errors.New("cron: lease is required")
	case params.Schedule == nil:
		return nil, errors.New("cron: schedule is required")
	}
	return &Service{
		logg:     params.Logger,
		schedule: params.Schedule,
		lease:    params.Lease,
		metrics:  params.Metrics,
		tick:     params.Schedule.Tick(params.MaxTick),
		now:      time.Now,
	}, nil
}

// Run checks the schedule once immediately and then on every tick until ctx
// ends.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tick": s.tick.String(),
		"jobs": s.schedule.Names(),
	}), "cron.started")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if err := s.cycle(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) cycle(ctx context.Context) error {
	due := s.schedule.Due(s.now())
	if len(due) == 0 {
		return nil
	}

	held, err := s.lease.Acquire(ctx)
	if err != nil {
		return err
	}
	if !held {
		s.metrics.IncContended()
		s.logg.Info(ctx, "cron.lease_held_elsewhere")
		return nil
	}
	defer func() {
		if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron.lease_release_failed")
		}
	}()

	var errs error
	for _, job := range due {
		if ctx.Err() != nil {
			break
		}
		if err := s.runJob(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errs
}

// runJob marks the job as run even on failure so a broken job waits for its
// next period instead of retrying every tick.
func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	started := s.now()
	err := job.Run(jobCtx)
	finished := s.now()
	s.schedule.MarkRun(job.Name(), started)
	s.metrics.ObserveRun(job.Name(), finished.Sub(started), finished, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", finished.Sub(started).Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron.job_failed", err)
		return err
	}
	s.logg.Info(jobCtx, "cron.job_done")
	return nil
}
