package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/batch"
	"github.com/smallbiznis/placementpay/internal/clock"
	escrowdomain "github.com/smallbiznis/placementpay/internal/escrow/domain"
	obsmetrics "github.com/smallbiznis/placementpay/internal/observability/metrics"
	scheduledomain "github.com/smallbiznis/placementpay/internal/schedule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobScheduleRecovery   = "payout_schedules_recovery"
	JobPayoutSchedulesDue = "payout_schedules_due"
	JobEscrowReleasesDue  = "escrow_releases_due"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// SweepFunc processes one bounded page of due rows.
type SweepFunc func(ctx context.Context) (*batch.Summary, error)

type Job struct {
	Name  string
	Sweep SweepFunc
}

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    Config `optional:"true"`
	Schedules scheduledomain.Service
	Escrow    escrowdomain.Service
	Locker    Locker                       `optional:"true"`
	Metrics   *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	jobs    []Job
	locker  Locker
	metrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Schedules == nil || p.Escrow == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return newScheduler(p.Log, p.GenID, p.Clock, cfg, p.Locker, p.Metrics, DefaultJobs(cfg, p.Schedules, p.Escrow)), nil
}

// DefaultJobs runs recovery first so rows it fails are retried in the same tick.
func DefaultJobs(cfg Config, schedules scheduledomain.Service, escrow escrowdomain.Service) []Job {
	threshold := cfg.withDefaults().RecoveryThreshold
	return []Job{
		{Name: JobScheduleRecovery, Sweep: func(ctx context.Context) (*batch.Summary, error) {
			return schedules.RecoverStaleSchedules(ctx, threshold)
		}},
		{Name: JobPayoutSchedulesDue, Sweep: schedules.ProcessDueSchedules},
		{Name: JobEscrowReleasesDue, Sweep: escrow.ProcessDueReleases},
	}
}

func newScheduler(log *zap.Logger, genID *snowflake.Node, clk clock.Clock, cfg Config, locker Locker, metrics *obsmetrics.SchedulerMetrics, jobs []Job) *Scheduler {
	return &Scheduler{
		log:     log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     cfg.withDefaults(),
		genID:   genID,
		clock:   clk,
		jobs:    jobs,
		locker:  locker,
		metrics: metrics,
	}
}

func (s *Scheduler) runJob(parent context.Context, job Job) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, job.Name)
	log := s.logger(ctx).With(
		zap.String("job", job.Name),
		zap.String("run_id", run.runID),
	)

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, job.Name)
		if err != nil {
			s.metrics.IncRunSkipped(job.Name, obsmetrics.SkipReasonLockErr)
			log.Warn("scheduler lock unavailable", zap.Error(err))
			return nil
		}
		if !ok {
			s.metrics.IncRunSkipped(job.Name, obsmetrics.SkipReasonLockHeld)
			log.Debug("scheduler lock held elsewhere")
			return nil
		}
		defer release()
	}

	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(job.Name)

	summary, err := job.Sweep(ctx)
	run.record(summary)
	if summary != nil {
		s.metrics.AddRows(job.Name, summary.Processed, summary.Failed)
		s.logRowErrors(ctx, job.Name, summary)
	}
	s.metrics.ObserveJobDuration(job.Name, s.clock.Now().Sub(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the remainder
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(job.Name)
	}
	s.metrics.IncJobError(job.Name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", job.Name, err)
}

// RunOnce runs every sweep once. Each job gets its own deadline, and a
// failing job does not stop the ones after it.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, job := range s.jobs {
		if parent.Err() != nil {
			break
		}
		err = errors.Join(err, s.runJob(parent, job))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
