package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/placementpay/internal/batch"
	obscontext "github.com/smallbiznis/placementpay/internal/observability/context"
	obslogger "github.com/smallbiznis/placementpay/internal/observability/logger"
	"go.uber.org/zap"
)

type jobRun struct {
	job            string
	runID          string
	batchSize      int
	startedAt      time.Time
	processedCount int
	failedCount    int
	skippedCount   int
	errorCount     int
}

func (r *jobRun) record(summary *batch.Summary) {
	if r == nil || summary == nil {
		return
	}
	r.processedCount += summary.Processed
	r.failedCount += summary.Failed
	r.skippedCount += summary.Skipped
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (s *Scheduler) newJobRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: s.cfg.BatchSize,
		startedAt: s.clock.Now(),
	}
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	return ctx, run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("failed_count", run.failedCount),
		zap.Int("skipped_count", run.skippedCount),
		zap.Int("error_count", run.errorCount),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 || run.failedCount > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logRowErrors(ctx context.Context, job string, summary *batch.Summary) {
	if summary == nil {
		return
	}
	for _, rowErr := range summary.Errors {
		s.logger(ctx).Warn("scheduler.row.failed",
			zap.String("job", job),
			zap.String("id", rowErr.ID),
			zap.String("error", rowErr.Error),
		)
	}
}
