package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/placementpay/internal/batch"
	"github.com/smallbiznis/placementpay/internal/clock"
	escrowdomain "github.com/smallbiznis/placementpay/internal/escrow/domain"
	obsmetrics "github.com/smallbiznis/placementpay/internal/observability/metrics"
	scheduledomain "github.com/smallbiznis/placementpay/internal/schedule/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testLabels = map[string]string{"service": "placementpay", "env": "test"}

type fakeLocker struct {
	held     map[string]bool
	err      error
	released []string
}

func (l *fakeLocker) Acquire(_ context.Context, job string) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[job] {
		return nil, false, nil
	}
	return func() { l.released = append(l.released, job) }, true, nil
}

func newTestScheduler(t *testing.T, cfg Config, locker Locker, jobs ...Job) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics := obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "placementpay", Environment: "test"})
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	return newScheduler(zaptest.NewLogger(t), node, clk, cfg, locker, metrics, jobs), registry
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	s, registry := newTestScheduler(t, Config{JobTimeout: 5 * time.Millisecond}, nil)

	err := s.runJob(context.Background(), Job{Name: "timeout_job", Sweep: func(ctx context.Context) (*batch.Summary, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, registry, "placementpay_scheduler_job_timeouts_total", withLabels("job", "timeout_job")))
	assert.Equal(t, 1.0, counterValue(t, registry, "placementpay_scheduler_job_errors_total",
		withLabels("job", "timeout_job", "reason", obsmetrics.JobReasonDeadlineExceeded)))
}

func TestRunOnceRunsEveryJobAndJoinsErrors(t *testing.T) {
	var ran []string
	s, registry := newTestScheduler(t, Config{}, nil,
		Job{Name: JobPayoutSchedulesDue, Sweep: func(context.Context) (*batch.Summary, error) {
			ran = append(ran, JobPayoutSchedulesDue)
			return nil, errors.New("db down")
		}},
		Job{Name: JobEscrowReleasesDue, Sweep: func(context.Context) (*batch.Summary, error) {
			ran = append(ran, JobEscrowReleasesDue)
			return &batch.Summary{Processed: 2, Failed: 1, Errors: []batch.RowError{{ID: "42", Error: "boom"}}}, nil
		}},
	)

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payout_schedules_due: db down")
	assert.Equal(t, []string{JobPayoutSchedulesDue, JobEscrowReleasesDue}, ran)

	assert.Equal(t, 1.0, counterValue(t, registry, "placementpay_scheduler_job_runs_total", withLabels("job", JobEscrowReleasesDue)))
	assert.Equal(t, 2.0, counterValue(t, registry, "placementpay_scheduler_rows_processed_total", withLabels("job", JobEscrowReleasesDue)))
	assert.Equal(t, 1.0, counterValue(t, registry, "placementpay_scheduler_rows_failed_total", withLabels("job", JobEscrowReleasesDue)))
	assert.Equal(t, 1.0, counterValue(t, registry, "placementpay_scheduler_job_errors_total",
		withLabels("job", JobPayoutSchedulesDue, "reason", obsmetrics.JobReasonUnknown)))
}

func TestRunJobSkipsWhenLockHeld(t *testing.T) {
	locker := &fakeLocker{held: map[string]bool{JobPayoutSchedulesDue: true}}
	calls := 0
	sweep := func(context.Context) (*batch.Summary, error) {
		calls++
		return &batch.Summary{Processed: 1}, nil
	}
	s, registry := newTestScheduler(t, Config{}, locker,
		Job{Name: JobPayoutSchedulesDue, Sweep: sweep},
		Job{Name: JobEscrowReleasesDue, Sweep: sweep},
	)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{JobEscrowReleasesDue}, locker.released)
	assert.Equal(t, 1.0, counterValue(t, registry, "placementpay_scheduler_runs_skipped_total",
		withLabels("job", JobPayoutSchedulesDue, "reason", obsmetrics.SkipReasonLockHeld)))
}

func TestRunJobSkipsWhenLockErrors(t *testing.T) {
	locker := &fakeLocker{err: errors.New("redis unreachable")}
	called := false
	s, registry := newTestScheduler(t, Config{}, locker, Job{Name: JobEscrowReleasesDue, Sweep: func(context.Context) (*batch.Summary, error) {
		called = true
		return nil, nil
	}})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.False(t, called)
	assert.Equal(t, 1.0, counterValue(t, registry, "placementpay_scheduler_runs_skipped_total",
		withLabels("job", JobEscrowReleasesDue, "reason", obsmetrics.SkipReasonLockErr)))
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runs := make(chan struct{}, 1)
	s, _ := newTestScheduler(t, Config{RunInterval: time.Hour}, nil, Job{Name: "noop", Sweep: func(context.Context) (*batch.Summary, error) {
		select {
		case runs <- struct{}{}:
		default:
		}
		return batch.New(), nil
	}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()

	select {
	case <-runs:
	case <-time.After(time.Second):
		t.Fatal("first run did not happen")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunForever did not return after cancel")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{BatchSize: 10}.withDefaults()
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 2*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
	assert.Equal(t, 15*time.Minute, cfg.RecoveryThreshold)
}

func TestNewRedisLockerWithoutClient(t *testing.T) {
	assert.Nil(t, NewRedisLocker(nil, DefaultConfig()))
}

func withLabels(pairs ...string) map[string]string {
	labels := make(map[string]string, len(testLabels)+len(pairs)/2)
	for k, v := range testLabels {
		labels[k] = v
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		labels[pairs[i]] = pairs[i+1]
	}
	return labels
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

type recordingSchedules struct {
	scheduledomain.Service
	calls     []string
	threshold time.Duration
}

func (r *recordingSchedules) RecoverStaleSchedules(_ context.Context, olderThan time.Duration) (*batch.Summary, error) {
	r.calls = append(r.calls, JobScheduleRecovery)
	r.threshold = olderThan
	return batch.New(), nil
}

func (r *recordingSchedules) ProcessDueSchedules(context.Context) (*batch.Summary, error) {
	r.calls = append(r.calls, JobPayoutSchedulesDue)
	return batch.New(), nil
}

type recordingEscrow struct {
	escrowdomain.Service
	schedules *recordingSchedules
}

func (r *recordingEscrow) ProcessDueReleases(context.Context) (*batch.Summary, error) {
	r.schedules.calls = append(r.schedules.calls, JobEscrowReleasesDue)
	return batch.New(), nil
}

func TestDefaultJobsRecoverBeforeSweeping(t *testing.T) {
	schedules := &recordingSchedules{}
	escrow := &recordingEscrow{schedules: schedules}
	jobs := DefaultJobs(Config{RecoveryThreshold: 20 * time.Minute}, schedules, escrow)
	s, registry := newTestScheduler(t, Config{}, nil, jobs...)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{JobScheduleRecovery, JobPayoutSchedulesDue, JobEscrowReleasesDue}, schedules.calls)
	assert.Equal(t, 20*time.Minute, schedules.threshold)
	assert.Equal(t, 1.0, counterValue(t, registry, "placementpay_scheduler_job_runs_total", withLabels("job", JobScheduleRecovery)))
}
