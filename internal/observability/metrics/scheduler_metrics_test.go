package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulerMetrics(reg, Config{ServiceName: "test", Environment: "ci"})

	m.IncJobRun("payout_schedules_due")
	m.IncJobRun("payout_schedules_due")
	m.AddRows("payout_schedules_due", 3, 1)
	m.IncRunSkipped("escrow_releases_due", SkipReasonLockHeld)
	m.ObserveJobDuration("payout_schedules_due", 150*time.Millisecond)
	m.IncTerminalFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("payout_schedules_due")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rowsProcessed.WithLabelValues("payout_schedules_due")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rowsFailed.WithLabelValues("payout_schedules_due")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsSkipped.WithLabelValues("escrow_releases_due", SkipReasonLockHeld)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.terminalFailed))
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("x")
	m.AddRows("x", 1, 1)
	m.IncJobError("x", errors.New("boom"))
}

func TestClassifyJobReason(t *testing.T) {
	assert.Equal(t, JobReasonDeadlineExceeded, ClassifyJobReason(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.Equal(t, JobReasonLockTimeout, ClassifyJobReason(&pgconn.PgError{Code: "55P03"}))
	assert.Equal(t, JobReasonSerialization, ClassifyJobReason(&pgconn.PgError{Code: "40001"}))
	assert.Equal(t, JobReasonUnknown, ClassifyJobReason(errors.New("other")))
}
