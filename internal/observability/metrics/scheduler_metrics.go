package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonLockTimeout      = "db_lock_timeout"
	JobReasonSerialization    = "serialization_failure"
	JobReasonUniqueViolation  = "unique_violation"
	JobReasonUnknown          = "unknown"
)

const (
	SkipReasonLockHeld = "lock_held"
	SkipReasonLockErr  = "lock_error"
)

// SchedulerMetrics tracks due-sweep health.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	rowsProcessed  *prometheus.CounterVec
	rowsFailed     *prometheus.CounterVec
	runsSkipped    *prometheus.CounterVec
	terminalFailed prometheus.Counter
}

// NewSchedulerMetrics registers the sweep collectors on registerer.
func NewSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "placementpay_scheduler_job_runs_total",
			Help:        "Due-sweep job runs by name.",
			ConstLabels: labels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "placementpay_scheduler_job_duration_seconds",
			Help:        "Due-sweep job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: labels,
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "placementpay_scheduler_job_timeouts_total",
			Help:        "Due-sweep jobs that hit their deadline.",
			ConstLabels: labels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "placementpay_scheduler_job_errors_total",
			Help:        "Due-sweep job errors by low-cardinality reason.",
			ConstLabels: labels,
		}, []string{"job", "reason"}),
		rowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "placementpay_scheduler_rows_processed_total",
			Help:        "Rows advanced by a due sweep.",
			ConstLabels: labels,
		}, []string{"job"}),
		rowsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "placementpay_scheduler_rows_failed_total",
			Help:        "Rows whose processing failed during a due sweep.",
			ConstLabels: labels,
		}, []string{"job"}),
		runsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "placementpay_scheduler_runs_skipped_total",
			Help:        "Due-sweep runs skipped before doing work.",
			ConstLabels: labels,
		}, []string{"job", "reason"}),
		terminalFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "placementpay_payout_schedule_terminal_failures_total",
			Help:        "Payout schedules that exhausted their retry ceiling.",
			ConstLabels: labels,
		}),
	}

	registerer.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobTimeouts,
		m.jobErrors,
		m.rowsProcessed,
		m.rowsFailed,
		m.runsSkipped,
		m.terminalFailed,
	)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *SchedulerMetrics) AddRows(job string, processed, failed int) {
	if m == nil {
		return
	}
	if processed > 0 {
		m.rowsProcessed.WithLabelValues(job).Add(float64(processed))
	}
	if failed > 0 {
		m.rowsFailed.WithLabelValues(job).Add(float64(failed))
	}
}

func (m *SchedulerMetrics) IncRunSkipped(job, reason string) {
	if m == nil {
		return
	}
	m.runsSkipped.WithLabelValues(job, reason).Inc()
}

func (m *SchedulerMetrics) IncTerminalFailure() {
	if m == nil {
		return
	}
	m.terminalFailed.Inc()
}

// ClassifyJobReason maps an error to a bounded label value.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return JobReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return JobReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return JobReasonLockTimeout
		case "40001":
			return JobReasonSerialization
		case "23505":
			return JobReasonUniqueViolation
		}
	}
	return JobReasonUnknown
}

func constLabels(cfg Config) prometheus.Labels {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "placementpay"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": service, "env": env}
}
