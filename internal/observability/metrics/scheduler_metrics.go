// Package metrics exposes prometheus instruments for the background jobs and
// the payment path.
package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonUniqueViolation  = "unique_violation"
	JobReasonLockTimeout      = "db_lock_timeout"
	JobReasonDB               = "db"
	JobReasonBusinessRule     = "business_rule"
)

const (
	ResourceBills     = "bills"
	ResourceCustomers = "customers"
	ResourceTenants   = "tenants"
)

// SchedulerMetrics captures sweep and job health signals.
type SchedulerMetrics struct {
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobTimeouts     *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	batchProcessed  *prometheus.CounterVec
	batchSkipped    *prometheus.CounterVec
	paymentsApplied prometheus.Counter
	paymentAmount   prometheus.Counter
}

var (
	schedulerOnce sync.Once
	scheduler     *SchedulerMetrics
)

// Scheduler returns the singleton metrics registry.
func Scheduler() *SchedulerMetrics {
	schedulerOnce.Do(func() {
		scheduler = newSchedulerMetrics(prometheus.DefaultRegisterer)
	})
	return scheduler
}

// ResetForTest resets the singleton so tests can register against a fresh
// registry.
func ResetForTest() {
	schedulerOnce = sync.Once{}
	scheduler = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netbill_scheduler_job_runs_total",
		Help: "Scheduler job runs by name.",
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netbill_scheduler_job_duration_seconds",
		Help:    "Scheduler job latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netbill_scheduler_job_timeouts_total",
		Help: "Scheduler jobs that hit their deadline.",
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netbill_scheduler_job_errors_total",
		Help: "Scheduler job errors by low-cardinality reason.",
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netbill_scheduler_batch_processed_total",
		Help: "Rows mutated by sweep batches.",
	}, []string{"job", "resource"})
	batchSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netbill_scheduler_batch_skipped_total",
		Help: "Rows a sweep saw but another writer had already handled.",
	}, []string{"job", "resource"})
	paymentsApplied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netbill_payments_applied_total",
		Help: "Completed payments recorded.",
	})
	paymentAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "netbill_payments_amount_minor_units_total",
		Help: "Sum of completed payment amounts in minor units.",
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		batchSkipped,
		paymentsApplied,
		paymentAmount,
	)

	return &SchedulerMetrics{
		jobRuns:         jobRuns,
		jobDuration:     jobDuration,
		jobTimeouts:     jobTimeouts,
		jobErrors:       jobErrors,
		batchProcessed:  batchProcessed,
		batchSkipped:    batchSkipped,
		paymentsApplied: paymentsApplied,
		paymentAmount:   paymentAmount,
	}
}

// IncJobRun increments the run counter for a scheduler job.
func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the scheduler job.
func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the job error counter with a classified reason.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || m.jobErrors == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

// AddBatchProcessed adds mutated rows for a job and resource.
func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || m.batchProcessed == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

// AddBatchSkipped adds rows another writer handled first.
func (m *SchedulerMetrics) AddBatchSkipped(job, resource string, count int) {
	if m == nil || m.batchSkipped == nil || count <= 0 {
		return
	}
	m.batchSkipped.WithLabelValues(job, resource).Add(float64(count))
}

// IncPaymentApplied records one completed payment and its amount.
func (m *SchedulerMetrics) IncPaymentApplied(amount int64) {
	if m == nil || m.paymentsApplied == nil {
		return
	}
	m.paymentsApplied.Inc()
	if amount > 0 && m.paymentAmount != nil {
		m.paymentAmount.Add(float64(amount))
	}
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonBusinessRule
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return JobReasonUniqueViolation
	}
	if hasPGCode(err, "55P03") {
		return JobReasonLockTimeout
	}
	if isDBError(err) {
		return JobReasonDB
	}
	return JobReasonBusinessRule
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
