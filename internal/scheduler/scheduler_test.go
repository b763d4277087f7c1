package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	"github.com/smallbiznis/netbill/internal/billingevent"
	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
	"github.com/smallbiznis/netbill/internal/clock"
	enforcementdomain "github.com/smallbiznis/netbill/internal/enforcement/domain"
	obsmetrics "github.com/smallbiznis/netbill/internal/observability/metrics"
	"github.com/smallbiznis/netbill/internal/providers/notify"
	subscriptiondomain "github.com/smallbiznis/netbill/internal/subscription/domain"
	"github.com/smallbiznis/netbill/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type billingStub struct {
	sweeps int
}

func (s *billingStub) Create(context.Context, billingdomain.CreateBillRequest) (billingdomain.CreateBillResult, error) {
	return billingdomain.CreateBillResult{}, nil
}
func (s *billingStub) GetByID(context.Context, string) (billingdomain.Bill, error) {
	return billingdomain.Bill{}, nil
}
func (s *billingStub) List(context.Context, billingdomain.ListBillsRequest) ([]billingdomain.Bill, pagination.PageInfo, error) {
	return nil, pagination.PageInfo{}, nil
}
func (s *billingStub) Cancel(context.Context, string) (billingdomain.Bill, error) {
	return billingdomain.Bill{}, nil
}
func (s *billingStub) Recompute(context.Context, *gorm.DB, snowflake.ID, billingdomain.RecomputeOptions) (billingdomain.Bill, error) {
	return billingdomain.Bill{}, nil
}
func (s *billingStub) SweepOverdue(context.Context, time.Time) (billingdomain.SweepSummary, error) {
	s.sweeps++
	return billingdomain.SweepSummary{Processed: 2, Skipped: 1}, nil
}

type enforcementStub struct {
	sweeps int
}

func (s *enforcementStub) EvaluateSuspension(context.Context, string, int, time.Time) (enforcementdomain.Decision, error) {
	return enforcementdomain.Decision{}, nil
}
func (s *enforcementStub) EvaluateReactivation(context.Context, string) (enforcementdomain.Decision, error) {
	return enforcementdomain.Decision{}, nil
}
func (s *enforcementStub) SweepSuspensions(context.Context, int, time.Time) (enforcementdomain.SweepSummary, error) {
	s.sweeps++
	return enforcementdomain.SweepSummary{}, nil
}

type subscriptionStub struct {
	checks int
}

func (s *subscriptionStub) Activate(context.Context, subscriptiondomain.ActivateRequest) (subscriptiondomain.ActivateResult, error) {
	return subscriptiondomain.ActivateResult{}, nil
}
func (s *subscriptionStub) CheckExpiry(context.Context, time.Time) (subscriptiondomain.ExpirySummary, error) {
	s.checks++
	return subscriptiondomain.ExpirySummary{}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *billingStub, *enforcementStub, *subscriptionStub) {
	t.Helper()
	billing := &billingStub{}
	enforcement := &enforcementStub{}
	subscription := &subscriptionStub{}
	dispatcher := billingevent.NewDispatcher(billingevent.DispatcherParams{
		Log:      zap.NewNop(),
		Notifier: notify.NoOpDispatcher{},
	})
	return &Scheduler{
		log:             zap.NewNop(),
		cfg:             DefaultConfig(),
		clock:           clock.NewFakeClock(time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)),
		gracePeriodDays: 7,
		billingSvc:      billing,
		enforcementSvc:  enforcement,
		subscriptionSvc: subscription,
		dispatcher:      dispatcher,
	}, billing, enforcement, subscription
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.ResetForTest()

	s, _, _, _ := newTestScheduler(t)
	s.cfg.JobTimeout = 5 * time.Millisecond

	err := s.runJob(context.Background(), "timeout_job", func(ctx context.Context) ([]eventdomain.Event, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err != nil {
		t.Fatalf("timeout must not surface as an error, got %v", err)
	}

	if got := getCounterValue(t, registry, "netbill_scheduler_job_runs_total", map[string]string{"job": "timeout_job"}); got != 1 {
		t.Fatalf("expected 1 run, got %v", got)
	}
	if got := getCounterValue(t, registry, "netbill_scheduler_job_timeouts_total", map[string]string{"job": "timeout_job"}); got != 1 {
		t.Fatalf("expected 1 timeout, got %v", got)
	}
}

func TestRunJobClassifiesErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.ResetForTest()

	s, _, _, _ := newTestScheduler(t)
	err := s.runJob(context.Background(), "broken_job", func(ctx context.Context) ([]eventdomain.Event, error) {
		return nil, gorm.ErrDuplicatedKey
	})
	if err == nil {
		t.Fatalf("expected the job error to surface")
	}

	labels := map[string]string{"job": "broken_job", "reason": obsmetrics.JobReasonUniqueViolation}
	if got := getCounterValue(t, registry, "netbill_scheduler_job_errors_total", labels); got != 1 {
		t.Fatalf("expected 1 classified error, got %v", got)
	}
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.ResetForTest()

	s, billing, enforcement, subscription := newTestScheduler(t)
	s.cfg.EnabledJobs = []string{JobOverdueSweep}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if billing.sweeps != 1 {
		t.Fatalf("expected overdue sweep to run once, got %d", billing.sweeps)
	}
	if enforcement.sweeps != 0 || subscription.checks != 0 {
		t.Fatalf("disabled jobs must not run: enforcement=%d subscription=%d", enforcement.sweeps, subscription.checks)
	}

	labels := map[string]string{"job": JobOverdueSweep, "resource": obsmetrics.ResourceBills}
	if got := getCounterValue(t, registry, "netbill_scheduler_batch_processed_total", labels); got != 2 {
		t.Fatalf("expected 2 bills processed, got %v", got)
	}
	if got := getCounterValue(t, registry, "netbill_scheduler_batch_skipped_total", labels); got != 1 {
		t.Fatalf("expected 1 bill skipped, got %v", got)
	}
}

func TestRunOnceRunsAllJobsByDefault(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()
	obsmetrics.ResetForTest()

	s, billing, enforcement, subscription := newTestScheduler(t)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if billing.sweeps != 1 || enforcement.sweeps != 1 || subscription.checks != 1 {
		t.Fatalf("all jobs should run: billing=%d enforcement=%d subscription=%d",
			billing.sweeps, enforcement.sweeps, subscription.checks)
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
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
