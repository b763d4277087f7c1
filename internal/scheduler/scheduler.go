// Package scheduler drives the periodic ledger jobs: overdue sweep,
// suspension sweep and subscription expiry. Jobs run under the platform
// scope, take a redis lease when one is configured, and isolate failures so
// one bad row never stalls the batch.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	"github.com/smallbiznis/netbill/internal/billingevent"
	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
	"github.com/smallbiznis/netbill/internal/clock"
	"github.com/smallbiznis/netbill/internal/config"
	enforcementdomain "github.com/smallbiznis/netbill/internal/enforcement/domain"
	obsmetrics "github.com/smallbiznis/netbill/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/netbill/internal/subscription/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

const (
	JobOverdueSweep       = "overdue_sweep"
	JobSuspensionSweep    = "suspension_sweep"
	JobSubscriptionExpiry = "subscription_expiry"
)

type Params struct {
	fx.In

	AppConfig       config.Config
	Log             *zap.Logger
	Clock           clock.Clock
	BillingSvc      billingdomain.Service
	EnforcementSvc  enforcementdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Dispatcher      *billingevent.Dispatcher
	Locker          *Locker `optional:"true"`
	Config          Config  `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	gracePeriodDays int
	billingSvc      billingdomain.Service
	enforcementSvc  enforcementdomain.Service
	subscriptionSvc subscriptiondomain.Service
	dispatcher      *billingevent.Dispatcher
	locker          *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.BillingSvc == nil || p.EnforcementSvc == nil || p.SubscriptionSvc == nil || p.Dispatcher == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler"),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		gracePeriodDays: p.AppConfig.GracePeriodDays,
		billingSvc:      p.BillingSvc,
		enforcementSvc:  p.EnforcementSvc,
		subscriptionSvc: p.SubscriptionSvc,
		dispatcher:      p.Dispatcher,
		locker:          p.Locker,
	}, nil
}

// runJob wraps a job with the platform scope, the redis lease, a deadline and
// metrics. A deadline hit is a soft timeout: the next tick resumes where the
// idempotent sweep left off.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) ([]eventdomain.Event, error)) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = tenantctx.WithScope(ctx, tenantctx.Scope{SuperOperator: true})

	token, acquired, err := s.locker.TryLock(ctx, "netbill:scheduler:"+name, s.cfg.LeaseTTL)
	if err != nil {
		s.log.Warn("lease acquisition failed", zap.String("job", name), zap.Error(err))
		return nil
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), "netbill:scheduler:"+name, token); err != nil {
			s.log.Warn("lease release failed", zap.String("job", name), zap.Error(err))
		}
	}()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	events, err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))

	if failed := s.dispatcher.Dispatch(context.WithoutCancel(ctx), events); len(failed) > 0 {
		s.log.Warn("event delivery incomplete",
			zap.String("job", name),
			zap.Int("failed", len(failed)),
		)
	}

	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	schedMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) OverdueSweepJob(ctx context.Context) ([]eventdomain.Event, error) {
	summary, err := s.billingSvc.SweepOverdue(ctx, s.clock.Now())
	m := obsmetrics.Scheduler()
	m.AddBatchProcessed(JobOverdueSweep, obsmetrics.ResourceBills, summary.Processed)
	m.AddBatchSkipped(JobOverdueSweep, obsmetrics.ResourceBills, summary.Skipped)
	return summary.Events, err
}

func (s *Scheduler) SuspensionSweepJob(ctx context.Context) ([]eventdomain.Event, error) {
	summary, err := s.enforcementSvc.SweepSuspensions(ctx, s.gracePeriodDays, s.clock.Now())
	m := obsmetrics.Scheduler()
	m.AddBatchProcessed(JobSuspensionSweep, obsmetrics.ResourceCustomers, summary.Processed)
	m.AddBatchSkipped(JobSuspensionSweep, obsmetrics.ResourceCustomers, summary.Skipped)
	return summary.Events, err
}

func (s *Scheduler) SubscriptionExpiryJob(ctx context.Context) ([]eventdomain.Event, error) {
	summary, err := s.subscriptionSvc.CheckExpiry(ctx, s.clock.Now())
	obsmetrics.Scheduler().AddBatchProcessed(JobSubscriptionExpiry, obsmetrics.ResourceTenants, summary.Warned+summary.Suspended)
	return summary.Events, err
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		Name string
		Run  func(context.Context) ([]eventdomain.Event, error)
	}{
		{JobOverdueSweep, s.OverdueSweepJob},
		{JobSuspensionSweep, s.SuspensionSweepJob},
		{JobSubscriptionExpiry, s.SubscriptionExpiryJob},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
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

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
