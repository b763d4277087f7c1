package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
	customerdomain "github.com/smallbiznis/netbill/internal/customer/domain"
	enforcementdomain "github.com/smallbiznis/netbill/internal/enforcement/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"github.com/smallbiznis/netbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchSize = 200

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) enforcementdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("enforcement.service"),
	}
}

func (s *Service) EvaluateSuspension(ctx context.Context, customerID string, gracePeriodDays int, now time.Time) (enforcementdomain.Decision, error) {
	if gracePeriodDays < 0 {
		return enforcementdomain.Decision{}, enforcementdomain.ErrInvalidGrace
	}
	id, err := snowflake.ParseString(strings.TrimSpace(customerID))
	if err != nil {
		return enforcementdomain.Decision{}, enforcementdomain.ErrCustomerNotFound
	}

	cutoff := now.UTC().AddDate(0, 0, -gracePeriodDays)
	var decision enforcementdomain.Decision
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.loadCustomerForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if customer == nil {
			return enforcementdomain.ErrCustomerNotFound
		}
		if scope, ok := tenantctx.FromContext(ctx); ok && !scope.Visible(customer.TenantID) {
			return enforcementdomain.ErrCustomerNotFound
		}
		if customer.Status == customerdomain.ServiceSuspended {
			decision = enforcementdomain.Decision{Changed: false, Reason: "already suspended"}
			return nil
		}

		var unsettled int64
		if err := tx.Raw(
			`SELECT COUNT(*)
			 FROM bills
			 WHERE customer_id = ?
			   AND status IN (?, ?, ?)
			   AND due_date < ?`,
			id,
			billingdomain.BillStatusPending,
			billingdomain.BillStatusPartial,
			billingdomain.BillStatusOverdue,
			cutoff,
		).Scan(&unsettled).Error; err != nil {
			return err
		}
		if unsettled == 0 {
			decision = enforcementdomain.Decision{Changed: false, Reason: "no bills past grace period"}
			return nil
		}

		reason := fmt.Sprintf("%d bill(s) unpaid beyond %d day grace period", unsettled, gracePeriodDays)
		ts := now.UTC()
		res := tx.Exec(
			`UPDATE customers
			 SET status = ?, suspended_at = ?, suspension_reason = ?, updated_at = ?
			 WHERE id = ? AND status <> ?`,
			customerdomain.ServiceSuspended, ts, reason, ts, id, customerdomain.ServiceSuspended,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			decision = enforcementdomain.Decision{Changed: false, Reason: "already suspended"}
			return nil
		}

		decision = enforcementdomain.Decision{
			Changed: true,
			Reason:  reason,
			Events: []eventdomain.Event{{
				Type:       eventdomain.EventCustomerSuspended,
				TenantID:   customer.TenantID,
				CustomerID: id,
				OccurredAt: ts,
				Metadata:   map[string]any{"reason": reason},
			}},
		}
		return nil
	})
	if err != nil {
		return enforcementdomain.Decision{}, err
	}
	if decision.Changed {
		s.log.Info("customer suspended",
			zap.String("customer_id", id.String()),
			zap.String("reason", decision.Reason),
		)
	}
	return decision, nil
}

func (s *Service) EvaluateReactivation(ctx context.Context, customerID string) (enforcementdomain.Decision, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(customerID))
	if err != nil {
		return enforcementdomain.Decision{}, enforcementdomain.ErrCustomerNotFound
	}

	var decision enforcementdomain.Decision
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.loadCustomerForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if customer == nil {
			return enforcementdomain.ErrCustomerNotFound
		}
		if scope, ok := tenantctx.FromContext(ctx); ok && !scope.Visible(customer.TenantID) {
			return enforcementdomain.ErrCustomerNotFound
		}
		if customer.Status != customerdomain.ServiceSuspended {
			decision = enforcementdomain.Decision{Changed: false, Reason: "not suspended"}
			return nil
		}

		// Every non-cancelled bill must be fully settled; a single cent
		// outstanding keeps the customer suspended.
		var outstanding int64
		if err := tx.Raw(
			`SELECT COUNT(*)
			 FROM bills
			 WHERE customer_id = ?
			   AND status <> ?
			   AND total_amount - paid_amount > 0`,
			id,
			billingdomain.BillStatusCancelled,
		).Scan(&outstanding).Error; err != nil {
			return err
		}
		if outstanding > 0 {
			decision = enforcementdomain.Decision{
				Changed: false,
				Reason:  fmt.Sprintf("%d bill(s) with outstanding balance", outstanding),
			}
			return nil
		}

		ts := time.Now().UTC()
		res := tx.Exec(
			`UPDATE customers
			 SET status = ?, suspended_at = NULL, suspension_reason = NULL,
			     reactivated_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			customerdomain.ServiceActive, ts, ts, id, customerdomain.ServiceSuspended,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			decision = enforcementdomain.Decision{Changed: false, Reason: "not suspended"}
			return nil
		}

		decision = enforcementdomain.Decision{
			Changed: true,
			Reason:  "all bills settled",
			Events: []eventdomain.Event{{
				Type:       eventdomain.EventCustomerReactivated,
				TenantID:   customer.TenantID,
				CustomerID: id,
				OccurredAt: ts,
			}},
		}
		return nil
	})
	if err != nil {
		return enforcementdomain.Decision{}, err
	}
	if decision.Changed {
		s.log.Info("customer reactivated", zap.String("customer_id", id.String()))
	}
	return decision, nil
}

func (s *Service) SweepSuspensions(ctx context.Context, gracePeriodDays int, now time.Time) (enforcementdomain.SweepSummary, error) {
	if gracePeriodDays < 0 {
		return enforcementdomain.SweepSummary{}, enforcementdomain.ErrInvalidGrace
	}
	cutoff := now.UTC().AddDate(0, 0, -gracePeriodDays)

	// Candidates are read outside the per-customer transactions; each
	// evaluation re-checks state under its own lock.
	var candidates []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT c.id
		 FROM customers c
		 JOIN bills b ON b.customer_id = c.id
		 WHERE c.status <> ?
		   AND b.status IN (?, ?, ?)
		   AND b.due_date < ?
		 LIMIT ?`,
		customerdomain.ServiceSuspended,
		billingdomain.BillStatusPending,
		billingdomain.BillStatusPartial,
		billingdomain.BillStatusOverdue,
		cutoff,
		sweepBatchSize,
	).Scan(&candidates).Error
	if err != nil {
		return enforcementdomain.SweepSummary{}, err
	}

	summary := enforcementdomain.SweepSummary{}
	for _, id := range candidates {
		decision, err := s.EvaluateSuspension(ctx, id.String(), gracePeriodDays, now)
		if err != nil {
			summary.Failed++
			s.log.Warn("suspension evaluation failed",
				zap.String("customer_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		if !decision.Changed {
			summary.Skipped++
			continue
		}
		summary.Processed++
		summary.Events = append(summary.Events, decision.Events...)
	}

	s.log.Info("suspension sweep finished",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

type customerRow struct {
	ID       snowflake.ID
	TenantID snowflake.ID
	Status   customerdomain.ServiceStatus
}

func (s *Service) loadCustomerForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*customerRow, error) {
	var customer customerRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, tenant_id, status FROM customers WHERE id = ?`+db.RowLockSuffix(tx),
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}
