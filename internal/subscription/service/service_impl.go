package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
	"github.com/smallbiznis/netbill/internal/config"
	docdomain "github.com/smallbiznis/netbill/internal/docnumber/domain"
	subscriptiondomain "github.com/smallbiznis/netbill/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/netbill/internal/tenant/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"github.com/smallbiznis/netbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	DocGen docdomain.Generator
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	docGen      docdomain.Generator
	warningDays int
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscription.service"),
		genID:       p.GenID,
		docGen:      p.DocGen,
		warningDays: p.Config.ExpiryWarningDays,
	}
}

func (s *Service) Activate(ctx context.Context, req subscriptiondomain.ActivateRequest) (subscriptiondomain.ActivateResult, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok || !scope.SuperOperator {
		return subscriptiondomain.ActivateResult{}, subscriptiondomain.ErrOperatorOnly
	}

	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil {
		return subscriptiondomain.ActivateResult{}, tenantdomain.ErrNotFound
	}
	if req.Amount < 0 {
		return subscriptiondomain.ActivateResult{}, subscriptiondomain.ErrInvalidAmount
	}
	start := req.Start.UTC()
	end := req.End.UTC()
	if !end.After(start) {
		return subscriptiondomain.ActivateResult{}, subscriptiondomain.ErrInvalidWindow
	}

	var result subscriptiondomain.ActivateResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant tenantdomain.Tenant
		err := tx.Raw(
			`SELECT * FROM tenants WHERE id = ?`+db.RowLockSuffix(tx), tenantID,
		).Scan(&tenant).Error
		if err != nil {
			return err
		}
		if tenant.ID == 0 {
			return tenantdomain.ErrNotFound
		}

		now := time.Now().UTC()
		if err := tx.Exec(
			`UPDATE tenants
			 SET subscription_status = ?, subscription_start = ?, subscription_end = ?,
			     last_expiry_warning_at = NULL, updated_at = ?
			 WHERE id = ?`,
			tenantdomain.SubscriptionActive, start, end, now, tenant.ID,
		).Error; err != nil {
			return err
		}

		invoice, err := s.createInvoice(ctx, tx, tenant.ID, tenant.Code, req.Amount, start, end, subscriptiondomain.InvoiceKindInitial, now)
		if err != nil {
			return err
		}
		result = subscriptiondomain.ActivateResult{Invoice: invoice}
		return nil
	})
	if err != nil {
		return subscriptiondomain.ActivateResult{}, err
	}

	s.log.Info("subscription activated",
		zap.String("tenant_id", tenantID.String()),
		zap.Time("start", start),
		zap.Time("end", end),
	)
	return result, nil
}

// CheckExpiry is idempotent per day: the warning pass rides on a conditional
// last_expiry_warning_at update and the suspension pass on the active-status
// guard, so a rerun after a crash repeats neither.
func (s *Service) CheckExpiry(ctx context.Context, now time.Time) (subscriptiondomain.ExpirySummary, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok || !scope.SuperOperator {
		return subscriptiondomain.ExpirySummary{}, subscriptiondomain.ErrOperatorOnly
	}

	now = now.UTC()
	summary := subscriptiondomain.ExpirySummary{}

	if err := s.warnExpiring(ctx, now, &summary); err != nil {
		return summary, err
	}
	if err := s.suspendLapsed(ctx, now, &summary); err != nil {
		return summary, err
	}

	if summary.Warned > 0 || summary.Suspended > 0 || summary.Failed > 0 {
		s.log.Info("subscription expiry check done",
			zap.Int("warned", summary.Warned),
			zap.Int("suspended", summary.Suspended),
			zap.Int("failed", summary.Failed),
		)
	}
	return summary, nil
}

func (s *Service) warnExpiring(ctx context.Context, now time.Time, summary *subscriptiondomain.ExpirySummary) error {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	horizon := now.AddDate(0, 0, s.warningDays)

	var tenants []tenantdomain.Tenant
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM tenants
		 WHERE subscription_status = ?
		   AND subscription_end IS NOT NULL
		   AND subscription_end >= ?
		   AND subscription_end <= ?
		   AND (last_expiry_warning_at IS NULL OR last_expiry_warning_at < ?)
		 ORDER BY subscription_end`,
		tenantdomain.SubscriptionActive, now, horizon, dayStart,
	).Scan(&tenants).Error
	if err != nil {
		return err
	}

	for _, tenant := range tenants {
		res := s.db.WithContext(ctx).Exec(
			`UPDATE tenants SET last_expiry_warning_at = ?, updated_at = ?
			 WHERE id = ? AND (last_expiry_warning_at IS NULL OR last_expiry_warning_at < ?)`,
			now, now, tenant.ID, dayStart,
		)
		if res.Error != nil {
			summary.Failed++
			s.log.Warn("expiry warning failed",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(res.Error),
			)
			continue
		}
		if res.RowsAffected == 0 {
			// Another run already warned this tenant today.
			continue
		}
		summary.Warned++
		summary.Events = append(summary.Events,
			eventdomain.SubscriptionExpiring(tenant.ID, tenant.SubscriptionEnd.UTC(), now))
	}
	return nil
}

func (s *Service) suspendLapsed(ctx context.Context, now time.Time, summary *subscriptiondomain.ExpirySummary) error {
	var tenants []tenantdomain.Tenant
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM tenants
		 WHERE subscription_status = ?
		   AND subscription_end IS NOT NULL
		   AND subscription_end < ?
		 ORDER BY subscription_end`,
		tenantdomain.SubscriptionActive, now,
	).Scan(&tenants).Error
	if err != nil {
		return err
	}

	for _, tenant := range tenants {
		if err := s.suspendTenant(ctx, tenant, now, summary); err != nil {
			summary.Failed++
			s.log.Warn("subscription suspension failed",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Service) suspendTenant(ctx context.Context, tenant tenantdomain.Tenant, now time.Time, summary *subscriptiondomain.ExpirySummary) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`UPDATE tenants SET subscription_status = ?, updated_at = ?
			 WHERE id = ? AND subscription_status = ?`,
			tenantdomain.SubscriptionSuspended, now, tenant.ID, tenantdomain.SubscriptionActive,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		amount := s.lastInvoiceAmount(ctx, tx, tenant.ID)
		start := now
		if tenant.SubscriptionStart != nil {
			start = tenant.SubscriptionStart.UTC()
		}
		end := now
		if tenant.SubscriptionEnd != nil {
			end = tenant.SubscriptionEnd.UTC()
		}
		if _, err := s.createInvoice(ctx, tx, tenant.ID, tenant.Code, amount, start, end, subscriptiondomain.InvoiceKindFinal, now); err != nil {
			return err
		}

		summary.Suspended++
		summary.Events = append(summary.Events, eventdomain.SubscriptionSuspended(tenant.ID, now))
		return nil
	})
}

// lastInvoiceAmount prices the final invoice off the most recent one; zero
// when the tenant was never invoiced.
func (s *Service) lastInvoiceAmount(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) int64 {
	var amount int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE((SELECT amount FROM subscription_invoices
		  WHERE tenant_id = ? ORDER BY created_at DESC LIMIT 1), 0)`,
		tenantID,
	).Scan(&amount).Error
	if err != nil {
		return 0
	}
	return amount
}

func (s *Service) createInvoice(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, tenantCode string, amount int64, start, end time.Time, kind subscriptiondomain.InvoiceKind, now time.Time) (subscriptiondomain.SubscriptionInvoice, error) {
	invoice := subscriptiondomain.SubscriptionInvoice{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		Amount:      amount,
		PeriodStart: start,
		PeriodEnd:   end,
		Status:      subscriptiondomain.InvoiceStatusPending,
		Kind:        kind,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for attempt := 0; attempt < 3; attempt++ {
		number, err := s.docGen.Next(ctx, tx, tenantID, tenantCode, docdomain.KindInvoice, now)
		if err != nil {
			return subscriptiondomain.SubscriptionInvoice{}, err
		}
		invoice.InvoiceNumber = number
		err = tx.Create(&invoice).Error
		if err == nil {
			return invoice, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return subscriptiondomain.SubscriptionInvoice{}, err
		}
	}
	return subscriptiondomain.SubscriptionInvoice{}, gorm.ErrDuplicatedKey
}
