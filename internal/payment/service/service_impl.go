package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
	docdomain "github.com/smallbiznis/netbill/internal/docnumber/domain"
	enforcementdomain "github.com/smallbiznis/netbill/internal/enforcement/domain"
	"github.com/smallbiznis/netbill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/netbill/internal/payment/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"github.com/smallbiznis/netbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var paymentMethods = map[string]bool{
	"cash":          true,
	"bank_transfer": true,
	"mobile_money":  true,
	"card":          true,
	"cheque":        true,
}

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	DocGen         docdomain.Generator
	BillingSvc     billingdomain.Service
	EnforcementSvc enforcementdomain.Service
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	docGen         docdomain.Generator
	billingSvc     billingdomain.Service
	enforcementSvc enforcementdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.service"),
		genID:          p.GenID,
		docGen:         p.DocGen,
		billingSvc:     p.BillingSvc,
		enforcementSvc: p.EnforcementSvc,
	}
}

// Apply inserts the payment and recomputes the bill atomically. The bill row
// is locked first, so two concurrent payments on the same bill serialize and
// both end up in the recomputed paid amount; payments on different bills do
// not contend.
func (s *Service) Apply(ctx context.Context, req paymentdomain.ApplyPaymentRequest) (paymentdomain.ApplyPaymentResult, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return paymentdomain.ApplyPaymentResult{}, billingdomain.ErrMissingTenantScope
	}

	billID, err := snowflake.ParseString(strings.TrimSpace(req.BillID))
	if err != nil {
		return paymentdomain.ApplyPaymentResult{}, billingdomain.ErrNotFound
	}
	if req.Amount <= 0 {
		return paymentdomain.ApplyPaymentResult{}, paymentdomain.ErrInvalidAmount
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if !paymentMethods[method] {
		return paymentdomain.ApplyPaymentResult{}, paymentdomain.ErrInvalidMethod
	}
	var transactionID *string
	if req.TransactionID != nil {
		trimmed := strings.TrimSpace(*req.TransactionID)
		if trimmed != "" {
			transactionID = &trimmed
		}
	}

	var result paymentdomain.ApplyPaymentResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := s.loadBillForUpdate(ctx, tx, billID)
		if err != nil {
			return err
		}
		if bill == nil || !scope.Visible(bill.TenantID) {
			return billingdomain.ErrNotFound
		}
		if bill.Status == billingdomain.BillStatusCancelled {
			return billingdomain.ErrBillCancelled
		}

		if transactionID != nil {
			existing, err := s.findCompletedByTransaction(ctx, tx, *transactionID)
			if err != nil {
				return err
			}
			if existing != nil {
				if existing.BillID == bill.ID {
					// Gateway retry of an already-recorded payment.
					result = paymentdomain.ApplyPaymentResult{Payment: *existing, Deduplicated: true}
					return nil
				}
				return paymentdomain.ErrDuplicateTransaction
			}
		}

		tenant, err := loadTenantRow(ctx, tx, bill.TenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return billingdomain.ErrNotFound
		}

		now := time.Now().UTC()
		paymentDate := now
		if req.PaymentDate != nil {
			// Backdated entries come from recovery collections and manual
			// corrections.
			paymentDate = req.PaymentDate.UTC()
		}

		payment := paymentdomain.Payment{
			ID:            s.genID.Generate(),
			TenantID:      bill.TenantID,
			CustomerID:    bill.CustomerID,
			BillID:        bill.ID,
			Amount:        req.Amount,
			Method:        method,
			Status:        paymentdomain.PaymentStatusCompleted,
			TransactionID: transactionID,
			PaymentDate:   paymentDate,
			Notes:         strings.TrimSpace(req.Notes),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.insertWithReceipt(ctx, tx, &payment, tenant.Code, now); err != nil {
			return err
		}

		if _, err := s.billingSvc.Recompute(ctx, tx, bill.ID, billingdomain.RecomputeOptions{}); err != nil {
			return err
		}

		result = paymentdomain.ApplyPaymentResult{
			Payment: payment,
			Events: []eventdomain.Event{
				eventdomain.PaymentApplied(bill.TenantID, bill.CustomerID, bill.ID, payment.ID, payment.Amount, now),
			},
		}
		return nil
	})
	if err != nil {
		return paymentdomain.ApplyPaymentResult{}, err
	}

	if !result.Deduplicated {
		metrics.Scheduler().IncPaymentApplied(result.Payment.Amount)

		// Pull evaluation after each payment: reactivation is derived from
		// the now-committed ledger state, not pushed by a timer.
		decision, err := s.enforcementSvc.EvaluateReactivation(ctx, result.Payment.CustomerID.String())
		if err != nil {
			s.log.Warn("reactivation evaluation failed after payment",
				zap.String("customer_id", result.Payment.CustomerID.String()),
				zap.Error(err),
			)
		} else if decision.Changed {
			result.Events = append(result.Events, decision.Events...)
		}

		s.log.Info("payment applied",
			zap.String("payment_id", result.Payment.ID.String()),
			zap.String("bill_id", result.Payment.BillID.String()),
			zap.Int64("amount", result.Payment.Amount),
		)
	}
	return result, nil
}

// insertWithReceipt reserves a receipt number and inserts, retrying on the
// unique constraint.
func (s *Service) insertWithReceipt(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, tenantCode string, now time.Time) error {
	for attempt := 0; attempt < 3; attempt++ {
		number, err := s.docGen.Next(ctx, tx, payment.TenantID, tenantCode, docdomain.KindReceipt, now)
		if err != nil {
			return err
		}
		payment.ReceiptNumber = number
		err = tx.Create(payment).Error
		if err == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return err
		}
		if payment.TransactionID != nil {
			// The collision may be the transaction_id constraint, not the
			// receipt number; re-check before retrying.
			existing, findErr := s.findCompletedByTransaction(ctx, tx, *payment.TransactionID)
			if findErr != nil {
				return findErr
			}
			if existing != nil {
				return paymentdomain.ErrDuplicateTransaction
			}
		}
	}
	return gorm.ErrDuplicatedKey
}

func (s *Service) Refund(ctx context.Context, paymentID string, reason string) (paymentdomain.RefundPaymentResult, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return paymentdomain.RefundPaymentResult{}, billingdomain.ErrMissingTenantScope
	}

	id, err := snowflake.ParseString(strings.TrimSpace(paymentID))
	if err != nil {
		return paymentdomain.RefundPaymentResult{}, paymentdomain.ErrNotFound
	}

	var result paymentdomain.RefundPaymentResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment paymentdomain.Payment
		err := tx.Raw(
			`SELECT * FROM payments WHERE id = ?`+db.RowLockSuffix(tx), id,
		).Scan(&payment).Error
		if err != nil {
			return err
		}
		if payment.ID == 0 || !scope.Visible(payment.TenantID) {
			return paymentdomain.ErrNotFound
		}
		if payment.Status != paymentdomain.PaymentStatusCompleted {
			return paymentdomain.ErrNotCompleted
		}

		now := time.Now().UTC()
		notes := payment.Notes
		if reason = strings.TrimSpace(reason); reason != "" {
			if notes != "" {
				notes += "; "
			}
			notes += "refunded: " + reason
		}
		if err := tx.Exec(
			`UPDATE payments SET status = ?, notes = ?, updated_at = ? WHERE id = ?`,
			paymentdomain.PaymentStatusRefunded, notes, now, payment.ID,
		).Error; err != nil {
			return err
		}

		if _, err := s.billingSvc.Recompute(ctx, tx, payment.BillID, billingdomain.RecomputeOptions{AllowRegression: true}); err != nil {
			return err
		}

		payment.Status = paymentdomain.PaymentStatusRefunded
		payment.Notes = notes
		payment.UpdatedAt = now
		result = paymentdomain.RefundPaymentResult{Payment: payment}
		return nil
	})
	if err != nil {
		return paymentdomain.RefundPaymentResult{}, err
	}

	s.log.Info("payment refunded",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("bill_id", result.Payment.BillID.String()),
	)
	return result, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (paymentdomain.Payment, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return paymentdomain.Payment{}, billingdomain.ErrMissingTenantScope
	}

	paymentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return paymentdomain.Payment{}, paymentdomain.ErrNotFound
	}

	stmt := s.db.WithContext(ctx).Where("id = ?", paymentID)
	if !scope.SuperOperator {
		stmt = stmt.Where("tenant_id = ?", scope.TenantID)
	}

	var payment paymentdomain.Payment
	if err := stmt.First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return paymentdomain.Payment{}, paymentdomain.ErrNotFound
		}
		return paymentdomain.Payment{}, err
	}
	return payment, nil
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListPaymentsRequest) ([]paymentdomain.Payment, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return nil, billingdomain.ErrMissingTenantScope
	}

	stmt := s.db.WithContext(ctx).Model(&paymentdomain.Payment{})
	if !scope.SuperOperator {
		stmt = stmt.Where("tenant_id = ?", scope.TenantID)
	}
	if req.BillID != nil {
		billID, err := snowflake.ParseString(strings.TrimSpace(*req.BillID))
		if err != nil {
			return nil, billingdomain.ErrNotFound
		}
		stmt = stmt.Where("bill_id = ?", billID)
	}
	if req.CustomerID != nil {
		customerID, err := snowflake.ParseString(strings.TrimSpace(*req.CustomerID))
		if err != nil {
			return nil, paymentdomain.ErrNotFound
		}
		stmt = stmt.Where("customer_id = ?", customerID)
	}
	if req.Status != nil {
		stmt = stmt.Where("status = ?", *req.Status)
	}

	var payments []paymentdomain.Payment
	if err := stmt.Order("payment_date").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Service) loadBillForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*billingdomain.Bill, error) {
	var bill billingdomain.Bill
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM bills WHERE id = ?`+db.RowLockSuffix(tx), id,
	).Scan(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}

func (s *Service) findCompletedByTransaction(ctx context.Context, tx *gorm.DB, transactionID string) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM payments WHERE transaction_id = ? AND status = 'completed' LIMIT 1`,
		transactionID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

type tenantRow struct {
	ID   snowflake.ID
	Code string
}

func loadTenantRow(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*tenantRow, error) {
	var tenant tenantRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, code FROM tenants WHERE id = ?`, id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}
