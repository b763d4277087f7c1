package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Recompute is the single authoritative derivation of paid_amount, status and
// completed_at from the set of completed payments. It locks the bill row,
// resums the payments, and writes the derived fields in the same transaction,
// so concurrent payment applications on the same bill serialize here.
func (s *Service) Recompute(ctx context.Context, tx *gorm.DB, billID snowflake.ID, opts billingdomain.RecomputeOptions) (billingdomain.Bill, error) {
	bill, err := s.loadBillForUpdate(ctx, tx, billID)
	if err != nil {
		return billingdomain.Bill{}, err
	}
	if bill == nil {
		return billingdomain.Bill{}, billingdomain.ErrNotFound
	}
	if bill.Status == billingdomain.BillStatusCancelled {
		return *bill, nil
	}

	var paid int64
	err = tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM payments
		 WHERE bill_id = ? AND status = 'completed'`,
		billID,
	).Scan(&paid).Error
	if err != nil {
		return billingdomain.Bill{}, err
	}

	prev := bill.Status
	next := billingdomain.Derive(prev, paid, bill.TotalAmount, bill.LateFee, opts.AllowRegression)
	if prev == billingdomain.BillStatusPaid && next != billingdomain.BillStatusPaid && !opts.AllowRegression {
		// Derive already pins paid without regression; reaching here means a
		// caller forced a direct status write outside this function.
		s.log.Error("recompute would regress paid bill",
			zap.String("bill_id", billID.String()),
			zap.Int64("paid_amount", paid),
			zap.Int64("total_amount", bill.TotalAmount),
		)
		return billingdomain.Bill{}, billingdomain.ErrPaidRegression
	}

	now := time.Now().UTC()
	completedAt := bill.CompletedAt
	if next == billingdomain.BillStatusPaid && completedAt == nil {
		// First transition into paid; permanent thereafter.
		completedAt = &now
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE bills
		 SET paid_amount = ?, status = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		paid, next, completedAt, now, billID,
	).Error; err != nil {
		return billingdomain.Bill{}, err
	}

	bill.PaidAmount = paid
	bill.Status = next
	bill.CompletedAt = completedAt
	bill.UpdatedAt = now
	return *bill, nil
}

// RecomputeStandalone wraps Recompute in its own transaction for on-demand
// repair invocations.
func (s *Service) RecomputeStandalone(ctx context.Context, billID snowflake.ID) (billingdomain.Bill, error) {
	var bill billingdomain.Bill
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		bill, err = s.Recompute(ctx, tx, billID, billingdomain.RecomputeOptions{})
		return err
	})
	return bill, err
}
