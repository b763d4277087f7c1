package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
	"github.com/smallbiznis/netbill/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchSize = 200

type overdueCandidate struct {
	ID         snowflake.ID
	TenantID   snowflake.ID
	CustomerID snowflake.ID
	Amount     int64
}

// SweepOverdue finds pending bills past their due date with no late fee yet
// and applies the late-fee policy once per bill. The mutation guard
// (status = pending AND late_fee = 0) is checked-and-set inside a single
// conditional UPDATE, so overlapping or repeated sweep invocations skip bills
// another run already handled.
func (s *Service) SweepOverdue(ctx context.Context, now time.Time) (billingdomain.SweepSummary, error) {
	summary := billingdomain.SweepSummary{}
	now = now.UTC()

	for {
		var candidates []overdueCandidate
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Raw(
				`SELECT id, tenant_id, customer_id, amount
				 FROM bills
				 WHERE status = ? AND due_date < ? AND late_fee = 0
				 ORDER BY due_date ASC, id ASC
				 LIMIT ?`+db.SkipLockedSuffix(tx),
				billingdomain.BillStatusPending,
				now,
				sweepBatchSize,
			).Scan(&candidates).Error; err != nil {
				return err
			}

			for _, candidate := range candidates {
				lateFee := candidate.Amount * billingdomain.LateFeePercent / 100
				res := tx.Exec(
					`UPDATE bills
					 SET late_fee = ?, total_amount = amount + ?, status = ?, updated_at = ?
					 WHERE id = ? AND status = ? AND late_fee = 0`,
					lateFee,
					lateFee,
					billingdomain.BillStatusOverdue,
					now,
					candidate.ID,
					billingdomain.BillStatusPending,
				)
				if res.Error != nil {
					summary.Failed++
					s.log.Warn("overdue sweep failed for bill",
						zap.String("bill_id", candidate.ID.String()),
						zap.Error(res.Error),
					)
					continue
				}
				if res.RowsAffected == 0 {
					summary.Skipped++
					continue
				}
				summary.Processed++
				summary.Events = append(summary.Events, eventdomain.BillOverdue(
					candidate.TenantID, candidate.CustomerID, candidate.ID, lateFee, now,
				))
			}
			return nil
		})
		if err != nil {
			return summary, err
		}
		if len(candidates) < sweepBatchSize {
			break
		}
		if summary.Processed == 0 {
			// Full batch without a single applied update; stop instead of
			// re-selecting the same stuck rows.
			break
		}
	}

	s.log.Info("overdue sweep finished",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}
