// Package domain contains the bill ledger model and the status derivation
// rules. All derived fields on a bill flow through Derive; nothing else in
// the codebase writes bill status directly except the terminal cancel.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillStatus represents bill lifecycle states.
type BillStatus string

const (
	BillStatusPending   BillStatus = "pending"
	BillStatusPartial   BillStatus = "partial"
	BillStatusPaid      BillStatus = "paid"
	BillStatusOverdue   BillStatus = "overdue"
	BillStatusCancelled BillStatus = "cancelled"
)

// LateFeePercent is applied once to a pending bill when it passes its due
// date.
const LateFeePercent = 5

// Bill is the ledger entry. PaidAmount is derived from completed payments
// and never set directly by callers; TotalAmount is always Amount + LateFee.
type Bill struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	TenantID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_bills_tenant_number,priority:1"`
	CustomerID  snowflake.ID `gorm:"not null;index"`
	BillNumber  string       `gorm:"type:text;not null;uniqueIndex:ux_bills_tenant_number,priority:2"`
	Amount      int64        `gorm:"not null"`
	LateFee     int64        `gorm:"not null;default:0"`
	TotalAmount int64        `gorm:"not null"`
	PaidAmount  int64        `gorm:"not null;default:0"`
	Status      BillStatus   `gorm:"type:text;not null;default:'pending'"`
	DueDate     time.Time    `gorm:"not null;index"`
	PeriodStart time.Time    `gorm:"not null"`
	PeriodEnd   time.Time    `gorm:"not null"`
	CompletedAt *time.Time   `gorm:""`
	Notes       string       `gorm:"type:text"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Bill) TableName() string { return "bills" }

// Remaining reports the outstanding balance, floored at zero for callers.
func (b Bill) Remaining() int64 {
	remaining := b.TotalAmount - b.PaidAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Derive computes the status for a recomputed paid amount. The paid status is
// monotonic under recomputation: once reached it is only left through the
// explicit refund path, which re-derives with allowRegression.
func Derive(prev BillStatus, paidAmount, totalAmount, lateFee int64, allowRegression bool) BillStatus {
	if prev == BillStatusCancelled {
		return prev
	}
	if prev == BillStatusPaid && !allowRegression {
		return BillStatusPaid
	}
	switch {
	case totalAmount > 0 && paidAmount >= totalAmount:
		return BillStatusPaid
	case paidAmount > 0:
		return BillStatusPartial
	case allowRegression && lateFee > 0:
		return BillStatusOverdue
	case allowRegression:
		return BillStatusPending
	default:
		// Nothing paid: keep whatever the sweep or creation set.
		return prev
	}
}
