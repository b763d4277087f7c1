// Package domain contains persistence models for payments.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
)

// PaymentStatus represents payment lifecycle states. Only completed payments
// count toward a bill's paid amount.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment records money applied against a bill. CustomerID and TenantID are
// denormalized from the bill for query convenience. TransactionID is the
// caller-supplied idempotency key; a retried submission with the same key
// returns the original payment.
type Payment struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	TenantID      snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_payments_tenant_receipt,priority:1"`
	CustomerID    snowflake.ID  `gorm:"not null;index"`
	BillID        snowflake.ID  `gorm:"not null;index"`
	Amount        int64         `gorm:"not null"`
	Method        string        `gorm:"type:text;not null"`
	Status        PaymentStatus `gorm:"type:text;not null;default:'completed'"`
	TransactionID *string       `gorm:"type:text;uniqueIndex"`
	ReceiptNumber string        `gorm:"type:text;not null;uniqueIndex:ux_payments_tenant_receipt,priority:2"`
	PaymentDate   time.Time     `gorm:"not null"`
	Notes         string        `gorm:"type:text"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

var (
	ErrNotFound             = errors.New("payment_not_found")
	ErrInvalidAmount        = errors.New("invalid_payment_amount")
	ErrInvalidMethod        = errors.New("invalid_payment_method")
	ErrDuplicateTransaction = errors.New("duplicate_transaction_id")
	ErrNotCompleted         = errors.New("payment_not_completed")
)

type ApplyPaymentRequest struct {
	BillID        string     `json:"bill_id"`
	Amount        int64      `json:"amount"`
	Method        string     `json:"method"`
	TransactionID *string    `json:"transaction_id"`
	PaymentDate   *time.Time `json:"payment_date"`
	Notes         string     `json:"notes"`
}

type ApplyPaymentResult struct {
	Payment Payment `json:"payment"`
	// Deduplicated is true when the transaction_id matched an existing
	// completed payment and no new ledger mutation happened.
	Deduplicated bool                `json:"deduplicated"`
	Events       []eventdomain.Event `json:"events"`
}

type RefundPaymentResult struct {
	Payment Payment             `json:"payment"`
	Events  []eventdomain.Event `json:"events"`
}

type ListPaymentsRequest struct {
	BillID     *string
	CustomerID *string
	Status     *PaymentStatus
}

type Service interface {
	// Apply records a completed payment against a bill and recomputes the
	// bill in the same transaction. Reactivation is evaluated after commit.
	Apply(ctx context.Context, req ApplyPaymentRequest) (ApplyPaymentResult, error)

	// Refund is the explicit regression path: it marks a completed payment
	// refunded and re-derives the bill, allowing it to leave paid.
	Refund(ctx context.Context, paymentID string, reason string) (RefundPaymentResult, error)

	GetByID(ctx context.Context, id string) (Payment, error)
	List(ctx context.Context, req ListPaymentsRequest) ([]Payment, error)
}
