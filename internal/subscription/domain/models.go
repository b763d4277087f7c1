// Package domain contains models for tenant platform subscriptions.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
)

type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// InvoiceKind distinguishes the invoice raised at activation from the one
// raised when a lapsed subscription is suspended.
type InvoiceKind string

const (
	InvoiceKindInitial InvoiceKind = "initial"
	InvoiceKindFinal   InvoiceKind = "final"
)

// SubscriptionInvoice bills a tenant for its platform subscription. It is
// separate from the customer ledger: tenants owe the platform, customers owe
// tenants.
type SubscriptionInvoice struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	TenantID      snowflake.ID  `gorm:"not null;index"`
	InvoiceNumber string        `gorm:"type:text;not null;uniqueIndex"`
	Amount        int64         `gorm:"not null"`
	PeriodStart   time.Time     `gorm:"not null"`
	PeriodEnd     time.Time     `gorm:"not null"`
	Status        InvoiceStatus `gorm:"type:text;not null;default:'pending'"`
	Kind          InvoiceKind   `gorm:"type:text;not null"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionInvoice) TableName() string { return "subscription_invoices" }

var (
	ErrInvalidWindow = errors.New("invalid_subscription_window")
	ErrInvalidAmount = errors.New("invalid_subscription_amount")
	ErrOperatorOnly  = errors.New("super_operator_only")
)

type ActivateRequest struct {
	TenantID string    `json:"tenant_id"`
	Amount   int64     `json:"amount"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type ActivateResult struct {
	Invoice SubscriptionInvoice `json:"invoice"`
}

// ExpirySummary reports one CheckExpiry pass.
type ExpirySummary struct {
	Warned    int                 `json:"warned"`
	Suspended int                 `json:"suspended"`
	Failed    int                 `json:"failed"`
	Events    []eventdomain.Event `json:"events,omitempty"`
}

type Service interface {
	// Activate opens the subscription window, marks the tenant active and
	// raises the initial invoice. Super operator only.
	Activate(ctx context.Context, req ActivateRequest) (ActivateResult, error)

	// CheckExpiry warns tenants whose window ends soon (at most once per
	// tenant per day) and suspends tenants whose window has lapsed, raising
	// a final invoice for each suspension.
	CheckExpiry(ctx context.Context, now time.Time) (ExpirySummary, error)
}
