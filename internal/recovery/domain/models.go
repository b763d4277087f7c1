// Package domain contains models for recovery agent assignments.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/netbill/internal/payment/domain"
)

type AssignmentStatus string

const (
	AssignmentStatusOpen   AssignmentStatus = "open"
	AssignmentStatusClosed AssignmentStatus = "closed"
)

// RecoveryAssignment hands an unsettled bill to a field agent. A bill has at
// most one open assignment at a time; the partial unique index on
// (bill_id) WHERE status = 'open' enforces it under concurrency.
type RecoveryAssignment struct {
	ID         snowflake.ID     `gorm:"primaryKey"`
	TenantID   snowflake.ID     `gorm:"not null;index"`
	CustomerID snowflake.ID     `gorm:"not null;index"`
	BillID     snowflake.ID     `gorm:"not null;index"`
	Agent      string           `gorm:"type:text;not null"`
	Status     AssignmentStatus `gorm:"type:text;not null;default:'open'"`
	AssignedAt time.Time        `gorm:"not null"`
	ClosedAt   *time.Time
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RecoveryAssignment) TableName() string { return "recovery_assignments" }

var (
	ErrNotFound        = errors.New("recovery_assignment_not_found")
	ErrAlreadyAssigned = errors.New("bill_already_assigned")
	ErrBillSettled     = errors.New("bill_already_settled")
	ErrInvalidAgent    = errors.New("invalid_agent")
	ErrClosed          = errors.New("recovery_assignment_closed")
)

type AssignRequest struct {
	BillID string `json:"bill_id"`
	Agent  string `json:"agent"`
}

type RecordCollectionRequest struct {
	AssignmentID  string  `json:"assignment_id"`
	Amount        int64   `json:"amount"`
	Method        string  `json:"method"`
	TransactionID *string `json:"transaction_id"`
	Notes         string  `json:"notes"`
}

// RecordCollectionResult carries the applied payment plus the assignment,
// which is closed when the collection settles the bill.
type RecordCollectionResult struct {
	Assignment RecoveryAssignment               `json:"assignment"`
	Payment    paymentdomain.ApplyPaymentResult `json:"payment"`
}

type ListAssignmentsRequest struct {
	CustomerID *string
	Status     *AssignmentStatus
}

type Service interface {
	Assign(ctx context.Context, req AssignRequest) (RecoveryAssignment, error)
	// RecordCollection applies the collected money through the payment
	// engine, then closes the assignment if the bill is fully settled.
	RecordCollection(ctx context.Context, req RecordCollectionRequest) (RecordCollectionResult, error)
	GetByID(ctx context.Context, id string) (RecoveryAssignment, error)
	List(ctx context.Context, req ListAssignmentsRequest) ([]RecoveryAssignment, error)
}
