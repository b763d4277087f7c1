package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
	"github.com/smallbiznis/netbill/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("bill_not_found")
	ErrTenantMismatch     = errors.New("bill_tenant_mismatch")
	ErrInvalidAmount      = errors.New("invalid_bill_amount")
	ErrInvalidPeriod      = errors.New("invalid_billing_period")
	ErrNoChargeSource     = errors.New("no_charge_source")
	ErrBillCancelled      = errors.New("bill_cancelled")
	ErrPaidRegression     = errors.New("paid_status_regression")
	ErrMissingTenantScope = errors.New("missing_tenant_scope")
)

type CreateBillRequest struct {
	CustomerID  string     `json:"customer_id"`
	Amount      *int64     `json:"amount"`
	DueDate     *time.Time `json:"due_date"`
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
	Notes       string     `json:"notes"`
}

type CreateBillResult struct {
	Bill   Bill                `json:"bill"`
	Events []eventdomain.Event `json:"events"`
}

type ListBillsRequest struct {
	CustomerID *string
	Status     *BillStatus
	PageToken  string
	PageSize   int
}

// SweepSummary reports batch outcomes. Per-bill failures never abort the
// rest of the batch; they are counted here and logged.
type SweepSummary struct {
	Processed int                 `json:"processed"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Events    []eventdomain.Event `json:"-"`
}

// RecomputeOptions controls the single authoritative derivation.
type RecomputeOptions struct {
	// AllowRegression permits leaving the paid status; only the explicit
	// refund path sets it.
	AllowRegression bool
}

type Service interface {
	Create(ctx context.Context, req CreateBillRequest) (CreateBillResult, error)
	GetByID(ctx context.Context, id string) (Bill, error)
	List(ctx context.Context, req ListBillsRequest) ([]Bill, pagination.PageInfo, error)
	Cancel(ctx context.Context, id string) (Bill, error)

	// Recompute derives paid_amount, status and completed_at from the sum of
	// completed payments. It must run inside tx with the bill row locked and
	// is idempotent for a fixed payment set.
	Recompute(ctx context.Context, tx *gorm.DB, billID snowflake.ID, opts RecomputeOptions) (Bill, error)

	// SweepOverdue applies the late-fee policy to pending bills past their
	// due date. Safe to invoke arbitrarily often; already-processed bills are
	// skipped by the late_fee guard.
	SweepOverdue(ctx context.Context, now time.Time) (SweepSummary, error)
}
