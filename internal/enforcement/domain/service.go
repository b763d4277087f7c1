// Package domain defines the suspension/reactivation controller. Service
// status is derived purely from ledger state; this component reads bills and
// mutates customers, never the other way around.
package domain

import (
	"context"
	"errors"
	"time"

	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
)

var (
	ErrCustomerNotFound = errors.New("enforcement_customer_not_found")
	ErrInvalidGrace     = errors.New("invalid_grace_period")
)

// Decision reports the outcome of a single evaluation.
type Decision struct {
	Changed bool                `json:"changed"`
	Reason  string              `json:"reason,omitempty"`
	Events  []eventdomain.Event `json:"-"`
}

// SweepSummary mirrors the billing sweep reporting shape.
type SweepSummary struct {
	Processed int                 `json:"processed"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Events    []eventdomain.Event `json:"-"`
}

type Service interface {
	// EvaluateSuspension suspends a customer with at least one unsettled bill
	// past due date by more than the grace period. Pure read of bill state.
	EvaluateSuspension(ctx context.Context, customerID string, gracePeriodDays int, now time.Time) (Decision, error)

	// EvaluateReactivation reactivates a suspended customer iff every
	// non-cancelled bill is fully settled. Idempotent.
	EvaluateReactivation(ctx context.Context, customerID string) (Decision, error)

	// SweepSuspensions runs EvaluateSuspension across candidate customers,
	// isolating per-customer failures.
	SweepSuspensions(ctx context.Context, gracePeriodDays int, now time.Time) (SweepSummary, error)
}
