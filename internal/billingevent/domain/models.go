// Package domain defines the flat event records emitted by ledger operations.
// Events carry entity IDs and amounts only; rendering and delivery belong to
// downstream consumers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EventType identifies an emitted domain event.
type EventType string

const (
	EventBillCreated           EventType = "bill.created"
	EventPaymentApplied        EventType = "payment.applied"
	EventBillOverdue           EventType = "bill.overdue"
	EventCustomerSuspended     EventType = "customer.suspended"
	EventCustomerReactivated   EventType = "customer.reactivated"
	EventSubscriptionExpiring  EventType = "subscription.expiring"
	EventSubscriptionSuspended EventType = "subscription.suspended"
)

// Event is the envelope returned by every mutating core operation.
type Event struct {
	Type       EventType      `json:"type"`
	TenantID   snowflake.ID   `json:"tenant_id"`
	CustomerID snowflake.ID   `json:"customer_id,omitempty"`
	BillID     snowflake.ID   `json:"bill_id,omitempty"`
	PaymentID  snowflake.ID   `json:"payment_id,omitempty"`
	Amount     int64          `json:"amount,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// BillCreated builds the creation event for a new bill.
func BillCreated(tenantID, customerID, billID snowflake.ID, amount int64, at time.Time) Event {
	return Event{
		Type:       EventBillCreated,
		TenantID:   tenantID,
		CustomerID: customerID,
		BillID:     billID,
		Amount:     amount,
		OccurredAt: at,
	}
}

// PaymentApplied builds the payment event consumed by notification and
// auto-reactivation consumers.
func PaymentApplied(tenantID, customerID, billID, paymentID snowflake.ID, amount int64, at time.Time) Event {
	return Event{
		Type:       EventPaymentApplied,
		TenantID:   tenantID,
		CustomerID: customerID,
		BillID:     billID,
		PaymentID:  paymentID,
		Amount:     amount,
		OccurredAt: at,
	}
}

// CustomerSuspended builds the suspension event emitted by enforcement.
func CustomerSuspended(tenantID, customerID snowflake.ID, at time.Time) Event {
	return Event{
		Type:       EventCustomerSuspended,
		TenantID:   tenantID,
		CustomerID: customerID,
		OccurredAt: at,
	}
}

// CustomerReactivated builds the reactivation event emitted once every bill
// of a suspended customer is settled.
func CustomerReactivated(tenantID, customerID snowflake.ID, at time.Time) Event {
	return Event{
		Type:       EventCustomerReactivated,
		TenantID:   tenantID,
		CustomerID: customerID,
		OccurredAt: at,
	}
}

// SubscriptionExpiring warns a tenant whose platform subscription ends soon.
func SubscriptionExpiring(tenantID snowflake.ID, endsAt, at time.Time) Event {
	return Event{
		Type:       EventSubscriptionExpiring,
		TenantID:   tenantID,
		OccurredAt: at,
		Metadata:   map[string]any{"ends_at": endsAt},
	}
}

// SubscriptionSuspended marks a tenant whose subscription window lapsed.
func SubscriptionSuspended(tenantID snowflake.ID, at time.Time) Event {
	return Event{
		Type:       EventSubscriptionSuspended,
		TenantID:   tenantID,
		OccurredAt: at,
	}
}

// BillOverdue builds the overdue event with the applied late fee.
func BillOverdue(tenantID, customerID, billID snowflake.ID, lateFee int64, at time.Time) Event {
	return Event{
		Type:       EventBillOverdue,
		TenantID:   tenantID,
		CustomerID: customerID,
		BillID:     billID,
		Amount:     lateFee,
		OccurredAt: at,
	}
}
