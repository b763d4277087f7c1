package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("customer_not_found")
	ErrTenantMismatch = errors.New("customer_tenant_mismatch")
	ErrInvalidName    = errors.New("invalid_customer_name")
	ErrInvalidCycle   = errors.New("invalid_billing_cycle")
)

type CreateCustomerRequest struct {
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone"`
	Address            string     `json:"address"`
	PlanID             *string    `json:"plan_id"`
	BillingCycleMonths int        `json:"billing_cycle_months"`
	NextBillingDate    *time.Time `json:"next_billing_date"`
}

type ListCustomersRequest struct {
	Status *ServiceStatus
}

type Service interface {
	Create(ctx context.Context, req CreateCustomerRequest) (Customer, error)
	GetByID(ctx context.Context, id string) (Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, error)
}
