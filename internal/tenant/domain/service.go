package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("tenant_not_found")
	ErrCodeTaken    = errors.New("tenant_code_taken")
	ErrInvalidCode  = errors.New("invalid_tenant_code")
	ErrInvalidName  = errors.New("invalid_tenant_name")
	ErrPurgeRefused = errors.New("tenant_purge_refused")
)

type CreateTenantRequest struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ListTenantsRequest struct {
	Status *SubscriptionStatus
}

type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (Tenant, error)
	GetByID(ctx context.Context, id string) (Tenant, error)
	List(ctx context.Context, req ListTenantsRequest) ([]Tenant, error)
	// Purge removes a tenant and everything it owns, in dependency order,
	// inside a single transaction. Super operator only.
	Purge(ctx context.Context, id string) error
}
