package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/netbill/internal/tenant/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTenantService(t *testing.T) (tenantdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	statements := []string{
		`CREATE TABLE tenants (
			id BIGINT PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			email TEXT,
			subscription_status TEXT NOT NULL DEFAULT 'pending',
			subscription_start DATETIME,
			subscription_end DATETIME,
			last_expiry_warning_at DATETIME,
			metadata JSON,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE plans (id BIGINT PRIMARY KEY, tenant_id BIGINT NOT NULL)`,
		`CREATE TABLE customers (id BIGINT PRIMARY KEY, tenant_id BIGINT NOT NULL)`,
		`CREATE TABLE bills (id BIGINT PRIMARY KEY, tenant_id BIGINT NOT NULL)`,
		`CREATE TABLE payments (id BIGINT PRIMARY KEY, tenant_id BIGINT NOT NULL)`,
		`CREATE TABLE subscription_invoices (id BIGINT PRIMARY KEY, tenant_id BIGINT NOT NULL)`,
		`CREATE TABLE recovery_assignments (id BIGINT PRIMARY KEY, tenant_id BIGINT NOT NULL)`,
		`CREATE TABLE document_sequences (id BIGINT PRIMARY KEY, tenant_id BIGINT NOT NULL)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := NewService(Params{DB: db, Log: zap.NewNop(), GenID: node})
	return svc, db
}

func operatorScope() context.Context {
	return tenantctx.WithScope(context.Background(), tenantctx.Scope{SuperOperator: true})
}

func TestCreateTenantNormalizesAndRejectsDuplicates(t *testing.T) {
	svc, _ := setupTenantService(t)
	ctx := operatorScope()

	tenant, err := svc.Create(ctx, tenantdomain.CreateTenantRequest{Code: " acme ", Name: "Acme Networks"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tenant.Code != "ACME" {
		t.Fatalf("code should be upper-cased, got %s", tenant.Code)
	}
	if tenant.SubscriptionStatus != tenantdomain.SubscriptionPending {
		t.Fatalf("new tenant must start pending, got %s", tenant.SubscriptionStatus)
	}

	if _, err := svc.Create(ctx, tenantdomain.CreateTenantRequest{Code: "acme", Name: "Other"}); !errors.Is(err, tenantdomain.ErrCodeTaken) {
		t.Fatalf("expected ErrCodeTaken, got %v", err)
	}
	if _, err := svc.Create(ctx, tenantdomain.CreateTenantRequest{Code: "a", Name: "Too Short"}); !errors.Is(err, tenantdomain.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := svc.Create(ctx, tenantdomain.CreateTenantRequest{Code: "BETA", Name: "  "}); !errors.Is(err, tenantdomain.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestGetByIDEnforcesScope(t *testing.T) {
	svc, _ := setupTenantService(t)
	tenant, err := svc.Create(operatorScope(), tenantdomain.CreateTenantRequest{Code: "ACME", Name: "Acme Networks"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ownCtx := tenantctx.WithScope(context.Background(), tenantctx.Scope{TenantID: tenant.ID})
	if _, err := svc.GetByID(ownCtx, tenant.ID.String()); err != nil {
		t.Fatalf("tenant should read itself: %v", err)
	}

	foreignCtx := tenantctx.WithScope(context.Background(), tenantctx.Scope{TenantID: 9009})
	if _, err := svc.GetByID(foreignCtx, tenant.ID.String()); !errors.Is(err, tenantdomain.ErrNotFound) {
		t.Fatalf("foreign tenant must see not found, got %v", err)
	}
}

func TestPurgeRemovesOwnedRows(t *testing.T) {
	svc, db := setupTenantService(t)
	tenant, err := svc.Create(operatorScope(), tenantdomain.CreateTenantRequest{Code: "ACME", Name: "Acme Networks"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	keep, err := svc.Create(operatorScope(), tenantdomain.CreateTenantRequest{Code: "BETA", Name: "Beta Networks"})
	if err != nil {
		t.Fatalf("create second tenant: %v", err)
	}

	for i, table := range []string{"plans", "customers", "bills", "payments", "subscription_invoices", "recovery_assignments", "document_sequences"} {
		if err := db.Exec(
			fmt.Sprintf(`INSERT INTO %s (id, tenant_id) VALUES (?, ?)`, table),
			1000+i, tenant.ID,
		).Error; err != nil {
			t.Fatalf("seed %s: %v", table, err)
		}
		if err := db.Exec(
			fmt.Sprintf(`INSERT INTO %s (id, tenant_id) VALUES (?, ?)`, table),
			2000+i, keep.ID,
		).Error; err != nil {
			t.Fatalf("seed %s for kept tenant: %v", table, err)
		}
	}

	if err := svc.Purge(operatorScope(), tenant.ID.String()); err != nil {
		t.Fatalf("purge: %v", err)
	}

	for _, table := range []string{"tenants", "plans", "customers", "bills", "payments", "subscription_invoices", "recovery_assignments", "document_sequences"} {
		var count int64
		column := "tenant_id"
		if table == "tenants" {
			column = "id"
		}
		if err := db.Raw(
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, table, column), tenant.ID,
		).Scan(&count).Error; err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Fatalf("purge left %d rows in %s", count, table)
		}
		if err := db.Raw(
			fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ?`, table, column), keep.ID,
		).Scan(&count).Error; err != nil {
			t.Fatalf("count kept %s: %v", table, err)
		}
		if count != 1 {
			t.Fatalf("purge touched the other tenant's rows in %s", table)
		}
	}
}

func TestPurgeRequiresSuperOperator(t *testing.T) {
	svc, _ := setupTenantService(t)
	tenant, err := svc.Create(operatorScope(), tenantdomain.CreateTenantRequest{Code: "ACME", Name: "Acme Networks"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ownCtx := tenantctx.WithScope(context.Background(), tenantctx.Scope{TenantID: tenant.ID})
	if err := svc.Purge(ownCtx, tenant.ID.String()); !errors.Is(err, tenantdomain.ErrPurgeRefused) {
		t.Fatalf("expected ErrPurgeRefused, got %v", err)
	}
	if _, err := svc.GetByID(ownCtx, tenant.ID.String()); err != nil {
		t.Fatalf("refused purge must leave the tenant intact: %v", err)
	}
}
