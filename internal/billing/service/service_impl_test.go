package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	customerdomain "github.com/smallbiznis/netbill/internal/customer/domain"
	docservice "github.com/smallbiznis/netbill/internal/docnumber/service"
	paymentdomain "github.com/smallbiznis/netbill/internal/payment/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testTenantID   = snowflake.ID(1001)
	testCustomerID = snowflake.ID(2001)
	testPlanID     = snowflake.ID(3001)
)

func setupBillingService(t *testing.T) (*Service, *gorm.DB) {
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
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	prepareBillingSchema(t, db)

	node := mustNode(t)
	docGen := docservice.NewGenerator(docservice.Params{Log: zap.NewNop(), GenID: node})
	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		DocGen: docGen,
	})
	return svc.(*Service), db
}

func prepareBillingSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
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
		`CREATE TABLE plans (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			price BIGINT NOT NULL,
			billing_cycle_months INTEGER NOT NULL DEFAULT 1,
			download_speed TEXT,
			upload_speed TEXT,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE customers (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			address TEXT,
			plan_id BIGINT,
			billing_cycle_months INTEGER NOT NULL DEFAULT 1,
			next_billing_date DATETIME,
			status TEXT NOT NULL DEFAULT 'active',
			suspended_at DATETIME,
			suspension_reason TEXT,
			reactivated_at DATETIME,
			data_used_mb BIGINT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE document_sequences (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			year INTEGER NOT NULL,
			last_value BIGINT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_document_sequences
			ON document_sequences (tenant_id, kind, year)`,
		`CREATE TABLE bills (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL,
			bill_number TEXT NOT NULL,
			amount BIGINT NOT NULL,
			late_fee BIGINT NOT NULL DEFAULT 0,
			total_amount BIGINT NOT NULL,
			paid_amount BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			due_date DATETIME NOT NULL,
			period_start DATETIME NOT NULL,
			period_end DATETIME NOT NULL,
			completed_at DATETIME,
			notes TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_bills_tenant_number ON bills (tenant_id, bill_number)`,
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL,
			bill_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'completed',
			transaction_id TEXT,
			receipt_number TEXT NOT NULL,
			payment_date DATETIME NOT NULL,
			notes TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_payments_transaction_id ON payments (transaction_id)`,
		`CREATE UNIQUE INDEX ux_payments_tenant_receipt ON payments (tenant_id, receipt_number)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func seedTenant(t *testing.T, db *gorm.DB, id snowflake.ID, code string) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO tenants (id, code, name, subscription_status, created_at, updated_at)
		 VALUES (?, ?, ?, 'active', ?, ?)`,
		id, code, code+" Networks", now, now,
	).Error; err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
}

func seedPlan(t *testing.T, db *gorm.DB, id, tenantID snowflake.ID, price int64) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO plans (id, tenant_id, name, price, billing_cycle_months, created_at, updated_at)
		 VALUES (?, ?, 'Home 20Mbps', ?, 1, ?, ?)`,
		id, tenantID, price, now, now,
	).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}
}

func seedCustomer(t *testing.T, db *gorm.DB, id, tenantID snowflake.ID, planID *snowflake.ID, status customerdomain.ServiceStatus) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO customers (id, tenant_id, name, plan_id, billing_cycle_months, status, created_at, updated_at)
		 VALUES (?, ?, 'Test Customer', ?, 1, ?, ?, ?)`,
		id, tenantID, planID, status, now, now,
	).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
}

func seedCompletedPayment(t *testing.T, db *gorm.DB, node *snowflake.Node, billID snowflake.ID, amount int64) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	id := node.Generate()
	if err := db.Exec(
		`INSERT INTO payments (id, tenant_id, customer_id, bill_id, amount, method, status, receipt_number, payment_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'cash', ?, ?, ?, ?, ?)`,
		id, testTenantID, testCustomerID, billID, amount,
		paymentdomain.PaymentStatusCompleted, "SEED-"+id.String(), now, now, now,
	).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return id
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func tenantScope(tenantID snowflake.ID) context.Context {
	return tenantctx.WithScope(context.Background(), tenantctx.Scope{TenantID: tenantID})
}

func planRef(id snowflake.ID) *snowflake.ID { return &id }

func TestCreateBillDefaultsFromPlan(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedPlan(t, db, testPlanID, testTenantID, 5000)
	seedCustomer(t, db, testCustomerID, testTenantID, planRef(testPlanID), customerdomain.ServiceActive)
	ctx := tenantScope(testTenantID)

	result, err := svc.Create(ctx, billingdomain.CreateBillRequest{
		CustomerID: testCustomerID.String(),
	})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	bill := result.Bill
	if bill.Amount != 5000 || bill.TotalAmount != 5000 {
		t.Fatalf("expected plan price 5000, got amount=%d total=%d", bill.Amount, bill.TotalAmount)
	}
	if bill.Status != billingdomain.BillStatusPending {
		t.Fatalf("expected pending status, got %s", bill.Status)
	}
	if wantEnd := bill.PeriodStart.AddDate(0, 1, 0); !bill.PeriodEnd.Equal(wantEnd) {
		t.Fatalf("expected period end %v, got %v", wantEnd, bill.PeriodEnd)
	}
	if wantDue := bill.PeriodEnd.Add(7 * 24 * time.Hour); !bill.DueDate.Equal(wantDue) {
		t.Fatalf("expected due date %v, got %v", wantDue, bill.DueDate)
	}
	wantNumber := fmt.Sprintf("ACME-BILL-%d-00001", bill.PeriodStart.Year())
	if bill.BillNumber != wantNumber {
		t.Fatalf("expected bill number %s, got %s", wantNumber, bill.BillNumber)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected one bill_created event, got %d", len(result.Events))
	}

	var nextBilling time.Time
	if err := db.Raw(`SELECT next_billing_date FROM customers WHERE id = ?`, testCustomerID).Scan(&nextBilling).Error; err != nil {
		t.Fatalf("load next billing date: %v", err)
	}
	if !nextBilling.Equal(bill.PeriodEnd) {
		t.Fatalf("expected next billing date %v, got %v", bill.PeriodEnd, nextBilling)
	}
}

func TestCreateBillWithoutChargeSource(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedCustomer(t, db, testCustomerID, testTenantID, nil, customerdomain.ServiceActive)

	_, err := svc.Create(tenantScope(testTenantID), billingdomain.CreateBillRequest{
		CustomerID: testCustomerID.String(),
	})
	if !errors.Is(err, billingdomain.ErrNoChargeSource) {
		t.Fatalf("expected ErrNoChargeSource, got %v", err)
	}
}

func TestCreateBillRejectsInvertedPeriod(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedCustomer(t, db, testCustomerID, testTenantID, nil, customerdomain.ServiceActive)

	amount := int64(1000)
	start := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, -1, 0)
	_, err := svc.Create(tenantScope(testTenantID), billingdomain.CreateBillRequest{
		CustomerID:  testCustomerID.String(),
		Amount:      &amount,
		PeriodStart: &start,
		PeriodEnd:   &end,
	})
	if !errors.Is(err, billingdomain.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestBillNumbersIncrementPerTenant(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedCustomer(t, db, testCustomerID, testTenantID, nil, customerdomain.ServiceActive)
	ctx := tenantScope(testTenantID)
	amount := int64(1000)

	first, err := svc.Create(ctx, billingdomain.CreateBillRequest{CustomerID: testCustomerID.String(), Amount: &amount})
	if err != nil {
		t.Fatalf("first bill: %v", err)
	}
	second, err := svc.Create(ctx, billingdomain.CreateBillRequest{CustomerID: testCustomerID.String(), Amount: &amount})
	if err != nil {
		t.Fatalf("second bill: %v", err)
	}
	if first.Bill.BillNumber == second.Bill.BillNumber {
		t.Fatalf("bill numbers must be unique, both got %s", first.Bill.BillNumber)
	}
	year := time.Now().UTC().Year()
	if want := fmt.Sprintf("ACME-BILL-%d-00002", year); second.Bill.BillNumber != want {
		t.Fatalf("expected %s, got %s", want, second.Bill.BillNumber)
	}
}

func TestRecomputeProgressionToPaid(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedCustomer(t, db, testCustomerID, testTenantID, nil, customerdomain.ServiceActive)
	ctx := tenantScope(testTenantID)
	node := mustNode(t)
	amount := int64(1000)

	created, err := svc.Create(ctx, billingdomain.CreateBillRequest{CustomerID: testCustomerID.String(), Amount: &amount})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	billID := created.Bill.ID

	seedCompletedPayment(t, db, node, billID, 600)
	bill, err := svc.RecomputeStandalone(ctx, billID)
	if err != nil {
		t.Fatalf("recompute after 600: %v", err)
	}
	if bill.Status != billingdomain.BillStatusPartial || bill.PaidAmount != 600 {
		t.Fatalf("expected partial/600, got %s/%d", bill.Status, bill.PaidAmount)
	}
	if bill.CompletedAt != nil {
		t.Fatalf("partial bill must not carry completed_at")
	}
	if bill.Remaining() != 400 {
		t.Fatalf("expected remaining 400, got %d", bill.Remaining())
	}

	seedCompletedPayment(t, db, node, billID, 400)
	bill, err = svc.RecomputeStandalone(ctx, billID)
	if err != nil {
		t.Fatalf("recompute after 400: %v", err)
	}
	if bill.Status != billingdomain.BillStatusPaid || bill.PaidAmount != 1000 {
		t.Fatalf("expected paid/1000, got %s/%d", bill.Status, bill.PaidAmount)
	}
	if bill.CompletedAt == nil {
		t.Fatalf("paid bill must carry completed_at")
	}
	completedAt := *bill.CompletedAt

	// Overpayment keeps the bill paid and the original completion time.
	seedCompletedPayment(t, db, node, billID, 50)
	bill, err = svc.RecomputeStandalone(ctx, billID)
	if err != nil {
		t.Fatalf("recompute after overpayment: %v", err)
	}
	if bill.Status != billingdomain.BillStatusPaid || bill.PaidAmount != 1050 {
		t.Fatalf("expected paid/1050, got %s/%d", bill.Status, bill.PaidAmount)
	}
	if bill.CompletedAt == nil || !bill.CompletedAt.Equal(completedAt) {
		t.Fatalf("completed_at must not move on overpayment")
	}
	if bill.Remaining() != 0 {
		t.Fatalf("expected remaining 0, got %d", bill.Remaining())
	}
}

func TestRecomputePaidIsMonotonic(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedCustomer(t, db, testCustomerID, testTenantID, nil, customerdomain.ServiceActive)
	ctx := tenantScope(testTenantID)
	node := mustNode(t)
	amount := int64(1000)

	created, err := svc.Create(ctx, billingdomain.CreateBillRequest{CustomerID: testCustomerID.String(), Amount: &amount})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	billID := created.Bill.ID
	paymentID := seedCompletedPayment(t, db, node, billID, 1000)
	if _, err := svc.RecomputeStandalone(ctx, billID); err != nil {
		t.Fatalf("recompute to paid: %v", err)
	}

	if err := db.Exec(`UPDATE payments SET status = 'refunded' WHERE id = ?`, paymentID).Error; err != nil {
		t.Fatalf("flip payment: %v", err)
	}

	bill, err := svc.RecomputeStandalone(ctx, billID)
	if err != nil {
		t.Fatalf("recompute without regression: %v", err)
	}
	if bill.Status != billingdomain.BillStatusPaid {
		t.Fatalf("paid must not regress without the refund path, got %s", bill.Status)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		bill, err = svc.Recompute(ctx, tx, billID, billingdomain.RecomputeOptions{AllowRegression: true})
		return err
	})
	if err != nil {
		t.Fatalf("recompute with regression: %v", err)
	}
	if bill.Status != billingdomain.BillStatusPending || bill.PaidAmount != 0 {
		t.Fatalf("expected pending/0 after regression, got %s/%d", bill.Status, bill.PaidAmount)
	}
}

func TestSweepOverdueAppliesLateFeeOnce(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedCustomer(t, db, testCustomerID, testTenantID, nil, customerdomain.ServiceActive)
	ctx := tenantScope(testTenantID)

	now := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	amount := int64(1000)
	due := now.AddDate(0, 0, -3)
	created, err := svc.Create(ctx, billingdomain.CreateBillRequest{
		CustomerID: testCustomerID.String(),
		Amount:     &amount,
		DueDate:    &due,
	})
	if err != nil {
		t.Fatalf("create overdue bill: %v", err)
	}

	summary, err := svc.SweepOverdue(ctx, now)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 0 {
		t.Fatalf("expected 1 processed, got %+v", summary)
	}
	if len(summary.Events) != 1 {
		t.Fatalf("expected one bill_overdue event, got %d", len(summary.Events))
	}

	bill, err := svc.GetByID(ctx, created.Bill.ID.String())
	if err != nil {
		t.Fatalf("reload bill: %v", err)
	}
	if bill.Status != billingdomain.BillStatusOverdue {
		t.Fatalf("expected overdue, got %s", bill.Status)
	}
	if bill.LateFee != 50 || bill.TotalAmount != 1050 {
		t.Fatalf("expected 5%% late fee 50/total 1050, got %d/%d", bill.LateFee, bill.TotalAmount)
	}

	// Rerun must not stack another fee.
	summary, err = svc.SweepOverdue(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("second sweep must process nothing, got %+v", summary)
	}
	bill, err = svc.GetByID(ctx, created.Bill.ID.String())
	if err != nil {
		t.Fatalf("reload bill: %v", err)
	}
	if bill.LateFee != 50 || bill.TotalAmount != 1050 {
		t.Fatalf("late fee stacked on rerun: %d/%d", bill.LateFee, bill.TotalAmount)
	}
}

func TestSweepOverdueIgnoresFutureAndPaidBills(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedCustomer(t, db, testCustomerID, testTenantID, nil, customerdomain.ServiceActive)
	ctx := tenantScope(testTenantID)
	node := mustNode(t)

	now := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	amount := int64(1000)
	pastDue := now.AddDate(0, 0, -2)

	future, err := svc.Create(ctx, billingdomain.CreateBillRequest{CustomerID: testCustomerID.String(), Amount: &amount})
	if err != nil {
		t.Fatalf("create future bill: %v", err)
	}
	settled, err := svc.Create(ctx, billingdomain.CreateBillRequest{CustomerID: testCustomerID.String(), Amount: &amount, DueDate: &pastDue})
	if err != nil {
		t.Fatalf("create settled bill: %v", err)
	}
	seedCompletedPayment(t, db, node, settled.Bill.ID, 1000)
	if _, err := svc.RecomputeStandalone(ctx, settled.Bill.ID); err != nil {
		t.Fatalf("settle bill: %v", err)
	}

	summary, err := svc.SweepOverdue(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("expected no candidates, got %+v", summary)
	}
	for _, id := range []snowflake.ID{future.Bill.ID, settled.Bill.ID} {
		bill, err := svc.GetByID(ctx, id.String())
		if err != nil {
			t.Fatalf("reload bill: %v", err)
		}
		if bill.LateFee != 0 {
			t.Fatalf("bill %s should not carry a late fee", id)
		}
	}
}

func TestCancelIsTerminal(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedCustomer(t, db, testCustomerID, testTenantID, nil, customerdomain.ServiceActive)
	ctx := tenantScope(testTenantID)
	node := mustNode(t)
	amount := int64(1000)

	created, err := svc.Create(ctx, billingdomain.CreateBillRequest{CustomerID: testCustomerID.String(), Amount: &amount})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	cancelled, err := svc.Cancel(ctx, created.Bill.ID.String())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != billingdomain.BillStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	// Recompute leaves a cancelled bill alone even with completed payments.
	seedCompletedPayment(t, db, node, created.Bill.ID, 1000)
	bill, err := svc.RecomputeStandalone(ctx, created.Bill.ID)
	if err != nil {
		t.Fatalf("recompute cancelled: %v", err)
	}
	if bill.Status != billingdomain.BillStatusCancelled {
		t.Fatalf("cancelled must stay terminal, got %s", bill.Status)
	}
}

func TestGetByIDScopedToTenant(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedTenant(t, db, 9009, "BETA")
	seedCustomer(t, db, testCustomerID, testTenantID, nil, customerdomain.ServiceActive)
	amount := int64(1000)

	created, err := svc.Create(tenantScope(testTenantID), billingdomain.CreateBillRequest{CustomerID: testCustomerID.String(), Amount: &amount})
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}

	if _, err := svc.GetByID(tenantScope(9009), created.Bill.ID.String()); !errors.Is(err, billingdomain.ErrNotFound) {
		t.Fatalf("foreign tenant must see not found, got %v", err)
	}

	superCtx := tenantctx.WithScope(context.Background(), tenantctx.Scope{SuperOperator: true})
	if _, err := svc.GetByID(superCtx, created.Bill.ID.String()); err != nil {
		t.Fatalf("super operator read: %v", err)
	}
}

func TestListPagesByCursor(t *testing.T) {
	svc, db := setupBillingService(t)
	seedTenant(t, db, testTenantID, "ACME")
	seedCustomer(t, db, testCustomerID, testTenantID, nil, customerdomain.ServiceActive)
	ctx := tenantScope(testTenantID)
	amount := int64(1000)

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		created, err := svc.Create(ctx, billingdomain.CreateBillRequest{CustomerID: testCustomerID.String(), Amount: &amount})
		if err != nil {
			t.Fatalf("create bill %d: %v", i, err)
		}
		ids = append(ids, created.Bill.ID)
	}

	first, pageInfo, err := svc.List(ctx, billingdomain.ListBillsRequest{PageSize: 2})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 2 || !pageInfo.HasMore {
		t.Fatalf("expected 2 bills with more remaining, got %d (hasMore=%v)", len(first), pageInfo.HasMore)
	}
	if first[0].ID != ids[0] || first[1].ID != ids[1] {
		t.Fatalf("expected insert order, got %v then %v", first[0].ID, first[1].ID)
	}

	second, pageInfo, err := svc.List(ctx, billingdomain.ListBillsRequest{PageSize: 2, PageToken: pageInfo.NextPageToken})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second) != 1 || pageInfo.HasMore {
		t.Fatalf("expected final page of 1, got %d (hasMore=%v)", len(second), pageInfo.HasMore)
	}
	if second[0].ID != ids[2] {
		t.Fatalf("expected %v on final page, got %v", ids[2], second[0].ID)
	}
}
