package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	eventdomain "github.com/smallbiznis/netbill/internal/billingevent/domain"
	customerdomain "github.com/smallbiznis/netbill/internal/customer/domain"
	docdomain "github.com/smallbiznis/netbill/internal/docnumber/domain"
	plandomain "github.com/smallbiznis/netbill/internal/plan/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"github.com/smallbiznis/netbill/pkg/db"
	"github.com/smallbiznis/netbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dueDateGrace = 7 * 24 * time.Hour

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	DocGen docdomain.Generator
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	docGen docdomain.Generator
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("billing.service"),
		genID:  p.GenID,
		docGen: p.DocGen,
	}
}

func (s *Service) Create(ctx context.Context, req billingdomain.CreateBillRequest) (billingdomain.CreateBillResult, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return billingdomain.CreateBillResult{}, billingdomain.ErrMissingTenantScope
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return billingdomain.CreateBillResult{}, customerdomain.ErrNotFound
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return billingdomain.CreateBillResult{}, billingdomain.ErrInvalidAmount
	}

	var result billingdomain.CreateBillResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.loadCustomerForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return customerdomain.ErrNotFound
		}
		if !scope.Visible(customer.TenantID) {
			// Lookup is scoped, so a foreign customer normally surfaces as
			// not found; a super operator carrying a tenant scope that
			// disagrees gets the explicit mismatch.
			if scope.SuperOperator && scope.TenantID != 0 {
				return billingdomain.ErrTenantMismatch
			}
			return customerdomain.ErrNotFound
		}

		tenant, err := loadTenantRow(ctx, tx, customer.TenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return customerdomain.ErrNotFound
		}

		amount, err := s.resolveAmount(ctx, tx, customer, req.Amount)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		periodStart := now
		if req.PeriodStart != nil {
			periodStart = req.PeriodStart.UTC()
		}
		periodEnd := periodStart.AddDate(0, customer.BillingCycleMonths, 0)
		if req.PeriodEnd != nil {
			periodEnd = req.PeriodEnd.UTC()
		}
		if !periodEnd.After(periodStart) {
			return billingdomain.ErrInvalidPeriod
		}
		dueDate := periodEnd.Add(dueDateGrace)
		if req.DueDate != nil {
			dueDate = req.DueDate.UTC()
		}

		bill := billingdomain.Bill{
			ID:          s.genID.Generate(),
			TenantID:    customer.TenantID,
			CustomerID:  customer.ID,
			Amount:      amount,
			LateFee:     0,
			TotalAmount: amount,
			PaidAmount:  0,
			Status:      billingdomain.BillStatusPending,
			DueDate:     dueDate,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			Notes:       strings.TrimSpace(req.Notes),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.insertWithNumber(ctx, tx, &bill, tenant.Code, now); err != nil {
			return err
		}

		if err := tx.Exec(
			`UPDATE customers SET next_billing_date = ?, updated_at = ? WHERE id = ?`,
			periodEnd, now, customer.ID,
		).Error; err != nil {
			return err
		}

		result = billingdomain.CreateBillResult{
			Bill: bill,
			Events: []eventdomain.Event{
				eventdomain.BillCreated(bill.TenantID, bill.CustomerID, bill.ID, bill.Amount, now),
			},
		}
		return nil
	})
	if err != nil {
		return billingdomain.CreateBillResult{}, err
	}

	s.log.Info("bill created",
		zap.String("bill_id", result.Bill.ID.String()),
		zap.String("bill_number", result.Bill.BillNumber),
		zap.Int64("amount", result.Bill.Amount),
	)
	return result, nil
}

// insertWithNumber reserves a bill number and inserts, retrying on the
// storage unique constraint.
func (s *Service) insertWithNumber(ctx context.Context, tx *gorm.DB, bill *billingdomain.Bill, tenantCode string, now time.Time) error {
	for attempt := 0; attempt < 3; attempt++ {
		number, err := s.docGen.Next(ctx, tx, bill.TenantID, tenantCode, docdomain.KindBill, now)
		if err != nil {
			return err
		}
		bill.BillNumber = number
		err = tx.Create(bill).Error
		if err == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return err
		}
	}
	return gorm.ErrDuplicatedKey
}

func (s *Service) resolveAmount(ctx context.Context, tx *gorm.DB, customer *customerRow, explicit *int64) (int64, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if customer.PlanID == nil {
		return 0, billingdomain.ErrNoChargeSource
	}
	var plan plandomain.Plan
	err := tx.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", *customer.PlanID, customer.TenantID).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, plandomain.ErrNotFound
		}
		return 0, err
	}
	return plan.Price, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (billingdomain.Bill, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return billingdomain.Bill{}, billingdomain.ErrMissingTenantScope
	}

	billID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return billingdomain.Bill{}, billingdomain.ErrNotFound
	}

	stmt := s.db.WithContext(ctx).Where("id = ?", billID)
	if !scope.SuperOperator {
		stmt = stmt.Where("tenant_id = ?", scope.TenantID)
	}

	var bill billingdomain.Bill
	if err := stmt.First(&bill).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billingdomain.Bill{}, billingdomain.ErrNotFound
		}
		return billingdomain.Bill{}, err
	}
	return bill, nil
}

func (s *Service) List(ctx context.Context, req billingdomain.ListBillsRequest) ([]billingdomain.Bill, pagination.PageInfo, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return nil, pagination.PageInfo{}, billingdomain.ErrMissingTenantScope
	}

	stmt := s.db.WithContext(ctx).Model(&billingdomain.Bill{})
	if !scope.SuperOperator {
		stmt = stmt.Where("tenant_id = ?", scope.TenantID)
	}
	if req.CustomerID != nil {
		customerID, err := snowflake.ParseString(strings.TrimSpace(*req.CustomerID))
		if err != nil {
			return nil, pagination.PageInfo{}, customerdomain.ErrNotFound
		}
		stmt = stmt.Where("customer_id = ?", customerID)
	}
	if req.Status != nil {
		stmt = stmt.Where("status = ?", *req.Status)
	}

	limit := req.PageSize
	if limit <= 0 || limit > 250 {
		limit = 20
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, pagination.PageInfo{}, billingdomain.ErrNotFound
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.PageInfo{}, billingdomain.ErrNotFound
		}
		stmt = stmt.Where("id > ?", afterID)
	}

	// Snowflake IDs are creation-ordered, so the id cursor pages in insert
	// order.
	var bills []billingdomain.Bill
	if err := stmt.Order("id").Limit(limit + 1).Find(&bills).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}
	bills, pageInfo := pagination.BuildCursorPageInfo(bills, limit, func(b billingdomain.Bill) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: b.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	return bills, pageInfo, nil
}

// Cancel is the terminal administrative transition; cancelled bills drop out
// of reactivation arithmetic.
func (s *Service) Cancel(ctx context.Context, id string) (billingdomain.Bill, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return billingdomain.Bill{}, billingdomain.ErrMissingTenantScope
	}

	billID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return billingdomain.Bill{}, billingdomain.ErrNotFound
	}

	var cancelled billingdomain.Bill
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bill, err := s.loadBillForUpdate(ctx, tx, billID)
		if err != nil {
			return err
		}
		if bill == nil || !scope.Visible(bill.TenantID) {
			return billingdomain.ErrNotFound
		}
		if bill.Status == billingdomain.BillStatusCancelled {
			cancelled = *bill
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Exec(
			`UPDATE bills SET status = ?, updated_at = ? WHERE id = ?`,
			billingdomain.BillStatusCancelled, now, bill.ID,
		).Error; err != nil {
			return err
		}
		bill.Status = billingdomain.BillStatusCancelled
		bill.UpdatedAt = now
		cancelled = *bill
		return nil
	})
	if err != nil {
		return billingdomain.Bill{}, err
	}
	return cancelled, nil
}

type customerRow struct {
	ID                 snowflake.ID
	TenantID           snowflake.ID
	PlanID             *snowflake.ID
	BillingCycleMonths int
	Status             customerdomain.ServiceStatus
}

func (s *Service) loadCustomerForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*customerRow, error) {
	var customer customerRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, tenant_id, plan_id, billing_cycle_months, status
		 FROM customers
		 WHERE id = ?`+db.RowLockSuffix(tx),
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

type tenantRow struct {
	ID   snowflake.ID
	Code string
}

func loadTenantRow(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*tenantRow, error) {
	var tenant tenantRow
	err := tx.WithContext(ctx).Raw(
		`SELECT id, code FROM tenants WHERE id = ?`, id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (s *Service) loadBillForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*billingdomain.Bill, error) {
	var bill billingdomain.Bill
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM bills WHERE id = ?`+db.RowLockSuffix(tx), id,
	).Scan(&bill).Error
	if err != nil {
		return nil, err
	}
	if bill.ID == 0 {
		return nil, nil
	}
	return &bill, nil
}
