package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/smallbiznis/netbill/internal/customer/domain"
	plandomain "github.com/smallbiznis/netbill/internal/plan/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) customerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req customerdomain.CreateCustomerRequest) (customerdomain.Customer, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok || scope.TenantID == 0 {
		return customerdomain.Customer{}, customerdomain.ErrNotFound
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return customerdomain.Customer{}, customerdomain.ErrInvalidName
	}

	cycle := req.BillingCycleMonths
	var planID *snowflake.ID
	if req.PlanID != nil && strings.TrimSpace(*req.PlanID) != "" {
		parsed, err := snowflake.ParseString(strings.TrimSpace(*req.PlanID))
		if err != nil {
			return customerdomain.Customer{}, plandomain.ErrNotFound
		}

		// A customer may never reference a plan owned by another tenant.
		var plan plandomain.Plan
		err = s.db.WithContext(ctx).
			Where("id = ? AND tenant_id = ?", parsed, scope.TenantID).
			First(&plan).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return customerdomain.Customer{}, plandomain.ErrNotFound
			}
			return customerdomain.Customer{}, err
		}
		planID = &parsed
		if cycle == 0 {
			cycle = plan.BillingCycleMonths
		}
	}
	if cycle == 0 {
		cycle = 1
	}
	if cycle < 1 || cycle > 24 {
		return customerdomain.Customer{}, customerdomain.ErrInvalidCycle
	}

	now := time.Now().UTC()
	nextBilling := req.NextBillingDate
	if nextBilling == nil {
		d := now.AddDate(0, cycle, 0)
		nextBilling = &d
	}

	customer := customerdomain.Customer{
		ID:                 s.genID.Generate(),
		TenantID:           scope.TenantID,
		Name:               name,
		Email:              strings.TrimSpace(req.Email),
		Phone:              strings.TrimSpace(req.Phone),
		Address:            strings.TrimSpace(req.Address),
		PlanID:             planID,
		BillingCycleMonths: cycle,
		NextBillingDate:    nextBilling,
		Status:             customerdomain.ServiceActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.db.WithContext(ctx).Create(&customer).Error; err != nil {
		return customerdomain.Customer{}, err
	}
	return customer, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (customerdomain.Customer, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return customerdomain.Customer{}, customerdomain.ErrNotFound
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return customerdomain.Customer{}, customerdomain.ErrNotFound
	}

	stmt := s.db.WithContext(ctx).Where("id = ?", customerID)
	if !scope.SuperOperator {
		stmt = stmt.Where("tenant_id = ?", scope.TenantID)
	}

	var customer customerdomain.Customer
	if err := stmt.First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return customerdomain.Customer{}, customerdomain.ErrNotFound
		}
		return customerdomain.Customer{}, err
	}
	return customer, nil
}

func (s *Service) List(ctx context.Context, req customerdomain.ListCustomersRequest) ([]customerdomain.Customer, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return nil, customerdomain.ErrNotFound
	}

	stmt := s.db.WithContext(ctx).Model(&customerdomain.Customer{})
	if !scope.SuperOperator {
		stmt = stmt.Where("tenant_id = ?", scope.TenantID)
	}
	if req.Status != nil {
		stmt = stmt.Where("status = ?", *req.Status)
	}

	var customers []customerdomain.Customer
	if err := stmt.Order("created_at").Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}
