package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
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

func NewService(p Params) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req plandomain.CreatePlanRequest) (plandomain.Plan, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok || scope.TenantID == 0 {
		return plandomain.Plan{}, plandomain.ErrNotFound
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return plandomain.Plan{}, plandomain.ErrInvalidName
	}
	if req.Price <= 0 {
		return plandomain.Plan{}, plandomain.ErrInvalidPrice
	}
	cycle := req.BillingCycleMonths
	if cycle == 0 {
		cycle = 1
	}
	if cycle < 1 || cycle > 24 {
		return plandomain.Plan{}, plandomain.ErrInvalidCycle
	}

	now := time.Now().UTC()
	plan := plandomain.Plan{
		ID:                 s.genID.Generate(),
		TenantID:           scope.TenantID,
		Name:               name,
		Price:              req.Price,
		BillingCycleMonths: cycle,
		DownloadSpeed:      strings.TrimSpace(req.DownloadSpeed),
		UploadSpeed:        strings.TrimSpace(req.UploadSpeed),
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.db.WithContext(ctx).Create(&plan).Error; err != nil {
		return plandomain.Plan{}, err
	}
	return plan, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (plandomain.Plan, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return plandomain.Plan{}, plandomain.ErrNotFound
	}

	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return plandomain.Plan{}, plandomain.ErrNotFound
	}

	stmt := s.db.WithContext(ctx).Where("id = ?", planID)
	if !scope.SuperOperator {
		stmt = stmt.Where("tenant_id = ?", scope.TenantID)
	}

	var plan plandomain.Plan
	if err := stmt.First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return plandomain.Plan{}, plandomain.ErrNotFound
		}
		return plandomain.Plan{}, err
	}
	return plan, nil
}

func (s *Service) List(ctx context.Context) ([]plandomain.Plan, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return nil, plandomain.ErrNotFound
	}

	stmt := s.db.WithContext(ctx).Model(&plandomain.Plan{})
	if !scope.SuperOperator {
		stmt = stmt.Where("tenant_id = ?", scope.TenantID)
	}

	var plans []plandomain.Plan
	if err := stmt.Order("created_at").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}
