package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/netbill/internal/tenant/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"github.com/smallbiznis/netbill/pkg/db"
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

func NewService(p Params) tenantdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
	}
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{2,12}$`)

func (s *Service) Create(ctx context.Context, req tenantdomain.CreateTenantRequest) (tenantdomain.Tenant, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if !codePattern.MatchString(code) {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidName
	}

	now := time.Now().UTC()
	tenant := tenantdomain.Tenant{
		ID:                 s.genID.Generate(),
		Code:               code,
		Name:               name,
		Email:              strings.TrimSpace(req.Email),
		SubscriptionStatus: tenantdomain.SubscriptionPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.db.WithContext(ctx).Create(&tenant).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return tenantdomain.Tenant{}, tenantdomain.ErrCodeTaken
		}
		return tenantdomain.Tenant{}, err
	}
	return tenant, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return tenantdomain.Tenant{}, tenantdomain.ErrNotFound
	}

	scope, ok := tenantctx.FromContext(ctx)
	if ok && !scope.Visible(tenantID) {
		return tenantdomain.Tenant{}, tenantdomain.ErrNotFound
	}

	var tenant tenantdomain.Tenant
	err = s.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return tenantdomain.Tenant{}, tenantdomain.ErrNotFound
		}
		return tenantdomain.Tenant{}, err
	}
	return tenant, nil
}

func (s *Service) List(ctx context.Context, req tenantdomain.ListTenantsRequest) ([]tenantdomain.Tenant, error) {
	stmt := s.db.WithContext(ctx).Model(&tenantdomain.Tenant{})
	if scope, ok := tenantctx.FromContext(ctx); ok && !scope.SuperOperator {
		stmt = stmt.Where("id = ?", scope.TenantID)
	}
	if req.Status != nil {
		stmt = stmt.Where("subscription_status = ?", *req.Status)
	}

	var tenants []tenantdomain.Tenant
	if err := stmt.Order("created_at").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// Purge deletes a tenant and all owned rows. Order matters: children first so
// foreign keys never dangle mid-transaction.
func (s *Service) Purge(ctx context.Context, id string) error {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok || !scope.SuperOperator {
		return tenantdomain.ErrPurgeRefused
	}

	tenantID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return tenantdomain.ErrNotFound
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found snowflake.ID
		if err := tx.Raw(
			`SELECT id FROM tenants WHERE id = ?`+db.RowLockSuffix(tx), tenantID,
		).Scan(&found).Error; err != nil {
			return err
		}
		if found == 0 {
			return tenantdomain.ErrNotFound
		}

		tables := []string{
			"payments",
			"recovery_assignments",
			"bills",
			"subscription_invoices",
			"customers",
			"plans",
			"document_sequences",
		}
		for _, table := range tables {
			if err := tx.Exec(`DELETE FROM `+table+` WHERE tenant_id = ?`, tenantID).Error; err != nil {
				return err
			}
		}
		res := tx.Exec(`DELETE FROM tenants WHERE id = ?`, tenantID)
		if res.Error != nil {
			return res.Error
		}
		s.log.Info("tenant purged", zap.String("tenant_id", tenantID.String()))
		return nil
	})
}
