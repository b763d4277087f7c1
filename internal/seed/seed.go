// Package seed bootstraps a default tenant for local and self-hosted
// installs so the API is usable without a provisioning step.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/netbill/internal/tenant/domain"
	"gorm.io/gorm"
)

const (
	defaultTenantCode = "MAIN"
	defaultTenantName = "Main"
)

// EnsureDefaultTenant creates the default tenant if no tenant exists yet.
func EnsureDefaultTenant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&tenantdomain.Tenant{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		tenant := tenantdomain.Tenant{
			ID:                 node.Generate(),
			Code:               defaultTenantCode,
			Name:               defaultTenantName,
			SubscriptionStatus: tenantdomain.SubscriptionPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return tx.Create(&tenant).Error
	})
}
