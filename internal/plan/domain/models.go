// Package domain contains persistence models for service plans.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Plan is the service package a customer subscribes to. Price is in minor
// currency units.
type Plan struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	TenantID           snowflake.ID `gorm:"not null;index"`
	Name               string       `gorm:"type:text;not null"`
	Price              int64        `gorm:"not null"`
	BillingCycleMonths int          `gorm:"not null;default:1"`
	DownloadSpeed      string       `gorm:"type:text"`
	UploadSpeed        string       `gorm:"type:text"`
	Active             bool         `gorm:"not null;default:true"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

var (
	ErrNotFound     = errors.New("plan_not_found")
	ErrInvalidName  = errors.New("invalid_plan_name")
	ErrInvalidPrice = errors.New("invalid_plan_price")
	ErrInvalidCycle = errors.New("invalid_plan_cycle")
)

type CreatePlanRequest struct {
	Name               string `json:"name"`
	Price              int64  `json:"price"`
	BillingCycleMonths int    `json:"billing_cycle_months"`
	DownloadSpeed      string `json:"download_speed"`
	UploadSpeed        string `json:"upload_speed"`
}

type Service interface {
	Create(ctx context.Context, req CreatePlanRequest) (Plan, error)
	GetByID(ctx context.Context, id string) (Plan, error)
	List(ctx context.Context) ([]Plan, error)
}
