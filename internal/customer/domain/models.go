// Package domain contains persistence models for customers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ServiceStatus represents a customer's service state. active and suspended
// are owned by the enforcement controller; inactive and disconnected are
// administrative.
type ServiceStatus string

const (
	ServiceActive       ServiceStatus = "active"
	ServiceInactive     ServiceStatus = "inactive"
	ServiceSuspended    ServiceStatus = "suspended"
	ServiceDisconnected ServiceStatus = "disconnected"
)

// Customer belongs to exactly one tenant; tenant_id is immutable after
// creation.
type Customer struct {
	ID                 snowflake.ID  `gorm:"primaryKey"`
	TenantID           snowflake.ID  `gorm:"not null;index"`
	Name               string        `gorm:"type:text;not null"`
	Email              string        `gorm:"type:text"`
	Phone              string        `gorm:"type:text"`
	Address            string        `gorm:"type:text"`
	PlanID             *snowflake.ID `gorm:"index"`
	BillingCycleMonths int           `gorm:"not null;default:1"`
	NextBillingDate    *time.Time    `gorm:""`
	Status             ServiceStatus `gorm:"type:text;not null;default:'active'"`
	SuspendedAt        *time.Time    `gorm:""`
	SuspensionReason   *string       `gorm:"type:text"`
	ReactivatedAt      *time.Time    `gorm:""`
	DataUsedMB         int64         `gorm:"not null;default:0"`
	CreatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
