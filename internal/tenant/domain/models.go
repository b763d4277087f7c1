// Package domain contains persistence models for tenants (ISPs).
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents a tenant's platform subscription state.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Tenant is a billing entity (ISP). All customers, bills and payments belong
// to exactly one tenant; the subscription window is mutated only by the
// subscription lifecycle component.
type Tenant struct {
	ID                  snowflake.ID       `gorm:"primaryKey"`
	Code                string             `gorm:"type:text;not null;uniqueIndex"`
	Name                string             `gorm:"type:text;not null"`
	Email               string             `gorm:"type:text"`
	SubscriptionStatus  SubscriptionStatus `gorm:"type:text;not null;default:'pending'"`
	SubscriptionStart   *time.Time         `gorm:""`
	SubscriptionEnd     *time.Time         `gorm:""`
	LastExpiryWarningAt *time.Time         `gorm:""`
	Metadata            datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt           time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }
