// Package domain contains the per-tenant document numbering state.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Kind distinguishes the numbered document series.
type Kind string

const (
	KindBill    Kind = "bill"
	KindReceipt Kind = "receipt"
	KindInvoice Kind = "invoice"
)

// Prefix returns the series prefix embedded in generated numbers.
func (k Kind) Prefix() string {
	switch k {
	case KindBill:
		return "BILL"
	case KindReceipt:
		return "RCPT"
	case KindInvoice:
		return "INV"
	default:
		return "DOC"
	}
}

// DocumentSequence is the atomic counter behind document numbers. One row per
// (tenant, kind, year); the next number is reserved with a single upsert
// increment, never by counting existing documents.
type DocumentSequence struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:ux_document_sequences,priority:1"`
	Kind      Kind         `gorm:"type:text;not null;uniqueIndex:ux_document_sequences,priority:2"`
	Year      int          `gorm:"not null;uniqueIndex:ux_document_sequences,priority:3"`
	LastValue int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DocumentSequence) TableName() string { return "document_sequences" }

var (
	ErrUnknownKind   = errors.New("unknown_document_kind")
	ErrInvalidTenant = errors.New("invalid_tenant")
)

// Generator reserves document numbers. Next must run inside the caller's
// transaction so a rolled-back bill or payment releases its number with it.
type Generator interface {
	Next(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, tenantCode string, kind Kind, now time.Time) (string, error)
}
