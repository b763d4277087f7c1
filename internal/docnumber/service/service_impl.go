package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	docdomain "github.com/smallbiznis/netbill/internal/docnumber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
}

type Generator struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewGenerator(p Params) docdomain.Generator {
	return &Generator{
		log:   p.Log.Named("docnumber.generator"),
		genID: p.GenID,
	}
}

// Next reserves the next number in the (tenant, kind, year) series with a
// single atomic upsert increment. Two concurrent callers hit the same row and
// serialize on it, so they can never observe the same value. The unique
// constraints on bill_number / receipt_number / invoice_number remain the
// second line of defense; on a duplicate-key insert the caller comes back
// here for the next value.
func (g *Generator) Next(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, tenantCode string, kind docdomain.Kind, now time.Time) (string, error) {
	if tenantID == 0 {
		return "", docdomain.ErrInvalidTenant
	}
	switch kind {
	case docdomain.KindBill, docdomain.KindReceipt, docdomain.KindInvoice:
	default:
		return "", docdomain.ErrUnknownKind
	}

	year := now.UTC().Year()
	var next int64
	err := tx.WithContext(ctx).Raw(
		`INSERT INTO document_sequences (id, tenant_id, kind, year, last_value, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT (tenant_id, kind, year)
		 DO UPDATE SET last_value = document_sequences.last_value + 1, updated_at = excluded.updated_at
		 RETURNING last_value`,
		g.genID.Generate(),
		tenantID,
		kind,
		year,
		now.UTC(),
		now.UTC(),
	).Scan(&next).Error
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%d-%05d", tenantCode, kind.Prefix(), year, next), nil
}
