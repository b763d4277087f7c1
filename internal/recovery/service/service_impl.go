package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	paymentdomain "github.com/smallbiznis/netbill/internal/payment/domain"
	recoverydomain "github.com/smallbiznis/netbill/internal/recovery/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"github.com/smallbiznis/netbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	BillingSvc billingdomain.Service
	PaymentSvc paymentdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	billingSvc billingdomain.Service
	paymentSvc paymentdomain.Service
}

func NewService(p Params) recoverydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("recovery.service"),
		genID:      p.GenID,
		billingSvc: p.BillingSvc,
		paymentSvc: p.PaymentSvc,
	}
}

func (s *Service) Assign(ctx context.Context, req recoverydomain.AssignRequest) (recoverydomain.RecoveryAssignment, error) {
	agent := strings.TrimSpace(req.Agent)
	if agent == "" {
		return recoverydomain.RecoveryAssignment{}, recoverydomain.ErrInvalidAgent
	}

	// Scope enforcement rides on the bill lookup.
	bill, err := s.billingSvc.GetByID(ctx, req.BillID)
	if err != nil {
		return recoverydomain.RecoveryAssignment{}, err
	}
	if bill.Status == billingdomain.BillStatusCancelled || bill.Remaining() == 0 {
		// Nothing left to collect.
		return recoverydomain.RecoveryAssignment{}, recoverydomain.ErrBillSettled
	}

	now := time.Now().UTC()
	assignment := recoverydomain.RecoveryAssignment{
		ID:         s.genID.Generate(),
		TenantID:   bill.TenantID,
		CustomerID: bill.CustomerID,
		BillID:     bill.ID,
		Agent:      agent,
		Status:     recoverydomain.AssignmentStatusOpen,
		AssignedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&assignment).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return recoverydomain.RecoveryAssignment{}, recoverydomain.ErrAlreadyAssigned
		}
		return recoverydomain.RecoveryAssignment{}, err
	}

	s.log.Info("recovery assignment created",
		zap.String("assignment_id", assignment.ID.String()),
		zap.String("bill_id", bill.ID.String()),
		zap.String("agent", agent),
	)
	return assignment, nil
}

func (s *Service) RecordCollection(ctx context.Context, req recoverydomain.RecordCollectionRequest) (recoverydomain.RecordCollectionResult, error) {
	assignment, err := s.GetByID(ctx, req.AssignmentID)
	if err != nil {
		return recoverydomain.RecordCollectionResult{}, err
	}
	if assignment.Status != recoverydomain.AssignmentStatusOpen {
		return recoverydomain.RecordCollectionResult{}, recoverydomain.ErrClosed
	}

	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		notes = "collected by " + assignment.Agent
	}
	applied, err := s.paymentSvc.Apply(ctx, paymentdomain.ApplyPaymentRequest{
		BillID:        assignment.BillID.String(),
		Amount:        req.Amount,
		Method:        req.Method,
		TransactionID: req.TransactionID,
		Notes:         notes,
	})
	if err != nil {
		return recoverydomain.RecordCollectionResult{}, err
	}

	bill, err := s.billingSvc.GetByID(ctx, assignment.BillID.String())
	if err != nil {
		return recoverydomain.RecordCollectionResult{}, err
	}
	if bill.Status == billingdomain.BillStatusPaid {
		now := time.Now().UTC()
		res := s.db.WithContext(ctx).Exec(
			`UPDATE recovery_assignments SET status = ?, closed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			recoverydomain.AssignmentStatusClosed, now, now, assignment.ID, recoverydomain.AssignmentStatusOpen,
		)
		if res.Error != nil {
			return recoverydomain.RecordCollectionResult{}, res.Error
		}
		if res.RowsAffected > 0 {
			assignment.Status = recoverydomain.AssignmentStatusClosed
			assignment.ClosedAt = &now
			assignment.UpdatedAt = now
			s.log.Info("recovery assignment closed",
				zap.String("assignment_id", assignment.ID.String()),
				zap.String("bill_id", assignment.BillID.String()),
			)
		}
	}

	return recoverydomain.RecordCollectionResult{Assignment: assignment, Payment: applied}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (recoverydomain.RecoveryAssignment, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return recoverydomain.RecoveryAssignment{}, billingdomain.ErrMissingTenantScope
	}

	assignmentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return recoverydomain.RecoveryAssignment{}, recoverydomain.ErrNotFound
	}

	stmt := s.db.WithContext(ctx).Where("id = ?", assignmentID)
	if !scope.SuperOperator {
		stmt = stmt.Where("tenant_id = ?", scope.TenantID)
	}

	var assignment recoverydomain.RecoveryAssignment
	if err := stmt.First(&assignment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return recoverydomain.RecoveryAssignment{}, recoverydomain.ErrNotFound
		}
		return recoverydomain.RecoveryAssignment{}, err
	}
	return assignment, nil
}

func (s *Service) List(ctx context.Context, req recoverydomain.ListAssignmentsRequest) ([]recoverydomain.RecoveryAssignment, error) {
	scope, ok := tenantctx.FromContext(ctx)
	if !ok {
		return nil, billingdomain.ErrMissingTenantScope
	}

	stmt := s.db.WithContext(ctx).Model(&recoverydomain.RecoveryAssignment{})
	if !scope.SuperOperator {
		stmt = stmt.Where("tenant_id = ?", scope.TenantID)
	}
	if req.CustomerID != nil {
		customerID, err := snowflake.ParseString(strings.TrimSpace(*req.CustomerID))
		if err != nil {
			return nil, recoverydomain.ErrNotFound
		}
		stmt = stmt.Where("customer_id = ?", customerID)
	}
	if req.Status != nil {
		stmt = stmt.Where("status = ?", *req.Status)
	}

	var assignments []recoverydomain.RecoveryAssignment
	if err := stmt.Order("assigned_at").Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}
