package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/netbill/internal/subscription/domain"
	"github.com/smallbiznis/netbill/internal/tenantctx"
)

// Manual sweep triggers for operators; the scheduler runs the same code on a
// timer. Sweeps are idempotent, so overlap with a timer run is harmless.

func (s *Server) RunOverdueSweep(c *gin.Context) {
	if !s.requireSuperOperator(c) {
		return
	}

	summary, err := s.billingSvc.SweepOverdue(c.Request.Context(), time.Now().UTC())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	failed := s.dispatcher.Dispatch(c.Request.Context(), summary.Events)
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"processed":          summary.Processed,
			"skipped":            summary.Skipped,
			"failed":             summary.Failed,
			"undelivered_events": len(failed),
		},
	})
}

func (s *Server) RunSuspensionSweep(c *gin.Context) {
	if !s.requireSuperOperator(c) {
		return
	}

	summary, err := s.enforcementSvc.SweepSuspensions(c.Request.Context(), s.cfg.GracePeriodDays, time.Now().UTC())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	failed := s.dispatcher.Dispatch(c.Request.Context(), summary.Events)
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"processed":          summary.Processed,
			"skipped":            summary.Skipped,
			"failed":             summary.Failed,
			"undelivered_events": len(failed),
		},
	})
}

func (s *Server) RunSubscriptionExpiry(c *gin.Context) {
	if !s.requireSuperOperator(c) {
		return
	}

	summary, err := s.subscriptionSvc.CheckExpiry(c.Request.Context(), time.Now().UTC())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	failed := s.dispatcher.Dispatch(c.Request.Context(), summary.Events)
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"warned":             summary.Warned,
			"suspended":          summary.Suspended,
			"failed":             summary.Failed,
			"undelivered_events": len(failed),
		},
	})
}

func (s *Server) requireSuperOperator(c *gin.Context) bool {
	scope, ok := tenantctx.FromContext(c.Request.Context())
	if !ok || !scope.SuperOperator {
		AbortWithError(c, subscriptiondomain.ErrOperatorOnly)
		return false
	}
	return true
}
