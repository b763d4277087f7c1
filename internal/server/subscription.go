package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/netbill/internal/subscription/domain"
)

type activateSubscriptionRequest struct {
	Amount int64     `json:"amount"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

func (s *Server) ActivateSubscription(c *gin.Context) {
	var req activateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.subscriptionSvc.Activate(c.Request.Context(), subscriptiondomain.ActivateRequest{
		TenantID: strings.TrimSpace(c.Param("id")),
		Amount:   req.Amount,
		Start:    req.Start,
		End:      req.End,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result.Invoice})
}
