package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/smallbiznis/netbill/internal/tenant/domain"
)

type createTenantRequest struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tenant, err := s.tenantSvc.Create(c.Request.Context(), tenantdomain.CreateTenantRequest{
		Code:  strings.TrimSpace(req.Code),
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

func (s *Server) GetTenant(c *gin.Context) {
	tenant, err := s.tenantSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

func (s *Server) ListTenants(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := tenantdomain.ListTenantsRequest{}
	if status := strings.TrimSpace(query.Status); status != "" {
		value := tenantdomain.SubscriptionStatus(status)
		req.Status = &value
	}

	tenants, err := s.tenantSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenants})
}

// PurgeTenant removes a tenant and everything it owns. Refused unless the
// caller is the super operator.
func (s *Server) PurgeTenant(c *gin.Context) {
	if err := s.tenantSvc.Purge(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"purged": true}})
}
