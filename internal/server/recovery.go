package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	recoverydomain "github.com/smallbiznis/netbill/internal/recovery/domain"
)

func (s *Server) CreateRecoveryAssignment(c *gin.Context) {
	var req recoverydomain.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	assignment, err := s.recoverySvc.Assign(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": assignment})
}

func (s *Server) GetRecoveryAssignment(c *gin.Context) {
	assignment, err := s.recoverySvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": assignment})
}

func (s *Server) ListRecoveryAssignments(c *gin.Context) {
	var query struct {
		CustomerID string `form:"customer_id"`
		Status     string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := recoverydomain.ListAssignmentsRequest{}
	if customerID := strings.TrimSpace(query.CustomerID); customerID != "" {
		req.CustomerID = &customerID
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		value := recoverydomain.AssignmentStatus(status)
		req.Status = &value
	}

	assignments, err := s.recoverySvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": assignments})
}

func (s *Server) RecordRecoveryCollection(c *gin.Context) {
	var req recoverydomain.RecordCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.AssignmentID = strings.TrimSpace(c.Param("id"))

	result, err := s.recoverySvc.RecordCollection(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	failed := s.dispatcher.Dispatch(c.Request.Context(), result.Payment.Events)
	resp := gin.H{"data": result}
	if len(failed) > 0 {
		resp["undelivered_events"] = len(failed)
	}
	c.JSON(http.StatusOK, resp)
}
