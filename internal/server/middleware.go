package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/netbill/internal/tenantctx"
	"go.uber.org/zap"
)

const (
	headerTenantID      = "X-Tenant-ID"
	headerSuperOperator = "X-Super-Operator"
)

// TenantScopeMiddleware resolves the caller's tenant scope from headers and
// stores it on the request context. Every core query keys off this scope;
// requests with no resolvable scope are rejected before reaching a handler.
//
// Header-based resolution stands in for the deployment's auth proxy, which
// terminates credentials and forwards the resolved identity.
func TenantScopeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := tenantctx.Scope{}

		if strings.EqualFold(strings.TrimSpace(c.GetHeader(headerSuperOperator)), "true") {
			scope.SuperOperator = true
		}
		if raw := strings.TrimSpace(c.GetHeader(headerTenantID)); raw != "" {
			id, err := snowflake.ParseString(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: errorPayload{
					Type:    "invalid_input",
					Message: "invalid tenant id header",
				}})
				return
			}
			scope.TenantID = id
		}

		if scope.TenantID == 0 && !scope.SuperOperator {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: errorPayload{
				Type:    "unauthorized",
				Message: "missing tenant scope",
			}})
			return
		}

		c.Request = c.Request.WithContext(tenantctx.WithScope(c.Request.Context(), scope))
		c.Next()
	}
}

// RequestLogMiddleware logs one line per request with latency and status.
func RequestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.Last().Error()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}
