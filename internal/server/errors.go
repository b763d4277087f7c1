package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/netbill/internal/billing/domain"
	customerdomain "github.com/smallbiznis/netbill/internal/customer/domain"
	docdomain "github.com/smallbiznis/netbill/internal/docnumber/domain"
	enforcementdomain "github.com/smallbiznis/netbill/internal/enforcement/domain"
	paymentdomain "github.com/smallbiznis/netbill/internal/payment/domain"
	plandomain "github.com/smallbiznis/netbill/internal/plan/domain"
	recoverydomain "github.com/smallbiznis/netbill/internal/recovery/domain"
	subscriptiondomain "github.com/smallbiznis/netbill/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/netbill/internal/tenant/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

// ErrorHandlingMiddleware converts errors attached to the gin context into a
// JSON error response once, after the handler chain runs.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isNotFound(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case isScopeMissing(err):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: err.Error()}
	case isForbidden(err):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: err.Error()}
	case isInvalidInput(err):
		return http.StatusBadRequest, errorPayload{Type: "invalid_input", Message: err.Error()}
	case isConflict(err):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, billingdomain.ErrPaidRegression):
		// Invariant violations are server faults, never client ones.
		return http.StatusInternalServerError, errorPayload{Type: "invariant_violation", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, tenantdomain.ErrNotFound) ||
		errors.Is(err, plandomain.ErrNotFound) ||
		errors.Is(err, customerdomain.ErrNotFound) ||
		errors.Is(err, billingdomain.ErrNotFound) ||
		errors.Is(err, paymentdomain.ErrNotFound) ||
		errors.Is(err, recoverydomain.ErrNotFound) ||
		errors.Is(err, enforcementdomain.ErrCustomerNotFound) ||
		errors.Is(err, gorm.ErrRecordNotFound)
}

func isScopeMissing(err error) bool {
	return errors.Is(err, billingdomain.ErrMissingTenantScope)
}

func isForbidden(err error) bool {
	return errors.Is(err, billingdomain.ErrTenantMismatch) ||
		errors.Is(err, customerdomain.ErrTenantMismatch) ||
		errors.Is(err, tenantdomain.ErrPurgeRefused) ||
		errors.Is(err, subscriptiondomain.ErrOperatorOnly)
}

func isInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, tenantdomain.ErrInvalidCode) ||
		errors.Is(err, tenantdomain.ErrInvalidName) ||
		errors.Is(err, plandomain.ErrInvalidName) ||
		errors.Is(err, plandomain.ErrInvalidPrice) ||
		errors.Is(err, plandomain.ErrInvalidCycle) ||
		errors.Is(err, customerdomain.ErrInvalidName) ||
		errors.Is(err, customerdomain.ErrInvalidCycle) ||
		errors.Is(err, billingdomain.ErrInvalidAmount) ||
		errors.Is(err, billingdomain.ErrInvalidPeriod) ||
		errors.Is(err, billingdomain.ErrNoChargeSource) ||
		errors.Is(err, paymentdomain.ErrInvalidAmount) ||
		errors.Is(err, paymentdomain.ErrInvalidMethod) ||
		errors.Is(err, recoverydomain.ErrInvalidAgent) ||
		errors.Is(err, subscriptiondomain.ErrInvalidWindow) ||
		errors.Is(err, subscriptiondomain.ErrInvalidAmount) ||
		errors.Is(err, enforcementdomain.ErrInvalidGrace) ||
		errors.Is(err, docdomain.ErrUnknownKind)
}

func isConflict(err error) bool {
	return errors.Is(err, tenantdomain.ErrCodeTaken) ||
		errors.Is(err, billingdomain.ErrBillCancelled) ||
		errors.Is(err, paymentdomain.ErrDuplicateTransaction) ||
		errors.Is(err, paymentdomain.ErrNotCompleted) ||
		errors.Is(err, recoverydomain.ErrAlreadyAssigned) ||
		errors.Is(err, recoverydomain.ErrBillSettled) ||
		errors.Is(err, recoverydomain.ErrClosed) ||
		errors.Is(err, gorm.ErrDuplicatedKey)
}
