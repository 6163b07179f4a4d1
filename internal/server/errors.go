package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
	"github.com/haoran127/costix-sub001/internal/auth"
	"github.com/haoran127/costix-sub001/internal/providers"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// ErrorHandlingMiddleware converts errors attached to the gin context into
// the JSON error shape. The handler boundary is the only place that decides
// status and payload; nested helpers just return errors.
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
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	var vendorErr *providers.VendorError
	if errors.As(err, &vendorErr) {
		// mirror the vendor's status where it is a meaningful 4xx/5xx
		status := vendorErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		return status, errorResponse{Error: vendorErr.Message, Code: vendorErr.Code}
	}

	switch {
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrNotConfigured):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized"}
	case errors.Is(err, syncdomain.ErrCredentialRequired):
		return http.StatusBadRequest, errorResponse{Error: "admin_key or platform_account_id is required"}
	case errors.Is(err, syncdomain.ErrUnknownPlatform),
		errors.Is(err, accountdomain.ErrInvalidPlatform),
		errors.Is(err, apikeydomain.ErrInvalidPlatform):
		return http.StatusBadRequest, errorResponse{Error: "unknown platform"}
	case errors.Is(err, accountdomain.ErrPlatformMismatch):
		return http.StatusBadRequest, errorResponse{Error: "platform mismatch"}
	case errors.Is(err, accountdomain.ErrInvalidAdminKey),
		errors.Is(err, accountdomain.ErrCredentialMissing),
		errors.Is(err, accountdomain.ErrInvalidName),
		errors.Is(err, accountdomain.ErrInvalidTenant),
		errors.Is(err, apikeydomain.ErrInvalidKeyName),
		errors.Is(err, apikeydomain.ErrInvalidAPIKey),
		errors.Is(err, providers.ErrMissingCredential):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, apikeydomain.ErrKeyNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found"}
	case errors.Is(err, apikeydomain.ErrTenantMismatch):
		return http.StatusForbidden, errorResponse{Error: "forbidden"}
	}

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}
