package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
)

// SyncPlatform runs a full sync for one provider on behalf of the caller.
// POST /api/sync/:platform with {admin_key?, platform_account_id?, mode?}.
func (s *Server) SyncPlatform(c *gin.Context) {
	syncer, err := s.registry.Lookup(c.Param("platform"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req syncdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, syncdomain.ErrCredentialRequired)
		return
	}
	if identity := identityFrom(c); identity != nil {
		req.TenantID = identity.TenantID
	}

	result, err := syncer.Sync(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CronSync is the orchestrator entry invoked by the external scheduler. A
// single account's failure is reflected in the per-account outcomes, never
// in the HTTP status.
func (s *Server) CronSync(c *gin.Context) {
	report, err := s.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report":  report,
	})
}

// CronAlerts evaluates usage alert rules on demand.
func (s *Server) CronAlerts(c *gin.Context) {
	triggers, err := s.alertSvc.Check(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"triggers": triggers,
	})
}
