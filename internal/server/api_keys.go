package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
)

type keyView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Platform      string     `json:"platform"`
	PlatformKeyID *string    `json:"platform_key_id,omitempty"`
	ProjectID     *string    `json:"project_id,omitempty"`
	WorkspaceID   *string    `json:"workspace_id,omitempty"`
	Masked        string     `json:"masked_key,omitempty"`
	Status        string     `json:"status"`
	Method        string     `json:"creation_method"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toKeyView(k *apikeydomain.Key) keyView {
	view := keyView{
		ID:            k.ID.String(),
		Name:          k.Name,
		Platform:      string(k.Platform),
		PlatformKeyID: k.PlatformKeyID,
		ProjectID:     k.ProjectID,
		WorkspaceID:   k.WorkspaceID,
		Status:        string(k.Status),
		Method:        string(k.CreationMethod),
		LastSyncedAt:  k.LastSyncedAt,
		CreatedAt:     k.CreatedAt,
	}
	if k.Prefix != "" || k.Suffix != "" {
		view.Masked = k.Prefix + "..." + k.Suffix
	}
	return view
}

func (s *Server) ImportKey(c *gin.Context) {
	var req apikeydomain.ImportKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, apikeydomain.ErrInvalidAPIKey)
		return
	}

	var tenantID, createdBy *snowflake.ID
	if identity := identityFrom(c); identity != nil {
		tenantID = identity.TenantID
		createdBy = &identity.UserID
	}

	key, err := s.apiKeySvc.Import(c.Request.Context(), req, tenantID, createdBy)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"key":     toKeyView(key),
	})
}

func (s *Server) ListKeys(c *gin.Context) {
	platform := accountdomain.Platform(c.Query("platform"))
	if platform != "" && !platform.Valid() {
		AbortWithError(c, apikeydomain.ErrInvalidPlatform)
		return
	}

	keys, err := s.apiKeySvc.List(c.Request.Context(), platform, tenantFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]keyView, 0, len(keys))
	for i := range keys {
		views = append(views, toKeyView(&keys[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"keys":    views,
	})
}

// DeleteKey removes the key together with its usage rows.
func (s *Server) DeleteKey(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, apikeydomain.ErrKeyNotFound)
		return
	}
	if err := s.apiKeySvc.Delete(c.Request.Context(), id, tenantFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type usageView struct {
	PeriodStart  time.Time `json:"period_start"`
	TotalUsage   float64   `json:"total_usage"`
	MonthlyUsage float64   `json:"monthly_usage"`
	DailyUsage   float64   `json:"daily_usage"`
	Balance      *float64  `json:"balance,omitempty"`
	CreditLimit  *float64  `json:"credit_limit,omitempty"`
	SyncedAt     time.Time `json:"synced_at"`
	SyncStatus   string    `json:"sync_status"`
}

// KeyUsage lists the key's usage snapshots, newest period first.
func (s *Server) KeyUsage(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, apikeydomain.ErrKeyNotFound)
		return
	}
	records, err := s.apiKeySvc.Usage(c.Request.Context(), id, tenantFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]usageView, 0, len(records))
	for _, r := range records {
		views = append(views, usageView{
			PeriodStart:  r.PeriodStart,
			TotalUsage:   r.TotalUsage,
			MonthlyUsage: r.MonthlyUsage,
			DailyUsage:   r.DailyUsage,
			Balance:      r.Balance,
			CreditLimit:  r.CreditLimit,
			SyncedAt:     r.SyncedAt,
			SyncStatus:   string(r.SyncStatus),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"usage":   views,
	})
}

func tenantFrom(c *gin.Context) *snowflake.ID {
	identity := identityFrom(c)
	if identity == nil {
		return nil
	}
	return identity.TenantID
}

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	return snowflake.ParseString(c.Param(name))
}
