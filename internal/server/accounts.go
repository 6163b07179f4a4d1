package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
)

type accountView struct {
	ID             string     `json:"id"`
	Platform       string     `json:"platform"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	TenantID       *string    `json:"tenant_id,omitempty"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toAccountView(a *accountdomain.PlatformAccount) accountView {
	view := accountView{
		ID:             a.ID.String(),
		Platform:       string(a.Platform),
		Name:           a.Name,
		Status:         string(a.Status),
		LastVerifiedAt: a.LastVerifiedAt,
		ErrorMessage:   a.ErrorMessage,
		CreatedAt:      a.CreatedAt,
	}
	if a.TenantID != nil {
		tenant := a.TenantID.String()
		view.TenantID = &tenant
	}
	return view
}

// CreateAccount registers a vendor admin credential. The raw key is sealed
// before it reaches storage and never echoed back.
func (s *Server) CreateAccount(c *gin.Context) {
	var req accountdomain.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, accountdomain.ErrInvalidAdminKey)
		return
	}
	if identity := identityFrom(c); identity != nil && identity.TenantID != nil && req.TenantID == nil {
		tenant := identity.TenantID.String()
		req.TenantID = &tenant
	}

	created, err := s.accountSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"account": toAccountView(created),
	})
}

func (s *Server) ListAccounts(c *gin.Context) {
	var tenantID = tenantFrom(c)
	accounts, err := s.accountSvc.List(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	views := make([]accountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, toAccountView(&accounts[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"accounts": views,
	})
}

func (s *Server) GetAccount(c *gin.Context) {
	id, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, accountdomain.ErrAccountNotFound)
		return
	}
	account, err := s.accountSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"account": toAccountView(account),
	})
}
