package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateAccountRequest struct {
	Platform string  `json:"platform"`
	Name     string  `json:"name"`
	AdminKey string  `json:"admin_key"`
	TenantID *string `json:"tenant_id"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *PlatformAccount) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PlatformAccount, error)
	List(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID) ([]PlatformAccount, error)
	// ListDueForSync selects active accounts never verified or verified before
	// the cutoff, oldest-verified first, capped to limit.
	ListDueForSync(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]PlatformAccount, error)
	MarkVerified(ctx context.Context, db *gorm.DB, id snowflake.ID, verifiedAt time.Time, errorMessage *string) error
}

type Service interface {
	Create(ctx context.Context, req CreateAccountRequest) (*PlatformAccount, error)
	GetByID(ctx context.Context, id snowflake.ID) (*PlatformAccount, error)
	List(ctx context.Context, tenantID *snowflake.ID) ([]PlatformAccount, error)
	// AdminKey unseals the stored credential for the given account.
	AdminKey(ctx context.Context, account *PlatformAccount) (string, error)
}

var (
	ErrAccountNotFound   = errors.New("account_not_found")
	ErrInvalidPlatform   = errors.New("invalid_platform")
	ErrInvalidAdminKey   = errors.New("invalid_admin_key")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrAccountInactive   = errors.New("account_inactive")
	ErrPlatformMismatch  = errors.New("platform_mismatch")
	ErrCredentialMissing = errors.New("credential_missing")
)
