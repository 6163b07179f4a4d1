package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	usagedomain "github.com/haoran127/costix-sub001/internal/usage/domain"
	"gorm.io/gorm"
)

type ImportKeyRequest struct {
	Name          string  `json:"name"`
	Platform      string  `json:"platform"`
	APIKey        string  `json:"api_key"`
	PlatformKeyID *string `json:"platform_key_id"`
	ProjectID     *string `json:"project_id"`
	WorkspaceID   *string `json:"workspace_id"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *Key) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Key, error)
	ListByPlatform(ctx context.Context, db *gorm.DB, platform accountdomain.Platform) ([]Key, error)
	// ListByPlatformAndTenant scopes rows to one tenant; a nil tenantID matches
	// rows whose tenant_id is null.
	ListByPlatformAndTenant(ctx context.Context, db *gorm.DB, platform accountdomain.Platform, tenantID *snowflake.ID) ([]Key, error)
	FindByPlatformAndNames(ctx context.Context, db *gorm.DB, platform accountdomain.Platform, names []string) ([]Key, error)
	FindByPlatformKeyID(ctx context.Context, db *gorm.DB, platform accountdomain.Platform, platformKeyID string) (*Key, error)
	TouchLastSynced(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error
	// DeleteCascade removes the key and its usage rows.
	DeleteCascade(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

type Service interface {
	Import(ctx context.Context, req ImportKeyRequest, tenantID, createdBy *snowflake.ID) (*Key, error)
	List(ctx context.Context, platform accountdomain.Platform, tenantID *snowflake.ID) ([]Key, error)
	Delete(ctx context.Context, id snowflake.ID, tenantID *snowflake.ID) error
	// Usage lists the key's persisted usage snapshots, newest period first.
	Usage(ctx context.Context, id snowflake.ID, tenantID *snowflake.ID) ([]usagedomain.Record, error)
}

var (
	ErrKeyNotFound     = errors.New("key_not_found")
	ErrInvalidKeyName  = errors.New("invalid_key_name")
	ErrInvalidPlatform = errors.New("invalid_platform")
	ErrInvalidAPIKey   = errors.New("invalid_api_key")
	ErrTenantMismatch  = errors.New("tenant_mismatch")
)
