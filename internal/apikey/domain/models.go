// Package domain contains persistence models for tracked vendor API keys.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
)

type KeyStatus string

const (
	KeyStatusActive   KeyStatus = "active"
	KeyStatusInactive KeyStatus = "inactive"
)

type CreationMethod string

const (
	CreationMethodImport CreationMethod = "import"
	CreationMethodAPI    CreationMethod = "api"
	CreationMethodSync   CreationMethod = "sync"
)

// Key is one provisioned or imported vendor API key tracked by the system.
//
// PlatformKeyID semantics vary per vendor: an opaque key id for OpenAI and
// Anthropic, the key hash for OpenRouter, the vendor key id for Volcengine.
type Key struct {
	ID                snowflake.ID           `gorm:"primaryKey"`
	Name              string                 `gorm:"type:text;not null;index"`
	Platform          accountdomain.Platform `gorm:"type:text;not null;index;uniqueIndex:ux_llm_api_keys_platform_vendor,priority:1"`
	PlatformKeyID     *string                `gorm:"column:platform_key_id;type:text;uniqueIndex:ux_llm_api_keys_platform_vendor,priority:2"`
	ProjectID         *string                `gorm:"column:project_id;type:text;index"`
	WorkspaceID       *string                `gorm:"column:workspace_id;type:text;index"`
	APIKeySealed      *string                `gorm:"column:api_key_sealed;type:text"`
	Prefix            string                 `gorm:"type:text"`
	Suffix            string                 `gorm:"type:text"`
	Status            KeyStatus              `gorm:"type:text;not null;default:active"`
	TenantID          *snowflake.ID          `gorm:"column:tenant_id;index"`
	CreatedBy         *snowflake.ID          `gorm:"column:created_by"`
	PlatformAccountID *snowflake.ID          `gorm:"column:platform_account_id;index"`
	CreationMethod    CreationMethod         `gorm:"column:creation_method;type:text;not null;default:import"`
	CreatedAt         time.Time              `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time              `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastSyncedAt      *time.Time             `gorm:"column:last_synced_at"`
}

// TableName sets the database table name.
func (Key) TableName() string { return "llm_api_keys" }
