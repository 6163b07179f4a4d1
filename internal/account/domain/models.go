// Package domain contains persistence models for vendor platform accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Platform identifies a supported LLM vendor.
type Platform string

const (
	PlatformOpenAI     Platform = "openai"
	PlatformAnthropic  Platform = "anthropic"
	PlatformOpenRouter Platform = "openrouter"
	PlatformVolcengine Platform = "volcengine"
)

// KnownPlatforms lists every platform the sync pipeline understands.
func KnownPlatforms() []Platform {
	return []Platform{PlatformOpenAI, PlatformAnthropic, PlatformOpenRouter, PlatformVolcengine}
}

// Valid reports whether p names a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformOpenAI, PlatformAnthropic, PlatformOpenRouter, PlatformVolcengine:
		return true
	default:
		return false
	}
}

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusError    AccountStatus = "error"
)

// PlatformAccount stores one vendor admin credential and its sync state.
// The admin key is sealed at rest; for Volcengine the sealed value is the
// composite `accessKeyId:base64(secretKey)`.
type PlatformAccount struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	Platform       Platform      `gorm:"type:text;not null;index"`
	Name           string        `gorm:"type:text;not null"`
	AdminKeySealed string        `gorm:"column:admin_key_sealed;type:text;not null"`
	Status         AccountStatus `gorm:"type:text;not null;default:active;index"`
	TenantID       *snowflake.ID `gorm:"column:tenant_id;index"`
	LastVerifiedAt *time.Time    `gorm:"column:last_verified_at;index"`
	ErrorMessage   *string       `gorm:"column:error_message;type:text"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlatformAccount) TableName() string { return "llm_platform_accounts" }
