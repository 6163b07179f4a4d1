// Package domain defines usage alert rules evaluated after each sync run.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Rule fires when a key's monthly usage for the current period reaches the
// threshold. A nil platform applies the rule to every vendor.
type Rule struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	Name             string        `gorm:"type:text;not null"`
	Platform         *string       `gorm:"type:text;index"`
	MonthlyThreshold float64       `gorm:"column:monthly_threshold;not null"`
	Enabled          bool          `gorm:"not null;default:true"`
	TenantID         *snowflake.ID `gorm:"column:tenant_id;index"`
	LastTriggeredAt  *time.Time    `gorm:"column:last_triggered_at"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Rule) TableName() string { return "llm_usage_alerts" }

// Trigger is one rule firing for one key.
type Trigger struct {
	RuleID   snowflake.ID `json:"rule_id"`
	RuleName string       `json:"rule_name"`
	APIKeyID snowflake.ID `json:"api_key_id"`
	KeyName  string       `json:"key_name"`
	Monthly  float64      `json:"monthly_usage"`
}

// Service evaluates all enabled rules against the current billing period.
type Service interface {
	Check(ctx context.Context) ([]Trigger, error)
}
