// Package domain contains persistence models for synced usage snapshots.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// Record is one snapshot of usage/cost for one key for one billing period.
//
// Amounts are vendor-reported units: tokens for usage-style vendors, currency
// for cost-style vendors. PeriodStart is the first day of the UTC billing
// month at date granularity.
type Record struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	APIKeyID     snowflake.ID   `gorm:"column:api_key_id;not null;uniqueIndex:ux_llm_api_key_usage_key_period,priority:1"`
	PeriodStart  time.Time      `gorm:"column:period_start;not null;uniqueIndex:ux_llm_api_key_usage_key_period,priority:2"`
	TotalUsage   float64        `gorm:"column:total_usage;not null;default:0"`
	MonthlyUsage float64        `gorm:"column:monthly_usage;not null;default:0"`
	DailyUsage   float64        `gorm:"column:daily_usage;not null;default:0"`
	Balance      *float64       `gorm:"column:balance"`
	CreditLimit  *float64       `gorm:"column:credit_limit"`
	SyncedAt     time.Time      `gorm:"column:synced_at;not null"`
	SyncStatus   SyncStatus     `gorm:"column:sync_status;type:text;not null;default:success"`
	RawResponse  datatypes.JSON `gorm:"column:raw_response"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "llm_api_key_usage" }

// PeriodStartFor truncates t to the first day of its UTC month.
func PeriodStartFor(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
