package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	alertdomain "github.com/haoran127/costix-sub001/internal/alert/domain"
	"github.com/haoran127/costix-sub001/internal/clock"
	usagedomain "github.com/haoran127/costix-sub001/internal/usage/domain"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p ServiceParam) alertdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("alert.service"),
		clock: p.Clock,
	}
}

type hit struct {
	APIKeyID     int64   `gorm:"column:api_key_id"`
	KeyName      string  `gorm:"column:key_name"`
	MonthlyUsage float64 `gorm:"column:monthly_usage"`
}

// Check scans current-period usage rows against every enabled rule. Triggers
// are logged and stamped on the rule; delivery channels live outside this
// service.
func (s *Service) Check(ctx context.Context) ([]alertdomain.Trigger, error) {
	var rules []alertdomain.Rule
	if err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Find(&rules).Error; err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	now := s.clock.Now()
	periodStart := usagedomain.PeriodStartFor(now)

	var triggers []alertdomain.Trigger
	for _, rule := range rules {
		q := s.db.WithContext(ctx).
			Table("llm_api_key_usage AS u").
			Select("u.api_key_id AS api_key_id, k.name AS key_name, u.monthly_usage AS monthly_usage").
			Joins("JOIN llm_api_keys k ON k.id = u.api_key_id").
			Where("u.period_start = ?", periodStart).
			Where("u.monthly_usage >= ?", rule.MonthlyThreshold)
		if rule.Platform != nil && *rule.Platform != "" {
			q = q.Where("k.platform = ?", *rule.Platform)
		}
		if rule.TenantID != nil {
			q = q.Where("k.tenant_id = ?", *rule.TenantID)
		}

		var hits []hit
		if err := q.Scan(&hits).Error; err != nil {
			s.log.Warn("alert rule query failed",
				zap.String("rule", rule.Name),
				zap.Error(err),
			)
			continue
		}
		if len(hits) == 0 {
			continue
		}

		for _, h := range hits {
			trigger := alertdomain.Trigger{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				APIKeyID: snowflake.ID(h.APIKeyID),
				KeyName:  h.KeyName,
				Monthly:  h.MonthlyUsage,
			}
			triggers = append(triggers, trigger)
			s.log.Warn("usage alert triggered",
				zap.String("rule", rule.Name),
				zap.String("key", h.KeyName),
				zap.Float64("monthly_usage", h.MonthlyUsage),
				zap.Float64("threshold", rule.MonthlyThreshold),
			)
		}

		if err := s.db.WithContext(ctx).
			Model(&alertdomain.Rule{}).
			Where("id = ?", rule.ID).
			Update("last_triggered_at", now).Error; err != nil {
			s.log.Warn("alert rule stamp failed", zap.String("rule", rule.Name), zap.Error(err))
		}
	}
	return triggers, nil
}
