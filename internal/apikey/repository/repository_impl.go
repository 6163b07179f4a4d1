package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.Key) error {
	return db.WithContext(ctx).Create(key).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*apikeydomain.Key, error) {
	var key apikeydomain.Key
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) ListByPlatform(ctx context.Context, db *gorm.DB, platform accountdomain.Platform) ([]apikeydomain.Key, error) {
	var keys []apikeydomain.Key
	err := db.WithContext(ctx).
		Where("platform = ?", platform).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) ListByPlatformAndTenant(ctx context.Context, db *gorm.DB, platform accountdomain.Platform, tenantID *snowflake.ID) ([]apikeydomain.Key, error) {
	q := db.WithContext(ctx).Where("platform = ?", platform)
	if tenantID != nil {
		q = q.Where("tenant_id = ?", *tenantID)
	} else {
		q = q.Where("tenant_id IS NULL")
	}
	var keys []apikeydomain.Key
	if err := q.Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) FindByPlatformAndNames(ctx context.Context, db *gorm.DB, platform accountdomain.Platform, names []string) ([]apikeydomain.Key, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var keys []apikeydomain.Key
	err := db.WithContext(ctx).
		Where("platform = ? AND name IN ?", platform, names).
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) FindByPlatformKeyID(ctx context.Context, db *gorm.DB, platform accountdomain.Platform, platformKeyID string) (*apikeydomain.Key, error) {
	var key apikeydomain.Key
	err := db.WithContext(ctx).
		Where("platform = ? AND platform_key_id = ?", platform, platformKeyID).
		Limit(1).
		Find(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) TouchLastSynced(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&apikeydomain.Key{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"last_synced_at": at,
			"updated_at":     at,
		}).Error
}

func (r *repo) DeleteCascade(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM llm_api_key_usage WHERE api_key_id = ?`, id).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM llm_api_keys WHERE id = ?`, id).Error
	})
}
