package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() accountdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *accountdomain.PlatformAccount) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*accountdomain.PlatformAccount, error) {
	var account accountdomain.PlatformAccount
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID) ([]accountdomain.PlatformAccount, error) {
	q := db.WithContext(ctx).Order("created_at DESC")
	if tenantID != nil {
		q = q.Where("tenant_id = ?", *tenantID)
	}
	var accounts []accountdomain.PlatformAccount
	if err := q.Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) ListDueForSync(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]accountdomain.PlatformAccount, error) {
	var accounts []accountdomain.PlatformAccount
	err := db.WithContext(ctx).
		Where("status = ?", accountdomain.AccountStatusActive).
		Where("last_verified_at IS NULL OR last_verified_at < ?", cutoff).
		Order("CASE WHEN last_verified_at IS NULL THEN 0 ELSE 1 END, last_verified_at ASC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) MarkVerified(ctx context.Context, db *gorm.DB, id snowflake.ID, verifiedAt time.Time, errorMessage *string) error {
	return db.WithContext(ctx).
		Model(&accountdomain.PlatformAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_verified_at": verifiedAt,
			"error_message":    errorMessage,
			"updated_at":       verifiedAt,
		}).Error
}
