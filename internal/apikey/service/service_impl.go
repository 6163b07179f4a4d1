package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
	"github.com/haoran127/costix-sub001/internal/secret"
	usagedomain "github.com/haoran127/costix-sub001/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  apikeydomain.Repository
	Box   *secret.Box
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  apikeydomain.Repository
	box   *secret.Box
}

func NewService(p ServiceParam) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		genID: p.GenID,
		repo:  p.Repo,
		box:   p.Box,
	}
}

func (s *Service) Import(ctx context.Context, req apikeydomain.ImportKeyRequest, tenantID, createdBy *snowflake.ID) (*apikeydomain.Key, error) {
	platform := accountdomain.Platform(strings.ToLower(strings.TrimSpace(req.Platform)))
	if !platform.Valid() {
		return nil, apikeydomain.ErrInvalidPlatform
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidKeyName
	}

	rawKey := strings.TrimSpace(req.APIKey)
	if rawKey == "" {
		return nil, apikeydomain.ErrInvalidAPIKey
	}

	sealed, err := s.box.Seal(rawKey)
	if err != nil {
		return nil, err
	}
	prefix, suffix := apikeydomain.MaskKey(rawKey)

	platformKeyID := req.PlatformKeyID
	if platform == accountdomain.PlatformOpenRouter && platformKeyID == nil {
		// OpenRouter identifies keys by hash; derive it so sync can match.
		hash := apikeydomain.HashAPIKey(rawKey)
		platformKeyID = &hash
	}

	key := &apikeydomain.Key{
		ID:             s.genID.Generate(),
		Name:           name,
		Platform:       platform,
		PlatformKeyID:  platformKeyID,
		ProjectID:      req.ProjectID,
		WorkspaceID:    req.WorkspaceID,
		APIKeySealed:   &sealed,
		Prefix:         prefix,
		Suffix:         suffix,
		Status:         apikeydomain.KeyStatusActive,
		TenantID:       tenantID,
		CreatedBy:      createdBy,
		CreationMethod: apikeydomain.CreationMethodImport,
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.log.Info("api key imported",
		zap.String("platform", string(platform)),
		zap.String("key_id", key.ID.String()),
	)
	return key, nil
}

func (s *Service) List(ctx context.Context, platform accountdomain.Platform, tenantID *snowflake.ID) ([]apikeydomain.Key, error) {
	if platform == "" {
		// callers may list across platforms for one tenant
		var keys []apikeydomain.Key
		q := s.db.WithContext(ctx)
		if tenantID != nil {
			q = q.Where("tenant_id = ?", *tenantID)
		}
		if err := q.Order("created_at DESC").Find(&keys).Error; err != nil {
			return nil, err
		}
		return keys, nil
	}
	return s.repo.ListByPlatformAndTenant(ctx, s.db, platform, tenantID)
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID, tenantID *snowflake.ID) error {
	key, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrKeyNotFound
	}
	if tenantID != nil && (key.TenantID == nil || *key.TenantID != *tenantID) {
		return apikeydomain.ErrTenantMismatch
	}
	return s.repo.DeleteCascade(ctx, s.db, id)
}

func (s *Service) Usage(ctx context.Context, id snowflake.ID, tenantID *snowflake.ID) ([]usagedomain.Record, error) {
	key, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, apikeydomain.ErrKeyNotFound
	}
	if tenantID != nil && (key.TenantID == nil || *key.TenantID != *tenantID) {
		return nil, apikeydomain.ErrTenantMismatch
	}

	var records []usagedomain.Record
	err = s.db.WithContext(ctx).
		Where("api_key_id = ?", id).
		Order("period_start DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
