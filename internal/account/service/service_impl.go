package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	"github.com/haoran127/costix-sub001/internal/secret"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  accountdomain.Repository
	Box   *secret.Box
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  accountdomain.Repository
	box   *secret.Box
}

func NewService(p ServiceParam) accountdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
		repo:  p.Repo,
		box:   p.Box,
	}
}

func (s *Service) Create(ctx context.Context, req accountdomain.CreateAccountRequest) (*accountdomain.PlatformAccount, error) {
	platform := accountdomain.Platform(strings.ToLower(strings.TrimSpace(req.Platform)))
	if !platform.Valid() {
		return nil, accountdomain.ErrInvalidPlatform
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, accountdomain.ErrInvalidName
	}

	adminKey := strings.TrimSpace(req.AdminKey)
	if adminKey == "" {
		return nil, accountdomain.ErrInvalidAdminKey
	}

	sealed, err := s.box.Seal(adminKey)
	if err != nil {
		return nil, err
	}

	var tenantID *snowflake.ID
	if req.TenantID != nil && strings.TrimSpace(*req.TenantID) != "" {
		parsed, err := snowflake.ParseString(strings.TrimSpace(*req.TenantID))
		if err != nil {
			return nil, accountdomain.ErrInvalidTenant
		}
		tenantID = &parsed
	}

	account := &accountdomain.PlatformAccount{
		ID:             s.genID.Generate(),
		Platform:       platform,
		Name:           name,
		AdminKeySealed: sealed,
		Status:         accountdomain.AccountStatusActive,
		TenantID:       tenantID,
	}
	if err := s.repo.Insert(ctx, s.db, account); err != nil {
		return nil, err
	}

	s.log.Info("platform account created",
		zap.String("platform", string(platform)),
		zap.String("account_id", account.ID.String()),
	)
	return account, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*accountdomain.PlatformAccount, error) {
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) List(ctx context.Context, tenantID *snowflake.ID) ([]accountdomain.PlatformAccount, error) {
	return s.repo.List(ctx, s.db, tenantID)
}

func (s *Service) AdminKey(ctx context.Context, account *accountdomain.PlatformAccount) (string, error) {
	if account == nil {
		return "", accountdomain.ErrAccountNotFound
	}
	key, err := s.box.Open(account.AdminKeySealed)
	if err != nil {
		return "", accountdomain.ErrInvalidAdminKey
	}
	return key, nil
}
