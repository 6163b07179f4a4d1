// Package auth resolves end-user bearer tokens to an identity. Tokens are
// HMAC-signed JWTs issued by the dashboard's identity provider; this service
// only verifies and extracts claims.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/haoran127/costix-sub001/internal/config"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotConfigured = errors.New("auth_not_configured")
)

// Identity is the resolved caller.
type Identity struct {
	UserID   snowflake.ID
	TenantID *snowflake.ID
}

// Service resolves the caller identity from an incoming request.
type Service interface {
	UserFromRequest(r *http.Request) (*Identity, error)
}

type claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id,omitempty"`
}

type jwtService struct {
	secret []byte
	log    *zap.Logger
}

func NewService(cfg config.Config, log *zap.Logger) Service {
	return &jwtService{
		secret: []byte(cfg.AuthJWTSecret),
		log:    log.Named("auth"),
	}
}

func (s *jwtService) UserFromRequest(r *http.Request) (*Identity, error) {
	if len(s.secret) == 0 {
		return nil, ErrNotConfigured
	}
	token := bearerToken(r)
	if token == "" {
		return nil, ErrUnauthorized
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthorized
	}

	userID, err := snowflake.ParseString(c.Subject)
	if err != nil {
		return nil, ErrUnauthorized
	}
	identity := &Identity{UserID: userID}
	if c.TenantID != "" {
		tenantID, err := snowflake.ParseString(c.TenantID)
		if err != nil {
			return nil, ErrUnauthorized
		}
		identity.TenantID = &tenantID
	}
	return identity, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

var Module = fx.Module("auth",
	fx.Provide(NewService),
)
