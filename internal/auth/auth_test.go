package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/haoran127/costix-sub001/internal/config"
)

const testSecret = "jwt-test-secret"

func newTestService() Service {
	return NewService(config.Config{AuthJWTSecret: testSecret}, zap.NewNop())
}

func signToken(t *testing.T, secret string, c claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func requestWithToken(token string) *http.Request {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestUserFromRequestResolvesIdentity(t *testing.T) {
	svc := newTestService()
	token := signToken(t, testSecret, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "123456789",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: "987654321",
	})

	identity, err := svc.UserFromRequest(requestWithToken(token))
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(123456789), identity.UserID)
	require.NotNil(t, identity.TenantID)
	assert.Equal(t, snowflake.ID(987654321), *identity.TenantID)
}

func TestUserFromRequestWithoutTenant(t *testing.T) {
	svc := newTestService()
	token := signToken(t, testSecret, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "123456789",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := svc.UserFromRequest(requestWithToken(token))
	require.NoError(t, err)
	assert.Nil(t, identity.TenantID)
}

func TestUserFromRequestRejections(t *testing.T) {
	svc := newTestService()

	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong secret", signToken(t, "other-secret", claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		})},
		{"expired", signToken(t, testSecret, claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
		})},
		{"non numeric subject", signToken(t, testSecret, claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "user-one", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UserFromRequest(requestWithToken(tc.token))
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestUserFromRequestUnconfiguredSecret(t *testing.T) {
	svc := NewService(config.Config{}, zap.NewNop())
	_, err := svc.UserFromRequest(requestWithToken("anything"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}
