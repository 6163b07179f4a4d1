package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	accountrepository "github.com/haoran127/costix-sub001/internal/account/repository"
	alertdomain "github.com/haoran127/costix-sub001/internal/alert/domain"
	"github.com/haoran127/costix-sub001/internal/auth"
	"github.com/haoran127/costix-sub001/internal/config"
	"github.com/haoran127/costix-sub001/internal/observability"
	"github.com/haoran127/costix-sub001/internal/observability/metrics"
	"github.com/haoran127/costix-sub001/internal/providers"
	"github.com/haoran127/costix-sub001/internal/scheduler"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
	syncservice "github.com/haoran127/costix-sub001/internal/sync/service"
)

// prometheus collectors register on the process-wide default registry, so the
// package shares one instance across tests.
var testMetrics = metrics.New()

const testCronSecret = "cron-secret-test"

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeAuthService struct{}

func (fakeAuthService) UserFromRequest(r *http.Request) (*auth.Identity, error) {
	if r.Header.Get("Authorization") != "Bearer user-token" {
		return nil, auth.ErrUnauthorized
	}
	tenantID := snowflake.ID(777)
	return &auth.Identity{UserID: snowflake.ID(42), TenantID: &tenantID}, nil
}

type fakeAlertService struct{}

func (fakeAlertService) Check(ctx context.Context) ([]alertdomain.Trigger, error) {
	return []alertdomain.Trigger{}, nil
}

type recordingSyncer struct {
	platform accountdomain.Platform
	err      error
	lastReq  *syncdomain.Request
}

func (r *recordingSyncer) Platform() accountdomain.Platform { return r.platform }

func (r *recordingSyncer) Sync(ctx context.Context, req syncdomain.Request) (*syncdomain.Result, error) {
	r.lastReq = &req
	if r.err != nil {
		return nil, r.err
	}
	return &syncdomain.Result{Success: true, Message: "ok", SavedCount: 2}, nil
}

func newTestServer(t *testing.T, syncers ...syncdomain.Syncer) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&accountdomain.PlatformAccount{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := syncservice.NewRegistry(syncers...)
	sched, err := scheduler.New(scheduler.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Accounts: accountrepository.Provide(),
		Registry: registry,
		AlertSvc: fakeAlertService{},
		Clock:    fixedClock{now: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)},
		Metrics:  testMetrics,
	})
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:       NewEngine(observability.Config{Environment: "test"}),
		Cfg:       config.Config{CronSecret: testCronSecret},
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		AuthSvc:   fakeAuthService{},
		AlertSvc:  fakeAlertService{},
		Registry:  registry,
		Scheduler: sched,
	})
	return srv, db
}

func perform(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func userHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer user-token"}
}

func TestSyncPlatformForwardsTenantAndReturnsResult(t *testing.T) {
	syncer := &recordingSyncer{platform: accountdomain.PlatformOpenAI}
	srv, _ := newTestServer(t, syncer)

	w := perform(srv, http.MethodPost, "/api/sync/openai", `{"admin_key":"sk-admin-test"}`, userHeaders())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result syncdomain.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.SavedCount)

	require.NotNil(t, syncer.lastReq)
	assert.Equal(t, "sk-admin-test", syncer.lastReq.AdminKey)
	require.NotNil(t, syncer.lastReq.TenantID, "tenant comes from the caller identity")
	assert.Equal(t, snowflake.ID(777), *syncer.lastReq.TenantID)
}

func TestSyncPlatformRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSyncer{platform: accountdomain.PlatformOpenAI})

	w := perform(srv, http.MethodPost, "/api/sync/openai", `{}`, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "unauthorized", resp.Error)
}

func TestSyncPlatformUnknownPlatform(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSyncer{platform: accountdomain.PlatformOpenAI})

	w := perform(srv, http.MethodPost, "/api/sync/bedrock", `{}`, userHeaders())
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unknown platform", resp.Error)
}

func TestSyncPlatformRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSyncer{platform: accountdomain.PlatformOpenAI})

	w := perform(srv, http.MethodPost, "/api/sync/openai", `not json`, userHeaders())
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "admin_key or platform_account_id is required", resp.Error)
}

func TestSyncPlatformMirrorsVendorStatus(t *testing.T) {
	syncer := &recordingSyncer{
		platform: accountdomain.PlatformOpenAI,
		err:      &providers.VendorError{StatusCode: http.StatusPaymentRequired, Code: "billing_hard_limit_reached", Message: "limit reached"},
	}
	srv, _ := newTestServer(t, syncer)

	w := perform(srv, http.MethodPost, "/api/sync/openai", `{"admin_key":"sk-admin-test"}`, userHeaders())
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "limit reached", resp.Error)
	assert.Equal(t, "billing_hard_limit_reached", resp.Code)
}

func TestSyncPlatformMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &recordingSyncer{platform: accountdomain.PlatformOpenAI})

	w := perform(srv, http.MethodGet, "/api/sync/openai", "", userHeaders())
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "method not allowed", resp.Error)
}

func TestCronAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name       string
		headers    map[string]string
		wantStatus int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"wrong secret", map[string]string{"Authorization": "Bearer wrong"}, http.StatusUnauthorized},
		{"shared secret", map[string]string{"Authorization": "Bearer " + testCronSecret}, http.StatusOK},
		{"cron marker header", map[string]string{"X-Costix-Cron": testCronSecret}, http.StatusOK},
		{"cron marker with wrong value", map[string]string{"X-Costix-Cron": "1"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := perform(srv, http.MethodPost, "/api/cron/alerts", "", tc.headers)
			assert.Equal(t, tc.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestCronSyncReturnsRunReport(t *testing.T) {
	srv, _ := newTestServer(t)

	w := perform(srv, http.MethodPost, "/api/cron/sync", "", map[string]string{"X-Costix-Cron": testCronSecret})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool                `json:"success"`
		Report  scheduler.RunReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Zero(t, resp.Report.Processed)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	w := perform(srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
