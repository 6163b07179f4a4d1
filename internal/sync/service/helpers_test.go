package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
	apikeyrepository "github.com/haoran127/costix-sub001/internal/apikey/repository"
	"github.com/haoran127/costix-sub001/internal/observability/metrics"
	usagedomain "github.com/haoran127/costix-sub001/internal/usage/domain"
	usagerepository "github.com/haoran127/costix-sub001/internal/usage/repository"
)

// prometheus collectors register on the process-wide default registry, so the
// package shares one instance across tests.
var testMetrics = metrics.New()

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newSyncerParam(t *testing.T) (SyncerParam, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&apikeydomain.Key{}, &usagedomain.Record{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	p := SyncerParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fixedClock{now: testNow},
		Keys:    apikeyrepository.Provide(),
		Writer:  usagerepository.ProvideWriter(usagerepository.WriterParam{DB: db, Log: zap.NewNop(), GenID: node}),
		Metrics: testMetrics,
	}
	return p, db
}

func insertKey(t *testing.T, db *gorm.DB, node *snowflake.Node, key apikeydomain.Key) apikeydomain.Key {
	t.Helper()
	if key.ID == 0 {
		key.ID = node.Generate()
	}
	if key.Status == "" {
		key.Status = apikeydomain.KeyStatusActive
	}
	if key.CreationMethod == "" {
		key.CreationMethod = apikeydomain.CreationMethodImport
	}
	require.NoError(t, db.Create(&key).Error)
	return key
}

func usageRows(t *testing.T, db *gorm.DB) []usagedomain.Record {
	t.Helper()
	var rows []usagedomain.Record
	require.NoError(t, db.Order("api_key_id").Find(&rows).Error)
	return rows
}

func rowFor(t *testing.T, rows []usagedomain.Record, keyID snowflake.ID) usagedomain.Record {
	t.Helper()
	for _, row := range rows {
		if row.APIKeyID == keyID {
			return row
		}
	}
	t.Fatalf("no usage row for key %s", keyID)
	return usagedomain.Record{}
}

func newVendorServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

type mockAccountService struct {
	mock.Mock
}

func (m *mockAccountService) Create(ctx context.Context, req accountdomain.CreateAccountRequest) (*accountdomain.PlatformAccount, error) {
	args := m.Called(ctx, req)
	if account := args.Get(0); account != nil {
		return account.(*accountdomain.PlatformAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAccountService) GetByID(ctx context.Context, id snowflake.ID) (*accountdomain.PlatformAccount, error) {
	args := m.Called(ctx, id)
	if account := args.Get(0); account != nil {
		return account.(*accountdomain.PlatformAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAccountService) List(ctx context.Context, tenantID *snowflake.ID) ([]accountdomain.PlatformAccount, error) {
	args := m.Called(ctx, tenantID)
	if accounts := args.Get(0); accounts != nil {
		return accounts.([]accountdomain.PlatformAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAccountService) AdminKey(ctx context.Context, account *accountdomain.PlatformAccount) (string, error) {
	args := m.Called(ctx, account)
	return args.String(0), args.Error(1)
}
