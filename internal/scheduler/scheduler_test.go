package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	accountrepository "github.com/haoran127/costix-sub001/internal/account/repository"
	alertdomain "github.com/haoran127/costix-sub001/internal/alert/domain"
	"github.com/haoran127/costix-sub001/internal/observability/metrics"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
	syncservice "github.com/haoran127/costix-sub001/internal/sync/service"
)

// prometheus collectors register on the process-wide default registry, so the
// package shares one instance across tests.
var testMetrics = metrics.New()

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeSyncer struct {
	platform accountdomain.Platform
	err      error
	calls    int
}

func (f *fakeSyncer) Platform() accountdomain.Platform { return f.platform }

func (f *fakeSyncer) Sync(ctx context.Context, req syncdomain.Request) (*syncdomain.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &syncdomain.Result{Success: true, Message: "ok"}, nil
}

type fakeAlertService struct {
	calls int
	err   error
}

func (f *fakeAlertService) Check(ctx context.Context) ([]alertdomain.Trigger, error) {
	f.calls++
	return nil, f.err
}

func newTestScheduler(t *testing.T, syncers ...syncdomain.Syncer) (*Scheduler, *gorm.DB, *fakeAlertService, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&accountdomain.PlatformAccount{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	alertSvc := &fakeAlertService{}
	s, err := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Accounts: accountrepository.Provide(),
		Registry: syncservice.NewRegistry(syncers...),
		AlertSvc: alertSvc,
		Clock:    fixedClock{now: testNow},
		Metrics:  testMetrics,
		Config:   Config{BatchSize: 10, StaggerDelay: 0},
	})
	require.NoError(t, err)
	return s, db, alertSvc, node
}

func insertAccount(t *testing.T, db *gorm.DB, node *snowflake.Node, platform accountdomain.Platform) accountdomain.PlatformAccount {
	t.Helper()
	account := accountdomain.PlatformAccount{
		ID:             node.Generate(),
		Platform:       platform,
		Name:           string(platform) + "-account",
		AdminKeySealed: "sealed",
		Status:         accountdomain.AccountStatusActive,
	}
	require.NoError(t, db.Create(&account).Error)
	return account
}

func TestRunOnceIsolatesAccountFailures(t *testing.T) {
	failing := &fakeSyncer{platform: accountdomain.PlatformOpenAI, err: errors.New("vendor down")}
	healthy := &fakeSyncer{platform: accountdomain.PlatformAnthropic}
	s, db, alertSvc, node := newTestScheduler(t, failing, healthy)

	broken := insertAccount(t, db, node, accountdomain.PlatformOpenAI)
	working := insertAccount(t, db, node, accountdomain.PlatformAnthropic)

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls, "one account failing must not stop the rest")
	assert.Equal(t, 1, alertSvc.calls)

	var after accountdomain.PlatformAccount
	require.NoError(t, db.First(&after, "id = ?", broken.ID).Error)
	require.NotNil(t, after.LastVerifiedAt, "verified stamp is written even on failure")
	require.NotNil(t, after.ErrorMessage)
	assert.Contains(t, *after.ErrorMessage, "vendor down")

	// A populated destination would leak its primary key into the next query.
	after = accountdomain.PlatformAccount{}
	require.NoError(t, db.First(&after, "id = ?", working.ID).Error)
	require.NotNil(t, after.LastVerifiedAt)
	assert.Nil(t, after.ErrorMessage)
}

func TestRunOnceSkipsRecentlyVerifiedAccounts(t *testing.T) {
	syncer := &fakeSyncer{platform: accountdomain.PlatformOpenAI}
	s, db, _, node := newTestScheduler(t, syncer)

	fresh := insertAccount(t, db, node, accountdomain.PlatformOpenAI)
	recent := testNow.Add(-time.Minute)
	require.NoError(t, db.Model(&fresh).Update("last_verified_at", recent).Error)

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Zero(t, syncer.calls)
}

func TestRunOnceRecordsUnknownPlatform(t *testing.T) {
	s, db, _, node := newTestScheduler(t, &fakeSyncer{platform: accountdomain.PlatformOpenAI})

	odd := insertAccount(t, db, node, accountdomain.Platform("bedrock"))

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	var after accountdomain.PlatformAccount
	require.NoError(t, db.First(&after, "id = ?", odd.ID).Error)
	require.NotNil(t, after.ErrorMessage)
	assert.Contains(t, *after.ErrorMessage, "unknown_platform")
}

func TestRunOnceToleratesAlertFailure(t *testing.T) {
	s, db, alertSvc, node := newTestScheduler(t, &fakeSyncer{platform: accountdomain.PlatformOpenAI})
	alertSvc.err = errors.New("alert store down")
	insertAccount(t, db, node, accountdomain.PlatformOpenAI)

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err, "alert check failure never fails the run")
	assert.Equal(t, 1, report.Succeeded)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
