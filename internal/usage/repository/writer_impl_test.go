package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	usagedomain "github.com/haoran127/costix-sub001/internal/usage/domain"
)

func newTestWriter(t *testing.T) (usagedomain.Writer, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&usagedomain.Record{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	w := ProvideWriter(WriterParam{DB: db, Log: zap.NewNop(), GenID: node})
	return w, db
}

func TestSaveAllUpsertsOnKeyAndPeriod(t *testing.T) {
	w, db := newTestWriter(t)
	ctx := context.Background()

	keyID := snowflake.ID(1001)
	period := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	first := w.SaveAll(ctx, []usagedomain.Record{{
		APIKeyID:     keyID,
		PeriodStart:  period,
		TotalUsage:   100,
		MonthlyUsage: 100,
		DailyUsage:   10,
		SyncedAt:     time.Now().UTC(),
		SyncStatus:   usagedomain.SyncStatusSuccess,
	}})
	require.Equal(t, 1, first.SavedCount)
	require.Empty(t, first.Errors)

	second := w.SaveAll(ctx, []usagedomain.Record{{
		APIKeyID:     keyID,
		PeriodStart:  period,
		TotalUsage:   250,
		MonthlyUsage: 250,
		DailyUsage:   25,
		SyncedAt:     time.Now().UTC(),
		SyncStatus:   usagedomain.SyncStatusSuccess,
	}})
	require.Equal(t, 1, second.SavedCount)

	var count int64
	require.NoError(t, db.Model(&usagedomain.Record{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "same key and period must stay one row")

	var row usagedomain.Record
	require.NoError(t, db.Where("api_key_id = ?", keyID).First(&row).Error)
	assert.Equal(t, float64(250), row.MonthlyUsage)
	assert.Equal(t, float64(25), row.DailyUsage)
}

func TestSaveAllKeepsDistinctPeriodsApart(t *testing.T) {
	w, db := newTestWriter(t)
	ctx := context.Background()

	keyID := snowflake.ID(1001)
	may := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	june := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	summary := w.SaveAll(ctx, []usagedomain.Record{
		{APIKeyID: keyID, PeriodStart: may, MonthlyUsage: 100, SyncedAt: time.Now().UTC(), SyncStatus: usagedomain.SyncStatusSuccess},
		{APIKeyID: keyID, PeriodStart: june, MonthlyUsage: 40, SyncedAt: time.Now().UTC(), SyncStatus: usagedomain.SyncStatusSuccess},
	})
	require.Equal(t, 2, summary.SavedCount)

	var count int64
	require.NoError(t, db.Model(&usagedomain.Record{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSaveAllCollectsRowFailures(t *testing.T) {
	w, db := newTestWriter(t)
	ctx := context.Background()

	// Dropping the table makes every write fail without touching the writer.
	require.NoError(t, db.Migrator().DropTable(&usagedomain.Record{}))

	summary := w.SaveAll(ctx, []usagedomain.Record{
		{APIKeyID: snowflake.ID(1), PeriodStart: time.Now().UTC()},
		{APIKeyID: snowflake.ID(2), PeriodStart: time.Now().UTC()},
	})
	assert.Equal(t, 0, summary.SavedCount)
	require.Len(t, summary.Errors, 2)
	assert.Equal(t, snowflake.ID(1).String(), summary.Errors[0].APIKeyID)
}

func TestPeriodStartFor(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	got := usagedomain.PeriodStartFor(time.Date(2026, 6, 1, 3, 0, 0, 0, loc)) // 2026-05-31 19:00 UTC
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), got)
}
