package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
	"github.com/haoran127/costix-sub001/internal/clock"
	"github.com/haoran127/costix-sub001/internal/observability/metrics"
	"github.com/haoran127/costix-sub001/internal/providers"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
	usagedomain "github.com/haoran127/costix-sub001/internal/usage/domain"
)

// SyncerParam groups the dependencies shared by every provider syncer.
type SyncerParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Keys     apikeydomain.Repository
	Writer   usagedomain.Writer
	Accounts accountdomain.Service
	Metrics  *metrics.Metrics
}

type core struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	keys     apikeydomain.Repository
	writer   usagedomain.Writer
	resolver credentialResolver
	metrics  *metrics.Metrics
}

func newCore(p SyncerParam, name string) core {
	return core{
		db:       p.DB,
		log:      p.Log.Named(name),
		genID:    p.GenID,
		clock:    p.Clock,
		keys:     p.Keys,
		writer:   p.Writer,
		resolver: credentialResolver{accounts: p.Accounts},
		metrics:  p.Metrics,
	}
}

// pending is one matched key plus the figures about to be persisted for it.
type pending struct {
	key        *apikeydomain.Key
	identifier string
	record     usagedomain.Record
}

func (c *core) buildRecord(keyID snowflake.ID, entry providers.UsageEntry, now time.Time) usagedomain.Record {
	return usagedomain.Record{
		ID:           c.genID.Generate(),
		APIKeyID:     keyID,
		PeriodStart:  usagedomain.PeriodStartFor(now),
		TotalUsage:   entry.TotalAmount,
		MonthlyUsage: entry.MonthAmount,
		DailyUsage:   entry.TodayAmount,
		Balance:      entry.Balance,
		CreditLimit:  entry.CreditLimit,
		SyncedAt:     now,
		SyncStatus:   usagedomain.SyncStatusSuccess,
		RawResponse:  datatypes.JSON(entry.Raw),
	}
}

// persist writes the pending records, touches last_synced_at on the keys
// whose rows saved, and fills the shared parts of the result.
func (c *core) persist(ctx context.Context, platform accountdomain.Platform, batch []pending, result *syncdomain.Result) {
	if len(batch) == 0 {
		return
	}
	now := c.clock.Now()

	records := make([]usagedomain.Record, 0, len(batch))
	for _, p := range batch {
		records = append(records, p.record)
	}
	summary := c.writer.SaveAll(ctx, records)

	failed := map[string]bool{}
	for _, rowErr := range summary.Errors {
		failed[rowErr.APIKeyID] = true
	}

	var touched []snowflake.ID
	for _, p := range batch {
		if failed[p.key.ID.String()] {
			continue
		}
		touched = append(touched, p.key.ID)
		result.MatchedKeys = append(result.MatchedKeys, syncdomain.MatchedKey{
			APIKeyID:   p.key.ID.String(),
			Name:       p.key.Name,
			Identifier: p.identifier,
			Monthly:    p.record.MonthlyUsage,
			Daily:      p.record.DailyUsage,
		})
	}
	if len(touched) > 0 {
		if err := c.keys.TouchLastSynced(ctx, c.db, touched, now); err != nil {
			c.log.Warn("touch last_synced_at failed", zap.Error(err))
		}
	}

	result.SavedCount += summary.SavedCount
	result.Errors = append(result.Errors, summary.Errors...)

	c.metrics.UsageRowsSaved.WithLabelValues(string(platform)).Add(float64(summary.SavedCount))
	c.metrics.UsageRowErrors.WithLabelValues(string(platform)).Add(float64(len(summary.Errors)))
}

// noteVendorCall records one vendor API operation and, when err is set, its
// failure. Rate-limit rejections still count as calls.
func (c *core) noteVendorCall(platform accountdomain.Platform, endpoint string, err error) {
	c.metrics.VendorAPICalls.WithLabelValues(string(platform), endpoint).Inc()
	if err != nil {
		c.metrics.VendorAPIErrors.WithLabelValues(string(platform), endpoint).Inc()
	}
}

func rowError(identifier string, err error) usagedomain.RowError {
	return usagedomain.RowError{APIKeyID: identifier, Error: err.Error()}
}

func (c *core) noteUnmatched(platform accountdomain.Platform, result *syncdomain.Result, identifier string, amount float64) {
	if result.Unmatched == nil {
		result.Unmatched = map[string]float64{}
	}
	result.Unmatched[identifier] += amount
	c.metrics.UnmatchedUsage.WithLabelValues(string(platform)).Inc()
}
