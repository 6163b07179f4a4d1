package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/haoran127/costix-sub001/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WriterParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type writer struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func ProvideWriter(p WriterParam) usagedomain.Writer {
	return &writer{
		db:    p.DB,
		log:   p.Log.Named("usage.writer"),
		genID: p.GenID,
	}
}

// SaveAll upserts each record on (api_key_id, period_start). The unique index
// plus ON CONFLICT replaces the racy read-then-write a naive implementation
// would need; overlapping sync runs settle on the last write.
func (w *writer) SaveAll(ctx context.Context, records []usagedomain.Record) usagedomain.WriteSummary {
	summary := usagedomain.WriteSummary{}

	for i := range records {
		record := records[i]
		if record.ID == 0 {
			record.ID = w.genID.Generate()
		}

		err := w.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "api_key_id"}, {Name: "period_start"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"total_usage",
					"monthly_usage",
					"daily_usage",
					"balance",
					"credit_limit",
					"synced_at",
					"sync_status",
					"raw_response",
				}),
			}).
			Create(&record).Error
		if err != nil {
			w.log.Warn("usage row write failed",
				zap.String("api_key_id", record.APIKeyID.String()),
				zap.Error(err),
			)
			summary.Errors = append(summary.Errors, usagedomain.RowError{
				APIKeyID: record.APIKeyID.String(),
				Error:    err.Error(),
			})
			continue
		}
		summary.SavedCount++
	}

	return summary
}
