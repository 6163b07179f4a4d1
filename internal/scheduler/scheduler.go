// Package scheduler runs the periodic usage sync across due platform
// accounts: serial processing, fixed stagger between accounts, redis run
// lock so overlapping runs skip instead of racing.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	alertdomain "github.com/haoran127/costix-sub001/internal/alert/domain"
	"github.com/haoran127/costix-sub001/internal/clock"
	obsmetrics "github.com/haoran127/costix-sub001/internal/observability/metrics"
	"github.com/haoran127/costix-sub001/internal/ratelimit"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
	syncservice "github.com/haoran127/costix-sub001/internal/sync/service"
)

const runLockKey = "costix:sync:run"

var ErrInvalidConfig = errors.New("scheduler dependencies incomplete")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Accounts accountdomain.Repository
	Registry *syncservice.Registry
	AlertSvc alertdomain.Service
	Locker   *ratelimit.Locker `optional:"true"`
	Clock    clock.Clock
	Metrics  *obsmetrics.Metrics
	Config   Config `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	accounts accountdomain.Repository
	registry *syncservice.Registry
	alertSvc alertdomain.Service
	locker   *ratelimit.Locker
	clock    clock.Clock
	metrics  *obsmetrics.Metrics
}

// AccountOutcome records one account's result within a run.
type AccountOutcome struct {
	AccountID string `json:"account_id"`
	Platform  string `json:"platform"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// RunReport summarizes one orchestrator run.
type RunReport struct {
	Skipped   bool             `json:"skipped"`
	Processed int              `json:"processed"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Outcomes  []AccountOutcome `json:"outcomes"`
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Accounts == nil || p.Registry == nil || p.AlertSvc == nil || p.Clock == nil || p.Metrics == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		accounts: p.Accounts,
		registry: p.Registry,
		alertSvc: p.AlertSvc,
		locker:   p.Locker,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}, nil
}

// RunOnce performs a full sync pass. Per-account failures are recorded on
// the account and never stop the remaining accounts; only a crash of the
// orchestrator itself surfaces as an error.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	token, locked, err := s.locker.TryLock(ctx, runLockKey, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("run lock unavailable, proceeding unlocked", zap.Error(err))
	} else if !locked {
		s.log.Info("sync run already in progress, skipping")
		return &RunReport{Skipped: true}, nil
	}
	defer func() {
		if releaseErr := s.locker.Release(context.WithoutCancel(ctx), runLockKey, token); releaseErr != nil {
			s.log.Warn("run lock release failed", zap.Error(releaseErr))
		}
	}()

	s.metrics.SyncRuns.Inc()

	cutoff := s.clock.Now().Add(-s.cfg.SyncInterval)
	due, err := s.accounts.ListDueForSync(ctx, s.db, cutoff, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	report := &RunReport{}
	for i, account := range due {
		if i > 0 {
			// backpressure against vendor rate limits, not a perf knob
			if err := s.stagger(ctx); err != nil {
				return report, err
			}
		}
		outcome := s.syncAccount(ctx, &account)
		report.Outcomes = append(report.Outcomes, outcome)
		report.Processed++
		if outcome.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	if _, err := s.alertSvc.Check(ctx); err != nil {
		// best effort: alert-check failure never fails the run
		s.log.Warn("alert check failed", zap.Error(err))
	}

	s.log.Info("sync run complete",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *Scheduler) syncAccount(ctx context.Context, account *accountdomain.PlatformAccount) AccountOutcome {
	outcome := AccountOutcome{
		AccountID: account.ID.String(),
		Platform:  string(account.Platform),
	}
	start := time.Now()

	result, err := s.dispatch(ctx, account)
	s.metrics.SyncDuration.WithLabelValues(string(account.Platform)).Observe(time.Since(start).Seconds())

	now := s.clock.Now()
	var errMessage *string
	if err != nil {
		message := err.Error()
		errMessage = &message
		outcome.Message = message
		s.metrics.AccountsSynced.WithLabelValues(string(account.Platform), "error").Inc()
		s.log.Warn("account sync failed",
			zap.String("account_id", outcome.AccountID),
			zap.String("platform", outcome.Platform),
			zap.Error(err),
		)
	} else {
		outcome.Success = true
		outcome.Message = result.Message
		s.metrics.AccountsSynced.WithLabelValues(string(account.Platform), "success").Inc()
	}

	// verified stamp and error message are written regardless of outcome
	if markErr := s.accounts.MarkVerified(ctx, s.db, account.ID, now, errMessage); markErr != nil {
		s.log.Warn("mark verified failed",
			zap.String("account_id", outcome.AccountID),
			zap.Error(markErr),
		)
	}
	return outcome
}

func (s *Scheduler) dispatch(ctx context.Context, account *accountdomain.PlatformAccount) (*syncdomain.Result, error) {
	syncer, err := s.registry.Lookup(string(account.Platform))
	if err != nil {
		return nil, err
	}
	accountID := account.ID
	req := syncdomain.Request{
		PlatformAccountID: &accountID,
		TenantID:          account.TenantID,
	}
	return syncer.Sync(ctx, req)
}

func (s *Scheduler) stagger(ctx context.Context) error {
	if s.cfg.StaggerDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.cfg.StaggerDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunForever loops RunOnce on the configured interval until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
