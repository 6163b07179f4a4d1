package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
	"github.com/haoran127/costix-sub001/internal/providers"
	"github.com/haoran127/costix-sub001/internal/providers/volcengine"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
	"github.com/haoran127/costix-sub001/pkg/db"
)

// VolcengineSyncer syncs organization-wide usage. The vendor reports one
// aggregate per organization, so every tracked key receives the same
// monthly/today/balance figures. Local rows are scoped to the caller's
// tenant and matched by vendor key id; unknown vendor keys are created.
type VolcengineSyncer struct {
	core
	adapter *volcengine.Adapter
}

func NewVolcengineSyncer(p SyncerParam, adapter *volcengine.Adapter) *VolcengineSyncer {
	return &VolcengineSyncer{core: newCore(p, "sync.volcengine"), adapter: adapter}
}

func (s *VolcengineSyncer) Platform() accountdomain.Platform { return accountdomain.PlatformVolcengine }

func (s *VolcengineSyncer) Sync(ctx context.Context, req syncdomain.Request) (*syncdomain.Result, error) {
	composite, accountID, err := s.resolver.resolve(ctx, s.Platform(), req)
	if err != nil {
		return nil, err
	}
	cred, err := volcengine.ParseCredential(composite)
	if err != nil {
		return nil, err
	}

	win := providers.WindowAt(s.clock.Now())
	report, err := s.adapter.FetchUsage(ctx, cred, win)
	s.noteVendorCall(s.Platform(), "usage", err)
	if err != nil {
		return nil, err
	}
	if len(report.Entries) == 0 {
		return nil, fmt.Errorf("empty usage report")
	}
	aggregate := report.Entries[0]

	local, err := s.keys.ListByPlatformAndTenant(ctx, s.db, s.Platform(), req.TenantID)
	if err != nil {
		return nil, err
	}
	byVendorID := map[string]*apikeydomain.Key{}
	for i := range local {
		if local[i].PlatformKeyID != nil {
			byVendorID[*local[i].PlatformKeyID] = &local[i]
		}
	}

	result := &syncdomain.Result{Summary: map[string]any{}, Partial: report.Partial}

	descriptors, err := s.adapter.FetchKeys(ctx, cred)
	s.noteVendorCall(s.Platform(), "keys", err)
	if err != nil {
		s.log.Warn("vendor key list failed, syncing tracked keys only", zap.Error(err))
		result.Partial = true
	}
	discovered := 0
	for _, d := range descriptors {
		if _, ok := byVendorID[d.ID]; ok {
			continue
		}
		key, err := s.discoverKey(ctx, d, req.TenantID, accountID)
		if err != nil {
			result.Errors = append(result.Errors, rowError(d.ID, err))
			continue
		}
		byVendorID[d.ID] = key
		discovered++
	}

	var batch []pending
	for _, key := range byVendorID {
		batch = append(batch, pending{
			key:        key,
			identifier: "organization",
			record:     s.buildRecord(key.ID, aggregate, win.Now),
		})
	}

	s.persist(ctx, s.Platform(), batch, result)
	result.Summary["month_tokens"] = aggregate.MonthAmount
	result.Summary["today_tokens"] = aggregate.TodayAmount
	if aggregate.Balance != nil {
		result.Summary["balance"] = *aggregate.Balance
	}
	result.Summary["tracked_keys"] = len(batch)
	result.Summary["discovered_keys"] = discovered
	result.Success = true
	result.Message = "volcengine sync complete"
	return result, nil
}

func (s *VolcengineSyncer) discoverKey(ctx context.Context, d providers.KeyDescriptor, tenantID, accountID *snowflake.ID) (*apikeydomain.Key, error) {
	name := d.Name
	if name == "" {
		name = "volcengine-" + shortHash(d.ID)
	}
	status := apikeydomain.KeyStatusActive
	if d.Disabled {
		status = apikeydomain.KeyStatusInactive
	}
	vendorID := d.ID
	key := &apikeydomain.Key{
		ID:                s.genID.Generate(),
		Name:              name,
		Platform:          s.Platform(),
		PlatformKeyID:     &vendorID,
		Status:            status,
		TenantID:          tenantID,
		PlatformAccountID: accountID,
		CreationMethod:    apikeydomain.CreationMethodSync,
	}
	if err := s.keys.Insert(ctx, s.db, key); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// a concurrent sync discovered it first
			return s.keys.FindByPlatformKeyID(ctx, s.db, s.Platform(), vendorID)
		}
		return nil, err
	}
	s.log.Info("discovered vendor key", zap.String("name", name))
	return key, nil
}

func (s *VolcengineSyncer) Verify(ctx context.Context, account *accountdomain.PlatformAccount) error {
	composite, _, err := s.resolver.resolve(ctx, s.Platform(), syncdomain.Request{PlatformAccountID: &account.ID})
	if err != nil {
		return err
	}
	cred, err := volcengine.ParseCredential(composite)
	if err != nil {
		return err
	}
	err = s.adapter.VerifyCredential(ctx, cred)
	s.noteVendorCall(s.Platform(), "verify", err)
	return err
}
