package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
	"github.com/haoran127/costix-sub001/internal/providers"
	"github.com/haoran127/costix-sub001/internal/providers/openrouter"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
	"github.com/haoran127/costix-sub001/pkg/db"
)

// OpenRouterSyncer syncs per-key usage reported directly by the vendor. Each
// vendor key matches a local row by key hash (stored in platform_key_id);
// vendor keys with no local row are created on the spot. Balance is always
// null for key rows; the account-level credit figure goes in the summary.
type OpenRouterSyncer struct {
	core
	adapter *openrouter.Adapter
}

func NewOpenRouterSyncer(p SyncerParam, adapter *openrouter.Adapter) *OpenRouterSyncer {
	return &OpenRouterSyncer{core: newCore(p, "sync.openrouter"), adapter: adapter}
}

func (s *OpenRouterSyncer) Platform() accountdomain.Platform { return accountdomain.PlatformOpenRouter }

func (s *OpenRouterSyncer) Sync(ctx context.Context, req syncdomain.Request) (*syncdomain.Result, error) {
	adminKey, accountID, err := s.resolver.resolve(ctx, s.Platform(), req)
	if err != nil {
		return nil, err
	}

	descriptors, err := s.adapter.FetchKeys(ctx, adminKey)
	s.noteVendorCall(s.Platform(), "keys", err)
	if err != nil {
		return nil, fmt.Errorf("list vendor keys: %w", err)
	}

	win := providers.WindowAt(s.clock.Now())
	result := &syncdomain.Result{Summary: map[string]any{}}

	var batch []pending
	var usageTotal float64
	discovered := 0
	for _, d := range descriptors {
		usageTotal += d.Usage

		key, err := s.keys.FindByPlatformKeyID(ctx, s.db, s.Platform(), d.Hash)
		if err != nil {
			result.Errors = append(result.Errors, rowError(d.Hash, err))
			continue
		}
		if key == nil {
			key, err = s.discoverKey(ctx, d, req, accountID)
			if err != nil {
				result.Errors = append(result.Errors, rowError(d.Hash, err))
				continue
			}
			discovered++
		}

		entry := providers.UsageEntry{
			Identifier:  d.Hash,
			MonthAmount: d.Usage,
			TotalAmount: d.Usage,
			CreditLimit: d.Limit,
			Raw:         d.Raw,
		}
		batch = append(batch, pending{
			key:        key,
			identifier: d.Hash,
			record:     s.buildRecord(key.ID, entry, win.Now),
		})
	}

	s.persist(ctx, s.Platform(), batch, result)
	result.Summary["vendor_keys"] = len(descriptors)
	result.Summary["discovered_keys"] = discovered
	result.Summary["total_usage"] = usageTotal

	if credits, err := s.adapter.FetchCredits(ctx, adminKey); err != nil {
		s.noteVendorCall(s.Platform(), "credits", err)
		s.log.Warn("credit balance fetch failed", zap.Error(err))
		result.Partial = true
	} else {
		s.noteVendorCall(s.Platform(), "credits", nil)
		result.Summary["total_credits"] = credits.TotalCredits
		result.Summary["credits_used"] = credits.TotalUsage
	}

	result.Success = true
	result.Message = "openrouter sync complete"
	return result, nil
}

// discoverKey creates a local row for a vendor key seen for the first time.
func (s *OpenRouterSyncer) discoverKey(ctx context.Context, d providers.KeyDescriptor, req syncdomain.Request, accountID *snowflake.ID) (*apikeydomain.Key, error) {
	name := d.Name
	if name == "" {
		name = "openrouter-" + shortHash(d.Hash)
	}
	status := apikeydomain.KeyStatusActive
	if d.Disabled {
		status = apikeydomain.KeyStatusInactive
	}
	hash := d.Hash
	key := &apikeydomain.Key{
		ID:                s.genID.Generate(),
		Name:              name,
		Platform:          s.Platform(),
		PlatformKeyID:     &hash,
		Status:            status,
		TenantID:          req.TenantID,
		PlatformAccountID: accountID,
		CreationMethod:    apikeydomain.CreationMethodSync,
	}
	if err := s.keys.Insert(ctx, s.db, key); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// a concurrent sync discovered it first
			return s.keys.FindByPlatformKeyID(ctx, s.db, s.Platform(), hash)
		}
		return nil, err
	}
	s.log.Info("discovered vendor key",
		zap.String("name", name),
		zap.String("hash", shortHash(d.Hash)),
	)
	return key, nil
}

func (s *OpenRouterSyncer) Verify(ctx context.Context, account *accountdomain.PlatformAccount) error {
	adminKey, _, err := s.resolver.resolve(ctx, s.Platform(), syncdomain.Request{PlatformAccountID: &account.ID})
	if err != nil {
		return err
	}
	err = s.adapter.VerifyCredential(ctx, adminKey)
	s.noteVendorCall(s.Platform(), "verify", err)
	return err
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
