package service

import (
	"context"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
	"github.com/haoran127/costix-sub001/internal/providers"
	"github.com/haoran127/costix-sub001/internal/providers/anthropic"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
)

// noWorkspaceBucket groups local keys that carry no workspace_id. They always
// receive explicit zero-usage records.
const noWorkspaceBucket = "no_workspace"

// AnthropicSyncer syncs workspace-level cost. Cost buckets match local rows
// by the stored workspace_id column directly, with an even split across the
// keys sharing a workspace. A workspace key with no cost bucket this month
// gets an explicit zero record so stale figures do not survive.
type AnthropicSyncer struct {
	core
	adapter *anthropic.Adapter
}

func NewAnthropicSyncer(p SyncerParam, adapter *anthropic.Adapter) *AnthropicSyncer {
	return &AnthropicSyncer{core: newCore(p, "sync.anthropic"), adapter: adapter}
}

func (s *AnthropicSyncer) Platform() accountdomain.Platform { return accountdomain.PlatformAnthropic }

func (s *AnthropicSyncer) Sync(ctx context.Context, req syncdomain.Request) (*syncdomain.Result, error) {
	adminKey, _, err := s.resolver.resolve(ctx, s.Platform(), req)
	if err != nil {
		return nil, err
	}

	win := providers.WindowAt(s.clock.Now())
	report, err := s.adapter.FetchCosts(ctx, adminKey, win)
	s.noteVendorCall(s.Platform(), "costs", err)
	if err != nil {
		return nil, err
	}

	local, err := s.keys.ListByPlatform(ctx, s.db, s.Platform())
	if err != nil {
		return nil, err
	}
	byWorkspace := map[string][]*apikeydomain.Key{}
	for i := range local {
		bucket := noWorkspaceBucket
		if local[i].WorkspaceID != nil && *local[i].WorkspaceID != "" {
			bucket = *local[i].WorkspaceID
		}
		byWorkspace[bucket] = append(byWorkspace[bucket], &local[i])
	}

	costs := map[string]providers.UsageEntry{}
	for _, entry := range report.Entries {
		costs[entry.Identifier] = entry
	}

	result := &syncdomain.Result{Summary: map[string]any{}, Partial: report.Partial}

	var batch []pending
	var monthTotal float64
	for workspace, members := range byWorkspace {
		entry, ok := costs[workspace]
		if workspace == noWorkspaceBucket || !ok {
			for _, key := range members {
				batch = append(batch, pending{
					key:        key,
					identifier: workspace,
					record:     s.buildRecord(key.ID, providers.UsageEntry{Identifier: workspace}, win.Now),
				})
			}
			continue
		}

		monthShares := syncdomain.EvenSplit(entry.MonthAmount, len(members))
		dayShares := syncdomain.EvenSplit(entry.TodayAmount, len(members))
		totalShares := syncdomain.EvenSplit(entry.TotalAmount, len(members))
		for i, key := range members {
			share := providers.UsageEntry{
				Identifier:  workspace,
				MonthAmount: monthShares[i],
				TodayAmount: dayShares[i],
				TotalAmount: totalShares[i],
				Raw:         entry.Raw,
			}
			batch = append(batch, pending{
				key:        key,
				identifier: workspace,
				record:     s.buildRecord(key.ID, share, win.Now),
			})
		}
	}

	for _, entry := range report.Entries {
		monthTotal += entry.MonthAmount
		bucket := entry.Identifier
		if bucket == "" {
			bucket = noWorkspaceBucket
		}
		if _, ok := byWorkspace[entry.Identifier]; !ok {
			s.noteUnmatched(s.Platform(), result, bucket, entry.MonthAmount)
		}
	}

	s.persist(ctx, s.Platform(), batch, result)
	result.Summary["month_cost"] = monthTotal
	result.Summary["workspaces"] = len(report.Entries)
	result.Summary["local_keys"] = len(local)
	result.Success = true
	result.Message = "anthropic cost sync complete"
	return result, nil
}

func (s *AnthropicSyncer) Verify(ctx context.Context, account *accountdomain.PlatformAccount) error {
	adminKey, _, err := s.resolver.resolve(ctx, s.Platform(), syncdomain.Request{PlatformAccountID: &account.ID})
	if err != nil {
		return err
	}
	err = s.adapter.VerifyCredential(ctx, adminKey)
	s.noteVendorCall(s.Platform(), "verify", err)
	return err
}
