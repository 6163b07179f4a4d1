package service

import (
	"context"
	"fmt"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	apikeydomain "github.com/haoran127/costix-sub001/internal/apikey/domain"
	"github.com/haoran127/costix-sub001/internal/providers"
	"github.com/haoran127/costix-sub001/internal/providers/openai"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
)

// OpenAISyncer syncs token usage (grouped by vendor key id) or project-level
// cost. Vendor key ids never match local rows directly: the key-list call
// supplies an id-to-name map and local rows are matched by exact name.
type OpenAISyncer struct {
	core
	adapter *openai.Adapter
}

func NewOpenAISyncer(p SyncerParam, adapter *openai.Adapter) *OpenAISyncer {
	return &OpenAISyncer{core: newCore(p, "sync.openai"), adapter: adapter}
}

func (s *OpenAISyncer) Platform() accountdomain.Platform { return accountdomain.PlatformOpenAI }

func (s *OpenAISyncer) Sync(ctx context.Context, req syncdomain.Request) (*syncdomain.Result, error) {
	adminKey, _, err := s.resolver.resolve(ctx, s.Platform(), req)
	if err != nil {
		return nil, err
	}

	descriptors, err := s.adapter.FetchKeys(ctx, adminKey)
	s.noteVendorCall(s.Platform(), "keys", err)
	if err != nil {
		return nil, fmt.Errorf("list vendor keys: %w", err)
	}

	mode := req.Mode
	if mode == "" {
		mode = syncdomain.ModeUsage
	}

	win := providers.WindowAt(s.clock.Now())
	result := &syncdomain.Result{Summary: map[string]any{"mode": string(mode)}}

	switch mode {
	case syncdomain.ModeCost:
		err = s.syncCost(ctx, adminKey, descriptors, win, result)
	default:
		err = s.syncUsage(ctx, adminKey, descriptors, win, result)
	}
	if err != nil {
		return nil, err
	}

	result.Success = true
	result.Message = fmt.Sprintf("openai %s sync complete", mode)
	return result, nil
}

// syncUsage matches vendor usage buckets (keyed by api_key_id) to local rows
// through the id-to-name map. Usage for ids or names with no local row lands
// in the unmatched aggregate.
func (s *OpenAISyncer) syncUsage(ctx context.Context, adminKey string, descriptors []providers.KeyDescriptor, win providers.Window, result *syncdomain.Result) error {
	report, err := s.adapter.FetchUsage(ctx, adminKey, win)
	s.noteVendorCall(s.Platform(), "usage", err)
	if err != nil {
		return err
	}
	result.Partial = report.Partial

	idToName := make(map[string]string, len(descriptors))
	for _, d := range descriptors {
		idToName[d.ID] = d.Name
	}

	var names []string
	for _, entry := range report.Entries {
		if name := idToName[entry.Identifier]; name != "" {
			names = append(names, name)
		}
	}
	byName, err := s.localKeysByName(ctx, names)
	if err != nil {
		return err
	}

	var batch []pending
	var monthTotal, dayTotal float64
	for _, entry := range report.Entries {
		monthTotal += entry.MonthAmount
		dayTotal += entry.TodayAmount

		name := idToName[entry.Identifier]
		if name == "" {
			s.noteUnmatched(s.Platform(), result, entry.Identifier, entry.MonthAmount)
			continue
		}
		key := byName[name]
		if key == nil {
			s.noteUnmatched(s.Platform(), result, name, entry.MonthAmount)
			continue
		}
		batch = append(batch, pending{
			key:        key,
			identifier: entry.Identifier,
			record:     s.buildRecord(key.ID, entry, win.Now),
		})
	}

	s.persist(ctx, s.Platform(), batch, result)
	result.Summary["month_tokens"] = monthTotal
	result.Summary["today_tokens"] = dayTotal
	result.Summary["vendor_keys"] = len(descriptors)
	return nil
}

// syncCost divides each project's cost evenly across that project's vendor
// keys, then matches each share to a local row by name. The split is uniform,
// not usage-weighted.
func (s *OpenAISyncer) syncCost(ctx context.Context, adminKey string, descriptors []providers.KeyDescriptor, win providers.Window, result *syncdomain.Result) error {
	report, err := s.adapter.FetchCosts(ctx, adminKey, win)
	s.noteVendorCall(s.Platform(), "costs", err)
	if err != nil {
		return err
	}
	result.Partial = report.Partial

	projectKeys := map[string][]providers.KeyDescriptor{}
	var names []string
	for _, d := range descriptors {
		projectKeys[d.ProjectID] = append(projectKeys[d.ProjectID], d)
		names = append(names, d.Name)
	}
	byName, err := s.localKeysByName(ctx, names)
	if err != nil {
		return err
	}

	var batch []pending
	var monthTotal float64
	for _, entry := range report.Entries {
		monthTotal += entry.MonthAmount

		members := projectKeys[entry.Identifier]
		if len(members) == 0 {
			s.noteUnmatched(s.Platform(), result, entry.Identifier, entry.MonthAmount)
			continue
		}

		monthShares := syncdomain.EvenSplit(entry.MonthAmount, len(members))
		dayShares := syncdomain.EvenSplit(entry.TodayAmount, len(members))
		totalShares := syncdomain.EvenSplit(entry.TotalAmount, len(members))
		for i, member := range members {
			key := byName[member.Name]
			if key == nil {
				s.noteUnmatched(s.Platform(), result, member.Name, monthShares[i])
				continue
			}
			share := providers.UsageEntry{
				Identifier:  entry.Identifier,
				MonthAmount: monthShares[i],
				TodayAmount: dayShares[i],
				TotalAmount: totalShares[i],
				Raw:         entry.Raw,
			}
			batch = append(batch, pending{
				key:        key,
				identifier: entry.Identifier,
				record:     s.buildRecord(key.ID, share, win.Now),
			})
		}
	}

	s.persist(ctx, s.Platform(), batch, result)
	result.Summary["month_cost"] = monthTotal
	result.Summary["projects"] = len(report.Entries)
	return nil
}

func (s *OpenAISyncer) localKeysByName(ctx context.Context, names []string) (map[string]*apikeydomain.Key, error) {
	byName := map[string]*apikeydomain.Key{}
	if len(names) == 0 {
		return byName, nil
	}
	keys, err := s.keys.FindByPlatformAndNames(ctx, s.db, s.Platform(), names)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		byName[keys[i].Name] = &keys[i]
	}
	return byName, nil
}

func (s *OpenAISyncer) Verify(ctx context.Context, account *accountdomain.PlatformAccount) error {
	adminKey, _, err := s.resolver.resolve(ctx, s.Platform(), syncdomain.Request{PlatformAccountID: &account.ID})
	if err != nil {
		return err
	}
	err = s.adapter.VerifyCredential(ctx, adminKey)
	s.noteVendorCall(s.Platform(), "verify", err)
	return err
}
