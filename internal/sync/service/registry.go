package service

import (
	"strings"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
)

// Registry maps a platform name to its Syncer. Dispatch goes through here
// instead of per-provider conditionals.
type Registry struct {
	syncers map[accountdomain.Platform]syncdomain.Syncer
}

func NewRegistry(syncers ...syncdomain.Syncer) *Registry {
	registry := &Registry{syncers: map[accountdomain.Platform]syncdomain.Syncer{}}
	for _, syncer := range syncers {
		if syncer == nil {
			continue
		}
		registry.syncers[syncer.Platform()] = syncer
	}
	return registry
}

func (r *Registry) Lookup(platform string) (syncdomain.Syncer, error) {
	if r == nil {
		return nil, syncdomain.ErrUnknownPlatform
	}
	key := accountdomain.Platform(strings.ToLower(strings.TrimSpace(platform)))
	syncer, ok := r.syncers[key]
	if !ok {
		return nil, syncdomain.ErrUnknownPlatform
	}
	return syncer, nil
}

func (r *Registry) Platforms() []accountdomain.Platform {
	out := make([]accountdomain.Platform, 0, len(r.syncers))
	for platform := range r.syncers {
		out = append(out, platform)
	}
	return out
}
