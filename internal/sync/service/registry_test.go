package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	syncdomain "github.com/haoran127/costix-sub001/internal/sync/domain"
)

type stubSyncer struct {
	platform accountdomain.Platform
}

func (s *stubSyncer) Platform() accountdomain.Platform { return s.platform }

func (s *stubSyncer) Sync(ctx context.Context, req syncdomain.Request) (*syncdomain.Result, error) {
	return &syncdomain.Result{Success: true}, nil
}

func TestRegistryLookupNormalizesPlatformName(t *testing.T) {
	openai := &stubSyncer{platform: accountdomain.PlatformOpenAI}
	registry := NewRegistry(openai, &stubSyncer{platform: accountdomain.PlatformAnthropic})

	for _, name := range []string{"openai", "OpenAI", "  openai  ", "OPENAI"} {
		syncer, err := registry.Lookup(name)
		require.NoError(t, err, "lookup %q", name)
		assert.Same(t, openai, syncer)
	}
}

func TestRegistryLookupUnknownPlatform(t *testing.T) {
	registry := NewRegistry(&stubSyncer{platform: accountdomain.PlatformOpenAI})

	_, err := registry.Lookup("bedrock")
	assert.ErrorIs(t, err, syncdomain.ErrUnknownPlatform)
}

func TestRegistrySkipsNilSyncers(t *testing.T) {
	registry := NewRegistry(nil, &stubSyncer{platform: accountdomain.PlatformOpenRouter})
	assert.Len(t, registry.Platforms(), 1)
}
