package sync

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/haoran127/costix-sub001/internal/config"
	"github.com/haoran127/costix-sub001/internal/providers/anthropic"
	"github.com/haoran127/costix-sub001/internal/providers/openai"
	"github.com/haoran127/costix-sub001/internal/providers/openrouter"
	"github.com/haoran127/costix-sub001/internal/providers/volcengine"
	"github.com/haoran127/costix-sub001/internal/sync/service"
)

var Module = fx.Module("sync",
	fx.Provide(
		func(cfg config.Config, log *zap.Logger) *openai.Adapter {
			return openai.New(openai.Config{Log: log.Named("providers.openai"), PageCap: cfg.Sync.PageCap})
		},
		func(cfg config.Config, log *zap.Logger) *anthropic.Adapter {
			return anthropic.New(anthropic.Config{Log: log.Named("providers.anthropic"), PageCap: cfg.Sync.PageCap})
		},
		func(cfg config.Config, log *zap.Logger) *openrouter.Adapter {
			return openrouter.New(openrouter.Config{Log: log.Named("providers.openrouter"), PageCap: cfg.Sync.PageCap})
		},
		func(log *zap.Logger) *volcengine.Adapter {
			return volcengine.New(volcengine.Config{Log: log.Named("providers.volcengine")})
		},
	),
	fx.Provide(
		service.NewOpenAISyncer,
		service.NewAnthropicSyncer,
		service.NewOpenRouterSyncer,
		service.NewVolcengineSyncer,
		func(
			openaiSyncer *service.OpenAISyncer,
			anthropicSyncer *service.AnthropicSyncer,
			openrouterSyncer *service.OpenRouterSyncer,
			volcengineSyncer *service.VolcengineSyncer,
		) *service.Registry {
			return service.NewRegistry(openaiSyncer, anthropicSyncer, openrouterSyncer, volcengineSyncer)
		},
	),
)
