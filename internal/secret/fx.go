package secret

import (
	"go.uber.org/fx"

	"github.com/haoran127/costix-sub001/internal/config"
)

var Module = fx.Module("secret",
	fx.Provide(func(cfg config.Config) (*Box, error) {
		return NewBox(cfg.CredentialSealKey)
	}),
)
