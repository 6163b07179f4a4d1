package usage

import (
	"github.com/haoran127/costix-sub001/internal/usage/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("usage",
	fx.Provide(repository.ProvideWriter),
)
