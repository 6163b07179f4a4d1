package account

import (
	"github.com/haoran127/costix-sub001/internal/account/repository"
	"github.com/haoran127/costix-sub001/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
