package apikey

import (
	"github.com/haoran127/costix-sub001/internal/apikey/repository"
	"github.com/haoran127/costix-sub001/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
