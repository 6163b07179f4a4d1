package alert

import (
	"go.uber.org/fx"

	"github.com/haoran127/costix-sub001/internal/alert/service"
)

var Module = fx.Module("alert",
	fx.Provide(service.NewService),
)
