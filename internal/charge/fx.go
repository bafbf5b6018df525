package charge

import (
	"github.com/smallbiznis/flightclub/internal/charge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("charge.service",
	fx.Provide(service.NewService),
)
