package owner

import (
	"github.com/smallbiznis/flightclub/internal/owner/repository"
	"github.com/smallbiznis/flightclub/internal/owner/service"
	"go.uber.org/fx"
)

var Module = fx.Module("owner.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
