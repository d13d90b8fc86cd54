package personnel

import (
	"github.com/smallbiznis/fieldbooks/internal/personnel/repository"
	"github.com/smallbiznis/fieldbooks/internal/personnel/service"
	"go.uber.org/fx"
)

var Module = fx.Module("personnel.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
