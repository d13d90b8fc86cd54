package joborder

import (
	"github.com/smallbiznis/fieldbooks/internal/joborder/repository"
	"github.com/smallbiznis/fieldbooks/internal/joborder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("joborder.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
