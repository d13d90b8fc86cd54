package vendorbill

import (
	"github.com/smallbiznis/fieldbooks/internal/vendorbill/repository"
	"github.com/smallbiznis/fieldbooks/internal/vendorbill/service"
	"go.uber.org/fx"
)

var Module = fx.Module("vendorbill.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
