// Package supplier manages vendor records. The go tool reserves "vendor" as a path element.
package supplier

import (
	"github.com/smallbiznis/fieldbooks/internal/supplier/repository"
	"github.com/smallbiznis/fieldbooks/internal/supplier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("vendor.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
