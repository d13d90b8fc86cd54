package viewcache

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("viewcache",
	fx.Provide(newStore),
	fx.Provide(newCache),
	fx.Provide(NewInvalidator),
	fx.Provide(func(i *Invalidator) Publisher { return i }),
)

type storeParams struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Clock  clock.Clock
	Log    *zap.Logger
}

func newStore(p storeParams) Store {
	if p.Client == nil {
		p.Log.Info("view cache using in-memory store")
		return NewMemoryStore(p.Clock)
	}
	return NewRedisStore(p.Client)
}

func newCache(store Store, cfg config.Config, log *zap.Logger) *Cache {
	return New(store, cfg.Redis.ViewTTL, log)
}
