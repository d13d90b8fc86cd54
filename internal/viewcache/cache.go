package viewcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

const keyPrefix = "fieldbooks:view"

// Cache is a read-through cache for JSON views, partitioned by org and view group.
type Cache struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
}

func New(store Store, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{store: store, ttl: ttl, log: log.Named("viewcache")}
}

func versionKey(orgID snowflake.ID, group Group) string {
	return fmt.Sprintf("%s:%s:%s:version", keyPrefix, orgID.String(), group)
}

func (c *Cache) key(ctx context.Context, orgID snowflake.ID, group Group, parts []string) (string, error) {
	version, err := c.store.Version(ctx, versionKey(orgID, group))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%s:v%d:%s", keyPrefix, orgID.String(), group, version, strings.Join(parts, ":")), nil
}

// Fetch decodes the cached view into dst, or calls load, stores its result and decodes that.
// Store failures degrade to calling load; they are never returned.
func (c *Cache) Fetch(ctx context.Context, orgID snowflake.ID, group Group, parts []string, dst any, load func(context.Context) (any, error)) error {
	key, err := c.key(ctx, orgID, group, parts)
	if err != nil {
		c.log.Warn("view version lookup failed", zap.String("group", string(group)), zap.Error(err))
		return fill(ctx, dst, load)
	}

	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		c.log.Warn("view read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		if err := json.Unmarshal(raw, dst); err == nil {
			return nil
		}
	}

	value, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("view write failed", zap.String("key", key), zap.Error(err))
	}
	return json.Unmarshal(raw, dst)
}

// Invalidate bumps the version of each group so later reads miss.
func (c *Cache) Invalidate(ctx context.Context, orgID snowflake.ID, groups ...Group) error {
	for _, group := range groups {
		if err := c.store.Bump(ctx, versionKey(orgID, group)); err != nil {
			return fmt.Errorf("bump %s: %w", group, err)
		}
	}
	return nil
}

func fill(ctx context.Context, dst any, load func(context.Context) (any, error)) error {
	value, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
