package orgcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// OrgContextKey is the request context key for the active organization ID.
type OrgContextKey struct{}

type actorKey struct{}

// Actor identifies who performs a request.
type Actor struct {
	ID       string
	Role     string
	VendorID *snowflake.ID
}

// WithOrgID stores the org ID in the context.
func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	return context.WithValue(ctx, OrgContextKey{}, orgID)
}

// OrgIDFromContext returns the org ID from context, if set.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	switch typed := ctx.Value(OrgContextKey{}).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil && parsed != 0 {
			return parsed, true
		}
	}
	return 0, false
}

// WithActor stores the acting principal in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting principal, if set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// ActorID returns the actor id or "system" when the context carries no actor.
func ActorID(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.ID != "" {
		return actor.ID
	}
	return "system"
}

// VendorScope returns the vendor a portal actor is confined to. Staff actors are unscoped.
func VendorScope(ctx context.Context) (snowflake.ID, bool) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.VendorID == nil || *actor.VendorID == 0 {
		return 0, false
	}
	return *actor.VendorID, true
}
