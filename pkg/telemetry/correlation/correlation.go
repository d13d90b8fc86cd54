// Package correlation ties together the log lines, spans and sync attempts that belong to
// one request or one background job run.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Header carries a caller-supplied correlation id.
const Header = "X-Correlation-Id"

const maxLen = 128

type correlationKey struct{}

func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID stores id on ctx. Blank or oversized ids are ignored.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxLen {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID keeps an existing id or generates a ULID.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if cid := ExtractCorrelationID(ctx); cid != "" {
		return ctx, cid
	}
	cid := ulid.Make().String()
	return context.WithValue(ctx, correlationKey{}, cid), cid
}

// ForJob starts a correlation scope for a scheduler run, e.g. "job:accounting_sync_retry:01J...".
// Manual runs triggered over HTTP keep the request's id.
func ForJob(ctx context.Context, job string) (context.Context, string) {
	if cid := ExtractCorrelationID(ctx); cid != "" {
		return ctx, cid
	}
	cid := "job:" + job + ":" + ulid.Make().String()
	return context.WithValue(ctx, correlationKey{}, cid), cid
}
