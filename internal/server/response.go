package server

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
)

// respond writes {"data": ...} and, when a sync reported problems, the warnings next to it.
func respond(c *gin.Context, status int, data any, warnings []string) {
	body := gin.H{"data": data}
	if len(warnings) > 0 {
		body["warnings"] = warnings
		c.Set("sync_warnings", len(warnings))
	}
	c.JSON(status, body)
}

func respondPage(c *gin.Context, status int, data any, page pagination.PageInfo) {
	c.JSON(status, gin.H{"data": data, "page_info": page})
}

// cachedView serves a read through the view cache. The key covers the path, the query and
// the vendor scope, so portal users never see each other's views.
func cachedView[T any](s *Server, c *gin.Context, group viewcache.Group, load func(context.Context) (T, error)) (T, error) {
	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if s.views == nil || !ok {
		return load(ctx)
	}

	parts := []string{c.Request.URL.Path, c.Request.URL.Query().Encode()}
	if vendorID, scoped := orgcontext.VendorScope(ctx); scoped {
		parts = append(parts, "vendor:"+vendorID.String())
	}

	var out T
	err := s.views.Fetch(ctx, orgID, group, parts, &out, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	return out, err
}
