package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
)

func (s *Server) ListSyncMappings(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status     string `form:"status"`
		EntityType string `form:"entity_type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := cachedView(s, c, viewcache.GroupSyncStatus, func(ctx context.Context) (accountingdomain.ListSyncResponse, error) {
		return s.accountingSvc.List(ctx, accountingdomain.ListSyncRequest{
			Pagination: query.Pagination,
			Status:     strings.TrimSpace(query.Status),
			EntityType: strings.TrimSpace(query.EntityType),
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, http.StatusOK, resp.Mappings, resp.PageInfo)
}

func (s *Server) GetSyncStatus(c *gin.Context) {
	entityType := strings.TrimSpace(c.Param("entity_type"))
	entityID := strings.TrimSpace(c.Param("entity_id"))

	resp, err := cachedView(s, c, viewcache.GroupSyncStatus, func(ctx context.Context) (accountingdomain.SyncMapping, error) {
		return s.accountingSvc.Status(ctx, entityType, entityID)
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

// Resync pushes the entity again regardless of its current sync state.
func (s *Server) Resync(c *gin.Context) {
	resp, warnings, err := s.accountingSvc.Resync(
		c.Request.Context(),
		strings.TrimSpace(c.Param("entity_type")),
		strings.TrimSpace(c.Param("entity_id")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, warnings)
}
