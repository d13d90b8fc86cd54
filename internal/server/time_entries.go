package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	timeentrydomain "github.com/smallbiznis/fieldbooks/internal/timeentry/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
)

func (s *Server) CreateTimeEntry(c *gin.Context) {
	var req timeentrydomain.CreateTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.timeEntrySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, nil)
}

func (s *Server) UpdateTimeEntry(c *gin.Context) {
	var req timeentrydomain.UpdateTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.timeEntrySvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) ListTimeEntries(c *gin.Context) {
	var query struct {
		pagination.Pagination
		PersonID   string `form:"person_id"`
		JobOrderID string `form:"job_order_id"`
		From       string `form:"from"`
		To         string `form:"to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := cachedView(s, c, viewcache.GroupTimeEntries, func(ctx context.Context) (timeentrydomain.ListTimeEntryResponse, error) {
		return s.timeEntrySvc.List(ctx, timeentrydomain.ListTimeEntryRequest{
			Pagination: query.Pagination,
			PersonID:   strings.TrimSpace(query.PersonID),
			JobOrderID: strings.TrimSpace(query.JobOrderID),
			From:       strings.TrimSpace(query.From),
			To:         strings.TrimSpace(query.To),
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, http.StatusOK, resp.TimeEntries, resp.PageInfo)
}

func (s *Server) GetTimeEntry(c *gin.Context) {
	resp, err := s.timeEntrySvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DeleteTimeEntry(c *gin.Context) {
	if err := s.timeEntrySvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RestoreTimeEntry(c *gin.Context) {
	resp, err := s.timeEntrySvc.Restore(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

// WeeklyTimeSummary rolls hours up per person and job order for the week containing ?week=.
func (s *Server) WeeklyTimeSummary(c *gin.Context) {
	req := timeentrydomain.WeeklySummaryRequest{
		Week:       strings.TrimSpace(c.Query("week")),
		PersonID:   strings.TrimSpace(c.Query("person_id")),
		JobOrderID: strings.TrimSpace(c.Query("job_order_id")),
	}

	resp, err := cachedView(s, c, viewcache.GroupTimeSummary, func(ctx context.Context) (timeentrydomain.WeeklySummary, error) {
		return s.timeEntrySvc.WeeklySummary(ctx, req)
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}
