package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	joborderdomain "github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
)

func (s *Server) CreateJobOrder(c *gin.Context) {
	var req joborderdomain.CreateJobOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.jobOrderSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, nil)
}

func (s *Server) UpdateJobOrder(c *gin.Context) {
	var req joborderdomain.UpdateJobOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.jobOrderSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) TransitionJobOrder(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	to := joborderdomain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	resp, err := s.jobOrderSvc.Transition(c.Request.Context(), strings.TrimSpace(c.Param("id")), to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) ListJobOrders(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status     string `form:"status"`
		CustomerID string `form:"customer_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := cachedView(s, c, viewcache.GroupJobOrders, func(ctx context.Context) (joborderdomain.ListJobOrderResponse, error) {
		return s.jobOrderSvc.List(ctx, joborderdomain.ListJobOrderRequest{
			Pagination: query.Pagination,
			Status:     strings.TrimSpace(query.Status),
			CustomerID: strings.TrimSpace(query.CustomerID),
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, http.StatusOK, resp.JobOrders, resp.PageInfo)
}

func (s *Server) GetJobOrder(c *gin.Context) {
	resp, err := s.jobOrderSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DeleteJobOrder(c *gin.Context) {
	if err := s.jobOrderSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RestoreJobOrder(c *gin.Context) {
	resp, err := s.jobOrderSvc.Restore(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) JobOrderSummary(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := cachedView(s, c, viewcache.GroupJobOrderSummary, func(ctx context.Context) (joborderdomain.Summary, error) {
		return s.jobOrderSvc.Summary(ctx, id)
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

// -------- Change orders --------

func (s *Server) CreateChangeOrder(c *gin.Context) {
	var req joborderdomain.CreateChangeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.jobOrderSvc.CreateChangeOrder(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, nil)
}

func (s *Server) ListChangeOrders(c *gin.Context) {
	jobOrderID := strings.TrimSpace(c.Param("id"))
	resp, err := cachedView(s, c, viewcache.GroupChangeOrders, func(ctx context.Context) ([]joborderdomain.ChangeOrder, error) {
		return s.jobOrderSvc.ListChangeOrders(ctx, jobOrderID)
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) GetChangeOrder(c *gin.Context) {
	resp, err := s.jobOrderSvc.GetChangeOrder(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) UpdateChangeOrder(c *gin.Context) {
	var req joborderdomain.UpdateChangeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.jobOrderSvc.UpdateChangeOrder(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DecideChangeOrder(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	to := joborderdomain.ChangeOrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	resp, err := s.jobOrderSvc.DecideChangeOrder(c.Request.Context(), strings.TrimSpace(c.Param("id")), to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DeleteChangeOrder(c *gin.Context) {
	if err := s.jobOrderSvc.DeleteChangeOrder(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
