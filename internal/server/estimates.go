package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	estimatedomain "github.com/smallbiznis/fieldbooks/internal/estimate/domain"
	invoicedomain "github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
)

type transitionRequest struct {
	Status string `json:"status"`
}

func (s *Server) CreateEstimate(c *gin.Context) {
	var req estimatedomain.CreateEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.estimateSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, nil)
}

func (s *Server) UpdateEstimate(c *gin.Context) {
	var req estimatedomain.UpdateEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.estimateSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) TransitionEstimate(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	to := estimatedomain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	resp, err := s.estimateSvc.Transition(c.Request.Context(), strings.TrimSpace(c.Param("id")), to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) ListEstimates(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status     string `form:"status"`
		CustomerID string `form:"customer_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := cachedView(s, c, viewcache.GroupEstimates, func(ctx context.Context) (estimatedomain.ListEstimateResponse, error) {
		return s.estimateSvc.List(ctx, estimatedomain.ListEstimateRequest{
			Pagination: query.Pagination,
			Status:     strings.TrimSpace(query.Status),
			CustomerID: strings.TrimSpace(query.CustomerID),
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, http.StatusOK, resp.Estimates, resp.PageInfo)
}

func (s *Server) GetEstimate(c *gin.Context) {
	resp, err := s.estimateSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DeleteEstimate(c *gin.Context) {
	if err := s.estimateSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RestoreEstimate(c *gin.Context) {
	resp, err := s.estimateSvc.Restore(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) ConvertEstimateToJobOrder(c *gin.Context) {
	resp, err := s.jobOrderSvc.CreateFromEstimate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, nil)
}

func (s *Server) ConvertEstimateToInvoice(c *gin.Context) {
	var req invoicedomain.ConvertEstimateRequest
	// The body is optional here.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, warnings, err := s.invoiceSvc.CreateFromEstimate(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, warnings)
}
