package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	vendordomain "github.com/smallbiznis/fieldbooks/internal/supplier/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
)

func (s *Server) CreateVendor(c *gin.Context) {
	var req vendordomain.CreateVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.vendorSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, nil)
}

func (s *Server) UpdateVendor(c *gin.Context) {
	var req vendordomain.UpdateVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.vendorSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) ListVendors(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Name  string `form:"name"`
		Trade string `form:"trade"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := cachedView(s, c, viewcache.GroupVendors, func(ctx context.Context) (vendordomain.ListVendorResponse, error) {
		return s.vendorSvc.List(ctx, vendordomain.ListVendorRequest{
			Pagination: query.Pagination,
			Name:       strings.TrimSpace(query.Name),
			Trade:      strings.TrimSpace(query.Trade),
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, http.StatusOK, resp.Vendors, resp.PageInfo)
}

func (s *Server) GetVendor(c *gin.Context) {
	resp, err := s.vendorSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DeleteVendor(c *gin.Context) {
	if err := s.vendorSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
