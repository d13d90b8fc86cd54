package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	purchaseorderdomain "github.com/smallbiznis/fieldbooks/internal/purchaseorder/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
)

func (s *Server) CreatePurchaseOrder(c *gin.Context) {
	var req purchaseorderdomain.CreatePurchaseOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.purchaseOrderSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, nil)
}

func (s *Server) UpdatePurchaseOrder(c *gin.Context) {
	var req purchaseorderdomain.UpdatePurchaseOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.purchaseOrderSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) ListPurchaseOrders(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status     string `form:"status"`
		VendorID   string `form:"vendor_id"`
		JobOrderID string `form:"job_order_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := cachedView(s, c, viewcache.GroupPurchaseOrders, func(ctx context.Context) (purchaseorderdomain.ListPurchaseOrderResponse, error) {
		return s.purchaseOrderSvc.List(ctx, purchaseorderdomain.ListPurchaseOrderRequest{
			Pagination: query.Pagination,
			Status:     strings.TrimSpace(query.Status),
			VendorID:   strings.TrimSpace(query.VendorID),
			JobOrderID: strings.TrimSpace(query.JobOrderID),
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, http.StatusOK, resp.PurchaseOrders, resp.PageInfo)
}

func (s *Server) GetPurchaseOrder(c *gin.Context) {
	resp, err := s.purchaseOrderSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DeletePurchaseOrder(c *gin.Context) {
	if err := s.purchaseOrderSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RestorePurchaseOrder(c *gin.Context) {
	resp, err := s.purchaseOrderSvc.Restore(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) ClosePurchaseOrder(c *gin.Context) {
	resp, err := s.purchaseOrderSvc.Close(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) ReopenPurchaseOrder(c *gin.Context) {
	resp, err := s.purchaseOrderSvc.Reopen(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}
