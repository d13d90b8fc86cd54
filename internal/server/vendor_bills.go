package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	vendorbilldomain "github.com/smallbiznis/fieldbooks/internal/vendorbill/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
)

func (s *Server) CreateVendorBill(c *gin.Context) {
	var req vendorbilldomain.CreateVendorBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, warnings, err := s.vendorBillSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, warnings)
}

func (s *Server) UpdateVendorBill(c *gin.Context) {
	var req vendorbilldomain.UpdateVendorBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, warnings, err := s.vendorBillSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, warnings)
}

func (s *Server) ListVendorBills(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status          string `form:"status"`
		VendorID        string `form:"vendor_id"`
		PurchaseOrderID string `form:"purchase_order_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := cachedView(s, c, viewcache.GroupVendorBills, func(ctx context.Context) (vendorbilldomain.ListVendorBillResponse, error) {
		return s.vendorBillSvc.List(ctx, vendorbilldomain.ListVendorBillRequest{
			Pagination:      query.Pagination,
			Status:          strings.TrimSpace(query.Status),
			VendorID:        strings.TrimSpace(query.VendorID),
			PurchaseOrderID: strings.TrimSpace(query.PurchaseOrderID),
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, http.StatusOK, resp.VendorBills, resp.PageInfo)
}

func (s *Server) GetVendorBill(c *gin.Context) {
	resp, err := s.vendorBillSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DeleteVendorBill(c *gin.Context) {
	warnings, err := s.vendorBillSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if len(warnings) > 0 {
		respond(c, http.StatusOK, nil, warnings)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) HardDeleteVendorBill(c *gin.Context) {
	if err := s.vendorBillSvc.HardDelete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RestoreVendorBill(c *gin.Context) {
	resp, warnings, err := s.vendorBillSvc.Restore(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, warnings)
}

// -------- Payments --------

func (s *Server) AddVendorBillPayment(c *gin.Context) {
	var req vendorbilldomain.PaymentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.vendorBillSvc.AddPayment(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, resp.Warnings)
}

func (s *Server) ListVendorBillPayments(c *gin.Context) {
	resp, err := s.vendorBillSvc.ListPayments(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) UpdateVendorBillPayment(c *gin.Context) {
	var req vendorbilldomain.UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.vendorBillSvc.UpdatePayment(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, resp.Warnings)
}

func (s *Server) DeleteVendorBillPayment(c *gin.Context) {
	resp, err := s.vendorBillSvc.DeletePayment(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, resp.Warnings)
}

func (s *Server) BulkVendorBillPayments(c *gin.Context) {
	var req vendorbilldomain.BulkPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	results, err := s.vendorBillSvc.BulkPayments(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	var warnings []string
	for _, r := range results {
		if r.Error != "" {
			status = http.StatusMultiStatus
		}
		warnings = append(warnings, r.Warnings...)
	}
	respond(c, status, results, warnings)
}
