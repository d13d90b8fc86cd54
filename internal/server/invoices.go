package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
)

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, warnings, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, warnings)
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	var req invoicedomain.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, warnings, err := s.invoiceSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, warnings)
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status        string `form:"status"`
		CustomerID    string `form:"customer_id"`
		JobOrderID    string `form:"job_order_id"`
		ChangeOrderID string `form:"change_order_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := cachedView(s, c, viewcache.GroupInvoices, func(ctx context.Context) (invoicedomain.ListInvoiceResponse, error) {
		return s.invoiceSvc.List(ctx, invoicedomain.ListInvoiceRequest{
			Pagination:    query.Pagination,
			Status:        strings.TrimSpace(query.Status),
			CustomerID:    strings.TrimSpace(query.CustomerID),
			JobOrderID:    strings.TrimSpace(query.JobOrderID),
			ChangeOrderID: strings.TrimSpace(query.ChangeOrderID),
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, http.StatusOK, resp.Invoices, resp.PageInfo)
}

func (s *Server) GetInvoice(c *gin.Context) {
	resp, err := s.invoiceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	warnings, err := s.invoiceSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id")))
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

func (s *Server) HardDeleteInvoice(c *gin.Context) {
	if err := s.invoiceSvc.HardDelete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RestoreInvoice(c *gin.Context) {
	resp, warnings, err := s.invoiceSvc.Restore(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, warnings)
}

func (s *Server) SendInvoice(c *gin.Context) {
	var req invoicedomain.SendInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, warnings, err := s.invoiceSvc.Send(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, warnings)
}

// -------- Payments --------

func (s *Server) AddInvoicePayment(c *gin.Context) {
	var req invoicedomain.PaymentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.AddPayment(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp, resp.Warnings)
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	resp, err := s.invoiceSvc.ListPayments(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, nil)
}

func (s *Server) UpdateInvoicePayment(c *gin.Context) {
	var req invoicedomain.UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.UpdatePayment(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, resp.Warnings)
}

func (s *Server) DeleteInvoicePayment(c *gin.Context) {
	resp, err := s.invoiceSvc.DeletePayment(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp, resp.Warnings)
}

// BulkInvoicePayments answers 207 when some items failed; each item carries its own outcome.
func (s *Server) BulkInvoicePayments(c *gin.Context) {
	var req invoicedomain.BulkPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	results, err := s.invoiceSvc.BulkPayments(c.Request.Context(), req)
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
