package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/fieldbooks/internal/accounting"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	"github.com/smallbiznis/fieldbooks/internal/attachment"
	attachmentdomain "github.com/smallbiznis/fieldbooks/internal/attachment/domain"
	"github.com/smallbiznis/fieldbooks/internal/audit"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/authorization"
	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/smallbiznis/fieldbooks/internal/customer"
	customerdomain "github.com/smallbiznis/fieldbooks/internal/customer/domain"
	"github.com/smallbiznis/fieldbooks/internal/estimate"
	estimatedomain "github.com/smallbiznis/fieldbooks/internal/estimate/domain"
	"github.com/smallbiznis/fieldbooks/internal/invoice"
	invoicedomain "github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	"github.com/smallbiznis/fieldbooks/internal/joborder"
	joborderdomain "github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	"github.com/smallbiznis/fieldbooks/internal/observability"
	obslogger "github.com/smallbiznis/fieldbooks/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/fieldbooks/internal/observability/metrics"
	obstracing "github.com/smallbiznis/fieldbooks/internal/observability/tracing"
	"github.com/smallbiznis/fieldbooks/internal/personnel"
	personneldomain "github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	"github.com/smallbiznis/fieldbooks/internal/providers"
	"github.com/smallbiznis/fieldbooks/internal/purchaseorder"
	purchaseorderdomain "github.com/smallbiznis/fieldbooks/internal/purchaseorder/domain"
	"github.com/smallbiznis/fieldbooks/internal/scheduler"
	"github.com/smallbiznis/fieldbooks/internal/supplier"
	vendordomain "github.com/smallbiznis/fieldbooks/internal/supplier/domain"
	"github.com/smallbiznis/fieldbooks/internal/timeentry"
	timeentrydomain "github.com/smallbiznis/fieldbooks/internal/timeentry/domain"
	"github.com/smallbiznis/fieldbooks/internal/vendorbill"
	vendorbilldomain "github.com/smallbiznis/fieldbooks/internal/vendorbill/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	viewcache.Module,
	providers.Module,
	accounting.Module,
	customer.Module,
	supplier.Module,
	estimate.Module,
	joborder.Module,
	invoice.Module,
	purchaseorder.Module,
	vendorbill.Module,
	personnel.Module,
	timeentry.Module,
	attachment.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, srv *Server) {
	httpServer := &http.Server{
		Addr:              srv.cfg.HTTPAddr,
		Handler:           srv.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			srv.log.Info("http server listening", zap.String("addr", httpServer.Addr))
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					srv.log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	views  *viewcache.Cache

	authzSvc         authorization.Service
	auditSvc         auditdomain.Service
	accountingSvc    accountingdomain.Service
	customerSvc      customerdomain.Service
	vendorSvc        vendordomain.Service
	estimateSvc      estimatedomain.Service
	jobOrderSvc      joborderdomain.Service
	invoiceSvc       invoicedomain.Service
	purchaseOrderSvc purchaseorderdomain.Service
	vendorBillSvc    vendorbilldomain.Service
	personnelSvc     personneldomain.Service
	timeEntrySvc     timeentrydomain.Service
	attachmentSvc    attachmentdomain.Service

	scheduler *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	Log   *zap.Logger
	Views *viewcache.Cache `optional:"true"`

	AuthzSvc         authorization.Service
	AuditSvc         auditdomain.Service
	AccountingSvc    accountingdomain.Service
	CustomerSvc      customerdomain.Service
	VendorSvc        vendordomain.Service
	EstimateSvc      estimatedomain.Service
	JobOrderSvc      joborderdomain.Service
	InvoiceSvc       invoicedomain.Service
	PurchaseOrderSvc purchaseorderdomain.Service
	VendorBillSvc    vendorbilldomain.Service
	PersonnelSvc     personneldomain.Service
	TimeEntrySvc     timeentrydomain.Service
	AttachmentSvc    attachmentdomain.Service

	Scheduler *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		log:              p.Log.Named("http.server"),
		views:            p.Views,
		authzSvc:         p.AuthzSvc,
		auditSvc:         p.AuditSvc,
		accountingSvc:    p.AccountingSvc,
		customerSvc:      p.CustomerSvc,
		vendorSvc:        p.VendorSvc,
		estimateSvc:      p.EstimateSvc,
		jobOrderSvc:      p.JobOrderSvc,
		invoiceSvc:       p.InvoiceSvc,
		purchaseOrderSvc: p.PurchaseOrderSvc,
		vendorBillSvc:    p.VendorBillSvc,
		personnelSvc:     p.PersonnelSvc,
		timeEntrySvc:     p.TimeEntrySvc,
		attachmentSvc:    p.AttachmentSvc,
		scheduler:        p.Scheduler,
	}
	if p.Cfg.AuthJWTSecret == "" {
		svc.log.Warn("AUTH_JWT_SECRET is empty; every API request will be rejected")
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.AuthRequired())

	// -------- Customers & vendors --------
	api.GET("/customers", s.authorize(authorization.ObjectCustomer, authorization.ActionRead), s.ListCustomers)
	api.POST("/customers", s.authorize(authorization.ObjectCustomer, authorization.ActionWrite), s.CreateCustomer)
	api.GET("/customers/:id", s.authorize(authorization.ObjectCustomer, authorization.ActionRead), s.GetCustomer)
	api.PATCH("/customers/:id", s.authorize(authorization.ObjectCustomer, authorization.ActionWrite), s.UpdateCustomer)
	api.DELETE("/customers/:id", s.authorize(authorization.ObjectCustomer, authorization.ActionDelete), s.DeleteCustomer)

	api.GET("/vendors", s.authorize(authorization.ObjectVendor, authorization.ActionRead), s.ListVendors)
	api.POST("/vendors", s.authorize(authorization.ObjectVendor, authorization.ActionWrite), s.CreateVendor)
	api.GET("/vendors/:id", s.authorize(authorization.ObjectVendor, authorization.ActionRead), s.GetVendor)
	api.PATCH("/vendors/:id", s.authorize(authorization.ObjectVendor, authorization.ActionWrite), s.UpdateVendor)
	api.DELETE("/vendors/:id", s.authorize(authorization.ObjectVendor, authorization.ActionDelete), s.DeleteVendor)

	// -------- Estimates --------
	api.GET("/estimates", s.authorize(authorization.ObjectEstimate, authorization.ActionRead), s.ListEstimates)
	api.POST("/estimates", s.authorize(authorization.ObjectEstimate, authorization.ActionWrite), s.CreateEstimate)
	api.GET("/estimates/:id", s.authorize(authorization.ObjectEstimate, authorization.ActionRead), s.GetEstimate)
	api.PATCH("/estimates/:id", s.authorize(authorization.ObjectEstimate, authorization.ActionWrite), s.UpdateEstimate)
	api.DELETE("/estimates/:id", s.authorize(authorization.ObjectEstimate, authorization.ActionDelete), s.DeleteEstimate)
	api.POST("/estimates/:id/restore", s.authorize(authorization.ObjectEstimate, authorization.ActionWrite), s.RestoreEstimate)
	api.POST("/estimates/:id/transition", s.authorize(authorization.ObjectEstimate, authorization.ActionWrite), s.TransitionEstimate)
	api.POST("/estimates/:id/job-order", s.authorize(authorization.ObjectJobOrder, authorization.ActionWrite), s.ConvertEstimateToJobOrder)
	api.POST("/estimates/:id/invoice", s.authorize(authorization.ObjectInvoice, authorization.ActionWrite), s.ConvertEstimateToInvoice)

	// -------- Job orders & change orders --------
	api.GET("/job-orders", s.authorize(authorization.ObjectJobOrder, authorization.ActionRead), s.ListJobOrders)
	api.POST("/job-orders", s.authorize(authorization.ObjectJobOrder, authorization.ActionWrite), s.CreateJobOrder)
	api.GET("/job-orders/:id", s.authorize(authorization.ObjectJobOrder, authorization.ActionRead), s.GetJobOrder)
	api.PATCH("/job-orders/:id", s.authorize(authorization.ObjectJobOrder, authorization.ActionWrite), s.UpdateJobOrder)
	api.DELETE("/job-orders/:id", s.authorize(authorization.ObjectJobOrder, authorization.ActionDelete), s.DeleteJobOrder)
	api.POST("/job-orders/:id/restore", s.authorize(authorization.ObjectJobOrder, authorization.ActionWrite), s.RestoreJobOrder)
	api.POST("/job-orders/:id/transition", s.authorize(authorization.ObjectJobOrder, authorization.ActionWrite), s.TransitionJobOrder)
	api.GET("/job-orders/:id/summary", s.authorize(authorization.ObjectJobOrder, authorization.ActionRead), s.JobOrderSummary)
	api.GET("/job-orders/:id/change-orders", s.authorize(authorization.ObjectChangeOrder, authorization.ActionRead), s.ListChangeOrders)
	api.POST("/job-orders/:id/change-orders", s.authorize(authorization.ObjectChangeOrder, authorization.ActionWrite), s.CreateChangeOrder)

	api.GET("/change-orders/:id", s.authorize(authorization.ObjectChangeOrder, authorization.ActionRead), s.GetChangeOrder)
	api.PATCH("/change-orders/:id", s.authorize(authorization.ObjectChangeOrder, authorization.ActionWrite), s.UpdateChangeOrder)
	api.POST("/change-orders/:id/decision", s.authorize(authorization.ObjectChangeOrder, authorization.ActionWrite), s.DecideChangeOrder)
	api.DELETE("/change-orders/:id", s.authorize(authorization.ObjectChangeOrder, authorization.ActionDelete), s.DeleteChangeOrder)

	// -------- Invoices & payments --------
	api.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionRead), s.ListInvoices)
	api.POST("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionWrite), s.CreateInvoice)
	api.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionRead), s.GetInvoice)
	api.PATCH("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionWrite), s.UpdateInvoice)
	api.DELETE("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionDelete), s.DeleteInvoice)
	api.DELETE("/invoices/:id/permanent", s.authorize(authorization.ObjectInvoice, authorization.ActionDelete), s.HardDeleteInvoice)
	api.POST("/invoices/:id/restore", s.authorize(authorization.ObjectInvoice, authorization.ActionWrite), s.RestoreInvoice)
	api.POST("/invoices/:id/send", s.authorize(authorization.ObjectInvoice, authorization.ActionSend), s.SendInvoice)
	api.GET("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionRead), s.ListInvoicePayments)
	api.POST("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionWrite), s.AddInvoicePayment)

	api.POST("/invoice-payments/bulk", s.authorize(authorization.ObjectPayment, authorization.ActionWrite), s.BulkInvoicePayments)
	api.PATCH("/invoice-payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionWrite), s.UpdateInvoicePayment)
	api.DELETE("/invoice-payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionDelete), s.DeleteInvoicePayment)

	// -------- Purchase orders & vendor bills --------
	api.GET("/purchase-orders", s.authorize(authorization.ObjectPurchaseOrder, authorization.ActionRead), s.ListPurchaseOrders)
	api.POST("/purchase-orders", s.authorize(authorization.ObjectPurchaseOrder, authorization.ActionWrite), s.CreatePurchaseOrder)
	api.GET("/purchase-orders/:id", s.authorize(authorization.ObjectPurchaseOrder, authorization.ActionRead), s.GetPurchaseOrder)
	api.PATCH("/purchase-orders/:id", s.authorize(authorization.ObjectPurchaseOrder, authorization.ActionWrite), s.UpdatePurchaseOrder)
	api.DELETE("/purchase-orders/:id", s.authorize(authorization.ObjectPurchaseOrder, authorization.ActionDelete), s.DeletePurchaseOrder)
	api.POST("/purchase-orders/:id/restore", s.authorize(authorization.ObjectPurchaseOrder, authorization.ActionWrite), s.RestorePurchaseOrder)
	api.POST("/purchase-orders/:id/close", s.authorize(authorization.ObjectPurchaseOrder, authorization.ActionWrite), s.ClosePurchaseOrder)
	api.POST("/purchase-orders/:id/reopen", s.authorize(authorization.ObjectPurchaseOrder, authorization.ActionWrite), s.ReopenPurchaseOrder)

	api.GET("/vendor-bills", s.authorize(authorization.ObjectVendorBill, authorization.ActionRead), s.ListVendorBills)
	api.POST("/vendor-bills", s.authorize(authorization.ObjectVendorBill, authorization.ActionWrite), s.CreateVendorBill)
	api.GET("/vendor-bills/:id", s.authorize(authorization.ObjectVendorBill, authorization.ActionRead), s.GetVendorBill)
	api.PATCH("/vendor-bills/:id", s.authorize(authorization.ObjectVendorBill, authorization.ActionWrite), s.UpdateVendorBill)
	api.DELETE("/vendor-bills/:id", s.authorize(authorization.ObjectVendorBill, authorization.ActionDelete), s.DeleteVendorBill)
	api.DELETE("/vendor-bills/:id/permanent", s.authorize(authorization.ObjectVendorBill, authorization.ActionDelete), s.HardDeleteVendorBill)
	api.POST("/vendor-bills/:id/restore", s.authorize(authorization.ObjectVendorBill, authorization.ActionWrite), s.RestoreVendorBill)
	api.GET("/vendor-bills/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionRead), s.ListVendorBillPayments)
	api.POST("/vendor-bills/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionWrite), s.AddVendorBillPayment)

	api.POST("/vendor-bill-payments/bulk", s.authorize(authorization.ObjectPayment, authorization.ActionWrite), s.BulkVendorBillPayments)
	api.PATCH("/vendor-bill-payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionWrite), s.UpdateVendorBillPayment)
	api.DELETE("/vendor-bill-payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionDelete), s.DeleteVendorBillPayment)

	// -------- Time & personnel --------
	api.GET("/time-entries", s.authorize(authorization.ObjectTimeEntry, authorization.ActionRead), s.ListTimeEntries)
	api.POST("/time-entries", s.authorize(authorization.ObjectTimeEntry, authorization.ActionWrite), s.CreateTimeEntry)
	api.GET("/time-entries/weekly-summary", s.authorize(authorization.ObjectTimeEntry, authorization.ActionRead), s.WeeklyTimeSummary)
	api.GET("/time-entries/:id", s.authorize(authorization.ObjectTimeEntry, authorization.ActionRead), s.GetTimeEntry)
	api.PATCH("/time-entries/:id", s.authorize(authorization.ObjectTimeEntry, authorization.ActionWrite), s.UpdateTimeEntry)
	api.DELETE("/time-entries/:id", s.authorize(authorization.ObjectTimeEntry, authorization.ActionDelete), s.DeleteTimeEntry)
	api.POST("/time-entries/:id/restore", s.authorize(authorization.ObjectTimeEntry, authorization.ActionWrite), s.RestoreTimeEntry)

	api.GET("/people", s.authorize(authorization.ObjectPersonnel, authorization.ActionRead), s.ListPeople)
	api.POST("/people", s.authorize(authorization.ObjectPersonnel, authorization.ActionWrite), s.CreatePerson)
	api.GET("/people/:id", s.authorize(authorization.ObjectPersonnel, authorization.ActionRead), s.GetPerson)
	api.PATCH("/people/:id", s.authorize(authorization.ObjectPersonnel, authorization.ActionWrite), s.UpdatePerson)
	api.DELETE("/people/:id", s.authorize(authorization.ObjectPersonnel, authorization.ActionDelete), s.DeletePerson)
	api.GET("/people/:id/certifications", s.authorize(authorization.ObjectPersonnel, authorization.ActionRead), s.ListCertifications)
	api.POST("/people/:id/certifications", s.authorize(authorization.ObjectPersonnel, authorization.ActionWrite), s.AddCertification)

	api.GET("/certifications/expiring", s.authorize(authorization.ObjectPersonnel, authorization.ActionRead), s.ListExpiringCertifications)
	api.PUT("/certifications/:id", s.authorize(authorization.ObjectPersonnel, authorization.ActionWrite), s.UpdateCertification)
	api.DELETE("/certifications/:id", s.authorize(authorization.ObjectPersonnel, authorization.ActionDelete), s.DeleteCertification)

	// -------- Attachments --------
	api.GET("/attachments", s.authorize(authorization.ObjectAttachment, authorization.ActionRead), s.ListAttachments)
	api.POST("/attachments", s.authorize(authorization.ObjectAttachment, authorization.ActionWrite), s.UploadAttachment)
	api.GET("/attachments/:id", s.authorize(authorization.ObjectAttachment, authorization.ActionRead), s.GetAttachment)
	api.GET("/attachments/:id/content", s.authorize(authorization.ObjectAttachment, authorization.ActionRead), s.DownloadAttachment)
	api.DELETE("/attachments/:id", s.authorize(authorization.ObjectAttachment, authorization.ActionDelete), s.DeleteAttachment)

	// -------- Accounting sync --------
	api.GET("/sync", s.authorize(authorization.ObjectSync, authorization.ActionRead), s.ListSyncMappings)
	api.GET("/sync/:entity_type/:entity_id", s.authorize(authorization.ObjectSync, authorization.ActionRead), s.GetSyncStatus)
	api.POST("/sync/:entity_type/:entity_id/resync", s.authorize(authorization.ObjectSync, authorization.ActionWrite), s.Resync)

	// -------- Operations --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionRead), s.ListAuditLogs)
	api.POST("/jobs/:name/run", s.authorize(authorization.ObjectJob, authorization.ActionRun), s.RunJob)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
