package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/config"
	customerdomain "github.com/smallbiznis/fieldbooks/internal/customer/domain"
	"github.com/smallbiznis/fieldbooks/internal/docnumber"
	estimatedomain "github.com/smallbiznis/fieldbooks/internal/estimate/domain"
	"github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	"github.com/smallbiznis/fieldbooks/internal/invoice/render"
	joborderdomain "github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	"github.com/smallbiznis/fieldbooks/internal/observability/metrics"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/providers/email"
	"github.com/smallbiznis/fieldbooks/internal/providers/pdf"
	"github.com/smallbiznis/fieldbooks/internal/providers/sms"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Config         config.Config
	Repo           domain.Repository
	JobOrders      joborderdomain.Repository
	Estimates      estimatedomain.Repository
	Customers      customerdomain.Repository
	Renderer       render.Renderer
	Email          email.Provider              `optional:"true"`
	SMS            sms.Provider                `optional:"true"`
	PDF            pdf.Provider                `optional:"true"`
	Accounting     accountingdomain.Service    `optional:"true"`
	AccountingRepo accountingdomain.Repository `optional:"true"`
	Publisher      viewcache.Publisher         `optional:"true"`
	AuditSvc       auditdomain.Service         `optional:"true"`
	Metrics        *metrics.Metrics            `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	companyName    string
	repo           domain.Repository
	jobOrders      joborderdomain.Repository
	estimates      estimatedomain.Repository
	customers      customerdomain.Repository
	renderer       render.Renderer
	email          email.Provider
	sms            sms.Provider
	pdf            pdf.Provider
	accounting     accountingdomain.Service
	accountingRepo accountingdomain.Repository
	publisher      viewcache.Publisher
	auditSvc       auditdomain.Service
	metrics        *metrics.Metrics
}

func New(p Params) domain.Service {
	s := &Service{
		db:             p.DB,
		log:            p.Log.Named("invoice.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		companyName:    p.Config.CompanyName,
		repo:           p.Repo,
		jobOrders:      p.JobOrders,
		estimates:      p.Estimates,
		customers:      p.Customers,
		renderer:       p.Renderer,
		email:          p.Email,
		sms:            p.SMS,
		pdf:            p.PDF,
		accounting:     p.Accounting,
		accountingRepo: p.AccountingRepo,
		publisher:      p.Publisher,
		auditSvc:       p.AuditSvc,
		metrics:        p.Metrics,
	}
	if s.publisher == nil {
		s.publisher = viewcache.NopPublisher{}
	}
	if s.renderer == nil {
		s.renderer = render.NewRenderer()
	}
	if s.email == nil {
		s.email = &email.NoOpProvider{}
	}
	if s.sms == nil {
		s.sms = sms.NoOpProvider{}
	}
	if s.pdf == nil {
		s.pdf = pdf.New()
	}
	return s
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.Invoice, []string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Invoice{}, nil, domain.ErrInvalidOrganization
	}
	if req.Total <= 0 {
		return domain.Invoice{}, nil, domain.ErrInvalidTotal
	}
	if req.JobOrderID != nil && req.ChangeOrderID != nil {
		return domain.Invoice{}, nil, domain.ErrInvalidParent
	}
	if (req.JobOrderID != nil && *req.JobOrderID == 0) || (req.ChangeOrderID != nil && *req.ChangeOrderID == 0) {
		return domain.Invoice{}, nil, domain.ErrInvalidParent
	}

	now := s.clock.Now()
	invoice := domain.Invoice{
		ID:            s.genID.Generate(),
		OrgID:         orgID,
		CustomerID:    req.CustomerID,
		JobOrderID:    req.JobOrderID,
		ChangeOrderID: req.ChangeOrderID,
		Title:         strings.TrimSpace(req.Title),
		Notes:         strings.TrimSpace(req.Notes),
		Total:         req.Total,
		DueDate:       req.DueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	invoice.Settle(nil)

	var touched viewcache.Topic
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent, err := s.lockParent(ctx, tx, &invoice, true)
		if err != nil {
			return err
		}
		if parent != nil {
			switch {
			case invoice.CustomerID == 0:
				invoice.CustomerID = parent.customerID
			case parent.customerID != 0 && parent.customerID != invoice.CustomerID:
				return domain.ErrInvalidCustomer
			}
		}
		if invoice.CustomerID == 0 {
			return domain.ErrInvalidCustomer
		}
		customer, err := s.customers.FindByID(ctx, tx, orgID, invoice.CustomerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrInvalidCustomer
		}

		if err := s.insert(ctx, tx, &invoice, req.Number); err != nil {
			return err
		}
		if parent == nil {
			return nil
		}
		touched = parent.topic
		return parent.apply(invoice.Total)
	})
	if err != nil {
		return domain.Invoice{}, nil, err
	}

	s.afterCommit(ctx, "invoice.create", invoice.OrgID, invoice.ID, map[string]any{
		"number": invoice.Number,
		"total":  invoice.Total,
	}, viewcache.TopicInvoice, touched)
	return invoice, s.syncInvoice(ctx, invoice, accountingdomain.OperationUpsert), nil
}

// CreateFromEstimate converts an approved estimate once. When the estimate already became a
// job order the invoice draws that job order down.
func (s *Service) CreateFromEstimate(ctx context.Context, estimateID string, req domain.ConvertEstimateRequest) (domain.Invoice, []string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Invoice{}, nil, domain.ErrInvalidOrganization
	}
	id, err := parseID(estimateID)
	if err != nil {
		return domain.Invoice{}, nil, err
	}

	var invoice domain.Invoice
	var touched viewcache.Topic
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		estimate, err := s.estimates.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if estimate == nil || estimate.DeletedAt != nil {
			return estimatedomain.ErrNotFound
		}

		now := s.clock.Now()
		invoice = domain.Invoice{
			ID:         s.genID.Generate(),
			OrgID:      orgID,
			CustomerID: estimate.CustomerID,
			JobOrderID: estimate.JobOrderID,
			EstimateID: &estimate.ID,
			Title:      estimate.Title,
			Notes:      estimate.Notes,
			Total:      estimate.Total,
			DueDate:    req.DueDate,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		invoice.Settle(nil)

		claimed, err := s.estimates.MarkConverted(ctx, tx, orgID, id, estimatedomain.ConvertedToInvoice, invoice.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return s.estimates.ConversionFailure(ctx, tx, orgID, id, estimatedomain.ConvertedToInvoice)
		}
		if invoice.Total <= 0 {
			return domain.ErrInvalidTotal
		}

		parent, err := s.lockParent(ctx, tx, &invoice, true)
		if err != nil {
			return err
		}
		if err := s.insert(ctx, tx, &invoice, ""); err != nil {
			return err
		}
		if parent == nil {
			return nil
		}
		touched = parent.topic
		return parent.apply(invoice.Total)
	})
	if err != nil {
		return domain.Invoice{}, nil, err
	}

	s.afterCommit(ctx, "invoice.convert", invoice.OrgID, invoice.ID, map[string]any{
		"estimate_id": id.String(),
		"total":       invoice.Total,
	}, viewcache.TopicInvoice, viewcache.TopicEstimate, touched)
	return invoice, s.syncInvoice(ctx, invoice, accountingdomain.OperationUpsert), nil
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, requested string) error {
	number, err := docnumber.Resolve(ctx, tx, "invoices", docnumber.PrefixInvoice, invoice.OrgID, requested)
	if err != nil {
		return err
	}
	invoice.Number = number
	if err := s.repo.Insert(ctx, tx, invoice); err != nil {
		switch {
		case db.IsDuplicateKeyOn(err, "estimate"):
			return estimatedomain.ErrAlreadyConverted
		case db.IsDuplicateKeyErr(err):
			return domain.ErrDuplicateNumber
		}
		return err
	}
	return nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateInvoiceRequest) (domain.Invoice, []string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Invoice{}, nil, domain.ErrInvalidOrganization
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return domain.Invoice{}, nil, err
	}
	if req.Total != nil && *req.Total <= 0 {
		return domain.Invoice{}, nil, domain.ErrInvalidTotal
	}

	var invoice domain.Invoice
	var touched viewcache.Topic
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.loadLiveForUpdate(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}

		if req.Title != nil {
			current.Title = strings.TrimSpace(*req.Title)
		}
		if req.Notes != nil {
			current.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.DueDate != nil {
			current.DueDate = req.DueDate
		}
		if req.Total != nil && *req.Total != current.Total {
			if *req.Total < current.PaidAmount {
				return domain.ErrTotalBelowPaid
			}
			parent, err := s.lockParent(ctx, tx, current, false)
			if err != nil {
				return err
			}
			if parent != nil {
				if err := parent.adjust(current.Total, *req.Total); err != nil {
					return err
				}
				touched = parent.topic
			}
			current.Total = *req.Total
			amounts, err := s.repo.LivePaymentAmounts(ctx, tx, current.ID)
			if err != nil {
				return err
			}
			current.Settle(amounts)
		}

		current.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		invoice = *current
		return nil
	})
	if err != nil {
		return domain.Invoice{}, nil, err
	}

	s.afterCommit(ctx, "invoice.update", invoice.OrgID, invoice.ID, map[string]any{
		"total": invoice.Total,
	}, viewcache.TopicInvoice, touched)
	return invoice, s.syncInvoice(ctx, invoice, accountingdomain.OperationUpsert), nil
}

// Delete soft-deletes the invoice and hands its total back to the parent. The conditional
// update is the guard: a second delete affects no rows and changes no balance.
func (s *Service) Delete(ctx context.Context, id string) ([]string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var invoice domain.Invoice
	var touched viewcache.Topic
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		deleted, err := s.repo.SoftDelete(ctx, tx, orgID, invoiceID, orgcontext.ActorID(ctx), s.clock.Now())
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrAlreadyDeleted
		}

		parent, err := s.lockParent(ctx, tx, current, false)
		if err != nil {
			return err
		}
		if parent != nil {
			touched = parent.topic
			if err := parent.reverse(current.Total); err != nil {
				return err
			}
		}
		invoice = *current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, "invoice.delete", orgID, invoiceID, map[string]any{
		"total": invoice.Total,
	}, viewcache.TopicInvoice, touched)
	return s.syncInvoice(ctx, invoice, accountingdomain.OperationDelete), nil
}

func (s *Service) Restore(ctx context.Context, id string) (domain.Invoice, []string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Invoice{}, nil, domain.ErrInvalidOrganization
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return domain.Invoice{}, nil, err
	}

	var invoice domain.Invoice
	var touched viewcache.Topic
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		restored, err := s.repo.Restore(ctx, tx, orgID, invoiceID, s.clock.Now())
		if err != nil {
			return err
		}
		current, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if !restored {
			return domain.ErrNotDeleted
		}

		parent, err := s.lockParent(ctx, tx, current, true)
		if err != nil {
			return err
		}
		if parent != nil {
			touched = parent.topic
			if err := parent.apply(current.Total); err != nil {
				return err
			}
		}
		invoice = *current
		return nil
	})
	if err != nil {
		return domain.Invoice{}, nil, err
	}

	s.afterCommit(ctx, "invoice.restore", orgID, invoiceID, nil, viewcache.TopicInvoice, touched)
	return invoice, s.syncInvoice(ctx, invoice, accountingdomain.OperationUpsert), nil
}

// HardDelete removes the invoice, its payments and their sync mappings. A live invoice
// gives its total back to the parent first. Nothing is pushed to the accounting system.
func (s *Service) HardDelete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return err
	}

	var touched viewcache.Topic
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.DeletedAt == nil {
			parent, err := s.lockParent(ctx, tx, current, false)
			if err != nil {
				return err
			}
			if parent != nil {
				touched = parent.topic
				if err := parent.reverse(current.Total); err != nil {
					return err
				}
			}
		}

		paymentIDs, err := s.repo.HardDelete(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if s.accountingRepo == nil {
			return nil
		}
		if err := s.accountingRepo.DeleteFor(ctx, tx, orgID, accountingdomain.EntityInvoicePayment, paymentIDs...); err != nil {
			return err
		}
		return s.accountingRepo.DeleteFor(ctx, tx, orgID, accountingdomain.EntityInvoice, invoiceID)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, "invoice.purge", orgID, invoiceID, nil,
		viewcache.TopicInvoice, viewcache.TopicInvoicePayment, viewcache.TopicSync, touched)
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Invoice{}, domain.ErrInvalidOrganization
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil || invoice.DeletedAt != nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return *invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListInvoiceResponse{}, domain.ErrInvalidOrganization
	}
	filter := domain.ListFilter{Status: domain.Status(strings.TrimSpace(req.Status)), Page: req.Pagination}
	refs := []struct {
		raw    string
		target *snowflake.ID
	}{
		{req.CustomerID, &filter.CustomerID},
		{req.JobOrderID, &filter.JobOrderID},
		{req.ChangeOrderID, &filter.ChangeOrderID},
	}
	for _, ref := range refs {
		if strings.TrimSpace(ref.raw) == "" {
			continue
		}
		parsed, err := parseID(ref.raw)
		if err != nil {
			return domain.ListInvoiceResponse{}, err
		}
		*ref.target = parsed
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(i domain.Invoice) int64 {
		return i.ID.Int64()
	})
	return domain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: items}, nil
}

func (s *Service) loadLiveForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	invoice, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}
	if invoice.DeletedAt != nil {
		return nil, domain.ErrDeleted
	}
	return invoice, nil
}

func (s *Service) syncInvoice(ctx context.Context, invoice domain.Invoice, op accountingdomain.Operation) []string {
	if s.accounting == nil {
		return nil
	}
	payload := map[string]any{
		"number":      invoice.Number,
		"customer_id": invoice.CustomerID.String(),
		"total":       invoice.Total,
		"status":      string(invoice.Status),
	}
	if invoice.DueDate != nil {
		payload["due_date"] = invoice.DueDate.UTC().Format(time.DateOnly)
	}
	return s.accounting.Sync(ctx, accountingdomain.Document{
		OrgID:      invoice.OrgID,
		EntityType: accountingdomain.EntityInvoice,
		EntityID:   invoice.ID,
		Operation:  op,
		Payload:    payload,
	})
}

func (s *Service) afterCommit(ctx context.Context, action string, orgID, id snowflake.ID, metadata map[string]any, topics ...viewcache.Topic) {
	published := topics[:0:0]
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		published = append(published, topic)
		if topic == viewcache.TopicJobOrder || topic == viewcache.TopicChangeOrder {
			s.metrics.RecordBalanceAdjustment(ctx, string(topic))
		}
	}
	s.publisher.Publish(ctx, orgID, published...)
	s.metrics.RecordDocumentMutation(ctx, "invoice", action)
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "invoice",
		TargetID:   id,
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
