package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/balance"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	customerdomain "github.com/smallbiznis/fieldbooks/internal/customer/domain"
	"github.com/smallbiznis/fieldbooks/internal/docnumber"
	estimatedomain "github.com/smallbiznis/fieldbooks/internal/estimate/domain"
	"github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	"github.com/smallbiznis/fieldbooks/internal/observability/metrics"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Estimates estimatedomain.Repository
	Customers customerdomain.Repository
	Publisher viewcache.Publisher `optional:"true"`
	AuditSvc  auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	estimates estimatedomain.Repository
	customers customerdomain.Repository
	publisher viewcache.Publisher
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = viewcache.NopPublisher{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("joborder.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		estimates: p.Estimates,
		customers: p.Customers,
		publisher: publisher,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateJobOrderRequest) (domain.JobOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.JobOrder{}, domain.ErrInvalidOrganization
	}
	if req.CustomerID == 0 {
		return domain.JobOrder{}, domain.ErrInvalidCustomer
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.JobOrder{}, domain.ErrInvalidTitle
	}
	if req.Total < 0 {
		return domain.JobOrder{}, domain.ErrInvalidTotal
	}

	now := s.clock.Now()
	job := domain.JobOrder{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		CustomerID:  req.CustomerID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		SiteAddress: strings.TrimSpace(req.SiteAddress),
		Status:      domain.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	job.SetLedger(balance.New(req.Total))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.customers.FindByID(ctx, tx, orgID, req.CustomerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrInvalidCustomer
		}
		return s.insert(ctx, tx, &job, req.Number)
	})
	if err != nil {
		return domain.JobOrder{}, err
	}

	s.afterCommit(ctx, "job_order.create", "job_order", job.OrgID, job.ID, nil, viewcache.TopicJobOrder)
	return job, nil
}

// CreateFromEstimate converts an approved estimate. The estimate is claimed with a
// conditional update in the same transaction as the insert, so a second conversion fails.
// An estimate that was invoiced first hands its invoice to the new job order, which starts
// with that invoice already drawn down.
func (s *Service) CreateFromEstimate(ctx context.Context, estimateID string) (domain.JobOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.JobOrder{}, domain.ErrInvalidOrganization
	}
	id, err := parseID(estimateID)
	if err != nil {
		return domain.JobOrder{}, err
	}

	var (
		job       domain.JobOrder
		invoiceID snowflake.ID
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		estimate, err := s.estimates.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if estimate == nil || estimate.DeletedAt != nil {
			return estimatedomain.ErrNotFound
		}

		now := s.clock.Now()
		job = domain.JobOrder{
			ID:         s.genID.Generate(),
			OrgID:      orgID,
			EstimateID: &estimate.ID,
			CustomerID: estimate.CustomerID,
			Title:      estimate.Title,
			Status:     domain.StatusOpen,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		job.SetLedger(balance.New(estimate.Total))

		claimed, err := s.estimates.MarkConverted(ctx, tx, orgID, id, estimatedomain.ConvertedToJobOrder, job.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return s.estimates.ConversionFailure(ctx, tx, orgID, id, estimatedomain.ConvertedToJobOrder)
		}

		if err := s.insert(ctx, tx, &job, ""); err != nil {
			return err
		}
		if estimate.InvoiceID == nil {
			return nil
		}
		invoiceID = *estimate.InvoiceID
		drawn, err := s.repo.AdoptInvoice(ctx, tx, orgID, invoiceID, job.ID, now)
		if err != nil {
			return err
		}
		ledger, err := job.Ledger().Apply(drawn)
		if err != nil {
			return domain.ErrTotalBelowInvoiced
		}
		job.SetLedger(ledger)
		return s.repo.UpdateJobOrderLedger(ctx, tx, &job)
	})
	if err != nil {
		return domain.JobOrder{}, err
	}

	metadata := map[string]any{
		"estimate_id": id.String(),
		"total":       job.Total,
	}
	topics := []viewcache.Topic{viewcache.TopicJobOrder, viewcache.TopicEstimate}
	if invoiceID != 0 {
		metadata["invoice_id"] = invoiceID.String()
		topics = append(topics, viewcache.TopicInvoice)
	}
	s.afterCommit(ctx, "job_order.convert", "job_order", job.OrgID, job.ID, metadata, topics...)
	return job, nil
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, job *domain.JobOrder, requested string) error {
	number, err := docnumber.Resolve(ctx, tx, "job_orders", docnumber.PrefixJobOrder, job.OrgID, requested)
	if err != nil {
		return err
	}
	job.Number = number
	if err := s.repo.InsertJobOrder(ctx, tx, job); err != nil {
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

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateJobOrderRequest) (domain.JobOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.JobOrder{}, domain.ErrInvalidOrganization
	}
	jobID, err := parseID(id)
	if err != nil {
		return domain.JobOrder{}, err
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return domain.JobOrder{}, domain.ErrInvalidTitle
	}
	if req.Total != nil && *req.Total < 0 {
		return domain.JobOrder{}, domain.ErrInvalidTotal
	}

	var job domain.JobOrder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindJobOrderForUpdate(ctx, tx, orgID, jobID)
		if err != nil {
			return err
		}
		if current == nil || current.DeletedAt != nil {
			return domain.ErrNotFound
		}

		if req.Title != nil {
			current.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			current.Description = strings.TrimSpace(*req.Description)
		}
		if req.SiteAddress != nil {
			current.SiteAddress = strings.TrimSpace(*req.SiteAddress)
		}
		if req.Total != nil {
			ledger, err := current.Ledger().Retotal(*req.Total)
			if err != nil {
				return domain.ErrTotalBelowInvoiced
			}
			current.SetLedger(ledger)
		}
		current.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateJobOrder(ctx, tx, current); err != nil {
			return err
		}
		job = *current
		return nil
	})
	if err != nil {
		return domain.JobOrder{}, err
	}

	s.afterCommit(ctx, "job_order.update", "job_order", job.OrgID, job.ID, nil, viewcache.TopicJobOrder)
	return job, nil
}

func (s *Service) Transition(ctx context.Context, id string, to domain.Status) (domain.JobOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.JobOrder{}, domain.ErrInvalidOrganization
	}
	jobID, err := parseID(id)
	if err != nil {
		return domain.JobOrder{}, err
	}
	switch to {
	case domain.StatusOpen, domain.StatusInProgress, domain.StatusCompleted, domain.StatusCancelled:
	default:
		return domain.JobOrder{}, domain.ErrInvalidStatus
	}

	job, err := s.repo.FindJobOrder(ctx, s.db, orgID, jobID)
	if err != nil {
		return domain.JobOrder{}, err
	}
	if job == nil || job.DeletedAt != nil {
		return domain.JobOrder{}, domain.ErrNotFound
	}
	from := job.Status
	if !domain.CanTransition(from, to) {
		return domain.JobOrder{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	moved, err := s.repo.SetJobOrderStatus(ctx, s.db, orgID, jobID, from, to, now)
	if err != nil {
		return domain.JobOrder{}, err
	}
	if !moved {
		return domain.JobOrder{}, domain.ErrInvalidTransition
	}
	job.Status = to
	job.UpdatedAt = now

	s.afterCommit(ctx, "job_order.transition", "job_order", orgID, jobID, map[string]any{
		"from": string(from),
		"to":   string(to),
	}, viewcache.TopicJobOrder)
	return *job, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.JobOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.JobOrder{}, domain.ErrInvalidOrganization
	}
	jobID, err := parseID(id)
	if err != nil {
		return domain.JobOrder{}, err
	}
	job, err := s.repo.FindJobOrder(ctx, s.db, orgID, jobID)
	if err != nil {
		return domain.JobOrder{}, err
	}
	if job == nil || job.DeletedAt != nil {
		return domain.JobOrder{}, domain.ErrNotFound
	}
	return *job, nil
}

func (s *Service) List(ctx context.Context, req domain.ListJobOrderRequest) (domain.ListJobOrderResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListJobOrderResponse{}, domain.ErrInvalidOrganization
	}
	filter := domain.ListFilter{Status: domain.Status(strings.TrimSpace(req.Status)), Page: req.Pagination}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		customerID, err := parseID(raw)
		if err != nil {
			return domain.ListJobOrderResponse{}, domain.ErrInvalidCustomer
		}
		filter.CustomerID = customerID
	}

	items, err := s.repo.ListJobOrders(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListJobOrderResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(j domain.JobOrder) int64 {
		return j.ID.Int64()
	})
	return domain.ListJobOrderResponse{PageInfo: pageInfo, JobOrders: items}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	jobID, err := parseID(id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.repo.FindJobOrderForUpdate(ctx, tx, orgID, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return domain.ErrNotFound
		}
		if job.DeletedAt != nil {
			return domain.ErrAlreadyDeleted
		}
		live, err := s.repo.CountLiveInvoices(ctx, tx, orgID, "job_order_id", jobID)
		if err != nil {
			return err
		}
		if live > 0 {
			return domain.ErrHasLiveInvoices
		}
		deleted, err := s.repo.SoftDeleteJobOrder(ctx, tx, orgID, jobID, orgcontext.ActorID(ctx), s.clock.Now())
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrAlreadyDeleted
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, "job_order.delete", "job_order", orgID, jobID, nil, viewcache.TopicJobOrder)
	return nil
}

func (s *Service) Restore(ctx context.Context, id string) (domain.JobOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.JobOrder{}, domain.ErrInvalidOrganization
	}
	jobID, err := parseID(id)
	if err != nil {
		return domain.JobOrder{}, err
	}

	restored, err := s.repo.RestoreJobOrder(ctx, s.db, orgID, jobID, s.clock.Now())
	if err != nil {
		return domain.JobOrder{}, err
	}
	job, err := s.repo.FindJobOrder(ctx, s.db, orgID, jobID)
	if err != nil {
		return domain.JobOrder{}, err
	}
	if job == nil {
		return domain.JobOrder{}, domain.ErrNotFound
	}
	if !restored {
		return domain.JobOrder{}, domain.ErrNotDeleted
	}

	s.afterCommit(ctx, "job_order.restore", "job_order", orgID, jobID, nil, viewcache.TopicJobOrder)
	return *job, nil
}

func (s *Service) Summary(ctx context.Context, id string) (domain.Summary, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Summary{}, err
	}
	changes, err := s.repo.ListChangeOrders(ctx, s.db, job.OrgID, job.ID)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.Summarize(job, changes), nil
}

func (s *Service) afterCommit(ctx context.Context, action, targetType string, orgID, id snowflake.ID, metadata map[string]any, topics ...viewcache.Topic) {
	s.publisher.Publish(ctx, orgID, topics...)
	s.metrics.RecordDocumentMutation(ctx, targetType, action)
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: targetType,
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
