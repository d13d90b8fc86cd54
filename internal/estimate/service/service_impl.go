package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	customerdomain "github.com/smallbiznis/fieldbooks/internal/customer/domain"
	"github.com/smallbiznis/fieldbooks/internal/docnumber"
	"github.com/smallbiznis/fieldbooks/internal/estimate/domain"
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
		log:       p.Log.Named("estimate.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		customers: p.Customers,
		publisher: publisher,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateEstimateRequest) (domain.Estimate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Estimate{}, domain.ErrInvalidOrganization
	}
	if req.CustomerID == 0 {
		return domain.Estimate{}, domain.ErrInvalidCustomer
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Estimate{}, domain.ErrInvalidTitle
	}

	now := s.clock.Now()
	estimate := domain.Estimate{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		CustomerID: req.CustomerID,
		Title:      title,
		Notes:      strings.TrimSpace(req.Notes),
		Status:     domain.StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	lines, total, err := s.buildLines(orgID, estimate.ID, req.Lines)
	if err != nil {
		return domain.Estimate{}, err
	}
	estimate.Lines = lines
	estimate.Total = total

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.customers.FindByID(ctx, tx, orgID, req.CustomerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrInvalidCustomer
		}

		number, err := docnumber.Resolve(ctx, tx, "estimates", docnumber.PrefixEstimate, orgID, req.Number)
		if err != nil {
			return err
		}
		estimate.Number = number

		if err := s.repo.Insert(ctx, tx, &estimate); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateNumber
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Estimate{}, err
	}

	s.afterCommit(ctx, "estimate.create", &estimate, nil)
	return estimate, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateEstimateRequest) (domain.Estimate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Estimate{}, domain.ErrInvalidOrganization
	}
	estimateID, err := parseID(id)
	if err != nil {
		return domain.Estimate{}, err
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return domain.Estimate{}, domain.ErrInvalidTitle
	}

	var updated domain.Estimate
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		estimate, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, estimateID)
		if err != nil {
			return err
		}
		if estimate == nil || estimate.DeletedAt != nil {
			return domain.ErrNotFound
		}

		if req.Title != nil {
			estimate.Title = strings.TrimSpace(*req.Title)
		}
		if req.Notes != nil {
			estimate.Notes = strings.TrimSpace(*req.Notes)
		}

		if req.Lines != nil {
			if estimate.Status != domain.StatusDraft {
				return domain.ErrNotDraft
			}
			lines, _, err := s.buildLines(orgID, estimate.ID, req.Lines)
			if err != nil {
				return err
			}
			estimate.Lines = lines
			if err := s.repo.ReplaceLines(ctx, tx, estimate); err != nil {
				return err
			}
		} else {
			lines, err := s.repo.ListLines(ctx, tx, estimate.ID)
			if err != nil {
				return err
			}
			estimate.Lines = lines
		}

		estimate.Total = sumLines(estimate.Lines)
		estimate.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateHeader(ctx, tx, estimate); err != nil {
			return err
		}
		updated = *estimate
		return nil
	})
	if err != nil {
		return domain.Estimate{}, err
	}

	s.afterCommit(ctx, "estimate.update", &updated, nil)
	return updated, nil
}

func (s *Service) Transition(ctx context.Context, id string, to domain.Status) (domain.Estimate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Estimate{}, domain.ErrInvalidOrganization
	}
	estimateID, err := parseID(id)
	if err != nil {
		return domain.Estimate{}, err
	}
	switch to {
	case domain.StatusDraft, domain.StatusSent, domain.StatusApproved, domain.StatusRejected:
	default:
		return domain.Estimate{}, domain.ErrInvalidStatus
	}

	estimate, err := s.repo.FindByID(ctx, s.db, orgID, estimateID)
	if err != nil {
		return domain.Estimate{}, err
	}
	if estimate == nil || estimate.DeletedAt != nil {
		return domain.Estimate{}, domain.ErrNotFound
	}
	from := estimate.Status
	if !domain.CanTransition(from, to) {
		return domain.Estimate{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	moved, err := s.repo.SetStatus(ctx, s.db, orgID, estimateID, from, to, now)
	if err != nil {
		return domain.Estimate{}, err
	}
	if !moved {
		return domain.Estimate{}, domain.ErrInvalidTransition
	}

	estimate.Status = to
	estimate.UpdatedAt = now
	if to == domain.StatusApproved {
		estimate.ApprovedAt = &now
	}
	s.afterCommit(ctx, "estimate.transition", estimate, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	return *estimate, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Estimate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Estimate{}, domain.ErrInvalidOrganization
	}
	estimateID, err := parseID(id)
	if err != nil {
		return domain.Estimate{}, err
	}

	estimate, err := s.repo.FindByID(ctx, s.db, orgID, estimateID)
	if err != nil {
		return domain.Estimate{}, err
	}
	if estimate == nil || estimate.DeletedAt != nil {
		return domain.Estimate{}, domain.ErrNotFound
	}
	lines, err := s.repo.ListLines(ctx, s.db, estimate.ID)
	if err != nil {
		return domain.Estimate{}, err
	}
	estimate.Lines = lines
	return *estimate, nil
}

func (s *Service) List(ctx context.Context, req domain.ListEstimateRequest) (domain.ListEstimateResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListEstimateResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{Status: domain.Status(strings.TrimSpace(req.Status)), Page: req.Pagination}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		customerID, err := parseID(raw)
		if err != nil {
			return domain.ListEstimateResponse{}, domain.ErrInvalidCustomer
		}
		filter.CustomerID = customerID
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListEstimateResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(e domain.Estimate) int64 {
		return e.ID.Int64()
	})
	return domain.ListEstimateResponse{PageInfo: pageInfo, Estimates: items}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	estimateID, err := parseID(id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.SoftDelete(ctx, s.db, orgID, estimateID, orgcontext.ActorID(ctx), s.clock.Now())
	if err != nil {
		return err
	}
	if !deleted {
		existing, err := s.repo.FindByID(ctx, s.db, orgID, estimateID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyDeleted
	}

	s.afterCommit(ctx, "estimate.delete", &domain.Estimate{ID: estimateID, OrgID: orgID}, nil)
	return nil
}

func (s *Service) Restore(ctx context.Context, id string) (domain.Estimate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Estimate{}, domain.ErrInvalidOrganization
	}
	estimateID, err := parseID(id)
	if err != nil {
		return domain.Estimate{}, err
	}

	restored, err := s.repo.Restore(ctx, s.db, orgID, estimateID, s.clock.Now())
	if err != nil {
		return domain.Estimate{}, err
	}
	estimate, err := s.repo.FindByID(ctx, s.db, orgID, estimateID)
	if err != nil {
		return domain.Estimate{}, err
	}
	if estimate == nil {
		return domain.Estimate{}, domain.ErrNotFound
	}
	if !restored {
		return domain.Estimate{}, domain.ErrNotDeleted
	}

	s.afterCommit(ctx, "estimate.restore", estimate, nil)
	return *estimate, nil
}

func (s *Service) buildLines(orgID, estimateID snowflake.ID, inputs []domain.LineInput) ([]domain.Line, int64, error) {
	now := s.clock.Now()
	lines := make([]domain.Line, 0, len(inputs))
	for i, input := range inputs {
		description := strings.TrimSpace(input.Description)
		if description == "" || !input.Quantity.IsPositive() || input.UnitPrice < 0 {
			return nil, 0, domain.ErrInvalidLine
		}
		lines = append(lines, domain.Line{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			EstimateID:  estimateID,
			Position:    i + 1,
			Description: description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			Amount:      domain.LineAmount(input.Quantity, input.UnitPrice),
			CreatedAt:   now,
		})
	}
	return lines, sumLines(lines), nil
}

func sumLines(lines []domain.Line) int64 {
	var total int64
	for _, line := range lines {
		total += line.Amount
	}
	return total
}

func (s *Service) afterCommit(ctx context.Context, action string, estimate *domain.Estimate, extra map[string]any) {
	s.publisher.Publish(ctx, estimate.OrgID, viewcache.TopicEstimate)
	s.metrics.RecordDocumentMutation(ctx, "estimate", action)
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{"total": estimate.Total}
	if estimate.Number != "" {
		metadata["number"] = estimate.Number
	}
	for key, value := range extra {
		metadata[key] = value
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "estimate",
		TargetID:   estimate.ID,
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
