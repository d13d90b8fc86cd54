package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/balance"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/docnumber"
	joborderdomain "github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	"github.com/smallbiznis/fieldbooks/internal/observability/metrics"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/purchaseorder/domain"
	vendordomain "github.com/smallbiznis/fieldbooks/internal/supplier/domain"
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
	Vendors   vendordomain.Repository
	JobOrders joborderdomain.Repository
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
	vendors   vendordomain.Repository
	jobOrders joborderdomain.Repository
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
		log:       p.Log.Named("purchaseorder.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		vendors:   p.Vendors,
		jobOrders: p.JobOrders,
		publisher: publisher,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePurchaseOrderRequest) (domain.PurchaseOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PurchaseOrder{}, domain.ErrInvalidOrganization
	}
	if req.VendorID == 0 {
		return domain.PurchaseOrder{}, domain.ErrInvalidVendor
	}
	if len(req.Lines) == 0 {
		return domain.PurchaseOrder{}, domain.ErrNoLines
	}

	now := s.clock.Now()
	po := domain.PurchaseOrder{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		VendorID:   req.VendorID,
		JobOrderID: req.JobOrderID,
		Notes:      strings.TrimSpace(req.Notes),
		Status:     domain.StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	lines, total, err := s.buildLines(orgID, po.ID, req.Lines)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	po.Lines = lines
	po.SetLedger(balance.New(total))

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vendor, err := s.vendors.FindByID(ctx, tx, orgID, req.VendorID)
		if err != nil {
			return err
		}
		if vendor == nil || vendor.DeletedAt != nil {
			return domain.ErrInvalidVendor
		}
		if req.JobOrderID != nil {
			job, err := s.jobOrders.FindJobOrder(ctx, tx, orgID, *req.JobOrderID)
			if err != nil {
				return err
			}
			if job == nil || job.DeletedAt != nil {
				return domain.ErrInvalidJobOrder
			}
		}

		number, err := docnumber.Resolve(ctx, tx, "purchase_orders", docnumber.PrefixPurchaseOrder, orgID, req.Number)
		if err != nil {
			return err
		}
		po.Number = number
		if err := s.repo.Insert(ctx, tx, &po); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateNumber
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.afterCommit(ctx, "purchase_order.create", &po, nil)
	return po, nil
}

// Update edits notes at any time. Lines, and with them the total, can only be replaced
// before the first bill lands.
func (s *Service) Update(ctx context.Context, id string, req domain.UpdatePurchaseOrderRequest) (domain.PurchaseOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PurchaseOrder{}, domain.ErrInvalidOrganization
	}
	poID, err := parseID(id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if req.Lines != nil && len(req.Lines) == 0 {
		return domain.PurchaseOrder{}, domain.ErrNoLines
	}

	var updated domain.PurchaseOrder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		po, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, poID)
		if err != nil {
			return err
		}
		if po == nil || po.DeletedAt != nil {
			return domain.ErrNotFound
		}
		if req.Notes != nil {
			po.Notes = strings.TrimSpace(*req.Notes)
		}

		current, err := s.repo.ListLines(ctx, tx, po.ID)
		if err != nil {
			return err
		}
		po.Lines = current
		if req.Lines != nil {
			if po.BilledAmount > 0 || anyBilled(current) {
				return domain.ErrAlreadyBilled
			}
			lines, total, err := s.buildLines(orgID, po.ID, req.Lines)
			if err != nil {
				return err
			}
			ledger, err := po.Ledger().Retotal(total)
			if err != nil {
				return domain.ErrAlreadyBilled
			}
			po.SetLedger(ledger)
			po.Lines = lines
			if err := s.repo.ReplaceLines(ctx, tx, po); err != nil {
				return err
			}
		}

		po.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateHeader(ctx, tx, po); err != nil {
			return err
		}
		updated = *po
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.afterCommit(ctx, "purchase_order.update", &updated, nil)
	return updated, nil
}

func (s *Service) Close(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	return s.transition(ctx, id, domain.StatusOpen, domain.StatusClosed)
}

func (s *Service) Reopen(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	return s.transition(ctx, id, domain.StatusClosed, domain.StatusOpen)
}

func (s *Service) transition(ctx context.Context, id string, from, to domain.Status) (domain.PurchaseOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PurchaseOrder{}, domain.ErrInvalidOrganization
	}
	poID, err := parseID(id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	now := s.clock.Now()
	moved, err := s.repo.SetStatus(ctx, s.db, orgID, poID, from, to, now)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.repo.FindByID(ctx, s.db, orgID, poID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if po == nil || po.DeletedAt != nil {
		return domain.PurchaseOrder{}, domain.ErrNotFound
	}
	if !moved {
		return domain.PurchaseOrder{}, domain.ErrInvalidTransition
	}

	s.afterCommit(ctx, "purchase_order."+string(to), po, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	return *po, nil
}

// GetByID returns the purchase order with its lines. Vendor portal actors only see their own.
func (s *Service) GetByID(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PurchaseOrder{}, domain.ErrInvalidOrganization
	}
	poID, err := parseID(id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	po, err := s.repo.FindByID(ctx, s.db, orgID, poID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if po == nil || po.DeletedAt != nil {
		return domain.PurchaseOrder{}, domain.ErrNotFound
	}
	if vendorID, scoped := orgcontext.VendorScope(ctx); scoped && po.VendorID != vendorID {
		return domain.PurchaseOrder{}, domain.ErrNotFound
	}
	lines, err := s.repo.ListLines(ctx, s.db, po.ID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	po.Lines = lines
	return *po, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPurchaseOrderRequest) (domain.ListPurchaseOrderResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListPurchaseOrderResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{Status: domain.Status(strings.TrimSpace(req.Status)), Page: req.Pagination}
	if raw := strings.TrimSpace(req.VendorID); raw != "" {
		vendorID, err := parseID(raw)
		if err != nil {
			return domain.ListPurchaseOrderResponse{}, domain.ErrInvalidVendor
		}
		filter.VendorID = vendorID
	}
	if raw := strings.TrimSpace(req.JobOrderID); raw != "" {
		jobOrderID, err := parseID(raw)
		if err != nil {
			return domain.ListPurchaseOrderResponse{}, domain.ErrInvalidJobOrder
		}
		filter.JobOrderID = jobOrderID
	}
	if vendorID, scoped := orgcontext.VendorScope(ctx); scoped {
		filter.VendorID = vendorID
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListPurchaseOrderResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(p domain.PurchaseOrder) int64 {
		return p.ID.Int64()
	})
	return domain.ListPurchaseOrderResponse{PageInfo: pageInfo, PurchaseOrders: items}, nil
}

// Delete soft-deletes a purchase order that no live vendor bill draws on.
func (s *Service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	poID, err := parseID(id)
	if err != nil {
		return err
	}

	var po domain.PurchaseOrder
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, poID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.DeletedAt != nil {
			return domain.ErrAlreadyDeleted
		}
		bills, err := s.repo.CountLiveBills(ctx, tx, orgID, poID)
		if err != nil {
			return err
		}
		if bills > 0 {
			return domain.ErrHasLiveBills
		}
		deleted, err := s.repo.SoftDelete(ctx, tx, orgID, poID, orgcontext.ActorID(ctx), s.clock.Now())
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrAlreadyDeleted
		}
		po = *current
		return nil
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, "purchase_order.delete", &po, nil)
	return nil
}

func (s *Service) Restore(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.PurchaseOrder{}, domain.ErrInvalidOrganization
	}
	poID, err := parseID(id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	restored, err := s.repo.Restore(ctx, s.db, orgID, poID, s.clock.Now())
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	po, err := s.repo.FindByID(ctx, s.db, orgID, poID)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	if po == nil {
		return domain.PurchaseOrder{}, domain.ErrNotFound
	}
	if !restored {
		return domain.PurchaseOrder{}, domain.ErrNotDeleted
	}

	s.afterCommit(ctx, "purchase_order.restore", po, nil)
	return *po, nil
}

func (s *Service) buildLines(orgID, poID snowflake.ID, inputs []domain.LineInput) ([]domain.Line, int64, error) {
	now := s.clock.Now()
	lines := make([]domain.Line, 0, len(inputs))
	var total int64
	for i, input := range inputs {
		description := strings.TrimSpace(input.Description)
		if description == "" || !input.Quantity.IsPositive() || input.UnitPrice < 0 {
			return nil, 0, domain.ErrInvalidLine
		}
		amount := domain.LineAmount(input.Quantity, input.UnitPrice)
		lines = append(lines, domain.Line{
			ID:              s.genID.Generate(),
			OrgID:           orgID,
			PurchaseOrderID: poID,
			Position:        i + 1,
			Description:     description,
			Quantity:        input.Quantity,
			BilledQuantity:  decimal.Zero,
			UnitPrice:       input.UnitPrice,
			Amount:          amount,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		total += amount
	}
	return lines, total, nil
}

func anyBilled(lines []domain.Line) bool {
	for _, line := range lines {
		if line.BilledQuantity.IsPositive() {
			return true
		}
	}
	return false
}

func (s *Service) afterCommit(ctx context.Context, action string, po *domain.PurchaseOrder, extra map[string]any) {
	s.publisher.Publish(ctx, po.OrgID, viewcache.TopicPurchaseOrder)
	s.metrics.RecordDocumentMutation(ctx, "purchase_order", action)
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{"total": po.Total, "vendor_id": po.VendorID.String()}
	if po.Number != "" {
		metadata["number"] = po.Number
	}
	for key, value := range extra {
		metadata[key] = value
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "purchase_order",
		TargetID:   po.ID,
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
