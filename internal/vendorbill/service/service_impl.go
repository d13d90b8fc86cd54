package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/docnumber"
	"github.com/smallbiznis/fieldbooks/internal/observability/metrics"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	podomain "github.com/smallbiznis/fieldbooks/internal/purchaseorder/domain"
	vendordomain "github.com/smallbiznis/fieldbooks/internal/supplier/domain"
	"github.com/smallbiznis/fieldbooks/internal/vendorbill/domain"
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
	Repo           domain.Repository
	Vendors        vendordomain.Repository
	PurchaseOrders podomain.Repository
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
	repo           domain.Repository
	vendors        vendordomain.Repository
	purchaseOrders podomain.Repository
	accounting     accountingdomain.Service
	accountingRepo accountingdomain.Repository
	publisher      viewcache.Publisher
	auditSvc       auditdomain.Service
	metrics        *metrics.Metrics
}

func New(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = viewcache.NopPublisher{}
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("vendorbill.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		vendors:        p.Vendors,
		purchaseOrders: p.PurchaseOrders,
		accounting:     p.Accounting,
		accountingRepo: p.AccountingRepo,
		publisher:      publisher,
		auditSvc:       p.AuditSvc,
		metrics:        p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateVendorBillRequest) (domain.VendorBill, []string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.VendorBill{}, nil, domain.ErrInvalidOrganization
	}
	if scoped, ok := orgcontext.VendorScope(ctx); ok {
		if req.VendorID == 0 {
			req.VendorID = scoped
		}
		if req.VendorID != scoped {
			return domain.VendorBill{}, nil, domain.ErrVendorScope
		}
	}
	if req.VendorID == 0 {
		return domain.VendorBill{}, nil, domain.ErrInvalidVendor
	}
	if req.PurchaseOrderID != nil && *req.PurchaseOrderID == 0 {
		return domain.VendorBill{}, nil, domain.ErrPurchaseOrderNotFound
	}

	now := s.clock.Now()
	bill := domain.VendorBill{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		VendorID:        req.VendorID,
		PurchaseOrderID: req.PurchaseOrderID,
		Notes:           strings.TrimSpace(req.Notes),
		DueDate:         req.DueDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	lines, total, err := s.buildLines(&bill, req.Lines)
	if err != nil {
		return domain.VendorBill{}, nil, err
	}
	bill.Lines = lines
	bill.Total = total
	bill.Settle(nil)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vendor, err := s.vendors.FindByID(ctx, tx, orgID, bill.VendorID)
		if err != nil {
			return err
		}
		if vendor == nil || vendor.DeletedAt != nil {
			return domain.ErrInvalidVendor
		}
		po, err := s.lockPurchaseOrder(ctx, tx, &bill, true)
		if err != nil {
			return err
		}
		if po != nil {
			if err := po.checkLines(bill.Lines); err != nil {
				return err
			}
		}

		number, err := docnumber.Resolve(ctx, tx, "vendor_bills", docnumber.PrefixVendorBill, orgID, req.Number)
		if err != nil {
			return err
		}
		bill.Number = number
		if err := s.repo.Insert(ctx, tx, &bill); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateNumber
			}
			return err
		}
		if po == nil {
			return nil
		}
		if err := po.apply(bill.Lines, bill.Total); err != nil {
			return err
		}
		return s.savePurchaseOrder(ctx, tx, po)
	})
	if err != nil {
		return domain.VendorBill{}, nil, err
	}

	s.afterCommit(ctx, "vendor_bill.create", &bill, map[string]any{"number": bill.Number}, billTopics(&bill)...)
	return bill, s.syncBill(ctx, bill, accountingdomain.OperationUpsert), nil
}

// Update edits a live bill. Replacing the lines retotals the bill, moves the purchase order
// by the difference and resettles against the existing payments.
func (s *Service) Update(ctx context.Context, id string, req domain.UpdateVendorBillRequest) (domain.VendorBill, []string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.VendorBill{}, nil, domain.ErrInvalidOrganization
	}
	billID, err := parseID(id)
	if err != nil {
		return domain.VendorBill{}, nil, err
	}

	var bill domain.VendorBill
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.loadLiveForUpdate(ctx, tx, orgID, billID)
		if err != nil {
			return err
		}
		if req.Notes != nil {
			current.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.DueDate != nil {
			current.DueDate = req.DueDate
		}

		existing, err := s.repo.ListLines(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		current.Lines = existing
		if req.Lines != nil {
			lines, total, err := s.buildLines(current, req.Lines)
			if err != nil {
				return err
			}
			if total < current.PaidAmount {
				return domain.ErrTotalBelowPaid
			}
			po, err := s.lockPurchaseOrder(ctx, tx, current, false)
			if err != nil {
				return err
			}
			if po != nil {
				if err := po.checkLines(lines); err != nil {
					return err
				}
				if err := po.replace(existing, current.Total, lines, total); err != nil {
					return err
				}
				if err := s.savePurchaseOrder(ctx, tx, po); err != nil {
					return err
				}
			}
			current.Lines = lines
			current.Total = total
			if err := s.repo.ReplaceLines(ctx, tx, current); err != nil {
				return err
			}
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
		bill = *current
		return nil
	})
	if err != nil {
		return domain.VendorBill{}, nil, err
	}

	s.afterCommit(ctx, "vendor_bill.update", &bill, nil, billTopics(&bill)...)
	return bill, s.syncBill(ctx, bill, accountingdomain.OperationUpsert), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.VendorBill, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.VendorBill{}, domain.ErrInvalidOrganization
	}
	billID, err := parseID(id)
	if err != nil {
		return domain.VendorBill{}, err
	}
	bill, err := s.repo.FindByID(ctx, s.db, orgID, billID)
	if err != nil {
		return domain.VendorBill{}, err
	}
	if bill == nil || bill.DeletedAt != nil || !visible(ctx, bill) {
		return domain.VendorBill{}, domain.ErrNotFound
	}
	lines, err := s.repo.ListLines(ctx, s.db, bill.ID)
	if err != nil {
		return domain.VendorBill{}, err
	}
	bill.Lines = lines
	return *bill, nil
}

func (s *Service) List(ctx context.Context, req domain.ListVendorBillRequest) (domain.ListVendorBillResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListVendorBillResponse{}, domain.ErrInvalidOrganization
	}
	filter := domain.ListFilter{Status: domain.Status(strings.TrimSpace(req.Status)), Page: req.Pagination}
	if raw := strings.TrimSpace(req.VendorID); raw != "" {
		vendorID, err := parseID(raw)
		if err != nil {
			return domain.ListVendorBillResponse{}, domain.ErrInvalidVendor
		}
		filter.VendorID = vendorID
	}
	if raw := strings.TrimSpace(req.PurchaseOrderID); raw != "" {
		poID, err := parseID(raw)
		if err != nil {
			return domain.ListVendorBillResponse{}, err
		}
		filter.PurchaseOrderID = poID
	}
	if scoped, ok := orgcontext.VendorScope(ctx); ok {
		filter.VendorID = scoped
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListVendorBillResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(b domain.VendorBill) int64 {
		return b.ID.Int64()
	})
	return domain.ListVendorBillResponse{PageInfo: pageInfo, VendorBills: items}, nil
}

// Delete soft-deletes the bill and gives its amount and quantities back to the purchase order.
func (s *Service) Delete(ctx context.Context, id string) ([]string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	billID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var bill domain.VendorBill
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, billID)
		if err != nil {
			return err
		}
		if current == nil || !visible(ctx, current) {
			return domain.ErrNotFound
		}
		deleted, err := s.repo.SoftDelete(ctx, tx, orgID, billID, orgcontext.ActorID(ctx), s.clock.Now())
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrAlreadyDeleted
		}
		if err := s.reverse(ctx, tx, current); err != nil {
			return err
		}
		bill = *current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, "vendor_bill.delete", &bill, nil, billTopics(&bill)...)
	return s.syncBill(ctx, bill, accountingdomain.OperationDelete), nil
}

func (s *Service) Restore(ctx context.Context, id string) (domain.VendorBill, []string, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.VendorBill{}, nil, domain.ErrInvalidOrganization
	}
	billID, err := parseID(id)
	if err != nil {
		return domain.VendorBill{}, nil, err
	}

	var bill domain.VendorBill
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		restored, err := s.repo.Restore(ctx, tx, orgID, billID, s.clock.Now())
		if err != nil {
			return err
		}
		current, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, billID)
		if err != nil {
			return err
		}
		if current == nil || !visible(ctx, current) {
			return domain.ErrNotFound
		}
		if !restored {
			return domain.ErrNotDeleted
		}

		lines, err := s.repo.ListLines(ctx, tx, current.ID)
		if err != nil {
			return err
		}
		current.Lines = lines
		po, err := s.lockPurchaseOrder(ctx, tx, current, true)
		if err != nil {
			return err
		}
		if po != nil {
			if err := po.apply(lines, current.Total); err != nil {
				return err
			}
			if err := s.savePurchaseOrder(ctx, tx, po); err != nil {
				return err
			}
		}
		bill = *current
		return nil
	})
	if err != nil {
		return domain.VendorBill{}, nil, err
	}

	s.afterCommit(ctx, "vendor_bill.restore", &bill, nil, billTopics(&bill)...)
	return bill, s.syncBill(ctx, bill, accountingdomain.OperationUpsert), nil
}

// HardDelete removes the bill, its lines, payments and their sync mappings. Nothing is
// pushed to the accounting system.
func (s *Service) HardDelete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	billID, err := parseID(id)
	if err != nil {
		return err
	}

	var bill domain.VendorBill
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, billID)
		if err != nil {
			return err
		}
		if current == nil || !visible(ctx, current) {
			return domain.ErrNotFound
		}
		if current.DeletedAt == nil {
			if err := s.reverse(ctx, tx, current); err != nil {
				return err
			}
		}
		paymentIDs, err := s.repo.HardDelete(ctx, tx, orgID, billID)
		if err != nil {
			return err
		}
		bill = *current
		if s.accountingRepo == nil {
			return nil
		}
		if err := s.accountingRepo.DeleteFor(ctx, tx, orgID, accountingdomain.EntityVendorBillPayment, paymentIDs...); err != nil {
			return err
		}
		return s.accountingRepo.DeleteFor(ctx, tx, orgID, accountingdomain.EntityVendorBill, billID)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, "vendor_bill.purge", &bill, nil,
		billTopics(&bill, viewcache.TopicVendorBillPayment, viewcache.TopicSync)...)
	return nil
}

// reverse hands a live bill's contribution back to its purchase order.
func (s *Service) reverse(ctx context.Context, tx *gorm.DB, bill *domain.VendorBill) error {
	po, err := s.lockPurchaseOrder(ctx, tx, bill, false)
	if err != nil || po == nil {
		return err
	}
	lines, err := s.repo.ListLines(ctx, tx, bill.ID)
	if err != nil {
		return err
	}
	po.reverse(lines, bill.Total)
	return s.savePurchaseOrder(ctx, tx, po)
}

func (s *Service) loadLiveForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.VendorBill, error) {
	bill, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
	if err != nil {
		return nil, err
	}
	if bill == nil || !visible(ctx, bill) {
		return nil, domain.ErrNotFound
	}
	if bill.DeletedAt != nil {
		return nil, domain.ErrDeleted
	}
	return bill, nil
}

func (s *Service) buildLines(bill *domain.VendorBill, inputs []domain.LineInput) ([]domain.Line, int64, error) {
	if len(inputs) == 0 {
		return nil, 0, domain.ErrInvalidLine
	}
	now := s.clock.Now()
	lines := make([]domain.Line, 0, len(inputs))
	var total int64
	for i, input := range inputs {
		description := strings.TrimSpace(input.Description)
		if description == "" || !input.Quantity.IsPositive() || input.UnitPrice < 0 {
			return nil, 0, domain.ErrInvalidLine
		}
		if input.PurchaseOrderLineID != nil && bill.PurchaseOrderID == nil {
			return nil, 0, domain.ErrInvalidLine
		}
		amount := podomain.LineAmount(input.Quantity, input.UnitPrice)
		lines = append(lines, domain.Line{
			ID:                  s.genID.Generate(),
			OrgID:               bill.OrgID,
			VendorBillID:        bill.ID,
			PurchaseOrderLineID: input.PurchaseOrderLineID,
			Position:            i + 1,
			Description:         description,
			Quantity:            input.Quantity,
			UnitPrice:           input.UnitPrice,
			Amount:              amount,
			CreatedAt:           now,
		})
		total += amount
	}
	if total <= 0 {
		return nil, 0, domain.ErrInvalidTotal
	}
	return lines, total, nil
}

// visible hides other vendors' bills from portal actors.
func visible(ctx context.Context, bill *domain.VendorBill) bool {
	scoped, ok := orgcontext.VendorScope(ctx)
	return !ok || bill.VendorID == scoped
}

func (s *Service) syncBill(ctx context.Context, bill domain.VendorBill, op accountingdomain.Operation) []string {
	if s.accounting == nil {
		return nil
	}
	payload := map[string]any{
		"number":    bill.Number,
		"vendor_id": bill.VendorID.String(),
		"total":     bill.Total,
		"status":    string(bill.Status),
	}
	if bill.DueDate != nil {
		payload["due_date"] = bill.DueDate.UTC().Format(time.DateOnly)
	}
	return s.accounting.Sync(ctx, accountingdomain.Document{
		OrgID:      bill.OrgID,
		EntityType: accountingdomain.EntityVendorBill,
		EntityID:   bill.ID,
		Operation:  op,
		Payload:    payload,
	})
}

func (s *Service) afterCommit(ctx context.Context, action string, bill *domain.VendorBill, metadata map[string]any, topics ...viewcache.Topic) {
	for _, topic := range topics {
		if topic == viewcache.TopicPurchaseOrder {
			s.metrics.RecordBalanceAdjustment(ctx, string(topic))
		}
	}
	s.publisher.Publish(ctx, bill.OrgID, topics...)
	s.metrics.RecordDocumentMutation(ctx, "vendor_bill", action)
	if s.auditSvc == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["total"] = bill.Total
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "vendor_bill",
		TargetID:   bill.ID,
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit failed", zap.String("action", action), zap.Error(err))
	}
}

// billTopics lists the views a bill write invalidates.
func billTopics(bill *domain.VendorBill, extra ...viewcache.Topic) []viewcache.Topic {
	topics := append([]viewcache.Topic{viewcache.TopicVendorBill}, extra...)
	if bill.PurchaseOrderID != nil {
		topics = append(topics, viewcache.TopicPurchaseOrder)
	}
	return topics
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
