package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/supplier/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Accounting accountingdomain.Service `optional:"true"`
	Publisher  viewcache.Publisher      `optional:"true"`
	AuditSvc   auditdomain.Service      `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	accounting accountingdomain.Service
	publisher  viewcache.Publisher
	auditSvc   auditdomain.Service
}

func New(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = viewcache.NopPublisher{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("vendor.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		accounting: p.Accounting,
		publisher:  publisher,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateVendorRequest) (domain.Vendor, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Vendor{}, domain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Vendor{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Vendor{}, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	vendor := domain.Vendor{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
		Trade:     strings.ToLower(strings.TrimSpace(req.Trade)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &vendor); err != nil {
		return domain.Vendor{}, err
	}
	s.afterCommit(ctx, orgID, "vendor.create", vendor.ID)
	s.sync(ctx, vendor, accountingdomain.OperationUpsert)
	return vendor, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateVendorRequest) (domain.Vendor, error) {
	vendor, err := s.load(ctx, id)
	if err != nil {
		return domain.Vendor{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Vendor{}, domain.ErrInvalidName
		}
		vendor.Name = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" && !strings.Contains(email, "@") {
			return domain.Vendor{}, domain.ErrInvalidEmail
		}
		vendor.Email = email
	}
	if req.Phone != nil {
		vendor.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Trade != nil {
		vendor.Trade = strings.ToLower(strings.TrimSpace(*req.Trade))
	}
	vendor.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, vendor); err != nil {
		return domain.Vendor{}, err
	}
	s.afterCommit(ctx, vendor.OrgID, "vendor.update", vendor.ID)
	s.sync(ctx, *vendor, accountingdomain.OperationUpsert)
	return *vendor, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Vendor, error) {
	vendor, err := s.load(ctx, id)
	if err != nil {
		return domain.Vendor{}, err
	}
	return *vendor, nil
}

func (s *Service) List(ctx context.Context, req domain.ListVendorRequest) (domain.ListVendorResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListVendorResponse{}, domain.ErrInvalidOrganization
	}
	items, err := s.repo.List(ctx, s.db, orgID, domain.ListFilter{
		Name:  strings.TrimSpace(req.Name),
		Trade: strings.ToLower(strings.TrimSpace(req.Trade)),
		Page:  req.Pagination,
	})
	if err != nil {
		return domain.ListVendorResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(v domain.Vendor) int64 {
		return v.ID.Int64()
	})
	return domain.ListVendorResponse{PageInfo: pageInfo, Vendors: items}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	vendorID, err := parseID(id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.SoftDelete(ctx, s.db, orgID, vendorID, orgcontext.ActorID(ctx), s.clock.Now())
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.afterCommit(ctx, orgID, "vendor.delete", vendorID)
	s.sync(ctx, domain.Vendor{ID: vendorID, OrgID: orgID}, accountingdomain.OperationDelete)
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Vendor, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	vendorID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	vendor, err := s.repo.FindByID(ctx, s.db, orgID, vendorID)
	if err != nil {
		return nil, err
	}
	if vendor == nil {
		return nil, domain.ErrNotFound
	}
	return vendor, nil
}

func (s *Service) afterCommit(ctx context.Context, orgID snowflake.ID, action string, id snowflake.ID) {
	s.publisher.Publish(ctx, orgID, viewcache.TopicVendor)
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{Action: action, TargetType: "vendor", TargetID: id}); err != nil {
		s.log.Warn("audit failed", zap.String("action", action), zap.Error(err))
	}
}

// sync pushes the vendor to the accounting system. Warnings are only logged because vendor
// writes have no caller-facing warning channel.
func (s *Service) sync(ctx context.Context, c domain.Vendor, op accountingdomain.Operation) {
	if s.accounting == nil {
		return
	}
	var payload map[string]any
	if op == accountingdomain.OperationUpsert {
		payload = map[string]any{
			"name":  c.Name,
			"email": c.Email,
			"phone": c.Phone,
			"trade": c.Trade,
		}
	}
	warnings := s.accounting.Sync(ctx, accountingdomain.Document{
		OrgID:      c.OrgID,
		EntityType: accountingdomain.EntityVendor,
		EntityID:   c.ID,
		Operation:  op,
		Payload:    payload,
	})
	for _, warning := range warnings {
		s.log.Warn("accounting sync warning", zap.String("vendor_id", c.ID.String()), zap.String("warning", warning))
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
