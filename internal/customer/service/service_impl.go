package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/customer/domain"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
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
		log:        p.Log.Named("customer.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		accounting: p.Accounting,
		publisher:  publisher,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Customer{}, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	customer := domain.Customer{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		Name:           name,
		Email:          email,
		Phone:          strings.TrimSpace(req.Phone),
		BillingAddress: strings.TrimSpace(req.BillingAddress),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		return domain.Customer{}, err
	}

	s.afterCommit(ctx, orgID, "customer.create", customer.ID)
	s.sync(ctx, customer, accountingdomain.OperationUpsert)
	return customer, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateCustomerRequest) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}
	customerID, err := parseID(id)
	if err != nil {
		return domain.Customer{}, err
	}

	customer, err := s.repo.FindByID(ctx, s.db, orgID, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, domain.ErrInvalidName
		}
		customer.Name = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" && !strings.Contains(email, "@") {
			return domain.Customer{}, domain.ErrInvalidEmail
		}
		customer.Email = email
	}
	if req.Phone != nil {
		customer.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.BillingAddress != nil {
		customer.BillingAddress = strings.TrimSpace(*req.BillingAddress)
	}
	customer.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, customer); err != nil {
		return domain.Customer{}, err
	}

	s.afterCommit(ctx, orgID, "customer.update", customer.ID)
	s.sync(ctx, *customer, accountingdomain.OperationUpsert)
	return *customer, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListCustomerResponse{}, domain.ErrInvalidOrganization
	}

	items, err := s.repo.List(ctx, s.db, orgID, domain.ListCustomerFilter{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Page:  req.Pagination,
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(c domain.Customer) int64 {
		return c.ID.Int64()
	})
	return domain.ListCustomerResponse{PageInfo: pageInfo, Customers: items}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}
	customerID, err := parseID(id)
	if err != nil {
		return domain.Customer{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	customerID, err := parseID(id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.SoftDelete(ctx, s.db, orgID, customerID, orgcontext.ActorID(ctx), s.clock.Now())
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}

	s.afterCommit(ctx, orgID, "customer.delete", customerID)
	s.sync(ctx, domain.Customer{ID: customerID, OrgID: orgID}, accountingdomain.OperationDelete)
	return nil
}

func (s *Service) afterCommit(ctx context.Context, orgID snowflake.ID, action string, id snowflake.ID) {
	s.publisher.Publish(ctx, orgID, viewcache.TopicCustomer)
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "customer",
		TargetID:   id,
	}); err != nil {
		s.log.Warn("audit failed", zap.String("action", action), zap.Error(err))
	}
}

// sync pushes the customer to the accounting system. Warnings are only logged because customer
// writes have no caller-facing warning channel.
func (s *Service) sync(ctx context.Context, c domain.Customer, op accountingdomain.Operation) {
	if s.accounting == nil {
		return
	}
	var payload map[string]any
	if op == accountingdomain.OperationUpsert {
		payload = map[string]any{
			"name":            c.Name,
			"email":           c.Email,
			"phone":           c.Phone,
			"billing_address": c.BillingAddress,
		}
	}
	warnings := s.accounting.Sync(ctx, accountingdomain.Document{
		OrgID:      c.OrgID,
		EntityType: accountingdomain.EntityCustomer,
		EntityID:   c.ID,
		Operation:  op,
		Payload:    payload,
	})
	for _, warning := range warnings {
		s.log.Warn("accounting sync warning", zap.String("customer_id", c.ID.String()), zap.String("warning", warning))
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
