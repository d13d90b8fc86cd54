package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	"github.com/smallbiznis/fieldbooks/internal/providers/email"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
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
	Config    config.Config
	Repo      domain.Repository
	Email     email.Provider      `optional:"true"`
	Publisher viewcache.Publisher `optional:"true"`
	AuditSvc  auditdomain.Service `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	companyName string
	officeInbox string
	repo        domain.Repository
	email       email.Provider
	publisher   viewcache.Publisher
	auditSvc    auditdomain.Service
}

func New(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = viewcache.NopPublisher{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("personnel.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		companyName: p.Config.CompanyName,
		officeInbox: strings.TrimSpace(p.Config.Email.OfficeInbox),
		repo:        p.Repo,
		email:       p.Email,
		publisher:   publisher,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) CreatePerson(ctx context.Context, req domain.CreatePersonRequest) (domain.Person, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Person{}, domain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Person{}, domain.ErrInvalidName
	}
	emailAddr := strings.TrimSpace(req.Email)
	if emailAddr != "" && !strings.Contains(emailAddr, "@") {
		return domain.Person{}, domain.ErrInvalidEmail
	}
	if req.HourlyRate < 0 {
		return domain.Person{}, domain.ErrInvalidHourlyRate
	}

	now := s.clock.Now()
	person := domain.Person{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		Name:       name,
		Email:      emailAddr,
		Phone:      strings.TrimSpace(req.Phone),
		Trade:      strings.ToLower(strings.TrimSpace(req.Trade)),
		HourlyRate: req.HourlyRate,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertPerson(ctx, s.db, &person); err != nil {
		return domain.Person{}, err
	}
	s.afterCommit(ctx, orgID, "person.create", "person", person.ID)
	return person, nil
}

func (s *Service) UpdatePerson(ctx context.Context, id string, req domain.UpdatePersonRequest) (domain.Person, error) {
	person, err := s.loadPerson(ctx, id)
	if err != nil {
		return domain.Person{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Person{}, domain.ErrInvalidName
		}
		person.Name = name
	}
	if req.Email != nil {
		emailAddr := strings.TrimSpace(*req.Email)
		if emailAddr != "" && !strings.Contains(emailAddr, "@") {
			return domain.Person{}, domain.ErrInvalidEmail
		}
		person.Email = emailAddr
	}
	if req.Phone != nil {
		person.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Trade != nil {
		person.Trade = strings.ToLower(strings.TrimSpace(*req.Trade))
	}
	if req.HourlyRate != nil {
		if *req.HourlyRate < 0 {
			return domain.Person{}, domain.ErrInvalidHourlyRate
		}
		person.HourlyRate = *req.HourlyRate
	}
	if req.Active != nil {
		person.Active = *req.Active
	}
	person.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdatePerson(ctx, s.db, person); err != nil {
		return domain.Person{}, err
	}
	s.afterCommit(ctx, person.OrgID, "person.update", "person", person.ID)
	return *person, nil
}

func (s *Service) GetPerson(ctx context.Context, id string) (domain.Person, error) {
	person, err := s.loadPerson(ctx, id)
	if err != nil {
		return domain.Person{}, err
	}
	return *person, nil
}

func (s *Service) ListPeople(ctx context.Context, req domain.ListPeopleRequest) (domain.ListPeopleResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListPeopleResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{
		Trade: strings.ToLower(strings.TrimSpace(req.Trade)),
		Page:  req.Pagination,
	}
	switch strings.ToLower(strings.TrimSpace(req.Active)) {
	case "":
	case "true":
		active := true
		filter.Active = &active
	case "false":
		active := false
		filter.Active = &active
	default:
		return domain.ListPeopleResponse{}, domain.ErrInvalidActiveFilter
	}

	items, err := s.repo.ListPeople(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListPeopleResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(p domain.Person) int64 {
		return p.ID.Int64()
	})
	return domain.ListPeopleResponse{PageInfo: pageInfo, People: items}, nil
}

// DeletePerson soft-deletes the person along with their certifications. Time entries stay.
func (s *Service) DeletePerson(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	personID, err := parseID(id)
	if err != nil {
		return err
	}

	by := orgcontext.ActorID(ctx)
	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.SoftDeletePerson(ctx, tx, orgID, personID, by, now)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrNotFound
		}
		return s.repo.SoftDeleteCertificationsOf(ctx, tx, orgID, personID, by, now)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, orgID, "person.delete", "person", personID)
	return nil
}

func (s *Service) loadPerson(ctx context.Context, id string) (*domain.Person, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	personID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	person, err := s.repo.FindPerson(ctx, s.db, orgID, personID)
	if err != nil {
		return nil, err
	}
	if person == nil {
		return nil, domain.ErrNotFound
	}
	return person, nil
}

func (s *Service) afterCommit(ctx context.Context, orgID snowflake.ID, action, targetType string, id snowflake.ID) {
	s.publisher.Publish(ctx, orgID, viewcache.TopicPersonnel)
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{Action: action, TargetType: targetType, TargetID: id}); err != nil {
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
