package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/config"
	joborderdomain "github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	"github.com/smallbiznis/fieldbooks/internal/observability/metrics"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	personneldomain "github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	"github.com/smallbiznis/fieldbooks/internal/timeentry/domain"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// hardHourCap bounds a single entry regardless of policy.
var hardHourCap = decimal.NewFromInt(24)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    *config.PolicyHolder
	Repo      domain.Repository
	People    personneldomain.Repository
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
	policy    *config.PolicyHolder
	repo      domain.Repository
	people    personneldomain.Repository
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
	policy := p.Policy
	if policy == nil {
		policy = config.NewStaticPolicyHolder(config.DefaultPolicy())
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("timeentry.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		policy:    policy,
		repo:      p.Repo,
		people:    p.People,
		jobOrders: p.JobOrders,
		publisher: publisher,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTimeEntryRequest) (domain.TimeEntry, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.TimeEntry{}, domain.ErrInvalidOrganization
	}
	if req.PersonID == 0 {
		return domain.TimeEntry{}, domain.ErrInvalidPerson
	}
	if req.JobOrderID == 0 {
		return domain.TimeEntry{}, domain.ErrInvalidJobOrder
	}
	if req.WorkDate.IsZero() {
		return domain.TimeEntry{}, domain.ErrInvalidWorkDate
	}
	threshold, hours, err := s.checkHours(req.Hours)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := s.checkPerson(ctx, orgID, req.PersonID); err != nil {
		return domain.TimeEntry{}, err
	}
	if err := s.checkJobOrder(ctx, orgID, req.JobOrderID); err != nil {
		return domain.TimeEntry{}, err
	}

	now := s.clock.Now()
	entry := domain.TimeEntry{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		PersonID:   req.PersonID,
		JobOrderID: req.JobOrderID,
		WorkDate:   domain.WorkDay(req.WorkDate),
		Notes:      strings.TrimSpace(req.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	entry.Apply(hours, threshold)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.claimDay(ctx, tx, &entry); err != nil {
			return err
		}
		return duplicateEntry(s.repo.Insert(ctx, tx, &entry))
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}

	s.afterCommit(ctx, "time_entry.create", &entry)
	return entry, nil
}

// Update re-splits hours under the current policy whenever the entry is saved.
func (s *Service) Update(ctx context.Context, id string, req domain.UpdateTimeEntryRequest) (domain.TimeEntry, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if entry.DeletedAt != nil {
		return domain.TimeEntry{}, domain.ErrNotFound
	}

	hours := entry.Hours
	if req.Hours != nil {
		hours = *req.Hours
	}
	threshold, hours, err := s.checkHours(hours)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if req.JobOrderID != nil && *req.JobOrderID != entry.JobOrderID {
		if err := s.checkJobOrder(ctx, entry.OrgID, *req.JobOrderID); err != nil {
			return domain.TimeEntry{}, err
		}
		entry.JobOrderID = *req.JobOrderID
	}
	if req.WorkDate != nil {
		if req.WorkDate.IsZero() {
			return domain.TimeEntry{}, domain.ErrInvalidWorkDate
		}
		entry.WorkDate = domain.WorkDay(*req.WorkDate)
	}
	if req.Notes != nil {
		entry.Notes = strings.TrimSpace(*req.Notes)
	}
	entry.Apply(hours, threshold)
	entry.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.claimDay(ctx, tx, entry); err != nil {
			return err
		}
		return duplicateEntry(s.repo.Update(ctx, tx, entry))
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	s.afterCommit(ctx, "time_entry.update", entry)
	return *entry, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.TimeEntry, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if entry.DeletedAt != nil {
		return domain.TimeEntry{}, domain.ErrNotFound
	}
	return *entry, nil
}

func (s *Service) List(ctx context.Context, req domain.ListTimeEntryRequest) (domain.ListTimeEntryResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListTimeEntryResponse{}, domain.ErrInvalidOrganization
	}
	filter, err := buildFilter(req.PersonID, req.JobOrderID)
	if err != nil {
		return domain.ListTimeEntryResponse{}, err
	}
	if filter.From, err = parseDate(req.From); err != nil {
		return domain.ListTimeEntryResponse{}, err
	}
	if filter.To, err = parseDate(req.To); err != nil {
		return domain.ListTimeEntryResponse{}, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return domain.ListTimeEntryResponse{}, domain.ErrInvalidRange
	}
	filter.Page = req.Pagination

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListTimeEntryResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(e domain.TimeEntry) int64 {
		return e.ID.Int64()
	})
	return domain.ListTimeEntryResponse{PageInfo: pageInfo, TimeEntries: items}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	entryID, err := parseID(id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.SoftDelete(ctx, s.db, orgID, entryID, orgcontext.ActorID(ctx), s.clock.Now())
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.afterCommit(ctx, "time_entry.delete", &domain.TimeEntry{ID: entryID, OrgID: orgID})
	return nil
}

// Restore brings the entry back with the split it was saved with.
func (s *Service) Restore(ctx context.Context, id string) (domain.TimeEntry, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.TimeEntry{}, domain.ErrInvalidOrganization
	}
	entryID, err := parseID(id)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	var entry *domain.TimeEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		restored, err := s.repo.Restore(ctx, tx, orgID, entryID, s.clock.Now())
		if err != nil {
			return duplicateEntry(err)
		}
		entry, err = s.repo.FindByID(ctx, tx, orgID, entryID)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrNotFound
		}
		if !restored {
			return domain.ErrNotDeleted
		}
		return s.claimDay(ctx, tx, entry)
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	s.afterCommit(ctx, "time_entry.restore", entry)
	return *entry, nil
}

func (s *Service) WeeklySummary(ctx context.Context, req domain.WeeklySummaryRequest) (domain.WeeklySummary, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.WeeklySummary{}, domain.ErrInvalidOrganization
	}
	filter, err := buildFilter(req.PersonID, req.JobOrderID)
	if err != nil {
		return domain.WeeklySummary{}, err
	}
	day, err := parseDate(req.Week)
	if err != nil {
		return domain.WeeklySummary{}, err
	}
	if day.IsZero() {
		day = s.clock.Now()
	}
	weekStart := domain.WeekStart(day)
	filter.From = weekStart
	filter.To = weekStart.AddDate(0, 0, 6)

	entries, err := s.repo.ListRange(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.WeeklySummary{}, err
	}
	summary := domain.Summarize(weekStart, entries)
	for i := range summary.People {
		person, err := s.people.FindPerson(ctx, s.db, orgID, summary.People[i].PersonID)
		if err != nil {
			return domain.WeeklySummary{}, err
		}
		if person != nil {
			summary.People[i].PersonName = person.Name
		}
	}
	return summary, nil
}

// checkHours rounds hours to the stored precision and returns the policy threshold.
func (s *Service) checkHours(hours decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	labor := s.policy.Get().Labor
	limit := decimal.Min(decimal.NewFromFloat(labor.MaxHoursPerEntry), hardHourCap)
	hours = hours.Round(2)
	if !hours.IsPositive() || hours.GreaterThan(limit) {
		return decimal.Zero, decimal.Zero, domain.ErrInvalidHours
	}
	return decimal.NewFromFloat(labor.DailyOvertimeThreshold), hours, nil
}

func (s *Service) checkPerson(ctx context.Context, orgID, personID snowflake.ID) error {
	person, err := s.people.FindPerson(ctx, s.db, orgID, personID)
	if err != nil {
		return err
	}
	if person == nil {
		return domain.ErrInvalidPerson
	}
	if !person.Active {
		return domain.ErrInactivePerson
	}
	return nil
}

func (s *Service) checkJobOrder(ctx context.Context, orgID, jobOrderID snowflake.ID) error {
	job, err := s.jobOrders.FindJobOrder(ctx, s.db, orgID, jobOrderID)
	if err != nil {
		return err
	}
	if job == nil || job.DeletedAt != nil {
		return domain.ErrInvalidJobOrder
	}
	return nil
}

// claimDay serializes writers on the person and rejects a second live entry for the
// same person, job order and day, so the daily overtime split cannot be sidestepped.
func (s *Service) claimDay(ctx context.Context, tx *gorm.DB, entry *domain.TimeEntry) error {
	if _, err := s.people.FindPersonForUpdate(ctx, tx, entry.OrgID, entry.PersonID); err != nil {
		return err
	}
	existing, err := s.repo.FindLiveForDay(ctx, tx, entry, entry.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrDuplicateEntry
	}
	return nil
}

func duplicateEntry(err error) error {
	if db.IsDuplicateKeyOn(err, "ux_time_entries_live_day") {
		return domain.ErrDuplicateEntry
	}
	return err
}

func (s *Service) load(ctx context.Context, id string) (*domain.TimeEntry, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	entryID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	entry, err := s.repo.FindByID(ctx, s.db, orgID, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, domain.ErrNotFound
	}
	return entry, nil
}

func (s *Service) afterCommit(ctx context.Context, action string, entry *domain.TimeEntry) {
	s.publisher.Publish(ctx, entry.OrgID, viewcache.TopicTimeEntry)
	s.metrics.RecordDocumentMutation(ctx, "time_entry", action)
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{}
	if entry.PersonID != 0 {
		metadata["person_id"] = entry.PersonID.String()
		metadata["job_order_id"] = entry.JobOrderID.String()
		metadata["hours"] = entry.Hours.String()
		metadata["overtime_hours"] = entry.OvertimeHours.String()
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "time_entry",
		TargetID:   entry.ID,
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit failed", zap.String("action", action), zap.Error(err))
	}
}

func buildFilter(personID, jobOrderID string) (domain.ListFilter, error) {
	var filter domain.ListFilter
	if raw := strings.TrimSpace(personID); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return domain.ListFilter{}, domain.ErrInvalidPerson
		}
		filter.PersonID = id
	}
	if raw := strings.TrimSpace(jobOrderID); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return domain.ListFilter{}, domain.ErrInvalidJobOrder
		}
		filter.JobOrderID = id
	}
	return filter, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, domain.ErrInvalidRange
	}
	return t, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
