package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	"github.com/smallbiznis/fieldbooks/internal/clock"
	"github.com/smallbiznis/fieldbooks/internal/config"
	"github.com/smallbiznis/fieldbooks/internal/observability/metrics"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/internal/viewcache"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultPushTimeout = 10 * time.Second

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Provider  domain.Provider
	Policy    *config.PolicyHolder
	Config    config.Config
	Publisher viewcache.Publisher `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	provider  domain.Provider
	policy    *config.PolicyHolder
	timeout   time.Duration
	publisher viewcache.Publisher
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
	timeout := p.Config.Accounting.Timeout
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("accounting.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		provider:  p.Provider,
		policy:    policy,
		timeout:   timeout,
		publisher: publisher,
		metrics:   p.Metrics,
	}
}

func (s *Service) Sync(ctx context.Context, doc domain.Document) []string {
	if !doc.EntityType.Valid() || doc.OrgID == 0 || doc.EntityID == 0 {
		return []string{"accounting sync skipped: " + domain.ErrInvalidEntityType.Error()}
	}
	if doc.Operation == "" {
		doc.Operation = domain.OperationUpsert
	}

	now := s.clock.Now()
	mapping, err := s.repo.Stage(ctx, s.db, &domain.SyncMapping{
		ID:         s.genID.Generate(),
		OrgID:      doc.OrgID,
		EntityType: doc.EntityType,
		EntityID:   doc.EntityID,
		Provider:   s.provider.Name(),
		Operation:  doc.Operation,
		Status:     domain.StatusPending,
		Payload:    doc.Payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		s.log.Warn("stage sync mapping failed",
			zap.String("entity_type", string(doc.EntityType)),
			zap.String("entity_id", doc.EntityID.String()),
			zap.Error(err),
		)
		return []string{"accounting sync not recorded: " + err.Error()}
	}
	if mapping == nil {
		return []string{"accounting sync not recorded"}
	}

	if warning := s.push(ctx, mapping, doc); warning != "" {
		return []string{warning}
	}
	return nil
}

// push sends one document and records the outcome on mapping. It returns a warning when
// the push did not succeed.
func (s *Service) push(ctx context.Context, mapping *domain.SyncMapping, doc domain.Document) string {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	ref, pushErr := s.provider.Push(pushCtx, doc, mapping.Ref())

	now := s.clock.Now()
	mapping.Attempts++
	mapping.UpdatedAt = now
	if pushErr != nil {
		mapping.Status = domain.StatusFailed
		mapping.LastError = pushErr.Error()
	} else {
		mapping.Status = domain.StatusSynced
		mapping.LastError = ""
		mapping.ExternalID = ref.ID
		mapping.Version = ref.Version
		mapping.SyncedAt = &now
	}

	if err := s.repo.RecordResult(ctx, s.db, mapping); err != nil {
		s.log.Warn("record sync result failed", zap.String("mapping_id", mapping.ID.String()), zap.Error(err))
	}
	s.metrics.RecordSyncAttempt(ctx, s.provider.Name(), string(mapping.Status))
	s.publisher.Publish(ctx, mapping.OrgID, viewcache.TopicSync)

	if pushErr == nil {
		return ""
	}
	s.log.Warn("accounting push failed",
		zap.String("provider", s.provider.Name()),
		zap.String("entity_type", string(doc.EntityType)),
		zap.String("entity_id", doc.EntityID.String()),
		zap.Int("attempts", mapping.Attempts),
		zap.Error(pushErr),
	)
	return "accounting sync failed for " + string(doc.EntityType) + " " + doc.EntityID.String() + ": " + pushErr.Error()
}

func (s *Service) Status(ctx context.Context, entityType, entityID string) (domain.SyncMapping, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.SyncMapping{}, domain.ErrInvalidOrganization
	}
	kind, id, err := parseEntity(entityType, entityID)
	if err != nil {
		return domain.SyncMapping{}, err
	}
	mapping, err := s.repo.Find(ctx, s.db, orgID, kind, id)
	if err != nil {
		return domain.SyncMapping{}, err
	}
	if mapping == nil {
		return domain.SyncMapping{}, domain.ErrMappingNotFound
	}
	return *mapping, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSyncRequest) (domain.ListSyncResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListSyncResponse{}, domain.ErrInvalidOrganization
	}
	filter := domain.ListFilter{
		Status: domain.Status(strings.TrimSpace(req.Status)),
		Page:   req.Pagination,
	}
	if raw := strings.TrimSpace(req.EntityType); raw != "" {
		kind := domain.EntityType(raw)
		if !kind.Valid() {
			return domain.ListSyncResponse{}, domain.ErrInvalidEntityType
		}
		filter.EntityType = kind
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListSyncResponse{}, err
	}
	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(m domain.SyncMapping) int64 {
		return m.ID.Int64()
	})
	return domain.ListSyncResponse{PageInfo: pageInfo, Mappings: items}, nil
}

// Resync pushes the last staged payload again, whatever the mapping's status.
func (s *Service) Resync(ctx context.Context, entityType, entityID string) (domain.SyncMapping, []string, error) {
	mapping, err := s.Status(ctx, entityType, entityID)
	if err != nil {
		return domain.SyncMapping{}, nil, err
	}
	var warnings []string
	if warning := s.push(ctx, &mapping, documentOf(mapping)); warning != "" {
		warnings = append(warnings, warning)
	}
	return mapping, warnings, nil
}

// RetryFailed re-pushes failed mappings of every org that still have attempts left.
func (s *Service) RetryFailed(ctx context.Context, now time.Time) (domain.RetryResult, error) {
	policy := s.policy.Get().Sync
	mappings, err := s.repo.ListRetryable(ctx, s.db, policy.MaxAttempts, policy.BatchSize)
	if err != nil {
		return domain.RetryResult{}, err
	}

	var result domain.RetryResult
	for i := range mappings {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		mapping := mappings[i]
		result.Attempted++
		if warning := s.push(ctx, &mapping, documentOf(mapping)); warning != "" {
			result.Failed++
			continue
		}
		result.Synced++
	}

	if result.Attempted > 0 {
		s.log.Info("accounting retry sweep",
			zap.Time("at", now),
			zap.Int("attempted", result.Attempted),
			zap.Int("synced", result.Synced),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func documentOf(mapping domain.SyncMapping) domain.Document {
	return domain.Document{
		OrgID:      mapping.OrgID,
		EntityType: mapping.EntityType,
		EntityID:   mapping.EntityID,
		Operation:  mapping.Operation,
		Payload:    mapping.Payload,
	}
}

func parseEntity(entityType, entityID string) (domain.EntityType, snowflake.ID, error) {
	kind := domain.EntityType(strings.TrimSpace(entityType))
	if !kind.Valid() {
		return "", 0, domain.ErrInvalidEntityType
	}
	id, err := snowflake.ParseString(strings.TrimSpace(entityID))
	if err != nil || id == 0 {
		return "", 0, domain.ErrInvalidID
	}
	return kind, id, nil
}

