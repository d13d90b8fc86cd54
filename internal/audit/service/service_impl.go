package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	"github.com/smallbiznis/fieldbooks/internal/audit/masking"
	obscontext "github.com/smallbiznis/fieldbooks/internal/observability/context"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, entry auditdomain.Entry) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return auditdomain.ErrInvalidOrganization
	}
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		return auditdomain.ErrInvalidTarget
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		ActorID:    orgcontext.ActorID(ctx),
		Action:     action,
		TargetType: targetType,
		TargetID:   entry.TargetID,
		RequestID:  obscontext.RequestIDFromContext(ctx),
		CreatedAt:  time.Now().UTC(),
	}
	if actor, ok := orgcontext.ActorFromContext(ctx); ok {
		row.ActorRole = actor.Role
	}
	if masked := masking.MaskSensitive(entry.Metadata); len(masked) > 0 {
		row.Metadata = datatypes.JSONMap(masked)
	}

	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidOrganization
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	filter := auditdomain.ListFilter{
		OrgID:      orgID,
		ActorID:    strings.TrimSpace(req.ActorID),
		Action:     req.Action,
		TargetType: req.TargetType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Page:       req.Pagination,
	}
	if raw := strings.TrimSpace(req.TargetID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTarget
		}
		filter.TargetID = &id
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, pageInfo := pagination.BuildPageInfo(items, req.Pagination, func(item auditdomain.AuditLog) int64 {
		return item.ID.Int64()
	})
	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: items}, nil
}
