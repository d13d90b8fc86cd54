package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes one mutation to record.
type Entry struct {
	Action     string
	TargetType string
	TargetID   snowflake.ID
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type ListFilter struct {
	OrgID      snowflake.ID
	ActorID    string
	Action     string
	TargetType string
	TargetID   *snowflake.ID
	StartAt    *time.Time
	EndAt      *time.Time
	Page       pagination.Pagination
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

type Service interface {
	AuditLog(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidTarget       = errors.New("invalid_target")
)
