package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
)

// Provider pushes one document to an external accounting system. ref is empty on the first
// push; the returned ref is stored for the next one.
type Provider interface {
	Name() string
	Push(ctx context.Context, doc Document, ref ExternalRef) (ExternalRef, error)
}

type ListSyncRequest struct {
	pagination.Pagination
	Status     string
	EntityType string
}

type ListSyncResponse struct {
	pagination.PageInfo
	Mappings []SyncMapping `json:"mappings"`
}

type ListFilter struct {
	Status     Status
	EntityType EntityType
	Page       pagination.Pagination
}

// RetryResult summarizes one sweep over failed mappings.
type RetryResult struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

type Repository interface {
	Stage(ctx context.Context, db *gorm.DB, mapping *SyncMapping) (*SyncMapping, error)
	RecordResult(ctx context.Context, db *gorm.DB, mapping *SyncMapping) error
	Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entityType EntityType, entityID snowflake.ID) (*SyncMapping, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]SyncMapping, error)
	ListRetryable(ctx context.Context, db *gorm.DB, maxAttempts, limit int) ([]SyncMapping, error)
	DeleteFor(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entityType EntityType, entityIDs ...snowflake.ID) error
}

type Service interface {
	// Sync pushes doc after the local write committed. It never fails the caller; problems
	// come back as warnings and are recorded on the mapping.
	Sync(ctx context.Context, doc Document) []string
	Status(ctx context.Context, entityType, entityID string) (SyncMapping, error)
	List(ctx context.Context, req ListSyncRequest) (ListSyncResponse, error)
	Resync(ctx context.Context, entityType, entityID string) (SyncMapping, []string, error)
	RetryFailed(ctx context.Context, now time.Time) (RetryResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidEntityType   = errors.New("invalid_entity_type")
	ErrInvalidID           = errors.New("invalid_id")
	ErrMappingNotFound     = errors.New("sync_mapping_not_found")
	ErrProviderConfig      = errors.New("accounting_provider_not_configured")
	ErrProviderRejected    = errors.New("accounting_provider_rejected")
)
