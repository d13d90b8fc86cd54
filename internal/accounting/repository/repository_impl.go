package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Stage inserts the mapping or, when one exists for the entity, replaces its payload and
// operation and marks it pending. It returns the stored row.
func (r *repo) Stage(ctx context.Context, db *gorm.DB, mapping *domain.SyncMapping) (*domain.SyncMapping, error) {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}, {Name: "entity_type"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"provider", "operation", "status", "payload", "updated_at",
			}),
		}).
		Create(mapping).Error
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, db, mapping.OrgID, mapping.EntityType, mapping.EntityID)
}

func (r *repo) RecordResult(ctx context.Context, db *gorm.DB, mapping *domain.SyncMapping) error {
	return db.WithContext(ctx).
		Model(&domain.SyncMapping{}).
		Where("id = ?", mapping.ID).
		Updates(map[string]any{
			"external_id": mapping.ExternalID,
			"version":     mapping.Version,
			"status":      mapping.Status,
			"attempts":    mapping.Attempts,
			"last_error":  mapping.LastError,
			"synced_at":   mapping.SyncedAt,
			"updated_at":  mapping.UpdatedAt,
		}).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entityType domain.EntityType, entityID snowflake.ID) (*domain.SyncMapping, error) {
	var mapping domain.SyncMapping
	err := db.WithContext(ctx).
		Where("org_id = ? AND entity_type = ? AND entity_id = ?", orgID, entityType, entityID).
		Take(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.SyncMapping, error) {
	stmt := db.WithContext(ctx).Model(&domain.SyncMapping{}).Where("org_id = ?", orgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.EntityType != "" {
		stmt = stmt.Where("entity_type = ?", filter.EntityType)
	}
	stmt, err := pagination.Apply(stmt, filter.Page)
	if err != nil {
		return nil, err
	}

	var mappings []domain.SyncMapping
	if err := stmt.Find(&mappings).Error; err != nil {
		return nil, err
	}
	return mappings, nil
}

// ListRetryable returns failed mappings across all orgs, oldest update first.
func (r *repo) ListRetryable(ctx context.Context, db *gorm.DB, maxAttempts, limit int) ([]domain.SyncMapping, error) {
	var mappings []domain.SyncMapping
	err := db.WithContext(ctx).
		Where("status = ? AND attempts < ?", domain.StatusFailed, maxAttempts).
		Order("updated_at ASC").
		Limit(limit).
		Find(&mappings).Error
	return mappings, err
}

func (r *repo) DeleteFor(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entityType domain.EntityType, entityIDs ...snowflake.ID) error {
	if len(entityIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("org_id = ? AND entity_type = ? AND entity_id IN ?", orgID, entityType, entityIDs).
		Delete(&domain.SyncMapping{}).Error
}
