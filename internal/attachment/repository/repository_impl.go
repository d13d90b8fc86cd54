package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/attachment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, attachment *domain.Attachment) error {
	return db.WithContext(ctx).Create(attachment).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Attachment, error) {
	var attachment domain.Attachment
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Take(&attachment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

func (r *repo) ListByEntity(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entityType domain.EntityType, entityID snowflake.ID) ([]domain.Attachment, error) {
	var attachments []domain.Attachment
	err := db.WithContext(ctx).
		Where("org_id = ? AND entity_type = ? AND entity_id = ? AND deleted_at IS NULL", orgID, entityType, entityID).
		Order("id ASC").
		Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Attachment{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

type ownerRow struct {
	ID       snowflake.ID
	VendorID *snowflake.ID
}

func (r *repo) FindOwner(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entityType domain.EntityType, entityID snowflake.ID) (domain.Owner, error) {
	table, vendorOwned, ok := entityType.Table()
	if !ok {
		return domain.Owner{}, domain.ErrInvalidEntityType
	}
	columns := "id"
	if vendorOwned {
		columns = "id, vendor_id"
	}

	var row ownerRow
	err := db.WithContext(ctx).
		Table(table).
		Select(columns).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, entityID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Owner{}, nil
	}
	if err != nil {
		return domain.Owner{}, err
	}
	return domain.Owner{Exists: true, VendorID: row.VendorID}, nil
}
