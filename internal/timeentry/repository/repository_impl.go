package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/timeentry/domain"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.TimeEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, entry *domain.TimeEntry) error {
	return db.WithContext(ctx).
		Model(&domain.TimeEntry{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", entry.OrgID, entry.ID).
		Updates(map[string]any{
			"job_order_id":   entry.JobOrderID,
			"work_date":      entry.WorkDate,
			"hours":          entry.Hours,
			"regular_hours":  entry.RegularHours,
			"overtime_hours": entry.OvertimeHours,
			"notes":          entry.Notes,
			"updated_at":     entry.UpdatedAt,
		}).Error
}

// FindByID includes soft-deleted rows.
func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.TimeEntry, error) {
	var entry domain.TimeEntry
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.TimeEntry, error) {
	stmt, err := pagination.Apply(scoped(db.WithContext(ctx), orgID, filter), filter.Page)
	if err != nil {
		return nil, err
	}

	var entries []domain.TimeEntry
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListRange returns every live entry matching filter in work date order, unpaginated.
func (r *repo) ListRange(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.TimeEntry, error) {
	var entries []domain.TimeEntry
	err := scoped(db.WithContext(ctx), orgID, filter).
		Order("work_date ASC").
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func scoped(db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) *gorm.DB {
	stmt := db.Model(&domain.TimeEntry{}).Where("org_id = ? AND deleted_at IS NULL", orgID)
	if filter.PersonID != 0 {
		stmt = stmt.Where("person_id = ?", filter.PersonID)
	}
	if filter.JobOrderID != 0 {
		stmt = stmt.Where("job_order_id = ?", filter.JobOrderID)
	}
	if !filter.From.IsZero() {
		stmt = stmt.Where("work_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		stmt = stmt.Where("work_date <= ?", filter.To)
	}
	return stmt
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.TimeEntry{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Restore(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.TimeEntry{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NOT NULL", orgID, id).
		Updates(map[string]any{"deleted_at": nil, "deleted_by": nil, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindLiveForDay(ctx context.Context, db *gorm.DB, entry *domain.TimeEntry, excludeID snowflake.ID) (*domain.TimeEntry, error) {
	var existing domain.TimeEntry
	err := db.WithContext(ctx).
		Where("org_id = ? AND person_id = ? AND job_order_id = ? AND work_date = ? AND deleted_at IS NULL",
			entry.OrgID, entry.PersonID, entry.JobOrderID, entry.WorkDate).
		Where("id <> ?", excludeID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &existing, nil
}
