package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/estimate/domain"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, estimate *domain.Estimate) error {
	if err := db.WithContext(ctx).Create(estimate).Error; err != nil {
		return err
	}
	if len(estimate.Lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&estimate.Lines).Error
}

func (r *repo) UpdateHeader(ctx context.Context, db *gorm.DB, estimate *domain.Estimate) error {
	return db.WithContext(ctx).
		Model(&domain.Estimate{}).
		Where("org_id = ? AND id = ?", estimate.OrgID, estimate.ID).
		Updates(map[string]any{
			"title":      estimate.Title,
			"notes":      estimate.Notes,
			"total":      estimate.Total,
			"updated_at": estimate.UpdatedAt,
		}).Error
}

func (r *repo) ReplaceLines(ctx context.Context, db *gorm.DB, estimate *domain.Estimate) error {
	if err := db.WithContext(ctx).
		Where("estimate_id = ?", estimate.ID).
		Delete(&domain.Line{}).Error; err != nil {
		return err
	}
	if len(estimate.Lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&estimate.Lines).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Estimate, error) {
	return r.find(ctx, db.WithContext(ctx), orgID, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Estimate, error) {
	return r.find(ctx, db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func (r *repo) find(_ context.Context, stmt *gorm.DB, orgID, id snowflake.ID) (*domain.Estimate, error) {
	var estimate domain.Estimate
	err := stmt.Where("org_id = ? AND id = ?", orgID, id).Take(&estimate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &estimate, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, estimateID snowflake.ID) ([]domain.Line, error) {
	var lines []domain.Line
	err := db.WithContext(ctx).
		Where("estimate_id = ?", estimateID).
		Order("position ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.Estimate, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Estimate{}).
		Where("org_id = ? AND deleted_at IS NULL", orgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	stmt, err := pagination.Apply(stmt, filter.Page)
	if err != nil {
		return nil, err
	}

	var estimates []domain.Estimate
	if err := stmt.Find(&estimates).Error; err != nil {
		return nil, err
	}
	return estimates, nil
}

func (r *repo) SetStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from, to domain.Status, at time.Time) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": at}
	if to == domain.StatusApproved {
		updates["approved_at"] = at
	}
	result := db.WithContext(ctx).
		Model(&domain.Estimate{}).
		Where("org_id = ? AND id = ? AND status = ? AND deleted_at IS NULL", orgID, id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Estimate{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Restore(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Estimate{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NOT NULL", orgID, id).
		Updates(map[string]any{"deleted_at": nil, "deleted_by": nil, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkConverted(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, column string, targetID snowflake.ID, at time.Time) (bool, error) {
	if err := checkColumn(column); err != nil {
		return false, err
	}
	result := db.WithContext(ctx).
		Model(&domain.Estimate{}).
		Where("org_id = ? AND id = ? AND status = ? AND deleted_at IS NULL", orgID, id, domain.StatusApproved).
		Where(column+" IS NULL").
		Updates(map[string]any{column: targetID, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ConversionFailure(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, column string) error {
	if err := checkColumn(column); err != nil {
		return err
	}
	estimate, err := r.FindByID(ctx, db, orgID, id)
	if err != nil {
		return err
	}
	switch {
	case estimate == nil || estimate.DeletedAt != nil:
		return domain.ErrNotFound
	case column == domain.ConvertedToJobOrder && estimate.JobOrderID != nil,
		column == domain.ConvertedToInvoice && estimate.InvoiceID != nil:
		return domain.ErrAlreadyConverted
	case estimate.Status != domain.StatusApproved:
		return domain.ErrNotApproved
	default:
		return domain.ErrAlreadyConverted
	}
}

func checkColumn(column string) error {
	switch column {
	case domain.ConvertedToJobOrder, domain.ConvertedToInvoice:
		return nil
	default:
		return fmt.Errorf("unknown conversion column %q", column)
	}
}
