package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/purchaseorder/domain"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, po *domain.PurchaseOrder) error {
	if err := db.WithContext(ctx).Create(po).Error; err != nil {
		return err
	}
	if len(po.Lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&po.Lines).Error
}

func (r *repo) UpdateHeader(ctx context.Context, db *gorm.DB, po *domain.PurchaseOrder) error {
	return db.WithContext(ctx).
		Model(&domain.PurchaseOrder{}).
		Where("org_id = ? AND id = ?", po.OrgID, po.ID).
		Updates(map[string]any{
			"notes":            po.Notes,
			"total":            po.Total,
			"remaining_amount": po.RemainingAmount,
			"updated_at":       po.UpdatedAt,
		}).Error
}

func (r *repo) UpdateLedger(ctx context.Context, db *gorm.DB, po *domain.PurchaseOrder) error {
	return db.WithContext(ctx).
		Model(&domain.PurchaseOrder{}).
		Where("org_id = ? AND id = ?", po.OrgID, po.ID).
		Updates(map[string]any{
			"billed_amount":    po.BilledAmount,
			"remaining_amount": po.RemainingAmount,
			"updated_at":       po.UpdatedAt,
		}).Error
}

func (r *repo) ReplaceLines(ctx context.Context, db *gorm.DB, po *domain.PurchaseOrder) error {
	if err := db.WithContext(ctx).
		Where("purchase_order_id = ?", po.ID).
		Delete(&domain.Line{}).Error; err != nil {
		return err
	}
	if len(po.Lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&po.Lines).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.PurchaseOrder, error) {
	return find(db.WithContext(ctx), orgID, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.PurchaseOrder, error) {
	return find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func find(db *gorm.DB, orgID, id snowflake.ID) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := db.Where("org_id = ? AND id = ?", orgID, id).Take(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, purchaseOrderID snowflake.ID) ([]domain.Line, error) {
	var lines []domain.Line
	err := db.WithContext(ctx).
		Where("purchase_order_id = ?", purchaseOrderID).
		Order("position ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repo) UpdateLineBilled(ctx context.Context, db *gorm.DB, line *domain.Line) error {
	return db.WithContext(ctx).
		Model(&domain.Line{}).
		Where("id = ?", line.ID).
		Updates(map[string]any{
			"billed_quantity": line.BilledQuantity,
			"updated_at":      line.UpdatedAt,
		}).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.PurchaseOrder, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.PurchaseOrder{}).
		Where("org_id = ? AND deleted_at IS NULL", orgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.VendorID != 0 {
		stmt = stmt.Where("vendor_id = ?", filter.VendorID)
	}
	if filter.JobOrderID != 0 {
		stmt = stmt.Where("job_order_id = ?", filter.JobOrderID)
	}
	stmt, err := pagination.Apply(stmt, filter.Page)
	if err != nil {
		return nil, err
	}

	var orders []domain.PurchaseOrder
	if err := stmt.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) SetStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from, to domain.Status, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.PurchaseOrder{}).
		Where("org_id = ? AND id = ? AND status = ? AND deleted_at IS NULL", orgID, id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.PurchaseOrder{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Restore(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.PurchaseOrder{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NOT NULL", orgID, id).
		Updates(map[string]any{"deleted_at": nil, "deleted_by": nil, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) CountLiveBills(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Table("vendor_bills").
		Where("org_id = ? AND purchase_order_id = ? AND deleted_at IS NULL", orgID, id).
		Count(&count).Error
	return count, err
}
