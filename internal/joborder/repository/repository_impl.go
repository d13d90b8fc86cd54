package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertJobOrder(ctx context.Context, db *gorm.DB, job *domain.JobOrder) error {
	return db.WithContext(ctx).Create(job).Error
}

func (r *repo) UpdateJobOrder(ctx context.Context, db *gorm.DB, job *domain.JobOrder) error {
	return db.WithContext(ctx).
		Model(&domain.JobOrder{}).
		Where("org_id = ? AND id = ?", job.OrgID, job.ID).
		Updates(map[string]any{
			"title":            job.Title,
			"description":      job.Description,
			"site_address":     job.SiteAddress,
			"total":            job.Total,
			"invoiced_amount":  job.InvoicedAmount,
			"remaining_amount": job.RemainingAmount,
			"updated_at":       job.UpdatedAt,
		}).Error
}

func (r *repo) FindJobOrder(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.JobOrder, error) {
	return first[domain.JobOrder](db.WithContext(ctx), orgID, id)
}

func (r *repo) FindJobOrderForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.JobOrder, error) {
	return first[domain.JobOrder](db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func (r *repo) UpdateJobOrderLedger(ctx context.Context, db *gorm.DB, job *domain.JobOrder) error {
	return db.WithContext(ctx).
		Model(&domain.JobOrder{}).
		Where("org_id = ? AND id = ?", job.OrgID, job.ID).
		Updates(map[string]any{
			"invoiced_amount":  job.InvoicedAmount,
			"remaining_amount": job.RemainingAmount,
			"updated_at":       job.UpdatedAt,
		}).Error
}

func (r *repo) ListJobOrders(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.JobOrder, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.JobOrder{}).
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

	var jobs []domain.JobOrder
	if err := stmt.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) SetJobOrderStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from, to domain.Status, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.JobOrder{}).
		Where("org_id = ? AND id = ? AND status = ? AND deleted_at IS NULL", orgID, id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SoftDeleteJobOrder(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	return softDelete(ctx, db, &domain.JobOrder{}, orgID, id, by, at)
}

func (r *repo) RestoreJobOrder(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.JobOrder{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NOT NULL", orgID, id).
		Updates(map[string]any{"deleted_at": nil, "deleted_by": nil, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertChangeOrder(ctx context.Context, db *gorm.DB, co *domain.ChangeOrder) error {
	return db.WithContext(ctx).Create(co).Error
}

func (r *repo) UpdateChangeOrder(ctx context.Context, db *gorm.DB, co *domain.ChangeOrder) error {
	return db.WithContext(ctx).
		Model(&domain.ChangeOrder{}).
		Where("org_id = ? AND id = ?", co.OrgID, co.ID).
		Updates(map[string]any{
			"description":      co.Description,
			"total":            co.Total,
			"invoiced_amount":  co.InvoicedAmount,
			"remaining_amount": co.RemainingAmount,
			"updated_at":       co.UpdatedAt,
		}).Error
}

func (r *repo) FindChangeOrder(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.ChangeOrder, error) {
	return first[domain.ChangeOrder](db.WithContext(ctx), orgID, id)
}

func (r *repo) FindChangeOrderForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.ChangeOrder, error) {
	return first[domain.ChangeOrder](db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func (r *repo) UpdateChangeOrderLedger(ctx context.Context, db *gorm.DB, co *domain.ChangeOrder) error {
	return db.WithContext(ctx).
		Model(&domain.ChangeOrder{}).
		Where("org_id = ? AND id = ?", co.OrgID, co.ID).
		Updates(map[string]any{
			"invoiced_amount":  co.InvoicedAmount,
			"remaining_amount": co.RemainingAmount,
			"updated_at":       co.UpdatedAt,
		}).Error
}

func (r *repo) ListChangeOrders(ctx context.Context, db *gorm.DB, orgID, jobOrderID snowflake.ID) ([]domain.ChangeOrder, error) {
	var items []domain.ChangeOrder
	err := db.WithContext(ctx).
		Where("org_id = ? AND job_order_id = ? AND deleted_at IS NULL", orgID, jobOrderID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) SetChangeOrderStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, to domain.ChangeOrderStatus, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.ChangeOrder{}).
		Where("org_id = ? AND id = ? AND status = ? AND deleted_at IS NULL", orgID, id, domain.ChangeOrderPending).
		Updates(map[string]any{"status": to, "decided_at": at, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SoftDeleteChangeOrder(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	return softDelete(ctx, db, &domain.ChangeOrder{}, orgID, id, by, at)
}

func (r *repo) CountLiveInvoices(ctx context.Context, db *gorm.DB, orgID snowflake.ID, column string, parentID snowflake.ID) (int64, error) {
	switch column {
	case "job_order_id", "change_order_id":
	default:
		return 0, fmt.Errorf("unknown invoice parent column %q", column)
	}
	var count int64
	err := db.WithContext(ctx).
		Table("invoices").
		Where("org_id = ? AND deleted_at IS NULL", orgID).
		Where(column+" = ?", parentID).
		Count(&count).Error
	return count, err
}

func (r *repo) AdoptInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID, jobOrderID snowflake.ID, at time.Time) (int64, error) {
	var row struct {
		Total     int64
		DeletedAt *time.Time
	}
	err := db.WithContext(ctx).
		Table("invoices").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("total", "deleted_at").
		Where("org_id = ? AND id = ? AND job_order_id IS NULL AND change_order_id IS NULL", orgID, invoiceID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	err = db.WithContext(ctx).
		Table("invoices").
		Where("org_id = ? AND id = ?", orgID, invoiceID).
		Updates(map[string]any{"job_order_id": jobOrderID, "updated_at": at}).Error
	if err != nil {
		return 0, err
	}
	if row.DeletedAt != nil {
		return 0, nil
	}
	return row.Total, nil
}

func first[T any](stmt *gorm.DB, orgID, id snowflake.ID) (*T, error) {
	var row T
	err := stmt.Where("org_id = ? AND id = ?", orgID, id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func softDelete(ctx context.Context, db *gorm.DB, model any, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(model).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
