package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ? AND id = ?", invoice.OrgID, invoice.ID).
		Updates(map[string]any{
			"title":            invoice.Title,
			"notes":            invoice.Notes,
			"status":           invoice.Status,
			"total":            invoice.Total,
			"paid_amount":      invoice.PaidAmount,
			"remaining_amount": invoice.RemainingAmount,
			"due_date":         invoice.DueDate,
			"sent_at":          invoice.SentAt,
			"updated_at":       invoice.UpdatedAt,
		}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return find(db.WithContext(ctx), orgID, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func find(db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.Where("org_id = ? AND id = ?", orgID, id).Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.Invoice, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ? AND deleted_at IS NULL", orgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.JobOrderID != 0 {
		stmt = stmt.Where("job_order_id = ?", filter.JobOrderID)
	}
	if filter.ChangeOrderID != 0 {
		stmt = stmt.Where("change_order_id = ?", filter.ChangeOrderID)
	}
	stmt, err := pagination.Apply(stmt, filter.Page)
	if err != nil {
		return nil, err
	}

	var invoices []domain.Invoice
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Restore(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NOT NULL", orgID, id).
		Updates(map[string]any{"deleted_at": nil, "deleted_by": nil, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) HardDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) ([]snowflake.ID, error) {
	var paymentIDs []snowflake.ID
	if err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("org_id = ? AND invoice_id = ?", orgID, id).
		Pluck("id", &paymentIDs).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ?", orgID, id).
		Delete(&domain.Payment{}).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Delete(&domain.Invoice{}).Error; err != nil {
		return nil, err
	}
	return paymentIDs, nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) UpdatePayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("org_id = ? AND id = ?", payment.OrgID, payment.ID).
		Updates(map[string]any{
			"amount":       payment.Amount,
			"payment_date": payment.PaymentDate,
			"method":       payment.Method,
			"reference":    payment.Reference,
			"updated_at":   payment.UpdatedAt,
		}).Error
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).
		Where("org_id = ? AND invoice_id = ? AND deleted_at IS NULL", orgID, invoiceID).
		Order("payment_date ASC, id ASC").
		Find(&payments).Error
	return payments, err
}

func (r *repo) SoftDeletePayment(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) LivePaymentAmounts(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]int64, error) {
	var amounts []int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("invoice_id = ? AND deleted_at IS NULL", invoiceID).
		Pluck("amount", &amounts).Error
	return amounts, err
}
