package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/vendorbill/domain"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, bill *domain.VendorBill) error {
	if err := db.WithContext(ctx).Create(bill).Error; err != nil {
		return err
	}
	if len(bill.Lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&bill.Lines).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, bill *domain.VendorBill) error {
	return db.WithContext(ctx).
		Model(&domain.VendorBill{}).
		Where("org_id = ? AND id = ?", bill.OrgID, bill.ID).
		Updates(map[string]any{
			"notes":            bill.Notes,
			"status":           bill.Status,
			"total":            bill.Total,
			"paid_amount":      bill.PaidAmount,
			"remaining_amount": bill.RemainingAmount,
			"due_date":         bill.DueDate,
			"updated_at":       bill.UpdatedAt,
		}).Error
}

func (r *repo) ReplaceLines(ctx context.Context, db *gorm.DB, bill *domain.VendorBill) error {
	if err := db.WithContext(ctx).
		Where("vendor_bill_id = ?", bill.ID).
		Delete(&domain.Line{}).Error; err != nil {
		return err
	}
	if len(bill.Lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&bill.Lines).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.VendorBill, error) {
	return find(db.WithContext(ctx), orgID, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.VendorBill, error) {
	return find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orgID, id)
}

func find(db *gorm.DB, orgID, id snowflake.ID) (*domain.VendorBill, error) {
	var bill domain.VendorBill
	err := db.Where("org_id = ? AND id = ?", orgID, id).Take(&bill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, billID snowflake.ID) ([]domain.Line, error) {
	var lines []domain.Line
	err := db.WithContext(ctx).
		Where("vendor_bill_id = ?", billID).
		Order("position ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.VendorBill, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.VendorBill{}).
		Where("org_id = ? AND deleted_at IS NULL", orgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.VendorID != 0 {
		stmt = stmt.Where("vendor_id = ?", filter.VendorID)
	}
	if filter.PurchaseOrderID != 0 {
		stmt = stmt.Where("purchase_order_id = ?", filter.PurchaseOrderID)
	}
	stmt, err := pagination.Apply(stmt, filter.Page)
	if err != nil {
		return nil, err
	}

	var bills []domain.VendorBill
	if err := stmt.Find(&bills).Error; err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	return affected(db.WithContext(ctx).
		Model(&domain.VendorBill{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at}))
}

func (r *repo) Restore(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error) {
	return affected(db.WithContext(ctx).
		Model(&domain.VendorBill{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NOT NULL", orgID, id).
		Updates(map[string]any{"deleted_at": nil, "deleted_by": nil, "updated_at": at}))
}

func (r *repo) HardDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) ([]snowflake.ID, error) {
	var paymentIDs []snowflake.ID
	if err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("org_id = ? AND vendor_bill_id = ?", orgID, id).
		Pluck("id", &paymentIDs).Error; err != nil {
		return nil, err
	}
	steps := []struct {
		model any
		where string
	}{
		{&domain.Payment{}, "org_id = ? AND vendor_bill_id = ?"},
		{&domain.Line{}, "org_id = ? AND vendor_bill_id = ?"},
		{&domain.VendorBill{}, "org_id = ? AND id = ?"},
	}
	for _, step := range steps {
		if err := db.WithContext(ctx).Where(step.where, orgID, id).Delete(step.model).Error; err != nil {
			return nil, err
		}
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
	err := db.WithContext(ctx).Where("org_id = ? AND id = ?", orgID, id).Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, orgID, billID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).
		Where("org_id = ? AND vendor_bill_id = ? AND deleted_at IS NULL", orgID, billID).
		Order("payment_date ASC, id ASC").
		Find(&payments).Error
	return payments, err
}

func (r *repo) SoftDeletePayment(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error) {
	return affected(db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("org_id = ? AND id = ? AND deleted_at IS NULL", orgID, id).
		Updates(map[string]any{"deleted_at": at, "deleted_by": by, "updated_at": at}))
}

func (r *repo) LivePaymentAmounts(ctx context.Context, db *gorm.DB, billID snowflake.ID) ([]int64, error) {
	var amounts []int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("vendor_bill_id = ? AND deleted_at IS NULL", billID).
		Pluck("amount", &amounts).Error
	return amounts, err
}

func affected(result *gorm.DB) (bool, error) {
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
