package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
)

type LineInput struct {
	PurchaseOrderLineID *snowflake.ID   `json:"purchase_order_line_id"`
	Description         string          `json:"description"`
	Quantity            decimal.Decimal `json:"quantity"`
	UnitPrice           int64           `json:"unit_price"`
}

type CreateVendorBillRequest struct {
	VendorID        snowflake.ID  `json:"vendor_id"`
	PurchaseOrderID *snowflake.ID `json:"purchase_order_id"`
	Number          string        `json:"number"`
	Notes           string        `json:"notes"`
	DueDate         *time.Time    `json:"due_date"`
	Lines           []LineInput   `json:"lines"`
}

type UpdateVendorBillRequest struct {
	Notes   *string     `json:"notes"`
	DueDate *time.Time  `json:"due_date"`
	Lines   []LineInput `json:"lines"`
}

type ListVendorBillRequest struct {
	pagination.Pagination
	Status          string
	VendorID        string
	PurchaseOrderID string
}

type ListVendorBillResponse struct {
	pagination.PageInfo
	VendorBills []VendorBill `json:"vendor_bills"`
}

type ListFilter struct {
	Status          Status
	VendorID        snowflake.ID
	PurchaseOrderID snowflake.ID
	Page            pagination.Pagination
}

type PaymentInput struct {
	Amount      int64     `json:"amount"`
	PaymentDate time.Time `json:"payment_date"`
	Method      string    `json:"method"`
	Reference   string    `json:"reference"`
}

type UpdatePaymentRequest struct {
	Amount      *int64     `json:"amount"`
	PaymentDate *time.Time `json:"payment_date"`
	Method      *string    `json:"method"`
	Reference   *string    `json:"reference"`
}

type PaymentResult struct {
	Payment    Payment    `json:"payment"`
	VendorBill VendorBill `json:"vendor_bill"`
	Warnings   []string   `json:"warnings,omitempty"`
}

type BulkPaymentItem struct {
	VendorBillID snowflake.ID `json:"vendor_bill_id"`
	PaymentInput
}

type BulkPaymentRequest struct {
	Payments []BulkPaymentItem `json:"payments"`
}

type BulkPaymentResult struct {
	Index        int          `json:"index"`
	VendorBillID snowflake.ID `json:"vendor_bill_id"`
	Payment      *Payment     `json:"payment,omitempty"`
	Error        string       `json:"error,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, bill *VendorBill) error
	Update(ctx context.Context, db *gorm.DB, bill *VendorBill) error
	ReplaceLines(ctx context.Context, db *gorm.DB, bill *VendorBill) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*VendorBill, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*VendorBill, error)
	ListLines(ctx context.Context, db *gorm.DB, billID snowflake.ID) ([]Line, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]VendorBill, error)
	SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
	Restore(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error)
	// HardDelete removes the bill with its lines and payments and returns the payment ids.
	HardDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) ([]snowflake.ID, error)

	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	UpdatePayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPayment(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	ListPayments(ctx context.Context, db *gorm.DB, orgID, billID snowflake.ID) ([]Payment, error)
	SoftDeletePayment(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
	LivePaymentAmounts(ctx context.Context, db *gorm.DB, billID snowflake.ID) ([]int64, error)
}

type Service interface {
	Create(ctx context.Context, req CreateVendorBillRequest) (VendorBill, []string, error)
	Update(ctx context.Context, id string, req UpdateVendorBillRequest) (VendorBill, []string, error)
	GetByID(ctx context.Context, id string) (VendorBill, error)
	List(ctx context.Context, req ListVendorBillRequest) (ListVendorBillResponse, error)
	Delete(ctx context.Context, id string) ([]string, error)
	Restore(ctx context.Context, id string) (VendorBill, []string, error)
	HardDelete(ctx context.Context, id string) error

	AddPayment(ctx context.Context, billID string, req PaymentInput) (PaymentResult, error)
	UpdatePayment(ctx context.Context, paymentID string, req UpdatePaymentRequest) (PaymentResult, error)
	DeletePayment(ctx context.Context, paymentID string) (PaymentResult, error)
	ListPayments(ctx context.Context, billID string) ([]Payment, error)
	BulkPayments(ctx context.Context, req BulkPaymentRequest) ([]BulkPaymentResult, error)
}

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidVendor         = errors.New("invalid_vendor")
	ErrInvalidLine           = errors.New("invalid_vendor_bill_line")
	ErrInvalidTotal          = errors.New("invalid_total")
	ErrInvalidAmount         = errors.New("invalid_payment_amount")
	ErrInvalidPaymentDate    = errors.New("invalid_payment_date")
	ErrVendorScope           = errors.New("vendor_scope_forbidden")
	ErrPurchaseOrderNotFound = errors.New("purchase_order_not_found")
	ErrPurchaseOrderClosed   = errors.New("purchase_order_closed")
	ErrNotFound              = errors.New("vendor_bill_not_found")
	ErrDeleted               = errors.New("vendor_bill_deleted")
	ErrAlreadyDeleted        = errors.New("vendor_bill_already_deleted")
	ErrNotDeleted            = errors.New("vendor_bill_not_deleted")
	ErrExceedsRemaining      = errors.New("vendor_bill_exceeds_remaining")
	ErrQuantityExceeds       = errors.New("vendor_bill_quantity_exceeds_ordered")
	ErrTotalBelowPaid        = errors.New("vendor_bill_total_below_paid")
	ErrPaymentExceeds        = errors.New("payment_exceeds_remaining")
	ErrPaymentNotFound       = errors.New("vendor_bill_payment_not_found")
	ErrDuplicateNumber       = errors.New("vendor_bill_number_taken")
	ErrEmptyBulk             = errors.New("bulk_payments_empty")
)
