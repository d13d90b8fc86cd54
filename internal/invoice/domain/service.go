package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateInvoiceRequest struct {
	CustomerID    snowflake.ID  `json:"customer_id"`
	Number        string        `json:"number"`
	JobOrderID    *snowflake.ID `json:"job_order_id"`
	ChangeOrderID *snowflake.ID `json:"change_order_id"`
	Title         string        `json:"title"`
	Notes         string        `json:"notes"`
	Total         int64         `json:"total"`
	DueDate       *time.Time    `json:"due_date"`
}

type ConvertEstimateRequest struct {
	DueDate *time.Time `json:"due_date"`
}

type UpdateInvoiceRequest struct {
	Title   *string    `json:"title"`
	Notes   *string    `json:"notes"`
	Total   *int64     `json:"total"`
	DueDate *time.Time `json:"due_date"`
}

type SendInvoiceRequest struct {
	// To overrides the customer's email address.
	To  []string `json:"to"`
	SMS bool     `json:"sms"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status        string
	CustomerID    string
	JobOrderID    string
	ChangeOrderID string
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type ListFilter struct {
	Status        Status
	CustomerID    snowflake.ID
	JobOrderID    snowflake.ID
	ChangeOrderID snowflake.ID
	Page          pagination.Pagination
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

// PaymentResult is a payment together with the invoice it settled.
type PaymentResult struct {
	Payment  Payment  `json:"payment"`
	Invoice  Invoice  `json:"invoice"`
	Warnings []string `json:"warnings,omitempty"`
}

type BulkPaymentItem struct {
	InvoiceID snowflake.ID `json:"invoice_id"`
	PaymentInput
}

type BulkPaymentRequest struct {
	Payments []BulkPaymentItem `json:"payments"`
}

// BulkPaymentResult reports one item of a bulk request. Exactly one of Payment and Error is set.
type BulkPaymentResult struct {
	Index     int          `json:"index"`
	InvoiceID snowflake.ID `json:"invoice_id"`
	Payment   *Payment     `json:"payment,omitempty"`
	Error     string       `json:"error,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]Invoice, error)
	SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
	Restore(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error)
	// HardDelete removes the invoice and every payment row it owns.
	HardDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) ([]snowflake.ID, error)

	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	UpdatePayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPayment(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	ListPayments(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) ([]Payment, error)
	SoftDeletePayment(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
	// LivePaymentAmounts returns the amounts of the invoice's non-deleted payments.
	LivePaymentAmounts(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]int64, error)
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, []string, error)
	CreateFromEstimate(ctx context.Context, estimateID string, req ConvertEstimateRequest) (Invoice, []string, error)
	Update(ctx context.Context, id string, req UpdateInvoiceRequest) (Invoice, []string, error)
	Delete(ctx context.Context, id string) ([]string, error)
	Restore(ctx context.Context, id string) (Invoice, []string, error)
	HardDelete(ctx context.Context, id string) error
	Send(ctx context.Context, id string, req SendInvoiceRequest) (Invoice, []string, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)

	AddPayment(ctx context.Context, invoiceID string, req PaymentInput) (PaymentResult, error)
	UpdatePayment(ctx context.Context, paymentID string, req UpdatePaymentRequest) (PaymentResult, error)
	DeletePayment(ctx context.Context, paymentID string) (PaymentResult, error)
	ListPayments(ctx context.Context, invoiceID string) ([]Payment, error)
	BulkPayments(ctx context.Context, req BulkPaymentRequest) ([]BulkPaymentResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrInvalidTotal        = errors.New("invalid_total")
	ErrInvalidParent       = errors.New("invalid_invoice_parent")
	ErrInvalidStatus       = errors.New("invalid_invoice_status")
	ErrInvalidAmount       = errors.New("invalid_payment_amount")
	ErrInvalidPaymentDate  = errors.New("invalid_payment_date")
	ErrParentNotFound      = errors.New("invoice_parent_not_found")
	ErrChangeOrderNotReady = errors.New("change_order_not_invoiceable")
	ErrNotFound            = errors.New("invoice_not_found")
	ErrDeleted             = errors.New("invoice_deleted")
	ErrAlreadyDeleted      = errors.New("invoice_already_deleted")
	ErrNotDeleted          = errors.New("invoice_not_deleted")
	ErrExceedsRemaining    = errors.New("invoice_exceeds_remaining")
	ErrTotalBelowPaid      = errors.New("invoice_total_below_paid")
	ErrPaymentExceeds      = errors.New("payment_exceeds_remaining")
	ErrPaymentNotFound     = errors.New("invoice_payment_not_found")
	ErrDuplicateNumber     = errors.New("invoice_number_taken")
	ErrNoRecipient         = errors.New("invoice_no_recipient")
	ErrDeliveryFailed      = errors.New("invoice_delivery_failed")
	ErrEmptyBulk           = errors.New("bulk_payments_empty")
)
