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
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
}

type CreatePurchaseOrderRequest struct {
	VendorID   snowflake.ID  `json:"vendor_id"`
	JobOrderID *snowflake.ID `json:"job_order_id"`
	Number     string        `json:"number"`
	Notes      string        `json:"notes"`
	Lines      []LineInput   `json:"lines"`
}

// UpdatePurchaseOrderRequest replaces the lines only while nothing has been billed.
type UpdatePurchaseOrderRequest struct {
	Notes *string     `json:"notes"`
	Lines []LineInput `json:"lines"`
}

type ListPurchaseOrderRequest struct {
	pagination.Pagination
	Status     string
	VendorID   string
	JobOrderID string
}

type ListPurchaseOrderResponse struct {
	pagination.PageInfo
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

type ListFilter struct {
	Status     Status
	VendorID   snowflake.ID
	JobOrderID snowflake.ID
	Page       pagination.Pagination
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, po *PurchaseOrder) error
	UpdateHeader(ctx context.Context, db *gorm.DB, po *PurchaseOrder) error
	UpdateLedger(ctx context.Context, db *gorm.DB, po *PurchaseOrder) error
	ReplaceLines(ctx context.Context, db *gorm.DB, po *PurchaseOrder) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*PurchaseOrder, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*PurchaseOrder, error)
	ListLines(ctx context.Context, db *gorm.DB, purchaseOrderID snowflake.ID) ([]Line, error)
	UpdateLineBilled(ctx context.Context, db *gorm.DB, line *Line) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]PurchaseOrder, error)
	SetStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from, to Status, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
	Restore(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error)
	CountLiveBills(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (int64, error)
}

type Service interface {
	Create(ctx context.Context, req CreatePurchaseOrderRequest) (PurchaseOrder, error)
	Update(ctx context.Context, id string, req UpdatePurchaseOrderRequest) (PurchaseOrder, error)
	Close(ctx context.Context, id string) (PurchaseOrder, error)
	Reopen(ctx context.Context, id string) (PurchaseOrder, error)
	GetByID(ctx context.Context, id string) (PurchaseOrder, error)
	List(ctx context.Context, req ListPurchaseOrderRequest) (ListPurchaseOrderResponse, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) (PurchaseOrder, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidVendor       = errors.New("invalid_vendor")
	ErrInvalidJobOrder     = errors.New("invalid_job_order")
	ErrInvalidLine         = errors.New("invalid_purchase_order_line")
	ErrNoLines             = errors.New("purchase_order_without_lines")
	ErrNotFound            = errors.New("purchase_order_not_found")
	ErrAlreadyDeleted      = errors.New("purchase_order_already_deleted")
	ErrNotDeleted          = errors.New("purchase_order_not_deleted")
	ErrAlreadyBilled       = errors.New("purchase_order_already_billed")
	ErrHasLiveBills        = errors.New("purchase_order_has_bills")
	ErrInvalidTransition   = errors.New("invalid_purchase_order_transition")
	ErrDuplicateNumber     = errors.New("purchase_order_number_taken")
)
