package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateJobOrderRequest struct {
	CustomerID  snowflake.ID `json:"customer_id"`
	Number      string       `json:"number"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	SiteAddress string       `json:"site_address"`
	Total       int64        `json:"total"`
}

type UpdateJobOrderRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	SiteAddress *string `json:"site_address"`
	Total       *int64  `json:"total"`
}

type ListJobOrderRequest struct {
	pagination.Pagination
	Status     string
	CustomerID string
}

type ListJobOrderResponse struct {
	pagination.PageInfo
	JobOrders []JobOrder `json:"job_orders"`
}

type ListFilter struct {
	Status     Status
	CustomerID snowflake.ID
	Page       pagination.Pagination
}

type CreateChangeOrderRequest struct {
	Number      string          `json:"number"`
	Description string          `json:"description"`
	Kind        ChangeOrderKind `json:"kind"`
	Total       int64           `json:"total"`
}

type UpdateChangeOrderRequest struct {
	Description *string `json:"description"`
	Total       *int64  `json:"total"`
}

type Repository interface {
	InsertJobOrder(ctx context.Context, db *gorm.DB, job *JobOrder) error
	UpdateJobOrder(ctx context.Context, db *gorm.DB, job *JobOrder) error
	FindJobOrder(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*JobOrder, error)
	FindJobOrderForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*JobOrder, error)
	UpdateJobOrderLedger(ctx context.Context, db *gorm.DB, job *JobOrder) error
	ListJobOrders(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]JobOrder, error)
	SetJobOrderStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from, to Status, at time.Time) (bool, error)
	SoftDeleteJobOrder(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
	RestoreJobOrder(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error)

	InsertChangeOrder(ctx context.Context, db *gorm.DB, co *ChangeOrder) error
	UpdateChangeOrder(ctx context.Context, db *gorm.DB, co *ChangeOrder) error
	FindChangeOrder(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ChangeOrder, error)
	FindChangeOrderForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ChangeOrder, error)
	UpdateChangeOrderLedger(ctx context.Context, db *gorm.DB, co *ChangeOrder) error
	ListChangeOrders(ctx context.Context, db *gorm.DB, orgID, jobOrderID snowflake.ID) ([]ChangeOrder, error)
	SetChangeOrderStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, to ChangeOrderStatus, at time.Time) (bool, error)
	SoftDeleteChangeOrder(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)

	// CountLiveInvoices counts non-deleted invoices pointing at the given parent column.
	CountLiveInvoices(ctx context.Context, db *gorm.DB, orgID snowflake.ID, column string, parentID snowflake.ID) (int64, error)
	// AdoptInvoice points an unparented invoice at the job order and returns the amount it
	// draws down: its total while live, zero once deleted or when it already had a parent.
	AdoptInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID, jobOrderID snowflake.ID, at time.Time) (int64, error)
}

type Service interface {
	Create(ctx context.Context, req CreateJobOrderRequest) (JobOrder, error)
	CreateFromEstimate(ctx context.Context, estimateID string) (JobOrder, error)
	Update(ctx context.Context, id string, req UpdateJobOrderRequest) (JobOrder, error)
	Transition(ctx context.Context, id string, to Status) (JobOrder, error)
	GetByID(ctx context.Context, id string) (JobOrder, error)
	List(ctx context.Context, req ListJobOrderRequest) (ListJobOrderResponse, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) (JobOrder, error)
	Summary(ctx context.Context, id string) (Summary, error)

	CreateChangeOrder(ctx context.Context, jobOrderID string, req CreateChangeOrderRequest) (ChangeOrder, error)
	UpdateChangeOrder(ctx context.Context, id string, req UpdateChangeOrderRequest) (ChangeOrder, error)
	DecideChangeOrder(ctx context.Context, id string, to ChangeOrderStatus) (ChangeOrder, error)
	GetChangeOrder(ctx context.Context, id string) (ChangeOrder, error)
	ListChangeOrders(ctx context.Context, jobOrderID string) ([]ChangeOrder, error)
	DeleteChangeOrder(ctx context.Context, id string) error
}

var (
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidCustomer        = errors.New("invalid_customer")
	ErrInvalidTitle           = errors.New("invalid_title")
	ErrInvalidTotal           = errors.New("invalid_total")
	ErrInvalidStatus          = errors.New("invalid_job_order_status")
	ErrInvalidTransition      = errors.New("invalid_job_order_transition")
	ErrNotFound               = errors.New("job_order_not_found")
	ErrAlreadyDeleted         = errors.New("job_order_already_deleted")
	ErrNotDeleted             = errors.New("job_order_not_deleted")
	ErrHasLiveInvoices        = errors.New("job_order_has_invoices")
	ErrTotalBelowInvoiced     = errors.New("total_below_invoiced")
	ErrDuplicateNumber        = errors.New("job_order_number_taken")
	ErrInvalidKind            = errors.New("invalid_change_order_kind")
	ErrInvalidDescription     = errors.New("invalid_description")
	ErrChangeOrderNotFound    = errors.New("change_order_not_found")
	ErrChangeOrderNotPending  = errors.New("change_order_not_pending")
	ErrChangeOrderHasInvoices = errors.New("change_order_has_invoices")
)
