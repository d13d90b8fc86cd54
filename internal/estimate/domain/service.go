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

// Conversion targets recorded on an estimate.
const (
	ConvertedToJobOrder = "job_order_id"
	ConvertedToInvoice  = "invoice_id"
)

type LineInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
}

type CreateEstimateRequest struct {
	CustomerID snowflake.ID `json:"customer_id"`
	Number     string       `json:"number"`
	Title      string       `json:"title"`
	Notes      string       `json:"notes"`
	Lines      []LineInput  `json:"lines"`
}

type UpdateEstimateRequest struct {
	Title *string     `json:"title"`
	Notes *string     `json:"notes"`
	Lines []LineInput `json:"lines"`
}

type ListEstimateRequest struct {
	pagination.Pagination
	Status     string
	CustomerID string
}

type ListEstimateResponse struct {
	pagination.PageInfo
	Estimates []Estimate `json:"estimates"`
}

type ListFilter struct {
	Status     Status
	CustomerID snowflake.ID
	Page       pagination.Pagination
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, estimate *Estimate) error
	UpdateHeader(ctx context.Context, db *gorm.DB, estimate *Estimate) error
	ReplaceLines(ctx context.Context, db *gorm.DB, estimate *Estimate) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Estimate, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Estimate, error)
	ListLines(ctx context.Context, db *gorm.DB, estimateID snowflake.ID) ([]Line, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]Estimate, error)
	SetStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from, to Status, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
	Restore(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error)

	// MarkConverted links an approved, unconverted estimate to targetID in one conditional
	// update and reports whether it won.
	MarkConverted(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, column string, targetID snowflake.ID, at time.Time) (bool, error)
	// ConversionFailure explains why MarkConverted affected no rows.
	ConversionFailure(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, column string) error
}

type Service interface {
	Create(ctx context.Context, req CreateEstimateRequest) (Estimate, error)
	Update(ctx context.Context, id string, req UpdateEstimateRequest) (Estimate, error)
	Transition(ctx context.Context, id string, to Status) (Estimate, error)
	GetByID(ctx context.Context, id string) (Estimate, error)
	List(ctx context.Context, req ListEstimateRequest) (ListEstimateResponse, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) (Estimate, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidCustomer     = errors.New("invalid_customer")
	ErrInvalidTitle        = errors.New("invalid_title")
	ErrInvalidLine         = errors.New("invalid_estimate_line")
	ErrInvalidStatus       = errors.New("invalid_estimate_status")
	ErrInvalidTransition   = errors.New("invalid_estimate_transition")
	ErrNotDraft            = errors.New("estimate_not_draft")
	ErrNotFound            = errors.New("estimate_not_found")
	ErrNotApproved         = errors.New("estimate_not_approved")
	ErrAlreadyConverted    = errors.New("estimate_already_converted")
	ErrAlreadyDeleted      = errors.New("estimate_already_deleted")
	ErrNotDeleted          = errors.New("estimate_not_deleted")
	ErrDuplicateNumber     = errors.New("estimate_number_taken")
)
