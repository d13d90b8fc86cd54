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

type CreateTimeEntryRequest struct {
	PersonID   snowflake.ID    `json:"person_id"`
	JobOrderID snowflake.ID    `json:"job_order_id"`
	WorkDate   time.Time       `json:"work_date"`
	Hours      decimal.Decimal `json:"hours"`
	Notes      string          `json:"notes"`
}

type UpdateTimeEntryRequest struct {
	JobOrderID *snowflake.ID    `json:"job_order_id"`
	WorkDate   *time.Time       `json:"work_date"`
	Hours      *decimal.Decimal `json:"hours"`
	Notes      *string          `json:"notes"`
}

type ListTimeEntryRequest struct {
	pagination.Pagination
	PersonID   string
	JobOrderID string
	From       string
	To         string
}

type ListTimeEntryResponse struct {
	pagination.PageInfo
	TimeEntries []TimeEntry `json:"time_entries"`
}

type ListFilter struct {
	PersonID   snowflake.ID
	JobOrderID snowflake.ID
	From       time.Time
	To         time.Time
	Page       pagination.Pagination
}

type WeeklySummaryRequest struct {
	// Week is any date inside the requested week.
	Week       string
	PersonID   string
	JobOrderID string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *TimeEntry) error
	Update(ctx context.Context, db *gorm.DB, entry *TimeEntry) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*TimeEntry, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]TimeEntry, error)
	ListRange(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]TimeEntry, error)
	SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
	Restore(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, at time.Time) (bool, error)

	// FindLiveForDay returns the live entry other than excludeID booked for the same
	// person, job order and work date.
	FindLiveForDay(ctx context.Context, db *gorm.DB, entry *TimeEntry, excludeID snowflake.ID) (*TimeEntry, error)
}

type Service interface {
	Create(ctx context.Context, req CreateTimeEntryRequest) (TimeEntry, error)
	Update(ctx context.Context, id string, req UpdateTimeEntryRequest) (TimeEntry, error)
	GetByID(ctx context.Context, id string) (TimeEntry, error)
	List(ctx context.Context, req ListTimeEntryRequest) (ListTimeEntryResponse, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) (TimeEntry, error)
	WeeklySummary(ctx context.Context, req WeeklySummaryRequest) (WeeklySummary, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidPerson       = errors.New("invalid_person")
	ErrInactivePerson      = errors.New("person_inactive")
	ErrInvalidJobOrder     = errors.New("invalid_job_order")
	ErrInvalidWorkDate     = errors.New("invalid_work_date")
	ErrInvalidHours        = errors.New("invalid_hours")
	ErrInvalidRange        = errors.New("invalid_date_range")
	ErrNotFound            = errors.New("time_entry_not_found")
	ErrNotDeleted          = errors.New("time_entry_not_deleted")
	ErrDuplicateEntry      = errors.New("time_entry_exists_for_day")
)
