package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateVendorRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Trade string `json:"trade"`
}

type UpdateVendorRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
	Trade *string `json:"trade"`
}

type ListVendorRequest struct {
	pagination.Pagination
	Name  string
	Trade string
}

type ListVendorResponse struct {
	pagination.PageInfo
	Vendors []Vendor `json:"vendors"`
}

type ListFilter struct {
	Name  string
	Trade string
	Page  pagination.Pagination
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, vendor *Vendor) error
	Update(ctx context.Context, db *gorm.DB, vendor *Vendor) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Vendor, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]Vendor, error)
	SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
}

type Service interface {
	Create(ctx context.Context, req CreateVendorRequest) (Vendor, error)
	Update(ctx context.Context, id string, req UpdateVendorRequest) (Vendor, error)
	GetByID(ctx context.Context, id string) (Vendor, error)
	List(ctx context.Context, req ListVendorRequest) (ListVendorResponse, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrNotFound            = errors.New("vendor_not_found")
)
