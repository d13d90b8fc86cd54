package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreatePersonRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Trade      string `json:"trade"`
	HourlyRate int64  `json:"hourly_rate"`
}

type UpdatePersonRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	Trade      *string `json:"trade"`
	HourlyRate *int64  `json:"hourly_rate"`
	Active     *bool   `json:"active"`
}

type ListPeopleRequest struct {
	pagination.Pagination
	Trade  string
	Active string
}

type ListPeopleResponse struct {
	pagination.PageInfo
	People []Person `json:"people"`
}

type ListFilter struct {
	Trade  string
	Active *bool
	Page   pagination.Pagination
}

type CertificationRequest struct {
	Name      string     `json:"name"`
	Issuer    string     `json:"issuer"`
	IssuedAt  *time.Time `json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type Repository interface {
	InsertPerson(ctx context.Context, db *gorm.DB, person *Person) error
	UpdatePerson(ctx context.Context, db *gorm.DB, person *Person) error
	FindPerson(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Person, error)
	// FindPersonForUpdate locks the person row for the rest of the transaction.
	FindPersonForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Person, error)
	ListPeople(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]Person, error)
	SoftDeletePerson(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)

	InsertCertification(ctx context.Context, db *gorm.DB, cert *Certification) error
	UpdateCertification(ctx context.Context, db *gorm.DB, cert *Certification) error
	FindCertification(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Certification, error)
	ListCertifications(ctx context.Context, db *gorm.DB, orgID, personID snowflake.ID) ([]Certification, error)
	SoftDeleteCertification(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
	SoftDeleteCertificationsOf(ctx context.Context, db *gorm.DB, orgID, personID snowflake.ID, by string, at time.Time) error

	// ListExpiring returns live certifications of active people expiring in [from, until].
	// A zero orgID spans every organization.
	ListExpiring(ctx context.Context, db *gorm.DB, orgID snowflake.ID, from, until time.Time) ([]ExpiringCertification, error)
}

type Service interface {
	CreatePerson(ctx context.Context, req CreatePersonRequest) (Person, error)
	UpdatePerson(ctx context.Context, id string, req UpdatePersonRequest) (Person, error)
	GetPerson(ctx context.Context, id string) (Person, error)
	ListPeople(ctx context.Context, req ListPeopleRequest) (ListPeopleResponse, error)
	DeletePerson(ctx context.Context, id string) error

	AddCertification(ctx context.Context, personID string, req CertificationRequest) (Certification, error)
	UpdateCertification(ctx context.Context, id string, req CertificationRequest) (Certification, error)
	DeleteCertification(ctx context.Context, id string) error
	ListCertifications(ctx context.Context, personID string) ([]Certification, error)
	ListExpiring(ctx context.Context, days int) ([]ExpiringCertification, error)

	// SendExpiryDigest notifies the office about certifications expiring within days,
	// across all organizations. It returns how many certifications were reported.
	SendExpiryDigest(ctx context.Context, days int) (int, error)
}

var (
	ErrInvalidOrganization     = errors.New("invalid_organization")
	ErrInvalidID               = errors.New("invalid_id")
	ErrInvalidName             = errors.New("invalid_name")
	ErrInvalidEmail            = errors.New("invalid_email")
	ErrInvalidHourlyRate       = errors.New("invalid_hourly_rate")
	ErrInvalidActiveFilter     = errors.New("invalid_active_filter")
	ErrInvalidCertification    = errors.New("invalid_certification")
	ErrInvalidCertificateDates = errors.New("certification_expires_before_issue")
	ErrInvalidWindow           = errors.New("invalid_expiry_window")
	ErrNotFound                = errors.New("person_not_found")
	ErrCertificationNotFound   = errors.New("certification_not_found")
)
