package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type UploadRequest struct {
	EntityType  EntityType
	EntityID    string
	Filename    string
	ContentType string
	Body        io.Reader
}

// Owner describes the entity an attachment hangs off.
type Owner struct {
	Exists   bool
	VendorID *snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, attachment *Attachment) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Attachment, error)
	ListByEntity(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entityType EntityType, entityID snowflake.ID) ([]Attachment, error)
	SoftDelete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, by string, at time.Time) (bool, error)
	FindOwner(ctx context.Context, db *gorm.DB, orgID snowflake.ID, entityType EntityType, entityID snowflake.ID) (Owner, error)
}

type Service interface {
	Upload(ctx context.Context, req UploadRequest) (Attachment, error)
	GetByID(ctx context.Context, id string) (Attachment, error)
	// Open returns the attachment and its content. The caller closes the reader.
	Open(ctx context.Context, id string) (Attachment, io.ReadCloser, error)
	List(ctx context.Context, entityType EntityType, entityID string) ([]Attachment, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidEntityType   = errors.New("invalid_entity_type")
	ErrInvalidFilename     = errors.New("invalid_filename")
	ErrEmptyFile           = errors.New("empty_file")
	ErrTooLarge            = errors.New("attachment_too_large")
	ErrEntityNotFound      = errors.New("attachment_entity_not_found")
	ErrNotFound            = errors.New("attachment_not_found")
)
