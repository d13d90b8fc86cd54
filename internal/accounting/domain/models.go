package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EntityType string

const (
	EntityCustomer          EntityType = "customer"
	EntityVendor            EntityType = "vendor"
	EntityInvoice           EntityType = "invoice"
	EntityInvoicePayment    EntityType = "invoice_payment"
	EntityVendorBill        EntityType = "vendor_bill"
	EntityVendorBillPayment EntityType = "vendor_bill_payment"
)

// Valid reports whether the entity type is pushed to the accounting system.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCustomer, EntityVendor, EntityInvoice, EntityInvoicePayment, EntityVendorBill, EntityVendorBillPayment:
		return true
	default:
		return false
	}
}

type Operation string

const (
	OperationUpsert Operation = "upsert"
	OperationDelete Operation = "delete"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// SyncMapping links a local document to its record in the external accounting system and
// keeps the last pushed payload so failed pushes can be retried without reloading the document.
type SyncMapping struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID      `gorm:"not null;uniqueIndex:ux_sync_mappings_entity,priority:1" json:"org_id"`
	EntityType EntityType        `gorm:"not null;uniqueIndex:ux_sync_mappings_entity,priority:2" json:"entity_type"`
	EntityID   snowflake.ID      `gorm:"not null;uniqueIndex:ux_sync_mappings_entity,priority:3" json:"entity_id"`
	Provider   string            `gorm:"not null" json:"provider"`
	ExternalID string            `json:"external_id,omitempty"`
	Version    string            `json:"external_version,omitempty"`
	Operation  Operation         `gorm:"not null" json:"operation"`
	Status     Status            `gorm:"not null;index" json:"status"`
	Attempts   int               `gorm:"not null" json:"attempts"`
	LastError  string            `json:"last_error,omitempty"`
	Payload    datatypes.JSONMap `gorm:"type:jsonb" json:"payload,omitempty"`
	SyncedAt   *time.Time        `json:"synced_at,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

func (SyncMapping) TableName() string { return "sync_mappings" }

// ExternalRef identifies a record in the accounting system. Version is the provider's
// optimistic-concurrency token, when it has one.
type ExternalRef struct {
	ID      string
	Version string
}

// Ref returns the mapping's external reference.
func (m SyncMapping) Ref() ExternalRef {
	return ExternalRef{ID: m.ExternalID, Version: m.Version}
}

// Document is one push to the accounting system.
type Document struct {
	OrgID      snowflake.ID
	EntityType EntityType
	EntityID   snowflake.ID
	Operation  Operation
	Payload    map[string]any
}
