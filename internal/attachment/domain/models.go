package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type EntityType string

const (
	EntityEstimate      EntityType = "estimate"
	EntityJobOrder      EntityType = "job_order"
	EntityChangeOrder   EntityType = "change_order"
	EntityInvoice       EntityType = "invoice"
	EntityPurchaseOrder EntityType = "purchase_order"
	EntityVendorBill    EntityType = "vendor_bill"
	EntityTimeEntry     EntityType = "time_entry"
	EntityPerson        EntityType = "person"
	EntityCustomer      EntityType = "customer"
	EntityVendor        EntityType = "vendor"
)

// entityTables maps attachable entities to their tables. vendorOwned marks tables with a vendor_id column.
var entityTables = map[EntityType]struct {
	table       string
	vendorOwned bool
}{
	EntityEstimate:      {"estimates", false},
	EntityJobOrder:      {"job_orders", false},
	EntityChangeOrder:   {"change_orders", false},
	EntityInvoice:       {"invoices", false},
	EntityPurchaseOrder: {"purchase_orders", true},
	EntityVendorBill:    {"vendor_bills", true},
	EntityTimeEntry:     {"time_entries", false},
	EntityPerson:        {"people", false},
	EntityCustomer:      {"customers", false},
	EntityVendor:        {"vendors", false},
}

// Table returns the backing table and whether rows there belong to a vendor.
func (t EntityType) Table() (table string, vendorOwned bool, ok bool) {
	entry, ok := entityTables[t]
	return entry.table, entry.vendorOwned, ok
}

type Attachment struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index:ix_attachments_entity,priority:1" json:"org_id"`
	EntityType  EntityType   `gorm:"not null;index:ix_attachments_entity,priority:2" json:"entity_type"`
	EntityID    snowflake.ID `gorm:"not null;index:ix_attachments_entity,priority:3" json:"entity_id"`
	BucketKey   string       `gorm:"not null;uniqueIndex" json:"-"`
	Filename    string       `gorm:"not null" json:"filename"`
	ContentType string       `gorm:"not null" json:"content_type"`
	Size        int64        `gorm:"not null" json:"size"`
	URL         string       `gorm:"not null" json:"url"`
	UploadedBy  string       `gorm:"not null" json:"uploaded_by"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
	DeletedAt   *time.Time   `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy   *string      `json:"deleted_by,omitempty"`
}

func (Attachment) TableName() string { return "attachments" }
