// Package domain contains persistence models for vendor bills and their payments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldbooks/internal/balance"
)

type Status string

const (
	StatusOpen          Status = "open"
	StatusPartiallyPaid Status = balance.StatusPartiallyPaid
	StatusPaid          Status = balance.StatusPaid
)

// VendorBill is what a vendor charges, optionally against one purchase order. Total is the
// sum of its lines; PaidAmount is always the sum of its live payments.
type VendorBill struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_vendor_bills_org_number,priority:1" json:"org_id"`
	VendorID        snowflake.ID  `gorm:"not null;index" json:"vendor_id"`
	PurchaseOrderID *snowflake.ID `gorm:"index" json:"purchase_order_id,omitempty"`
	Number          string        `gorm:"not null;uniqueIndex:ux_vendor_bills_org_number,priority:2" json:"number"`
	Notes           string        `json:"notes,omitempty"`
	Status          Status        `gorm:"not null;index" json:"status"`
	Total           int64         `gorm:"not null" json:"total"`
	PaidAmount      int64         `gorm:"not null" json:"paid_amount"`
	RemainingAmount int64         `gorm:"not null" json:"remaining_amount"`
	DueDate         *time.Time    `json:"due_date,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
	DeletedAt       *time.Time    `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy       *string       `json:"deleted_by,omitempty"`

	Lines []Line `gorm:"-" json:"lines,omitempty"`
}

func (VendorBill) TableName() string { return "vendor_bills" }

// Settle recomputes the payment aggregate from the live payment amounts.
func (b *VendorBill) Settle(amounts []int64) {
	settlement := balance.Settle(b.Total, amounts, string(StatusOpen))
	b.PaidAmount = settlement.Paid
	b.RemainingAmount = settlement.Remaining
	b.Status = Status(settlement.Status)
}

type Line struct {
	ID                  snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID               snowflake.ID    `gorm:"not null" json:"org_id"`
	VendorBillID        snowflake.ID    `gorm:"not null;index" json:"vendor_bill_id"`
	PurchaseOrderLineID *snowflake.ID   `gorm:"index" json:"purchase_order_line_id,omitempty"`
	Position            int             `gorm:"not null" json:"position"`
	Description         string          `gorm:"not null" json:"description"`
	Quantity            decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"quantity"`
	UnitPrice           int64           `gorm:"not null" json:"unit_price"`
	Amount              int64           `gorm:"not null" json:"amount"`
	CreatedAt           time.Time       `gorm:"not null" json:"created_at"`
}

func (Line) TableName() string { return "vendor_bill_lines" }

type Payment struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index" json:"org_id"`
	VendorBillID snowflake.ID `gorm:"not null;index" json:"vendor_bill_id"`
	Amount       int64        `gorm:"not null" json:"amount"`
	PaymentDate  time.Time    `gorm:"not null" json:"payment_date"`
	Method       string       `json:"method,omitempty"`
	Reference    string       `json:"reference,omitempty"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
	DeletedAt    *time.Time   `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy    *string      `json:"deleted_by,omitempty"`
}

func (Payment) TableName() string { return "vendor_bill_payments" }
