package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fieldbooks/internal/balance"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// PurchaseOrder commits the organization to buy from a vendor. Vendor bills draw its
// BilledAmount up and its RemainingAmount down.
type PurchaseOrder struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_purchase_orders_org_number,priority:1" json:"org_id"`
	VendorID        snowflake.ID  `gorm:"not null;index" json:"vendor_id"`
	JobOrderID      *snowflake.ID `gorm:"index" json:"job_order_id,omitempty"`
	Number          string        `gorm:"not null;uniqueIndex:ux_purchase_orders_org_number,priority:2" json:"number"`
	Notes           string        `json:"notes,omitempty"`
	Status          Status        `gorm:"not null;index" json:"status"`
	Total           int64         `gorm:"not null" json:"total"`
	BilledAmount    int64         `gorm:"not null" json:"billed_amount"`
	RemainingAmount int64         `gorm:"not null" json:"remaining_amount"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
	DeletedAt       *time.Time    `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy       *string       `json:"deleted_by,omitempty"`

	Lines []Line `gorm:"-" json:"lines,omitempty"`
}

func (PurchaseOrder) TableName() string { return "purchase_orders" }

func (p PurchaseOrder) Ledger() balance.Ledger {
	return balance.Ledger{Total: p.Total, Invoiced: p.BilledAmount, Remaining: p.RemainingAmount}
}

func (p *PurchaseOrder) SetLedger(l balance.Ledger) {
	p.Total = l.Total
	p.BilledAmount = l.Invoiced
	p.RemainingAmount = l.Remaining
}

type Line struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID    `gorm:"not null" json:"org_id"`
	PurchaseOrderID snowflake.ID    `gorm:"not null;index" json:"purchase_order_id"`
	Position        int             `gorm:"not null" json:"position"`
	Description     string          `gorm:"not null" json:"description"`
	Quantity        decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"quantity"`
	BilledQuantity  decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"billed_quantity"`
	UnitPrice       int64           `gorm:"not null" json:"unit_price"`
	Amount          int64           `gorm:"not null" json:"amount"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (Line) TableName() string { return "purchase_order_lines" }

// Bill moves the line's billed quantity by delta, clamped to what was ordered. Callers
// check Unbilled before billing more.
func (l *Line) Bill(delta decimal.Decimal) {
	l.BilledQuantity = balance.ClampQuantity(l.BilledQuantity, delta, l.Quantity)
}

// Unbilled is the quantity still open for billing.
func (l Line) Unbilled() decimal.Decimal {
	open := l.Quantity.Sub(l.BilledQuantity)
	if open.IsNegative() {
		return decimal.Zero
	}
	return open
}

func LineAmount(quantity decimal.Decimal, unitPrice int64) int64 {
	return quantity.Mul(decimal.NewFromInt(unitPrice)).Round(0).IntPart()
}
