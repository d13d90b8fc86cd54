package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusDraft:    {StatusSent, StatusApproved},
	StatusSent:     {StatusApproved, StatusRejected},
	StatusRejected: {StatusDraft},
}

// CanTransition reports whether an estimate may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Estimate struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_estimates_org_number,priority:1" json:"org_id"`
	CustomerID snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	Number     string        `gorm:"not null;uniqueIndex:ux_estimates_org_number,priority:2" json:"number"`
	Title      string        `gorm:"not null" json:"title"`
	Notes      string        `json:"notes,omitempty"`
	Status     Status        `gorm:"not null;index" json:"status"`
	Total      int64         `gorm:"not null" json:"total"`
	JobOrderID *snowflake.ID `json:"job_order_id,omitempty"`
	InvoiceID  *snowflake.ID `json:"invoice_id,omitempty"`
	ApprovedAt *time.Time    `json:"approved_at,omitempty"`
	CreatedAt  time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null" json:"updated_at"`
	DeletedAt  *time.Time    `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy  *string       `json:"deleted_by,omitempty"`

	Lines []Line `gorm:"-" json:"lines,omitempty"`
}

func (Estimate) TableName() string { return "estimates" }

type Line struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID    `gorm:"not null" json:"org_id"`
	EstimateID  snowflake.ID    `gorm:"not null;index" json:"estimate_id"`
	Position    int             `gorm:"not null" json:"position"`
	Description string          `gorm:"not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(12,3);not null" json:"quantity"`
	UnitPrice   int64           `gorm:"not null" json:"unit_price"`
	Amount      int64           `gorm:"not null" json:"amount"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

func (Line) TableName() string { return "estimate_lines" }

// LineAmount is quantity times unit price, rounded to whole cents.
func LineAmount(quantity decimal.Decimal, unitPrice int64) int64 {
	return quantity.Mul(decimal.NewFromInt(unitPrice)).Round(0).IntPart()
}
