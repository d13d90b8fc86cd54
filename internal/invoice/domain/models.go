// Package domain contains persistence models for customer invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/balance"
)

type Status string

const (
	StatusDraft         Status = "draft"
	StatusSent          Status = "sent"
	StatusPartiallyPaid Status = balance.StatusPartiallyPaid
	StatusPaid          Status = balance.StatusPaid
)

// Invoice bills a customer, optionally against one job order or one change order.
// PaidAmount is always the sum of the invoice's live payments.
type Invoice struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_invoices_org_number,priority:1" json:"org_id"`
	CustomerID      snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	Number          string        `gorm:"not null;uniqueIndex:ux_invoices_org_number,priority:2" json:"number"`
	JobOrderID      *snowflake.ID `gorm:"index" json:"job_order_id,omitempty"`
	ChangeOrderID   *snowflake.ID `gorm:"index" json:"change_order_id,omitempty"`
	EstimateID      *snowflake.ID `gorm:"uniqueIndex:ux_invoices_estimate" json:"estimate_id,omitempty"`
	Title           string        `json:"title,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	Status          Status        `gorm:"not null;index" json:"status"`
	Total           int64         `gorm:"not null" json:"total"`
	PaidAmount      int64         `gorm:"not null" json:"paid_amount"`
	RemainingAmount int64         `gorm:"not null" json:"remaining_amount"`
	DueDate         *time.Time    `json:"due_date,omitempty"`
	SentAt          *time.Time    `json:"sent_at,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
	DeletedAt       *time.Time    `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy       *string       `json:"deleted_by,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// UnpaidStatus is the status an invoice falls back to when nothing is paid.
func (i Invoice) UnpaidStatus() Status {
	if i.SentAt == nil {
		return StatusDraft
	}
	return StatusSent
}

// Settle recomputes the payment aggregate from the live payment amounts.
func (i *Invoice) Settle(amounts []int64) {
	settlement := balance.Settle(i.Total, amounts, string(i.UnpaidStatus()))
	i.PaidAmount = settlement.Paid
	i.RemainingAmount = settlement.Remaining
	i.Status = Status(settlement.Status)
}

type Payment struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index" json:"org_id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Amount      int64        `gorm:"not null" json:"amount"`
	PaymentDate time.Time    `gorm:"not null" json:"payment_date"`
	Method      string       `json:"method,omitempty"`
	Reference   string       `json:"reference,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
	DeletedAt   *time.Time   `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy   *string      `json:"deleted_by,omitempty"`
}

func (Payment) TableName() string { return "invoice_payments" }
