package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldbooks/internal/balance"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCancelled:  {StatusOpen},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type JobOrder struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_job_orders_org_number,priority:1" json:"org_id"`
	EstimateID      *snowflake.ID `gorm:"uniqueIndex:ux_job_orders_estimate" json:"estimate_id,omitempty"`
	CustomerID      snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	Number          string        `gorm:"not null;uniqueIndex:ux_job_orders_org_number,priority:2" json:"number"`
	Title           string        `gorm:"not null" json:"title"`
	Description     string        `json:"description,omitempty"`
	SiteAddress     string        `json:"site_address,omitempty"`
	Status          Status        `gorm:"not null;index" json:"status"`
	Total           int64         `gorm:"not null" json:"total"`
	InvoicedAmount  int64         `gorm:"not null" json:"invoiced_amount"`
	RemainingAmount int64         `gorm:"not null" json:"remaining_amount"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
	DeletedAt       *time.Time    `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy       *string       `json:"deleted_by,omitempty"`
}

func (JobOrder) TableName() string { return "job_orders" }

func (j JobOrder) Ledger() balance.Ledger {
	return balance.Ledger{Total: j.Total, Invoiced: j.InvoicedAmount, Remaining: j.RemainingAmount}
}

func (j *JobOrder) SetLedger(l balance.Ledger) {
	j.Total = l.Total
	j.InvoicedAmount = l.Invoiced
	j.RemainingAmount = l.Remaining
}

type ChangeOrderKind string

const (
	KindAdditive  ChangeOrderKind = "additive"
	KindDeductive ChangeOrderKind = "deductive"
)

type ChangeOrderStatus string

const (
	ChangeOrderPending  ChangeOrderStatus = "pending"
	ChangeOrderApproved ChangeOrderStatus = "approved"
	ChangeOrderRejected ChangeOrderStatus = "rejected"
)

// ChangeOrder amends a job order's scope. Total is always positive; Kind carries the sign.
type ChangeOrder struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_change_orders_org_number,priority:1" json:"org_id"`
	JobOrderID      snowflake.ID      `gorm:"not null;index" json:"job_order_id"`
	Number          string            `gorm:"not null;uniqueIndex:ux_change_orders_org_number,priority:2" json:"number"`
	Description     string            `gorm:"not null" json:"description"`
	Kind            ChangeOrderKind   `gorm:"not null" json:"kind"`
	Status          ChangeOrderStatus `gorm:"not null" json:"status"`
	Total           int64             `gorm:"not null" json:"total"`
	InvoicedAmount  int64             `gorm:"not null" json:"invoiced_amount"`
	RemainingAmount int64             `gorm:"not null" json:"remaining_amount"`
	DecidedAt       *time.Time        `json:"decided_at,omitempty"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null" json:"updated_at"`
	DeletedAt       *time.Time        `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy       *string           `json:"deleted_by,omitempty"`
}

func (ChangeOrder) TableName() string { return "change_orders" }

func (c ChangeOrder) Ledger() balance.Ledger {
	return balance.Ledger{Total: c.Total, Invoiced: c.InvoicedAmount, Remaining: c.RemainingAmount}
}

func (c *ChangeOrder) SetLedger(l balance.Ledger) {
	c.Total = l.Total
	c.InvoicedAmount = l.Invoiced
	c.RemainingAmount = l.Remaining
}

// SignedTotal is the change order's effect on contract value.
func (c ChangeOrder) SignedTotal() int64 {
	if c.Kind == KindDeductive {
		return -c.Total
	}
	return c.Total
}

type ChangeOrderLine struct {
	ID          snowflake.ID    `json:"id"`
	Number      string          `json:"number"`
	Kind        ChangeOrderKind `json:"kind"`
	SignedTotal int64           `json:"signed_total"`
	Invoiced    int64           `json:"invoiced_amount"`
	Remaining   int64           `json:"remaining_amount"`
}

// Summary is a job order's contract position including its approved change orders.
type Summary struct {
	JobOrderID    snowflake.ID      `json:"job_order_id"`
	Number        string            `json:"number"`
	BaseTotal     int64             `json:"base_total"`
	ChangeTotal   int64             `json:"change_total"`
	ContractValue int64             `json:"contract_value"`
	Invoiced      int64             `json:"invoiced_amount"`
	Remaining     int64             `json:"remaining_amount"`
	ChangeOrders  []ChangeOrderLine `json:"change_orders"`
}

// Summarize folds approved change orders into the job order's own ledger.
func Summarize(job JobOrder, changes []ChangeOrder) Summary {
	summary := Summary{
		JobOrderID:   job.ID,
		Number:       job.Number,
		BaseTotal:    job.Total,
		Invoiced:     job.InvoicedAmount,
		ChangeOrders: make([]ChangeOrderLine, 0, len(changes)),
	}
	for _, co := range changes {
		if co.Status != ChangeOrderApproved || co.DeletedAt != nil {
			continue
		}
		summary.ChangeTotal += co.SignedTotal()
		summary.Invoiced += co.InvoicedAmount
		summary.ChangeOrders = append(summary.ChangeOrders, ChangeOrderLine{
			ID:          co.ID,
			Number:      co.Number,
			Kind:        co.Kind,
			SignedTotal: co.SignedTotal(),
			Invoiced:    co.InvoicedAmount,
			Remaining:   co.RemainingAmount,
		})
	}
	summary.ContractValue = summary.BaseTotal + summary.ChangeTotal
	summary.Remaining = max(0, summary.ContractValue-summary.Invoiced)
	return summary
}
