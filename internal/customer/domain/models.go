package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Customer struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name           string       `gorm:"not null" json:"name"`
	Email          string       `json:"email,omitempty"`
	Phone          string       `json:"phone,omitempty"`
	BillingAddress string       `json:"billing_address,omitempty"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
	DeletedAt      *time.Time   `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy      *string      `json:"deleted_by,omitempty"`
}

func (Customer) TableName() string { return "customers" }
