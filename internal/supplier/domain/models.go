package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Vendor is a subcontractor or supplier. Portal users carry its ID in their token.
type Vendor struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name      string       `gorm:"not null" json:"name"`
	Email     string       `json:"email,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	Trade     string       `json:"trade,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
	DeletedAt *time.Time   `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy *string      `json:"deleted_by,omitempty"`
}

func (Vendor) TableName() string { return "vendors" }
