package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Person is a crew member whose hours are tracked against job orders.
type Person struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name       string       `gorm:"not null" json:"name"`
	Email      string       `json:"email,omitempty"`
	Phone      string       `json:"phone,omitempty"`
	Trade      string       `gorm:"index" json:"trade,omitempty"`
	HourlyRate int64        `gorm:"not null" json:"hourly_rate"`
	Active     bool         `gorm:"not null" json:"active"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
	DeletedAt  *time.Time   `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy  *string      `json:"deleted_by,omitempty"`
}

func (Person) TableName() string { return "people" }

type Certification struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	PersonID  snowflake.ID `gorm:"not null;index" json:"person_id"`
	Name      string       `gorm:"not null" json:"name"`
	Issuer    string       `json:"issuer,omitempty"`
	IssuedAt  *time.Time   `json:"issued_at,omitempty"`
	ExpiresAt *time.Time   `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
	DeletedAt *time.Time   `gorm:"index" json:"deleted_at,omitempty"`
	DeletedBy *string      `json:"deleted_by,omitempty"`
}

func (Certification) TableName() string { return "certifications" }

// DaysLeft counts whole days until expiry. Certifications without an expiry never run out.
func (c Certification) DaysLeft(now time.Time) (int, bool) {
	if c.ExpiresAt == nil {
		return 0, false
	}
	return int(c.ExpiresAt.Sub(now).Hours() / 24), true
}

// ExpiringCertification is a certification joined with the holder's name.
type ExpiringCertification struct {
	Certification
	PersonName string `json:"person_name"`
	DaysLeft   int    `gorm:"-" json:"days_left"`
}
