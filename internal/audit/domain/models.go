package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID      `gorm:"not null;index:idx_audit_logs_org_created,priority:1" json:"org_id"`
	ActorID    string            `gorm:"type:varchar(128);not null;index" json:"actor_id"`
	ActorRole  string            `gorm:"type:varchar(32)" json:"actor_role"`
	Action     string            `gorm:"type:varchar(64);not null" json:"action"`
	TargetType string            `gorm:"type:varchar(64);not null;index:idx_audit_logs_target,priority:1" json:"target_type"`
	TargetID   snowflake.ID      `gorm:"index:idx_audit_logs_target,priority:2" json:"target_id"`
	RequestID  string            `gorm:"type:varchar(64)" json:"request_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:idx_audit_logs_org_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
