package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionEntryCreated   = "ledger.entry_created"
	ActionEntryReversed  = "ledger.entry_reversed"
	ActionEntryEdited    = "ledger.entry_edited"
	ActionFlightCharged  = "flight.charged"
	ActionFlightUnlocked = "flight.unlocked"
	ActionBatchCharged   = "flight.batch_charged"
	ActionAccessDenied   = "authorization.denied"
)

const (
	TargetTypeTransaction = "transaction"
	TargetTypeFlight      = "flight"
	TargetTypeBatch       = "batch"
	TargetTypeCapability  = "capability"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text;index" json:"target_id,omitempty"`
	RequestID  *string           `gorm:"type:text" json:"request_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
