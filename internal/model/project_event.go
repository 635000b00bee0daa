package model

import (
	"time"

	"gorm.io/datatypes"
)

// Project event types
const (
	EventGenerationStarted   = "generation.started"
	EventGenerationCompleted = "generation.completed"
	EventGenerationFailed    = "generation.failed"
	EventProjectPublished    = "project.published"
	EventDomainVerified      = "domain.verified"
	EventDomainFailed        = "domain.failed"
)

// ProjectEvent is a persisted status change, replayable by dashboard clients
type ProjectEvent struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProjectID int            `gorm:"column:project_id;not null;index:idx_project_event,priority:1" json:"project_id"`
	EventType string         `gorm:"column:event_type;type:varchar(64);not null" json:"event_type"`
	Payload   datatypes.JSON `gorm:"column:payload;type:json" json:"payload"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime;index:idx_project_event,priority:2" json:"created_at"`
}

// TableName specifies the table name for ProjectEvent
func (ProjectEvent) TableName() string {
	return "project_events"
}
