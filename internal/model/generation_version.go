package model

import (
	"time"

	"gorm.io/datatypes"
)

// GenerationVersion is one attempt to produce a project's file set
type GenerationVersion struct {
	ID            int64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProjectID     int           `gorm:"column:project_id;not null;uniqueIndex:uk_project_version,priority:1" json:"project_id"`
	VersionNumber int           `gorm:"column:version_number;not null;uniqueIndex:uk_project_version,priority:2" json:"version_number"`
	Status        VersionStatus `gorm:"column:status;type:varchar(16);not null;default:pending;index" json:"status"`
	// InFlightProjectID equals ProjectID while the version is pending/generating
	// and is NULL once terminal. The unique index admits one in-flight row per project.
	InFlightProjectID *int             `gorm:"column:in_flight_project_id;uniqueIndex:uk_generation_in_flight" json:"-"`
	TriggerType       TriggerType      `gorm:"column:trigger_type;type:varchar(32);not null" json:"trigger_type"`
	TriggerDetails    datatypes.JSON   `gorm:"column:trigger_details;type:json" json:"trigger_details,omitempty"`
	TotalTokensUsed   int              `gorm:"column:total_tokens_used;not null;default:0" json:"total_tokens_used"`
	GenerationTimeMs  *int64           `gorm:"column:generation_time_ms" json:"generation_time_ms,omitempty"`
	ModelUsed         string           `gorm:"column:model_used;type:varchar(128)" json:"model_used,omitempty"`
	ErrorMessage      *string          `gorm:"column:error_message;type:varchar(2048)" json:"error_message,omitempty"`
	ErrorDetails      datatypes.JSON   `gorm:"column:error_details;type:json" json:"error_details,omitempty"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	CompletedAt       *time.Time       `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Files             []GeneratedFile  `gorm:"foreignKey:VersionID" json:"files,omitempty"`
}

// TableName specifies the table name for GenerationVersion
func (GenerationVersion) TableName() string {
	return "generation_versions"
}

// GeneratedFile is one immutable file of a generation version
type GeneratedFile struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	VersionID   int64     `gorm:"column:version_id;not null;uniqueIndex:uk_version_path,priority:1" json:"version_id"`
	FilePath    string    `gorm:"column:file_path;type:varchar(512);not null;uniqueIndex:uk_version_path,priority:2" json:"file_path"`
	Content     string    `gorm:"column:content;type:longtext;not null" json:"content"`
	FileType    FileType  `gorm:"column:file_type;type:varchar(16);not null" json:"file_type"`
	SectionType *string   `gorm:"column:section_type;type:varchar(64)" json:"section_type,omitempty"`
	TokensUsed  int       `gorm:"column:tokens_used;not null;default:0" json:"tokens_used"`
	Position    int       `gorm:"column:position;not null;default:0" json:"-"` // tree insertion order
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GeneratedFile
func (GeneratedFile) TableName() string {
	return "generated_files"
}
