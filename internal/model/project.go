package model

import "time"

// Project is a generated website owned by a user
type Project struct {
	Record
	UserID          int           `gorm:"not null;index" json:"user_id"`
	Slug            string        `gorm:"type:varchar(63);uniqueIndex;not null" json:"slug"`
	Name            string        `gorm:"type:varchar(255);not null" json:"name"`
	Status          ProjectStatus `gorm:"type:varchar(16);not null;default:draft;index" json:"status"`
	PublishedURL    *string       `gorm:"type:varchar(512)" json:"published_url"`
	LastGeneratedAt *time.Time    `json:"last_generated_at"`
}

// TableName specifies the table name for Project
func (Project) TableName() string {
	return "projects"
}
