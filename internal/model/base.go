package model

import "time"

// Record is embedded by the mutable rows: users, projects and domains.
// Ledger rows (versions, files, events) are append-only and carry only created_at.
type Record struct {
	ID        int       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime;index" json:"updated_at"`
}

// Persisted reports whether the row has been inserted
func (r Record) Persisted() bool {
	return r.ID > 0
}
