package model

import "time"

// Domain is a hostname bound (or to be bound) to a project
type Domain struct {
	Record
	ProjectID     *int         `gorm:"index" json:"project_id"` // nil when unassigned
	UserID        int          `gorm:"not null;index" json:"user_id"`
	Domain        string       `gorm:"type:varchar(255);uniqueIndex;not null" json:"domain"`
	DomainType    DomainType   `gorm:"type:varchar(16);not null" json:"domain_type"`
	Status        DomainStatus `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	DNSConfigured bool         `gorm:"not null;default:false" json:"dns_configured"`
	CheckAttempts int          `gorm:"not null;default:0" json:"check_attempts"`
	LastCheckedAt *time.Time   `json:"last_checked_at"`
	VerifiedAt    *time.Time   `json:"verified_at"`
}

// TableName specifies the table name for Domain model
func (Domain) TableName() string {
	return "domains"
}
