package model

import "fmt"

// ProjectStatus is the lifecycle state of a project
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusGenerating ProjectStatus = "generating"
	ProjectStatusGenerated  ProjectStatus = "generated"
	ProjectStatusDeployed   ProjectStatus = "deployed"
	ProjectStatusPublished  ProjectStatus = "published"
	ProjectStatusError      ProjectStatus = "error"
)

// ParseProjectStatus rejects unknown values
func ParseProjectStatus(s string) (ProjectStatus, error) {
	switch st := ProjectStatus(s); st {
	case ProjectStatusDraft, ProjectStatusGenerating, ProjectStatusGenerated,
		ProjectStatusDeployed, ProjectStatusPublished, ProjectStatusError:
		return st, nil
	}
	return "", fmt.Errorf("unknown project status %q", s)
}

// CanTransitionTo reports whether s -> next is a legal project transition.
// Status only moves forward, except into error from generating and back into
// generating on re-generation.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	switch s {
	case ProjectStatusDraft:
		return next == ProjectStatusGenerating
	case ProjectStatusGenerating:
		return next == ProjectStatusGenerated || next == ProjectStatusError
	case ProjectStatusGenerated:
		return next == ProjectStatusGenerating || next == ProjectStatusDeployed || next == ProjectStatusPublished
	case ProjectStatusDeployed:
		return next == ProjectStatusGenerating || next == ProjectStatusPublished
	case ProjectStatusPublished:
		return next == ProjectStatusGenerating || next == ProjectStatusPublished
	case ProjectStatusError:
		return next == ProjectStatusGenerating
	}
	return false
}

// Publishable reports whether a project in this status may be published
func (s ProjectStatus) Publishable() bool {
	switch s {
	case ProjectStatusGenerated, ProjectStatusDeployed, ProjectStatusPublished:
		return true
	case ProjectStatusDraft, ProjectStatusGenerating, ProjectStatusError:
		return false
	}
	return false
}

// HasPublishedURL reports whether published_url must be set in this status
func (s ProjectStatus) HasPublishedURL() bool {
	switch s {
	case ProjectStatusDeployed, ProjectStatusPublished:
		return true
	case ProjectStatusDraft, ProjectStatusGenerating, ProjectStatusGenerated, ProjectStatusError:
		return false
	}
	return false
}

// VersionStatus is the lifecycle state of a generation version
type VersionStatus string

const (
	VersionStatusPending    VersionStatus = "pending"
	VersionStatusGenerating VersionStatus = "generating"
	VersionStatusComplete   VersionStatus = "complete"
	VersionStatusError      VersionStatus = "error"
)

// ParseVersionStatus rejects unknown values
func ParseVersionStatus(s string) (VersionStatus, error) {
	switch st := VersionStatus(s); st {
	case VersionStatusPending, VersionStatusGenerating, VersionStatusComplete, VersionStatusError:
		return st, nil
	}
	return "", fmt.Errorf("unknown version status %q", s)
}

// IsTerminal reports whether no further transition is possible
func (s VersionStatus) IsTerminal() bool {
	switch s {
	case VersionStatusComplete, VersionStatusError:
		return true
	case VersionStatusPending, VersionStatusGenerating:
		return false
	}
	return false
}

// CanTransitionTo reports whether s -> next is a legal version transition
func (s VersionStatus) CanTransitionTo(next VersionStatus) bool {
	switch s {
	case VersionStatusPending:
		return next == VersionStatusGenerating || next == VersionStatusError
	case VersionStatusGenerating:
		return next == VersionStatusComplete || next == VersionStatusError
	case VersionStatusComplete, VersionStatusError:
		return false
	}
	return false
}

// AllVersionStatuses lists every version status
func AllVersionStatuses() []VersionStatus {
	return []VersionStatus{VersionStatusPending, VersionStatusGenerating, VersionStatusComplete, VersionStatusError}
}

// NonTerminalVersionStatuses lists the in-flight states
func NonTerminalVersionStatuses() []VersionStatus {
	return []VersionStatus{VersionStatusPending, VersionStatusGenerating}
}

// TriggerType says what caused a generation
type TriggerType string

const (
	TriggerInitial        TriggerType = "initial"
	TriggerFullRegenerate TriggerType = "full-regenerate"
	TriggerSectionEdit    TriggerType = "section-edit"
	TriggerStyleChange    TriggerType = "style-change"
)

// ParseTriggerType rejects unknown values
func ParseTriggerType(s string) (TriggerType, error) {
	switch tt := TriggerType(s); tt {
	case TriggerInitial, TriggerFullRegenerate, TriggerSectionEdit, TriggerStyleChange:
		return tt, nil
	}
	return "", fmt.Errorf("unknown trigger type %q", s)
}

// FileType classifies a generated file
type FileType string

const (
	FileTypeComponent FileType = "component"
	FileTypePage      FileType = "page"
	FileTypeConfig    FileType = "config"
	FileTypeStyle     FileType = "style"
	FileTypeData      FileType = "data"
)

// ParseFileType rejects unknown values
func ParseFileType(s string) (FileType, error) {
	switch ft := FileType(s); ft {
	case FileTypeComponent, FileTypePage, FileTypeConfig, FileTypeStyle, FileTypeData:
		return ft, nil
	}
	return "", fmt.Errorf("unknown file type %q", s)
}

// DomainType distinguishes platform subdomains from user domains
type DomainType string

const (
	DomainTypeSubdomain DomainType = "subdomain"
	DomainTypeCustom    DomainType = "custom"
)

// DomainStatus is the verification state of a domain
type DomainStatus string

const (
	DomainStatusPending DomainStatus = "pending"
	DomainStatusActive  DomainStatus = "active"
	DomainStatusFailed  DomainStatus = "failed"
)

// CanTransitionTo reports whether s -> next is a legal domain transition
func (s DomainStatus) CanTransitionTo(next DomainStatus) bool {
	switch s {
	case DomainStatusPending:
		return next == DomainStatusActive || next == DomainStatusFailed
	case DomainStatusActive, DomainStatusFailed:
		return false
	}
	return false
}
