// Package ledger keeps the append-only history of generation attempts per project.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go_sitegen/internal/db"
	"go_sitegen/internal/httpx"
	"go_sitegen/internal/model"
	"go_sitegen/internal/vfs"
)

const (
	maxErrorMessageLen = 2048
	fileBatchSize      = 100
)

// Metrics are recorded when a version completes
type Metrics struct {
	TotalTokensUsed  int
	GenerationTimeMs int64
	ModelUsed        string
}

// Service owns generation_versions and generated_files
type Service struct {
	db  *gorm.DB
	log *logrus.Entry
	now func() time.Time
}

// NewService creates a ledger service
func NewService(db *gorm.DB) *Service {
	return &Service{
		db:  db,
		log: logrus.WithField("component", "ledger"),
		now: time.Now,
	}
}

// OpenVersion starts a new pending version for the project.
// Fails with ConflictError while another version of the project is in flight.
func (s *Service) OpenVersion(ctx context.Context, projectID int, trigger model.TriggerType, details datatypes.JSON) (*model.GenerationVersion, error) {
	if _, err := model.ParseTriggerType(string(trigger)); err != nil {
		return nil, httpx.ErrValidation(err.Error())
	}

	var version *model.GenerationVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Row lock on the project serializes opens across processes
		var project model.Project
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").First(&project, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return httpx.ErrNotFound(fmt.Sprintf("project %d not found", projectID))
			}
			return err
		}

		var inFlight int64
		if err := tx.Model(&model.GenerationVersion{}).
			Where("project_id = ? AND status IN ?", projectID, model.NonTerminalVersionStatuses()).
			Count(&inFlight).Error; err != nil {
			return err
		}
		if inFlight > 0 {
			return httpx.ErrConflict(fmt.Sprintf("project %d already has a generation in progress", projectID))
		}

		next, err := s.nextVersionNumber(tx, projectID)
		if err != nil {
			return err
		}

		slot := projectID
		v := &model.GenerationVersion{
			ProjectID:         projectID,
			VersionNumber:     next,
			Status:            model.VersionStatusPending,
			InFlightProjectID: &slot,
			TriggerType:       trigger,
			TriggerDetails:    details,
		}
		if err := tx.Create(v).Error; err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		if db.IsDuplicateKey(err) {
			return nil, httpx.ErrConflict(fmt.Sprintf("project %d already has a generation in progress", projectID))
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"project_id": projectID,
		"version_id": version.ID,
		"version":    version.VersionNumber,
		"trigger":    trigger,
	}).Info("generation version opened")
	return version, nil
}

// nextVersionNumber uses MAX(version_number)+1; the unique index rejects a racing duplicate
func (s *Service) nextVersionNumber(tx *gorm.DB, projectID int) (int, error) {
	var maxVersion int
	err := tx.Model(&model.GenerationVersion{}).
		Where("project_id = ?", projectID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

// MarkGenerating moves a version pending -> generating
func (s *Service) MarkGenerating(ctx context.Context, versionID int64) error {
	to := model.VersionStatusGenerating
	result := s.db.WithContext(ctx).Model(&model.GenerationVersion{}).
		Where("id = ? AND status IN ?", versionID, sourcesFor(to)).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.transitionError(s.db.WithContext(ctx), versionID, to)
	}
	return nil
}

// CompleteVersion moves a version generating -> complete and persists its files
// in the same transaction. An empty tree is rejected.
func (s *Service) CompleteVersion(ctx context.Context, versionID int64, tree *vfs.Tree, metrics Metrics) (*model.GenerationVersion, error) {
	if tree == nil || tree.Size() == 0 {
		return nil, httpx.ErrValidation("cannot complete a generation version without files")
	}

	to := model.VersionStatusComplete
	files := make([]model.GeneratedFile, 0, tree.Size())
	pos := 0
	for path, f := range tree.Entries() {
		kind := f.Type
		if _, err := model.ParseFileType(string(kind)); err != nil {
			return nil, httpx.ErrValidation(fmt.Sprintf("file %s: %v", path, err))
		}
		gf := model.GeneratedFile{
			VersionID:  versionID,
			FilePath:   path,
			Content:    f.Content,
			FileType:   kind,
			TokensUsed: f.TokensUsed,
			Position:   pos,
		}
		if f.SectionType != "" {
			section := f.SectionType
			gf.SectionType = &section
		}
		files = append(files, gf)
		pos++
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		completedAt := s.now()
		result := tx.Model(&model.GenerationVersion{}).
			Where("id = ? AND status IN ?", versionID, sourcesFor(to)).
			Updates(map[string]interface{}{
				"status":               to,
				"in_flight_project_id": nil,
				"total_tokens_used":    metrics.TotalTokensUsed,
				"generation_time_ms":   metrics.GenerationTimeMs,
				"model_used":           metrics.ModelUsed,
				"completed_at":         completedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return s.transitionError(tx, versionID, to)
		}
		return tx.CreateInBatches(files, fileBatchSize).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"version_id": versionID,
		"files":      len(files),
		"tokens":     metrics.TotalTokensUsed,
		"elapsed_ms": metrics.GenerationTimeMs,
	}).Info("generation version completed")
	return s.Get(ctx, versionID)
}

// FailVersion moves a pending or generating version to error and drops any files
func (s *Service) FailVersion(ctx context.Context, versionID int64, message string, details datatypes.JSON) error {
	message = truncate(message, maxErrorMessageLen)

	to := model.VersionStatusError
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.GenerationVersion{}).
			Where("id = ? AND status IN ?", versionID, sourcesFor(to)).
			Updates(map[string]interface{}{
				"status":               to,
				"in_flight_project_id": nil,
				"error_message":        message,
				"error_details":        details,
				"completed_at":         s.now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return s.transitionError(tx, versionID, to)
		}
		return tx.Where("version_id = ?", versionID).Delete(&model.GeneratedFile{}).Error
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"version_id": versionID,
		"error":      message,
	}).Warn("generation version failed")
	return nil
}

// LatestComplete returns the highest-numbered complete version that has files, or nil
func (s *Service) LatestComplete(ctx context.Context, projectID int) (*model.GenerationVersion, error) {
	var v model.GenerationVersion
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, model.VersionStatusComplete).
		Where("EXISTS (SELECT 1 FROM generated_files f WHERE f.version_id = generation_versions.id)").
		Order("version_number DESC").
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Get returns a version by id
func (s *Service) Get(ctx context.Context, versionID int64) (*model.GenerationVersion, error) {
	var v model.GenerationVersion
	if err := s.db.WithContext(ctx).First(&v, versionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, httpx.ErrNotFound(fmt.Sprintf("generation version %d not found", versionID))
		}
		return nil, err
	}
	return &v, nil
}

// GetForProject returns a version only if it belongs to projectID
func (s *Service) GetForProject(ctx context.Context, projectID int, versionID int64) (*model.GenerationVersion, error) {
	v, err := s.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.ProjectID != projectID {
		return nil, httpx.ErrNotFound(fmt.Sprintf("generation version %d not found", versionID))
	}
	return v, nil
}

// List returns a page of versions, newest first
func (s *Service) List(ctx context.Context, projectID, page, pageSize int) ([]model.GenerationVersion, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	q := s.db.WithContext(ctx).Model(&model.GenerationVersion{}).Where("project_id = ?", projectID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var versions []model.GenerationVersion
	if err := q.Order("version_number DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&versions).Error; err != nil {
		return nil, 0, err
	}
	return versions, total, nil
}

// Files returns a version's files in the order they were staged
func (s *Service) Files(ctx context.Context, versionID int64) ([]model.GeneratedFile, error) {
	var files []model.GeneratedFile
	if err := s.db.WithContext(ctx).
		Where("version_id = ?", versionID).
		Order("position ASC, id ASC").
		Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// Tree materializes a version's files back into a staging tree
func (s *Service) Tree(ctx context.Context, versionID int64) (*vfs.Tree, error) {
	files, err := s.Files(ctx, versionID)
	if err != nil {
		return nil, err
	}
	tree := vfs.New()
	for _, f := range files {
		vf := vfs.File{Content: f.Content, Type: f.FileType, TokensUsed: f.TokensUsed}
		if f.SectionType != nil {
			vf.SectionType = *f.SectionType
		}
		tree.Put(f.FilePath, vf)
	}
	return tree, nil
}

// ExpireStale fails in-flight versions created before now-olderThan.
// Returns how many were failed.
func (s *Service) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)

	var ids []int64
	if err := s.db.WithContext(ctx).Model(&model.GenerationVersion{}).
		Where("status IN ? AND created_at < ?", model.NonTerminalVersionStatuses(), cutoff).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		err := s.FailVersion(ctx, id, "generation timed out", nil)
		if err != nil {
			// Finished between the scan and the update
			if httpx.Is(err, httpx.ReasonValidation) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// transitionError explains why a conditional status update matched no row
func (s *Service) transitionError(tx *gorm.DB, versionID int64, to model.VersionStatus) error {
	var v model.GenerationVersion
	if err := tx.Select("id", "status").First(&v, versionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httpx.ErrNotFound(fmt.Sprintf("generation version %d not found", versionID))
		}
		return err
	}
	return httpx.ErrValidation(fmt.Sprintf("generation version %d is %s, cannot move to %s", versionID, v.Status, to))
}

// sourcesFor lists the statuses allowed to move to `to`
func sourcesFor(to model.VersionStatus) []model.VersionStatus {
	var out []model.VersionStatus
	for _, st := range model.AllVersionStatuses() {
		if st.CanTransitionTo(to) {
			out = append(out, st)
		}
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
