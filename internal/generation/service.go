// Package generation produces a project's file set and records it as a version.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"go_sitegen/internal/events"
	"go_sitegen/internal/httpx"
	"go_sitegen/internal/ledger"
	"go_sitegen/internal/model"
	"go_sitegen/internal/scaffold"
	"go_sitegen/internal/vfs"
)

const defaultBudget = 10 * time.Minute

// Archiver stores a zip of a completed version
type Archiver interface {
	PutTree(ctx context.Context, projectSlug string, versionNumber int, tree *vfs.Tree) (string, error)
}

// Config holds the configuration for the generation service
type Config struct {
	DB       *gorm.DB
	Ledger   *ledger.Service
	Builder  *scaffold.Builder
	Producer ContentProducer
	Events   events.Publisher
	Archiver Archiver // nil disables archiving
	Budget   time.Duration
	Logger   *logrus.Entry
}

// Request asks for a new version of a project
type Request struct {
	ProjectID int
	Trigger   model.TriggerType
	Details   datatypes.JSON
	Config    scaffold.GenerationConfig
	Design    scaffold.DesignSystem
}

// Service runs generations in the background, one in flight per project
type Service struct {
	db       *gorm.DB
	ledger   *ledger.Service
	builder  *scaffold.Builder
	producer ContentProducer
	events   events.Publisher
	archiver Archiver
	budget   time.Duration
	log      *logrus.Entry
	wg       sync.WaitGroup
}

// NewService creates a new generation service
func NewService(cfg *Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	pub := cfg.Events
	if pub == nil {
		pub = events.Nop{}
	}
	budget := cfg.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	return &Service{
		db:       cfg.DB,
		ledger:   cfg.Ledger,
		builder:  cfg.Builder,
		producer: cfg.Producer,
		events:   pub,
		archiver: cfg.Archiver,
		budget:   budget,
		log:      logger.WithField("component", "generation"),
	}
}

// Start opens a version for a project owned by userID and produces it in the
// background. Fails with ConflictError while another generation is in flight.
func (s *Service) Start(ctx context.Context, userID int, req Request) (*model.GenerationVersion, error) {
	var project model.Project
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", req.ProjectID, userID).First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, httpx.ErrNotFound("project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	cfg := req.Config
	cfg.Slug = project.Slug
	if cfg.ProjectName == "" {
		cfg.ProjectName = project.Name
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = model.TriggerFullRegenerate
		if project.Status == model.ProjectStatusDraft {
			trigger = model.TriggerInitial
		}
	}

	version, err := s.ledger.OpenVersion(ctx, project.ID, trigger, req.Details)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&model.Project{}).Where("id = ?", project.ID).
		Updates(map[string]interface{}{
			"status":        model.ProjectStatusGenerating,
			"published_url": nil,
		}).Error; err != nil {
		s.fail(context.Background(), &project, version, "failed to update project status", err)
		return nil, fmt.Errorf("failed to update project status: %w", err)
	}

	s.events.Publish(ctx, project.ID, model.EventGenerationStarted, map[string]interface{}{
		"versionId":     version.ID,
		"versionNumber": version.VersionNumber,
		"trigger":       version.TriggerType,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runCtx, cancel := context.WithTimeout(context.Background(), s.budget)
		defer cancel()
		s.run(runCtx, &project, version, cfg, req.Design)
	}()

	return version, nil
}

// Wait blocks until every background generation has finished
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context, project *model.Project, version *model.GenerationVersion, cfg scaffold.GenerationConfig, ds scaffold.DesignSystem) {
	log := s.log.WithFields(logrus.Fields{"project_id": project.ID, "version_id": version.ID})
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic during generation: %v", r)
			s.fail(context.Background(), project, version, "internal error", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := s.ledger.MarkGenerating(ctx, version.ID); err != nil {
		s.fail(ctx, project, version, "failed to start generation", err)
		return
	}

	tree, err := s.builder.Build(cfg, ds)
	if err != nil {
		s.fail(ctx, project, version, "scaffold failed", err)
		return
	}

	produced, err := s.producer.Produce(ctx, cfg, ds)
	if err != nil {
		s.fail(ctx, project, version, "content production failed", err)
		return
	}
	tree.Merge(produced)

	done, err := s.ledger.CompleteVersion(ctx, version.ID, tree, ledger.Metrics{
		TotalTokensUsed:  tree.TotalTokens(),
		GenerationTimeMs: time.Since(started).Milliseconds(),
		ModelUsed:        s.producer.Model(),
	})
	if err != nil {
		s.fail(ctx, project, version, "failed to store version", err)
		return
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&model.Project{}).Where("id = ?", project.ID).
		Updates(map[string]interface{}{
			"status":            model.ProjectStatusGenerated,
			"last_generated_at": now,
		}).Error; err != nil {
		log.WithError(err).Error("failed to mark project generated")
	}

	log.WithFields(logrus.Fields{
		"files":  tree.Size(),
		"tokens": done.TotalTokensUsed,
	}).Info("generation complete")

	s.events.Publish(ctx, project.ID, model.EventGenerationCompleted, map[string]interface{}{
		"versionId":     done.ID,
		"versionNumber": done.VersionNumber,
		"files":         tree.Size(),
		"tokens":        done.TotalTokensUsed,
	})

	if s.archiver != nil {
		if loc, err := s.archiver.PutTree(ctx, project.Slug, done.VersionNumber, tree); err != nil {
			log.WithError(err).Warn("failed to archive version")
		} else {
			log.WithField("location", loc).Info("version archived")
		}
	}
}

// fail records the failure on the version and moves the project to error
func (s *Service) fail(ctx context.Context, project *model.Project, version *model.GenerationVersion, msg string, cause error) {
	log := s.log.WithFields(logrus.Fields{"project_id": project.ID, "version_id": version.ID})
	log.WithError(cause).Error(msg)

	// the budget may be spent; bookkeeping gets its own deadline
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	message := msg
	if cause != nil {
		message = fmt.Sprintf("%s: %v", msg, cause)
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		message = "generation timed out"
	}
	details, _ := json.Marshal(map[string]string{"stage": msg})

	if err := s.ledger.FailVersion(ctx, version.ID, message, datatypes.JSON(details)); err != nil {
		log.WithError(err).Error("failed to record version failure")
	}
	if err := s.db.WithContext(ctx).Model(&model.Project{}).Where("id = ?", project.ID).
		Update("status", model.ProjectStatusError).Error; err != nil {
		log.WithError(err).Error("failed to mark project error")
	}

	s.events.Publish(ctx, project.ID, model.EventGenerationFailed, map[string]interface{}{
		"versionId":     version.ID,
		"versionNumber": version.VersionNumber,
		"error":         message,
	})
}
