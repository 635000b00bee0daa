// Package publish takes a project's latest complete generation live.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go_sitegen/internal/cache"
	"go_sitegen/internal/deploy"
	"go_sitegen/internal/domainutil"
	"go_sitegen/internal/events"
	"go_sitegen/internal/hosting"
	"go_sitegen/internal/httpx"
	"go_sitegen/internal/ledger"
	"go_sitegen/internal/model"
)

const (
	defaultBudget  = 5 * time.Minute
	defaultLockTTL = 6 * time.Minute
)

// VerifyTrigger schedules verification of a pending custom domain
type VerifyTrigger interface {
	TriggerVerify(ctx context.Context, userID, domainID int) error
}

// Config holds the configuration for the coordinator
type Config struct {
	DB           *gorm.DB
	Ledger       *ledger.Service
	Orchestrator *deploy.Orchestrator
	Aliases      hosting.AliasBinder
	Locker       *cache.Locker  // nil disables the per-project lock
	Events       events.Publisher
	Verifier     VerifyTrigger // nil skips custom domain verification
	BaseDomain   string
	Budget       time.Duration
	// PollInterval > 0 waits for the deployment to be ready before binding the alias
	PollInterval     time.Duration
	LockTTL          time.Duration
	BatchConcurrency int
	Logger           *logrus.Entry
}

// Result is the outcome of one successful publish
type Result struct {
	ProjectID     int    `json:"projectId"`
	URL           string `json:"url"`
	DeploymentID  string `json:"deploymentId"`
	VersionID     int64  `json:"versionId"`
	VersionNumber int    `json:"versionNumber"`
}

// Coordinator drives a project from its latest complete version to a live URL
type Coordinator struct {
	db           *gorm.DB
	ledger       *ledger.Service
	orchestrator *deploy.Orchestrator
	aliases      hosting.AliasBinder
	locker       *cache.Locker
	events       events.Publisher
	verifier     VerifyTrigger
	baseDomain   string
	budget       time.Duration
	pollInterval time.Duration
	lockTTL      time.Duration
	batchSize    int
	log          *logrus.Entry
}

// NewCoordinator creates a new publish coordinator
func NewCoordinator(cfg *Config) *Coordinator {
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
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	batch := cfg.BatchConcurrency
	if batch < 1 {
		batch = 1
	}
	return &Coordinator{
		db:           cfg.DB,
		ledger:       cfg.Ledger,
		orchestrator: cfg.Orchestrator,
		aliases:      cfg.Aliases,
		locker:       cfg.Locker,
		events:       pub,
		verifier:     cfg.Verifier,
		baseDomain:   cfg.BaseDomain,
		budget:       budget,
		pollInterval: cfg.PollInterval,
		lockTTL:      lockTTL,
		batchSize:    batch,
		log:          logger.WithField("component", "publish-coordinator"),
	}
}

// PublishForUser publishes a project owned by userID.
// Projects of other users are reported as not found.
func (c *Coordinator) PublishForUser(ctx context.Context, userID, projectID int) (*Result, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&model.Project{}).
		Where("id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check project ownership: %w", err)
	}
	if count == 0 {
		return nil, httpx.ErrNotFound("project not found")
	}
	return c.Publish(ctx, projectID)
}

// Publish deploys the latest complete version of the project and binds it
// to the project's hostname. On any failure the project status is unchanged.
func (c *Coordinator) Publish(ctx context.Context, projectID int) (*Result, error) {
	log := c.log.WithField("project_id", projectID)

	if c.locker != nil {
		lock, err := c.locker.Acquire(ctx, "publish:"+strconv.Itoa(projectID), c.lockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, httpx.ErrConflict("a publish of this project is already in progress")
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				log.WithError(err).Warn("failed to release publish lock")
			}
		}()
	}

	budgetCtx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	result, project, err := c.run(budgetCtx, projectID, log)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(budgetCtx.Err(), context.DeadlineExceeded) {
			err = deploy.ClassifyError(budgetCtx, "publish", err)
		}
		log.WithError(err).Error("publish failed")
		return nil, err
	}

	c.events.Publish(ctx, projectID, model.EventProjectPublished, map[string]interface{}{
		"url":           result.URL,
		"deploymentId":  result.DeploymentID,
		"versionNumber": result.VersionNumber,
	})
	c.triggerPendingDomains(ctx, project, log)

	log.WithFields(logrus.Fields{
		"url":           result.URL,
		"deployment_id": result.DeploymentID,
		"version_id":    result.VersionID,
	}).Info("project published")
	return result, nil
}

func (c *Coordinator) run(ctx context.Context, projectID int, log *logrus.Entry) (*Result, *model.Project, error) {
	var project model.Project
	if err := c.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, httpx.ErrNotFound("project not found")
		}
		return nil, nil, fmt.Errorf("failed to load project: %w", err)
	}
	if !project.Status.CanTransitionTo(model.ProjectStatusPublished) {
		return nil, nil, httpx.ErrValidation(fmt.Sprintf("project in status %s cannot be published", project.Status))
	}

	version, err := c.ledger.LatestComplete(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if version == nil {
		return nil, nil, httpx.ErrValidation("project has no complete generation version")
	}

	tree, err := c.ledger.Tree(ctx, version.ID)
	if err != nil {
		return nil, nil, err
	}

	log = log.WithField("version_id", version.ID)
	d, err := c.orchestrator.Deploy(ctx, tree, deploy.Options{ProjectName: project.Slug})
	if err != nil {
		return nil, nil, err
	}
	log = log.WithField("deployment_id", d.ID)

	if c.pollInterval > 0 {
		if d, err = c.orchestrator.WaitReady(ctx, d.ID, c.pollInterval); err != nil {
			return nil, nil, err
		}
	}

	host, err := c.targetHost(ctx, &project)
	if err != nil {
		return nil, nil, err
	}
	if err := c.aliases.AssignAlias(ctx, d.ID, host); err != nil {
		log.WithError(err).WithField("alias", host).Error("alias binding failed")
		return nil, nil, deploy.ClassifyError(ctx, "alias binding failed", err)
	}

	url := "https://" + host
	if err := c.markPublished(ctx, &project, host, url); err != nil {
		return nil, nil, err
	}

	return &Result{
		ProjectID:     projectID,
		URL:           url,
		DeploymentID:  d.ID,
		VersionID:     version.ID,
		VersionNumber: version.VersionNumber,
	}, &project, nil
}

// targetHost is the project's active custom domain, or {slug}.{base}
func (c *Coordinator) targetHost(ctx context.Context, project *model.Project) (string, error) {
	var custom model.Domain
	err := c.db.WithContext(ctx).
		Where("project_id = ? AND domain_type = ? AND status = ?", project.ID, model.DomainTypeCustom, model.DomainStatusActive).
		Order("id ASC").
		Limit(1).
		Find(&custom).Error
	if err != nil {
		return "", fmt.Errorf("failed to load custom domain: %w", err)
	}
	if custom.Persisted() {
		return custom.Domain, nil
	}

	host, err := domainutil.SubdomainHost(project.Slug, c.baseDomain)
	if err != nil {
		return "", httpx.ErrValidation(fmt.Sprintf("invalid project hostname: %v", err))
	}
	return host, nil
}

// markPublished moves the project to published. The subdomain row is recorded
// active only when the deployment was bound to the subdomain itself.
func (c *Coordinator) markPublished(ctx context.Context, project *model.Project, host, url string) error {
	subdomain, err := domainutil.SubdomainHost(project.Slug, c.baseDomain)
	if err != nil {
		return httpx.ErrValidation(fmt.Sprintf("invalid project hostname: %v", err))
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Project{}).
			Where("id = ? AND status IN ?", project.ID, publishableStatuses()).
			Updates(map[string]interface{}{
				"status":        model.ProjectStatusPublished,
				"published_url": url,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update project: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return httpx.ErrConflict("project status changed during publish")
		}

		project.Status = model.ProjectStatusPublished
		project.PublishedURL = &url
		if host != subdomain {
			return nil
		}

		now := time.Now()
		row := model.Domain{
			ProjectID:     &project.ID,
			UserID:        project.UserID,
			Domain:        subdomain,
			DomainType:    model.DomainTypeSubdomain,
			Status:        model.DomainStatusActive,
			DNSConfigured: true,
			VerifiedAt:    &now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain"}},
			DoUpdates: clause.AssignmentColumns([]string{"project_id", "status", "dns_configured", "verified_at", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to record subdomain: %w", err)
		}
		return nil
	})
}

// triggerPendingDomains hands every pending custom domain of the project to the verifier
func (c *Coordinator) triggerPendingDomains(ctx context.Context, project *model.Project, log *logrus.Entry) {
	if c.verifier == nil {
		return
	}
	var pending []model.Domain
	if err := c.db.WithContext(ctx).
		Where("project_id = ? AND domain_type = ? AND status = ?", project.ID, model.DomainTypeCustom, model.DomainStatusPending).
		Find(&pending).Error; err != nil {
		log.WithError(err).Warn("failed to load pending custom domains")
		return
	}
	for _, d := range pending {
		if err := c.verifier.TriggerVerify(ctx, project.UserID, d.ID); err != nil {
			log.WithError(err).WithField("domain", d.Domain).Warn("failed to trigger domain verification")
		}
	}
}

func publishableStatuses() []model.ProjectStatus {
	var out []model.ProjectStatus
	for _, s := range []model.ProjectStatus{
		model.ProjectStatusDraft,
		model.ProjectStatusGenerating,
		model.ProjectStatusGenerated,
		model.ProjectStatusDeployed,
		model.ProjectStatusPublished,
		model.ProjectStatusError,
	} {
		if s.CanTransitionTo(model.ProjectStatusPublished) {
			out = append(out, s)
		}
	}
	return out
}
