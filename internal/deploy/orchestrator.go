// Package deploy ships a staged file tree to the hosting provider.
package deploy

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go_sitegen/internal/hosting"
	"go_sitegen/internal/httpx"
	"go_sitegen/internal/vfs"
)

// Backend is the part of a hosting provider the orchestrator drives
type Backend interface {
	hosting.FileUploader
	hosting.Deployer
}

// Config holds the configuration for the orchestrator
type Config struct {
	Backend           Backend
	Logger            *logrus.Entry
	UploadAttempts    int
	UploadConcurrency int
	RetryBackoff      time.Duration
	Framework         string
}

// Options scope one deploy
type Options struct {
	ProjectName string
	Framework   string // overrides Config.Framework when set
}

// Orchestrator uploads files, then creates a deployment. It never polls;
// callers that need a ready deployment use WaitReady.
type Orchestrator struct {
	backend     Backend
	logger      *logrus.Entry
	attempts    int
	concurrency int
	backoff     time.Duration
	framework   string
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(cfg *Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	attempts := cfg.UploadAttempts
	if attempts < 1 {
		attempts = 1
	}
	concurrency := cfg.UploadConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		backend:     cfg.Backend,
		logger:      logger.WithField("component", "deploy-orchestrator"),
		attempts:    attempts,
		concurrency: concurrency,
		backoff:     cfg.RetryBackoff,
		framework:   cfg.Framework,
	}
}

type blob struct {
	sha     string
	content []byte
	path    string // first path carrying this content
}

// Manifest hashes every file of the tree in tree order
func Manifest(tree *vfs.Tree) []hosting.ManifestFile {
	manifest, _ := plan(tree)
	return manifest
}

// plan builds the manifest plus each distinct content once
func plan(tree *vfs.Tree) ([]hosting.ManifestFile, []blob) {
	manifest := make([]hosting.ManifestFile, 0, tree.Size())
	var blobs []blob
	seen := make(map[string]bool, tree.Size())

	for path, f := range tree.Entries() {
		content := []byte(f.Content)
		sum := sha1.Sum(content)
		sha := hex.EncodeToString(sum[:])

		manifest = append(manifest, hosting.ManifestFile{File: path, SHA: sha, Size: int64(len(content))})
		if !seen[sha] {
			seen[sha] = true
			blobs = append(blobs, blob{sha: sha, content: content, path: path})
		}
	}
	return manifest, blobs
}

// Deploy uploads every file of tree and creates a deployment from the manifest
func (o *Orchestrator) Deploy(ctx context.Context, tree *vfs.Tree, opts Options) (*hosting.Deployment, error) {
	if tree == nil || tree.Size() == 0 {
		return nil, httpx.ErrValidation("nothing to deploy: file tree is empty")
	}
	if opts.ProjectName == "" {
		return nil, httpx.ErrValidation("project name is required")
	}

	log := o.logger.WithField("project", opts.ProjectName)
	manifest, blobs := plan(tree)
	log.WithFields(logrus.Fields{"files": len(manifest), "blobs": len(blobs)}).Info("uploading files")

	if err := o.uploadAll(ctx, blobs); err != nil {
		return nil, err
	}

	framework := opts.Framework
	if framework == "" {
		framework = o.framework
	}
	d, err := o.backend.CreateDeployment(ctx, hosting.CreateDeploymentRequest{
		Name:      opts.ProjectName,
		Files:     manifest,
		Framework: framework,
	})
	if err != nil {
		log.WithError(err).Error("deployment creation failed")
		return nil, ClassifyError(ctx, "deployment creation failed", err)
	}

	log.WithFields(logrus.Fields{
		"deployment_id": d.ID,
		"ready_state":   d.ReadyState,
	}).Info("deployment created")
	return d, nil
}

// uploadAll uploads blobs with bounded concurrency. Each upload is retried on its own.
func (o *Orchestrator) uploadAll(ctx context.Context, blobs []blob) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		failed   int
	)
	semaphore := make(chan struct{}, o.concurrency)

	for _, b := range blobs {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(b blob) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := o.uploadWithRetry(ctx, b); err != nil {
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
					// the deploy cannot succeed anymore
					cancel()
				}
				mu.Unlock()
			}
		}(b)
	}
	wg.Wait()

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		return ClassifyError(ctx, fmt.Sprintf("file upload failed (%d of %d)", failed, len(blobs)), firstErr)
	}
	return nil
}

func (o *Orchestrator) uploadWithRetry(ctx context.Context, b blob) error {
	var err error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		err = o.backend.UploadFile(ctx, b.sha, b.content)
		if err == nil {
			return nil
		}
		if !hosting.IsRetryable(err) || attempt == o.attempts {
			break
		}

		o.logger.WithFields(logrus.Fields{
			"path":    b.path,
			"sha":     b.sha,
			"attempt": attempt,
		}).WithError(err).Warn("upload failed, retrying")

		select {
		case <-time.After(time.Duration(attempt) * o.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload %s: %w", b.path, err)
}

// GetDeploymentStatus reads the deployment's current state once
func (o *Orchestrator) GetDeploymentStatus(ctx context.Context, deploymentID string) (*hosting.Deployment, error) {
	d, err := o.backend.GetDeployment(ctx, deploymentID)
	if err != nil {
		return nil, ClassifyError(ctx, "failed to get deployment status", err)
	}
	return d, nil
}

// WaitReady polls until the deployment is terminal. error/canceled become
// DeploymentError and the ctx deadline becomes TimeoutError.
func (o *Orchestrator) WaitReady(ctx context.Context, deploymentID string, interval time.Duration) (*hosting.Deployment, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d, err := o.GetDeploymentStatus(ctx, deploymentID)
		if err != nil {
			return nil, err
		}

		switch d.ReadyState {
		case hosting.ReadyStateReady:
			return d, nil
		case hosting.ReadyStateError, hosting.ReadyStateCanceled:
			return nil, httpx.ErrDeployment(fmt.Sprintf("deployment %s ended in state %s", deploymentID, d.ReadyState), nil)
		case hosting.ReadyStateQueued, hosting.ReadyStateBuilding:
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ClassifyError(ctx, fmt.Sprintf("deployment %s not ready", deploymentID), ctx.Err())
		}
	}
}

// ClassifyError classifies a provider failure as TimeoutError or DeploymentError
func ClassifyError(ctx context.Context, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return httpx.ErrTimeout(msg+": time budget exceeded", err)
	}
	var appErr *httpx.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var apiErr *hosting.APIError
	if errors.As(err, &apiErr) {
		return httpx.ErrDeployment(fmt.Sprintf("%s: %s", msg, apiErr.Message), err)
	}
	return httpx.ErrDeployment(msg, err)
}
