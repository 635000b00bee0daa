package publish

import (
	"context"
	"fmt"
	"sync"

	"go_sitegen/internal/httpx"
	"go_sitegen/internal/model"
)

// ItemResult is the outcome of re-publishing one project
type ItemResult struct {
	ProjectID int    `json:"projectId"`
	Slug      string `json:"slug"`
	Success   bool   `json:"success"`
	URL       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchReport summarizes a re-publish-all run
type BatchReport struct {
	Results   []ItemResult `json:"results"`
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// Message is the human readable summary of the batch
func (r *BatchReport) Message() string {
	return fmt.Sprintf("Republished %d/%d projects (%d failed)", r.Succeeded, r.Total, r.Failed)
}

// RepublishAll re-runs the publish pipeline for every published project.
// A failing project is recorded in the report and never stops the batch.
func (c *Coordinator) RepublishAll(ctx context.Context) (*BatchReport, error) {
	var projects []model.Project
	if err := c.db.WithContext(ctx).
		Where("status = ?", model.ProjectStatusPublished).
		Order("id ASC").
		Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list published projects: %w", err)
	}

	c.log.WithField("projects", len(projects)).Info("re-publishing all projects")

	results := make([]ItemResult, len(projects))
	sem := make(chan struct{}, c.batchSize)
	var wg sync.WaitGroup

	for i, p := range projects {
		wg.Add(1)
		go func(i int, p model.Project) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = c.republishOne(ctx, p)
		}(i, p)
	}
	wg.Wait()

	report := &BatchReport{Results: results, Total: len(results)}
	for _, r := range results {
		if r.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	c.log.WithField("succeeded", report.Succeeded).
		WithField("failed", report.Failed).
		Info(report.Message())
	return report, nil
}

func (c *Coordinator) republishOne(ctx context.Context, p model.Project) (item ItemResult) {
	item = ItemResult{ProjectID: p.ID, Slug: p.Slug}

	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("project_id", p.ID).Errorf("panic during re-publish: %v", r)
			item.Success = false
			item.Error = "internal error"
		}
	}()

	if err := ctx.Err(); err != nil {
		item.Error = httpx.From(err).Message
		return item
	}

	res, err := c.Publish(ctx, p.ID)
	if err != nil {
		item.Error = httpx.From(err).Message
		return item
	}
	item.Success = true
	item.URL = res.URL
	return item
}
