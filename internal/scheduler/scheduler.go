// Package scheduler runs recurring pipeline jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"go_sitegen/internal/publish"
)

// Republisher re-publishes every published project
type Republisher interface {
	RepublishAll(ctx context.Context) (*publish.BatchReport, error)
}

// Scheduler runs the scheduled re-publish-all
type Scheduler struct {
	cron    *cron.Cron
	target  Republisher
	timeout time.Duration
}

// New creates a scheduler. Specs use six fields, seconds first.
func New(target Republisher, timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		target:  target,
		timeout: timeout,
	}
}

// AddRepublish schedules re-publish-all on spec
func (s *Scheduler) AddRepublish(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.RunRepublish); err != nil {
		return fmt.Errorf("invalid republish cron spec %q: %w", spec, err)
	}
	log.Printf("[Scheduler] Re-publish-all scheduled: %s\n", spec)
	return nil
}

// RunRepublish runs one re-publish-all
func (s *Scheduler) RunRepublish() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.target.RepublishAll(ctx)
	if err != nil {
		log.Printf("[Scheduler] Re-publish-all failed: %v\n", err)
		return
	}
	log.Printf("[Scheduler] %s\n", report.Message())
}

// Start starts the cron loop
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
