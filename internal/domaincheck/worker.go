package domaincheck

import (
	"context"
	"log"
	"time"

	"go_sitegen/internal/model"
)

// WorkerConfig holds configuration for the verification worker
type WorkerConfig struct {
	Enabled     bool
	IntervalSec int
	BatchSize   int
}

// Worker periodically re-checks pending custom domains
type Worker struct {
	checker *Checker
	config  WorkerConfig
	cursor  int // last domain id checked; batches rotate through all pending rows
	stopCh  chan struct{}
}

// NewWorker creates a new verification worker
func NewWorker(checker *Checker, config WorkerConfig) *Worker {
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}
	return &Worker{
		checker: checker,
		config:  config,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the worker
func (w *Worker) Start() {
	if !w.config.Enabled || w.config.IntervalSec <= 0 {
		log.Println("[Domain Worker] Disabled, not starting")
		return
	}

	log.Printf("[Domain Worker] Starting with interval=%ds, batch_size=%d\n",
		w.config.IntervalSec, w.config.BatchSize)

	go w.run()
}

// Stop stops the worker
func (w *Worker) Stop() {
	log.Println("[Domain Worker] Stopping...")
	close(w.stopCh)
}

func (w *Worker) run() {
	interval := time.Duration(w.config.IntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	w.tick(interval)

	for {
		select {
		case <-ticker.C:
			w.tick(interval)
		case <-w.stopCh:
			log.Println("[Domain Worker] Stopped")
			return
		}
	}
}

// tick checks one batch of pending custom domains
func (w *Worker) tick(budget time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	stats, err := w.RunOnce(ctx)
	if err != nil {
		log.Printf("[Domain Worker] Failed to load pending domains: %v\n", err)
		return
	}
	if stats.Checked > 0 {
		log.Printf("[Domain Worker] Tick done: checked=%d, verified=%d, failed=%d, errors=%d\n",
			stats.Checked, stats.Verified, stats.Failed, stats.Errors)
	}
}

// Stats counts the outcomes of one batch
type Stats struct {
	Checked  int
	Verified int
	Failed   int
	Errors   int
}

// RunOnce checks the next batch of pending custom domains
func (w *Worker) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	var batch []model.Domain
	err := w.checker.db.WithContext(ctx).
		Where("domain_type = ? AND status = ? AND id > ?", model.DomainTypeCustom, model.DomainStatusPending, w.cursor).
		Order("id ASC").
		Limit(w.config.BatchSize).
		Find(&batch).Error
	if err != nil {
		return stats, err
	}

	if len(batch) < w.config.BatchSize {
		w.cursor = 0
	} else {
		w.cursor = batch[len(batch)-1].ID
	}

	for i := range batch {
		if ctx.Err() != nil {
			break
		}
		stats.Checked++
		res, err := w.checker.check(ctx, &batch[i])
		switch {
		case err != nil:
			stats.Errors++
			log.Printf("[Domain Worker] Check failed for %s: %v\n", batch[i].Domain, err)
		case res.Verified:
			stats.Verified++
		case res.Status == model.DomainStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
