package ledger

import (
	"context"
	"time"
)

// SweeperConfig holds configuration for the stale-version sweeper
type SweeperConfig struct {
	Enabled    bool
	Interval   time.Duration
	StaleAfter time.Duration
}

// Sweeper periodically fails versions stuck in flight, so a crashed
// generation worker cannot block its project forever
type Sweeper struct {
	ledger *Service
	config SweeperConfig
	stopCh chan struct{}
}

// NewSweeper creates a new sweeper
func NewSweeper(ledger *Service, config SweeperConfig) *Sweeper {
	return &Sweeper{
		ledger: ledger,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// Start starts the sweeper loop
func (s *Sweeper) Start() {
	if !s.config.Enabled || s.config.Interval <= 0 || s.config.StaleAfter <= 0 {
		s.ledger.log.Info("stale sweeper disabled, not starting")
		return
	}

	s.ledger.log.WithField("interval", s.config.Interval).
		WithField("stale_after", s.config.StaleAfter).
		Info("stale sweeper starting")
	go s.run()
}

// Stop stops the sweeper loop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			s.ledger.log.Info("stale sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Interval)
	defer cancel()

	n, err := s.ledger.ExpireStale(ctx, s.config.StaleAfter)
	if err != nil {
		s.ledger.log.WithError(err).Error("failed to expire stale versions")
		return
	}
	if n > 0 {
		s.ledger.log.WithField("expired", n).Warn("expired stale generation versions")
	}
}
