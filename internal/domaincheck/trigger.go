package domaincheck

import (
	"context"
	"time"
)

// AsyncTrigger verifies domains in background goroutines of this process
type AsyncTrigger struct {
	checker *Checker
	timeout time.Duration
}

// NewAsyncTrigger creates an in-process verification trigger
func NewAsyncTrigger(checker *Checker, timeout time.Duration) *AsyncTrigger {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsyncTrigger{checker: checker, timeout: timeout}
}

// TriggerVerify starts a check of the domain and returns immediately
func (t *AsyncTrigger) TriggerVerify(_ context.Context, userID, domainID int) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if _, err := t.checker.Check(ctx, userID, domainID); err != nil {
			t.checker.log.WithError(err).WithField("domain_id", domainID).Warn("background domain check failed")
		}
	}()
	return nil
}
