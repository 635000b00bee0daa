package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_sitegen/internal/publish"
)

type countingRepublisher struct {
	calls atomic.Int32
}

func (c *countingRepublisher) RepublishAll(ctx context.Context) (*publish.BatchReport, error) {
	c.calls.Add(1)
	return &publish.BatchReport{Total: 1, Succeeded: 1}, nil
}

func TestAddRepublish_InvalidSpec(t *testing.T) {
	s := New(&countingRepublisher{}, time.Minute)
	assert.Error(t, s.AddRepublish("every day"))
	assert.Error(t, s.AddRepublish("0 0 * * *"), "five-field specs need the seconds field")
}

func TestScheduler_RunsJob(t *testing.T) {
	target := &countingRepublisher{}
	s := New(target, time.Minute)
	require.NoError(t, s.AddRepublish("* * * * * *"))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return target.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestRunRepublish(t *testing.T) {
	target := &countingRepublisher{}
	New(target, 0).RunRepublish()
	assert.Equal(t, int32(1), target.calls.Load())
}
