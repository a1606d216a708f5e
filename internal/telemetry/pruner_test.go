package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRepo records Cleanup calls on top of a real repository.
type countingRepo struct {
	*SQLiteRepository
	calls  atomic.Int32
	before atomic.Value
	err    error
}

func (c *countingRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	c.calls.Add(1)
	c.before.Store(before)
	if c.err != nil {
		return 0, c.err
	}
	return c.SQLiteRepository.Cleanup(ctx, before)
}

func TestNewPruner_Defaults(t *testing.T) {
	p := NewPruner(nil, 0, 0, nil)
	assert.Equal(t, 90*24*time.Hour, p.retention)
	assert.Equal(t, time.Hour, p.interval)
	assert.NotNil(t, p.logger)
}

func TestPrunerRun_CancelledContext(t *testing.T) {
	repo, _ := newTestRepo(t)
	counting := &countingRepo{SQLiteRepository: repo}
	p := NewPruner(counting, 48*time.Hour, time.Hour, nil)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), counting.calls.Load(), "prunes once at startup")
	assert.Equal(t, now.Add(-48*time.Hour), counting.before.Load())
}

func TestPrunerRun_Ticks(t *testing.T) {
	repo, _ := newTestRepo(t)
	counting := &countingRepo{SQLiteRepository: repo}
	p := NewPruner(counting, time.Hour, 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, counting.calls.Load(), int32(1))
}

func TestPrunerRun_ErrorKeepsRunning(t *testing.T) {
	repo, _ := newTestRepo(t)
	counting := &countingRepo{SQLiteRepository: repo, err: errors.New("disk full")}
	p := NewPruner(counting, time.Hour, 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, p.Run(ctx), context.DeadlineExceeded)
	assert.Greater(t, counting.calls.Load(), int32(1))
}
