package telemetry

import (
	"context"
	"time"
)

// Pruner periodically removes readings older than the retention window.
type Pruner struct {
	repo      Repository
	retention time.Duration
	interval  time.Duration
	logger    Logger
	now       func() time.Time
}

// NewPruner creates a pruner. Non-positive durations fall back to 90 days
// retention and an hourly sweep.
func NewPruner(repo Repository, retention, interval time.Duration, logger Logger) *Pruner {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pruner{repo: repo, retention: retention, interval: interval, logger: logger, now: time.Now}
}

// Run prunes once at startup and then on every tick. It blocks until the
// context is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	p.logger.Info("telemetry pruner started", "interval", p.interval, "retention", p.retention)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("telemetry pruner stopped")
			return ctx.Err()
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	rows, err := p.repo.Cleanup(ctx, p.now().Add(-p.retention))
	if err != nil {
		p.logger.Error("telemetry pruning failed", "error", err)
		return
	}
	if rows > 0 {
		p.logger.Info("pruned old telemetry", "rows", rows)
	}
}
