package health

import (
	"context"
	"time"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/batch"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/pkg/config"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
)

// Checker periodically sweeps the batch registry and flags batches whose
// counters have not moved for longer than the stuck window. Flagging is
// advisory: the batch keeps running, operators decide whether to stop it.
type Checker struct {
	registry *batch.Registry
	interval time.Duration
	window   time.Duration
	cancel   context.CancelFunc
	logger   *logger.Logger
}

// NewChecker creates a stuck-batch checker from configuration
func NewChecker(registry *batch.Registry, cfg config.HealthConfig, log *logger.Logger) *Checker {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	window := cfg.StuckWindow
	if window <= 0 {
		window = 2 * time.Hour
	}
	return &Checker{
		registry: registry,
		interval: interval,
		window:   window,
		logger:   log.WithComponent("health"),
	}
}

// Start starts the sweep in a background goroutine
func (c *Checker) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	go func() {
		c.logger.Info().Dur("interval", c.interval).Dur("window", c.window).Msg("stuck-batch checker started")

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Msg("stuck-batch checker stopped")
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// Stop stops the sweep goroutine
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Sweep runs one pass over every batch and returns how many are flagged.
// A batch counts as stuck when it is active but its last state change is
// older than the stuck window.
func (c *Checker) Sweep() int {
	cutoff := time.Now().Add(-c.window)
	flagged := 0

	for _, p := range c.registry.List() {
		status := p.Status()
		stuck := !status.Terminal() &&
			status != domain.BatchQueued &&
			p.LastActivity().Before(cutoff)

		p.MarkStuck(stuck)
		if stuck {
			flagged++
			c.logger.Warn().
				Str("batch_id", p.BatchID()).
				Time("last_activity", p.LastActivity()).
				Msg("batch appears stuck")
		}
	}
	return flagged
}
