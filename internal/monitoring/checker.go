package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/gri-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates the ledger on a fixed interval and forwards breaches to
// the alerter.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	log       *zap.Logger
}

// NewChecker creates a background alert checker. A non-positive interval
// falls back to five minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

// Run checks once immediately, then on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("ledger checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			c.log.Info("ledger checker stopped")
			return
		}
		c.Check(ctx)

		select {
		case <-ctx.Done():
			c.log.Info("ledger checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects one snapshot and sends whatever alerts it triggers. It
// returns the number of alerts triggered.
func (c *Checker) Check(ctx context.Context) int {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		c.log.Error("monitoring: collect ledger metrics", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		c.log.Debug("monitoring: ledger healthy",
			zap.Int("runs", snap.RunsTotal),
			zap.Float64("cost_usd", snap.CostUSD),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	c.log.Warn("monitoring: thresholds breached",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
		zap.Int("runs_failed", snap.RunsFailed),
		zap.Int("chunks_failed", snap.ChunksFailed),
	)
	return len(alerts)
}
