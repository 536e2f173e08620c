package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/chem-report/internal/config"
)

// Report is the outcome of one check.
type Report struct {
	Snapshot *MetricsSnapshot
	Alerts   []Alert
	Sent     int
}

// Checker collects, evaluates and delivers alerts once or on an interval.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates an alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

func (c *Checker) lookback() int {
	if c.cfg.LookbackWindowHours <= 0 {
		return 24
	}
	return c.cfg.LookbackWindowHours
}

// Check runs a single collect, evaluate and send cycle.
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	snap, err := c.collector.Collect(ctx, c.lookback())
	if err != nil {
		return nil, err
	}
	alerts := c.alerter.Evaluate(snap)
	return &Report{
		Snapshot: snap,
		Alerts:   alerts,
		Sent:     c.alerter.SendAlerts(ctx, alerts),
	}, nil
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.lookback()),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	rep, err := c.Check(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return
	}
	if len(rep.Alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return
	}
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(rep.Alerts)),
		zap.Int("alerts_sent", rep.Sent),
	)
}
