package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/alphasquare/triarb/internal/domain"
)

// CounterSink receives the per-interval counter readings, e.g. a redis
// publisher feeding an external dashboard.
type CounterSink interface {
	PublishCounter(ctx context.Context, name string, count int64, interval time.Duration) error
}

// Monitor logs (and optionally forwards) the throughput of each observed
// channel, resetting the counters every interval. Diagnostics only; losing a
// reading has no effect on the pipeline.
type Monitor struct {
	counters []*domain.Counter
	interval time.Duration
	sink     CounterSink
	logger   *slog.Logger
}

// NewMonitor creates the counter task. sink may be nil.
func NewMonitor(counters []*domain.Counter, interval time.Duration, sink CounterSink, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		counters: counters,
		interval: interval,
		sink:     sink,
		logger:   logger.With(slog.String("component", "monitor")),
	}
}

// Run reports until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", slog.Duration("interval", m.interval))
	defer m.logger.Info("monitor stopped")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.report(ctx)
		}
	}
}

func (m *Monitor) report(ctx context.Context) {
	attrs := make([]any, 0, len(m.counters))
	for _, c := range m.counters {
		n := c.Reset()
		attrs = append(attrs, slog.Int64(c.Name, n))
		if m.sink != nil {
			if err := m.sink.PublishCounter(ctx, c.Name, n, m.interval); err != nil {
				m.logger.Debug("counter sink publish failed",
					slog.String("counter", c.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	m.logger.Info("channel throughput", attrs...)
}
