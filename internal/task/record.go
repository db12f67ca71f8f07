package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alphasquare/triarb/internal/domain"
)

// ChanceSink forwards detected chances to an external channel, e.g. the redis
// telemetry publisher.
type ChanceSink interface {
	PublishChance(ctx context.Context, chance domain.TriangularArbitrageChance) error
}

// ChanceJournal persists detected chances.
type ChanceJournal interface {
	RecordChance(ctx context.Context, chance domain.TriangularArbitrageChance) error
}

// ChanceRecorder is a side consumer of the chance bus: it journals and
// forwards every detected chance without touching the trading path. Either
// destination may be nil.
type ChanceRecorder struct {
	in      <-chan domain.TriangularArbitrageChance
	journal ChanceJournal
	sink    ChanceSink
	logger  *slog.Logger
}

// NewChanceRecorder creates the recorder.
func NewChanceRecorder(in <-chan domain.TriangularArbitrageChance, journal ChanceJournal, sink ChanceSink, logger *slog.Logger) *ChanceRecorder {
	return &ChanceRecorder{
		in:      in,
		journal: journal,
		sink:    sink,
		logger:  logger.With(slog.String("component", "chance_recorder")),
	}
}

// Run records chances until ctx is cancelled or the channel closes.
func (r *ChanceRecorder) Run(ctx context.Context) error {
	r.logger.Info("chance recorder started")
	defer r.logger.Info("chance recorder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chance, ok := <-r.in:
			if !ok {
				return fmt.Errorf("task: chance recorder: %w", domain.ErrBusClosed)
			}
			r.record(ctx, chance)
		}
	}
}

func (r *ChanceRecorder) record(ctx context.Context, chance domain.TriangularArbitrageChance) {
	if r.journal != nil {
		if err := r.journal.RecordChance(ctx, chance); err != nil {
			r.logger.Warn("chance journal write failed",
				slog.String("chance_id", chance.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.sink != nil {
		if err := r.sink.PublishChance(ctx, chance); err != nil {
			r.logger.Debug("chance telemetry publish failed",
				slog.String("chance_id", chance.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
