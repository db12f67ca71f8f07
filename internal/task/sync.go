// Package task contains the pipeline stages: order-book sync, chance
// publication, the gatekeeper, order execution, and throughput monitoring.
// Each task exposes a blocking Run(ctx) whose return the supervisor treats as
// fatal for the whole process.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alphasquare/triarb/internal/book"
	"github.com/alphasquare/triarb/internal/bus"
	"github.com/alphasquare/triarb/internal/domain"
)

// SnapshotFetcher re-fetches a full REST snapshot, used to resync a symbol
// after a detected sequence gap.
type SnapshotFetcher interface {
	OrderbookSnapshot(ctx context.Context, symbol string) (*domain.Orderbook, error)
}

// Sync consumes raw book events, drives the merge engine against the store,
// and republishes normalized change events so downstream consumers only see
// real updates. Exactly one Sync instance reads the raw event channel.
type Sync struct {
	in        <-chan domain.OrderbookEvent
	out       *bus.Bus[domain.OrderbookEvent]
	store     *book.Store
	snapshots SnapshotFetcher
	logger    *slog.Logger
}

// NewSync creates the sync task. snapshots may be nil, in which case detected
// gaps are logged but not resynced.
func NewSync(in <-chan domain.OrderbookEvent, out *bus.Bus[domain.OrderbookEvent], store *book.Store, snapshots SnapshotFetcher, logger *slog.Logger) *Sync {
	return &Sync{
		in:        in,
		out:       out,
		store:     store,
		snapshots: snapshots,
		logger:    logger.With(slog.String("component", "orderbook_sync")),
	}
}

// Run processes events until ctx is cancelled or the inbound channel closes.
// A closed channel is an error: the feed must outlive the pipeline.
func (s *Sync) Run(ctx context.Context) error {
	s.logger.Info("orderbook sync started")
	defer s.logger.Info("orderbook sync stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.in:
			if !ok {
				return fmt.Errorf("task: sync: %w", domain.ErrBusClosed)
			}
			if err := s.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

// handle applies one event. Protocol violations are logged and dropped; only
// publish failures propagate.
func (s *Sync) handle(ctx context.Context, ev domain.OrderbookEvent) error {
	switch ev.Kind {
	case domain.OrderbookReceived:
		return s.handleSnapshot(ctx, ev)
	case domain.OrderbookChangeReceived:
		return s.handleDelta(ctx, ev)
	default:
		s.logger.Error("unknown orderbook event kind dropped",
			slog.String("symbol", ev.Symbol),
			slog.Int("kind", int(ev.Kind)),
		)
		return nil
	}
}

func (s *Sync) handleSnapshot(ctx context.Context, ev domain.OrderbookEvent) error {
	if s.store.Contains(ev.Symbol) {
		// A second snapshot is unexpected mid-run; treat it as a resync and
		// overwrite.
		s.logger.Warn("snapshot for already-synced symbol, resyncing",
			slog.String("symbol", ev.Symbol),
			slog.Uint64("sequence", ev.Book.Sequence),
		)
	}
	s.store.Insert(ev.Symbol, ev.Book)

	out := domain.OrderbookEvent{
		Kind:   domain.OrderbookChangeReceived,
		Symbol: ev.Symbol,
		Book:   ev.Book.Clone(),
	}
	if err := s.out.Publish(ctx, out); err != nil {
		return fmt.Errorf("task: sync: publish snapshot %s: %w", ev.Symbol, err)
	}
	return nil
}

func (s *Sync) handleDelta(ctx context.Context, ev domain.OrderbookEvent) error {
	res, err := s.store.Merge(ev.Symbol, ev.Book, ev.SequenceStart)
	if err != nil {
		if errors.Is(err, domain.ErrBookNotInitialized) {
			// Delta before snapshot: protocol violation, cannot merge without
			// a base state. Drop the event, do not crash.
			s.logger.Error("delta before snapshot dropped",
				slog.String("symbol", ev.Symbol),
				slog.Uint64("sequence", ev.Book.Sequence),
			)
			return nil
		}
		s.logger.Error("merge failed, event dropped",
			slog.String("symbol", ev.Symbol),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if res.GapDetected {
		s.logger.Warn("sequence gap detected",
			slog.String("symbol", ev.Symbol),
			slog.Uint64("gap_from", res.GapFrom),
			slog.Uint64("gap_to", res.GapTo),
		)
		s.resync(ctx, ev.Symbol)
	}

	if res.Updated == nil {
		// Entire delta was stale (network re-delivery); nothing to publish.
		return nil
	}

	out := domain.OrderbookEvent{
		Kind:   domain.OrderbookChangeReceived,
		Symbol: ev.Symbol,
		Book:   res.Updated,
	}
	if err := s.out.Publish(ctx, out); err != nil {
		return fmt.Errorf("task: sync: publish update %s: %w", ev.Symbol, err)
	}
	return nil
}

// resync replaces the symbol's book with a fresh REST snapshot. Failures are
// logged; the partially-stale book keeps serving until the next gap.
func (s *Sync) resync(ctx context.Context, symbol string) {
	if s.snapshots == nil {
		return
	}
	snap, err := s.snapshots.OrderbookSnapshot(ctx, symbol)
	if err != nil {
		s.logger.Error("resync snapshot fetch failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	s.store.Insert(symbol, snap)
	s.logger.Info("resynced from snapshot",
		slog.String("symbol", symbol),
		slog.Uint64("sequence", snap.Sequence),
	)
}
