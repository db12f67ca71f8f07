package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alphasquare/triarb/internal/bus"
	"github.com/alphasquare/triarb/internal/domain"
	"github.com/alphasquare/triarb/internal/exchange/kucoin"
	"github.com/alphasquare/triarb/internal/task"
)

// TradeMode runs the full pipeline: market-data ingestion, orderbook merging,
// chance detection, the gatekeeper, and real order placement.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Int("symbols", len(deps.WatchSymbols)),
		slog.String("budget", deps.Budget.String()),
	)

	g, ctx := errgroup.WithContext(ctx)
	capacity := a.cfg.Trading.BusCapacity

	bookBus := bus.New[domain.OrderbookEvent]("orderbooks", capacity)
	mergedBus := bus.New[domain.OrderbookEvent]("merged_orderbooks", capacity)
	chanceBus := bus.New[domain.TriangularArbitrageChance]("chances", capacity)
	orderBus := bus.New[domain.OrderCommand]("orders", capacity)
	fillBus := bus.New[domain.Fill]("fills", capacity)

	// Seed the gatekeeper with the exchange's current open-order count so a
	// restart does not blow past the open-order cap.
	openOrders, err := deps.Exchange.OpenOrderCount(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "open order seed unavailable, assuming zero",
			slog.String("error", err.Error()),
		)
		openOrders = 0
	}

	syncTask := task.NewSync(bookBus.Subscribe(), mergedBus, deps.Store, deps.Exchange, a.logger)
	chanceTask := task.NewChancePublisher(
		mergedBus.Subscribe(), chanceBus, deps.Store, deps.Symbols,
		a.cfg.Trading.BaseCurrency, a.cfg.Trading.QuoteCurrency, deps.Budget, a.logger,
	)
	gatekeeper := task.NewGatekeeper(
		chanceBus.Subscribe(), fillBus.Subscribe(), orderBus,
		deps.Limiter, deps.Exchange, deps.Symbols, a.cfg.Trading.QuoteCurrency,
		openOrders,
		task.GatekeeperConfig{
			OrdersPerWindow: a.cfg.Gatekeeper.OrdersPerWindow,
			Window:          a.cfg.Gatekeeper.Window.Duration,
			MaxOpenOrders:   a.cfg.Gatekeeper.MaxOpenOrders,
			FillTimeout:     a.cfg.Gatekeeper.FillTimeout.Duration,
		},
		a.logger,
	)
	executor := task.NewExecutor(orderBus.Subscribe(), fillBus, deps.Exchange, deps.Journal, a.logger)
	recorder := task.NewChanceRecorder(chanceBus.Subscribe(), deps.Journal, chanceSink(deps), a.logger)
	session := kucoin.NewSession(deps.Exchange, deps.Exchange, deps.WatchSymbols, bookBus, a.logger)

	counters := startCounters(ctx, g,
		tap[domain.OrderbookEvent]{bookBus.Name(), bookBus.Subscribe()},
		tap[domain.OrderbookEvent]{mergedBus.Name(), mergedBus.Subscribe()},
	)
	counters = append(counters, startCounters(ctx, g,
		tap[domain.TriangularArbitrageChance]{chanceBus.Name(), chanceBus.Subscribe()},
	)...)
	counters = append(counters, startCounters(ctx, g,
		tap[domain.OrderCommand]{orderBus.Name(), orderBus.Subscribe()},
	)...)
	counters = append(counters, startCounters(ctx, g,
		tap[domain.Fill]{fillBus.Name(), fillBus.Subscribe()},
	)...)
	monitor := task.NewMonitor(counters, a.cfg.Trading.MonitorInterval.Duration, counterSink(deps), a.logger)

	g.Go(func() error { return session.Run(ctx) })
	g.Go(func() error { return syncTask.Run(ctx) })
	g.Go(func() error { return chanceTask.Run(ctx) })
	g.Go(func() error { return gatekeeper.Run(ctx) })
	g.Go(func() error { return executor.Run(ctx) })
	g.Go(func() error { return recorder.Run(ctx) })
	g.Go(func() error { return monitor.Run(ctx) })

	return g.Wait()
}

// DryRunMode runs ingestion, merging, and chance detection, but places no
// orders: every detected chance is logged, journaled, and published to
// telemetry only.
func (a *App) DryRunMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting dryrun mode",
		slog.Int("symbols", len(deps.WatchSymbols)),
		slog.String("budget", deps.Budget.String()),
	)

	g, ctx := errgroup.WithContext(ctx)
	capacity := a.cfg.Trading.BusCapacity

	bookBus := bus.New[domain.OrderbookEvent]("orderbooks", capacity)
	mergedBus := bus.New[domain.OrderbookEvent]("merged_orderbooks", capacity)
	chanceBus := bus.New[domain.TriangularArbitrageChance]("chances", capacity)

	syncTask := task.NewSync(bookBus.Subscribe(), mergedBus, deps.Store, deps.Exchange, a.logger)
	chanceTask := task.NewChancePublisher(
		mergedBus.Subscribe(), chanceBus, deps.Store, deps.Symbols,
		a.cfg.Trading.BaseCurrency, a.cfg.Trading.QuoteCurrency, deps.Budget, a.logger,
	)
	recorder := task.NewChanceRecorder(chanceBus.Subscribe(), deps.Journal, chanceSink(deps), a.logger)
	session := kucoin.NewSession(deps.Exchange, deps.Exchange, deps.WatchSymbols, bookBus, a.logger)

	counters := startCounters(ctx, g,
		tap[domain.OrderbookEvent]{bookBus.Name(), bookBus.Subscribe()},
		tap[domain.OrderbookEvent]{mergedBus.Name(), mergedBus.Subscribe()},
	)
	counters = append(counters, startCounters(ctx, g,
		tap[domain.TriangularArbitrageChance]{chanceBus.Name(), chanceBus.Subscribe()},
	)...)
	monitor := task.NewMonitor(counters, a.cfg.Trading.MonitorInterval.Duration, counterSink(deps), a.logger)

	g.Go(func() error { return session.Run(ctx) })
	g.Go(func() error { return syncTask.Run(ctx) })
	g.Go(func() error { return chanceTask.Run(ctx) })
	g.Go(func() error { return recorder.Run(ctx) })
	g.Go(func() error { return monitor.Run(ctx) })

	return g.Wait()
}

// MonitorMode runs ingestion and merging only, reporting channel throughput.
// Useful for verifying feed health before committing capital.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.Int("symbols", len(deps.WatchSymbols)),
	)

	g, ctx := errgroup.WithContext(ctx)
	capacity := a.cfg.Trading.BusCapacity

	bookBus := bus.New[domain.OrderbookEvent]("orderbooks", capacity)
	mergedBus := bus.New[domain.OrderbookEvent]("merged_orderbooks", capacity)

	syncTask := task.NewSync(bookBus.Subscribe(), mergedBus, deps.Store, deps.Exchange, a.logger)
	session := kucoin.NewSession(deps.Exchange, deps.Exchange, deps.WatchSymbols, bookBus, a.logger)

	counters := startCounters(ctx, g,
		tap[domain.OrderbookEvent]{bookBus.Name(), bookBus.Subscribe()},
		tap[domain.OrderbookEvent]{mergedBus.Name(), mergedBus.Subscribe()},
	)
	monitor := task.NewMonitor(counters, a.cfg.Trading.MonitorInterval.Duration, counterSink(deps), a.logger)

	g.Go(func() error { return session.Run(ctx) })
	g.Go(func() error { return syncTask.Run(ctx) })
	g.Go(func() error { return monitor.Run(ctx) })

	return g.Wait()
}

// tap pairs a bus subscription with the counter name it feeds.
type tap[T any] struct {
	name string
	ch   <-chan T
}

// startCounters spawns one counting drain per tap and returns the counters for
// the monitor to report.
func startCounters[T any](ctx context.Context, g *errgroup.Group, taps ...tap[T]) []*domain.Counter {
	counters := make([]*domain.Counter, 0, len(taps))
	for _, t := range taps {
		c := domain.NewCounter(t.name)
		counters = append(counters, c)
		ch := t.ch
		g.Go(func() error { return bus.Count(ctx, ch, c) })
	}
	return counters
}

// chanceSink returns the telemetry publisher as a ChanceSink, or nil when
// telemetry is disabled. The indirection avoids handing a typed nil pointer to
// an interface field.
func chanceSink(deps *Dependencies) task.ChanceSink {
	if deps.Telemetry == nil {
		return nil
	}
	return deps.Telemetry
}

// counterSink is the CounterSink analogue of chanceSink.
func counterSink(deps *Dependencies) task.CounterSink {
	if deps.Telemetry == nil {
		return nil
	}
	return deps.Telemetry
}
