package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alphasquare/triarb/internal/bus"
	"github.com/alphasquare/triarb/internal/domain"
)

// OrderAPI is the slice of the exchange REST surface the executor needs.
type OrderAPI interface {
	PlaceOrder(ctx context.Context, cmd domain.OrderCommand) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	OrderStatus(ctx context.Context, orderID string) (active bool, dealSize decimal.Decimal, err error)
}

// Journal records emitted orders for later inspection. Implementations must
// tolerate being nil-checked away; recording failures are never fatal.
type Journal interface {
	RecordOrder(ctx context.Context, cmd domain.OrderCommand, result domain.OrderResult) error
}

const (
	// fillPollInterval and fillPollBudget bound the REST status polling that
	// substitutes for a private fill feed.
	fillPollInterval = 500 * time.Millisecond
	fillPollBudget   = 60 * time.Second

	// placeTimeout bounds one REST placement attempt.
	placeTimeout = 10 * time.Second
)

// Executor consumes order commands, calls the exchange REST API, and reports
// fills back on the fills bus. REST failures are logged and the attempt is
// abandoned; there is no automatic retry.
type Executor struct {
	in      <-chan domain.OrderCommand
	fills   *bus.Bus[domain.Fill]
	api     OrderAPI
	journal Journal
	logger  *slog.Logger
}

// NewExecutor creates the order execution task. journal may be nil.
func NewExecutor(in <-chan domain.OrderCommand, fills *bus.Bus[domain.Fill], api OrderAPI, journal Journal, logger *slog.Logger) *Executor {
	return &Executor{
		in:      in,
		fills:   fills,
		api:     api,
		journal: journal,
		logger:  logger.With(slog.String("component", "order_executor")),
	}
}

// Run processes commands until ctx is cancelled or the inbound channel
// closes.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("order executor started")
	defer e.logger.Info("order executor stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-e.in:
			if !ok {
				return fmt.Errorf("task: executor: %w", domain.ErrBusClosed)
			}
			if err := e.process(ctx, cmd); err != nil {
				return err
			}
		}
	}
}

// process dispatches one command by kind.
func (e *Executor) process(ctx context.Context, cmd domain.OrderCommand) error {
	switch cmd.Kind {
	case domain.OrderKindLimit, domain.OrderKindMarket:
		return e.place(ctx, cmd)
	case domain.OrderKindCancel:
		e.cancel(ctx, cmd)
		return nil
	default:
		e.logger.Error("unknown order kind dropped",
			slog.String("client_oid", cmd.ClientOID),
			slog.String("kind", string(cmd.Kind)),
		)
		return nil
	}
}

func (e *Executor) place(ctx context.Context, cmd domain.OrderCommand) error {
	log := e.logger.With(
		slog.String("client_oid", cmd.ClientOID),
		slog.String("chance_id", cmd.ChanceID),
		slog.Int("leg", cmd.LegIndex),
		slog.String("symbol", cmd.Symbol),
		slog.String("side", string(cmd.Side)),
	)

	placeCtx, cancel := context.WithTimeout(ctx, placeTimeout)
	result, err := e.api.PlaceOrder(placeCtx, cmd)
	cancel()

	e.record(ctx, cmd, result)

	if err != nil {
		log.Error("order placement failed, attempt abandoned",
			slog.String("error", err.Error()),
		)
		return nil
	}
	log.Info("order placed",
		slog.String("order_id", result.OrderID),
		slog.String("price", cmd.Price.String()),
		slog.String("volume", cmd.Volume.String()),
	)

	// No private fill feed in this session: poll the order status and
	// publish the fill confirmation when it completes.
	go e.watchFill(ctx, cmd, result.OrderID)
	return nil
}

func (e *Executor) cancel(ctx context.Context, cmd domain.OrderCommand) {
	cancelCtx, cancel := context.WithTimeout(ctx, placeTimeout)
	defer cancel()
	if err := e.api.CancelOrder(cancelCtx, cmd.OrderID); err != nil {
		e.logger.Error("order cancel failed",
			slog.String("order_id", cmd.OrderID),
			slog.String("chance_id", cmd.ChanceID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.Info("order cancelled",
		slog.String("order_id", cmd.OrderID),
		slog.String("chance_id", cmd.ChanceID),
	)
}

// watchFill polls the order until it leaves the book, then publishes a Fill.
// The poll gives up after fillPollBudget; the gatekeeper's own deadline
// handles the rest.
func (e *Executor) watchFill(ctx context.Context, cmd domain.OrderCommand, orderID string) {
	deadline := time.Now().Add(fillPollBudget)
	ticker := time.NewTicker(fillPollInterval)
	defer ticker.Stop()

	// Report the exchange order ID immediately so the gatekeeper can cancel
	// the leg if the cycle aborts before the fill.
	e.publishFill(ctx, domain.Fill{
		OrderID:  orderID,
		Symbol:   cmd.Symbol,
		Side:     cmd.Side,
		Price:    cmd.Price,
		ChanceID: cmd.ChanceID,
		LegIndex: cmd.LegIndex,
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			e.logger.Warn("fill watch gave up",
				slog.String("order_id", orderID),
				slog.String("chance_id", cmd.ChanceID),
			)
			return
		}

		active, dealt, err := e.api.OrderStatus(ctx, orderID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("order status poll failed",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if active {
			continue
		}

		e.publishFill(ctx, domain.Fill{
			OrderID:   orderID,
			Symbol:    cmd.Symbol,
			Side:      cmd.Side,
			Price:     cmd.Price,
			Volume:    dealt,
			ChanceID:  cmd.ChanceID,
			LegIndex:  cmd.LegIndex,
			Completed: true,
		})
		return
	}
}

func (e *Executor) publishFill(ctx context.Context, fill domain.Fill) {
	if err := e.fills.Publish(ctx, fill); err != nil && ctx.Err() == nil {
		e.logger.Error("fill publish failed",
			slog.String("order_id", fill.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) record(ctx context.Context, cmd domain.OrderCommand, result domain.OrderResult) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordOrder(ctx, cmd, result); err != nil {
		e.logger.Warn("order journal write failed",
			slog.String("client_oid", cmd.ClientOID),
			slog.String("error", err.Error()),
		)
	}
}
