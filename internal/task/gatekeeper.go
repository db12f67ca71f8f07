package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alphasquare/triarb/internal/bus"
	"github.com/alphasquare/triarb/internal/domain"
	"github.com/alphasquare/triarb/internal/ratelimit"
)

// orderRateKey is the shared sliding-window key for order placements.
const orderRateKey = "orders"

// BalanceSource reports the available trade-account balance per currency.
type BalanceSource interface {
	AvailableBalance(ctx context.Context, currency string) (decimal.Decimal, error)
}

// GatekeeperConfig bounds order emission.
type GatekeeperConfig struct {
	OrdersPerWindow int           // e.g. 45
	Window          time.Duration // e.g. 3s
	MaxOpenOrders   int           // e.g. 200
	FillTimeout     time.Duration // abort deadline for a cycle's legs
}

// cycleState is the execution state of one admitted chance.
type cycleState int

const (
	cycleIdle cycleState = iota
	cycleFirstLegsSubmitted
	cycleAwaitingFills
	cycleThirdLegSubmitted
	cycleSettled
	cycleAborted
)

// cycle tracks one in-flight triangular trade.
type cycle struct {
	chance    domain.TriangularArbitrageChance
	state     cycleState
	submitted [3]bool
	filled    [3]bool
	orderIDs  [3]string
	deadline  time.Time
}

// Gatekeeper converts chances into permitted order commands. It enforces the
// order rate limit and the open-order cap, verifies the quote balance, rounds
// price and volume to the pair's tradable precision, and runs each admitted
// chance through the leg state machine: the first two legs are submitted
// immediately, the third only after both are confirmed filled. One cycle is
// in flight at a time; chances arriving meanwhile are dropped.
type Gatekeeper struct {
	in       <-chan domain.TriangularArbitrageChance
	fills    <-chan domain.Fill
	out      *bus.Bus[domain.OrderCommand]
	limiter  ratelimit.Limiter
	balances BalanceSource
	symbols  map[string]domain.SymbolInfo
	quote    string
	cfg      GatekeeperConfig
	logger   *slog.Logger

	openOrders int
	current    *cycle
}

// NewGatekeeper creates the gatekeeper. openOrderSeed is the exchange's
// current open-order count at startup.
func NewGatekeeper(
	in <-chan domain.TriangularArbitrageChance,
	fills <-chan domain.Fill,
	out *bus.Bus[domain.OrderCommand],
	limiter ratelimit.Limiter,
	balances BalanceSource,
	symbols map[string]domain.SymbolInfo,
	quote string,
	openOrderSeed int,
	cfg GatekeeperConfig,
	logger *slog.Logger,
) *Gatekeeper {
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = 10 * time.Second
	}
	return &Gatekeeper{
		in:         in,
		fills:      fills,
		out:        out,
		limiter:    limiter,
		balances:   balances,
		symbols:    symbols,
		quote:      quote,
		cfg:        cfg,
		openOrders: openOrderSeed,
		logger:     logger.With(slog.String("component", "gatekeeper")),
	}
}

// Run processes chances and fills until ctx is cancelled or the chance
// channel closes (fatal). Receive errors on individual events are logged and
// the loop continues.
func (g *Gatekeeper) Run(ctx context.Context) error {
	g.logger.Info("gatekeeper started",
		slog.Int("orders_per_window", g.cfg.OrdersPerWindow),
		slog.Duration("window", g.cfg.Window),
		slog.Int("max_open_orders", g.cfg.MaxOpenOrders),
	)
	defer g.logger.Info("gatekeeper stopped")

	sweep := time.NewTicker(time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chance, ok := <-g.in:
			if !ok {
				return fmt.Errorf("task: gatekeeper: %w", domain.ErrBusClosed)
			}
			if err := g.admit(ctx, chance); err != nil {
				return err
			}

		case fill, ok := <-g.fills:
			if !ok {
				return fmt.Errorf("task: gatekeeper: fills: %w", domain.ErrBusClosed)
			}
			if err := g.handleFill(ctx, fill); err != nil {
				return err
			}

		case now := <-sweep.C:
			if err := g.sweepDeadline(ctx, now); err != nil {
				return err
			}
		}
	}
}

// admit runs the pre-trade checks and submits the first two legs.
func (g *Gatekeeper) admit(ctx context.Context, chance domain.TriangularArbitrageChance) error {
	log := g.logger.With(slog.String("chance_id", chance.ID))

	if g.current != nil {
		log.Debug("cycle already in flight, chance dropped")
		return nil
	}

	// Open-order cap: a full cycle needs three slots.
	if g.openOrders+3 > g.cfg.MaxOpenOrders {
		log.Warn("open order cap reached, chance dropped",
			slog.Int("open", g.openOrders),
			slog.Int("max", g.cfg.MaxOpenOrders),
		)
		return nil
	}

	// Balance: the first leg spends quote currency.
	first := chance.Actions[0]
	needed := first.Price.Mul(first.Volume)
	available, err := g.balances.AvailableBalance(ctx, g.quote)
	if err != nil {
		log.Warn("balance check failed, chance dropped",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if available.LessThan(needed) {
		log.Warn("insufficient balance, chance dropped",
			slog.String("needed", needed.String()),
			slog.String("available", available.String()),
		)
		return nil
	}

	// Rate limit: two immediate placements.
	for i := 0; i < 2; i++ {
		allowed, err := g.limiter.Allow(ctx, orderRateKey, g.cfg.OrdersPerWindow, g.cfg.Window)
		if err != nil {
			log.Warn("rate limiter error, chance dropped",
				slog.String("error", err.Error()),
			)
			return nil
		}
		if !allowed {
			log.Warn("order rate limit reached, chance dropped")
			return nil
		}
	}

	c := &cycle{
		chance:   chance,
		state:    cycleFirstLegsSubmitted,
		deadline: time.Now().Add(g.cfg.FillTimeout),
	}
	for leg := 0; leg < 2; leg++ {
		if err := g.submitLeg(ctx, c, leg); err != nil {
			return err
		}
	}
	c.state = cycleAwaitingFills
	g.current = c
	log.Info("first legs submitted",
		slog.String("leg0", chance.Actions[0].Symbol),
		slog.String("leg1", chance.Actions[1].Symbol),
	)
	return nil
}

// submitLeg rounds one action to the pair's precision and publishes it.
func (g *Gatekeeper) submitLeg(ctx context.Context, c *cycle, leg int) error {
	action := c.chance.Actions[leg]
	info, ok := g.symbols[action.Symbol]
	if !ok {
		return fmt.Errorf("task: gatekeeper: submit leg %d: %w: %s", leg, domain.ErrUnknownSymbol, action.Symbol)
	}

	price := roundDown(action.Price, info.PriceIncrement)
	volume := roundDown(action.Volume, info.BaseIncrement)
	if volume.LessThan(info.BaseMinSize) {
		return fmt.Errorf("task: gatekeeper: submit leg %d %s: %w", leg, action.Symbol, domain.ErrOrderBelowMinimum)
	}

	cmd := domain.OrderCommand{
		ClientOID: uuid.New().String(),
		Kind:      domain.OrderKindLimit,
		Symbol:    action.Symbol,
		Side:      action.Side,
		Price:     price,
		Volume:    volume,
		ChanceID:  c.chance.ID,
		LegIndex:  leg,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.out.Publish(ctx, cmd); err != nil {
		return fmt.Errorf("task: gatekeeper: publish leg %d: %w", leg, err)
	}
	c.submitted[leg] = true
	g.openOrders++
	return nil
}

// handleFill advances the in-flight cycle. Fills for unknown cycles (e.g.
// after an abort) are logged and ignored.
func (g *Gatekeeper) handleFill(ctx context.Context, fill domain.Fill) error {
	if g.current == nil || fill.ChanceID != g.current.chance.ID {
		g.logger.Debug("fill for unknown cycle ignored",
			slog.String("chance_id", fill.ChanceID),
			slog.String("order_id", fill.OrderID),
		)
		return nil
	}
	c := g.current
	if fill.LegIndex < 0 || fill.LegIndex > 2 {
		g.logger.Error("fill with invalid leg index ignored",
			slog.Int("leg", fill.LegIndex),
		)
		return nil
	}

	c.orderIDs[fill.LegIndex] = fill.OrderID
	if !fill.Completed {
		return nil
	}
	if !c.filled[fill.LegIndex] {
		c.filled[fill.LegIndex] = true
		g.openOrders--
	}

	switch c.state {
	case cycleAwaitingFills:
		if c.filled[0] && c.filled[1] {
			return g.submitThirdLeg(ctx, c)
		}
	case cycleThirdLegSubmitted:
		if c.filled[2] {
			g.logger.Info("cycle settled",
				slog.String("chance_id", c.chance.ID),
				slog.String("profit", c.chance.Profit.String()),
			)
			c.state = cycleSettled
			g.current = nil
		}
	}
	return nil
}

// submitThirdLeg places the final leg once the first two have filled.
func (g *Gatekeeper) submitThirdLeg(ctx context.Context, c *cycle) error {
	allowed, err := g.limiter.Allow(ctx, orderRateKey, g.cfg.OrdersPerWindow, g.cfg.Window)
	if err != nil || !allowed {
		// The deadline sweep retries until the window frees up or the cycle
		// times out; the third leg must not be silently skipped.
		g.logger.Warn("third leg rate limited, will retry",
			slog.String("chance_id", c.chance.ID),
		)
		return nil
	}
	if err := g.submitLeg(ctx, c, 2); err != nil {
		return err
	}
	c.state = cycleThirdLegSubmitted
	g.logger.Info("third leg submitted",
		slog.String("chance_id", c.chance.ID),
		slog.String("symbol", c.chance.Actions[2].Symbol),
	)
	return nil
}

// sweepDeadline retries a rate-limited third leg and aborts cycles that blew
// their fill deadline, cancelling any resting legs.
func (g *Gatekeeper) sweepDeadline(ctx context.Context, now time.Time) error {
	c := g.current
	if c == nil {
		return nil
	}

	if c.state == cycleAwaitingFills && c.filled[0] && c.filled[1] {
		if err := g.submitThirdLeg(ctx, c); err != nil {
			return err
		}
	}

	if now.Before(c.deadline) {
		return nil
	}

	g.logger.Warn("cycle deadline exceeded, aborting",
		slog.String("chance_id", c.chance.ID),
		slog.Bool("leg0_filled", c.filled[0]),
		slog.Bool("leg1_filled", c.filled[1]),
		slog.Bool("leg2_filled", c.filled[2]),
	)
	for leg := 0; leg < 3; leg++ {
		if !c.submitted[leg] || c.filled[leg] {
			continue
		}
		g.openOrders--
		if c.orderIDs[leg] == "" {
			// Placement result never arrived; nothing to cancel by ID.
			g.logger.Error("aborting leg with unknown order id",
				slog.String("chance_id", c.chance.ID),
				slog.Int("leg", leg),
			)
			continue
		}
		cancel := domain.OrderCommand{
			ClientOID: uuid.New().String(),
			Kind:      domain.OrderKindCancel,
			Symbol:    c.chance.Actions[leg].Symbol,
			OrderID:   c.orderIDs[leg],
			ChanceID:  c.chance.ID,
			LegIndex:  leg,
			CreatedAt: now.UTC(),
		}
		if err := g.out.Publish(ctx, cancel); err != nil {
			return fmt.Errorf("task: gatekeeper: publish cancel leg %d: %w", leg, err)
		}
	}
	c.state = cycleAborted
	g.current = nil
	return nil
}

// roundDown floors amount to a multiple of increment; a non-positive
// increment leaves it untouched.
func roundDown(amount, increment decimal.Decimal) decimal.Decimal {
	if !increment.IsPositive() {
		return amount
	}
	return amount.Div(increment).Floor().Mul(increment)
}
