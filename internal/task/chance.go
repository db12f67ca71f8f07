package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alphasquare/triarb/internal/arb"
	"github.com/alphasquare/triarb/internal/book"
	"github.com/alphasquare/triarb/internal/bus"
	"github.com/alphasquare/triarb/internal/domain"
)

// ChancePublisher consumes normalized best-price events, derives the triangle
// each updated symbol participates in, reads all three books as one
// consistent snapshot, and publishes any positive-profit chance the
// calculator finds.
type ChancePublisher struct {
	in      <-chan domain.OrderbookEvent
	out     *bus.Bus[domain.TriangularArbitrageChance]
	store   *book.Store
	symbols map[string]domain.SymbolInfo
	base    string // e.g. "BTC"
	quote   string // e.g. "USDT"
	budget  decimal.Decimal
	logger  *slog.Logger
}

// NewChancePublisher creates the chance publication task. symbols must hold
// the SymbolInfo of every pair the configured triangles touch.
func NewChancePublisher(
	in <-chan domain.OrderbookEvent,
	out *bus.Bus[domain.TriangularArbitrageChance],
	store *book.Store,
	symbols map[string]domain.SymbolInfo,
	base, quote string,
	budget decimal.Decimal,
	logger *slog.Logger,
) *ChancePublisher {
	return &ChancePublisher{
		in:      in,
		out:     out,
		store:   store,
		symbols: symbols,
		base:    base,
		quote:   quote,
		budget:  budget,
		logger:  logger.With(slog.String("component", "chance_publisher")),
	}
}

// Run evaluates triangles until ctx is cancelled or the inbound channel
// closes.
func (p *ChancePublisher) Run(ctx context.Context) error {
	p.logger.Info("chance publisher started",
		slog.String("base", p.base),
		slog.String("quote", p.quote),
		slog.String("budget", p.budget.String()),
	)
	defer p.logger.Info("chance publisher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.in:
			if !ok {
				return fmt.Errorf("task: chance: %w", domain.ErrBusClosed)
			}
			if err := p.evaluate(ctx, ev.Symbol); err != nil {
				return err
			}
		}
	}
}

// evaluate runs the calculator for the triangle the updated symbol belongs
// to. Missing books or symbol info are expected during startup and skipped at
// debug level.
func (p *ChancePublisher) evaluate(ctx context.Context, symbol string) error {
	tri, ok := domain.TriangleForSymbol(symbol, p.base, p.quote)
	if !ok {
		return nil
	}

	infoBQ, okBQ := p.symbols[tri.BQ]
	infoXB, okXB := p.symbols[tri.XB]
	infoXQ, okXQ := p.symbols[tri.XQ]
	if !okBQ || !okXB || !okXQ {
		p.logger.Debug("triangle has unlisted pair, skipping",
			slog.String("symbol", symbol),
			slog.String("coin", tri.Coin),
		)
		return nil
	}

	// One lock acquisition for all three books: the calculator sees a
	// consistent cross-symbol snapshot.
	tops, ok := p.store.Tops(tri.BQ, tri.XB, tri.XQ)
	if !ok {
		p.logger.Debug("triangle books not all populated, skipping",
			slog.String("symbol", symbol),
			slog.String("coin", tri.Coin),
		)
		return nil
	}

	chance, found := arb.BestTriangularChance(
		arb.ProfileFor(tops[0], infoBQ),
		arb.ProfileFor(tops[1], infoXB),
		arb.ProfileFor(tops[2], infoXQ),
		p.budget,
	)
	if !found || !chance.Profitable() {
		return nil
	}

	chance.ID = uuid.New().String()
	chance.DetectedAt = time.Now().UTC()

	p.logger.Info("arbitrage chance detected",
		slog.String("chance_id", chance.ID),
		slog.String("coin", tri.Coin),
		slog.String("profit", chance.Profit.String()),
		slog.String("first_leg", chance.Actions[0].Symbol),
	)
	if err := p.out.Publish(ctx, chance); err != nil {
		return fmt.Errorf("task: chance: publish %s: %w", chance.ID, err)
	}
	return nil
}
