package task

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alphasquare/triarb/internal/bus"
	"github.com/alphasquare/triarb/internal/domain"
	"github.com/alphasquare/triarb/internal/ratelimit"
)

type fixedBalance struct{ available decimal.Decimal }

func (b fixedBalance) AvailableBalance(context.Context, string) (decimal.Decimal, error) {
	return b.available, nil
}

func testSymbols(t *testing.T) map[string]domain.SymbolInfo {
	t.Helper()
	mk := func(symbol, base, quote string) domain.SymbolInfo {
		return domain.SymbolInfo{
			Symbol:         symbol,
			BaseCurrency:   base,
			QuoteCurrency:  quote,
			BaseMinSize:    dec(t, "0.0001"),
			BaseIncrement:  dec(t, "0.0001"),
			PriceIncrement: dec(t, "0.0001"),
			FeeRate:        dec(t, "0.001"),
		}
	}
	return map[string]domain.SymbolInfo{
		"BTC-USDT": mk("BTC-USDT", "BTC", "USDT"),
		"ETH-BTC":  mk("ETH-BTC", "ETH", "BTC"),
		"ETH-USDT": mk("ETH-USDT", "ETH", "USDT"),
	}
}

func testChance(t *testing.T, id string) domain.TriangularArbitrageChance {
	t.Helper()
	return domain.TriangularArbitrageChance{
		ID:     id,
		Profit: dec(t, "45.8"),
		Actions: [3]domain.ActionInfo{
			{Side: domain.OrderSideBuy, Symbol: "BTC-USDT", Price: dec(t, "20000"), Volume: dec(t, "0.0499")},
			{Side: domain.OrderSideBuy, Symbol: "ETH-BTC", Price: dec(t, "0.05"), Volume: dec(t, "0.997")},
			{Side: domain.OrderSideSell, Symbol: "ETH-USDT", Price: dec(t, "1050"), Volume: dec(t, "0.996")},
		},
		DetectedAt: time.Now().UTC(),
	}
}

// newTestGatekeeper returns a gatekeeper with generous limits plus the order
// command channel its publishes land on.
func newTestGatekeeper(t *testing.T, balance string, openSeed int) (*Gatekeeper, <-chan domain.OrderCommand) {
	t.Helper()
	out := bus.New[domain.OrderCommand]("orders", 8)
	orders := out.Subscribe()
	g := NewGatekeeper(
		nil, nil, out,
		ratelimit.NewMemory(),
		fixedBalance{available: dec(t, balance)},
		testSymbols(t), "USDT", openSeed,
		GatekeeperConfig{
			OrdersPerWindow: 45,
			Window:          3 * time.Second,
			MaxOpenOrders:   200,
			FillTimeout:     10 * time.Second,
		},
		testLogger(),
	)
	return g, orders
}

func TestGatekeeperAdmitSubmitsFirstTwoLegs(t *testing.T) {
	g, orders := newTestGatekeeper(t, "100000", 0)
	ctx := context.Background()

	if err := g.admit(ctx, testChance(t, "c1")); err != nil {
		t.Fatalf("admit: %v", err)
	}

	for leg := 0; leg < 2; leg++ {
		cmd, ok := drainOne(t, orders)
		if !ok {
			t.Fatalf("leg %d command missing", leg)
		}
		if cmd.Kind != domain.OrderKindLimit || cmd.LegIndex != leg || cmd.ChanceID != "c1" {
			t.Errorf("leg %d = kind %s index %d chance %s", leg, cmd.Kind, cmd.LegIndex, cmd.ChanceID)
		}
		if cmd.ClientOID == "" {
			t.Errorf("leg %d missing client oid", leg)
		}
	}
	if _, ok := drainOne(t, orders); ok {
		t.Error("third leg must wait for fills")
	}
	if g.openOrders != 2 {
		t.Errorf("openOrders = %d, want 2", g.openOrders)
	}
	if g.current == nil || g.current.state != cycleAwaitingFills {
		t.Error("cycle should be awaiting fills")
	}
}

func TestGatekeeperDropsWhileCycleInFlight(t *testing.T) {
	g, orders := newTestGatekeeper(t, "100000", 0)
	ctx := context.Background()

	if err := g.admit(ctx, testChance(t, "c1")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	drainOne(t, orders)
	drainOne(t, orders)

	if err := g.admit(ctx, testChance(t, "c2")); err != nil {
		t.Fatalf("second admit: %v", err)
	}
	if _, ok := drainOne(t, orders); ok {
		t.Error("chance arriving mid-cycle must be dropped")
	}
}

func TestGatekeeperOpenOrderCap(t *testing.T) {
	g, orders := newTestGatekeeper(t, "100000", 198) // 198+3 > 200
	if err := g.admit(context.Background(), testChance(t, "c1")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, ok := drainOne(t, orders); ok {
		t.Error("chance must be dropped at the open-order cap")
	}
	if g.current != nil {
		t.Error("no cycle should be in flight")
	}
}

func TestGatekeeperInsufficientBalance(t *testing.T) {
	// Leg 0 needs 20000*0.0499 = 998 USDT.
	g, orders := newTestGatekeeper(t, "500", 0)
	if err := g.admit(context.Background(), testChance(t, "c1")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, ok := drainOne(t, orders); ok {
		t.Error("chance must be dropped on insufficient balance")
	}
}

func TestGatekeeperRateLimit(t *testing.T) {
	out := bus.New[domain.OrderCommand]("orders", 8)
	orders := out.Subscribe()
	g := NewGatekeeper(
		nil, nil, out,
		ratelimit.NewMemory(),
		fixedBalance{available: dec(t, "100000")},
		testSymbols(t), "USDT", 0,
		GatekeeperConfig{
			OrdersPerWindow: 1, // cannot fit the two immediate legs
			Window:          3 * time.Second,
			MaxOpenOrders:   200,
			FillTimeout:     10 * time.Second,
		},
		testLogger(),
	)
	if err := g.admit(context.Background(), testChance(t, "c1")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, ok := drainOne(t, orders); ok {
		t.Error("chance must be dropped when the window cannot fit both legs")
	}
	if g.current != nil {
		t.Error("no cycle should be in flight")
	}
}

func TestGatekeeperFillFlowSettlesCycle(t *testing.T) {
	g, orders := newTestGatekeeper(t, "100000", 0)
	ctx := context.Background()

	if err := g.admit(ctx, testChance(t, "c1")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	drainOne(t, orders)
	drainOne(t, orders)

	fill := func(leg int, orderID string, completed bool) {
		t.Helper()
		err := g.handleFill(ctx, domain.Fill{
			OrderID:   orderID,
			ChanceID:  "c1",
			LegIndex:  leg,
			Completed: completed,
		})
		if err != nil {
			t.Fatalf("fill leg %d: %v", leg, err)
		}
	}

	fill(0, "o0", false) // placement ack only
	fill(0, "o0", true)
	if _, ok := drainOne(t, orders); ok {
		t.Fatal("third leg must wait for both first legs")
	}

	fill(1, "o1", true)
	third, ok := drainOne(t, orders)
	if !ok {
		t.Fatal("third leg should follow the second fill")
	}
	if third.LegIndex != 2 || third.Symbol != "ETH-USDT" || third.Side != domain.OrderSideSell {
		t.Errorf("third leg = %s %s index %d", third.Side, third.Symbol, third.LegIndex)
	}

	fill(2, "o2", true)
	if g.current != nil {
		t.Error("settled cycle should clear the in-flight slot")
	}
	if g.openOrders != 0 {
		t.Errorf("openOrders = %d, want 0 after full settlement", g.openOrders)
	}
}

func TestGatekeeperDeadlineAbortCancelsRestingLegs(t *testing.T) {
	g, orders := newTestGatekeeper(t, "100000", 0)
	ctx := context.Background()

	if err := g.admit(ctx, testChance(t, "c1")); err != nil {
		t.Fatalf("admit: %v", err)
	}
	drainOne(t, orders)
	drainOne(t, orders)

	// Leg 0 filled; leg 1 resting with a known order id.
	if err := g.handleFill(ctx, domain.Fill{OrderID: "o0", ChanceID: "c1", LegIndex: 0, Completed: true}); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := g.handleFill(ctx, domain.Fill{OrderID: "o1", ChanceID: "c1", LegIndex: 1, Completed: false}); err != nil {
		t.Fatalf("fill: %v", err)
	}

	if err := g.sweepDeadline(ctx, g.current.deadline.Add(time.Second)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	cancel, ok := drainOne(t, orders)
	if !ok {
		t.Fatal("resting leg should be cancelled on abort")
	}
	if cancel.Kind != domain.OrderKindCancel || cancel.OrderID != "o1" || cancel.LegIndex != 1 {
		t.Errorf("cancel = kind %s order %s leg %d", cancel.Kind, cancel.OrderID, cancel.LegIndex)
	}
	if _, ok := drainOne(t, orders); ok {
		t.Error("filled leg must not be cancelled")
	}
	if g.current != nil {
		t.Error("aborted cycle should clear the in-flight slot")
	}
	if g.openOrders != 0 {
		t.Errorf("openOrders = %d, want 0 after abort", g.openOrders)
	}
}

func TestGatekeeperIgnoresForeignFills(t *testing.T) {
	g, _ := newTestGatekeeper(t, "100000", 0)
	err := g.handleFill(context.Background(), domain.Fill{
		OrderID: "x", ChanceID: "ghost", LegIndex: 0, Completed: true,
	})
	if err != nil {
		t.Fatalf("foreign fill must be ignored: %v", err)
	}
	if g.openOrders != 0 {
		t.Errorf("openOrders = %d, want 0", g.openOrders)
	}
}
