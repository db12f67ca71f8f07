package arb

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alphasquare/triarb/internal/domain"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func profile(t *testing.T, symbol, ask, askVol, bid, bidVol string) PairProfile {
	t.Helper()
	return PairProfile{
		Symbol:    symbol,
		BestAsk:   dec(t, ask),
		AskVolume: dec(t, askVol),
		BestBid:   dec(t, bid),
		BidVolume: dec(t, bidVol),
		MinSize:   dec(t, "0.0001"),
		Increment: dec(t, "0.0001"),
		FeeRate:   dec(t, "0.001"),
	}
}

// A 1000 USDT budget through BTC-USDT / ETH-BTC / ETH-USDT with a mispriced
// ETH-USDT bid. Worked by hand:
//
//	buy  BTC-USDT: 1000*0.999/20000 = 0.04995  -> 0.0499 BTC
//	buy  ETH-BTC:  0.0499*0.999/0.05           -> 0.9970 ETH
//	sell ETH-USDT: 0.9970*0.999 -> 0.9960 ETH  -> 1045.8 USDT
func TestBestChanceWorkedExample(t *testing.T) {
	bq := profile(t, "BTC-USDT", "20000", "1", "19990", "1")
	xb := profile(t, "ETH-BTC", "0.05", "5", "0.048", "5")
	xq := profile(t, "ETH-USDT", "1100", "5", "1050", "5")

	chance, ok := BestTriangularChance(bq, xb, xq, dec(t, "1000"))
	if !ok {
		t.Fatal("expected a chance")
	}
	if !chance.Profit.Equal(dec(t, "45.8")) {
		t.Errorf("profit = %s, want 45.8", chance.Profit)
	}
	if !chance.Profitable() {
		t.Error("45.8 profit should be profitable")
	}

	want := [3]struct {
		side   domain.OrderSide
		symbol string
		price  string
		volume string
	}{
		{domain.OrderSideBuy, "BTC-USDT", "20000", "0.0499"},
		{domain.OrderSideBuy, "ETH-BTC", "0.05", "0.997"},
		{domain.OrderSideSell, "ETH-USDT", "1050", "0.996"},
	}
	for i, w := range want {
		a := chance.Actions[i]
		if a.Side != w.side || a.Symbol != w.symbol {
			t.Errorf("action %d = %s %s, want %s %s", i, a.Side, a.Symbol, w.side, w.symbol)
		}
		if !a.Price.Equal(dec(t, w.price)) {
			t.Errorf("action %d price = %s, want %s", i, a.Price, w.price)
		}
		if !a.Volume.Equal(dec(t, w.volume)) {
			t.Errorf("action %d volume = %s, want %s", i, a.Volume, w.volume)
		}
	}
}

func TestBestChancePrefersMoreProfitablePath(t *testing.T) {
	// ETH-BTC bid far above its ask makes the buy-sell-sell path the winner:
	// buy ETH with USDT, sell it dearly into BTC, sell BTC back to USDT.
	bq := profile(t, "BTC-USDT", "20000", "10", "20000", "10")
	xb := profile(t, "ETH-BTC", "0.05", "10", "0.06", "10")
	xq := profile(t, "ETH-USDT", "1000", "10", "1000", "10")

	chance, ok := BestTriangularChance(bq, xb, xq, dec(t, "1000"))
	if !ok {
		t.Fatal("expected a chance")
	}
	if chance.Actions[0].Symbol != "ETH-USDT" || chance.Actions[0].Side != domain.OrderSideBuy {
		t.Errorf("first action = %s %s, want buy ETH-USDT", chance.Actions[0].Side, chance.Actions[0].Symbol)
	}
	if chance.Actions[2].Symbol != "BTC-USDT" || chance.Actions[2].Side != domain.OrderSideSell {
		t.Errorf("third action = %s %s, want sell BTC-USDT", chance.Actions[2].Side, chance.Actions[2].Symbol)
	}
	if !chance.Profitable() {
		t.Errorf("profit = %s, want positive", chance.Profit)
	}
}

func TestBestChanceCapsAtTopOfBookVolume(t *testing.T) {
	bq := profile(t, "BTC-USDT", "20000", "1", "19990", "1")
	xb := profile(t, "ETH-BTC", "0.05", "0.5", "0.048", "5") // thin ask
	// Empty ETH-USDT ask kills the buy-sell-sell path, leaving only the path
	// through the thin ETH-BTC ask.
	xq := profile(t, "ETH-USDT", "1100", "0", "1050", "5")

	chance, ok := BestTriangularChance(bq, xb, xq, dec(t, "1000"))
	if !ok {
		t.Fatal("expected a chance (possibly unprofitable)")
	}
	if !chance.Actions[1].Volume.Equal(dec(t, "0.5")) {
		t.Errorf("middle leg volume = %s, want the 0.5 book volume", chance.Actions[1].Volume)
	}
}

func TestBestChanceMinSizeShortCircuit(t *testing.T) {
	bq := profile(t, "BTC-USDT", "20000", "1", "19990", "1")
	xb := profile(t, "ETH-BTC", "0.05", "5", "0.048", "5")
	xq := profile(t, "ETH-USDT", "1100", "5", "1050", "5")
	xb.MinSize = dec(t, "10") // no hop through ETH-BTC can reach this

	if _, ok := BestTriangularChance(bq, xb, xq, dec(t, "1000")); ok {
		t.Error("both paths traverse ETH-BTC, neither should survive its minimum")
	}
}

func TestBestChanceEmptyBookSide(t *testing.T) {
	bq := profile(t, "BTC-USDT", "20000", "0", "19990", "0")
	xb := profile(t, "ETH-BTC", "0.05", "5", "0.048", "5")
	xq := profile(t, "ETH-USDT", "1100", "0", "1050", "0")

	if _, ok := BestTriangularChance(bq, xb, xq, dec(t, "1000")); ok {
		t.Error("empty first-hop book sides should yield no chance")
	}
}

func TestBestChanceNonPositiveBudget(t *testing.T) {
	bq := profile(t, "BTC-USDT", "20000", "1", "19990", "1")
	xb := profile(t, "ETH-BTC", "0.05", "5", "0.048", "5")
	xq := profile(t, "ETH-USDT", "1100", "5", "1050", "5")

	if _, ok := BestTriangularChance(bq, xb, xq, decimal.Zero); ok {
		t.Error("zero budget should yield no chance")
	}
}

func TestUnprofitableChanceIsStillReported(t *testing.T) {
	// Consistent pricing: the cycle only loses the fees. The calculator
	// reports the best loss; the caller filters on Profitable().
	bq := profile(t, "BTC-USDT", "20000", "1", "20000", "1")
	xb := profile(t, "ETH-BTC", "0.05", "5", "0.05", "5")
	xq := profile(t, "ETH-USDT", "1000", "5", "1000", "5")

	chance, ok := BestTriangularChance(bq, xb, xq, dec(t, "1000"))
	if !ok {
		t.Fatal("fee-only losses still produce a chance")
	}
	if chance.Profitable() {
		t.Errorf("profit = %s, want negative after three fees", chance.Profit)
	}
}

func TestRoundToIncrement(t *testing.T) {
	cases := []struct{ in, inc, want string }{
		{"0.04995", "0.0001", "0.0499"},
		{"1", "0.0001", "1"},
		{"0.99999", "0.001", "0.999"},
		{"5", "0", "5"}, // no increment, untouched
	}
	for _, c := range cases {
		got := roundToIncrement(dec(t, c.in), dec(t, c.inc))
		if !got.Equal(dec(t, c.want)) {
			t.Errorf("roundToIncrement(%s, %s) = %s, want %s", c.in, c.inc, got, c.want)
		}
	}
}
