package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SymbolInfo holds the static trading constraints of one pair, loaded once at
// startup from the exchange and read-only for the rest of the run.
type SymbolInfo struct {
	Symbol         string          // e.g. "ETH-BTC"
	BaseCurrency   string          // e.g. "ETH"
	QuoteCurrency  string          // e.g. "BTC"
	BaseMinSize    decimal.Decimal
	BaseIncrement  decimal.Decimal
	PriceIncrement decimal.Decimal
	FeeRate        decimal.Decimal // taker fee as a fraction, e.g. 0.001
}

// Triangle is one triangular cycle over three pairs sharing the base currency
// B (e.g. BTC), the quote currency Q (e.g. USDT), and a third coin X.
type Triangle struct {
	Coin string // X
	BQ   string // B-Q, e.g. "BTC-USDT"
	XB   string // X-B, e.g. "ETH-BTC"
	XQ   string // X-Q, e.g. "ETH-USDT"
}

// Symbols returns the three pair symbols in B-Q, X-B, X-Q order.
func (t Triangle) Symbols() [3]string {
	return [3]string{t.BQ, t.XB, t.XQ}
}

// PairSymbol joins base and quote into the exchange's symbol form.
func PairSymbol(base, quote string) string {
	return base + "-" + quote
}

// SplitSymbol splits "ETH-BTC" into ("ETH", "BTC"). ok is false for malformed
// symbols.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(symbol, "-")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}

// TriangleForSymbol derives the triangle that the given updated symbol
// participates in, for the configured base (e.g. "BTC") and quote (e.g.
// "USDT") currencies. Updates to the B-Q pair itself return ok=false: the
// evaluation loop is keyed by the third coin, and a B-Q move is picked up the
// next time any X pair ticks.
func TriangleForSymbol(symbol, base, quote string) (Triangle, bool) {
	s1, s2, ok := SplitSymbol(symbol)
	if !ok {
		return Triangle{}, false
	}

	var coin string
	switch {
	case s1 == base && s2 == quote: // B-Q itself
		return Triangle{}, false
	case s2 == base: // X-B
		coin = s1
	case s2 == quote && s1 != base: // X-Q
		coin = s1
	default:
		return Triangle{}, false
	}

	return Triangle{
		Coin: coin,
		BQ:   PairSymbol(base, quote),
		XB:   PairSymbol(coin, base),
		XQ:   PairSymbol(coin, quote),
	}, true
}
