// Package arb implements the triangular-arbitrage chance calculator. The
// calculator is pure: given three top-of-book profiles and a quote budget it
// deterministically computes the best executable cyclic trade, or nothing.
package arb

import (
	"github.com/shopspring/decimal"

	"github.com/alphasquare/triarb/internal/domain"
)

// PairProfile is everything the calculator needs to know about one pair: the
// live top of book plus the pair's static trading constraints.
type PairProfile struct {
	Symbol    string
	BestAsk   decimal.Decimal
	AskVolume decimal.Decimal
	BestBid   decimal.Decimal
	BidVolume decimal.Decimal
	MinSize   decimal.Decimal
	Increment decimal.Decimal
	FeeRate   decimal.Decimal
}

// ProfileFor combines a top-of-book observation with the pair's static info.
func ProfileFor(top domain.TopOfBook, info domain.SymbolInfo) PairProfile {
	return PairProfile{
		Symbol:    top.Symbol,
		BestAsk:   top.BestAsk,
		AskVolume: top.AskVolume,
		BestBid:   top.BestBid,
		BidVolume: top.BidVolume,
		MinSize:   info.BaseMinSize,
		Increment: info.BaseIncrement,
		FeeRate:   info.FeeRate,
	}
}

// BestTriangularChance evaluates the two cyclic paths over the pairs B-Q
// (pairBQ), X-B (pairXB), and X-Q (pairXQ), both starting and ending in the
// quote currency Q with the given budget:
//
//	path 1 (buy-buy-sell):  Q→B buy B-Q, B→X buy X-B, X→Q sell X-Q
//	path 2 (buy-sell-sell): Q→X buy X-Q, X→B sell X-B, B→Q sell B-Q
//
// Each hop charges the fee on its input, caps the amount at the top-of-book
// volume, rounds down to the pair's size increment, and fails the whole path
// when the rounded amount falls below the pair's minimum. When both paths
// complete, the higher profit wins; ties prefer path 1.
func BestTriangularChance(pairBQ, pairXB, pairXQ PairProfile, budget decimal.Decimal) (domain.TriangularArbitrageChance, bool) {
	if !budget.IsPositive() {
		return domain.TriangularArbitrageChance{}, false
	}

	bbs, okBBS := evalPath(budget, [3]hop{
		{pair: pairBQ, side: domain.OrderSideBuy},
		{pair: pairXB, side: domain.OrderSideBuy},
		{pair: pairXQ, side: domain.OrderSideSell},
	})
	bss, okBSS := evalPath(budget, [3]hop{
		{pair: pairXQ, side: domain.OrderSideBuy},
		{pair: pairXB, side: domain.OrderSideSell},
		{pair: pairBQ, side: domain.OrderSideSell},
	})

	switch {
	case okBBS && okBSS:
		if bss.Profit.GreaterThan(bbs.Profit) {
			return bss, true
		}
		return bbs, true
	case okBBS:
		return bbs, true
	case okBSS:
		return bss, true
	default:
		return domain.TriangularArbitrageChance{}, false
	}
}

type hop struct {
	pair PairProfile
	side domain.OrderSide
}

// evalPath walks the three hops, threading the output of each into the next.
// The running amount is in the input currency of the upcoming hop; it starts
// as the quote budget and must end as a quote amount again.
func evalPath(budget decimal.Decimal, hops [3]hop) (domain.TriangularArbitrageChance, bool) {
	amount := budget
	var actions [3]domain.ActionInfo

	for i, h := range hops {
		var (
			size decimal.Decimal
			out  decimal.Decimal
			ok   bool
		)
		if h.side == domain.OrderSideBuy {
			size, out, ok = buyHop(amount, h.pair)
		} else {
			size, out, ok = sellHop(amount, h.pair)
		}
		if !ok {
			return domain.TriangularArbitrageChance{}, false
		}

		price := h.pair.BestAsk
		if h.side == domain.OrderSideSell {
			price = h.pair.BestBid
		}
		actions[i] = domain.ActionInfo{
			Side:   h.side,
			Symbol: h.pair.Symbol,
			Price:  price,
			Volume: size,
		}
		amount = out
	}

	// ID and DetectedAt are assigned by the publishing task; the calculator
	// stays deterministic for identical inputs.
	return domain.TriangularArbitrageChance{
		Profit:  amount.Sub(budget),
		Actions: actions,
	}, true
}

// buyHop spends a quote amount at the pair's best ask. It returns the base
// size bought (the hop's order volume) and the hop output, which for a buy is
// that same base size. ok is false when the book side is empty or the sized
// amount misses the pair minimum.
func buyHop(quoteIn decimal.Decimal, p PairProfile) (size, out decimal.Decimal, ok bool) {
	if !p.BestAsk.IsPositive() || !p.AskVolume.IsPositive() {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	effective := afterFee(quoteIn, p.FeeRate)
	raw := effective.Div(p.BestAsk)
	size = roundToIncrement(decimal.Min(raw, p.AskVolume), p.Increment)
	if size.LessThan(p.MinSize) || !size.IsPositive() {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return size, size, true
}

// sellHop sells a base amount at the pair's best bid. The hop output is the
// quote proceeds.
func sellHop(baseIn decimal.Decimal, p PairProfile) (size, out decimal.Decimal, ok bool) {
	if !p.BestBid.IsPositive() || !p.BidVolume.IsPositive() {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	effective := afterFee(baseIn, p.FeeRate)
	size = roundToIncrement(decimal.Min(effective, p.BidVolume), p.Increment)
	if size.LessThan(p.MinSize) || !size.IsPositive() {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return size, size.Mul(p.BestBid), true
}

// afterFee deducts the fee from an amount: amount - amount*rate.
func afterFee(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Sub(amount.Mul(rate))
}

// roundToIncrement rounds amount down to a multiple of increment:
// floor(amount/increment)*increment. A non-positive increment leaves the
// amount untouched.
func roundToIncrement(amount, increment decimal.Decimal) decimal.Decimal {
	if !increment.IsPositive() {
		return amount
	}
	return amount.Div(increment).Floor().Mul(increment)
}
