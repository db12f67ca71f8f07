package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionInfo is one leg of a triangular cycle: a limit order at Price for
// Volume (base units) on Symbol. Actions are temporally ordered; index 0
// executes first.
type ActionInfo struct {
	Side   OrderSide
	Symbol string
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// TriangularArbitrageChance is one evaluated cyclic trade: exactly three
// actions and the quote-currency profit they would realize at the observed
// top of book. Constructed fresh per evaluation, consumed once by the
// gatekeeper.
type TriangularArbitrageChance struct {
	ID         string
	Profit     decimal.Decimal
	Actions    [3]ActionInfo
	DetectedAt time.Time
}

// Profitable reports whether the chance yields strictly positive profit.
func (c TriangularArbitrageChance) Profitable() bool {
	return c.Profit.IsPositive()
}
