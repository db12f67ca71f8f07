package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderKind is the closed set of supported order kinds, dispatched by switch.
type OrderKind string

const (
	OrderKindLimit  OrderKind = "limit"
	OrderKindMarket OrderKind = "market"
	// OrderKindCancel instructs the execution task to cancel the resting
	// order identified by OrderID.
	OrderKindCancel OrderKind = "cancel"
)

// OrderCommand instructs the execution task to submit (or cancel) one order.
// Price is ignored for market orders; OrderID is only set for cancels.
type OrderCommand struct {
	ClientOID string // UUID, also the exchange idempotency key
	Kind      OrderKind
	Symbol    string
	Side      OrderSide
	Price     decimal.Decimal
	Volume    decimal.Decimal
	OrderID   string // exchange ID of the order to cancel
	ChanceID  string // the chance this leg belongs to
	LegIndex  int    // 0..2 within the cycle
	CreatedAt time.Time
}

// OrderResult is the exchange's response to an order submission.
type OrderResult struct {
	ClientOID string
	OrderID   string
	Success   bool
	Message   string
}
