package domain

import "errors"

var (
	ErrBookNotInitialized = errors.New("orderbook not initialized")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrBusClosed          = errors.New("bus closed")
	ErrOrderBelowMinimum  = errors.New("order size below pair minimum")
)
