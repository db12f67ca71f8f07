package domain

import "github.com/shopspring/decimal"

// OrderbookEventKind distinguishes full snapshots from incremental deltas.
type OrderbookEventKind int

const (
	// OrderbookReceived carries a full snapshot, sent once per symbol when the
	// feed first delivers (or re-delivers) the complete book.
	OrderbookReceived OrderbookEventKind = iota
	// OrderbookChangeReceived carries a delta: only the changed price levels
	// plus the new sequence number, in the same shape as a full book.
	OrderbookChangeReceived
)

// OrderbookEvent is a raw or normalized book event flowing through the
// pipeline. For deltas, SequenceStart is the first sequence number covered by
// the batch; Book.Sequence is the last. Snapshots leave SequenceStart zero.
type OrderbookEvent struct {
	Kind          OrderbookEventKind
	Symbol        string
	Book          *Orderbook
	SequenceStart uint64
}

// Fill is a confirmation that an order (or part of it) traded.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      OrderSide
	Price     decimal.Decimal
	Volume    decimal.Decimal
	ChanceID  string
	LegIndex  int
	Completed bool
}
