// Package domain defines the core data model shared by every stage of the
// arbitrage pipeline: order books, market-data events, symbol constraints,
// detected chances, and order commands.
package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+volume entry on one side of an order book.
// A volume of zero in a delta means "remove this price level".
type PriceLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// PriceVolumeMap is an ordered mapping from price to volume, keys unique,
// sorted by price ascending. The zero value is an empty, usable map.
type PriceVolumeMap struct {
	levels []PriceLevel
}

// NewPriceVolumeMap builds a map from the given levels. Input levels need not
// be sorted; duplicate prices keep the last volume seen.
func NewPriceVolumeMap(levels []PriceLevel) PriceVolumeMap {
	var m PriceVolumeMap
	for _, lvl := range levels {
		m.Set(lvl.Price, lvl.Volume)
	}
	return m
}

// search returns the insertion index for price and whether it is present.
func (m *PriceVolumeMap) search(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(m.levels), func(i int) bool {
		return m.levels[i].Price.GreaterThanOrEqual(price)
	})
	return i, i < len(m.levels) && m.levels[i].Price.Equal(price)
}

// Set upserts price -> volume, keeping ascending price order.
func (m *PriceVolumeMap) Set(price, volume decimal.Decimal) {
	i, ok := m.search(price)
	if ok {
		m.levels[i].Volume = volume
		return
	}
	m.levels = append(m.levels, PriceLevel{})
	copy(m.levels[i+1:], m.levels[i:])
	m.levels[i] = PriceLevel{Price: price, Volume: volume}
}

// Delete removes the level at price. Deleting an absent price is a no-op; the
// return value reports whether a level was removed.
func (m *PriceVolumeMap) Delete(price decimal.Decimal) bool {
	i, ok := m.search(price)
	if !ok {
		return false
	}
	m.levels = append(m.levels[:i], m.levels[i+1:]...)
	return true
}

// Get returns the volume stored at price.
func (m *PriceVolumeMap) Get(price decimal.Decimal) (decimal.Decimal, bool) {
	i, ok := m.search(price)
	if !ok {
		return decimal.Decimal{}, false
	}
	return m.levels[i].Volume, true
}

// Min returns the lowest-priced level (the best ask when this is the ask side).
func (m *PriceVolumeMap) Min() (PriceLevel, bool) {
	if len(m.levels) == 0 {
		return PriceLevel{}, false
	}
	return m.levels[0], true
}

// Max returns the highest-priced level (the best bid when this is the bid side).
func (m *PriceVolumeMap) Max() (PriceLevel, bool) {
	if len(m.levels) == 0 {
		return PriceLevel{}, false
	}
	return m.levels[len(m.levels)-1], true
}

// Len returns the number of price levels.
func (m *PriceVolumeMap) Len() int { return len(m.levels) }

// Levels returns the levels in ascending price order. The returned slice is a
// copy and safe to retain.
func (m *PriceVolumeMap) Levels() []PriceLevel {
	out := make([]PriceLevel, len(m.levels))
	copy(out, m.levels)
	return out
}

// Clone returns a deep copy.
func (m *PriceVolumeMap) Clone() PriceVolumeMap {
	return PriceVolumeMap{levels: m.Levels()}
}

// Orderbook is one trading pair's bid and ask sides plus the sequence number
// of the last applied update. Ask.Min() is the best ask, Bid.Max() the best
// bid.
type Orderbook struct {
	Ask      PriceVolumeMap
	Bid      PriceVolumeMap
	Sequence uint64
}

// Clone returns a deep copy of the book.
func (b *Orderbook) Clone() *Orderbook {
	return &Orderbook{
		Ask:      b.Ask.Clone(),
		Bid:      b.Bid.Clone(),
		Sequence: b.Sequence,
	}
}

// TopOfBook is the best bid/ask with their volumes, captured at one point in
// time.
type TopOfBook struct {
	Symbol    string
	BestAsk   decimal.Decimal
	AskVolume decimal.Decimal
	BestBid   decimal.Decimal
	BidVolume decimal.Decimal
}

// Top extracts the top of book. ok is false when either side is empty.
func (b *Orderbook) Top(symbol string) (TopOfBook, bool) {
	ask, okAsk := b.Ask.Min()
	bid, okBid := b.Bid.Max()
	if !okAsk || !okBid {
		return TopOfBook{}, false
	}
	return TopOfBook{
		Symbol:    symbol,
		BestAsk:   ask.Price,
		AskVolume: ask.Volume,
		BestBid:   bid.Price,
		BidVolume: bid.Volume,
	}, true
}
