package kucoin

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alphasquare/triarb/internal/domain"
)

// wsMessageType values seen on the market-data socket.
const (
	wsTypeWelcome   = "welcome"
	wsTypeAck       = "ack"
	wsTypePing      = "ping"
	wsTypePong      = "pong"
	wsTypeMessage   = "message"
	wsTypeError     = "error"
	wsTypeSubscribe = "subscribe"
)

// level2Subject identifies incremental order-book updates on /market/level2.
const level2Subject = "trade.l2update"

// wsEnvelope is the outer frame of every message on the socket.
type wsEnvelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Subject string          `json:"subject,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// wsSubscribeCommand is the client->server subscribe frame.
type wsSubscribeCommand struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Topic          string `json:"topic"`
	PrivateChannel bool   `json:"privateChannel"`
	Response       bool   `json:"response"`
}

// level2Update is the payload of a trade.l2update message. Each change entry
// is [price, size, sequence]; a size of "0" removes the level, a price of "0"
// is a placeholder to be ignored.
type level2Update struct {
	SequenceStart uint64 `json:"sequenceStart"`
	SequenceEnd   uint64 `json:"sequenceEnd"`
	Symbol        string `json:"symbol"`
	Changes       struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
	} `json:"changes"`
}

// deltaEvent converts a level2 update into a ChangeReceived event carrying an
// Orderbook-shaped delta.
func (u *level2Update) deltaEvent() (domain.OrderbookEvent, error) {
	delta := &domain.Orderbook{Sequence: u.SequenceEnd}

	askLevels, err := parseChangeSide(u.Changes.Asks)
	if err != nil {
		return domain.OrderbookEvent{}, fmt.Errorf("kucoin: l2update %s asks: %w", u.Symbol, err)
	}
	bidLevels, err := parseChangeSide(u.Changes.Bids)
	if err != nil {
		return domain.OrderbookEvent{}, fmt.Errorf("kucoin: l2update %s bids: %w", u.Symbol, err)
	}
	delta.Ask = domain.NewPriceVolumeMap(askLevels)
	delta.Bid = domain.NewPriceVolumeMap(bidLevels)

	return domain.OrderbookEvent{
		Kind:          domain.OrderbookChangeReceived,
		Symbol:        u.Symbol,
		Book:          delta,
		SequenceStart: u.SequenceStart,
	}, nil
}

// parseChangeSide parses [price, size, ...] string tuples into price levels,
// skipping the zero-price placeholders the feed occasionally sends.
func parseChangeSide(entries [][]string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(entries))
	for _, e := range entries {
		if len(e) < 2 {
			return nil, fmt.Errorf("short change entry %v", e)
		}
		price, err := decimal.NewFromString(e[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", e[0], err)
		}
		if price.IsZero() {
			continue
		}
		volume, err := decimal.NewFromString(e[1])
		if err != nil {
			return nil, fmt.Errorf("volume %q: %w", e[1], err)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Volume: volume})
	}
	return levels, nil
}

// parseBookSide parses REST snapshot [price, size] tuples.
func parseBookSide(entries [][]string) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(entries))
	for _, e := range entries {
		if len(e) < 2 {
			return nil, fmt.Errorf("short book entry %v", e)
		}
		price, err := decimal.NewFromString(e[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", e[0], err)
		}
		volume, err := decimal.NewFromString(e[1])
		if err != nil {
			return nil, fmt.Errorf("volume %q: %w", e[1], err)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Volume: volume})
	}
	return levels, nil
}
