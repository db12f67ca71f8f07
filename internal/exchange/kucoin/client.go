// Package kucoin wraps the exchange API behind the narrow interfaces the
// pipeline consumes: symbol constraints, order-book snapshots, balances, and
// order placement over REST, plus the level-2 market-data WebSocket session.
package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	kucoinsdk "github.com/Kucoin/kucoin-go-sdk"
	"github.com/shopspring/decimal"

	"github.com/alphasquare/triarb/internal/domain"
)

// ClientConfig holds the REST credentials and endpoint.
type ClientConfig struct {
	Key        string
	Secret     string
	Passphrase string
	BaseURL    string
	// FeeRate is applied to every pair; KuCoin's symbol endpoint does not
	// carry fees, so the taker rate comes from configuration.
	FeeRate decimal.Decimal
}

// Client is the REST collaborator. The underlying SDK manages request signing
// and its own HTTP timeouts; the context parameters bound the retries the
// callers perform, not the individual SDK calls.
type Client struct {
	api     *kucoinsdk.ApiService
	feeRate decimal.Decimal
	logger  *slog.Logger
}

// NewClient creates a REST client from credentials.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	opts := []kucoinsdk.ApiServiceOption{
		kucoinsdk.ApiKeyOption(cfg.Key),
		kucoinsdk.ApiSecretOption(cfg.Secret),
		kucoinsdk.ApiPassPhraseOption(cfg.Passphrase),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, kucoinsdk.ApiBaseURIOption(cfg.BaseURL))
	}
	return &Client{
		api:     kucoinsdk.NewApiService(opts...),
		feeRate: cfg.FeeRate,
		logger:  logger.With(slog.String("component", "kucoin_client")),
	}
}

// Symbols fetches the tradable pair list and converts it to SymbolInfo,
// skipping pairs with trading disabled.
func (c *Client) Symbols(ctx context.Context) ([]domain.SymbolInfo, error) {
	rsp, err := c.api.Symbols("")
	if err != nil {
		return nil, fmt.Errorf("kucoin: symbols: %w", err)
	}
	var models kucoinsdk.SymbolsModel
	if err := rsp.ReadData(&models); err != nil {
		return nil, fmt.Errorf("kucoin: symbols: read: %w", err)
	}

	infos := make([]domain.SymbolInfo, 0, len(models))
	for _, m := range models {
		if !m.EnableTrading {
			continue
		}
		minSize, err := decimal.NewFromString(m.BaseMinSize)
		if err != nil {
			c.logger.Warn("skipping symbol with bad base min size",
				slog.String("symbol", m.Symbol),
				slog.String("base_min_size", m.BaseMinSize),
			)
			continue
		}
		increment, err := decimal.NewFromString(m.BaseIncrement)
		if err != nil {
			c.logger.Warn("skipping symbol with bad base increment",
				slog.String("symbol", m.Symbol),
				slog.String("base_increment", m.BaseIncrement),
			)
			continue
		}
		priceIncrement, err := decimal.NewFromString(m.PriceIncrement)
		if err != nil {
			c.logger.Warn("skipping symbol with bad price increment",
				slog.String("symbol", m.Symbol),
				slog.String("price_increment", m.PriceIncrement),
			)
			continue
		}
		infos = append(infos, domain.SymbolInfo{
			Symbol:         m.Symbol,
			BaseCurrency:   m.BaseCurrency,
			QuoteCurrency:  m.QuoteCurrency,
			BaseMinSize:    minSize,
			BaseIncrement:  increment,
			PriceIncrement: priceIncrement,
			FeeRate:        c.feeRate,
		})
	}
	return infos, nil
}

// OrderbookSnapshot fetches the aggregated level-2 book for symbol over REST.
func (c *Client) OrderbookSnapshot(ctx context.Context, symbol string) (*domain.Orderbook, error) {
	rsp, err := c.api.AggregatedPartOrderBook(symbol, 100)
	if err != nil {
		return nil, fmt.Errorf("kucoin: snapshot %s: %w", symbol, err)
	}
	// The API serves the sequence as a string on some endpoints and a number
	// on others; json.Number accepts both.
	var model struct {
		Sequence json.Number `json:"sequence"`
		Bids     [][]string  `json:"bids"`
		Asks     [][]string  `json:"asks"`
	}
	if err := rsp.ReadData(&model); err != nil {
		return nil, fmt.Errorf("kucoin: snapshot %s: read: %w", symbol, err)
	}

	seq, err := strconv.ParseUint(model.Sequence.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("kucoin: snapshot %s: sequence %q: %w", symbol, model.Sequence, err)
	}
	askLevels, err := parseBookSide(model.Asks)
	if err != nil {
		return nil, fmt.Errorf("kucoin: snapshot %s: %w", symbol, err)
	}
	bidLevels, err := parseBookSide(model.Bids)
	if err != nil {
		return nil, fmt.Errorf("kucoin: snapshot %s: %w", symbol, err)
	}

	return &domain.Orderbook{
		Ask:      domain.NewPriceVolumeMap(askLevels),
		Bid:      domain.NewPriceVolumeMap(bidLevels),
		Sequence: seq,
	}, nil
}

// AvailableBalance returns the available (not held) balance of the trade
// account for the given currency. A currency with no account reports zero.
func (c *Client) AvailableBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	rsp, err := c.api.Accounts(currency, "trade")
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("kucoin: accounts %s: %w", currency, err)
	}
	var accounts kucoinsdk.AccountsModel
	if err := rsp.ReadData(&accounts); err != nil {
		return decimal.Decimal{}, fmt.Errorf("kucoin: accounts %s: read: %w", currency, err)
	}

	total := decimal.Zero
	for _, a := range accounts {
		available, err := decimal.NewFromString(a.Available)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("kucoin: accounts %s: available %q: %w", currency, a.Available, err)
		}
		total = total.Add(available)
	}
	return total, nil
}

// OpenOrderCount returns the number of currently active orders.
func (c *Client) OpenOrderCount(ctx context.Context) (int, error) {
	rsp, err := c.api.Orders(map[string]string{"status": "active"}, &kucoinsdk.PaginationParam{CurrentPage: 1, PageSize: 1})
	if err != nil {
		return 0, fmt.Errorf("kucoin: open orders: %w", err)
	}
	var orders kucoinsdk.OrdersModel
	pagination, err := rsp.ReadPaginationData(&orders)
	if err != nil {
		return 0, fmt.Errorf("kucoin: open orders: read: %w", err)
	}
	return int(pagination.TotalNum), nil
}

// PlaceOrder submits the command as a limit or market order and returns the
// exchange order ID. The command's ClientOID doubles as the idempotency key.
func (c *Client) PlaceOrder(ctx context.Context, cmd domain.OrderCommand) (domain.OrderResult, error) {
	model := &kucoinsdk.CreateOrderModel{
		ClientOid: cmd.ClientOID,
		Side:      string(cmd.Side),
		Symbol:    cmd.Symbol,
		Size:      cmd.Volume.String(),
	}
	switch cmd.Kind {
	case domain.OrderKindLimit:
		model.Type = "limit"
		model.Price = cmd.Price.String()
	case domain.OrderKindMarket:
		model.Type = "market"
	default:
		return domain.OrderResult{}, fmt.Errorf("kucoin: place order: unsupported kind %q", cmd.Kind)
	}

	rsp, err := c.api.CreateOrder(model)
	if err != nil {
		return domain.OrderResult{ClientOID: cmd.ClientOID, Message: err.Error()}, fmt.Errorf("kucoin: place order %s: %w", cmd.ClientOID, err)
	}
	var result kucoinsdk.CreateOrderResultModel
	if err := rsp.ReadData(&result); err != nil {
		return domain.OrderResult{ClientOID: cmd.ClientOID, Message: err.Error()}, fmt.Errorf("kucoin: place order %s: read: %w", cmd.ClientOID, err)
	}

	return domain.OrderResult{
		ClientOID: cmd.ClientOID,
		OrderID:   result.OrderId,
		Success:   true,
	}, nil
}

// OrderStatus reports whether the order is still resting and how much base
// size has dealt so far.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (active bool, dealSize decimal.Decimal, err error) {
	rsp, err := c.api.Order(orderID)
	if err != nil {
		return false, decimal.Decimal{}, fmt.Errorf("kucoin: order %s: %w", orderID, err)
	}
	var model kucoinsdk.OrderModel
	if err := rsp.ReadData(&model); err != nil {
		return false, decimal.Decimal{}, fmt.Errorf("kucoin: order %s: read: %w", orderID, err)
	}
	dealt, err := decimal.NewFromString(model.DealSize)
	if err != nil {
		return false, decimal.Decimal{}, fmt.Errorf("kucoin: order %s: deal size %q: %w", orderID, model.DealSize, err)
	}
	return model.IsActive, dealt, nil
}

// CancelOrder cancels an order by exchange ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	rsp, err := c.api.CancelOrder(orderID)
	if err != nil {
		return fmt.Errorf("kucoin: cancel order %s: %w", orderID, err)
	}
	var result kucoinsdk.CancelOrderResultModel
	if err := rsp.ReadData(&result); err != nil {
		return fmt.Errorf("kucoin: cancel order %s: read: %w", orderID, err)
	}
	return nil
}

// WebSocketEndpoint fetches a public WS token and returns the endpoint URL,
// the composed connect URL query token, and the server's ping interval in
// milliseconds.
func (c *Client) WebSocketEndpoint(ctx context.Context) (endpoint, token string, pingIntervalMs int64, err error) {
	rsp, err := c.api.WebSocketPublicToken()
	if err != nil {
		return "", "", 0, fmt.Errorf("kucoin: ws token: %w", err)
	}
	var tk kucoinsdk.WebSocketTokenModel
	if err := rsp.ReadData(&tk); err != nil {
		return "", "", 0, fmt.Errorf("kucoin: ws token: read: %w", err)
	}
	if len(tk.Servers) == 0 {
		return "", "", 0, fmt.Errorf("kucoin: ws token: no servers advertised")
	}
	srv := tk.Servers[0]
	return srv.Endpoint, tk.Token, srv.PingInterval, nil
}
