package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alphasquare/triarb/internal/book"
	"github.com/alphasquare/triarb/internal/config"
	"github.com/alphasquare/triarb/internal/domain"
	"github.com/alphasquare/triarb/internal/exchange/kucoin"
	"github.com/alphasquare/triarb/internal/journal"
	jpostgres "github.com/alphasquare/triarb/internal/journal/postgres"
	"github.com/alphasquare/triarb/internal/ratelimit"
	tredis "github.com/alphasquare/triarb/internal/telemetry/redis"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Exchange *kucoin.Client
	Store    *book.Store
	Limiter  ratelimit.Limiter

	// Symbol universe, frozen at startup.
	Symbols      map[string]domain.SymbolInfo
	Triangles    []domain.Triangle
	WatchSymbols []string

	Budget decimal.Decimal

	// Optional collaborators; nil when disabled in config.
	Journal   journal.Writer
	Telemetry *tredis.Publisher
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Validate already checked these parse.
	feeRate, err := decimal.NewFromString(cfg.Kucoin.FeeRate)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: fee_rate: %w", err)
	}
	budget, err := decimal.NewFromString(cfg.Trading.Budget)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: budget: %w", err)
	}

	deps := &Dependencies{
		Store:  book.NewStore(),
		Budget: budget,
	}

	// --- KuCoin REST client and symbol universe ---
	deps.Exchange = kucoin.NewClient(kucoin.ClientConfig{
		Key:        cfg.Kucoin.Key,
		Secret:     cfg.Kucoin.Secret,
		Passphrase: cfg.Kucoin.Passphrase,
		BaseURL:    cfg.Kucoin.BaseURL,
		FeeRate:    feeRate,
	}, logger)

	infos, err := deps.Exchange.Symbols(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: fetch symbols: %w", err)
	}
	deps.Symbols, deps.Triangles, deps.WatchSymbols = buildUniverse(
		infos, cfg.Trading.BaseCurrency, cfg.Trading.QuoteCurrency, cfg.Trading.Coins,
	)
	if len(deps.Triangles) == 0 {
		cleanup()
		return nil, nil, fmt.Errorf("wire: no tradable triangles for %s/%s",
			cfg.Trading.BaseCurrency, cfg.Trading.QuoteCurrency)
	}
	logger.Info("symbol universe frozen",
		slog.Int("pairs", len(deps.Symbols)),
		slog.Int("triangles", len(deps.Triangles)),
	)

	// --- Redis (optional): telemetry plus distributed rate limiting ---
	if cfg.Redis.Enabled {
		tel, err := tredis.New(ctx, tredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, tel.Close)
		deps.Telemetry = tel
		deps.Limiter = ratelimit.NewRedis(tel.Client())
	} else {
		deps.Limiter = ratelimit.NewMemory()
	}

	// --- Postgres journal (optional) ---
	if cfg.Postgres.Enabled {
		store, err := jpostgres.New(ctx, cfg.Postgres.DSN, cfg.Postgres.PoolMaxConns)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, store.Close)
		deps.Journal = store
	}

	return deps, cleanup, nil
}

// buildUniverse derives every complete triangle from the exchange's pair list:
// a coin X qualifies when both X-B and X-Q trade, alongside the B-Q pair
// itself. coins, when non-empty, whitelists the X currencies.
func buildUniverse(infos []domain.SymbolInfo, base, quote string, coins []string) (map[string]domain.SymbolInfo, []domain.Triangle, []string) {
	bySymbol := make(map[string]domain.SymbolInfo, len(infos))
	for _, info := range infos {
		bySymbol[info.Symbol] = info
	}

	bq := domain.PairSymbol(base, quote)
	if _, ok := bySymbol[bq]; !ok {
		return nil, nil, nil
	}

	whitelist := make(map[string]bool, len(coins))
	for _, c := range coins {
		whitelist[c] = true
	}

	var triangles []domain.Triangle
	universe := map[string]domain.SymbolInfo{bq: bySymbol[bq]}
	for _, info := range infos {
		// X-B pairs drive discovery; the matching X-Q pair completes the
		// triangle.
		if info.QuoteCurrency != base {
			continue
		}
		coin := info.BaseCurrency
		if coin == quote {
			continue
		}
		if len(whitelist) > 0 && !whitelist[coin] {
			continue
		}
		xq, ok := bySymbol[domain.PairSymbol(coin, quote)]
		if !ok {
			continue
		}
		universe[info.Symbol] = info
		universe[xq.Symbol] = xq
		triangles = append(triangles, domain.Triangle{
			Coin: coin,
			BQ:   bq,
			XB:   info.Symbol,
			XQ:   xq.Symbol,
		})
	}

	watch := make([]string, 0, len(universe))
	for symbol := range universe {
		watch = append(watch, symbol)
	}
	sort.Strings(watch)

	return universe, triangles, watch
}
