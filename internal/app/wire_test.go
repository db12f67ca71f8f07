package app

import (
	"testing"

	"github.com/alphasquare/triarb/internal/domain"
)

func pair(symbol, base, quote string) domain.SymbolInfo {
	return domain.SymbolInfo{Symbol: symbol, BaseCurrency: base, QuoteCurrency: quote}
}

func TestBuildUniverse(t *testing.T) {
	infos := []domain.SymbolInfo{
		pair("BTC-USDT", "BTC", "USDT"),
		pair("ETH-BTC", "ETH", "BTC"),
		pair("ETH-USDT", "ETH", "USDT"),
		pair("XRP-BTC", "XRP", "BTC"),
		pair("XRP-USDT", "XRP", "USDT"),
		pair("DOGE-BTC", "DOGE", "BTC"), // no DOGE-USDT, incomplete
		pair("ADA-USDT", "ADA", "USDT"), // no ADA-BTC, incomplete
		pair("ETH-EUR", "ETH", "EUR"),   // foreign quote
	}

	symbols, triangles, watch := buildUniverse(infos, "BTC", "USDT", nil)

	if len(triangles) != 2 {
		t.Fatalf("triangles = %d, want ETH and XRP", len(triangles))
	}
	coins := map[string]bool{}
	for _, tri := range triangles {
		coins[tri.Coin] = true
		if tri.BQ != "BTC-USDT" {
			t.Errorf("triangle %s BQ = %s", tri.Coin, tri.BQ)
		}
	}
	if !coins["ETH"] || !coins["XRP"] {
		t.Errorf("coins = %v, want ETH and XRP", coins)
	}

	wantWatch := []string{"BTC-USDT", "ETH-BTC", "ETH-USDT", "XRP-BTC", "XRP-USDT"}
	if len(watch) != len(wantWatch) {
		t.Fatalf("watch = %v, want %v", watch, wantWatch)
	}
	for i, s := range wantWatch {
		if watch[i] != s {
			t.Errorf("watch[%d] = %s, want %s", i, watch[i], s)
		}
		if _, ok := symbols[s]; !ok {
			t.Errorf("symbols missing %s", s)
		}
	}
	if _, ok := symbols["DOGE-BTC"]; ok {
		t.Error("incomplete triangle must not enter the universe")
	}
}

func TestBuildUniverseWhitelist(t *testing.T) {
	infos := []domain.SymbolInfo{
		pair("BTC-USDT", "BTC", "USDT"),
		pair("ETH-BTC", "ETH", "BTC"),
		pair("ETH-USDT", "ETH", "USDT"),
		pair("XRP-BTC", "XRP", "BTC"),
		pair("XRP-USDT", "XRP", "USDT"),
	}

	_, triangles, _ := buildUniverse(infos, "BTC", "USDT", []string{"ETH"})
	if len(triangles) != 1 || triangles[0].Coin != "ETH" {
		t.Errorf("triangles = %+v, want only ETH", triangles)
	}
}

func TestBuildUniverseMissingSharedPair(t *testing.T) {
	infos := []domain.SymbolInfo{
		pair("ETH-BTC", "ETH", "BTC"),
		pair("ETH-USDT", "ETH", "USDT"),
	}
	if _, triangles, _ := buildUniverse(infos, "BTC", "USDT", nil); len(triangles) != 0 {
		t.Errorf("no BTC-USDT pair, triangles = %+v, want none", triangles)
	}
}
