package task

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alphasquare/triarb/internal/book"
	"github.com/alphasquare/triarb/internal/bus"
	"github.com/alphasquare/triarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func testBook(t *testing.T, seq uint64, asks, bids [][2]string) *domain.Orderbook {
	t.Helper()
	b := &domain.Orderbook{Sequence: seq}
	for _, a := range asks {
		b.Ask.Set(dec(t, a[0]), dec(t, a[1]))
	}
	for _, bd := range bids {
		b.Bid.Set(dec(t, bd[0]), dec(t, bd[1]))
	}
	return b
}

// recordingFetcher serves canned snapshots and records which symbols were
// refetched.
type recordingFetcher struct {
	snapshots map[string]*domain.Orderbook
	fetched   []string
}

func (f *recordingFetcher) OrderbookSnapshot(_ context.Context, symbol string) (*domain.Orderbook, error) {
	f.fetched = append(f.fetched, symbol)
	return f.snapshots[symbol].Clone(), nil
}

func drainOne[T any](t *testing.T, ch <-chan T) (T, bool) {
	t.Helper()
	select {
	case v := <-ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

func TestSyncSnapshotThenDelta(t *testing.T) {
	store := book.NewStore()
	out := bus.New[domain.OrderbookEvent]("merged", 8)
	merged := out.Subscribe()
	s := NewSync(nil, out, store, nil, testLogger())
	ctx := context.Background()

	snap := domain.OrderbookEvent{
		Kind:   domain.OrderbookReceived,
		Symbol: "ETH-BTC",
		Book:   testBook(t, 10, [][2]string{{"0.05", "5"}}, [][2]string{{"0.049", "4"}}),
	}
	if err := s.handle(ctx, snap); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	ev, ok := drainOne(t, merged)
	if !ok {
		t.Fatal("snapshot should be republished")
	}
	if ev.Kind != domain.OrderbookChangeReceived || ev.Symbol != "ETH-BTC" {
		t.Errorf("republished event = kind %d symbol %s", ev.Kind, ev.Symbol)
	}

	delta := domain.OrderbookEvent{
		Kind:          domain.OrderbookChangeReceived,
		Symbol:        "ETH-BTC",
		Book:          testBook(t, 11, [][2]string{{"0.05", "6"}}, nil),
		SequenceStart: 11,
	}
	if err := s.handle(ctx, delta); err != nil {
		t.Fatalf("delta: %v", err)
	}
	ev, ok = drainOne(t, merged)
	if !ok {
		t.Fatal("applied delta should be republished")
	}
	if ev.Book.Sequence != 11 {
		t.Errorf("published sequence = %d, want 11", ev.Book.Sequence)
	}
	if v, _ := ev.Book.Ask.Get(dec(t, "0.05")); !v.Equal(dec(t, "6")) {
		t.Errorf("published ask@0.05 = %s, want 6", v)
	}
}

func TestSyncStaleDeltaNotRepublished(t *testing.T) {
	store := book.NewStore()
	out := bus.New[domain.OrderbookEvent]("merged", 8)
	merged := out.Subscribe()
	s := NewSync(nil, out, store, nil, testLogger())
	ctx := context.Background()

	store.Insert("ETH-BTC", testBook(t, 10, [][2]string{{"0.05", "5"}}, [][2]string{{"0.049", "4"}}))

	stale := domain.OrderbookEvent{
		Kind:          domain.OrderbookChangeReceived,
		Symbol:        "ETH-BTC",
		Book:          testBook(t, 9, [][2]string{{"0.05", "1"}}, nil),
		SequenceStart: 9,
	}
	if err := s.handle(ctx, stale); err != nil {
		t.Fatalf("stale delta: %v", err)
	}
	if _, ok := drainOne(t, merged); ok {
		t.Error("stale delta must not be republished")
	}
}

func TestSyncDeltaBeforeSnapshotDropped(t *testing.T) {
	store := book.NewStore()
	out := bus.New[domain.OrderbookEvent]("merged", 8)
	merged := out.Subscribe()
	s := NewSync(nil, out, store, nil, testLogger())

	orphan := domain.OrderbookEvent{
		Kind:          domain.OrderbookChangeReceived,
		Symbol:        "ETH-BTC",
		Book:          testBook(t, 5, [][2]string{{"0.05", "1"}}, nil),
		SequenceStart: 5,
	}
	if err := s.handle(context.Background(), orphan); err != nil {
		t.Fatalf("orphan delta must be dropped, not fatal: %v", err)
	}
	if _, ok := drainOne(t, merged); ok {
		t.Error("orphan delta must not be republished")
	}
}

func TestSyncGapTriggersResync(t *testing.T) {
	store := book.NewStore()
	out := bus.New[domain.OrderbookEvent]("merged", 8)
	_ = out.Subscribe()
	fetcher := &recordingFetcher{snapshots: map[string]*domain.Orderbook{
		"ETH-BTC": testBook(t, 20, [][2]string{{"0.051", "2"}}, [][2]string{{"0.05", "2"}}),
	}}
	s := NewSync(nil, out, store, fetcher, testLogger())
	ctx := context.Background()

	store.Insert("ETH-BTC", testBook(t, 10, [][2]string{{"0.05", "5"}}, [][2]string{{"0.049", "4"}}))

	gapped := domain.OrderbookEvent{
		Kind:          domain.OrderbookChangeReceived,
		Symbol:        "ETH-BTC",
		Book:          testBook(t, 15, [][2]string{{"0.05", "1"}}, nil),
		SequenceStart: 14, // skips 11..13
	}
	if err := s.handle(ctx, gapped); err != nil {
		t.Fatalf("gapped delta: %v", err)
	}
	if len(fetcher.fetched) != 1 || fetcher.fetched[0] != "ETH-BTC" {
		t.Fatalf("fetched = %v, want one ETH-BTC resync", fetcher.fetched)
	}
	got, err := store.Get("ETH-BTC")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Sequence != 20 {
		t.Errorf("post-resync sequence = %d, want the fresh snapshot's 20", got.Sequence)
	}
}
