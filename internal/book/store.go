package book

import (
	"fmt"
	"sync"

	"github.com/alphasquare/triarb/internal/domain"
)

// Store holds the full order book replica: symbol -> Orderbook. A single
// exclusive lock guards the whole map; merges are O(delta size), so the lock
// is never held long, and the one lock acquisition is what gives the
// calculator a consistent cross-symbol snapshot. The lock is never held
// across anything that blocks.
type Store struct {
	mu    sync.Mutex
	books map[string]*domain.Orderbook
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{books: make(map[string]*domain.Orderbook)}
}

// Insert installs a full snapshot for symbol, replacing any existing book.
// The store takes ownership of the snapshot.
func (s *Store) Insert(symbol string, snapshot *domain.Orderbook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[symbol] = snapshot
}

// Contains reports whether symbol has been initialized with a snapshot.
func (s *Store) Contains(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.books[symbol]
	return ok
}

// Get returns a deep copy of the symbol's book, so callers can read it
// without holding the store lock.
func (s *Store) Get(symbol string) (*domain.Orderbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[symbol]
	if !ok {
		return nil, fmt.Errorf("book: get %s: %w", symbol, domain.ErrUnknownSymbol)
	}
	return b.Clone(), nil
}

// Merge applies a delta to the symbol's stored book under the store lock and
// returns a copy of the updated book when the delta changed anything.
func (s *Store) Merge(symbol string, delta *domain.Orderbook, deltaStart uint64) (MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.books[symbol]
	if !ok {
		return MergeResult{}, fmt.Errorf("book: merge %s: %w", symbol, domain.ErrBookNotInitialized)
	}
	res, err := Merge(current, delta, deltaStart)
	if err != nil {
		return MergeResult{}, fmt.Errorf("book: merge %s: %w", symbol, err)
	}
	if res.Updated != nil {
		res.Updated = res.Updated.Clone()
	}
	return res, nil
}

// Tops returns the top of book for each requested symbol under one lock
// acquisition, so the three books of a triangle are observed consistently.
// ok is false when any symbol is missing or has an empty side; that is the
// expected startup condition, not an error.
func (s *Store) Tops(symbols ...string) ([]domain.TopOfBook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TopOfBook, 0, len(symbols))
	for _, sym := range symbols {
		b, found := s.books[sym]
		if !found {
			return nil, false
		}
		top, hasTop := b.Top(sym)
		if !hasTop {
			return nil, false
		}
		out = append(out, top)
	}
	return out, true
}

// Symbols returns the symbols currently initialized, in no particular order.
func (s *Store) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.books))
	for sym := range s.books {
		out = append(out, sym)
	}
	return out
}
