// Package book owns the authoritative in-memory order-book replica per symbol
// and the merge engine that reconciles delta streams against it under the
// exchange's sequence-number protocol.
package book

import (
	"fmt"

	"github.com/alphasquare/triarb/internal/domain"
)

// MergeResult reports what a merge did to the stored book.
type MergeResult struct {
	// Updated is the post-merge book when at least one entry was applied, nil
	// when the whole delta was stale (network re-delivery). A nil Updated is
	// not an error; downstream consumers simply see nothing.
	Updated *domain.Orderbook
	// GapDetected is set when the delta's starting sequence skips past
	// current.Sequence+1. The merge still proceeds best-effort; the caller
	// decides whether to resync.
	GapDetected bool
	// GapFrom/GapTo delimit the missed sequence range when GapDetected.
	GapFrom, GapTo uint64
}

// Merge reconciles delta into current in place. Every (price, volume) entry of
// the delta is applied only if the delta's sequence is strictly greater than
// current.Sequence; stale entries are discarded, which makes re-application of
// an already-applied delta a no-op. A zero volume removes the price level.
// After processing, current.Sequence advances to max(current, delta).
//
// current must come from a previously inserted snapshot; merging into a nil
// book returns domain.ErrBookNotInitialized.
func Merge(current *domain.Orderbook, delta *domain.Orderbook, deltaStart uint64) (MergeResult, error) {
	if current == nil {
		return MergeResult{}, fmt.Errorf("book: merge: %w", domain.ErrBookNotInitialized)
	}
	if delta == nil {
		return MergeResult{}, fmt.Errorf("book: merge: nil delta")
	}

	var res MergeResult
	if deltaStart > current.Sequence+1 {
		res.GapDetected = true
		res.GapFrom = current.Sequence + 1
		res.GapTo = deltaStart - 1
	}

	applied := false
	if delta.Sequence > current.Sequence {
		applied = applySide(&current.Ask, &delta.Ask) || applied
		applied = applySide(&current.Bid, &delta.Bid) || applied
		current.Sequence = delta.Sequence
	}

	if applied {
		res.Updated = current
	}
	return res, nil
}

// applySide applies one side's delta entries and reports whether the side
// actually changed. Zero volume removes the level; removing an absent level
// does not count as a change.
func applySide(current, delta *domain.PriceVolumeMap) bool {
	changed := false
	for _, lvl := range delta.Levels() {
		if lvl.Volume.IsZero() {
			if current.Delete(lvl.Price) {
				changed = true
			}
			continue
		}
		if prev, ok := current.Get(lvl.Price); ok && prev.Equal(lvl.Volume) {
			continue
		}
		current.Set(lvl.Price, lvl.Volume)
		changed = true
	}
	return changed
}
