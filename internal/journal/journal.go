// Package journal records detected chances and emitted orders for later
// inspection. Journaling is best-effort and optional: the trading pipeline
// carries no persisted state and works identically without it.
package journal

import (
	"context"

	"github.com/alphasquare/triarb/internal/domain"
)

// Writer is the journal interface the tasks write through.
type Writer interface {
	RecordChance(ctx context.Context, chance domain.TriangularArbitrageChance) error
	RecordOrder(ctx context.Context, cmd domain.OrderCommand, result domain.OrderResult) error
}
