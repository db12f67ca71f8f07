package bus

import (
	"context"
	"fmt"

	"github.com/alphasquare/triarb/internal/domain"
)

// Count drains ch, incrementing c once per value, until ctx is cancelled or
// the channel closes (fatal, like every other task). It is the monitor's tap
// on a bus: subscribing a counter alongside the real consumer measures
// throughput without touching the consumer's channel.
func Count[T any](ctx context.Context, ch <-chan T, c *domain.Counter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return fmt.Errorf("bus: count %s: %w", c.Name, domain.ErrBusClosed)
			}
			c.Add()
		}
	}
}
