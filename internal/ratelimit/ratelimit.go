// Package ratelimit provides the sliding-window order admission limiter used
// by the gatekeeper. The in-memory limiter is the default; a Redis-backed
// variant is available when several processes must share one exchange quota.
package ratelimit

import (
	"context"
	"time"
)

// Limiter admits or rejects a request under a sliding-window rate limit.
type Limiter interface {
	// Allow reports whether a request for key is permitted under limit
	// requests per window. A permitted request is counted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
