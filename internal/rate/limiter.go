// Package rate provides fixed-window rate limiting for credential-sensitive
// endpoints (login, password reset). Redis backs production deployments; the
// in-memory limiter serves dev and test.
package rate

import (
	"context"
	"time"
)

type Limiter interface {
	// Allow reports whether the call identified by key may proceed, and if
	// not, how long until the window resets.
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}
