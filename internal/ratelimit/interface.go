package ratelimit

import "context"

// RateLimiter spaces out requests per key (usually a host name) so that
// feed polling, scraping and thumbnail downloads stay polite. In-memory and
// Redis-backed implementations exist for single and multi-instance deploys.
type RateLimiter interface {
	// Allow reports whether a request for key may go out now, and if so
	// records it.
	Allow(key string) bool
	// Wait blocks until a request for key may go out or ctx is done.
	Wait(ctx context.Context, key string) error
}
