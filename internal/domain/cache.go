package domain

import (
	"context"
	"time"
)

// RateLimiter bounds how often an action may happen per key inside a rolling
// window. Counters are not required to survive a Redis flush; the concurrent-
// auction cap is derived from the store and never goes through here.
type RateLimiter interface {
	// Allow returns true and counts the request when it fits the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides a coarse mutual-exclusion lock so the timer-driven
// sweep and a manually triggered cleanup do not run concurrently.
type LockManager interface {
	// Acquire returns an unlock func, or ErrLockHeld.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// EventBus carries auction lifecycle events to in-process and out-of-process
// subscribers (the websocket hub, presentation layers).
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// SummaryState persists the identifier of the continuously edited
// active-auction summary message so edits survive process restarts.
type SummaryState interface {
	Get(ctx context.Context) (messageID string, err error)
	Set(ctx context.Context, messageID string) error
}
