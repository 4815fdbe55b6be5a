package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tradehall/auctionbot/internal/domain"
)

// summaryKey stores the ID of the pinned summary message so the dispatcher
// can keep editing the same message across restarts.
const summaryKey = "summary:message_id"

// SummaryState implements domain.SummaryState on a single Redis key.
type SummaryState struct {
	rdb *redis.Client
}

// NewSummaryState creates a SummaryState backed by the given Client.
func NewSummaryState(c *Client) *SummaryState {
	return &SummaryState{rdb: c.Underlying()}
}

// Get returns the stored summary message ID, or "" when none has been
// recorded yet.
func (s *SummaryState) Get(ctx context.Context) (string, error) {
	id, err := s.rdb.Get(ctx, summaryKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis: get summary message id: %w", err)
	}
	return id, nil
}

// Set records the summary message ID. The key has no TTL; the summary
// message lives as long as the channel does.
func (s *SummaryState) Set(ctx context.Context, messageID string) error {
	if err := s.rdb.Set(ctx, summaryKey, messageID, 0).Err(); err != nil {
		return fmt.Errorf("redis: set summary message id: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SummaryState = (*SummaryState)(nil)
