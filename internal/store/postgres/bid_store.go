package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradehall/auctionbot/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL. Bid rows are an
// append-only history; the authoritative high bid lives on the auction row.
type BidStore struct {
	pool *pgxpool.Pool
}

// NewBidStore creates a new BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

// Append records a bid in the history.
func (s *BidStore) Append(ctx context.Context, b domain.Bid) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bids (auction_id, bidder_id, amount, created_at)
		VALUES ($1, $2, $3, $4)`,
		b.AuctionID, b.BidderID, b.Amount, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append bid on %s: %w", b.AuctionID, err)
	}
	return nil
}

// ListByAuction returns an auction's bids in chronological order.
func (s *BidStore) ListByAuction(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids WHERE auction_id = $1 ORDER BY created_at ASC, id ASC`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids for %s: %w", auctionID, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan bid for %s: %w", auctionID, err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids for %s: %w", auctionID, err)
	}
	return bids, nil
}

// CountByBidder returns how many bids the user has placed across all auctions.
func (s *BidStore) CountByBidder(ctx context.Context, bidderID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bids WHERE bidder_id = $1`, bidderID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count bids by %s: %w", bidderID, err)
	}
	return count, nil
}

var _ domain.BidStore = (*BidStore)(nil)
