package domain

import "time"

// Bid is one row of the append-only bid history. The auction row itself
// carries the winning bid; this log exists for audit and user reports.
type Bid struct {
	ID        int64
	AuctionID string
	BidderID  string
	Amount    float64
	CreatedAt time.Time
}
