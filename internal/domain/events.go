package domain

import "time"

// Event bus channels.
const (
	ChannelAuctionCreated = "auctions.created"
	ChannelAuctionBid     = "auctions.bid"
	ChannelAuctionClosed  = "auctions.closed"
)

// AuctionEvent is the JSON payload published on the event bus for every
// lifecycle transition.
type AuctionEvent struct {
	Type       string        `json:"type"`
	AuctionID  string        `json:"auction_id"`
	SellerID   string        `json:"seller_id"`
	ItemName   string        `json:"item_name"`
	Status     AuctionStatus `json:"status"`
	Price      float64       `json:"price,omitempty"`
	BidderID   string        `json:"bidder_id,omitempty"`
	ExpiresAt  time.Time     `json:"expires_at"`
	OccurredAt time.Time     `json:"occurred_at"`
}
