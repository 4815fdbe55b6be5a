package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// AuctionStore persists auctions. Every mutating operation is a single
// conditional statement: transitions out of `active` succeed for exactly one
// caller, and bid placement is guarded by the auction's version.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) error
	GetByID(ctx context.Context, id string) (Auction, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Auction, error)
	CountActive(ctx context.Context) (int64, error)
	ListBySeller(ctx context.Context, sellerID string, activeOnly bool) ([]Auction, error)
	CountActiveBySeller(ctx context.Context, sellerID string) (int64, error)
	CountCreatedSince(ctx context.Context, sellerID string, since time.Time) (int64, error)

	// PlaceBid records a new high bid iff the auction is still active and its
	// version matches expectedVersion. Returns the updated auction.
	// ErrStaleBid when the version moved, ErrNotActive when the auction left
	// the active state, ErrNotFound when the id is unknown.
	PlaceBid(ctx context.Context, id, bidderID string, amount float64, expectedVersion int64) (Auction, error)

	// BuyNow transitions an active auction with a BIN price straight to
	// sold_bin at that price.
	BuyNow(ctx context.Context, id, buyerID string) (Auction, error)

	// Withdraw transitions an active, bid-free auction to withdrawn.
	// ErrAuctionHasBids when a bid exists.
	Withdraw(ctx context.Context, id string) (Auction, error)

	// Close transitions an active auction to the given terminal status.
	// closed is false (with nil error) when the auction was already terminal,
	// making repeated sweeps a no-op.
	Close(ctx context.Context, id string, status AuctionStatus) (a Auction, closed bool, err error)

	// ListExpired returns active auctions whose end time is at or before asOf.
	ListExpired(ctx context.Context, asOf time.Time) ([]Auction, error)

	Extend(ctx context.Context, id string, delta time.Duration) (Auction, error)
	UpdateDetails(ctx context.Context, id, displayName, description string) (Auction, error)

	// ListTerminalBefore returns terminal auctions closed before the cutoff,
	// for archival.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Auction, error)
	Delete(ctx context.Context, id string) error

	Stats(ctx context.Context) (AuctionStats, error)
	SellerTotals(ctx context.Context, sellerID string) (sold int64, revenue float64, err error)
}

// BidStore persists the append-only bid history.
type BidStore interface {
	Append(ctx context.Context, bid Bid) error
	ListByAuction(ctx context.Context, auctionID string) ([]Bid, error)
	CountByBidder(ctx context.Context, bidderID string) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of admin and lifecycle events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
