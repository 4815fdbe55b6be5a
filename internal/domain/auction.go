package domain

import (
	"fmt"
	"math"
	"time"
)

// AuctionStatus represents the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionStatusActive       AuctionStatus = "active"
	AuctionStatusSoldBIN      AuctionStatus = "sold_bin"
	AuctionStatusSoldBid      AuctionStatus = "sold_bid"
	AuctionStatusExpiredNoBid AuctionStatus = "expired_no_bid"
	AuctionStatusWithdrawn    AuctionStatus = "withdrawn"
)

// Terminal reports whether the status permits no further transitions.
func (s AuctionStatus) Terminal() bool {
	switch s {
	case AuctionStatusSoldBIN, AuctionStatusSoldBid, AuctionStatusExpiredNoBid, AuctionStatusWithdrawn:
		return true
	}
	return false
}

// Auction is a single listing. Version increments on every mutation and is
// the optimistic-concurrency token for bid placement.
type Auction struct {
	ID              string
	SellerID        string
	ItemName        string
	Quantity        int
	DisplayName     string
	Description     string
	ImageURL        string
	StartingPrice   float64
	CurrentBid      float64
	CurrentBidderID *string
	BINPrice        *float64
	CreatedAt       time.Time
	Duration        time.Duration
	ExpiresAt       time.Time
	ClosedAt        *time.Time
	Status          AuctionStatus
	Version         int64
	UpdatedAt       time.Time
}

// HasBid reports whether at least one bid has been accepted.
func (a *Auction) HasBid() bool {
	return a.CurrentBidderID != nil
}

// HighBid is the amount the next bid is measured against: the current bid
// once a bidder exists, otherwise the starting price.
func (a *Auction) HighBid() float64 {
	if a.HasBid() {
		return a.CurrentBid
	}
	return a.StartingPrice
}

// MinNextBid returns the smallest acceptable bid given the configured
// minimum increment (e.g. 0.10 for 10%). The threshold is rounded to whole
// cents so a bid equal to the displayed minimum always passes; 11 * 1.10 is
// not exactly representable in float64 and would otherwise reject $12.10.
func (a *Auction) MinNextBid(incrementPct float64) float64 {
	return math.Round(a.HighBid()*(1+incrementPct)*100) / 100
}

// FinalPrice is the settled price of a closed auction: the BIN price for a
// buyout, otherwise the current bid. Zero when there were no bids.
func (a *Auction) FinalPrice() float64 {
	if a.Status == AuctionStatusSoldBIN && a.BINPrice != nil {
		return *a.BINPrice
	}
	if a.HasBid() {
		return a.CurrentBid
	}
	return 0
}

// Expired reports whether the auction's end time has passed at the given
// instant. Status is not consulted.
func (a *Auction) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// TimeRemaining formats the time left until expiry, e.g. "2d 3h 10m".
func (a *Auction) TimeRemaining(now time.Time) string {
	if a.Expired(now) {
		return "expired"
	}
	remaining := a.ExpiresAt.Sub(now).Round(time.Minute)
	days := int(remaining / (24 * time.Hour))
	hours := int(remaining/time.Hour) % 24
	minutes := int(remaining/time.Minute) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// Title is the name shown in listings; falls back to the item name when the
// seller gave no display name.
func (a *Auction) Title() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.ItemName
}

// AuctionStats aggregates store-wide numbers for the admin stats report.
type AuctionStats struct {
	ByStatus      map[AuctionStatus]int64
	ActiveValue   float64
	UniqueSellers int64
	UniqueBidders int64
}

// UserReport summarises one user's auction activity for admin review.
type UserReport struct {
	UserID       string
	ActiveCount  int64
	CreatedLast  int64 // creations inside the rolling rate window
	TotalSold    int64
	TotalRevenue float64
	Active       []Auction
}

// SweepSummary is the result of one expiration sweep.
type SweepSummary struct {
	Scanned int
	Closed  int
	Failed  int
	Errors  []string
}
