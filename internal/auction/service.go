// Package auction implements the listing lifecycle: creation with rate
// limits, bid and buyout validation, withdrawal, and the admin operations.
package auction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradehall/auctionbot/internal/domain"
)

// Config holds the lifecycle policy the service enforces.
type Config struct {
	MinIncrementPct   float64
	MinBid            float64
	MaxActivePerUser  int
	MaxCreatesPerHour int
	Durations         []time.Duration
	AdminTestDuration time.Duration
	SnipeWindow       time.Duration
	SnipeExtension    time.Duration
	SnipeCooldown     time.Duration
}

// Announcer receives lifecycle transitions for user-facing messaging. All
// calls are best effort; failures are logged and never roll back state.
type Announcer interface {
	AuctionCreated(ctx context.Context, a domain.Auction) error
	AuctionClosed(ctx context.Context, a domain.Auction) error
}

// Service coordinates the auction stores, the rate limiter, and the event
// bus. It owns every policy decision; the stores only enforce atomicity.
type Service struct {
	cfg       Config
	store     domain.AuctionStore
	bids      domain.BidStore
	audit     domain.AuditStore
	limiter   domain.RateLimiter
	bus       domain.EventBus
	announcer Announcer // may be nil
	isAdmin   func(userID string) bool
	snipe     *snipeGuard
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Service. bus and announcer may be nil, in which case events
// and announcements are skipped. isAdmin must not be nil.
func New(cfg Config, store domain.AuctionStore, bids domain.BidStore, audit domain.AuditStore, limiter domain.RateLimiter, bus domain.EventBus, announcer Announcer, isAdmin func(string) bool, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		bids:      bids,
		audit:     audit,
		limiter:   limiter,
		bus:       bus,
		announcer: announcer,
		isAdmin:   isAdmin,
		snipe:     newSnipeGuard(cfg.SnipeCooldown),
		logger:    logger.With(slog.String("component", "auction")),
		now:       time.Now,
	}
}

// SetClock overrides the service clock. Tests use it; production code never
// calls it.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateParams are the seller-supplied fields of a new listing.
type CreateParams struct {
	SellerID      string
	ItemName      string
	Quantity      int
	DisplayName   string
	Description   string
	ImageURL      string
	StartingPrice float64
	BINPrice      *float64
	Duration      time.Duration
}

// Create validates a new listing against the policy, applies the per-seller
// caps, and persists it. Admins bypass the hourly creation cap but not the
// concurrent-listing cap.
func (s *Service) Create(ctx context.Context, p CreateParams) (domain.Auction, error) {
	if err := s.validateCreate(p); err != nil {
		return domain.Auction{}, err
	}

	admin := s.isAdmin(p.SellerID)

	active, err := s.store.CountActiveBySeller(ctx, p.SellerID)
	if err != nil {
		return domain.Auction{}, err
	}
	if active >= int64(s.cfg.MaxActivePerUser) {
		return domain.Auction{}, fmt.Errorf("%w: you already have %d open auctions (max %d)",
			domain.ErrRateLimited, active, s.cfg.MaxActivePerUser)
	}

	if !admin {
		// The window slot is taken before the insert, so a create that then
		// fails at the store still counts against the hourly cap until the
		// window rolls over.
		allowed, err := s.limiter.Allow(ctx, "create:"+p.SellerID, s.cfg.MaxCreatesPerHour, time.Hour)
		if err != nil {
			return domain.Auction{}, err
		}
		if !allowed {
			return domain.Auction{}, fmt.Errorf("%w: at most %d auctions per hour",
				domain.ErrRateLimited, s.cfg.MaxCreatesPerHour)
		}
	}

	now := s.now().UTC()
	a := domain.Auction{
		ID:            uuid.New().String(),
		SellerID:      p.SellerID,
		ItemName:      strings.TrimSpace(p.ItemName),
		Quantity:      p.Quantity,
		DisplayName:   strings.TrimSpace(p.DisplayName),
		Description:   strings.TrimSpace(p.Description),
		ImageURL:      strings.TrimSpace(p.ImageURL),
		StartingPrice: p.StartingPrice,
		BINPrice:      p.BINPrice,
		CreatedAt:     now,
		Duration:      p.Duration,
		ExpiresAt:     now.Add(p.Duration),
		Status:        domain.AuctionStatusActive,
		Version:       1,
	}

	if err := s.store.Create(ctx, a); err != nil {
		return domain.Auction{}, err
	}

	s.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", a.ID),
		slog.String("seller_id", a.SellerID),
		slog.Float64("starting_price", a.StartingPrice),
		slog.Duration("duration", a.Duration),
	)

	s.auditLog(ctx, "auction.created", map[string]any{
		"auction_id": a.ID,
		"seller_id":  a.SellerID,
		"item":       a.ItemName,
		"starting":   a.StartingPrice,
	})
	s.publish(ctx, domain.ChannelAuctionCreated, domain.AuctionEvent{
		Type:       "created",
		AuctionID:  a.ID,
		SellerID:   a.SellerID,
		ItemName:   a.ItemName,
		Status:     a.Status,
		Price:      a.StartingPrice,
		ExpiresAt:  a.ExpiresAt,
		OccurredAt: now,
	})
	if s.announcer != nil {
		if err := s.announcer.AuctionCreated(ctx, a); err != nil {
			s.logger.WarnContext(ctx, "creation announcement failed",
				slog.String("auction_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return a, nil
}

// validateCreate checks the seller-supplied fields against the policy.
func (s *Service) validateCreate(p CreateParams) error {
	var problems []string

	if strings.TrimSpace(p.ItemName) == "" {
		problems = append(problems, "item name must not be empty")
	}
	if p.Quantity < 1 {
		problems = append(problems, "quantity must be at least 1")
	}
	if p.StartingPrice < s.cfg.MinBid {
		problems = append(problems, fmt.Sprintf("starting price must be at least $%.2f", s.cfg.MinBid))
	}
	if p.BINPrice != nil && *p.BINPrice < p.StartingPrice {
		problems = append(problems, "buy-it-now price must not be below the starting price")
	}
	if !s.durationAllowed(p.Duration, s.isAdmin(p.SellerID)) {
		problems = append(problems, fmt.Sprintf("duration %s is not an allowed listing length", p.Duration))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// durationAllowed checks the listing length against the whitelist. Admins may
// additionally pick the short test duration.
func (s *Service) durationAllowed(d time.Duration, admin bool) bool {
	for _, allowed := range s.cfg.Durations {
		if d == allowed {
			return true
		}
	}
	return admin && s.cfg.AdminTestDuration > 0 && d == s.cfg.AdminTestDuration
}

// PlaceBid validates and records a bid. The version of the auction the bidder
// saw guards against concurrent raises: losing the race yields ErrStaleBid
// rather than silently overwriting the higher bid.
func (s *Service) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (domain.Auction, error) {
	a, err := s.store.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}

	now := s.now().UTC()
	if a.Status != domain.AuctionStatusActive || a.Expired(now) {
		return domain.Auction{}, domain.ErrNotActive
	}
	if a.SellerID == bidderID {
		return domain.Auction{}, fmt.Errorf("%w: you cannot bid on your own auction", domain.ErrPermissionDenied)
	}
	if amount < s.cfg.MinBid {
		return domain.Auction{}, fmt.Errorf("%w: bids must be at least $%.2f", domain.ErrValidation, s.cfg.MinBid)
	}
	if min := a.MinNextBid(s.cfg.MinIncrementPct); amount < min {
		return domain.Auction{}, fmt.Errorf("%w: bid must be at least $%.2f (%.0f%% above $%.2f)",
			domain.ErrValidation, min, s.cfg.MinIncrementPct*100, a.HighBid())
	}
	if a.BINPrice != nil && amount >= *a.BINPrice {
		return domain.Auction{}, fmt.Errorf("%w: bid meets the buy-it-now price of $%.2f, use buy-it-now instead",
			domain.ErrValidation, *a.BINPrice)
	}

	updated, err := s.store.PlaceBid(ctx, auctionID, bidderID, amount, a.Version)
	if err != nil {
		return domain.Auction{}, err
	}

	s.logger.InfoContext(ctx, "bid placed",
		slog.String("auction_id", auctionID),
		slog.String("bidder_id", bidderID),
		slog.Float64("amount", amount),
	)

	// The bid history is informational; a failed append never unwinds the bid.
	if err := s.bids.Append(ctx, domain.Bid{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: now,
	}); err != nil {
		s.logger.WarnContext(ctx, "bid history append failed",
			slog.String("auction_id", auctionID),
			slog.String("error", err.Error()),
		)
	}

	updated = s.maybeExtendForSnipe(ctx, updated, now)

	s.publish(ctx, domain.ChannelAuctionBid, domain.AuctionEvent{
		Type:       "bid",
		AuctionID:  updated.ID,
		SellerID:   updated.SellerID,
		ItemName:   updated.ItemName,
		Status:     updated.Status,
		Price:      amount,
		BidderID:   bidderID,
		ExpiresAt:  updated.ExpiresAt,
		OccurredAt: now,
	})

	return updated, nil
}

// maybeExtendForSnipe pushes the end time out when a bid lands inside the
// snipe window, at most once per cooldown. Extension failure is logged and
// the bid stands.
func (s *Service) maybeExtendForSnipe(ctx context.Context, a domain.Auction, now time.Time) domain.Auction {
	if s.cfg.SnipeWindow <= 0 || s.cfg.SnipeExtension <= 0 {
		return a
	}
	if a.ExpiresAt.Sub(now) > s.cfg.SnipeWindow {
		return a
	}
	if !s.snipe.allow(a.ID, now) {
		return a
	}

	extended, err := s.store.Extend(ctx, a.ID, s.cfg.SnipeExtension)
	if err != nil {
		s.logger.WarnContext(ctx, "anti-snipe extension failed",
			slog.String("auction_id", a.ID),
			slog.String("error", err.Error()),
		)
		return a
	}
	s.snipe.record(a.ID, now)

	s.logger.InfoContext(ctx, "auction extended against sniping",
		slog.String("auction_id", a.ID),
		slog.Time("expires_at", extended.ExpiresAt),
	)
	return extended
}

// BuyNow settles an auction immediately at its BIN price.
func (s *Service) BuyNow(ctx context.Context, auctionID, buyerID string) (domain.Auction, error) {
	a, err := s.store.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}

	now := s.now().UTC()
	if a.Status != domain.AuctionStatusActive || a.Expired(now) {
		return domain.Auction{}, domain.ErrNotActive
	}
	if a.SellerID == buyerID {
		return domain.Auction{}, fmt.Errorf("%w: you cannot buy your own auction", domain.ErrPermissionDenied)
	}
	if a.BINPrice == nil {
		return domain.Auction{}, domain.ErrBINUnavailable
	}

	sold, err := s.store.BuyNow(ctx, auctionID, buyerID)
	if err != nil {
		return domain.Auction{}, err
	}

	s.logger.InfoContext(ctx, "auction bought out",
		slog.String("auction_id", auctionID),
		slog.String("buyer_id", buyerID),
		slog.Float64("price", sold.FinalPrice()),
	)

	if err := s.bids.Append(ctx, domain.Bid{
		AuctionID: auctionID,
		BidderID:  buyerID,
		Amount:    sold.FinalPrice(),
		CreatedAt: now,
	}); err != nil {
		s.logger.WarnContext(ctx, "bid history append failed",
			slog.String("auction_id", auctionID),
			slog.String("error", err.Error()),
		)
	}

	s.finishAuction(ctx, sold, now, "auction.sold_bin")
	return sold, nil
}

// Withdraw cancels a listing. Only the seller or an admin may withdraw, and
// only while no bid has been accepted.
func (s *Service) Withdraw(ctx context.Context, auctionID, requesterID string) (domain.Auction, error) {
	a, err := s.store.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	if a.SellerID != requesterID && !s.isAdmin(requesterID) {
		return domain.Auction{}, domain.ErrPermissionDenied
	}

	withdrawn, err := s.store.Withdraw(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}

	s.logger.InfoContext(ctx, "auction withdrawn",
		slog.String("auction_id", auctionID),
		slog.String("requester_id", requesterID),
	)

	s.finishAuction(ctx, withdrawn, s.now().UTC(), "auction.withdrawn")
	return withdrawn, nil
}

// Edit updates the display name and description of an active listing. Only
// the seller or an admin may edit; the economic fields are immutable.
func (s *Service) Edit(ctx context.Context, auctionID, requesterID, displayName, description string) (domain.Auction, error) {
	a, err := s.store.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	if a.SellerID != requesterID && !s.isAdmin(requesterID) {
		return domain.Auction{}, domain.ErrPermissionDenied
	}

	updated, err := s.store.UpdateDetails(ctx, auctionID, strings.TrimSpace(displayName), strings.TrimSpace(description))
	if err != nil {
		return domain.Auction{}, err
	}

	s.auditLog(ctx, "auction.edited", map[string]any{
		"auction_id":   auctionID,
		"requester_id": requesterID,
	})
	return updated, nil
}

// Extend lengthens an active listing. Admin only.
func (s *Service) Extend(ctx context.Context, auctionID, adminID string, delta time.Duration) (domain.Auction, error) {
	if !s.isAdmin(adminID) {
		return domain.Auction{}, domain.ErrPermissionDenied
	}
	if delta <= 0 {
		return domain.Auction{}, fmt.Errorf("%w: extension must be positive", domain.ErrValidation)
	}

	extended, err := s.store.Extend(ctx, auctionID, delta)
	if err != nil {
		return domain.Auction{}, err
	}

	s.auditLog(ctx, "auction.extended", map[string]any{
		"auction_id": auctionID,
		"admin_id":   adminID,
		"delta":      delta.String(),
	})
	return extended, nil
}

// ForceEnd closes an active auction immediately, settling to the current
// high bidder when one exists. Admin only.
func (s *Service) ForceEnd(ctx context.Context, auctionID, adminID string) (domain.Auction, error) {
	if !s.isAdmin(adminID) {
		return domain.Auction{}, domain.ErrPermissionDenied
	}

	a, err := s.store.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}

	status := domain.AuctionStatusExpiredNoBid
	if a.HasBid() {
		status = domain.AuctionStatusSoldBid
	}

	closed, ok, err := s.store.Close(ctx, auctionID, status)
	if err != nil {
		return domain.Auction{}, err
	}
	if !ok {
		return domain.Auction{}, domain.ErrNotActive
	}

	s.logger.InfoContext(ctx, "auction force-ended",
		slog.String("auction_id", auctionID),
		slog.String("admin_id", adminID),
		slog.String("status", string(closed.Status)),
	)

	s.finishAuction(ctx, closed, s.now().UTC(), "auction.force_ended")
	return closed, nil
}

// Get returns a single auction.
func (s *Service) Get(ctx context.Context, auctionID string) (domain.Auction, error) {
	return s.store.GetByID(ctx, auctionID)
}

// GetWithBids returns an auction and its chronological bid history.
func (s *Service) GetWithBids(ctx context.Context, auctionID string) (domain.Auction, []domain.Bid, error) {
	a, err := s.store.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, nil, err
	}
	bids, err := s.bids.ListByAuction(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, nil, err
	}
	return a, bids, nil
}

// ListActive returns the open listings, newest first.
func (s *Service) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	return s.store.ListActive(ctx, opts)
}

// ListBySeller returns a seller's listings.
func (s *Service) ListBySeller(ctx context.Context, sellerID string, activeOnly bool) ([]domain.Auction, error) {
	return s.store.ListBySeller(ctx, sellerID, activeOnly)
}

// Stats returns the store-wide aggregates. Admin only.
func (s *Service) Stats(ctx context.Context, adminID string) (domain.AuctionStats, error) {
	if !s.isAdmin(adminID) {
		return domain.AuctionStats{}, domain.ErrPermissionDenied
	}
	return s.store.Stats(ctx)
}

// UserReport assembles one user's auction activity. Admin only.
func (s *Service) UserReport(ctx context.Context, adminID, userID string) (domain.UserReport, error) {
	if !s.isAdmin(adminID) {
		return domain.UserReport{}, domain.ErrPermissionDenied
	}

	report := domain.UserReport{UserID: userID}

	var err error
	if report.ActiveCount, err = s.store.CountActiveBySeller(ctx, userID); err != nil {
		return domain.UserReport{}, err
	}
	if report.CreatedLast, err = s.store.CountCreatedSince(ctx, userID, s.now().Add(-time.Hour)); err != nil {
		return domain.UserReport{}, err
	}
	if report.TotalSold, report.TotalRevenue, err = s.store.SellerTotals(ctx, userID); err != nil {
		return domain.UserReport{}, err
	}
	if report.Active, err = s.store.ListBySeller(ctx, userID, true); err != nil {
		return domain.UserReport{}, err
	}

	return report, nil
}

// AuditTrail returns recent audit entries, newest first. Admin only.
func (s *Service) AuditTrail(ctx context.Context, adminID string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if !s.isAdmin(adminID) {
		return nil, domain.ErrPermissionDenied
	}
	return s.audit.List(ctx, opts)
}

// finishAuction performs the shared bookkeeping after any transition into a
// terminal state: audit, event, announcement, snipe-state cleanup.
func (s *Service) finishAuction(ctx context.Context, a domain.Auction, now time.Time, auditEvent string) {
	s.snipe.forget(a.ID)

	s.auditLog(ctx, auditEvent, map[string]any{
		"auction_id": a.ID,
		"status":     string(a.Status),
		"price":      a.FinalPrice(),
	})
	s.publish(ctx, domain.ChannelAuctionClosed, domain.AuctionEvent{
		Type:       "closed",
		AuctionID:  a.ID,
		SellerID:   a.SellerID,
		ItemName:   a.ItemName,
		Status:     a.Status,
		Price:      a.FinalPrice(),
		BidderID:   derefString(a.CurrentBidderID),
		ExpiresAt:  a.ExpiresAt,
		OccurredAt: now,
	})
	if s.announcer != nil {
		if err := s.announcer.AuctionClosed(ctx, a); err != nil {
			s.logger.WarnContext(ctx, "close announcement failed",
				slog.String("auction_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// auditLog appends an audit entry, logging instead of failing on error.
func (s *Service) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// publish emits an event on the bus, logging instead of failing on error.
func (s *Service) publish(ctx context.Context, channel string, ev domain.AuctionEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "event marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
