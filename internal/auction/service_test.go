package auction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradehall/auctionbot/internal/domain"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		MinIncrementPct:   0.10,
		MinBid:            0.50,
		MaxActivePerUser:  5,
		MaxCreatesPerHour: 3,
		Durations:         []time.Duration{time.Hour, 24 * time.Hour},
		AdminTestDuration: 10 * time.Second,
		SnipeWindow:       5 * time.Minute,
		SnipeExtension:    5 * time.Minute,
		SnipeCooldown:     time.Minute,
	}
}

type fixture struct {
	svc     *Service
	store   *memStore
	bids    *memBids
	audit   *memAudit
	limiter *fakeLimiter
	bus     *memBus
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		store:   newMemStore(),
		bids:    &memBids{},
		audit:   &memAudit{},
		limiter: &fakeLimiter{allowed: true},
		bus:     newMemBus(),
	}
	isAdmin := func(userID string) bool { return userID == "admin" }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f.svc = New(cfg, f.store, f.bids, f.audit, f.limiter, f.bus, nil, isAdmin, logger)
	f.svc.SetClock(func() time.Time { return testNow })
	return f
}

func (f *fixture) seedActive(t *testing.T, id, sellerID string, starting float64, bin *float64) domain.Auction {
	t.Helper()

	a := domain.Auction{
		ID:            id,
		SellerID:      sellerID,
		ItemName:      "emerald",
		Quantity:      1,
		StartingPrice: starting,
		BINPrice:      bin,
		CreatedAt:     testNow.Add(-time.Hour),
		Duration:      24 * time.Hour,
		ExpiresAt:     testNow.Add(23 * time.Hour),
		Status:        domain.AuctionStatusActive,
		Version:       1,
	}
	f.store.put(a)
	return a
}

func validCreateParams() CreateParams {
	return CreateParams{
		SellerID:      "seller",
		ItemName:      "diamond block",
		Quantity:      4,
		StartingPrice: 10,
		Duration:      24 * time.Hour,
	}
}

func TestCreate_Valid(t *testing.T) {
	f := newFixture(t, testConfig())

	a, err := f.svc.Create(context.Background(), validCreateParams())
	require.NoError(t, err)

	require.NotEmpty(t, a.ID)
	require.Equal(t, domain.AuctionStatusActive, a.Status)
	require.Equal(t, int64(1), a.Version)
	require.Equal(t, testNow, a.CreatedAt)
	require.Equal(t, testNow.Add(24*time.Hour), a.ExpiresAt)
	require.Nil(t, a.CurrentBidderID)

	require.Contains(t, f.audit.events(), "auction.created")
	require.Equal(t, 1, f.bus.count(domain.ChannelAuctionCreated))
}

func TestCreate_CollectsValidationProblems(t *testing.T) {
	f := newFixture(t, testConfig())

	bin := 5.0
	_, err := f.svc.Create(context.Background(), CreateParams{
		SellerID:      "seller",
		ItemName:      "  ",
		Quantity:      0,
		StartingPrice: 10,
		BINPrice:      &bin,
		Duration:      7 * time.Minute,
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Contains(t, err.Error(), "item name must not be empty")
	require.Contains(t, err.Error(), "quantity must be at least 1")
	require.Contains(t, err.Error(), "buy-it-now price must not be below the starting price")
	require.Contains(t, err.Error(), "not an allowed listing length")
}

func TestCreate_StartingPriceFloor(t *testing.T) {
	f := newFixture(t, testConfig())

	p := validCreateParams()
	p.StartingPrice = 0.25
	_, err := f.svc.Create(context.Background(), p)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Contains(t, err.Error(), "starting price must be at least $0.50")
}

func TestCreate_AdminTestDuration(t *testing.T) {
	f := newFixture(t, testConfig())

	p := validCreateParams()
	p.Duration = 10 * time.Second
	_, err := f.svc.Create(context.Background(), p)
	require.ErrorIs(t, err, domain.ErrValidation)

	p.SellerID = "admin"
	a, err := f.svc.Create(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, testNow.Add(10*time.Second), a.ExpiresAt)
}

func TestCreate_ConcurrentCapAppliesToAdmins(t *testing.T) {
	f := newFixture(t, testConfig())

	for i := 0; i < 5; i++ {
		f.seedActive(t, string(rune('a'+i)), "admin", 10, nil)
	}

	p := validCreateParams()
	p.SellerID = "admin"
	_, err := f.svc.Create(context.Background(), p)
	require.ErrorIs(t, err, domain.ErrRateLimited)
	require.Contains(t, err.Error(), "open auctions")
}

func TestCreate_HourlyCap(t *testing.T) {
	f := newFixture(t, testConfig())
	f.limiter.allowed = false

	_, err := f.svc.Create(context.Background(), validCreateParams())
	require.ErrorIs(t, err, domain.ErrRateLimited)
	require.Equal(t, []string{"create:seller"}, f.limiter.calls)
}

func TestCreate_AdminBypassesHourlyCap(t *testing.T) {
	f := newFixture(t, testConfig())
	f.limiter.allowed = false

	p := validCreateParams()
	p.SellerID = "admin"
	_, err := f.svc.Create(context.Background(), p)
	require.NoError(t, err)
	require.Empty(t, f.limiter.calls, "limiter must not be consulted for admins")
}

func TestPlaceBid_FirstBidBoundary(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	_, err := f.svc.PlaceBid(context.Background(), "a1", "buyer", 10.99)
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Contains(t, err.Error(), "$11.00")

	a, err := f.svc.PlaceBid(context.Background(), "a1", "buyer", 11)
	require.NoError(t, err)
	require.Equal(t, 11.0, a.CurrentBid)
	require.Equal(t, "buyer", *a.CurrentBidderID)
	require.Equal(t, int64(2), a.Version)

	require.Len(t, f.bids.bids, 1)
	require.Equal(t, 1, f.bus.count(domain.ChannelAuctionBid))
}

func TestPlaceBid_IncrementOverCurrentBid(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	_, err := f.svc.PlaceBid(context.Background(), "a1", "buyer", 11)
	require.NoError(t, err)

	_, err = f.svc.PlaceBid(context.Background(), "a1", "other", 12)
	require.ErrorIs(t, err, domain.ErrValidation, "12 is below 11*1.10")

	a, err := f.svc.PlaceBid(context.Background(), "a1", "other", 12.10)
	require.NoError(t, err)
	require.Equal(t, 12.10, a.CurrentBid)
}

func TestPlaceBid_SelfBid(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	_, err := f.svc.PlaceBid(context.Background(), "a1", "seller", 11)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	require.Contains(t, err.Error(), "your own auction")
}

func TestPlaceBid_AtOrAboveBINRejected(t *testing.T) {
	f := newFixture(t, testConfig())
	bin := 50.0
	f.seedActive(t, "a1", "seller", 10, &bin)

	for _, amount := range []float64{50, 60} {
		_, err := f.svc.PlaceBid(context.Background(), "a1", "buyer", amount)
		require.ErrorIs(t, err, domain.ErrValidation, "amount %v", amount)
		require.Contains(t, err.Error(), "use buy-it-now instead")
	}

	_, err := f.svc.PlaceBid(context.Background(), "a1", "buyer", 49.99)
	require.NoError(t, err)
}

func TestPlaceBid_ExpiredIsNotActive(t *testing.T) {
	f := newFixture(t, testConfig())
	a := f.seedActive(t, "a1", "seller", 10, nil)
	a.ExpiresAt = testNow.Add(-time.Second)
	f.store.put(a)

	_, err := f.svc.PlaceBid(context.Background(), "a1", "buyer", 11)
	require.ErrorIs(t, err, domain.ErrNotActive)
}

func TestPlaceBid_UnknownAuction(t *testing.T) {
	f := newFixture(t, testConfig())

	_, err := f.svc.PlaceBid(context.Background(), "missing", "buyer", 11)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// staleStore simulates losing the version race between the read and the
// conditional update.
type staleStore struct {
	*memStore
}

func (s *staleStore) PlaceBid(context.Context, string, string, float64, int64) (domain.Auction, error) {
	return domain.Auction{}, domain.ErrStaleBid
}

func TestPlaceBid_StaleVersion(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	isAdmin := func(string) bool { return false }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(testConfig(), &staleStore{f.store}, f.bids, f.audit, f.limiter, nil, nil, isAdmin, logger)
	svc.SetClock(func() time.Time { return testNow })

	_, err := svc.PlaceBid(context.Background(), "a1", "buyer", 11)
	require.ErrorIs(t, err, domain.ErrStaleBid)
}

func TestPlaceBid_SnipeExtension(t *testing.T) {
	cfg := testConfig()
	cfg.SnipeWindow = 5 * time.Minute
	cfg.SnipeExtension = time.Minute
	cfg.SnipeCooldown = 2 * time.Minute

	f := newFixture(t, cfg)
	a := f.seedActive(t, "a1", "seller", 10, nil)
	a.ExpiresAt = testNow.Add(3 * time.Minute)
	f.store.put(a)

	// First bid inside the window extends the auction.
	got, err := f.svc.PlaceBid(context.Background(), "a1", "buyer", 11)
	require.NoError(t, err)
	require.Equal(t, testNow.Add(4*time.Minute), got.ExpiresAt)

	// A later bid still inside the window but inside the cooldown does not
	// extend again.
	f.svc.SetClock(func() time.Time { return testNow.Add(time.Minute) })
	got, err = f.svc.PlaceBid(context.Background(), "a1", "other", 12.10)
	require.NoError(t, err)
	require.Equal(t, testNow.Add(4*time.Minute), got.ExpiresAt)

	// Once the cooldown elapses, the next bid in the window extends again.
	f.svc.SetClock(func() time.Time { return testNow.Add(2 * time.Minute) })
	got, err = f.svc.PlaceBid(context.Background(), "a1", "buyer", 13.31)
	require.NoError(t, err)
	require.Equal(t, testNow.Add(5*time.Minute), got.ExpiresAt)
}

// flakyExtendStore fails the first Extend calls before delegating.
type flakyExtendStore struct {
	*memStore
	failures int
}

func (s *flakyExtendStore) Extend(ctx context.Context, id string, delta time.Duration) (domain.Auction, error) {
	if s.failures > 0 {
		s.failures--
		return domain.Auction{}, errors.New("connection reset")
	}
	return s.memStore.Extend(ctx, id, delta)
}

func TestPlaceBid_FailedSnipeExtensionRetries(t *testing.T) {
	f := newFixture(t, testConfig())
	a := f.seedActive(t, "a1", "seller", 10, nil)
	a.ExpiresAt = testNow.Add(3 * time.Minute)
	f.store.put(a)

	store := &flakyExtendStore{memStore: f.store, failures: 1}
	isAdmin := func(string) bool { return false }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(testConfig(), store, f.bids, f.audit, f.limiter, nil, nil, isAdmin, logger)
	svc.SetClock(func() time.Time { return testNow })

	// The extension fails; the bid stands and no cooldown starts.
	got, err := svc.PlaceBid(context.Background(), "a1", "buyer", 11)
	require.NoError(t, err)
	require.Equal(t, testNow.Add(3*time.Minute), got.ExpiresAt)

	// The very next in-window bid retries the extension.
	got, err = svc.PlaceBid(context.Background(), "a1", "other", 12.10)
	require.NoError(t, err)
	require.Equal(t, testNow.Add(8*time.Minute), got.ExpiresAt)
}

func TestPlaceBid_OutsideSnipeWindowNoExtension(t *testing.T) {
	f := newFixture(t, testConfig())
	a := f.seedActive(t, "a1", "seller", 10, nil)

	got, err := f.svc.PlaceBid(context.Background(), "a1", "buyer", 11)
	require.NoError(t, err)
	require.Equal(t, a.ExpiresAt, got.ExpiresAt)
}

func TestBuyNow(t *testing.T) {
	f := newFixture(t, testConfig())
	bin := 50.0
	f.seedActive(t, "a1", "seller", 10, &bin)

	a, err := f.svc.BuyNow(context.Background(), "a1", "buyer")
	require.NoError(t, err)
	require.Equal(t, domain.AuctionStatusSoldBIN, a.Status)
	require.Equal(t, 50.0, a.FinalPrice())
	require.Equal(t, "buyer", *a.CurrentBidderID)

	require.Len(t, f.bids.bids, 1)
	require.Equal(t, 50.0, f.bids.bids[0].Amount)
	require.Contains(t, f.audit.events(), "auction.sold_bin")
	require.Equal(t, 1, f.bus.count(domain.ChannelAuctionClosed))
}

func TestBuyNow_NoBINPrice(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	_, err := f.svc.BuyNow(context.Background(), "a1", "buyer")
	require.ErrorIs(t, err, domain.ErrBINUnavailable)
}

func TestBuyNow_SelfBuy(t *testing.T) {
	f := newFixture(t, testConfig())
	bin := 50.0
	f.seedActive(t, "a1", "seller", 10, &bin)

	_, err := f.svc.BuyNow(context.Background(), "a1", "seller")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	a, err := f.svc.Withdraw(context.Background(), "a1", "seller")
	require.NoError(t, err)
	require.Equal(t, domain.AuctionStatusWithdrawn, a.Status)
	require.Contains(t, f.audit.events(), "auction.withdrawn")
}

func TestWithdraw_Permission(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	_, err := f.svc.Withdraw(context.Background(), "a1", "stranger")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	// Admins may withdraw on the seller's behalf.
	a, err := f.svc.Withdraw(context.Background(), "a1", "admin")
	require.NoError(t, err)
	require.Equal(t, domain.AuctionStatusWithdrawn, a.Status)
}

func TestWithdraw_WithBids(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	_, err := f.svc.PlaceBid(context.Background(), "a1", "buyer", 11)
	require.NoError(t, err)

	_, err = f.svc.Withdraw(context.Background(), "a1", "seller")
	require.ErrorIs(t, err, domain.ErrAuctionHasBids)
}

func TestForceEnd(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)
	f.seedActive(t, "a2", "seller2", 10, nil)

	_, err := f.svc.PlaceBid(context.Background(), "a2", "buyer", 11)
	require.NoError(t, err)

	_, err = f.svc.ForceEnd(context.Background(), "a1", "seller")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	noBid, err := f.svc.ForceEnd(context.Background(), "a1", "admin")
	require.NoError(t, err)
	require.Equal(t, domain.AuctionStatusExpiredNoBid, noBid.Status)

	withBid, err := f.svc.ForceEnd(context.Background(), "a2", "admin")
	require.NoError(t, err)
	require.Equal(t, domain.AuctionStatusSoldBid, withBid.Status)
	require.Equal(t, 11.0, withBid.FinalPrice())

	// Ending an already terminal auction reports the conflict.
	_, err = f.svc.ForceEnd(context.Background(), "a1", "admin")
	require.ErrorIs(t, err, domain.ErrNotActive)
}

func TestExtend(t *testing.T) {
	f := newFixture(t, testConfig())
	a := f.seedActive(t, "a1", "seller", 10, nil)

	_, err := f.svc.Extend(context.Background(), "a1", "seller", time.Hour)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.svc.Extend(context.Background(), "a1", "admin", 0)
	require.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.svc.Extend(context.Background(), "a1", "admin", time.Hour)
	require.NoError(t, err)
	require.Equal(t, a.ExpiresAt.Add(time.Hour), got.ExpiresAt)
	require.Contains(t, f.audit.events(), "auction.extended")
}

func TestEdit(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	_, err := f.svc.Edit(context.Background(), "a1", "stranger", "x", "y")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	got, err := f.svc.Edit(context.Background(), "a1", "seller", "  Shiny Emerald  ", "freshly mined")
	require.NoError(t, err)
	require.Equal(t, "Shiny Emerald", got.DisplayName)
	require.Equal(t, "freshly mined", got.Description)
}

func TestAdminGates(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	_, err := f.svc.Stats(ctx, "seller")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.svc.UserReport(ctx, "seller", "seller")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.svc.AuditTrail(ctx, "seller", domain.ListOpts{})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestUserReport(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	sold := f.seedActive(t, "a2", "seller", 10, nil)
	bidder := "buyer"
	sold.Status = domain.AuctionStatusSoldBid
	sold.CurrentBid = 25
	sold.CurrentBidderID = &bidder
	f.store.put(sold)

	report, err := f.svc.UserReport(context.Background(), "admin", "seller")
	require.NoError(t, err)
	require.Equal(t, "seller", report.UserID)
	require.Equal(t, int64(1), report.ActiveCount)
	require.Equal(t, int64(1), report.TotalSold)
	require.Equal(t, 25.0, report.TotalRevenue)
	require.Len(t, report.Active, 1)
}

func TestGetWithBids(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedActive(t, "a1", "seller", 10, nil)

	_, err := f.svc.PlaceBid(context.Background(), "a1", "buyer", 11)
	require.NoError(t, err)
	_, err = f.svc.PlaceBid(context.Background(), "a1", "other", 12.10)
	require.NoError(t, err)

	a, bids, err := f.svc.GetWithBids(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, "a1", a.ID)
	require.Len(t, bids, 2)
	require.Equal(t, 11.0, bids[0].Amount)
	require.Equal(t, 12.10, bids[1].Amount)
}
