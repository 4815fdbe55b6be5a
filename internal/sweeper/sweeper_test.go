package sweeper

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

// fakeStore stubs the two store calls the sweeper makes. The embedded
// interface panics on anything else.
type fakeStore struct {
	domain.AuctionStore

	expired         []domain.Auction
	listErr         error
	closeErr        map[string]error
	alreadyTerminal map[string]bool

	closed []string
}

func (f *fakeStore) ListExpired(_ context.Context, _ time.Time) ([]domain.Auction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.expired, nil
}

func (f *fakeStore) Close(_ context.Context, id string, status domain.AuctionStatus) (domain.Auction, bool, error) {
	if err := f.closeErr[id]; err != nil {
		return domain.Auction{}, false, err
	}
	for _, a := range f.expired {
		if a.ID != id {
			continue
		}
		if f.alreadyTerminal[id] {
			return a, false, nil
		}
		a.Status = status
		f.closed = append(f.closed, id)
		return a, true, nil
	}
	return domain.Auction{}, false, domain.ErrNotFound
}

// fakeReporter records every report call.
type fakeReporter struct {
	closed    []domain.Auction
	failures  []domain.SweepSummary
	refreshes int
}

func (f *fakeReporter) AuctionClosed(_ context.Context, a domain.Auction) error {
	f.closed = append(f.closed, a)
	return nil
}

func (f *fakeReporter) SweepFailed(_ context.Context, summary domain.SweepSummary) error {
	f.failures = append(f.failures, summary)
	return nil
}

func (f *fakeReporter) RefreshSummary(context.Context) error {
	f.refreshes++
	return nil
}

// fakeLocks hands out the lock or reports it held.
type fakeLocks struct {
	held     bool
	unlocked int
}

func (f *fakeLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() { f.unlocked++ }, nil
}

func newSweeper(store domain.AuctionStore, locks domain.LockManager, reporter Reporter) *Sweeper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Config{Interval: time.Minute, LockTTL: 50 * time.Second}, store, locks, reporter, logger)
	s.SetClock(func() time.Time { return testNow })
	return s
}

func expiredAuction(id string, bidder *string) domain.Auction {
	a := domain.Auction{
		ID:            id,
		SellerID:      "seller",
		ItemName:      "emerald",
		StartingPrice: 10,
		ExpiresAt:     testNow.Add(-time.Minute),
		Status:        domain.AuctionStatusActive,
		Version:       1,
	}
	if bidder != nil {
		a.CurrentBid = 15
		a.CurrentBidderID = bidder
	}
	return a
}

func TestSweepOnce_SettlesByBidPresence(t *testing.T) {
	bidder := "buyer"
	store := &fakeStore{expired: []domain.Auction{
		expiredAuction("no-bid", nil),
		expiredAuction("with-bid", &bidder),
	}}
	reporter := &fakeReporter{}

	summary, err := newSweeper(store, nil, reporter).SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Scanned)
	require.Equal(t, 2, summary.Closed)
	require.Equal(t, 0, summary.Failed)

	require.Len(t, reporter.closed, 2)
	byID := map[string]domain.AuctionStatus{}
	for _, a := range reporter.closed {
		byID[a.ID] = a.Status
	}
	require.Equal(t, domain.AuctionStatusExpiredNoBid, byID["no-bid"])
	require.Equal(t, domain.AuctionStatusSoldBid, byID["with-bid"])

	require.Equal(t, 1, reporter.refreshes)
	require.Empty(t, reporter.failures)
}

func TestSweepOnce_OneFailureDoesNotStopTheBatch(t *testing.T) {
	store := &fakeStore{
		expired: []domain.Auction{
			expiredAuction("bad", nil),
			expiredAuction("good", nil),
		},
		closeErr: map[string]error{"bad": errors.New("connection reset")},
	}
	reporter := &fakeReporter{}

	summary, err := newSweeper(store, nil, reporter).SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Scanned)
	require.Equal(t, 1, summary.Closed)
	require.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	require.Contains(t, summary.Errors[0], "bad: ")

	require.Equal(t, []string{"good"}, store.closed)
	require.Len(t, reporter.failures, 1)
	require.Equal(t, 1, reporter.refreshes)
}

func TestSweepOnce_AlreadyTerminalCountsClosedWithoutNotify(t *testing.T) {
	store := &fakeStore{
		expired:         []domain.Auction{expiredAuction("raced", nil)},
		alreadyTerminal: map[string]bool{"raced": true},
	}
	reporter := &fakeReporter{}

	summary, err := newSweeper(store, nil, reporter).SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Closed)
	require.Empty(t, reporter.closed, "no second notification for a raced settle")
}

func TestSweepOnce_LockHeld(t *testing.T) {
	store := &fakeStore{expired: []domain.Auction{expiredAuction("a1", nil)}}
	locks := &fakeLocks{held: true}

	_, err := newSweeper(store, locks, nil).SweepOnce(context.Background())
	require.ErrorIs(t, err, domain.ErrLockHeld)
	require.Empty(t, store.closed)
}

func TestSweepOnce_ReleasesLock(t *testing.T) {
	store := &fakeStore{}
	locks := &fakeLocks{}

	_, err := newSweeper(store, locks, nil).SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, locks.unlocked)
}

func TestSweepOnce_ListError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down")}

	_, err := newSweeper(store, nil, nil).SweepOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "list expired")
}

func TestSweepOnce_NothingExpired(t *testing.T) {
	store := &fakeStore{}
	reporter := &fakeReporter{}

	summary, err := newSweeper(store, nil, reporter).SweepOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Scanned)
	require.Equal(t, 1, reporter.refreshes, "the summary refreshes every sweep to keep listing times current")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- newSweeper(store, nil, nil).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
