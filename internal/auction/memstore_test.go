package auction

import (
	"context"
	"sync"
	"time"

	"github.com/tradehall/auctionbot/internal/domain"
)

// memStore is an in-memory domain.AuctionStore with the same conditional
// transition semantics as the SQL implementation.
type memStore struct {
	mu       sync.Mutex
	auctions map[string]domain.Auction
}

func newMemStore() *memStore {
	return &memStore{auctions: make(map[string]domain.Auction)}
}

func (m *memStore) put(a domain.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[a.ID] = a
}

func (m *memStore) Create(_ context.Context, a domain.Auction) error {
	m.put(a)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, nil
}

func (m *memStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Auction
	for _, a := range m.auctions {
		if a.Status == domain.AuctionStatusActive {
			out = append(out, a)
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memStore) CountActive(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.auctions {
		if a.Status == domain.AuctionStatusActive {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListBySeller(_ context.Context, sellerID string, activeOnly bool) ([]domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Auction
	for _, a := range m.auctions {
		if a.SellerID != sellerID {
			continue
		}
		if activeOnly && a.Status != domain.AuctionStatusActive {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) CountActiveBySeller(_ context.Context, sellerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.auctions {
		if a.SellerID == sellerID && a.Status == domain.AuctionStatusActive {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountCreatedSince(_ context.Context, sellerID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.auctions {
		if a.SellerID == sellerID && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) classify(a domain.Auction, ok bool, conflict error) error {
	if !ok {
		return domain.ErrNotFound
	}
	if a.Status != domain.AuctionStatusActive {
		return domain.ErrNotActive
	}
	return conflict
}

func (m *memStore) PlaceBid(_ context.Context, id, bidderID string, amount float64, expectedVersion int64) (domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok || a.Status != domain.AuctionStatusActive || a.Version != expectedVersion {
		if ok && a.Status == domain.AuctionStatusActive {
			return domain.Auction{}, domain.ErrStaleBid
		}
		return domain.Auction{}, m.classify(a, ok, domain.ErrStaleBid)
	}
	a.CurrentBid = amount
	a.CurrentBidderID = &bidderID
	a.Version++
	m.auctions[id] = a
	return a, nil
}

func (m *memStore) BuyNow(_ context.Context, id, buyerID string) (domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok || a.Status != domain.AuctionStatusActive || a.BINPrice == nil {
		return domain.Auction{}, m.classify(a, ok, domain.ErrBINUnavailable)
	}
	now := time.Now().UTC()
	a.Status = domain.AuctionStatusSoldBIN
	a.CurrentBid = *a.BINPrice
	a.CurrentBidderID = &buyerID
	a.ClosedAt = &now
	a.Version++
	m.auctions[id] = a
	return a, nil
}

func (m *memStore) Withdraw(_ context.Context, id string) (domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok || a.Status != domain.AuctionStatusActive || a.CurrentBidderID != nil {
		return domain.Auction{}, m.classify(a, ok, domain.ErrAuctionHasBids)
	}
	now := time.Now().UTC()
	a.Status = domain.AuctionStatusWithdrawn
	a.ClosedAt = &now
	a.Version++
	m.auctions[id] = a
	return a, nil
}

func (m *memStore) Close(_ context.Context, id string, status domain.AuctionStatus) (domain.Auction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return domain.Auction{}, false, domain.ErrNotFound
	}
	if a.Status != domain.AuctionStatusActive {
		return a, false, nil
	}
	now := time.Now().UTC()
	a.Status = status
	a.ClosedAt = &now
	a.Version++
	m.auctions[id] = a
	return a, true, nil
}

func (m *memStore) ListExpired(_ context.Context, asOf time.Time) ([]domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Auction
	for _, a := range m.auctions {
		if a.Status == domain.AuctionStatusActive && !a.ExpiresAt.After(asOf) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) Extend(_ context.Context, id string, delta time.Duration) (domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok || a.Status != domain.AuctionStatusActive {
		return domain.Auction{}, m.classify(a, ok, domain.ErrNotActive)
	}
	a.ExpiresAt = a.ExpiresAt.Add(delta)
	a.Duration += delta
	a.Version++
	m.auctions[id] = a
	return a, nil
}

func (m *memStore) UpdateDetails(_ context.Context, id, displayName, description string) (domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok || a.Status != domain.AuctionStatusActive {
		return domain.Auction{}, m.classify(a, ok, domain.ErrNotActive)
	}
	a.DisplayName = displayName
	a.Description = description
	a.Version++
	m.auctions[id] = a
	return a, nil
}

func (m *memStore) ListTerminalBefore(_ context.Context, before time.Time) ([]domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Auction
	for _, a := range m.auctions {
		if a.Status.Terminal() && a.ClosedAt != nil && a.ClosedAt.Before(before) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auctions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.auctions, id)
	return nil
}

func (m *memStore) Stats(_ context.Context) (domain.AuctionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := domain.AuctionStats{ByStatus: make(map[domain.AuctionStatus]int64)}
	sellers := make(map[string]bool)
	bidders := make(map[string]bool)
	for _, a := range m.auctions {
		stats.ByStatus[a.Status]++
		if a.Status == domain.AuctionStatusActive {
			stats.ActiveValue += a.CurrentBid
			sellers[a.SellerID] = true
			if a.CurrentBidderID != nil {
				bidders[*a.CurrentBidderID] = true
			}
		}
	}
	stats.UniqueSellers = int64(len(sellers))
	stats.UniqueBidders = int64(len(bidders))
	return stats, nil
}

func (m *memStore) SellerTotals(_ context.Context, sellerID string) (int64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sold int64
	var revenue float64
	for _, a := range m.auctions {
		if a.SellerID != sellerID {
			continue
		}
		if a.Status == domain.AuctionStatusSoldBIN || a.Status == domain.AuctionStatusSoldBid {
			sold++
			revenue += a.FinalPrice()
		}
	}
	return sold, revenue, nil
}

var _ domain.AuctionStore = (*memStore)(nil)

// memBids is an in-memory domain.BidStore.
type memBids struct {
	mu   sync.Mutex
	bids []domain.Bid
	err  error // forced Append error
}

func (m *memBids) Append(_ context.Context, b domain.Bid) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = int64(len(m.bids) + 1)
	m.bids = append(m.bids, b)
	return nil
}

func (m *memBids) ListByAuction(_ context.Context, auctionID string) ([]domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Bid
	for _, b := range m.bids {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBids) CountByBidder(_ context.Context, bidderID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.bids {
		if b.BidderID == bidderID {
			n++
		}
	}
	return n, nil
}

var _ domain.BidStore = (*memBids)(nil)

// memAudit is an in-memory domain.AuditStore.
type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{
		ID:        int64(len(m.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *memAudit) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Event)
	}
	return out
}

var _ domain.AuditStore = (*memAudit)(nil)

// fakeLimiter is a domain.RateLimiter with a fixed verdict and call log.
type fakeLimiter struct {
	mu      sync.Mutex
	allowed bool
	calls   []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return f.allowed, nil
}

var _ domain.RateLimiter = (*fakeLimiter)(nil)

// memBus records published events.
type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: make(map[string][][]byte)}
}

func (m *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[channel] = append(m.published[channel], payload)
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (m *memBus) count(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published[channel])
}

var _ domain.EventBus = (*memBus)(nil)
