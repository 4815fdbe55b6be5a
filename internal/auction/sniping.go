package auction

import (
	"sync"
	"time"
)

// snipeGuard rate-limits anti-sniping extensions per auction. A bid landing
// inside the snipe window extends the auction, but at most once per cooldown
// so a bid war cannot stretch a listing indefinitely between sweeps.
type snipeGuard struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]time.Time
}

func newSnipeGuard(cooldown time.Duration) *snipeGuard {
	return &snipeGuard{
		cooldown: cooldown,
		last:     make(map[string]time.Time),
	}
}

// allow reports whether the auction may be extended now.
func (g *snipeGuard) allow(auctionID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.last[auctionID]
	return !ok || now.Sub(last) >= g.cooldown
}

// record starts the cooldown. Called only after the extension committed, so
// a failed extension does not burn the slot.
func (g *snipeGuard) record(auctionID string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[auctionID] = now
}

// forget drops the per-auction state once the auction is terminal.
func (g *snipeGuard) forget(auctionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, auctionID)
}
