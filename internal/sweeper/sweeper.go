// Package sweeper closes expired auctions on a fixed interval. Closing goes
// through the store's conditional transition, so the sweep stays correct even
// when several processes run it; a Redis lock merely avoids the wasted work.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradehall/auctionbot/internal/domain"
)

// lockName is the distributed lock key shared by all sweeper instances.
const lockName = "sweep"

// Reporter receives the user-facing side effects of a sweep. All calls are
// best effort.
type Reporter interface {
	AuctionClosed(ctx context.Context, a domain.Auction) error
	SweepFailed(ctx context.Context, summary domain.SweepSummary) error
	RefreshSummary(ctx context.Context) error
}

// Config holds the sweep cadence.
type Config struct {
	Interval time.Duration
	LockTTL  time.Duration
}

// Sweeper finds expired active auctions and settles them.
type Sweeper struct {
	cfg      Config
	store    domain.AuctionStore
	locks    domain.LockManager
	reporter Reporter // may be nil
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Sweeper. locks and reporter may be nil; without a lock
// manager every instance sweeps on its own schedule.
func New(cfg Config, store domain.AuctionStore, locks domain.LockManager, reporter Reporter, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		store:    store,
		locks:    locks,
		reporter: reporter,
		logger:   logger.With(slog.String("component", "sweeper")),
		now:      time.Now,
	}
}

// SetClock overrides the sweeper clock for tests.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Run sweeps immediately, then on every tick until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "sweeper started",
		slog.Duration("interval", s.cfg.Interval),
	)

	s.sweepAndReport(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweepAndReport(ctx)
		}
	}
}

// sweepAndReport runs one sweep and logs the outcome; Run never stops on a
// sweep failure.
func (s *Sweeper) sweepAndReport(ctx context.Context) {
	summary, err := s.SweepOnce(ctx)
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		s.logger.DebugContext(ctx, "sweep skipped, lock held elsewhere")
	case err != nil:
		s.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
	case summary.Scanned > 0:
		s.logger.InfoContext(ctx, "sweep complete",
			slog.Int("scanned", summary.Scanned),
			slog.Int("closed", summary.Closed),
			slog.Int("failed", summary.Failed),
		)
	}
}

// SweepOnce performs a single sweep: list expired active auctions, settle
// each, then refresh the public summary. One bad auction never stops the
// rest of the batch; its error lands in the summary instead.
func (s *Sweeper) SweepOnce(ctx context.Context) (domain.SweepSummary, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, lockName, s.cfg.LockTTL)
		if err != nil {
			return domain.SweepSummary{}, err
		}
		defer unlock()
	}

	now := s.now().UTC()
	expired, err := s.store.ListExpired(ctx, now)
	if err != nil {
		return domain.SweepSummary{}, fmt.Errorf("sweeper: list expired: %w", err)
	}

	summary := domain.SweepSummary{Scanned: len(expired)}
	for _, a := range expired {
		if err := s.settle(ctx, a); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", a.ID, err))
			s.logger.ErrorContext(ctx, "settle failed",
				slog.String("auction_id", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.Closed++
	}

	if s.reporter != nil {
		if summary.Failed > 0 {
			if err := s.reporter.SweepFailed(ctx, summary); err != nil {
				s.logger.WarnContext(ctx, "sweep failure alert failed", slog.String("error", err.Error()))
			}
		}
		// The summary shows remaining listing times, so it is refreshed every
		// sweep, not only when something closed.
		if err := s.reporter.RefreshSummary(ctx); err != nil {
			s.logger.WarnContext(ctx, "summary refresh failed", slog.String("error", err.Error()))
		}
	}

	return summary, nil
}

// settle closes one expired auction. An auction that turned terminal between
// the listing and the close is counted as settled without a second
// notification.
func (s *Sweeper) settle(ctx context.Context, a domain.Auction) error {
	status := domain.AuctionStatusExpiredNoBid
	if a.HasBid() {
		status = domain.AuctionStatusSoldBid
	}

	closed, ok, err := s.store.Close(ctx, a.ID, status)
	if err != nil {
		return err
	}
	if !ok {
		// Already terminal; someone else settled it.
		return nil
	}

	s.logger.InfoContext(ctx, "auction settled",
		slog.String("auction_id", closed.ID),
		slog.String("status", string(closed.Status)),
		slog.Float64("price", closed.FinalPrice()),
	)

	if s.reporter != nil {
		if err := s.reporter.AuctionClosed(ctx, closed); err != nil {
			s.logger.WarnContext(ctx, "close announcement failed",
				slog.String("auction_id", closed.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
