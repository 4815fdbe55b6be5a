package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tradehall/auctionbot/internal/server"
	"github.com/tradehall/auctionbot/internal/server/handler"
	"github.com/tradehall/auctionbot/internal/server/ws"
)

// FullMode runs everything in one process: the expiration sweeper, the HTTP
// API, and the WebSocket hub.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Sweeper.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runDailyArchive(ctx, deps)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, deps.Sweeper)
	}

	return g.Wait()
}

// runDailyArchive exports and removes long-terminal auctions once a day. An
// archive failure is logged and retried on the next tick.
func (a *App) runDailyArchive(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().UTC().Add(-a.cfg.Auction.ArchiveAfter.Duration)
			n, err := deps.Archiver.ArchiveClosed(ctx, before)
			if err != nil {
				a.logger.Error("scheduled archive failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("scheduled archive complete", slog.Int64("archived", n))
			}
		}
	}
}

// ServerMode runs only the HTTP API and WebSocket hub. Some other process is
// expected to run the sweeper.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// SweeperMode runs only the expiration sweeper.
func (a *App) SweeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweeper mode")
	return deps.Sweeper.Run(ctx)
}

// startHTTPServer builds the handlers, WebSocket hub, and HTTP server and
// registers their goroutines on the errgroup. sweepRunner may be nil when the
// sweeper does not run in this process.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, sweepRunner handler.SweepRunner) {
	hub := ws.NewHub(deps.EventBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	var archiver handler.ArchiveRunner
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Auctions: handler.NewAuctionHandler(deps.Service, a.cfg.Auction.MinIncrementPct, a.logger),
		Admin: handler.NewAdminHandler(
			deps.Service, sweepRunner, archiver,
			a.cfg.Auction.ArchiveAfter.Duration, a.cfg.IsAdmin, a.logger,
		),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerSec: a.cfg.Server.RateLimitPerSec,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}
