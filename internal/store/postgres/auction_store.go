package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradehall/auctionbot/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL.
//
// Every transition out of the active state is a single conditional UPDATE
// guarded by status = 'active', so exactly one caller can win it. Bid
// placement additionally checks the row version, turning a lost race into
// domain.ErrStaleBid instead of a silent lost update.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new AuctionStore backed by the given connection pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

const auctionCols = `id, seller_id, item_name, quantity, display_name, description,
	image_url, starting_price, current_bid, current_bidder_id, bin_price,
	created_at, duration_seconds, expires_at, closed_at, status, version, updated_at`

const terminalStatuses = `('sold_bin', 'sold_bid', 'expired_no_bid', 'withdrawn')`

// scanAuction scans a single auction row into a domain.Auction.
func scanAuction(row pgx.Row) (domain.Auction, error) {
	var a domain.Auction
	var status string
	var durationSecs int64
	err := row.Scan(
		&a.ID, &a.SellerID, &a.ItemName, &a.Quantity, &a.DisplayName, &a.Description,
		&a.ImageURL, &a.StartingPrice, &a.CurrentBid, &a.CurrentBidderID, &a.BINPrice,
		&a.CreatedAt, &durationSecs, &a.ExpiresAt, &a.ClosedAt, &status, &a.Version, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Auction{}, err
	}
	a.Status = domain.AuctionStatus(status)
	a.Duration = time.Duration(durationSecs) * time.Second
	return a, nil
}

func scanAuctionRows(rows pgx.Rows) ([]domain.Auction, error) {
	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// Create inserts a new auction row.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) error {
	const query = `
		INSERT INTO auctions (
			id, seller_id, item_name, quantity, display_name, description,
			image_url, starting_price, current_bid, current_bidder_id, bin_price,
			created_at, duration_seconds, expires_at, closed_at, status, version, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.SellerID, a.ItemName, a.Quantity, a.DisplayName, a.Description,
		a.ImageURL, a.StartingPrice, a.CurrentBid, a.CurrentBidderID, a.BINPrice,
		a.CreatedAt, int64(a.Duration/time.Second), a.ExpiresAt, a.ClosedAt,
		string(a.Status), a.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: create auction %s: %w", a.ID, err)
	}
	return nil
}

// GetByID retrieves an auction by its primary key.
func (s *AuctionStore) GetByID(ctx context.Context, id string) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionCols+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Auction{}, domain.ErrNotFound
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %s: %w", id, err)
	}
	return a, nil
}

// ListActive returns active auctions, newest first, with pagination.
func (s *AuctionStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	query := `SELECT ` + auctionCols + ` FROM auctions WHERE status = 'active' ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active auctions: %w", err)
	}
	return auctions, nil
}

// CountActive returns the number of auctions currently in the active state.
func (s *AuctionStore) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM auctions WHERE status = 'active'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count active auctions: %w", err)
	}
	return count, nil
}

// ListBySeller returns a seller's auctions, optionally restricted to active
// ones, newest first.
func (s *AuctionStore) ListBySeller(ctx context.Context, sellerID string, activeOnly bool) ([]domain.Auction, error) {
	query := `SELECT ` + auctionCols + ` FROM auctions WHERE seller_id = $1`
	if activeOnly {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions by seller %s: %w", sellerID, err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan auctions by seller %s: %w", sellerID, err)
	}
	return auctions, nil
}

// CountActiveBySeller returns the seller's number of active auctions.
func (s *AuctionStore) CountActiveBySeller(ctx context.Context, sellerID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM auctions WHERE seller_id = $1 AND status = 'active'`,
		sellerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count active auctions for %s: %w", sellerID, err)
	}
	return count, nil
}

// CountCreatedSince returns how many auctions the seller created at or after
// the given instant, regardless of current status.
func (s *AuctionStore) CountCreatedSince(ctx context.Context, sellerID string, since time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM auctions WHERE seller_id = $1 AND created_at >= $2`,
		sellerID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count recent auctions for %s: %w", sellerID, err)
	}
	return count, nil
}

// PlaceBid records a new high bid with optimistic concurrency on the version
// column. Exactly one of two concurrent bidders observes a matching version;
// the other receives domain.ErrStaleBid.
func (s *AuctionStore) PlaceBid(ctx context.Context, id, bidderID string, amount float64, expectedVersion int64) (domain.Auction, error) {
	const query = `
		UPDATE auctions
		SET current_bid = $3, current_bidder_id = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND version = $4
		RETURNING ` + auctionCols

	row := s.pool.QueryRow(ctx, query, id, bidderID, amount, expectedVersion)
	a, err := scanAuction(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, fmt.Errorf("postgres: place bid on %s: %w", id, err)
	}
	return domain.Auction{}, s.classifyConflict(ctx, id, domain.ErrStaleBid)
}

// BuyNow transitions an active auction with a BIN price straight to sold_bin
// at that price.
func (s *AuctionStore) BuyNow(ctx context.Context, id, buyerID string) (domain.Auction, error) {
	const query = `
		UPDATE auctions
		SET status = 'sold_bin', current_bid = bin_price, current_bidder_id = $2,
		    closed_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND bin_price IS NOT NULL
		RETURNING ` + auctionCols

	row := s.pool.QueryRow(ctx, query, id, buyerID)
	a, err := scanAuction(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, fmt.Errorf("postgres: buy now %s: %w", id, err)
	}
	return domain.Auction{}, s.classifyConflict(ctx, id, domain.ErrBINUnavailable)
}

// Withdraw transitions an active, bid-free auction to withdrawn.
func (s *AuctionStore) Withdraw(ctx context.Context, id string) (domain.Auction, error) {
	const query = `
		UPDATE auctions
		SET status = 'withdrawn', closed_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND current_bidder_id IS NULL
		RETURNING ` + auctionCols

	row := s.pool.QueryRow(ctx, query, id)
	a, err := scanAuction(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, fmt.Errorf("postgres: withdraw %s: %w", id, err)
	}
	return domain.Auction{}, s.classifyConflict(ctx, id, domain.ErrAuctionHasBids)
}

// Close transitions an active auction to the given terminal status. Repeated
// calls on an already-terminal auction return closed=false with no error,
// which makes the sweep idempotent.
func (s *AuctionStore) Close(ctx context.Context, id string, status domain.AuctionStatus) (domain.Auction, bool, error) {
	if !status.Terminal() {
		return domain.Auction{}, false, fmt.Errorf("postgres: close %s: %w: status %q is not terminal", id, domain.ErrValidation, status)
	}

	const query = `
		UPDATE auctions
		SET status = $2, closed_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + auctionCols

	row := s.pool.QueryRow(ctx, query, id, string(status))
	a, err := scanAuction(row)
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, false, fmt.Errorf("postgres: close auction %s: %w", id, err)
	}

	// Either unknown or already terminal; fetch to tell the two apart.
	a, err = s.GetByID(ctx, id)
	if err != nil {
		return domain.Auction{}, false, err
	}
	return a, false, nil
}

// ListExpired returns active auctions whose end time is at or before asOf.
func (s *AuctionStore) ListExpired(ctx context.Context, asOf time.Time) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionCols+` FROM auctions
		 WHERE status = 'active' AND expires_at <= $1
		 ORDER BY expires_at ASC`, asOf)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan expired auctions: %w", err)
	}
	return auctions, nil
}

// Extend pushes the end time of an active auction out by delta.
func (s *AuctionStore) Extend(ctx context.Context, id string, delta time.Duration) (domain.Auction, error) {
	const query = `
		UPDATE auctions
		SET expires_at = expires_at + $2 * INTERVAL '1 second',
		    duration_seconds = duration_seconds + $2,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + auctionCols

	row := s.pool.QueryRow(ctx, query, id, int64(delta/time.Second))
	a, err := scanAuction(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, fmt.Errorf("postgres: extend auction %s: %w", id, err)
	}
	return domain.Auction{}, s.classifyConflict(ctx, id, domain.ErrNotActive)
}

// UpdateDetails changes the seller-editable text fields of an active auction.
func (s *AuctionStore) UpdateDetails(ctx context.Context, id, displayName, description string) (domain.Auction, error) {
	const query = `
		UPDATE auctions
		SET display_name = $2, description = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + auctionCols

	row := s.pool.QueryRow(ctx, query, id, displayName, description)
	a, err := scanAuction(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, fmt.Errorf("postgres: update auction %s: %w", id, err)
	}
	return domain.Auction{}, s.classifyConflict(ctx, id, domain.ErrNotActive)
}

// ListTerminalBefore returns terminal auctions closed before the cutoff, for
// archival.
func (s *AuctionStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionCols+` FROM auctions
		 WHERE status IN `+terminalStatuses+` AND closed_at < $1
		 ORDER BY closed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan terminal auctions: %w", err)
	}
	return auctions, nil
}

// Delete removes an auction row (and, via cascade, its bid history). Only
// the explicit archive/cleanup path calls this.
func (s *AuctionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete auction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Stats aggregates store-wide numbers for the admin report.
func (s *AuctionStore) Stats(ctx context.Context) (domain.AuctionStats, error) {
	stats := domain.AuctionStats{ByStatus: make(map[domain.AuctionStatus]int64)}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM auctions GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("postgres: stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("postgres: scan status count: %w", err)
		}
		stats.ByStatus[domain.AuctionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("postgres: stats by status rows: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(current_bid), 0),
		       COUNT(DISTINCT seller_id),
		       COUNT(DISTINCT current_bidder_id) FILTER (WHERE current_bidder_id IS NOT NULL)
		FROM auctions WHERE status = 'active'`,
	).Scan(&stats.ActiveValue, &stats.UniqueSellers, &stats.UniqueBidders)
	if err != nil {
		return stats, fmt.Errorf("postgres: stats active aggregates: %w", err)
	}

	return stats, nil
}

// SellerTotals returns how many auctions the seller has sold and the summed
// final prices.
func (s *AuctionStore) SellerTotals(ctx context.Context, sellerID string) (int64, float64, error) {
	var sold int64
	var revenue float64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(current_bid), 0)
		FROM auctions
		WHERE seller_id = $1 AND status IN ('sold_bin', 'sold_bid')`,
		sellerID).Scan(&sold, &revenue)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: seller totals for %s: %w", sellerID, err)
	}
	return sold, revenue, nil
}

// classifyConflict turns a zero-row conditional update into the right
// sentinel: unknown id, auction no longer active, or the operation-specific
// conflict passed by the caller.
func (s *AuctionStore) classifyConflict(ctx context.Context, id string, conflict error) error {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != domain.AuctionStatusActive {
		return domain.ErrNotActive
	}
	return conflict
}

// Compile-time interface check.
var _ domain.AuctionStore = (*AuctionStore)(nil)
