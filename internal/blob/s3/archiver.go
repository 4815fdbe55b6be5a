package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tradehall/auctionbot/internal/domain"
)

// BlobWriter is the narrow upload interface the archiver needs. Writer
// satisfies it; tests substitute an in-memory fake.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports finished auctions to S3 as JSONL and then removes them
// from the primary store. Rows are deleted only after the upload has
// succeeded, so a failed export leaves everything queryable.
type Archiver struct {
	writer BlobWriter
	store  domain.AuctionStore
	bids   domain.BidStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer BlobWriter, store domain.AuctionStore, bids domain.BidStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		store:  store,
		bids:   bids,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// archivedAuction is the JSONL line format for an exported auction and its
// bid history.
type archivedAuction struct {
	ID            string               `json:"id"`
	SellerID      string               `json:"seller_id"`
	ItemName      string               `json:"item_name"`
	Quantity      int                  `json:"quantity"`
	DisplayName   string               `json:"display_name,omitempty"`
	Description   string               `json:"description,omitempty"`
	StartingPrice float64              `json:"starting_price"`
	FinalPrice    float64              `json:"final_price"`
	WinnerID      string               `json:"winner_id,omitempty"`
	BINPrice      *float64             `json:"bin_price,omitempty"`
	Status        domain.AuctionStatus `json:"status"`
	CreatedAt     time.Time            `json:"created_at"`
	ExpiresAt     time.Time            `json:"expires_at"`
	ClosedAt      *time.Time           `json:"closed_at,omitempty"`
	Bids          []archivedBid        `json:"bids,omitempty"`
}

type archivedBid struct {
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchiveClosed exports every terminal auction closed before the cutoff and
// deletes the exported rows. It returns the number of auctions archived.
func (a *Archiver) ArchiveClosed(ctx context.Context, before time.Time) (int64, error) {
	auctions, err := a.store.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(auctions) == 0 {
		return 0, nil
	}

	records := make([]archivedAuction, 0, len(auctions))
	for _, auc := range auctions {
		bids, err := a.bids.ListByAuction(ctx, auc.ID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive bids for %s: %w", auc.ID, err)
		}
		records = append(records, toArchived(auc, bids))
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	// Upload succeeded; now the rows may go. A failed delete is reported but
	// the archived count stands, the next run simply re-exports the leftovers.
	var deleted int64
	for _, auc := range auctions {
		if err := a.store.Delete(ctx, auc.ID); err != nil {
			a.logger.WarnContext(ctx, "archived auction delete failed",
				slog.String("auction_id", auc.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
	}

	count := int64(len(auctions))
	if err := a.audit.Log(ctx, "archive.auctions", map[string]any{
		"path":    path,
		"count":   count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	a.logger.InfoContext(ctx, "auctions archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int64("deleted", deleted),
	)
	return count, nil
}

func toArchived(a domain.Auction, bids []domain.Bid) archivedAuction {
	rec := archivedAuction{
		ID:            a.ID,
		SellerID:      a.SellerID,
		ItemName:      a.ItemName,
		Quantity:      a.Quantity,
		DisplayName:   a.DisplayName,
		Description:   a.Description,
		StartingPrice: a.StartingPrice,
		FinalPrice:    a.FinalPrice(),
		BINPrice:      a.BINPrice,
		Status:        a.Status,
		CreatedAt:     a.CreatedAt,
		ExpiresAt:     a.ExpiresAt,
		ClosedAt:      a.ClosedAt,
	}
	if a.CurrentBidderID != nil {
		rec.WinnerID = *a.CurrentBidderID
	}
	for _, b := range bids {
		rec.Bids = append(rec.Bids, archivedBid{
			BidderID:  b.BidderID,
			Amount:    b.Amount,
			CreatedAt: b.CreatedAt,
		})
	}
	return rec
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/auctions/2026-08.jsonl
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/auctions/%s.jsonl", before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
