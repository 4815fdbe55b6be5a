package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tradehall/auctionbot/internal/domain"
)

// Event type names used for notification filtering.
const (
	EventAuctionCreated = "auction_created"
	EventAuctionClosed  = "auction_closed"
	EventSweepFailed    = "sweep_failed"
)

// SummaryEditor creates and edits the single channel message that lists the
// open auctions. DiscordSender satisfies it through its webhook.
type SummaryEditor interface {
	CreateMessage(ctx context.Context, content string) (string, error)
	EditMessage(ctx context.Context, messageID, content string) error
}

// Dispatcher turns auction lifecycle transitions into user-facing messages:
// public channel announcements, direct messages to sellers and winners, and
// the pinned summary of open listings. Delivery is best effort; a failed
// message never rolls back the state change that triggered it.
type Dispatcher struct {
	notifier *Notifier
	dm       DirectMessenger // nil disables direct messages
	summary  SummaryEditor   // nil disables the pinned summary
	state    domain.SummaryState
	store    domain.AuctionStore
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. dm and summary may be nil; the
// corresponding behaviour is then skipped.
func NewDispatcher(notifier *Notifier, dm DirectMessenger, summary SummaryEditor, state domain.SummaryState, store domain.AuctionStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		dm:       dm,
		summary:  summary,
		state:    state,
		store:    store,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}
}

// AuctionCreated announces a new listing in the public channel.
func (d *Dispatcher) AuctionCreated(ctx context.Context, a domain.Auction) error {
	body := fmt.Sprintf("%s listed by <@%s>\nStarting at $%.2f", a.Title(), a.SellerID, a.StartingPrice)
	if a.BINPrice != nil {
		body += fmt.Sprintf(" | Buy It Now $%.2f", *a.BINPrice)
	}
	body += fmt.Sprintf("\nEnds %s", a.ExpiresAt.UTC().Format("Jan 2 15:04 MST"))

	return d.notifier.Notify(ctx, EventAuctionCreated, "New Auction", body)
}

// AuctionClosed announces the outcome of a finished auction and sends the
// seller and winner their direct messages. An auction that expired without
// bids gets only the seller notice, no public announcement. Individual
// delivery failures are collected so one bad channel does not silence the
// rest.
func (d *Dispatcher) AuctionClosed(ctx context.Context, a domain.Auction) error {
	var errs []string

	if a.Status != domain.AuctionStatusExpiredNoBid {
		title, body := closedAnnouncement(a)
		if err := d.notifier.Notify(ctx, EventAuctionClosed, title, body); err != nil {
			errs = append(errs, fmt.Sprintf("announce: %v", err))
		}
	}

	if d.dm != nil {
		if msg := sellerNotice(a); msg != "" {
			if err := d.dm.SendDM(ctx, a.SellerID, msg); err != nil {
				errs = append(errs, fmt.Sprintf("seller dm: %v", err))
			}
		}
		if msg := winnerNotice(a); msg != "" && a.CurrentBidderID != nil {
			if err := d.dm.SendDM(ctx, *a.CurrentBidderID, msg); err != nil {
				errs = append(errs, fmt.Sprintf("winner dm: %v", err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: auction %s closed: %s", a.ID, strings.Join(errs, "; "))
	}
	return nil
}

// SweepFailed alerts operators that an expiration sweep hit errors.
func (d *Dispatcher) SweepFailed(ctx context.Context, summary domain.SweepSummary) error {
	body := fmt.Sprintf("%d of %d expired auctions failed to close", summary.Failed, summary.Scanned)
	if len(summary.Errors) > 0 {
		body += "\n" + strings.Join(summary.Errors, "\n")
	}
	return d.notifier.Notify(ctx, EventSweepFailed, "Sweep Errors", body)
}

// RefreshSummary rewrites the pinned message listing open auctions. The
// message ID persists in the summary state so restarts keep editing the same
// message; if the message was deleted out from under us a new one is created.
func (d *Dispatcher) RefreshSummary(ctx context.Context) error {
	if d.summary == nil || d.state == nil {
		return nil
	}

	auctions, err := d.store.ListActive(ctx, domain.ListOpts{Limit: 25})
	if err != nil {
		return fmt.Errorf("notify: refresh summary: %w", err)
	}
	content := renderSummary(auctions, time.Now())

	messageID, err := d.state.Get(ctx)
	if err != nil {
		return fmt.Errorf("notify: refresh summary: %w", err)
	}

	if messageID != "" {
		err := d.summary.EditMessage(ctx, messageID, content)
		if err == nil {
			return nil
		}
		d.logger.WarnContext(ctx, "summary edit failed, recreating",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	}

	newID, err := d.summary.CreateMessage(ctx, content)
	if err != nil {
		return fmt.Errorf("notify: create summary message: %w", err)
	}
	if err := d.state.Set(ctx, newID); err != nil {
		return fmt.Errorf("notify: persist summary message id: %w", err)
	}
	return nil
}

// closedAnnouncement builds the public outcome message for a terminal auction.
func closedAnnouncement(a domain.Auction) (title, body string) {
	switch a.Status {
	case domain.AuctionStatusSoldBIN:
		title = "Sold (Buy It Now)"
		body = fmt.Sprintf("%s went to <@%s> for $%.2f", a.Title(), deref(a.CurrentBidderID), a.FinalPrice())
	case domain.AuctionStatusSoldBid:
		title = "Auction Won"
		body = fmt.Sprintf("%s won by <@%s> at $%.2f", a.Title(), deref(a.CurrentBidderID), a.FinalPrice())
	case domain.AuctionStatusWithdrawn:
		title = "Auction Withdrawn"
		body = fmt.Sprintf("%s was withdrawn by the seller", a.Title())
	default:
		title = "Auction Ended"
		body = a.Title()
	}
	return title, body
}

// sellerNotice builds the private outcome message for the seller.
func sellerNotice(a domain.Auction) string {
	switch a.Status {
	case domain.AuctionStatusSoldBIN, domain.AuctionStatusSoldBid:
		return fmt.Sprintf("Your auction for %s sold to <@%s> for $%.2f. Arrange the trade!",
			a.Title(), deref(a.CurrentBidderID), a.FinalPrice())
	case domain.AuctionStatusExpiredNoBid:
		return fmt.Sprintf("Your auction for %s ended without bids.", a.Title())
	case domain.AuctionStatusWithdrawn:
		return fmt.Sprintf("Your auction for %s was withdrawn.", a.Title())
	}
	return ""
}

// winnerNotice builds the private message for the winning bidder, or "" when
// there is no winner.
func winnerNotice(a domain.Auction) string {
	switch a.Status {
	case domain.AuctionStatusSoldBIN, domain.AuctionStatusSoldBid:
		return fmt.Sprintf("You won %s for $%.2f! Contact <@%s> to arrange the trade.",
			a.Title(), a.FinalPrice(), a.SellerID)
	}
	return ""
}

// renderSummary formats the open-auctions board.
func renderSummary(auctions []domain.Auction, now time.Time) string {
	if len(auctions) == 0 {
		return "**Open Auctions**\nNo open auctions right now."
	}

	var b strings.Builder
	b.WriteString("**Open Auctions**\n")
	for _, a := range auctions {
		fmt.Fprintf(&b, "- %s | high $%.2f", a.Title(), a.HighBid())
		if a.BINPrice != nil {
			fmt.Fprintf(&b, " | BIN $%.2f", *a.BINPrice)
		}
		fmt.Fprintf(&b, " | %s left\n", a.TimeRemaining(now))
	}
	return strings.TrimRight(b.String(), "\n")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
