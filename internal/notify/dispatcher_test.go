package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradehall/auctionbot/internal/domain"
)

type fakeDM struct {
	err  error
	sent map[string][]string // userID -> messages
}

func (f *fakeDM) SendDM(_ context.Context, userID, message string) error {
	if f.err != nil {
		return f.err
	}
	if f.sent == nil {
		f.sent = make(map[string][]string)
	}
	f.sent[userID] = append(f.sent[userID], message)
	return nil
}

type fakeSummaryEditor struct {
	createID  string
	createErr error
	editErr   error

	created []string
	edited  map[string]string // messageID -> content
}

func (f *fakeSummaryEditor) CreateMessage(_ context.Context, content string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, content)
	return f.createID, nil
}

func (f *fakeSummaryEditor) EditMessage(_ context.Context, messageID, content string) error {
	if f.editErr != nil {
		return f.editErr
	}
	if f.edited == nil {
		f.edited = make(map[string]string)
	}
	f.edited[messageID] = content
	return nil
}

type fakeState struct {
	id string
}

func (f *fakeState) Get(context.Context) (string, error) { return f.id, nil }

func (f *fakeState) Set(_ context.Context, messageID string) error {
	f.id = messageID
	return nil
}

// listStore stubs ListActive; the dispatcher touches nothing else on the store.
type listStore struct {
	domain.AuctionStore
	active []domain.Auction
}

func (s *listStore) ListActive(context.Context, domain.ListOpts) ([]domain.Auction, error) {
	return s.active, nil
}

func soldAuction(status domain.AuctionStatus) domain.Auction {
	bidder := "buyer"
	return domain.Auction{
		ID:              "a1",
		SellerID:        "seller",
		ItemName:        "emerald",
		Quantity:        1,
		StartingPrice:   10,
		CurrentBid:      25,
		CurrentBidderID: &bidder,
		Status:          status,
	}
}

func TestDispatcher_AuctionCreated(t *testing.T) {
	sender := &fakeSender{name: "discord"}
	d := NewDispatcher(NewNotifier([]Sender{sender}, nil, discardLogger()), nil, nil, nil, nil, discardLogger())

	bin := 50.0
	a := domain.Auction{
		ID:            "a1",
		SellerID:      "seller",
		ItemName:      "emerald",
		StartingPrice: 10,
		BINPrice:      &bin,
		ExpiresAt:     time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, d.AuctionCreated(context.Background(), a))

	require.Len(t, sender.sent, 1)
	require.Equal(t, "New Auction", sender.sent[0].title)
	require.Contains(t, sender.sent[0].message, "<@seller>")
	require.Contains(t, sender.sent[0].message, "$10.00")
	require.Contains(t, sender.sent[0].message, "Buy It Now $50.00")
}

func TestDispatcher_AuctionClosed_SendsDMs(t *testing.T) {
	sender := &fakeSender{name: "discord"}
	dm := &fakeDM{}
	d := NewDispatcher(NewNotifier([]Sender{sender}, nil, discardLogger()), dm, nil, nil, nil, discardLogger())

	require.NoError(t, d.AuctionClosed(context.Background(), soldAuction(domain.AuctionStatusSoldBid)))

	require.Len(t, sender.sent, 1)
	require.Equal(t, "Auction Won", sender.sent[0].title)
	require.Contains(t, sender.sent[0].message, "<@buyer>")
	require.Contains(t, sender.sent[0].message, "$25.00")

	require.Len(t, dm.sent["seller"], 1)
	require.Contains(t, dm.sent["seller"][0], "sold to <@buyer>")
	require.Len(t, dm.sent["buyer"], 1)
	require.Contains(t, dm.sent["buyer"][0], "You won emerald")
}

func TestDispatcher_AuctionClosed_ExpiredNoBidIsSellerOnly(t *testing.T) {
	sender := &fakeSender{name: "discord"}
	dm := &fakeDM{}
	d := NewDispatcher(NewNotifier([]Sender{sender}, nil, discardLogger()), dm, nil, nil, nil, discardLogger())

	a := domain.Auction{ID: "a1", SellerID: "seller", ItemName: "emerald", Status: domain.AuctionStatusExpiredNoBid}
	require.NoError(t, d.AuctionClosed(context.Background(), a))

	require.Empty(t, sender.sent, "no public announcement when nothing sold")
	require.Len(t, dm.sent["seller"], 1)
	require.Contains(t, dm.sent["seller"][0], "ended without bids")
	require.Empty(t, dm.sent["buyer"])
}

func TestDispatcher_AuctionClosed_CollectsFailures(t *testing.T) {
	sender := &fakeSender{name: "discord", err: errors.New("down")}
	dm := &fakeDM{err: errors.New("dms closed")}
	d := NewDispatcher(NewNotifier([]Sender{sender}, nil, discardLogger()), dm, nil, nil, nil, discardLogger())

	err := d.AuctionClosed(context.Background(), soldAuction(domain.AuctionStatusSoldBIN))
	require.Error(t, err)
	require.Contains(t, err.Error(), "announce:")
	require.Contains(t, err.Error(), "seller dm:")
	require.Contains(t, err.Error(), "winner dm:")
}

func TestDispatcher_SweepFailed(t *testing.T) {
	sender := &fakeSender{name: "discord"}
	d := NewDispatcher(NewNotifier([]Sender{sender}, nil, discardLogger()), nil, nil, nil, nil, discardLogger())

	summary := domain.SweepSummary{Scanned: 3, Closed: 1, Failed: 2, Errors: []string{"a1: timeout", "a2: timeout"}}
	require.NoError(t, d.SweepFailed(context.Background(), summary))

	require.Len(t, sender.sent, 1)
	require.Equal(t, "Sweep Errors", sender.sent[0].title)
	require.Contains(t, sender.sent[0].message, "2 of 3 expired auctions failed to close")
	require.Contains(t, sender.sent[0].message, "a1: timeout")
}

func TestDispatcher_RefreshSummary_EditsExistingMessage(t *testing.T) {
	editor := &fakeSummaryEditor{}
	state := &fakeState{id: "msg-1"}
	store := &listStore{active: []domain.Auction{{ID: "a1", ItemName: "emerald", StartingPrice: 10, ExpiresAt: time.Now().Add(time.Hour)}}}
	d := NewDispatcher(NewNotifier(nil, nil, discardLogger()), nil, editor, state, store, discardLogger())

	require.NoError(t, d.RefreshSummary(context.Background()))

	require.Contains(t, editor.edited["msg-1"], "emerald")
	require.Empty(t, editor.created)
	require.Equal(t, "msg-1", state.id)
}

func TestDispatcher_RefreshSummary_CreatesWhenNoMessage(t *testing.T) {
	editor := &fakeSummaryEditor{createID: "msg-new"}
	state := &fakeState{}
	store := &listStore{}
	d := NewDispatcher(NewNotifier(nil, nil, discardLogger()), nil, editor, state, store, discardLogger())

	require.NoError(t, d.RefreshSummary(context.Background()))

	require.Len(t, editor.created, 1)
	require.Contains(t, editor.created[0], "No open auctions")
	require.Equal(t, "msg-new", state.id)
}

func TestDispatcher_RefreshSummary_RecreatesAfterFailedEdit(t *testing.T) {
	editor := &fakeSummaryEditor{createID: "msg-2", editErr: errors.New("404 unknown message")}
	state := &fakeState{id: "msg-1"}
	store := &listStore{}
	d := NewDispatcher(NewNotifier(nil, nil, discardLogger()), nil, editor, state, store, discardLogger())

	require.NoError(t, d.RefreshSummary(context.Background()))

	require.Len(t, editor.created, 1)
	require.Equal(t, "msg-2", state.id, "state points at the recreated message")
}

func TestDispatcher_RefreshSummary_DisabledWithoutEditor(t *testing.T) {
	d := NewDispatcher(NewNotifier(nil, nil, discardLogger()), nil, nil, nil, nil, discardLogger())
	require.NoError(t, d.RefreshSummary(context.Background()))
}

func TestRenderSummary(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	bin := 50.0
	auctions := []domain.Auction{
		{ItemName: "emerald", StartingPrice: 10, ExpiresAt: now.Add(2 * time.Hour)},
		{ItemName: "diamond", DisplayName: "Shiny Diamond", StartingPrice: 20, BINPrice: &bin, ExpiresAt: now.Add(30 * time.Minute)},
	}

	got := renderSummary(auctions, now)
	require.Contains(t, got, "**Open Auctions**")
	require.Contains(t, got, "- emerald | high $10.00 | 2h 0m left")
	require.Contains(t, got, "- Shiny Diamond | high $20.00 | BIN $50.00 | 30m left")
}
