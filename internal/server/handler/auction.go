package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tradehall/auctionbot/internal/auction"
	"github.com/tradehall/auctionbot/internal/domain"
)

// AuctionHandler exposes the listing lifecycle over HTTP. The acting user is
// taken from the X-User-ID header set by the chat gateway.
type AuctionHandler struct {
	svc          *auction.Service
	incrementPct float64
	logger       *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(svc *auction.Service, incrementPct float64, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		svc:          svc,
		incrementPct: incrementPct,
		logger:       logHandler(logger, "auction"),
	}
}

// auctionResponse is the JSON shape of an auction.
type auctionResponse struct {
	ID              string     `json:"id"`
	SellerID        string     `json:"seller_id"`
	ItemName        string     `json:"item_name"`
	Quantity        int        `json:"quantity"`
	DisplayName     string     `json:"display_name,omitempty"`
	Description     string     `json:"description,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	StartingPrice   float64    `json:"starting_price"`
	CurrentBid      float64    `json:"current_bid"`
	CurrentBidderID *string    `json:"current_bidder_id,omitempty"`
	BINPrice        *float64   `json:"bin_price,omitempty"`
	MinNextBid      float64    `json:"min_next_bid"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	TimeRemaining   string     `json:"time_remaining"`
	Status          string     `json:"status"`
	Version         int64      `json:"version"`
}

type bidResponse struct {
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *AuctionHandler) toResponse(a domain.Auction) auctionResponse {
	return auctionResponse{
		ID:              a.ID,
		SellerID:        a.SellerID,
		ItemName:        a.ItemName,
		Quantity:        a.Quantity,
		DisplayName:     a.DisplayName,
		Description:     a.Description,
		ImageURL:        a.ImageURL,
		StartingPrice:   a.StartingPrice,
		CurrentBid:      a.CurrentBid,
		CurrentBidderID: a.CurrentBidderID,
		BINPrice:        a.BINPrice,
		MinNextBid:      a.MinNextBid(h.incrementPct),
		CreatedAt:       a.CreatedAt,
		ExpiresAt:       a.ExpiresAt,
		ClosedAt:        a.ClosedAt,
		TimeRemaining:   a.TimeRemaining(time.Now()),
		Status:          string(a.Status),
		Version:         a.Version,
	}
}

func (h *AuctionHandler) toResponses(auctions []domain.Auction) []auctionResponse {
	out := make([]auctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, h.toResponse(a))
	}
	return out
}

// ListAuctions returns the open listings, newest first.
// GET /api/auctions
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.svc.ListActive(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list auctions", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"auctions": h.toResponses(auctions)})
}

// GetAuction returns one auction and its bid history.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, bids, err := h.svc.GetWithBids(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	history := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		history = append(history, bidResponse{BidderID: b.BidderID, Amount: b.Amount, CreatedAt: b.CreatedAt})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"auction": h.toResponse(a),
		"bids":    history,
	})
}

// ListSellerAuctions returns a seller's listings.
// GET /api/users/{id}/auctions
func (h *AuctionHandler) ListSellerAuctions(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	auctions, err := h.svc.ListBySeller(r.Context(), pathParam(r, "id"), activeOnly)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"auctions": h.toResponses(auctions)})
}

// createRequest is the body of POST /api/auctions.
type createRequest struct {
	ItemName      string   `json:"item_name"`
	Quantity      int      `json:"quantity"`
	DisplayName   string   `json:"display_name"`
	Description   string   `json:"description"`
	ImageURL      string   `json:"image_url"`
	StartingPrice float64  `json:"starting_price"`
	BINPrice      *float64 `json:"bin_price"`
	Duration      string   `json:"duration"`
}

// CreateAuction lists a new item for the requesting seller.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	seller := requesterID(r)
	if seller == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	dur, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid duration %q", req.Duration))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	a, err := h.svc.Create(r.Context(), auction.CreateParams{
		SellerID:      seller,
		ItemName:      req.ItemName,
		Quantity:      req.Quantity,
		DisplayName:   req.DisplayName,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		StartingPrice: req.StartingPrice,
		BINPrice:      req.BINPrice,
		Duration:      dur,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(a))
}

// PlaceBid records a bid for the requesting user.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	bidder := requesterID(r)
	if bidder == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	a, err := h.svc.PlaceBid(r.Context(), pathParam(r, "id"), bidder, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(a))
}

// BuyNow settles an auction at its buy-it-now price.
// POST /api/auctions/{id}/buy
func (h *AuctionHandler) BuyNow(w http.ResponseWriter, r *http.Request) {
	buyer := requesterID(r)
	if buyer == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	a, err := h.svc.BuyNow(r.Context(), pathParam(r, "id"), buyer)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(a))
}

// Withdraw cancels a bid-free listing.
// DELETE /api/auctions/{id}
func (h *AuctionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	requester := requesterID(r)
	if requester == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	a, err := h.svc.Withdraw(r.Context(), pathParam(r, "id"), requester)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(a))
}

// EditAuction updates the display name and description of a listing.
// PATCH /api/auctions/{id}
func (h *AuctionHandler) EditAuction(w http.ResponseWriter, r *http.Request) {
	requester := requesterID(r)
	if requester == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	a, err := h.svc.Edit(r.Context(), pathParam(r, "id"), requester, req.DisplayName, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(a))
}
