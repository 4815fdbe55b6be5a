package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNotActive        = errors.New("auction not active")
	ErrStaleBid         = errors.New("bid lost to a concurrent higher bid")
	ErrRateLimited      = errors.New("rate limited")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("invalid input")
	ErrBINUnavailable   = errors.New("buy-it-now not available")
	ErrAuctionHasBids   = errors.New("auction already has bids")
	ErrLockHeld         = errors.New("lock already held")
)
