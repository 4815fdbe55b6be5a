package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tradehall/auctionbot/internal/auction"
	"github.com/tradehall/auctionbot/internal/domain"
)

// SweepRunner triggers an immediate expiration sweep.
type SweepRunner interface {
	SweepOnce(ctx context.Context) (domain.SweepSummary, error)
}

// ArchiveRunner exports and removes old terminal auctions.
type ArchiveRunner interface {
	ArchiveClosed(ctx context.Context, before time.Time) (int64, error)
}

// AdminHandler exposes the moderation and maintenance operations. Permission
// checks for the service-backed operations live in the service; the sweep
// and archive triggers are checked here.
type AdminHandler struct {
	svc          *auction.Service
	sweeper      SweepRunner   // may be nil
	archiver     ArchiveRunner // nil when the archive is disabled
	archiveAfter time.Duration
	isAdmin      func(userID string) bool
	logger       *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc *auction.Service, sweeper SweepRunner, archiver ArchiveRunner, archiveAfter time.Duration, isAdmin func(string) bool, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		svc:          svc,
		sweeper:      sweeper,
		archiver:     archiver,
		archiveAfter: archiveAfter,
		isAdmin:      isAdmin,
		logger:       logHandler(logger, "admin"),
	}
}

// Stats returns store-wide aggregates.
// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), requesterID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	byStatus := make(map[string]int64, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[string(status)] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"by_status":      byStatus,
		"active_value":   stats.ActiveValue,
		"unique_sellers": stats.UniqueSellers,
		"unique_bidders": stats.UniqueBidders,
	})
}

// UserReport returns one user's auction activity.
// GET /api/admin/users/{id}
func (h *AdminHandler) UserReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.UserReport(r.Context(), requesterID(r), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	active := make([]map[string]any, 0, len(report.Active))
	for _, a := range report.Active {
		active = append(active, map[string]any{
			"id":          a.ID,
			"item_name":   a.ItemName,
			"current_bid": a.CurrentBid,
			"expires_at":  a.ExpiresAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":           report.UserID,
		"active_count":      report.ActiveCount,
		"created_last_hour": report.CreatedLast,
		"total_sold":        report.TotalSold,
		"total_revenue":     report.TotalRevenue,
		"active":            active,
	})
}

// ForceEnd closes an active auction immediately.
// POST /api/admin/auctions/{id}/force-end
func (h *AdminHandler) ForceEnd(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.ForceEnd(r.Context(), pathParam(r, "id"), requesterID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     a.ID,
		"status": string(a.Status),
		"price":  a.FinalPrice(),
	})
}

// ExtendAuction lengthens an active auction.
// POST /api/admin/auctions/{id}/extend
func (h *AdminHandler) ExtendAuction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	delta, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}

	a, err := h.svc.Extend(r.Context(), pathParam(r, "id"), requesterID(r), delta)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         a.ID,
		"expires_at": a.ExpiresAt,
	})
}

// Audit returns recent audit entries.
// GET /api/admin/audit
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.AuditTrail(r.Context(), requesterID(r), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":         e.ID,
			"event":      e.Event,
			"detail":     e.Detail,
			"created_at": e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// TriggerSweep runs an expiration sweep immediately.
// POST /api/admin/sweep
func (h *AdminHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(requesterID(r)) {
		writeDomainError(w, domain.ErrPermissionDenied)
		return
	}
	if h.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeper not running in this mode")
		return
	}

	summary, err := h.sweeper.SweepOnce(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scanned": summary.Scanned,
		"closed":  summary.Closed,
		"failed":  summary.Failed,
		"errors":  summary.Errors,
	})
}

// TriggerArchive exports terminal auctions older than the retention window
// and deletes the exported rows.
// POST /api/admin/archive
func (h *AdminHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if !h.isAdmin(requesterID(r)) {
		writeDomainError(w, domain.ErrPermissionDenied)
		return
	}
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage is not configured")
		return
	}

	before := time.Now().Add(-h.archiveAfter)
	count, err := h.archiver.ArchiveClosed(r.Context(), before)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"archived": count,
		"before":   before.Format(time.RFC3339),
	})
}
