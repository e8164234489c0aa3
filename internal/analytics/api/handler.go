package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/utils"
)

type Analytics interface {
	Stats(ctx context.Context) (*models.StatsResponse, error)
	StallAnalytics(ctx context.Context, stallID string) (*models.StallAnalytics, error)
	HourlyTraffic(ctx context.Context, stallID string) (*models.HourlyTrafficResponse, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

type Handler struct {
	Analytics Analytics
	Logger    *logger.Logger

	// lastStats holds the last successful stats snapshot so the
	// homepage degrades to stale data instead of a 500 when the store
	// is slow. Guarded by mu; request goroutines race on it otherwise.
	mu        sync.RWMutex
	lastStats *models.StatsResponse
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Analytics.Stats(r.Context())
	if err != nil {
		h.mu.RLock()
		snapshot := h.lastStats
		h.mu.RUnlock()

		if snapshot != nil {
			h.Logger.Warn("ANALYTICS", "stats query failed, serving last-known-good snapshot: "+err.Error())
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(snapshot)
			return
		}
		http.Error(w, "Could not load stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.lastStats = stats
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// StallAnalytics handles GET /api/analytics/{stallID}.
func (h *Handler) StallAnalytics(w http.ResponseWriter, r *http.Request) {
	stallID := chi.URLParam(r, "stallID")

	result, err := h.Analytics.StallAnalytics(r.Context(), stallID)
	if err != nil {
		http.Error(w, err.Error(), utils.StatusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HourlyTraffic handles GET /api/hourly-traffic/{stallID}.
func (h *Handler) HourlyTraffic(w http.ResponseWriter, r *http.Request) {
	stallID := chi.URLParam(r, "stallID")

	result, err := h.Analytics.HourlyTraffic(r.Context(), stallID)
	if err != nil {
		http.Error(w, err.Error(), utils.StatusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Leaderboard handles GET /api/leaderboard[?limit].
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	entries, err := h.Analytics.Leaderboard(r.Context(), limit)
	if err != nil {
		http.Error(w, "Could not load leaderboard: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
