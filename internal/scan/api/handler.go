package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/scan"
	"eventpulse/internal/utils"
)

type Handler struct {
	ScanService *scan.Service
	Logger      *logger.Logger
}

// Scan handles POST /api/scan.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.StallID == "" {
		http.Error(w, "userId and stallId are required", http.StatusBadRequest)
		return
	}

	resp, err := h.ScanService.ProcessScan(r.Context(), req.UserID, req.StallID)
	if err != nil {
		status := utils.StatusForError(err)
		if status == http.StatusInternalServerError {
			h.Logger.Error("SCAN", fmt.Sprintf("scan failed for user %s: %v", req.UserID, err))
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Stalls handles GET /api/stalls: the live event map view.
func (h *Handler) Stalls(w http.ResponseWriter, r *http.Request) {
	stalls, err := h.ScanService.Store.ListStalls(r.Context())
	if err != nil {
		http.Error(w, "Could not load stalls: "+err.Error(), http.StatusInternalServerError)
		return
	}

	threshold := scan.CrowdThreshold(stalls, h.ScanService.Game.LowTrafficPercentile)
	now := time.Now()

	result := make([]models.StallInfo, 0, len(stalls))
	for _, st := range stalls {
		level := scan.CrowdLevelFor(st.VisitorCount, threshold)
		result = append(result, models.StallInfo{
			StallID:            st.ID,
			Name:               st.CompanyName,
			Category:           st.Category,
			MapX:               st.MapX,
			MapY:               st.MapY,
			IsHiring:           st.IsHiring,
			VisitorCount:       st.VisitorCount,
			CrowdLevel:         level,
			WaitTimeMinutes:    waitEstimate(st.VisitorCount),
			LegendaryAvailable: level == "Low" || (st.SpawnActive(now) && st.SpawnRarity == models.RarityLegendary),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// History handles GET /api/my-history?userId=...
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId query parameter is required", http.StatusBadRequest)
		return
	}

	resp, err := h.ScanService.History(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), utils.StatusForError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Notifications handles GET /api/notifications: legendary alerts for
// low-crowd stalls.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.buildNotifications(r.Context())
	if err != nil {
		http.Error(w, "Could not load notifications: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

func (h *Handler) buildNotifications(ctx context.Context) ([]models.NotificationItem, error) {
	stalls, err := h.ScanService.Store.ListStalls(ctx)
	if err != nil {
		return nil, err
	}

	threshold := scan.CrowdThreshold(stalls, h.ScanService.Game.LowTrafficPercentile)
	now := time.Now()

	alerts := []models.NotificationItem{}
	for _, st := range stalls {
		lowCrowd := scan.CrowdLevelFor(st.VisitorCount, threshold) == "Low"
		activeLegendary := st.SpawnActive(now) && st.SpawnRarity == models.RarityLegendary
		if lowCrowd || activeLegendary {
			alerts = append(alerts, models.NotificationItem{
				StallID:   st.ID,
				StallName: st.CompanyName,
				Message:   fmt.Sprintf("Legendary spotted at %s! Low crowd - head there now!", st.CompanyName),
				Type:      "legendary_alert",
			})
		}
	}
	return alerts, nil
}

// waitEstimate is a coarse queue-time heuristic from the live visitor
// counter; the sponsor analytics endpoint computes the real average
// from scan gaps.
func waitEstimate(visitorCount int) float64 {
	est := float64(visitorCount) / 4.0
	if est > 30 {
		est = 30
	}
	if est < 1 {
		est = 1
	}
	return est
}
