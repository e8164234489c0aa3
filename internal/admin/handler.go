package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/utils"
)

type Store interface {
	SetStallSpawn(ctx context.Context, stallID, name, rarity string, activeUntil time.Time) error
	RecentFraudAlerts(ctx context.Context, limit int) ([]models.FraudAlert, error)
}

// Handler serves the organizer endpoints: lure deployment and the
// security/fraud alert feed.
type Handler struct {
	Store  Store
	Logger *logger.Logger
}

// DeployLure handles POST /api/admin/stalls/{stallID}/lure.
func (h *Handler) DeployLure(w http.ResponseWriter, r *http.Request) {
	stallID := chi.URLParam(r, "stallID")

	var req models.LureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SpawnName == "" {
		http.Error(w, "spawn_name is required", http.StatusBadRequest)
		return
	}

	switch req.Rarity {
	case models.RarityNormal, models.RarityRare, models.RarityLegendary:
	default:
		http.Error(w, "rarity must be Normal, Rare or Legendary", http.StatusBadRequest)
		return
	}

	if req.ActiveUntil.IsZero() {
		req.ActiveUntil = time.Now().Add(30 * time.Minute)
	}

	if err := h.Store.SetStallSpawn(r.Context(), stallID, req.SpawnName, req.Rarity, req.ActiveUntil); err != nil {
		http.Error(w, err.Error(), utils.StatusForError(err))
		return
	}

	h.Logger.Info("ADMIN", "lure deployed at stall "+stallID+": "+req.SpawnName+" ("+req.Rarity+")")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(utils.SuccessResponse("Lure deployed", nil))
}

// Alerts handles GET /api/monitor/alerts for the organizer dashboard.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Store.RecentFraudAlerts(r.Context(), 20)
	if err != nil {
		http.Error(w, "Could not load alerts: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]models.AlertItem, len(alerts))
	for i, alert := range alerts {
		items[i] = models.AlertItem{
			ID:     i + 1,
			User:   alert.UserID,
			Reason: alert.Reason,
			Time:   alert.Timestamp.UTC().Format("15:04"),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}
