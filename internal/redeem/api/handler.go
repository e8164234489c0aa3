package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/redeem"
	"eventpulse/internal/utils"
)

type Handler struct {
	RedeemService *redeem.Service
	Logger        *logger.Logger
}

// Rewards handles GET /api/rewards[?userId].
func (h *Handler) Rewards(w http.ResponseWriter, r *http.Request) {
	views, err := h.RedeemService.Rewards(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		http.Error(w, "Could not load rewards: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// Redeem handles POST /api/redeem. Business-rule rejections come back
// as a success:false body, matching what the dashboard renders.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req models.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.RewardID == "" {
		http.Error(w, "userId and rewardId are required", http.StatusBadRequest)
		return
	}

	resp, err := h.RedeemService.Redeem(r.Context(), req)
	if err != nil {
		status := utils.StatusForError(err)
		if status == http.StatusInternalServerError {
			h.Logger.Error("REDEEM", fmt.Sprintf("redeem failed for user %s: %v", req.UserID, err))
			http.Error(w, "Could not process redemption", status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(models.RedeemResponse{
			Success: false,
			Message: userMessage(err),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Voucher handles GET /api/vouchers/{code}: returns the QR image.
func (h *Handler) Voucher(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	voucher, err := h.RedeemService.Voucher(r.Context(), code)
	if err != nil {
		http.Error(w, "Voucher not found", http.StatusNotFound)
		return
	}

	if len(voucher.QRCode) == 0 {
		http.Error(w, "Voucher has no QR image", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(voucher.QRCode)
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "User or reward not found"
	case errors.Is(err, models.ErrInsufficientPoints):
		return "Not enough points"
	case errors.Is(err, models.ErrInsufficientLegendary):
		return "No Legendary available to trade"
	case errors.Is(err, models.ErrOutOfStock):
		return "Out of stock"
	case errors.Is(err, models.ErrConflict):
		return "This redemption request was already submitted with different details"
	case errors.Is(err, models.ErrInFlight):
		return "This redemption is still being processed, try again in a moment"
	default:
		return "Redemption failed"
	}
}
