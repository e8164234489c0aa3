package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/outbox"
)

type Handler struct {
	Store  outbox.Store
	Logger *logger.Logger
}

// Sync handles POST /api/scan/offline: a batch of scans a client
// captured while disconnected. Each item carries its own idempotency
// token, so a batch can be submitted more than once without queueing
// duplicates.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req models.OfflineSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Scans) == 0 {
		http.Error(w, "scans must not be empty", http.StatusBadRequest)
		return
	}

	queued := 0
	for _, item := range req.Scans {
		if item.UserID == "" || item.StallID == "" || item.IdempotencyToken == "" {
			http.Error(w, "each scan needs userId, stallId and idempotencyToken", http.StatusBadRequest)
			return
		}
		entry := &models.OutboxEntry{
			ID:               uuid.New().String(),
			IdempotencyToken: item.IdempotencyToken,
			UserID:           item.UserID,
			StallID:          item.StallID,
		}
		if err := h.Store.InsertOutboxEntry(r.Context(), entry); err != nil {
			h.Logger.Error("OUTBOX", "queue offline scan: "+err.Error())
			http.Error(w, "Could not queue scan", http.StatusInternalServerError)
			return
		}
		queued++
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(models.OfflineSyncResponse{Queued: queued})
}
