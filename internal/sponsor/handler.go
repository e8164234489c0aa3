package sponsor

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/utils"
)

type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Handler serves the sponsor-side candidate scanning endpoint: a badge
// scan at a hiring stall returns the student's resume and skills.
type Handler struct {
	Store  Store
	Logger *logger.Logger
}

// ScanCandidate handles GET /api/scan-candidate/{studentID}.
func (h *Handler) ScanCandidate(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	user, err := h.Store.GetUser(r.Context(), studentID)
	if err != nil {
		http.Error(w, err.Error(), utils.StatusForError(err))
		return
	}

	var skills []string
	if user.Skills != "" {
		for _, skill := range strings.Split(user.Skills, ",") {
			if trimmed := strings.TrimSpace(skill); trimmed != "" {
				skills = append(skills, trimmed)
			}
		}
	}

	h.Logger.Info("SPONSOR", "candidate badge scanned: "+user.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.CandidateResponse{
		UserID:    user.ID,
		Name:      user.Name,
		Major:     user.Major,
		GradYear:  user.GradYear,
		ResumeURL: user.ResumeURL,
		Skills:    skills,
	})
}
