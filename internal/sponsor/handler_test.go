package sponsor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/sponsor"
)

type stubStore struct {
	users map[string]*models.User
}

func (s *stubStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func setupRouter(store *stubStore) *chi.Mux {
	h := &sponsor.Handler{Store: store, Logger: logger.NewLogger()}
	r := chi.NewRouter()
	r.Get("/api/scan-candidate/{studentID}", h.ScanCandidate)
	return r
}

func TestScanCandidate(t *testing.T) {
	store := &stubStore{users: map[string]*models.User{
		"u1": {
			ID: "u1", Name: "Ash", Major: "CS", GradYear: 2027,
			ResumeURL: "https://cdn.example.com/resumes/u1.pdf",
			Skills:    "Go, Distributed Systems , SQL,",
		},
	}}
	r := setupRouter(store)

	req := httptest.NewRequest("GET", "/api/scan-candidate/u1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.CandidateResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Ash", resp.Name)
	assert.Equal(t, 2027, resp.GradYear)
	// Skills split on commas and trimmed, empty segments dropped.
	assert.Equal(t, []string{"Go", "Distributed Systems", "SQL"}, resp.Skills)
}

func TestScanCandidateUnknownStudent(t *testing.T) {
	r := setupRouter(&stubStore{users: map[string]*models.User{}})

	req := httptest.NewRequest("GET", "/api/scan-candidate/ghost", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
