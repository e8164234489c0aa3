package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"eventpulse/internal/analytics/api"
	"eventpulse/internal/logger"
	"eventpulse/internal/models"
)

type stubAnalytics struct {
	statsCalls atomic.Int64
	failStats  atomic.Bool
}

func (s *stubAnalytics) Stats(ctx context.Context) (*models.StatsResponse, error) {
	s.statsCalls.Add(1)
	if s.failStats.Load() {
		return nil, errors.New("query timeout")
	}
	return &models.StatsResponse{TotalAttendees: 120, TotalSponsors: 8, TotalScans: 560}, nil
}

func (s *stubAnalytics) StallAnalytics(ctx context.Context, stallID string) (*models.StallAnalytics, error) {
	if stallID == "ghost" {
		return nil, models.ErrNotFound
	}
	return &models.StallAnalytics{StallID: stallID, StallName: "ByteForge", TotalFootfall: 42}, nil
}

func (s *stubAnalytics) HourlyTraffic(ctx context.Context, stallID string) (*models.HourlyTrafficResponse, error) {
	if stallID == "ghost" {
		return nil, models.ErrNotFound
	}
	return &models.HourlyTrafficResponse{StallID: stallID}, nil
}

func (s *stubAnalytics) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	return []models.LeaderboardEntry{{Rank: 1, UserID: "u1", Name: "Ash", Points: 900}}, nil
}

func setupRouter(h *api.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.Stats)
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/analytics/{stallID}", h.StallAnalytics)
		r.Get("/hourly-traffic/{stallID}", h.HourlyTraffic)
		r.Get("/sponsor/analytics/{stallID}", h.StallAnalytics)
	})
	return r
}

func TestStatsEndpoint(t *testing.T) {
	handler := &api.Handler{Analytics: &stubAnalytics{}, Logger: logger.NewLogger()}
	router := setupRouter(handler)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatsResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 120, resp.TotalAttendees)
	assert.Equal(t, 560, resp.TotalScans)
}

func TestStatsServesSnapshotWhenQueryFails(t *testing.T) {
	stub := &stubAnalytics{}
	handler := &api.Handler{Analytics: stub, Logger: logger.NewLogger()}
	router := setupRouter(handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	stub.failStats.Store(true)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.StatsResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 120, resp.TotalAttendees)
}

func TestStatsFailureWithoutSnapshotIs500(t *testing.T) {
	stub := &stubAnalytics{}
	stub.failStats.Store(true)
	handler := &api.Handler{Analytics: stub, Logger: logger.NewLogger()}
	router := setupRouter(handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatsConcurrentRequests(t *testing.T) {
	stub := &stubAnalytics{}
	handler := &api.Handler{Analytics: stub, Logger: logger.NewLogger()}
	router := setupRouter(handler)

	// Warm the snapshot, then hammer the endpoint from many goroutines
	// while the backing query flaps between failing and recovering.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var wg sync.WaitGroup
	codes := make([]int, 8*20)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				stub.failStats.Store(i%2 == 0)
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/stats", nil))
				codes[g*20+i] = rec.Code
			}
		}(g)
	}
	wg.Wait()

	// The warmed snapshot makes every response a 200, failures included.
	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
}

func TestStallAnalyticsRoutes(t *testing.T) {
	handler := &api.Handler{Analytics: &stubAnalytics{}, Logger: logger.NewLogger()}
	router := setupRouter(handler)

	for _, path := range []string{
		"/api/analytics/s1",
		"/api/sponsor/analytics/s1",
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)

		var resp models.StallAnalytics
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "s1", resp.StallID)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/hourly-traffic/s1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/hourly-traffic/ghost", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	handler := &api.Handler{Analytics: &stubAnalytics{}, Logger: logger.NewLogger()}
	router := setupRouter(handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/leaderboard?limit=5", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var entries []models.LeaderboardEntry
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
	assert.Equal(t, "Ash", entries[0].Name)
}
