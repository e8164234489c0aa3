package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"eventpulse/internal/admin"
	"eventpulse/internal/logger"
	"eventpulse/internal/models"
)

type stubStore struct {
	spawns map[string]string
	alerts []models.FraudAlert
}

func (s *stubStore) SetStallSpawn(ctx context.Context, stallID, name, rarity string, activeUntil time.Time) error {
	if stallID == "ghost" {
		return models.ErrNotFound
	}
	s.spawns[stallID] = name + "/" + rarity
	return nil
}

func (s *stubStore) RecentFraudAlerts(ctx context.Context, limit int) ([]models.FraudAlert, error) {
	return s.alerts, nil
}

func setupRouter(store *stubStore) *chi.Mux {
	h := &admin.Handler{Store: store, Logger: logger.NewLogger()}
	r := chi.NewRouter()
	r.Post("/api/admin/stalls/{stallID}/lure", h.DeployLure)
	r.Get("/api/monitor/alerts", h.Alerts)
	return r
}

func TestDeployLure(t *testing.T) {
	store := &stubStore{spawns: make(map[string]string)}
	r := setupRouter(store)

	t.Run("deploys a legendary lure", func(t *testing.T) {
		body := `{"spawn_name":"Rayquaza","rarity":"Legendary"}`
		req := httptest.NewRequest("POST", "/api/admin/stalls/s1/lure", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Rayquaza/Legendary", store.spawns["s1"])
	})

	t.Run("rejects an unknown rarity", func(t *testing.T) {
		body := `{"spawn_name":"Rayquaza","rarity":"Mythic"}`
		req := httptest.NewRequest("POST", "/api/admin/stalls/s1/lure", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "rarity")
	})

	t.Run("requires a spawn name", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/admin/stalls/s1/lure", strings.NewReader(`{"rarity":"Rare"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown stall", func(t *testing.T) {
		body := `{"spawn_name":"Rayquaza","rarity":"Rare"}`
		req := httptest.NewRequest("POST", "/api/admin/stalls/ghost/lure", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAlerts(t *testing.T) {
	store := &stubStore{
		spawns: make(map[string]string),
		alerts: []models.FraudAlert{
			{ID: "a1", UserID: "u1", Reason: "Impossible Travel (900 grid units in 2s)", Timestamp: time.Date(2026, 3, 14, 15, 4, 0, 0, time.UTC)},
		},
	}
	r := setupRouter(store)

	req := httptest.NewRequest("GET", "/api/monitor/alerts", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var items []models.AlertItem
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Len(t, items, 1)
	assert.Equal(t, "u1", items[0].User)
	assert.Equal(t, "15:04", items[0].Time)
	assert.Contains(t, items[0].Reason, "Impossible Travel")
}
