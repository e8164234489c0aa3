package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/redeem"
	"eventpulse/internal/redeem/api"
)

type stubStore struct {
	users    map[string]*models.User
	rewards  map[string]*models.Reward
	vouchers map[string]*models.Voucher
}

func (s *stubStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func (s *stubStore) GetReward(ctx context.Context, id string) (*models.Reward, error) {
	if r, ok := s.rewards[id]; ok {
		return r, nil
	}
	return nil, models.ErrNotFound
}

func (s *stubStore) ListRewards(ctx context.Context) ([]models.Reward, error) {
	rewards := make([]models.Reward, 0, len(s.rewards))
	for _, r := range s.rewards {
		rewards = append(rewards, *r)
	}
	return rewards, nil
}

func (s *stubStore) GetVoucher(ctx context.Context, code string) (*models.Voucher, error) {
	if v, ok := s.vouchers[code]; ok {
		return v, nil
	}
	return nil, models.ErrNotFound
}

func (s *stubStore) FindUnconsumedLegendary(ctx context.Context, userID string) (*models.ScanEvent, error) {
	return nil, models.ErrInsufficientLegendary
}

func (s *stubStore) CommitPointsRedemption(ctx context.Context, userID string, reward *models.Reward, voucher *models.Voucher) (int, int, error) {
	r := s.rewards[reward.ID]
	if r.StockRemaining <= 0 {
		return 0, 0, models.ErrOutOfStock
	}
	u := s.users[userID]
	if u.TotalPoints < r.CostInPoints {
		return 0, 0, models.ErrInsufficientPoints
	}
	r.StockRemaining--
	u.TotalPoints -= r.CostInPoints
	s.vouchers[voucher.Code] = voucher
	return u.TotalPoints, r.StockRemaining, nil
}

func (s *stubStore) CommitTradeRedemption(ctx context.Context, userID string, reward *models.Reward, scanEventID string, voucher *models.Voucher) (int, error) {
	return 0, models.ErrInsufficientLegendary
}

func setupRouter() (*chi.Mux, *stubStore) {
	store := &stubStore{
		users: map[string]*models.User{"u1": {ID: "u1", Name: "Ash", TotalPoints: 500}},
		rewards: map[string]*models.Reward{
			"r1": {ID: "r1", ItemName: "Company Tote", CostInPoints: 200, StockRemaining: 5},
			"r2": {ID: "r2", ItemName: "Keyboard", CostInPoints: 2000, StockRemaining: 5},
		},
		vouchers: map[string]*models.Voucher{
			"EVP-ABCD-EFGH": {Code: "EVP-ABCD-EFGH", UserID: "u1", RewardID: "r1", QRCode: []byte{0x89, 'P', 'N', 'G'}},
		},
	}
	svc := redeem.NewService(store, nil, nil, nil, nil, logger.NewLogger())
	h := &api.Handler{RedeemService: svc, Logger: logger.NewLogger()}

	r := chi.NewRouter()
	r.Get("/api/rewards", h.Rewards)
	r.Post("/api/redeem", h.Redeem)
	r.Get("/api/vouchers/{code}", h.Voucher)
	return r, store
}

func TestRedeemEndpoint(t *testing.T) {
	t.Run("successful redemption", func(t *testing.T) {
		r, store := setupRouter()
		req := httptest.NewRequest("POST", "/api/redeem", strings.NewReader(`{"userId":"u1","rewardId":"r1"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp models.RedeemResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 300, resp.RemainingPoints)
		assert.NotEmpty(t, resp.VoucherCode)
		assert.Equal(t, 4, store.rewards["r1"].StockRemaining)
	})

	t.Run("not enough points", func(t *testing.T) {
		r, _ := setupRouter()
		req := httptest.NewRequest("POST", "/api/redeem", strings.NewReader(`{"userId":"u1","rewardId":"r2"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)

		var resp models.RedeemResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "Not enough points", resp.Message)
	})

	t.Run("out of stock", func(t *testing.T) {
		r, store := setupRouter()
		store.rewards["r1"].StockRemaining = 0
		req := httptest.NewRequest("POST", "/api/redeem", strings.NewReader(`{"userId":"u1","rewardId":"r1"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "Out of stock")
	})

	t.Run("invalid body", func(t *testing.T) {
		r, _ := setupRouter()
		req := httptest.NewRequest("POST", "/api/redeem", strings.NewReader(`{broken`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid request body")
	})

	t.Run("missing fields", func(t *testing.T) {
		r, _ := setupRouter()
		req := httptest.NewRequest("POST", "/api/redeem", strings.NewReader(`{"userId":"u1"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown reward", func(t *testing.T) {
		r, _ := setupRouter()
		req := httptest.NewRequest("POST", "/api/redeem", strings.NewReader(`{"userId":"u1","rewardId":"ghost"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRewardsEndpoint(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest("GET", "/api/rewards?userId=u1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var views []redeem.RewardView
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	assert.Len(t, views, 2)
}

func TestVoucherEndpoint(t *testing.T) {
	r, _ := setupRouter()

	t.Run("returns the QR image", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/vouchers/EVP-ABCD-EFGH", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	})

	t.Run("unknown code", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/vouchers/EVP-XXXX-XXXX", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

type stubIdem struct{ reserveErr error }

func (s *stubIdem) Reserve(ctx context.Context, token, payloadHash string) (*models.RedeemResponse, error) {
	return nil, s.reserveErr
}

func (s *stubIdem) Complete(ctx context.Context, token, payloadHash string, resp *models.RedeemResponse) error {
	return nil
}

func (s *stubIdem) Abandon(ctx context.Context, token string) error { return nil }

func TestRedeemInFlightDuplicate(t *testing.T) {
	store := &stubStore{
		users:   map[string]*models.User{"u1": {ID: "u1", Name: "Ash", TotalPoints: 500}},
		rewards: map[string]*models.Reward{"r1": {ID: "r1", ItemName: "Company Tote", CostInPoints: 200, StockRemaining: 5}},
	}
	svc := redeem.NewService(store, &stubIdem{reserveErr: models.ErrInFlight}, nil, nil, nil, logger.NewLogger())
	h := &api.Handler{RedeemService: svc, Logger: logger.NewLogger()}

	r := chi.NewRouter()
	r.Post("/api/redeem", h.Redeem)

	body := `{"userId":"u1","rewardId":"r1","idempotencyToken":"tok-1"}`
	req := httptest.NewRequest("POST", "/api/redeem", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// Retryable status, not a burned-token conflict.
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp models.RedeemResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "still being processed")
}
