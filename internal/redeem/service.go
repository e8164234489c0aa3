package redeem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/utils"
)

type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetReward(ctx context.Context, id string) (*models.Reward, error)
	ListRewards(ctx context.Context) ([]models.Reward, error)
	GetVoucher(ctx context.Context, code string) (*models.Voucher, error)
	FindUnconsumedLegendary(ctx context.Context, userID string) (*models.ScanEvent, error)
	CommitPointsRedemption(ctx context.Context, userID string, reward *models.Reward, voucher *models.Voucher) (remaining, stockLeft int, err error)
	CommitTradeRedemption(ctx context.Context, userID string, reward *models.Reward, scanEventID string, voucher *models.Voucher) (stockLeft int, err error)
}

// Idempotency deduplicates retried redemption requests by token.
type Idempotency interface {
	// Reserve claims the token. It returns the cached response when the
	// same request already succeeded, models.ErrConflict when the token
	// was used with a different payload, models.ErrInFlight when the
	// first request is still running, and (nil, nil) for a fresh claim.
	Reserve(ctx context.Context, token, payloadHash string) (*models.RedeemResponse, error)
	// Complete stores the successful response under the token.
	Complete(ctx context.Context, token, payloadHash string, resp *models.RedeemResponse) error
	// Abandon releases an unfinished claim so a retry can proceed.
	Abandon(ctx context.Context, token string) error
}

type Publisher interface {
	PublishVoucherIssued(voucher models.Voucher) error
}

type Broadcaster interface {
	BroadcastAlert(msgType string, payload interface{})
}

// QREncoder renders a voucher into a scannable QR image.
type QREncoder interface {
	GenerateEncryptedQR(voucher models.Voucher) ([]byte, error)
}

type Service struct {
	Store  Store
	Idem   Idempotency
	Kafka  Publisher
	Live   Broadcaster
	QR     QREncoder
	Logger *logger.Logger
}

func NewService(store Store, idem Idempotency, kafka Publisher, live Broadcaster, qr QREncoder, log *logger.Logger) *Service {
	return &Service{Store: store, Idem: idem, Kafka: kafka, Live: live, QR: qr, Logger: log}
}

// Redeem runs the full redemption contract: validation, mode selection,
// atomic commit, voucher issuance, idempotent replay.
func (s *Service) Redeem(ctx context.Context, req models.RedeemRequest) (*models.RedeemResponse, error) {
	payloadHash := requestHash(req)

	if req.IdempotencyToken != "" {
		cached, err := s.Idem.Reserve(ctx, req.IdempotencyToken, payloadHash)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			s.Logger.LogRedeem(req.UserID, req.RewardID, "idempotent replay, returning original result")
			return cached, nil
		}
	}

	resp, err := s.redeemOnce(ctx, req)

	if req.IdempotencyToken != "" {
		if err != nil {
			// A failed attempt must not block the retry.
			_ = s.Idem.Abandon(ctx, req.IdempotencyToken)
		} else if storeErr := s.Idem.Complete(ctx, req.IdempotencyToken, payloadHash, resp); storeErr != nil {
			s.Logger.Error("REDEEM", fmt.Sprintf("store idempotency result for token %s: %v", req.IdempotencyToken, storeErr))
		}
	}

	return resp, err
}

func (s *Service) redeemOnce(ctx context.Context, req models.RedeemRequest) (*models.RedeemResponse, error) {
	user, err := s.Store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	reward, err := s.Store.GetReward(ctx, req.RewardID)
	if err != nil {
		return nil, err
	}

	voucher := models.Voucher{
		Code:     utils.GenerateVoucherCode(),
		UserID:   user.ID,
		RewardID: reward.ID,
		IssuedAt: time.Now(),
	}

	var remaining, stockLeft int
	if reward.RequiresLegendary {
		voucher.RedemptionType = models.RedemptionTraded

		scanEventID := req.ScanEventID
		if scanEventID == "" {
			legendary, err := s.Store.FindUnconsumedLegendary(ctx, user.ID)
			if err != nil {
				return nil, err
			}
			scanEventID = legendary.ID
		}

		if s.QR != nil {
			if voucher.QRCode, err = s.QR.GenerateEncryptedQR(voucher); err != nil {
				return nil, fmt.Errorf("generate voucher QR: %w", err)
			}
		}

		stockLeft, err = s.Store.CommitTradeRedemption(ctx, user.ID, reward, scanEventID, &voucher)
		if err != nil {
			return nil, err
		}
		remaining = user.TotalPoints
	} else {
		voucher.RedemptionType = models.RedemptionPurchased

		if s.QR != nil {
			if voucher.QRCode, err = s.QR.GenerateEncryptedQR(voucher); err != nil {
				return nil, fmt.Errorf("generate voucher QR: %w", err)
			}
		}

		remaining, stockLeft, err = s.Store.CommitPointsRedemption(ctx, user.ID, reward, &voucher)
		if err != nil {
			return nil, err
		}
	}

	s.Logger.LogRedeem(user.ID, reward.ID, fmt.Sprintf("issued voucher %s (%s), stock left %d", voucher.Code, voucher.RedemptionType, stockLeft))

	s.afterCommit(voucher, reward, stockLeft)

	return &models.RedeemResponse{
		Success:         true,
		Message:         fmt.Sprintf("Successfully redeemed '%s'!", reward.ItemName),
		VoucherCode:     voucher.Code,
		RemainingPoints: remaining,
		RewardStockLeft: stockLeft,
	}, nil
}

func (s *Service) afterCommit(voucher models.Voucher, reward *models.Reward, stockLeft int) {
	if s.Kafka != nil {
		if err := s.Kafka.PublishVoucherIssued(voucher); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish voucher %s: %v", voucher.Code, err))
		}
	}
	if s.Live != nil && stockLeft == 0 {
		s.Live.BroadcastAlert("stock_depleted", map[string]interface{}{
			"reward_id": reward.ID,
			"item_name": reward.ItemName,
		})
	}
}

// Rewards returns the catalog; when userID is set each entry carries an
// affordability flag for that user.
func (s *Service) Rewards(ctx context.Context, userID string) ([]RewardView, error) {
	rewards, err := s.Store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}

	var user *models.User
	if userID != "" {
		if user, err = s.Store.GetUser(ctx, userID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	views := make([]RewardView, 0, len(rewards))
	for _, r := range rewards {
		view := RewardView{Reward: r}
		if user != nil {
			if r.RequiresLegendary {
				view.Affordable = user.LegendariesCaught > 0 && r.StockRemaining > 0
			} else {
				view.Affordable = user.TotalPoints >= r.CostInPoints && r.StockRemaining > 0
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// Voucher fetches an issued voucher by code.
func (s *Service) Voucher(ctx context.Context, code string) (*models.Voucher, error) {
	return s.Store.GetVoucher(ctx, code)
}

type RewardView struct {
	models.Reward
	Affordable bool `json:"affordable"`
}

func requestHash(req models.RedeemRequest) string {
	return fmt.Sprintf("%s|%s|%s", req.UserID, req.RewardID, req.ScanEventID)
}
