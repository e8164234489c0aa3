package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"eventpulse/internal/models"
)

// Idempotency stores redemption results keyed by client token for the
// dedup window. A pending marker claims the token while the first
// request is in flight so a concurrent duplicate can't double-charge.
type Idempotency struct {
	Client *redis.Client
	Window time.Duration
}

func NewIdempotency(client *redis.Client, window time.Duration) *Idempotency {
	return &Idempotency{Client: client, Window: window}
}

type record struct {
	PayloadHash string                 `json:"payload_hash"`
	Pending     bool                   `json:"pending"`
	Response    *models.RedeemResponse `json:"response,omitempty"`
}

func idemKey(token string) string {
	return "redeem_idem:" + token
}

func (i *Idempotency) Reserve(ctx context.Context, token, payloadHash string) (*models.RedeemResponse, error) {
	claim, err := json.Marshal(record{PayloadHash: payloadHash, Pending: true})
	if err != nil {
		return nil, err
	}

	ok, err := i.Client.SetNX(ctx, idemKey(token), claim, i.Window).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency reserve: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := i.Client.Get(ctx, idemKey(token)).Result()
	if err == redis.Nil {
		// Claim expired between SetNX and Get; treat as fresh.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("idempotency decode: %w", err)
	}

	if rec.PayloadHash != payloadHash {
		return nil, models.ErrConflict
	}
	if rec.Pending {
		// Same payload, first request still running. The duplicate
		// should retry shortly, not treat the token as burned.
		return nil, models.ErrInFlight
	}
	return rec.Response, nil
}

func (i *Idempotency) Complete(ctx context.Context, token, payloadHash string, resp *models.RedeemResponse) error {
	final, err := json.Marshal(record{PayloadHash: payloadHash, Response: resp})
	if err != nil {
		return err
	}
	return i.Client.Set(ctx, idemKey(token), final, i.Window).Err()
}

func (i *Idempotency) Abandon(ctx context.Context, token string) error {
	return i.Client.Del(ctx, idemKey(token)).Err()
}
