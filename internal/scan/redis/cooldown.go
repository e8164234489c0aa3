package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cooldown implements the scan velocity guard on Redis. The SETNX key
// doubles as the cooldown timer: while it lives, the user can't scan
// the stall again.
type Cooldown struct {
	Client *redis.Client
	Window time.Duration
}

func NewCooldown(client *redis.Client, window time.Duration) *Cooldown {
	return &Cooldown{Client: client, Window: window}
}

func cooldownKey(userID, stallID string) string {
	return fmt.Sprintf("scan_cooldown:%s:%s", userID, stallID)
}

// Acquire returns false when the user scanned this stall within the
// window. No state is mutated in that case.
func (c *Cooldown) Acquire(ctx context.Context, userID, stallID string) (bool, error) {
	return c.Client.SetNX(ctx, cooldownKey(userID, stallID), "1", c.Window).Result()
}

// Release drops the cooldown key so a failed commit doesn't lock the
// user out for the full window.
func (c *Cooldown) Release(ctx context.Context, userID, stallID string) error {
	_, err := c.Client.Del(ctx, cooldownKey(userID, stallID)).Result()
	return err
}
