package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"eventpulse/internal/models"
)

// DB is the ledger store. All wallet and stock mutations go through the
// Commit* methods; everything else is read-only.
type DB struct {
	Bun *bun.DB
}

// ---------------- READS ----------------

func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *DB) GetStall(ctx context.Context, id string) (*models.Stall, error) {
	var stall models.Stall
	err := d.Bun.NewSelect().
		Model(&stall).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stall %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &stall, nil
}

func (d *DB) ListStalls(ctx context.Context) ([]models.Stall, error) {
	var stalls []models.Stall
	err := d.Bun.NewSelect().
		Model(&stalls).
		Order("company_name").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return stalls, nil
}

func (d *DB) GetReward(ctx context.Context, id string) (*models.Reward, error) {
	var reward models.Reward
	err := d.Bun.NewSelect().
		Model(&reward).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reward %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

func (d *DB) ListRewards(ctx context.Context) ([]models.Reward, error) {
	var rewards []models.Reward
	err := d.Bun.NewSelect().
		Model(&rewards).
		Order("cost_in_points").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rewards, nil
}

func (d *DB) GetVoucher(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := d.Bun.NewSelect().
		Model(&voucher).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("voucher %s: %w", code, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// UserHistory returns the user's active pokedex (unconsumed scans,
// oldest first), with stall names joined in.
func (d *DB) UserHistory(ctx context.Context, userID string) ([]models.PokedexEntry, error) {
	var rows []models.PokedexEntry
	err := d.Bun.NewRaw(`
		SELECT e.id, e.stall_id, s.company_name AS stall_name,
		       e.pokemon_name, e.rarity, e.timestamp
		FROM scan_events e
		JOIN stalls s ON s.id = e.stall_id
		WHERE e.user_id = ? AND e.consumed = FALSE
		ORDER BY e.timestamp ASC
	`, userID).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RecentScans returns the user's latest scans, newest first. Used by
// the fraud engine's velocity and burst checks.
func (d *DB) RecentScans(ctx context.Context, userID string, limit int) ([]models.ScanEvent, error) {
	var events []models.ScanEvent
	err := d.Bun.NewSelect().
		Model(&events).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// FindUnconsumedLegendary picks the user's oldest tradeable Legendary.
func (d *DB) FindUnconsumedLegendary(ctx context.Context, userID string) (*models.ScanEvent, error) {
	var event models.ScanEvent
	err := d.Bun.NewSelect().
		Model(&event).
		Where("user_id = ?", userID).
		Where("rarity = ?", models.RarityLegendary).
		Where("consumed = FALSE").
		Order("timestamp ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrInsufficientLegendary
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// StallScanTimestamps returns every scan timestamp at a stall, oldest
// first. Feeds the wait-time and peak-hour analytics.
func (d *DB) StallScanTimestamps(ctx context.Context, stallID string) ([]time.Time, error) {
	var timestamps []time.Time
	err := d.Bun.NewSelect().
		Column("timestamp").
		Table("scan_events").
		Where("stall_id = ?", stallID).
		Order("timestamp ASC").
		Scan(ctx, &timestamps)
	if err != nil {
		return nil, err
	}
	return timestamps, nil
}

// ---------------- ATOMIC COMMITS ----------------

// CommitScan applies the four scan effects as one transaction: append
// the event, bump the wallet, bump legendaries when applicable, and
// bump the stall's visitor counter. A concurrent reader sees either all
// of them or none.
func (d *DB) CommitScan(ctx context.Context, ev *models.ScanEvent) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		// Offline replays reuse a token-derived event ID; a duplicate
		// means the effects already landed in an earlier transaction.
		exists, err := tx.NewSelect().
			Model((*models.ScanEvent)(nil)).
			Where("id = ?", ev.ID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check scan event: %w", err)
		}
		if exists {
			return fmt.Errorf("scan event %s: %w", ev.ID, models.ErrConflict)
		}

		if _, err := tx.NewInsert().Model(ev).Exec(ctx); err != nil {
			return fmt.Errorf("insert scan event: %w", err)
		}

		legendaryBump := 0
		if ev.Rarity == models.RarityLegendary {
			legendaryBump = 1
		}

		res, err := tx.NewUpdate().
			Model((*models.User)(nil)).
			Set("total_points = total_points + ?", ev.PointsAwarded).
			Set("legendaries_caught = legendaries_caught + ?", legendaryBump).
			Set("last_award_at = ?", ev.Timestamp).
			Where("id = ?", ev.UserID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("award points: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("user %s: %w", ev.UserID, models.ErrNotFound)
		}

		res, err = tx.NewUpdate().
			Model((*models.Stall)(nil)).
			Set("visitor_count = visitor_count + 1").
			Where("id = ?", ev.StallID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("bump visitor count: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("stall %s: %w", ev.StallID, models.ErrNotFound)
		}

		return nil
	})
}

// CommitPointsRedemption decrements stock and wallet and inserts the
// voucher in one transaction. The conditional UPDATE guards are the
// compare-and-swap: two concurrent requests for the last unit resolve
// to exactly one success.
func (d *DB) CommitPointsRedemption(ctx context.Context, userID string, reward *models.Reward, voucher *models.Voucher) (remaining, stockLeft int, err error) {
	err = d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Reward)(nil)).
			Set("stock_remaining = stock_remaining - 1").
			Where("id = ?", reward.ID).
			Where("stock_remaining > 0").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.ErrOutOfStock
		}

		res, err = tx.NewUpdate().
			Model((*models.User)(nil)).
			Set("total_points = total_points - ?", reward.CostInPoints).
			Where("id = ?", userID).
			Where("total_points >= ?", reward.CostInPoints).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("deduct points: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.ErrInsufficientPoints
		}

		if _, err := tx.NewInsert().Model(voucher).Exec(ctx); err != nil {
			return fmt.Errorf("insert voucher: %w", err)
		}

		if err := tx.NewSelect().
			Column("total_points").
			Table("users").
			Where("id = ?", userID).
			Scan(ctx, &remaining); err != nil {
			return err
		}
		return tx.NewSelect().
			Column("stock_remaining").
			Table("rewards").
			Where("id = ?", reward.ID).
			Scan(ctx, &stockLeft)
	})
	if err != nil {
		return 0, 0, err
	}
	return remaining, stockLeft, nil
}

// CommitTradeRedemption consumes one Legendary scan event in exchange
// for the reward. total_points is untouched.
func (d *DB) CommitTradeRedemption(ctx context.Context, userID string, reward *models.Reward, scanEventID string, voucher *models.Voucher) (stockLeft int, err error) {
	err = d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.ScanEvent)(nil)).
			Set("consumed = TRUE").
			Where("id = ?", scanEventID).
			Where("user_id = ?", userID).
			Where("rarity = ?", models.RarityLegendary).
			Where("consumed = FALSE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("consume legendary: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.ErrInsufficientLegendary
		}

		res, err = tx.NewUpdate().
			Model((*models.Reward)(nil)).
			Set("stock_remaining = stock_remaining - 1").
			Where("id = ?", reward.ID).
			Where("stock_remaining > 0").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.ErrOutOfStock
		}

		res, err = tx.NewUpdate().
			Model((*models.User)(nil)).
			Set("legendaries_caught = legendaries_caught - 1").
			Where("id = ?", userID).
			Where("legendaries_caught > 0").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("decrement legendaries: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return models.ErrInsufficientLegendary
		}

		if _, err := tx.NewInsert().Model(voucher).Exec(ctx); err != nil {
			return fmt.Errorf("insert voucher: %w", err)
		}
		return tx.NewSelect().
			Column("stock_remaining").
			Table("rewards").
			Where("id = ?", reward.ID).
			Scan(ctx, &stockLeft)
	})
	if err != nil {
		return 0, err
	}
	return stockLeft, nil
}

// ---------------- ORGANIZER MUTATIONS ----------------

// SetStallSpawn deploys a lure: replaces the stall's current spawn.
func (d *DB) SetStallSpawn(ctx context.Context, stallID, name, rarity string, activeUntil time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Stall)(nil)).
		Set("spawn_name = ?", name).
		Set("spawn_rarity = ?", rarity).
		Set("spawn_active_until = ?", activeUntil).
		Where("id = ?", stallID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stall %s: %w", stallID, models.ErrNotFound)
	}
	return nil
}

// ---------------- FRAUD ALERTS ----------------

func (d *DB) InsertFraudAlert(ctx context.Context, alert *models.FraudAlert) error {
	_, err := d.Bun.NewInsert().Model(alert).Exec(ctx)
	return err
}

func (d *DB) RecentFraudAlerts(ctx context.Context, limit int) ([]models.FraudAlert, error) {
	var alerts []models.FraudAlert
	err := d.Bun.NewSelect().
		Model(&alerts).
		Order("timestamp DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// ---------------- OUTBOX ----------------

func (d *DB) InsertOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error {
	_, err := d.Bun.NewInsert().
		Model(entry).
		On("CONFLICT (idempotency_token) DO NOTHING").
		Exec(ctx)
	return err
}

func (d *DB) PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	var entries []models.OutboxEntry
	err := d.Bun.NewSelect().
		Model(&entries).
		Where("synced = FALSE").
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (d *DB) MarkOutboxSynced(ctx context.Context, id string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.OutboxEntry)(nil)).
		Set("synced = TRUE").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (d *DB) BumpOutboxAttempts(ctx context.Context, id string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.OutboxEntry)(nil)).
		Set("attempts = attempts + 1").
		Where("id = ?", id).
		Exec(ctx)
	return err
}
