package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"eventpulse/internal/models"
)

// Migrate creates the ledger schema. Safe to run on every startup.
func Migrate(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Stall)(nil),
		(*models.ScanEvent)(nil),
		(*models.Reward)(nil),
		(*models.Voucher)(nil),
		(*models.FraudAlert)(nil),
		(*models.OutboxEntry)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	// Compound index for the dashboard aggregations over the scan log.
	if _, err := db.NewCreateIndex().
		Model((*models.ScanEvent)(nil)).
		Index("idx_scan_events_stall_ts").
		Column("stall_id", "timestamp").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create scan_events index: %w", err)
	}

	if _, err := db.NewCreateIndex().
		Model((*models.ScanEvent)(nil)).
		Index("idx_scan_events_user_ts").
		Column("user_id", "timestamp").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create scan_events user index: %w", err)
	}

	return nil
}

// Seed inserts demo stalls and rewards so a fresh database renders a
// non-empty dashboard. Existing rows are left alone.
func Seed(ctx context.Context, db *bun.DB) error {
	stallCount, err := db.NewSelect().Model((*models.Stall)(nil)).Count(ctx)
	if err == nil && stallCount > 0 {
		return nil
	}

	now := time.Now()
	stalls := []models.Stall{
		{ID: uuid.NewString(), CompanyName: "ByteForge", Category: "Software", MapX: 120, MapY: 340, SponsorshipCost: 5000, IsHiring: true, CreatedAt: now},
		{ID: uuid.NewString(), CompanyName: "CircuitWorks", Category: "Hardware", MapX: 480, MapY: 210, SponsorshipCost: 3500, IsHiring: true, CreatedAt: now},
		{ID: uuid.NewString(), CompanyName: "Brew & Bite", Category: "F&B", MapX: 760, MapY: 520, SponsorshipCost: 1200, CreatedAt: now},
		{ID: uuid.NewString(), CompanyName: "TalentBridge", Category: "Recruiting", MapX: 300, MapY: 800, SponsorshipCost: 2800, IsHiring: true, CreatedAt: now},
		{ID: uuid.NewString(), CompanyName: "CampusThreads", Category: "Retail", MapX: 640, MapY: 90, SponsorshipCost: 900, CreatedAt: now},
	}

	if _, err := db.NewInsert().Model(&stalls).Exec(ctx); err != nil {
		return fmt.Errorf("seed stalls: %w", err)
	}

	rewards := []models.Reward{
		{ID: uuid.NewString(), ItemName: "Event T-Shirt", Category: "Merch", CostInPoints: 500, StockRemaining: 150, CreatedAt: now},
		{ID: uuid.NewString(), ItemName: "Sticker Pack", Category: "Merch", CostInPoints: 100, StockRemaining: 400, CreatedAt: now},
		{ID: uuid.NewString(), ItemName: "Food Voucher", Category: "F&B", CostInPoints: 250, StockRemaining: 200, CreatedAt: now},
		{ID: uuid.NewString(), ItemName: "Mechanical Keyboard", Category: "Tech", CostInPoints: 1000, StockRemaining: 25, CreatedAt: now},
		{ID: uuid.NewString(), ItemName: "Mystery Legendary Box", Category: "Trade", CostInPoints: 0, RequiresLegendary: true, StockRemaining: 30, CreatedAt: now},
	}

	if _, err := db.NewInsert().Model(&rewards).Exec(ctx); err != nil {
		return fmt.Errorf("seed rewards: %w", err)
	}

	return nil
}
