package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/uptrace/bun"

	"eventpulse/internal/models"
	"eventpulse/internal/utils"
)

// Service derives dashboard metrics from the scan event log. It is a
// read-only consumer of the ledger; every summary is computed inside a
// single read transaction so callers never observe a torn aggregate.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Stats returns the homepage aggregate numbers.
func (s *Service) Stats(ctx context.Context) (*models.StatsResponse, error) {
	var resp models.StatsResponse
	err := s.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if resp.TotalAttendees, err = tx.NewSelect().Model((*models.User)(nil)).Count(ctx); err != nil {
			return err
		}
		if resp.TotalSponsors, err = tx.NewSelect().Model((*models.Stall)(nil)).Count(ctx); err != nil {
			return err
		}
		if resp.TotalScans, err = tx.NewSelect().Model((*models.ScanEvent)(nil)).Count(ctx); err != nil {
			return err
		}
		if resp.LegendaryCount, err = tx.NewSelect().
			Model((*models.ScanEvent)(nil)).
			Where("rarity = ?", models.RarityLegendary).
			Count(ctx); err != nil {
			return err
		}

		var top []models.TopStall
		if err := tx.NewRaw(`
			SELECT s.id AS stall_id, s.company_name, COUNT(e.id) AS scan_count
			FROM stalls s
			LEFT JOIN scan_events e ON e.stall_id = s.id
			GROUP BY s.id, s.company_name
			ORDER BY scan_count DESC
			LIMIT 5
		`).Scan(ctx, &top); err != nil {
			return err
		}
		resp.TopStalls = top
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.LegendaryCount > 0 {
		resp.Highlight = "Legendary creatures are out there - check the low-crowd stalls!"
	}
	return &resp, nil
}

// StallAnalytics computes the full sponsor dashboard for one stall.
func (s *Service) StallAnalytics(ctx context.Context, stallID string) (*models.StallAnalytics, error) {
	var result *models.StallAnalytics
	err := s.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		var stall models.Stall
		err := tx.NewSelect().Model(&stall).Where("id = ?", stallID).Limit(1).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("stall %s: %w", stallID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var timestamps []time.Time
		if err := tx.NewSelect().
			Column("timestamp").
			Table("scan_events").
			Where("stall_id = ?", stallID).
			Order("timestamp ASC").
			Scan(ctx, &timestamps); err != nil {
			return err
		}
		footfall := len(timestamps)

		flashScans, err := tx.NewSelect().
			Model((*models.ScanEvent)(nil)).
			Where("stall_id = ?", stallID).
			Where("is_flash_sale = TRUE").
			Count(ctx)
		if err != nil {
			return err
		}

		type demoRow struct {
			Major string `bun:"major"`
			Count int    `bun:"visitor_count"`
		}
		var demoRows []demoRow
		if err := tx.NewRaw(`
			SELECT u.major, COUNT(DISTINCT e.user_id) AS visitor_count
			FROM scan_events e
			JOIN users u ON u.id = e.user_id
			WHERE e.stall_id = ?
			GROUP BY u.major
		`, stallID).Scan(ctx, &demoRows); err != nil {
			return err
		}
		demographics := make(map[string]int, len(demoRows))
		for _, row := range demoRows {
			major := row.Major
			if major == "" {
				major = "Undeclared"
			}
			demographics[major] = row.Count
		}

		totalUsers, err := tx.NewSelect().Model((*models.User)(nil)).Count(ctx)
		if err != nil {
			return err
		}

		// Visitors of this stall, with how many distinct stalls each
		// visited overall. Feeds scan rate and cross-pollination.
		type visitRow struct {
			UserID     string `bun:"user_id"`
			StallCount int    `bun:"stall_count"`
		}
		var visits []visitRow
		if err := tx.NewRaw(`
			SELECT user_id, COUNT(DISTINCT stall_id) AS stall_count
			FROM scan_events
			WHERE user_id IN (SELECT DISTINCT user_id FROM scan_events WHERE stall_id = ?)
			GROUP BY user_id
		`, stallID).Scan(ctx, &visits); err != nil {
			return err
		}

		crossCount := 0
		for _, v := range visits {
			// This stall plus at least two others.
			if v.StallCount >= 3 {
				crossCount++
			}
		}

		result = &models.StallAnalytics{
			StallID:            stall.ID,
			StallName:          stall.CompanyName,
			TotalFootfall:      footfall,
			PeakTrafficHour:    peakHour(timestamps),
			Demographics:       demographics,
			ScanRatePct:        pct(len(visits), totalUsers),
			CostPerInteraction: costPerInteraction(stall.SponsorshipCost, footfall),
			AvgWaitTime:        avgWait(timestamps),
			CrossPollination:   crossPollination(crossCount, len(visits)),
			FlashSaleLift:      flashLift(flashScans, footfall),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// HourlyTraffic builds the 24-bucket scan histogram with the peak hour
// flagged.
func (s *Service) HourlyTraffic(ctx context.Context, stallID string) (*models.HourlyTrafficResponse, error) {
	exists, err := s.db.NewSelect().
		Model((*models.Stall)(nil)).
		Where("id = ?", stallID).
		Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("stall %s: %w", stallID, models.ErrNotFound)
	}

	var timestamps []time.Time
	if err := s.db.NewSelect().
		Column("timestamp").
		Table("scan_events").
		Where("stall_id = ?", stallID).
		Scan(ctx, &timestamps); err != nil {
		return nil, err
	}

	counts := make([]int, 24)
	for _, ts := range timestamps {
		counts[ts.Hour()]++
	}

	peak := peakHour(timestamps)
	buckets := make([]models.HourlyBucket, 24)
	for hour := range buckets {
		buckets[hour] = models.HourlyBucket{
			Hour:      hour,
			ScanCount: counts[hour],
			IsPeak:    len(timestamps) > 0 && hour == peak,
		}
	}

	return &models.HourlyTrafficResponse{StallID: stallID, Buckets: buckets}, nil
}

// Leaderboard ranks users by points; ties break toward whoever reached
// the score first.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	type row struct {
		UserID        string `bun:"id"`
		Name          string `bun:"name"`
		Points        int    `bun:"total_points"`
		PokemonCount  int    `bun:"pokemon_count"`
		StallsVisited int    `bun:"stalls_visited"`
	}
	var rows []row
	if err := s.db.NewRaw(`
		SELECT u.id, u.name, u.total_points,
		       (SELECT COUNT(*) FROM scan_events e WHERE e.user_id = u.id AND e.consumed = FALSE) AS pokemon_count,
		       (SELECT COUNT(DISTINCT e.stall_id) FROM scan_events e WHERE e.user_id = u.id) AS stalls_visited
		FROM users u
		ORDER BY u.total_points DESC, u.last_award_at ASC
		LIMIT ?
	`, limit).Scan(ctx, &rows); err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = models.LeaderboardEntry{
			Rank:          i + 1,
			UserID:        r.UserID,
			Name:          r.Name,
			Points:        r.Points,
			PokemonCount:  r.PokemonCount,
			StallsVisited: r.StallsVisited,
		}
	}
	return entries, nil
}

// ---------------- metric helpers ----------------

func peakHour(timestamps []time.Time) int {
	if len(timestamps) == 0 {
		return 14 // mid-afternoon default for an empty log
	}
	var counts [24]int
	for _, ts := range timestamps {
		counts[ts.Hour()]++
	}
	peak := 0
	for hour, count := range counts {
		if count > counts[peak] {
			peak = hour
		}
	}
	return peak
}

func avgWait(timestamps []time.Time) string {
	if len(timestamps) < 2 {
		return "N/A (insufficient data)"
	}
	var total time.Duration
	for i := 1; i < len(timestamps); i++ {
		total += timestamps[i].Sub(timestamps[i-1])
	}
	avg := total / time.Duration(len(timestamps)-1)
	return utils.FormatWait(avg)
}

func costPerInteraction(sponsorshipCost float64, footfall int) float64 {
	if footfall <= 0 {
		return 0
	}
	return math.Round(sponsorshipCost/float64(footfall)*100) / 100
}

func pct(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}

func crossPollination(crossCount, visitors int) string {
	if visitors == 0 {
		return "N/A (no visitors yet)"
	}
	return fmt.Sprintf("%.1f%% also visited 2+ other stalls", float64(crossCount)/float64(visitors)*100)
}

func flashLift(flashScans, footfall int) string {
	if footfall == 0 {
		return "N/A (no scans yet)"
	}
	return fmt.Sprintf("%.1f%% of scans during low-crowd windows", float64(flashScans)/float64(footfall)*100)
}
