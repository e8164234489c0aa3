package scan

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"eventpulse/internal/config"
	"eventpulse/internal/logger"
	"eventpulse/internal/models"
	"eventpulse/internal/utils"
)

type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetStall(ctx context.Context, id string) (*models.Stall, error)
	ListStalls(ctx context.Context) ([]models.Stall, error)
	CommitScan(ctx context.Context, ev *models.ScanEvent) error
	UserHistory(ctx context.Context, userID string) ([]models.PokedexEntry, error)
}

// Cooldown guards against rapid repeat scans. Acquire returns false
// while the window from a prior scan is still running.
type Cooldown interface {
	Acquire(ctx context.Context, userID, stallID string) (bool, error)
	Release(ctx context.Context, userID, stallID string) error
}

type Publisher interface {
	PublishScanCommitted(ev models.ScanEvent) error
}

// Broadcaster pushes dashboard deltas. Best-effort; the service never
// fails a scan over a broadcast.
type Broadcaster interface {
	BroadcastHeatmap(cells []models.HeatmapCell)
	BroadcastAlert(msgType string, payload interface{})
}

type Service struct {
	Store    Store
	Cooldown Cooldown
	Kafka    Publisher
	Live     Broadcaster
	Logger   *logger.Logger
	Game     config.GameConfig
}

func NewService(store Store, cooldown Cooldown, kafka Publisher, live Broadcaster, log *logger.Logger, game config.GameConfig) *Service {
	return &Service{Store: store, Cooldown: cooldown, Kafka: kafka, Live: live, Logger: log, Game: game}
}

// Default creature tables used when a stall has no active spawn.
// Name/type pairs; rarity is drawn separately from the config weights.
var (
	normalCreatures = []creature{
		{"Pikachu", "Electric"}, {"Bulbasaur", "Grass"}, {"Squirtle", "Water"},
		{"Eevee", "Normal"}, {"Jigglypuff", "Fairy"}, {"Snorlax", "Normal"},
		{"Psyduck", "Water"}, {"Togepi", "Fairy"}, {"Magikarp", "Water"},
		{"Ditto", "Normal"},
	}
	rareCreatures = []creature{
		{"Charizard", "Fire"}, {"Dragonite", "Dragon"}, {"Gengar", "Ghost"},
		{"Gyarados", "Water"}, {"Alakazam", "Psychic"}, {"Lapras", "Ice"},
	}
	legendaryCreatures = []creature{
		{"Mewtwo", "Psychic"}, {"Rayquaza", "Dragon"}, {"Articuno", "Ice"},
		{"Zapdos", "Electric"}, {"Moltres", "Fire"}, {"Lugia", "Psychic"},
		{"Ho-Oh", "Fire"},
	}
)

type creature struct {
	Name string
	Type string
}

// ProcessScan validates the scan, picks the creature, computes points,
// and commits one atomic ledger update. State is only mutated inside
// Store.CommitScan.
func (s *Service) ProcessScan(ctx context.Context, userID, stallID string) (*models.ScanResponse, error) {
	return s.process(ctx, userID, stallID, utils.GenerateScanID())
}

// ReplayScan commits a scan queued while the client was offline. The
// event ID is derived from the client's idempotency token, so replaying
// a batch that already committed surfaces models.ErrConflict from the
// ledger instead of awarding twice.
func (s *Service) ReplayScan(ctx context.Context, userID, stallID, token string) (*models.ScanResponse, error) {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("eventpulse://offline-scan/"+token)).String()
	return s.process(ctx, userID, stallID, id)
}

func (s *Service) process(ctx context.Context, userID, stallID, eventID string) (*models.ScanResponse, error) {
	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stall, err := s.Store.GetStall(ctx, stallID)
	if err != nil {
		return nil, err
	}

	ok, err := s.Cooldown.Acquire(ctx, userID, stallID)
	if err != nil {
		return nil, fmt.Errorf("cooldown check: %w", err)
	}
	if !ok {
		s.Logger.LogSecurity("RATE_LIMIT", fmt.Sprintf("user %s re-scanned stall %s inside the cooldown window", userID, stallID))
		return nil, models.ErrRateLimited
	}

	stalls, err := s.Store.ListStalls(ctx)
	if err != nil {
		_ = s.Cooldown.Release(ctx, userID, stallID)
		return nil, fmt.Errorf("list stalls: %w", err)
	}

	now := time.Now()
	threshold := CrowdThreshold(stalls, s.Game.LowTrafficPercentile)
	isFlashSale := stall.VisitorCount <= threshold

	name, ctype, rarity := s.selectCreature(stall, now)
	points := s.basePoints(rarity)
	if isFlashSale {
		points = int(float64(points) * s.Game.FlashSaleMultiplier)
	}

	ev := models.ScanEvent{
		ID:            eventID,
		UserID:        user.ID,
		StallID:       stall.ID,
		Timestamp:     now,
		PokemonName:   name,
		PokemonType:   ctype,
		Rarity:        rarity,
		PointsAwarded: points,
		IsFlashSale:   isFlashSale,
		SyncStatus:    true,
	}

	if err := s.Store.CommitScan(ctx, &ev); err != nil {
		// The scan never happened; don't leave the user locked out.
		_ = s.Cooldown.Release(ctx, userID, stallID)
		return nil, fmt.Errorf("commit scan: %w", err)
	}

	s.Logger.LogScan(userID, stallID, fmt.Sprintf("caught %s (%s) for %d points, flash_sale=%t", name, rarity, points, isFlashSale))

	s.afterCommit(ctx, ev, stall, stalls, threshold)

	return &models.ScanResponse{
		StallName:    stall.CompanyName,
		Pokemon:      name,
		PokemonType:  ctype,
		Rarity:       rarity,
		PointsEarned: points,
		IsFlashSale:  isFlashSale,
		VisitorCount: stall.VisitorCount + 1,
	}, nil
}

// afterCommit fires the best-effort side effects: event bus, heatmap
// push, legendary alerts. Failures are logged, never surfaced.
func (s *Service) afterCommit(ctx context.Context, ev models.ScanEvent, stall *models.Stall, stalls []models.Stall, threshold int) {
	if s.Kafka != nil {
		if err := s.Kafka.PublishScanCommitted(ev); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("publish scan %s: %v", ev.ID, err))
		}
	}

	if s.Live == nil {
		return
	}

	cells := make([]models.HeatmapCell, 0, len(stalls))
	for _, st := range stalls {
		count := st.VisitorCount
		if st.ID == stall.ID {
			count++
		}
		cells = append(cells, models.HeatmapCell{
			StallID:      st.ID,
			Name:         st.CompanyName,
			MapX:         st.MapX,
			MapY:         st.MapY,
			VisitorCount: count,
			CrowdLevel:   CrowdLevelFor(count, threshold),
		})
	}
	s.Live.BroadcastHeatmap(cells)

	if ev.Rarity == models.RarityLegendary {
		s.Live.BroadcastAlert("legendary_caught", map[string]interface{}{
			"stall_name": stall.CompanyName,
			"pokemon":    ev.PokemonName,
		})
	}
}

// History assembles the user's pokedex view.
func (s *Service) History(ctx context.Context, userID string) (*models.HistoryResponse, error) {
	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	pokedex, err := s.Store.UserHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	unique := make(map[string]struct{})
	for _, entry := range pokedex {
		unique[entry.StallID] = struct{}{}
	}

	return &models.HistoryResponse{
		UserID:              user.ID,
		Name:                user.Name,
		TotalPoints:         user.TotalPoints,
		LegendariesCaught:   user.LegendariesCaught,
		Pokedex:             pokedex,
		TotalPokemon:        len(pokedex),
		UniqueStallsVisited: len(unique),
	}, nil
}

func (s *Service) selectCreature(stall *models.Stall, now time.Time) (name, ctype, rarity string) {
	if stall.SpawnActive(now) {
		return stall.SpawnName, spawnType(stall.SpawnName), stall.SpawnRarity
	}

	total := s.Game.WeightNormal + s.Game.WeightRare + s.Game.WeightLegendary
	rarity = PickRarity(s.Game, rand.Intn(total))

	var pool []creature
	switch rarity {
	case models.RarityLegendary:
		pool = legendaryCreatures
	case models.RarityRare:
		pool = rareCreatures
	default:
		pool = normalCreatures
	}
	picked := pool[rand.Intn(len(pool))]
	return picked.Name, picked.Type, rarity
}

func (s *Service) basePoints(rarity string) int {
	switch rarity {
	case models.RarityLegendary:
		return s.Game.BasePointsLegendary
	case models.RarityRare:
		return s.Game.BasePointsRare
	default:
		return s.Game.BasePointsNormal
	}
}

// PickRarity maps a roll in [0, weightSum) onto a rarity tier.
func PickRarity(game config.GameConfig, roll int) string {
	switch {
	case roll < game.WeightNormal:
		return models.RarityNormal
	case roll < game.WeightNormal+game.WeightRare:
		return models.RarityRare
	default:
		return models.RarityLegendary
	}
}

// spawnType resolves a deployed spawn's creature type from the default
// tables, falling back to Normal for names organizers invent.
func spawnType(name string) string {
	for _, pool := range [][]creature{normalCreatures, rareCreatures, legendaryCreatures} {
		for _, c := range pool {
			if c.Name == name {
				return c.Type
			}
		}
	}
	return "Normal"
}

// CrowdThreshold returns the visitor count at the given bottom
// percentile. Stalls at or below it are low-crowd.
func CrowdThreshold(stalls []models.Stall, percentile float64) int {
	if len(stalls) == 0 {
		return 0
	}
	counts := make([]int, len(stalls))
	for i, st := range stalls {
		counts[i] = st.VisitorCount
	}
	sort.Ints(counts)
	idx := int(float64(len(counts))*percentile) - 1
	if idx < 0 {
		idx = 0
	}
	return counts[idx]
}

// CrowdLevelFor buckets a visitor count against the low-crowd threshold.
func CrowdLevelFor(count, threshold int) string {
	switch {
	case count <= threshold:
		return "Low"
	case count <= threshold*2:
		return "Medium"
	default:
		return "High"
	}
}
