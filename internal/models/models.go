package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Rarity tiers for creatures. Legendary drives the trade-in redemptions.
const (
	RarityNormal    = "Normal"
	RarityRare      = "Rare"
	RarityLegendary = "Legendary"
)

// Redemption types recorded on vouchers.
const (
	RedemptionPurchased = "purchased"
	RedemptionTraded    = "traded"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID                string    `bun:"id,pk" json:"id"`
	Name              string    `bun:"name,notnull" json:"name"`
	Email             string    `bun:"email,unique,notnull" json:"email"`
	Major             string    `bun:"major,nullzero" json:"major,omitempty"`
	GradYear          int       `bun:"grad_year,nullzero" json:"grad_year,omitempty"`
	TotalPoints       int       `bun:"total_points,notnull,default:0" json:"total_points"`
	LegendariesCaught int       `bun:"legendaries_caught,notnull,default:0" json:"legendaries_caught"`
	LastAwardAt       time.Time `bun:"last_award_at,nullzero" json:"-"`
	ResumeURL         string    `bun:"resume_url,nullzero" json:"resume_url,omitempty"`
	Skills            string    `bun:"skills,nullzero" json:"-"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type Stall struct {
	bun.BaseModel `bun:"table:stalls"`

	ID               string    `bun:"id,pk" json:"id"`
	CompanyName      string    `bun:"company_name,notnull" json:"company_name"`
	Category         string    `bun:"category,notnull" json:"category"`
	MapX             float64   `bun:"map_x,notnull" json:"map_x"`
	MapY             float64   `bun:"map_y,notnull" json:"map_y"`
	SponsorshipCost  float64   `bun:"sponsorship_package_cost,notnull" json:"sponsorship_package_cost"`
	SpawnName        string    `bun:"spawn_name,nullzero" json:"spawn_name,omitempty"`
	SpawnRarity      string    `bun:"spawn_rarity,nullzero" json:"spawn_rarity,omitempty"`
	SpawnActiveUntil time.Time `bun:"spawn_active_until,nullzero" json:"spawn_active_until,omitempty"`
	VisitorCount     int       `bun:"visitor_count,notnull,default:0" json:"visitor_count"`
	IsHiring         bool      `bun:"is_hiring,notnull,default:false" json:"is_hiring"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// SpawnActive reports whether the stall's deployed spawn is still live at t.
func (s *Stall) SpawnActive(t time.Time) bool {
	return s.SpawnName != "" && !s.SpawnActiveUntil.IsZero() && t.Before(s.SpawnActiveUntil)
}

// ScanEvent is the append-only ledger record of one scan. Rows are never
// updated after insert except for the consumed flag (trade redemptions)
// and sync_status (offline reconciliation).
type ScanEvent struct {
	bun.BaseModel `bun:"table:scan_events"`

	ID            string    `bun:"id,pk" json:"id"`
	UserID        string    `bun:"user_id,notnull" json:"user_id"`
	StallID       string    `bun:"stall_id,notnull" json:"stall_id"`
	Timestamp     time.Time `bun:"timestamp,notnull" json:"timestamp"`
	PokemonName   string    `bun:"pokemon_name,notnull" json:"pokemon_name"`
	PokemonType   string    `bun:"pokemon_type,notnull" json:"pokemon_type"`
	Rarity        string    `bun:"rarity,notnull" json:"rarity"`
	PointsAwarded int       `bun:"points_awarded,notnull" json:"points_awarded"`
	IsFlashSale   bool      `bun:"is_flash_sale,notnull,default:false" json:"is_flash_sale"`
	Consumed      bool      `bun:"consumed,notnull,default:false" json:"consumed"`
	SyncStatus    bool      `bun:"sync_status,notnull,default:true" json:"sync_status"`
}

type Reward struct {
	bun.BaseModel `bun:"table:rewards"`

	ID                string    `bun:"id,pk" json:"id"`
	ItemName          string    `bun:"item_name,notnull" json:"item_name"`
	Category          string    `bun:"category,notnull" json:"category"`
	Description       string    `bun:"description,nullzero" json:"description,omitempty"`
	CostInPoints      int       `bun:"cost_in_points,notnull" json:"cost_in_points"`
	RequiresLegendary bool      `bun:"requires_legendary,notnull,default:false" json:"requires_legendary"`
	StockRemaining    int       `bun:"stock_remaining,notnull" json:"stock_remaining"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type Voucher struct {
	bun.BaseModel `bun:"table:vouchers"`

	Code           string    `bun:"code,pk" json:"code"`
	UserID         string    `bun:"user_id,notnull" json:"user_id"`
	RewardID       string    `bun:"reward_id,notnull" json:"reward_id"`
	RedemptionType string    `bun:"redemption_type,notnull" json:"redemption_type"`
	QRCode         []byte    `bun:"qr_code,nullzero" json:"-"`
	IssuedAt       time.Time `bun:"issued_at,notnull" json:"issued_at"`
}

type FraudAlert struct {
	bun.BaseModel `bun:"table:fraud_alerts"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	Reason    string    `bun:"reason,notnull" json:"reason"`
	Timestamp time.Time `bun:"timestamp,notnull" json:"timestamp"`
}

// OutboxEntry is a pending offline scan waiting to be replayed against
// the scan processor. Entries are tagged with the client's idempotency
// token so a replay after a crash cannot double-award.
type OutboxEntry struct {
	bun.BaseModel `bun:"table:scan_outbox"`

	ID               string    `bun:"id,pk" json:"id"`
	IdempotencyToken string    `bun:"idempotency_token,unique,notnull" json:"idempotency_token"`
	UserID           string    `bun:"user_id,notnull" json:"user_id"`
	StallID          string    `bun:"stall_id,notnull" json:"stall_id"`
	Attempts         int       `bun:"attempts,notnull,default:0" json:"attempts"`
	Synced           bool      `bun:"synced,notnull,default:false" json:"synced"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
