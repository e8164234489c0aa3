package models

import "time"

// Request/response shapes for the JSON API. These are the strict
// versions of what the dashboard client expects.

type ScanRequest struct {
	UserID  string `json:"userId"`
	StallID string `json:"stallId"`
}

// OfflineScanItem is one scan captured by a client while disconnected.
type OfflineScanItem struct {
	UserID           string `json:"userId"`
	StallID          string `json:"stallId"`
	IdempotencyToken string `json:"idempotencyToken"`
}

type OfflineSyncRequest struct {
	Scans []OfflineScanItem `json:"scans"`
}

type OfflineSyncResponse struct {
	Queued int `json:"queued"`
}

type ScanResponse struct {
	StallName    string `json:"stall_name"`
	Pokemon      string `json:"pokemon"`
	PokemonType  string `json:"pokemon_type"`
	Rarity       string `json:"rarity"`
	PointsEarned int    `json:"points_earned"`
	IsFlashSale  bool   `json:"is_flash_sale"`
	VisitorCount int    `json:"visitor_count"`
}

type RedeemRequest struct {
	UserID           string `json:"userId"`
	RewardID         string `json:"rewardId"`
	IdempotencyToken string `json:"idempotencyToken,omitempty"`
	// ScanEventID selects which Legendary to trade in; when empty the
	// oldest unconsumed one is used.
	ScanEventID string `json:"scanEventId,omitempty"`
}

type RedeemResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	VoucherCode     string `json:"voucher_code,omitempty"`
	RemainingPoints int    `json:"remaining_points"`
	RewardStockLeft int    `json:"reward_stock_left"`
}

type StallInfo struct {
	StallID            string  `json:"stall_id"`
	Name               string  `json:"name"`
	Category           string  `json:"category"`
	MapX               float64 `json:"map_x"`
	MapY               float64 `json:"map_y"`
	IsHiring           bool    `json:"is_hiring"`
	VisitorCount       int     `json:"visitor_count"`
	CrowdLevel         string  `json:"crowd_level"`
	WaitTimeMinutes    float64 `json:"wait_time_minutes"`
	LegendaryAvailable bool    `json:"legendary_available"`
}

type PokedexEntry struct {
	ScanEventID string    `bun:"id" json:"scan_event_id"`
	StallID     string    `bun:"stall_id" json:"stall_id"`
	StallName   string    `bun:"stall_name" json:"stall_name"`
	Pokemon     string    `bun:"pokemon_name" json:"pokemon"`
	Rarity      string    `bun:"rarity" json:"rarity"`
	VisitedAt   time.Time `bun:"timestamp" json:"visited_at"`
}

type HistoryResponse struct {
	UserID              string         `json:"user_id"`
	Name                string         `json:"name"`
	TotalPoints         int            `json:"total_points"`
	LegendariesCaught   int            `json:"legendaries_caught"`
	Pokedex             []PokedexEntry `json:"pokedex"`
	TotalPokemon        int            `json:"total_pokemon"`
	UniqueStallsVisited int            `json:"unique_stalls_visited"`
}

type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	Points        int    `json:"points"`
	PokemonCount  int    `json:"pokemon_count"`
	StallsVisited int    `json:"stalls_visited"`
}

type StatsResponse struct {
	TotalAttendees int        `json:"total_attendees"`
	TotalSponsors  int        `json:"total_sponsors"`
	TotalScans     int        `json:"total_scans"`
	LegendaryCount int        `json:"legendary_count"`
	TopStalls      []TopStall `json:"top_stalls"`
	Highlight      string     `json:"highlight,omitempty"`
}

type TopStall struct {
	StallID     string `json:"stall_id"`
	CompanyName string `json:"company_name"`
	ScanCount   int    `json:"scan_count"`
}

type StallAnalytics struct {
	StallID            string         `json:"stall_id"`
	StallName          string         `json:"stall_name"`
	TotalFootfall      int            `json:"total_footfall"`
	PeakTrafficHour    int            `json:"peak_traffic_hour"`
	Demographics       map[string]int `json:"demographics"`
	ScanRatePct        float64        `json:"scan_rate_pct"`
	CostPerInteraction float64        `json:"cost_per_interaction"`
	AvgWaitTime        string         `json:"avg_wait_time"`
	CrossPollination   string         `json:"cross_pollination"`
	FlashSaleLift      string         `json:"flash_sale_lift"`
}

type HourlyBucket struct {
	Hour      int  `json:"hour"`
	ScanCount int  `json:"scan_count"`
	IsPeak    bool `json:"is_peak"`
}

type HourlyTrafficResponse struct {
	StallID string         `json:"stall_id"`
	Buckets []HourlyBucket `json:"buckets"`
}

type NotificationItem struct {
	StallID   string `json:"stall_id"`
	StallName string `json:"stall_name"`
	Message   string `json:"message"`
	Type      string `json:"type"`
}

type CandidateResponse struct {
	UserID    string   `json:"user_id"`
	Name      string   `json:"name"`
	Major     string   `json:"major"`
	GradYear  int      `json:"grad_year"`
	ResumeURL string   `json:"resume_url"`
	Skills    []string `json:"skills"`
}

type LureRequest struct {
	SpawnName   string    `json:"spawn_name"`
	Rarity      string    `json:"rarity"`
	ActiveUntil time.Time `json:"active_until"`
}

type AlertItem struct {
	ID     int    `json:"id"`
	User   string `json:"user"`
	Reason string `json:"reason"`
	Time   string `json:"time"`
}

// HeatmapCell is one stall's live traffic sample pushed over the
// heatmap websocket.
type HeatmapCell struct {
	StallID      string  `json:"stall_id"`
	Name         string  `json:"name"`
	MapX         float64 `json:"map_x"`
	MapY         float64 `json:"map_y"`
	VisitorCount int     `json:"visitor_count"`
	CrowdLevel   string  `json:"crowd_level"`
}
