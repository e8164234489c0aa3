package fraud

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
)

type Store interface {
	RecentScans(ctx context.Context, userID string, limit int) ([]models.ScanEvent, error)
	GetStall(ctx context.Context, id string) (*models.Stall, error)
	InsertFraudAlert(ctx context.Context, alert *models.FraudAlert) error
}

// Engine runs the post-commit fraud checks over the scan stream:
// impossible travel between stall coordinates and burst scanning.
// It only writes alerts; it never touches wallets or stock.
type Engine struct {
	Store  Store
	Logger *logger.Logger

	// MaxSpeed is in map grid units per second. The event map is a
	// 0-1000 grid over the venue floor; the default approximates a
	// fast walk.
	MaxSpeed    float64
	BurstLimit  int
	BurstWindow time.Duration
}

func NewEngine(store Store, log *logger.Logger) *Engine {
	return &Engine{
		Store:       store,
		Logger:      log,
		MaxSpeed:    25.0,
		BurstLimit:  3,
		BurstWindow: 60 * time.Second,
	}
}

// VerifyScan runs all checks for a freshly committed scan.
func (e *Engine) VerifyScan(ctx context.Context, ev models.ScanEvent) {
	history, err := e.Store.RecentScans(ctx, ev.UserID, 5)
	if err != nil {
		e.Logger.Error("FRAUD", fmt.Sprintf("load history for %s: %v", ev.UserID, err))
		return
	}
	// First scan ever: nothing to compare against.
	if len(history) < 2 {
		return
	}

	if reason := e.checkVelocity(ctx, ev, history); reason != "" {
		e.raise(ctx, ev.UserID, reason)
	}
	if reason := e.checkBurst(ev, history); reason != "" {
		e.raise(ctx, ev.UserID, reason)
	}
}

// checkVelocity is the impossible-travel physics check: the distance
// between the two stalls over the elapsed time must stay within
// walking speed.
func (e *Engine) checkVelocity(ctx context.Context, ev models.ScanEvent, history []models.ScanEvent) string {
	prev := previousScan(ev, history)
	if prev == nil || prev.StallID == ev.StallID {
		return ""
	}

	currStall, err := e.Store.GetStall(ctx, ev.StallID)
	if err != nil {
		return ""
	}
	prevStall, err := e.Store.GetStall(ctx, prev.StallID)
	if err != nil {
		return ""
	}

	distance := math.Hypot(currStall.MapX-prevStall.MapX, currStall.MapY-prevStall.MapY)

	delta := ev.Timestamp.Sub(prev.Timestamp).Seconds()
	if delta <= 0 {
		delta = 1
	}

	if distance/delta > e.MaxSpeed {
		return fmt.Sprintf("Impossible Travel (%.0f grid units in %.0fs)", distance, delta)
	}
	return ""
}

// checkBurst flags more than BurstLimit scans inside the window.
func (e *Engine) checkBurst(ev models.ScanEvent, history []models.ScanEvent) string {
	count := 0
	for _, h := range history {
		if ev.Timestamp.Sub(h.Timestamp) <= e.BurstWindow && !h.Timestamp.After(ev.Timestamp) {
			count++
		}
	}
	if count > e.BurstLimit {
		return fmt.Sprintf("Velocity Check (>%d scans/%.0fs)", e.BurstLimit, e.BurstWindow.Seconds())
	}
	return ""
}

func (e *Engine) raise(ctx context.Context, userID, reason string) {
	e.Logger.LogSecurity("FRAUD", fmt.Sprintf("user %s: %s", userID, reason))

	alert := models.FraudAlert{
		ID:        uuid.NewString(),
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	if err := e.Store.InsertFraudAlert(ctx, &alert); err != nil {
		e.Logger.Error("FRAUD", "persist alert: "+err.Error())
	}
}

// previousScan finds the scan immediately before ev in the history
// slice (newest first). The history usually includes ev itself because
// the check runs after the commit.
func previousScan(ev models.ScanEvent, history []models.ScanEvent) *models.ScanEvent {
	for i := range history {
		if history[i].ID == ev.ID {
			if i+1 < len(history) {
				return &history[i+1]
			}
			return nil
		}
	}
	// ev not in the window yet (consumer raced the insert); compare
	// against the newest we have.
	return &history[0]
}
