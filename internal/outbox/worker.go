package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"eventpulse/internal/logger"
	"eventpulse/internal/models"
)

type Store interface {
	InsertOutboxEntry(ctx context.Context, entry *models.OutboxEntry) error
	PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error)
	MarkOutboxSynced(ctx context.Context, id string) error
	BumpOutboxAttempts(ctx context.Context, id string) error
}

type Scanner interface {
	ReplayScan(ctx context.Context, userID, stallID, token string) (*models.ScanResponse, error)
}

// Worker drains the offline-scan outbox: scans queued by clients while
// disconnected get replayed through the scan processor. Entries are
// keyed by the client's idempotency token, so re-submitting a batch
// after a crash can't double-award.
type Worker struct {
	Store    Store
	Scanner  Scanner
	Logger   *logger.Logger
	Interval time.Duration
}

func NewWorker(store Store, scanner Scanner, log *logger.Logger) *Worker {
	return &Worker{
		Store:    store,
		Scanner:  scanner,
		Logger:   log,
		Interval: 15 * time.Second,
	}
}

// Run loops until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Drain processes one batch of pending entries.
func (w *Worker) Drain(ctx context.Context) {
	entries, err := w.Store.PendingOutbox(ctx, 50)
	if err != nil {
		w.Logger.Error("OUTBOX", "load pending: "+err.Error())
		return
	}

	for _, entry := range entries {
		w.replay(ctx, entry)
	}
}

func (w *Worker) replay(ctx context.Context, entry models.OutboxEntry) {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := w.Scanner.ReplayScan(ctx, entry.UserID, entry.StallID, entry.IdempotencyToken)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})

	switch {
	case err == nil:
		w.Logger.Info("OUTBOX", fmt.Sprintf("replayed offline scan %s (user=%s stall=%s)", entry.ID, entry.UserID, entry.StallID))
		w.markSynced(ctx, entry.ID)
	case errors.Is(err, models.ErrConflict):
		// An earlier drain already committed this token; only the
		// synced flag is missing.
		w.Logger.Info("OUTBOX", fmt.Sprintf("offline scan %s already applied", entry.ID))
		w.markSynced(ctx, entry.ID)
	case isPermanent(err):
		// The scan can never succeed; drop it so the queue drains.
		w.Logger.Warn("OUTBOX", fmt.Sprintf("dropping offline scan %s: %v", entry.ID, err))
		w.markSynced(ctx, entry.ID)
	default:
		_ = w.Store.BumpOutboxAttempts(ctx, entry.ID)
	}
}

// markSynced is safe to fail: the ledger rejects the token-derived
// event ID on the next drain, so the entry is re-flagged, not replayed.
func (w *Worker) markSynced(ctx context.Context, id string) {
	if err := w.Store.MarkOutboxSynced(ctx, id); err != nil {
		w.Logger.Warn("OUTBOX", fmt.Sprintf("mark synced %s: %v", id, err))
	}
}

// isPermanent reports failures a retry cannot fix. A cooldown rejection
// is transient: the window expires before the next drain.
func isPermanent(err error) bool {
	return errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrConflict)
}
